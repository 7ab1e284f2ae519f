package locker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWithLockSerializesSameKey(t *testing.T) {
	l := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock(context.Background(), []string{ItemKey(1)}, func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
	if len(l.entries) != 0 {
		t.Errorf("expected lock table to be empty, got %d entries", len(l.entries))
	}
}

func TestWithLockOppositeOrderDoesNotDeadlock(t *testing.T) {
	l := New()
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = l.WithLock(context.Background(), []string{ItemKey(1), TxnKey(2)}, func() error { return nil })
			}()
			go func() {
				defer wg.Done()
				_ = l.WithLock(context.Background(), []string{TxnKey(2), ItemKey(1)}, func() error { return nil })
			}()
		}
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lockers deadlocked")
	}
}

func TestWithLockHonoursContext(t *testing.T) {
	l := New()
	hold := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), []string{TableKey(7)}, func() error {
			close(hold)
			<-release
			return nil
		})
	}()
	<-hold

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := l.WithLock(ctx, []string{TableKey(7)}, func() error {
		called = true
		return nil
	})
	close(release)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if called {
		t.Error("fn ran without the lock")
	}
}

func TestWithLockReturnsFnError(t *testing.T) {
	boom := errors.New("boom")
	if err := New().WithLock(context.Background(), []string{TxnKey(1), TxnKey(1)}, func() error { return boom }); err != boom {
		t.Fatalf("expected fn error, got %v", err)
	}
}

func TestKeyOrdering(t *testing.T) {
	got := normalize([]string{ItemKey(1), TxnKey(9), TableKey(3), TableNameKey("Snooker 1")})
	want := []string{TableKey(3), TableNameKey("Snooker 1"), TxnKey(9), ItemKey(1)}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("key %d = %q, want %q", i, got[i], want[i])
		}
	}
}
