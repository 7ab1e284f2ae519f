// Package locker provides keyed, in-process mutual exclusion for units of work that
// read and then write table, transaction or inventory rows.
package locker

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Key prefixes fix the acquisition order: tables, then table names, then transactions,
// then items. Keys passed to one WithLock call are sorted; nested calls must follow the
// same class order and must not be made while a database transaction is open.
const (
	prefixTable     = "1-table:"
	prefixTableName = "2-tname:"
	prefixTxn       = "3-txn:"
	prefixItem      = "4-item:"
)

func TableNameKey(name string) string { return prefixTableName + name }
func TableKey(id int64) string        { return fmt.Sprintf("%s%d", prefixTable, id) }
func TxnKey(id int64) string          { return fmt.Sprintf("%s%d", prefixTxn, id) }
func ItemKey(id int64) string         { return fmt.Sprintf("%s%d", prefixItem, id) }

type entry struct {
	ch   chan struct{}
	refs int
}

// Locker hands out one lock per key. Entries are dropped when nobody holds or waits on them.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

// WithLock acquires every key, runs fn and releases the keys again.
// Acquisition honours ctx; fn itself is not interrupted.
func (l *Locker) WithLock(ctx context.Context, keys []string, fn func() error) error {
	keys = normalize(keys)

	acquired := make([]string, 0, len(keys))
	defer func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			l.release(acquired[i])
		}
	}()

	for _, k := range keys {
		if err := l.acquire(ctx, k); err != nil {
			return err
		}
		acquired = append(acquired, k)
	}
	return fn()
}

func (l *Locker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, e)
		return ctx.Err()
	}
}

func (l *Locker) release(key string) {
	l.mu.Lock()
	e := l.entries[key]
	l.mu.Unlock()
	<-e.ch
	l.unref(key, e)
}

func (l *Locker) unref(key string, e *entry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
