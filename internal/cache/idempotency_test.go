package cache

import (
	"bytes"
	"strings"
	"testing"
)

func TestKeyIdempotencyIsScopedByOperatorAndRoute(t *testing.T) {
	a := KeyIdempotency(1, "/api/v1/transactions/walk-in", "abc")
	b := KeyIdempotency(2, "/api/v1/transactions/walk-in", "abc")
	c := KeyIdempotency(1, "/api/v1/tables/:id/stop", "abc")
	if a == b || a == c {
		t.Fatalf("keys must differ per operator and route: %q %q %q", a, b, c)
	}
	if want := "lounge:v1:idem:1:/api/v1/transactions/walk-in:abc"; a != want {
		t.Errorf("key = %q, want %q", a, want)
	}
}

func TestLockValueDecodesAsInProgress(t *testing.T) {
	rec, err := decodeRecord(encodeLock("sha-1"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec == nil || !rec.InProgress || rec.Fingerprint != "sha-1" {
		t.Fatalf("expected an in-progress record for sha-1, got %+v", rec)
	}
}

func TestResultValueRoundTrips(t *testing.T) {
	saved := IdempotencyRecord{Fingerprint: "sha-2", StatusCode: 201, Body: []byte(`{"id":7}`)}
	v, err := encodeResult(saved)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(v, resultPrefix) {
		t.Fatalf("expected a result value, got %q", v)
	}

	rec, err := decodeRecord(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec == nil || rec.InProgress {
		t.Fatalf("expected a finished record, got %+v", rec)
	}
	if rec.Fingerprint != saved.Fingerprint || rec.StatusCode != 201 || !bytes.Equal(rec.Body, saved.Body) {
		t.Fatalf("expected %+v, got %+v", saved, rec)
	}
}

func TestDecodeRecordRejectsGarbage(t *testing.T) {
	rec, err := decodeRecord("something else")
	if err != nil || rec != nil {
		t.Fatalf("unknown values read as unused keys, got %+v %v", rec, err)
	}
	if _, err := decodeRecord(resultPrefix + "{not json"); err == nil {
		t.Fatal("expected a decode error for a corrupt result")
	}
}
