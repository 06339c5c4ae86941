package domain

import (
	"testing"
	"time"
)

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIdempotencyRecordReplayableAndExpired(t *testing.T) {
	now := time.Now().UTC()
	record := IdempotencyRecord{Status: IdempotencyStatusDone, HTTPStatus: 201, TTLAt: now.Add(time.Minute)}

	if !record.Replayable() {
		t.Fatal("done record with status must be replayable")
	}
	if record.Expired(now) {
		t.Fatal("record must not be expired before ttl")
	}
	if !record.Expired(now.Add(2 * time.Minute)) {
		t.Fatal("record must be expired after ttl")
	}

	record.Status = IdempotencyStatusProcessing
	if record.Replayable() {
		t.Fatal("processing record is not replayable")
	}
}

func TestIdempotencyScopeKey(t *testing.T) {
	if got := IdempotencyScopeKey("buyer-1", "create_order", "k1"); got != "buyer-1:create_order:k1" {
		t.Fatalf("unexpected scope key %q", got)
	}
}

func TestNewIdempotencyClaim(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	claim, err := NewIdempotencyClaim("  buyer-1:create_order:k1 ", " hash ", time.Time{}, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claim.Key != "buyer-1:create_order:k1" || claim.RequestHash != "hash" {
		t.Fatalf("key and hash must be trimmed, got %q / %q", claim.Key, claim.RequestHash)
	}
	if claim.Status != IdempotencyStatusProcessing {
		t.Fatalf("status = %s, want processing", claim.Status)
	}
	if !claim.TTLAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("default ttl = %v", claim.TTLAt)
	}

	if _, err := NewIdempotencyClaim(" ", "hash", now, now); err != ErrIdempotencyKeyRequired {
		t.Fatalf("empty key: got %v", err)
	}
	if _, err := NewIdempotencyClaim("k", "", now, now); err != ErrIdempotencyRequestHashRequired {
		t.Fatalf("empty hash: got %v", err)
	}
}

func TestIdempotencyRecordReclaimableAndConflict(t *testing.T) {
	now := time.Now().UTC()
	live := IdempotencyRecord{RequestHash: "h1", Status: IdempotencyStatusDone, TTLAt: now.Add(time.Hour)}

	if live.Reclaimable(now) {
		t.Fatal("live done record must not be reclaimable")
	}
	failed := live
	failed.Status = IdempotencyStatusFailed
	if !failed.Reclaimable(now) {
		t.Fatal("failed record must be reclaimable")
	}
	if !live.Reclaimable(now.Add(2 * time.Hour)) {
		t.Fatal("expired record must be reclaimable")
	}

	if err := live.ClaimConflict("h1"); err != ErrIdempotencyKeyAlreadyExists {
		t.Fatalf("same hash: got %v", err)
	}
	if err := live.ClaimConflict("h2"); err != ErrIdempotencyHashMismatch {
		t.Fatalf("different hash: got %v", err)
	}
}
