package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	locker, err := NewRedisLocker("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("failed to create redis locker: %v", err)
	}
	t.Cleanup(func() { _ = locker.Close() })
	return locker, s
}

func TestLockAndUnlock(t *testing.T) {
	locker, s := setupTestLocker(t, time.Second)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "dos_1")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if !s.Exists("dossier-lock:dos_1") {
		t.Fatal("expected lock key to exist")
	}
	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if s.Exists("dossier-lock:dos_1") {
		t.Fatal("expected lock key to be removed")
	}
}

func TestLockIsExclusive(t *testing.T) {
	locker, _ := setupTestLocker(t, 50*time.Millisecond)
	locker.wait = 20 * time.Millisecond
	ctx := context.Background()

	if _, err := locker.Lock(ctx, "dos_1"); err != nil {
		t.Fatalf("first Lock failed: %v", err)
	}
	_, err := locker.Lock(ctx, "dos_1")
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}

	if _, err := locker.Lock(ctx, "dos_2"); err != nil {
		t.Fatalf("locks must be per dossier: %v", err)
	}
}

func TestExpiredLeaseCanBeTaken(t *testing.T) {
	locker, s := setupTestLocker(t, 100*time.Millisecond)
	locker.wait = 0
	ctx := context.Background()

	if _, err := locker.Lock(ctx, "dos_1"); err != nil {
		t.Fatalf("first Lock failed: %v", err)
	}
	s.FastForward(200 * time.Millisecond)

	if _, err := locker.Lock(ctx, "dos_1"); err != nil {
		t.Fatalf("expected expired lease to be reacquired: %v", err)
	}
}

func TestStaleUnlockKeepsNewHoldersLease(t *testing.T) {
	locker, s := setupTestLocker(t, 100*time.Millisecond)
	locker.wait = 0
	ctx := context.Background()

	staleUnlock, err := locker.Lock(ctx, "dos_1")
	if err != nil {
		t.Fatalf("first Lock failed: %v", err)
	}
	s.FastForward(200 * time.Millisecond)
	if _, err := locker.Lock(ctx, "dos_1"); err != nil {
		t.Fatalf("second Lock failed: %v", err)
	}

	if err := staleUnlock(ctx); err != nil {
		t.Fatalf("stale unlock failed: %v", err)
	}
	if !s.Exists("dossier-lock:dos_1") {
		t.Fatal("stale holder must not release the new lease")
	}
}

func TestLockRespectsContext(t *testing.T) {
	locker, _ := setupTestLocker(t, time.Second)
	if _, err := locker.Lock(context.Background(), "dos_1"); err != nil {
		t.Fatalf("first Lock failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := locker.Lock(ctx, "dos_1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewRedisLockerRejectsBadURL(t *testing.T) {
	if _, err := NewRedisLocker("not-a-url", time.Second); err == nil {
		t.Fatal("expected error for malformed redis url")
	}
}
