package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *OTPChallengeStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewOTPChallengeStore(rdb, "afc")
}

func testChallenge(ttl time.Duration) *OTPChallenge {
	return &OTPChallenge{
		Identifier: "a@school.example",
		Role:       1,
		CodeHash:   [32]byte{1, 2, 3},
		ExpiresAt:  time.Now().Add(ttl).Unix(),
	}
}

func TestSaveGetDeleteRoundTrip(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	record := testChallenge(time.Minute)
	if err := store.Save(ctx, "ch1", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "ch1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Identifier != record.Identifier || got.Role != record.Role ||
		got.CodeHash != record.CodeHash || got.ExpiresAt != record.ExpiresAt {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, record)
	}

	deleted, err := store.Delete(ctx, "ch1")
	if err != nil || !deleted {
		t.Fatalf("Delete failed: deleted=%v err=%v", deleted, err)
	}
	if _, err := store.Get(ctx, "ch1"); !errors.Is(err, ErrOTPChallengeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestGetMissingChallenge(t *testing.T) {
	_, store := newTestStore(t)

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrOTPChallengeNotFound) {
		t.Fatalf("expected ErrOTPChallengeNotFound, got %v", err)
	}
}

func TestExpiredChallengeIsDeletedOnRead(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	record := testChallenge(-time.Second)
	if err := store.Save(ctx, "ch1", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Get(ctx, "ch1"); !errors.Is(err, ErrOTPChallengeExpired) {
		t.Fatalf("expected ErrOTPChallengeExpired, got %v", err)
	}
	if mr.Exists("afc:ch1") {
		t.Fatal("expired record must be removed on read")
	}
}

func TestRecordFailureCountsAndExceeds(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "ch1", testChallenge(time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	exceeded, err := store.RecordFailure(ctx, "ch1", 2)
	if err != nil || exceeded {
		t.Fatalf("first failure must not exceed: exceeded=%v err=%v", exceeded, err)
	}

	got, err := store.Get(ctx, "ch1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Attempts != 1 {
		t.Fatalf("expected one recorded attempt, got %d", got.Attempts)
	}

	exceeded, err = store.RecordFailure(ctx, "ch1", 2)
	if err != nil || !exceeded {
		t.Fatalf("second failure must exceed: exceeded=%v err=%v", exceeded, err)
	}
	if mr.Exists("afc:ch1") {
		t.Fatal("exceeded challenge must be deleted")
	}
}

func TestRefreshReplacesCodeAndClearsAttempts(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "ch1", testChallenge(time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := store.RecordFailure(ctx, "ch1", 10); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	newHash := [32]byte{9, 9, 9}
	got, err := store.Refresh(ctx, "ch1", newHash, time.Minute)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got.CodeHash != newHash {
		t.Fatal("expected replaced code hash")
	}
	if got.Attempts != 0 {
		t.Fatalf("expected attempts cleared, got %d", got.Attempts)
	}
	if got.Resends != 1 {
		t.Fatalf("expected one recorded resend, got %d", got.Resends)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := decodeOTPChallenge(nil); err == nil {
		t.Fatal("expected error for empty record")
	}
	if _, err := decodeOTPChallenge([]byte{99, 0, 0}); err == nil {
		t.Fatal("expected error for unknown version")
	}

	valid, err := encodeOTPChallenge(testChallenge(time.Minute))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := decodeOTPChallenge(append(valid, 0xFF)); err == nil {
		t.Fatal("expected error for trailing bytes")
	}
	if _, err := decodeOTPChallenge(valid[:len(valid)-1]); err == nil {
		t.Fatal("expected error for truncated record")
	}
}
