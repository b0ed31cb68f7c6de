package failures

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) {
	t.Helper()
	if err := Init(filepath.Join(t.TempDir(), "failures.db")); err != nil {
		t.Fatalf("Failed to initialize failure store: %v", err)
	}
	t.Cleanup(func() { Close() })
}

func TestFailureStore(t *testing.T) {
	openTestStore(t)

	rec := FailureRecord{
		Key:     "abc_123",
		RunID:   "run-1",
		VideoID: "abc_123",
		Bucket:  "media",
		Object:  "Revoland/PropertyVideos/abc_123.mp4",
		Stage:   "notifying",
		Reason:  "notify-exhausted",
		Error:   "backend notification failed after 5 attempts",
	}
	if err := StoreFailure(rec); err != nil {
		t.Fatalf("Failed to store failure: %v", err)
	}

	got, err := GetFailure("abc_123")
	if err != nil {
		t.Fatalf("Failed to get failure: %v", err)
	}
	if got == nil {
		t.Fatal("Expected failure record, got nil")
	}
	if got.Reason != rec.Reason || got.RunID != rec.RunID {
		t.Errorf("unexpected record %+v", got)
	}
	if time.Since(got.Timestamp) > time.Minute {
		t.Error("Timestamp should be recent")
	}

	missing, err := GetFailure("non-existent")
	if err != nil {
		t.Fatalf("Failed to get non-existent failure: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for non-existent failure")
	}

	if err := DeleteFailure("abc_123"); err != nil {
		t.Fatalf("Failed to delete failure: %v", err)
	}
	if got, _ := GetFailure("abc_123"); got != nil {
		t.Error("Expected failure to be deleted")
	}
}

func TestStoreFailureOverwritesByKey(t *testing.T) {
	openTestStore(t)

	for _, reason := range []string{"fetch-failed", "no-variants"} {
		if err := StoreFailure(FailureRecord{Key: "v1", Reason: reason}); err != nil {
			t.Fatal(err)
		}
	}
	list, err := ListFailures()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Reason != "no-variants" {
		t.Errorf("expected a single latest record, got %+v", list)
	}
}

func TestStoreFailureRequiresKey(t *testing.T) {
	openTestStore(t)
	if err := StoreFailure(FailureRecord{Reason: "fetch-failed"}); err == nil {
		t.Error("expected error for record without key")
	}
}

func TestCleanupOldRecords(t *testing.T) {
	openTestStore(t)

	now := time.Now()
	records := []FailureRecord{
		{Key: "old-1", Timestamp: now.Add(-48 * time.Hour)},
		{Key: "old-2", Timestamp: now.Add(-48 * time.Hour)},
		{Key: "recent", Timestamp: now.Add(-time.Hour)},
	}
	for _, r := range records {
		if err := StoreFailure(r); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := CleanupOldRecords(24 * time.Hour)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	list, _ := ListFailures()
	if len(list) != 1 || list[0].Key != "recent" {
		t.Errorf("unexpected remaining records %+v", list)
	}
}

func TestUninitializedStore(t *testing.T) {
	if err := StoreFailure(FailureRecord{Key: "x"}); err == nil {
		t.Error("expected error from uninitialized store")
	}
	if err := CheckHealth(); err == nil {
		t.Error("expected health check to fail when uninitialized")
	}
}

func TestCheckHealth(t *testing.T) {
	openTestStore(t)
	if err := CheckHealth(); err != nil {
		t.Errorf("health check failed: %v", err)
	}
}
