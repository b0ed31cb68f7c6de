package success

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T) {
	t.Helper()
	if err := Init(filepath.Join(t.TempDir(), "success.db")); err != nil {
		t.Fatalf("Failed to initialize success store: %v", err)
	}
	t.Cleanup(func() { Close() })
}

func TestSuccessStore(t *testing.T) {
	openTestStore(t)

	rec := SuccessRecord{
		VideoID:         "xyz_9",
		OriginalVideoID: "xyz",
		RunID:           "run-1",
		Bucket:          "media",
		Object:          "Revoland/PropertyVideos/xyz_9.mp4",
		MasterURL:       "https://cdn.example.com/media/Revoland/PropertyVideos/Hls/xyz_9/master_playlist.m3u8",
		Variants:        []string{"720p", "1080p"},
		Duration:        42 * time.Second,
		Timestamp:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := StoreSuccess(rec); err != nil {
		t.Fatalf("Failed to store success: %v", err)
	}

	got, err := GetSuccess("xyz_9")
	if err != nil {
		t.Fatalf("Failed to get success: %v", err)
	}
	if got == nil {
		t.Fatal("Expected success record, got nil")
	}
	if diff := cmp.Diff(rec, *got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	if err := DeleteSuccess("xyz_9"); err != nil {
		t.Fatal(err)
	}
	if got, err := GetSuccess("xyz_9"); err != nil || got != nil {
		t.Errorf("expected deleted record, got %+v, %v", got, err)
	}
}

func TestStoreSuccessRequiresVideoID(t *testing.T) {
	openTestStore(t)
	if err := StoreSuccess(SuccessRecord{RunID: "r"}); err == nil {
		t.Error("expected error for record without video id")
	}
}

func TestCleanupOldRecords(t *testing.T) {
	openTestStore(t)

	now := time.Now()
	for id, age := range map[string]time.Duration{
		"old-1":  48 * time.Hour,
		"old-2":  72 * time.Hour,
		"recent": time.Hour,
	} {
		if err := StoreSuccess(SuccessRecord{VideoID: id, Timestamp: now.Add(-age)}); err != nil {
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
	records, err := ListSuccessRecords()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].VideoID != "recent" {
		t.Errorf("unexpected remaining records %+v", records)
	}
}

func TestCheckHealth(t *testing.T) {
	if err := CheckHealth(); err == nil {
		t.Error("expected health check to fail when uninitialized")
	}
	openTestStore(t)
	if err := CheckHealth(); err != nil {
		t.Errorf("health check failed: %v", err)
	}
}
