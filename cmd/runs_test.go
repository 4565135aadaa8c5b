package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/distlbfgs/internal/store"
)

func testInfos(now time.Time) []store.ModelInfo {
	return []store.ModelInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)}, // 10 days old
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},  // 5 days old
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},  // 1 day old
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)}, // 30 days old
	}
}

func runIDs(infos []store.ModelInfo) []string {
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.RunID
	}
	return ids
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestSelectRunsForDeletion_ByAge(t *testing.T) {
	now := time.Now()

	toDelete := selectRunsForDeletion(testInfos(now), 0, 7, now)

	if got, want := runIDs(toDelete), []string{"run4", "run1"}; !equalIDs(got, want) {
		t.Errorf("Deleted %v, want %v", got, want)
	}
}

func TestSelectRunsForDeletion_ByCount(t *testing.T) {
	now := time.Now()

	toDelete := selectRunsForDeletion(testInfos(now), 2, 0, now)

	if got, want := runIDs(toDelete), []string{"run4", "run1"}; !equalIDs(got, want) {
		t.Errorf("Deleted %v, want %v", got, want)
	}
}

func TestSelectRunsForDeletion_Combined(t *testing.T) {
	now := time.Now()

	// Keep the newest 3, but also drop anything older than 7 days.
	toDelete := selectRunsForDeletion(testInfos(now), 3, 7, now)

	if got, want := runIDs(toDelete), []string{"run4", "run1"}; !equalIDs(got, want) {
		t.Errorf("Deleted %v, want %v", got, want)
	}
}

func TestSelectRunsForDeletion_NothingToDelete(t *testing.T) {
	now := time.Now()

	if toDelete := selectRunsForDeletion(testInfos(now), 10, 0, now); len(toDelete) != 0 {
		t.Errorf("Expected nothing to delete, got %v", runIDs(toDelete))
	}
	if toDelete := selectRunsForDeletion(testInfos(now), 0, 60, now); len(toDelete) != 0 {
		t.Errorf("Expected nothing to delete, got %v", runIDs(toDelete))
	}
	if toDelete := selectRunsForDeletion(nil, 1, 1, now); len(toDelete) != 0 {
		t.Errorf("Expected nothing to delete from empty list, got %v", runIDs(toDelete))
	}
}

func TestSelectRunsForDeletion_DoesNotReorderInput(t *testing.T) {
	now := time.Now()
	infos := testInfos(now)

	selectRunsForDeletion(infos, 1, 0, now)

	if got, want := runIDs(infos), []string{"run1", "run2", "run3", "run4"}; !equalIDs(got, want) {
		t.Errorf("Input reordered to %v", got)
	}
}

func TestGetDirSize(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 50), 0644); err != nil {
		t.Fatal(err)
	}

	size, err := getDirSize(dir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size != 150 {
		t.Errorf("Expected size 150, got %d", size)
	}

	if _, err := getDirSize(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
