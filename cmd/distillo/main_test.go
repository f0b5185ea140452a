package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-distillo/pkg/history"
)

func TestHistoryCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	t.Setenv("DISTILLO_HISTORY", path)

	run := func() string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs([]string{"history", "--log-level", "error"})
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("history: %v", err)
		}
		return out.String()
	}

	if got := run(); !strings.Contains(got, "No drinks mixed yet.") {
		t.Errorf("Unexpected output for empty history: %q", got)
	}

	store, err := history.NewJSONStore(path)
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	err = store.Save(&history.Session{
		Recipe:         "Daiquiri",
		Steps:          4,
		StepsCompleted: 4,
		Outcome:        history.Finished,
		StartedAt:      start,
		EndedAt:        start.Add(3 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := run()
	for _, want := range []string{"RECIPE", "Daiquiri", "finished", "4/4", "3m0s"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in output:\n%s", want, got)
		}
	}
}
