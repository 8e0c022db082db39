package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/thyrook/pgnrelay/internal/clock"
	"github.com/thyrook/pgnrelay/internal/pgn"
)

const twoBoards = `[White "Ivanov"]
[Black "Petrov"]
[Result "1-0"]
[StartTime "1700000000000"]

1. e4 {[%clk 1:30:00]} {[%emt 0:00:05]} e5 {[%clk 1:29:50]} {[%emt 0:00:10]} 1-0

[White "Jovanovic"]
[Black "Markovic"]
[StartTime "1700000000000"]

1. d4 {[%clk 1:30:00]} {[%emt 0:00:20]} *`

func writePGN(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "games.pgn")
	if err := os.WriteFile(path, []byte(twoBoards), 0644); err != nil {
		t.Fatalf("Failed to write PGN: %v", err)
	}
	return path
}

func TestRunFinishedGames(t *testing.T) {
	path := writePGN(t)
	clk := clock.NewVirtual(time.UnixMilli(1700000000000).Add(time.Hour))

	var out bytes.Buffer
	err := run(context.Background(), []string{"-pgn", path, "-log-level", "error"}, &out, clk)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := []string{
		"board 1 (Ivanov - Petrov): now at 1... e5 (1:29:50)",
		"board 2 (Jovanovic - Markovic): now at 1. d4 (1:30:00)",
		"board 1 (Ivanov - Petrov): 1-0",
		"board 2 (Jovanovic - Markovic): *",
	}
	for _, line := range want {
		if !strings.Contains(out.String(), line+"\n") {
			t.Errorf("Missing line %q in output:\n%s", line, out.String())
		}
	}
}

func TestRunSingleBoardWithDelay(t *testing.T) {
	path := writePGN(t)
	// Ten minutes after the start the delayed viewer has seen nothing yet.
	clk := clock.NewVirtual(time.UnixMilli(1700000000000).Add(10 * time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := run(ctx, []string{"-pgn", path, "-board", "2", "-delay", "15", "-log-level", "error"}, &out, clk)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := out.String()
	if strings.Contains(got, "board 1") {
		t.Errorf("Only board 2 should be replayed:\n%s", got)
	}
	if !strings.Contains(got, "board 2 (Jovanovic - Markovic): waiting for the first move\n") {
		t.Errorf("Expected waiting line:\n%s", got)
	}
	if !strings.Contains(got, "board 2 (Jovanovic - Markovic): stopped\n") {
		t.Errorf("Expected the interrupted replay to stop:\n%s", got)
	}
}

func TestRunBoardOutOfRange(t *testing.T) {
	path := writePGN(t)

	err := run(context.Background(), []string{"-pgn", path, "-board", "3", "-log-level", "error"}, &bytes.Buffer{}, clock.NewVirtual(time.Now()))
	if !errors.Is(err, errNoData) {
		t.Fatalf("Expected errNoData, got %v", err)
	}
}

func TestRunRequiresOneSource(t *testing.T) {
	err := run(context.Background(), nil, &bytes.Buffer{}, clock.NewVirtual(time.Now()))
	if !errors.Is(err, errUsage) {
		t.Fatalf("Expected usage error, got %v", err)
	}

	err = run(context.Background(), []string{"-pgn", "a.pgn", "-tournament", "t1"}, &bytes.Buffer{}, clock.NewVirtual(time.Now()))
	if !errors.Is(err, errUsage) {
		t.Fatalf("Expected usage error, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		id    int
		black bool
		clock string
		want  string
	}{
		{1, false, "1:30:00", "1. e4 (1:30:00)"},
		{2, true, "", "1... e4"},
		{7, false, "", "4. e4"},
	}
	for _, tt := range tests {
		h := pgn.HalfMove{ID: tt.id, Color: pgn.White, Move: "e4", Clock: tt.clock}
		if tt.black {
			h.Color = pgn.Black
		}
		if got := describe(h); got != tt.want {
			t.Errorf("describe(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
