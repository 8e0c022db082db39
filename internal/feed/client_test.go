package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thyrook/pgnrelay/internal/pgn"
)

const tournamentJSON = `{
  "name": "Belgrade Open",
  "location": "Belgrade",
  "timecontrol": "90+30",
  "rounds": [{"count": 2, "live": 0}, {"count": 0, "live": 0}, {"count": 1, "live": 1}]
}`

const round1JSON = `{
  "date": "2024-05-01",
  "pairings": [
    {"white": {"title": "GM", "lname": "Ivanov", "fname": "Ivan", "federation": "SRB"},
     "black": {"lname": "Petrov", "fname": "Petar"}, "result": "WHITEWIN", "live": false},
    {"white": {"lname": "Jovanovic"}, "black": {"lname": "Markovic"}, "result": "*", "live": true}
  ]
}`

const round3JSON = `{
  "date": "2024-05-03",
  "pairings": [
    {"white": {"lname": "Ivanov"}, "black": {"lname": "Jovanovic"}, "result": "DRAW", "live": false}
  ]
}`

const game11JSON = `{"live": false, "firstMove": 1700000000000, "result": "WHITEWIN", "moves": ["e4 5400+5", "e5 5390+10"]}`
const game31JSON = `{"live": false, "firstMove": 1700100000000, "result": "DRAW", "moves": ["d4 5400+3"]}`

// newFeed serves a small tournament. Game 2 of round 1 always fails.
func newFeed(t *testing.T) (*Client, *atomic.Int32) {
	t.Helper()

	var failures atomic.Int32
	docs := map[string]string{
		"/get/t1/tournament.json":     tournamentJSON,
		"/get/t1/round-1/index.json":  round1JSON,
		"/get/t1/round-3/index.json":  round3JSON,
		"/get/t1/round-1/game-1.json": game11JSON,
		"/get/t1/round-3/game-1.json": game31JSON,
		"/get/broken/tournament.json": `{"name": `,
		"/get/empty/tournament.json":  `{"rounds": []}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/get/t1/round-1/game-2.json" {
			failures.Add(1)
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		body, ok := docs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/get/", WithRetry(3, time.Millisecond), WithConcurrency(2))
	return c, &failures
}

func TestValidateNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{" 12 ", 12, false},
		{"3abc", 3, false},
		{"0", 0, true},
		{"-2", 0, true},
		{"", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := ValidateNumber(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidNumber) {
				t.Errorf("ValidateNumber(%q) error = %v, want ErrInvalidNumber", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ValidateNumber(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
}

func TestRoundsWithGames(t *testing.T) {
	tour := pgn.Tournament{Rounds: []pgn.RoundSummary{{Count: 2}, {Count: 0}, {Count: 1}, {Count: 0}}}
	assert.Equal(t, []int{1, 3}, RoundsWithGames(tour))
	assert.Empty(t, RoundsWithGames(pgn.Tournament{}))
}

func TestURLs(t *testing.T) {
	c := NewClient(DefaultBaseURL)
	assert.Equal(t, "https://1.pool.livechesscloud.com/get/abc/tournament.json", c.TournamentURL("abc"))
	assert.Equal(t, "https://1.pool.livechesscloud.com/get/abc/round-2/index.json", c.RoundIndexURL("abc", 2))
	assert.Equal(t, "https://1.pool.livechesscloud.com/get/abc/round-2/game-7.json?poll", c.GameURL("abc", 2, 7))
}

func TestGetRoundIndexStampsPairings(t *testing.T) {
	c, _ := newFeed(t)

	idx, err := c.GetRoundIndex(context.Background(), "t1", 1)
	require.NoError(t, err)

	assert.Equal(t, 1, idx.Round)
	assert.Equal(t, "2024-05-01", idx.Date)
	require.Len(t, idx.Pairings, 2)
	assert.Equal(t, 2, idx.Pairings[1].Index)
	assert.Equal(t, pgn.WhiteWin, idx.Pairings[0].Result)
	assert.Equal(t, "Ivanov", idx.Pairings[0].White.LastName)
}

func TestFetchGamesSettles(t *testing.T) {
	c, failures := newFeed(t)

	results := c.FetchGames(context.Background(), "t1", []GameRef{{1, 1}, {1, 2}, {3, 1}})

	require.Len(t, results, 3)
	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK())
	assert.True(t, IsStatus(results[1].Err, http.StatusBadGateway))
	assert.True(t, results[2].OK())
	assert.Equal(t, []string{"d4 5400+3"}, results[2].Value.Moves)
	assert.Equal(t, int32(3), failures.Load(), "server errors are retried")
}

func TestNotFoundIsNotRetried(t *testing.T) {
	c, _ := newFeed(t)

	_, err := c.GetGame(context.Background(), "t1", 9, 9)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
}

func TestTournamentPGN(t *testing.T) {
	c, _ := newFeed(t)

	text, err := c.TournamentPGN(context.Background(), "t1")
	require.NoError(t, err)

	games := strings.Split(text, "\n\n[Event")
	require.Len(t, games, 2, "the failed game is skipped")
	assert.Contains(t, games[0], `[Round "1"]`)
	assert.Contains(t, games[0], `[White "SRB GM Ivanov Ivan"]`)
	assert.Contains(t, games[0], "1. e4 {[%clk 1:30:00]} {[%emt 0:00:05]} e5 {[%clk 1:29:50]} {[%emt 0:00:10]} 1-0")
	assert.Contains(t, games[1], `[Round "3"]`)
	assert.Contains(t, games[1], `[Date "2024.05.03"]`)
	assert.Contains(t, games[1], "1/2-1/2")
}

func TestRoundPGN(t *testing.T) {
	c, _ := newFeed(t)

	text, err := c.RoundPGN(context.Background(), "t1", "3")
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(text, "[Event "))
	assert.Contains(t, text, `[White "Ivanov"]`)
	assert.Contains(t, text, `[StartTime "1700100000000"]`)
}

func TestGamePGN(t *testing.T) {
	c, _ := newFeed(t)

	text, err := c.GamePGN(context.Background(), "t1", "1", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(text, "[Event "))
	assert.Contains(t, text, `[Black "Petrov Petar"]`)
}

func TestExportErrorsAreInvalidRequest(t *testing.T) {
	c, _ := newFeed(t)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() (string, error)
	}{
		{"bad round number", func() (string, error) { return c.RoundPGN(ctx, "t1", "zero") }},
		{"bad game number", func() (string, error) { return c.GamePGN(ctx, "t1", "1", "0") }},
		{"only failed games", func() (string, error) { return c.GamePGN(ctx, "t1", "1", "2") }},
		{"game out of range", func() (string, error) { return c.GamePGN(ctx, "t1", "1", "5") }},
		{"missing round", func() (string, error) { return c.RoundPGN(ctx, "t1", "2") }},
		{"missing tournament", func() (string, error) { return c.TournamentPGN(ctx, "nope") }},
		{"malformed tournament", func() (string, error) { return c.TournamentPGN(ctx, "broken") }},
		{"no rounds with games", func() (string, error) { return c.TournamentPGN(ctx, "empty") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := tt.run()
			assert.Empty(t, text)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}
