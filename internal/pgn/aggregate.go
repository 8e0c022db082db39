package pgn

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
)

var (
	// ErrNoGames is returned when a batch yields no game at all.
	ErrNoGames = errors.New("no valid PGN found")
	// ErrNoPairing is returned when a fetched game has no pairing entry.
	ErrNoPairing = errors.New("no pairing for game")
)

// Fetched is the settled outcome of fetching one game document.
type Fetched struct {
	Round int
	Game  int
	Value *RawGame
	Err   error
}

// OK reports whether the fetch succeeded.
func (f Fetched) OK() bool {
	return f.Err == nil && f.Value != nil
}

// Aggregate serializes every successful fetch and joins the games with a
// blank line. The pairing of each game is looked up in the index of its
// round, falling back to the first index when that round is missing.
func Aggregate(t Tournament, rounds []RoundIndex, results []Fetched, opts ...WriteOption) (string, error) {
	if len(rounds) == 0 {
		return "", ErrNoGames
	}

	var blocks []string
	for _, f := range lo.Filter(results, func(f Fetched, _ int) bool { return f.OK() }) {
		index, found := lo.Find(rounds, func(r RoundIndex) bool { return r.Round == f.Round })
		if !found {
			index = rounds[0]
		}
		if f.Game < 1 || f.Game > len(index.Pairings) {
			return "", fmt.Errorf("%w: round %d game %d", ErrNoPairing, f.Round, f.Game)
		}
		pairing := index.Pairings[f.Game-1]
		blocks = append(blocks, Serialize(t, pairing, *f.Value, f.Round, index.Date, opts...))
	}

	if len(blocks) == 0 {
		return "", ErrNoGames
	}
	return strings.Join(blocks, "\n\n"), nil
}

// SplitGames splits a multi-game PGN document into single-game texts. A new
// game starts at a tag line that follows move text.
func SplitGames(r io.Reader) ([]string, error) {
	var (
		games   []string
		current []string
		inMoves bool
	)

	flush := func() {
		text := strings.TrimSpace(strings.Join(current, "\n"))
		if text != "" {
			games = append(games, text)
		}
		current = current[:0]
		inMoves = false
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "["):
			if inMoves {
				flush()
			}
		case trimmed != "":
			inMoves = true
		}
		current = append(current, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read PGN: %w", err)
	}
	flush()

	return games, nil
}
