package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/thyrook/pgnrelay/internal/pgn"
)

var (
	// ErrInvalidNumber is returned for a round or game number that is not a
	// positive integer.
	ErrInvalidNumber = errors.New("invalid number")
	// ErrInvalidRequest wraps every failure of the PGN export operations.
	ErrInvalidRequest = errors.New("invalid request")
)

// ValidateNumber reads a positive integer from the leading digits of s.
// Trailing non-digit characters are ignored.
func ValidateNumber(s string) (int, error) {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end < 0 {
		end = len(s)
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return n, nil
}

// RoundsWithGames lists the 1-based numbers of the rounds that have at
// least one game.
func RoundsWithGames(t pgn.Tournament) []int {
	var rounds []int
	for i, r := range t.Rounds {
		if r.Count > 0 {
			rounds = append(rounds, i+1)
		}
	}
	return rounds
}

// gameRefs addresses every pairing of the given indexes.
func gameRefs(indexes []pgn.RoundIndex) []GameRef {
	return lo.FlatMap(indexes, func(idx pgn.RoundIndex, _ int) []GameRef {
		return lo.Times(len(idx.Pairings), func(i int) GameRef {
			return GameRef{Round: idx.Round, Game: i + 1}
		})
	})
}

// TournamentPGN exports every game of every round that has games.
func (c *Client) TournamentPGN(ctx context.Context, id string, opts ...pgn.WriteOption) (string, error) {
	t, err := c.GetTournament(ctx, id)
	if err != nil {
		return "", invalid(err)
	}
	indexes, err := c.GetRoundIndexes(ctx, id, RoundsWithGames(t))
	if err != nil {
		return "", invalid(err)
	}
	return c.export(ctx, id, t, indexes, gameRefs(indexes), opts)
}

// RoundPGN exports every game of one round.
func (c *Client) RoundPGN(ctx context.Context, id, round string, opts ...pgn.WriteOption) (string, error) {
	t, err := c.GetTournament(ctx, id)
	if err != nil {
		return "", invalid(err)
	}
	r, err := ValidateNumber(round)
	if err != nil {
		return "", invalid(err)
	}
	indexes, err := c.GetRoundIndexes(ctx, id, []int{r})
	if err != nil {
		return "", invalid(err)
	}
	return c.export(ctx, id, t, indexes, gameRefs(indexes), opts)
}

// GamePGN exports a single game.
func (c *Client) GamePGN(ctx context.Context, id, round, game string, opts ...pgn.WriteOption) (string, error) {
	t, err := c.GetTournament(ctx, id)
	if err != nil {
		return "", invalid(err)
	}
	r, err := ValidateNumber(round)
	if err != nil {
		return "", invalid(err)
	}
	g, err := ValidateNumber(game)
	if err != nil {
		return "", invalid(err)
	}
	indexes, err := c.GetRoundIndexes(ctx, id, []int{r})
	if err != nil {
		return "", invalid(err)
	}
	refs := lo.Filter(gameRefs(indexes), func(ref GameRef, _ int) bool { return ref.Game == g })
	return c.export(ctx, id, t, indexes, refs, opts)
}

func (c *Client) export(ctx context.Context, id string, t pgn.Tournament, indexes []pgn.RoundIndex, refs []GameRef, opts []pgn.WriteOption) (string, error) {
	text, err := pgn.Aggregate(t, indexes, c.FetchGames(ctx, id, refs), opts...)
	if err != nil {
		return "", invalid(err)
	}
	return text, nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}
