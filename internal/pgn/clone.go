package pgn

import (
	"fmt"
	"maps"

	"github.com/thyrook/pgnrelay/internal/clock"
)

// PartlyClone returns a new game holding the first n half-moves of g, with
// a board rebuilt from scratch. g is not modified.
func PartlyClone(g *Game, n int) *Game {
	newRules := g.newRules
	if newRules == nil {
		newRules = defaultRules
	}
	if n < 0 {
		n = 0
	}
	if n > len(g.HalfMoves) {
		n = len(g.HalfMoves)
	}

	clone := &Game{
		Tags:        maps.Clone(g.Tags),
		Termination: g.Termination,
		board:       newRules(),
		newRules:    newRules,
	}
	if clone.Tags == nil {
		clone.Tags = Tags{}
	}

	clone.HalfMoves = make([]HalfMove, 0, n)
	for _, h := range g.HalfMoves[:n] {
		if err := clone.board.Apply(h.Move, true); err != nil {
			break
		}
		clone.HalfMoves = append(clone.HalfMoves, h)
	}

	return clone
}

// RawMoves renders the half-moves in the feed's raw ply form,
// "<move> <clockSeconds>+<emtSeconds>". Plies missing either annotation
// are rendered as the bare move.
func (g *Game) RawMoves() []string {
	raw := make([]string, 0, len(g.HalfMoves))
	for _, h := range g.HalfMoves {
		raw = append(raw, rawMove(h))
	}
	return raw
}

func rawMove(h HalfMove) string {
	if h.Clock == "" || h.Elapsed == "" {
		return h.Move
	}
	main, err := clock.TimeToSeconds(h.Clock)
	if err != nil {
		return h.Move
	}
	emt, err := clock.TimeToSeconds(h.Elapsed)
	if err != nil {
		return h.Move
	}
	return fmt.Sprintf("%s %d+%d", h.Move, main, emt)
}
