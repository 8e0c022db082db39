// Package pgn parses and writes the PGN subset produced by the live
// broadcast feed: a tag header plus move text with %clk and %emt comments.
package pgn

import (
	"strconv"
	"time"

	"github.com/thyrook/pgnrelay/internal/rules"
)

// Color is the side that played a half-move.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Tag names written and read by the codec.
const (
	TagEvent       = "Event"
	TagSite        = "Site"
	TagDate        = "Date"
	TagRound       = "Round"
	TagWhite       = "White"
	TagBlack       = "Black"
	TagResult      = "Result"
	TagStartTime   = "StartTime"
	TagPlyCount    = "PlyCount"
	TagTimeControl = "TimeControl"
)

// Unknown is the PGN placeholder for a missing tag value.
const Unknown = "?"

// HalfMove is one ply of a game.
type HalfMove struct {
	// ID is 1-based and contiguous across the game.
	ID    int
	Color Color
	Move  string
	// Clock is the remaining time after the move, "H:MM:SS", or empty.
	Clock string
	// Elapsed is the time spent on the move, "H:MM:SS", or empty.
	Elapsed string
	// ScheduledAt is when the move becomes visible to a delayed viewer.
	// It is zero when the game start time is unknown.
	ScheduledAt time.Time
}

// Scheduled reports whether the half-move carries a scheduled time.
func (h HalfMove) Scheduled() bool {
	return !h.ScheduledAt.IsZero()
}

// FullMove pairs a white half-move with the black reply, if any.
type FullMove struct {
	Number int
	White  HalfMove
	Black  *HalfMove
}

// Rejected is a move token the rules engine refused.
type Rejected struct {
	Number int
	Color  Color
	Token  string
	Reason string
}

// Rules is the chess rules collaborator. Apply must leave the position
// untouched when it returns an error.
type Rules interface {
	Apply(text string, lenient bool) error
	WhiteToMove() bool
	FEN() string
}

// RulesFactory returns a board in the starting position.
type RulesFactory func() Rules

func defaultRules() Rules {
	return rules.NewBoard()
}

// Tags holds the header tag pairs of a game.
type Tags map[string]string

// Game is a parsed game record. Its board always reflects HalfMoves
// applied in order.
type Game struct {
	Tags      Tags
	HalfMoves []HalfMove
	// Rejected lists move tokens that were dropped while parsing.
	Rejected []Rejected
	// Termination is the result token found at the end of the move text.
	Termination string

	board    Rules
	newRules RulesFactory
}

// FEN returns the position after the last half-move.
func (g *Game) FEN() string {
	return g.board.FEN()
}

// Board returns the rules state after the last half-move.
func (g *Game) Board() Rules {
	return g.board
}

// FullMoves groups the half-moves into numbered full moves.
func (g *Game) FullMoves() []FullMove {
	moves := make([]FullMove, 0, (len(g.HalfMoves)+1)/2)
	for i := range g.HalfMoves {
		h := g.HalfMoves[i]
		if h.Color == White {
			moves = append(moves, FullMove{Number: len(moves) + 1, White: h})
			continue
		}
		if len(moves) == 0 {
			continue
		}
		moves[len(moves)-1].Black = &h
	}
	return moves
}

// Result returns the Result tag, falling back to the move text terminator.
func (g *Game) Result() string {
	if r, ok := g.Tags[TagResult]; ok && r != "" {
		return r
	}
	if g.Termination != "" {
		return g.Termination
	}
	return "*"
}

// StartTime decodes the StartTime tag, which holds epoch milliseconds.
func (g *Game) StartTime() (time.Time, bool) {
	return parseStartTime(g.Tags[TagStartTime])
}

func parseStartTime(v string) (time.Time, bool) {
	if v == "" || v == Unknown {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
