// Package rules adapts github.com/notnil/chess to the narrow move-application
// interface the PGN codec needs.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// ErrIllegalMove is returned when a move text matches no legal move.
var ErrIllegalMove = errors.New("illegal move")

// Board is a chess game from the standard starting position.
type Board struct {
	game *chess.Game
}

// NewBoard creates a board in the starting position.
func NewBoard() *Board {
	return &Board{game: chess.NewGame()}
}

// Apply plays a move given in text form. In strict mode only Standard
// Algebraic Notation is accepted. In lenient mode annotation glyphs, check
// marks, capture marks, zero castling, promotion without '=', long algebraic
// and UCI forms are accepted as well.
func (b *Board) Apply(text string, lenient bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty move", ErrIllegalMove)
	}

	pos := b.game.Position()
	if m, err := (chess.AlgebraicNotation{}).Decode(pos, text); err == nil {
		if err := b.game.Move(m); err == nil {
			return nil
		}
	}
	if !lenient {
		return fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}

	m := b.match(text)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}
	if err := b.game.Move(m); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIllegalMove, text, err)
	}
	return nil
}

// match compares the normalized text against every legal move rendered in
// each notation the board understands.
func (b *Board) match(text string) *chess.Move {
	want := normalize(text)
	if want == "" {
		return nil
	}

	pos := b.game.Position()
	notations := []chess.Notation{
		chess.AlgebraicNotation{},
		chess.LongAlgebraicNotation{},
		chess.UCINotation{},
	}
	for _, n := range notations {
		for _, m := range b.game.ValidMoves() {
			if normalize(n.Encode(pos, m)) == want {
				return m
			}
		}
	}
	return nil
}

// normalize strips everything that does not identify a move.
func normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '+', '#', '!', '?', 'x', ':', '=':
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, "0", "O")
	if strings.HasPrefix(s, "O-O") {
		return s
	}
	return strings.ReplaceAll(s, "-", "")
}

// WhiteToMove reports whether white is the side to move.
func (b *Board) WhiteToMove() bool {
	return b.game.Position().Turn() == chess.White
}

// FEN returns the current position in Forsyth-Edwards Notation.
func (b *Board) FEN() string {
	return b.game.Position().String()
}

// Plies returns the number of half-moves played.
func (b *Board) Plies() int {
	return len(b.game.Moves())
}

// History returns the moves played so far in Standard Algebraic Notation.
func (b *Board) History() []string {
	positions := b.game.Positions()
	moves := b.game.Moves()

	history := make([]string, 0, len(moves))
	for i, m := range moves {
		history = append(history, chess.AlgebraicNotation{}.Encode(positions[i], m))
	}
	return history
}
