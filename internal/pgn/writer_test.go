package pgn

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTournament() Tournament {
	return Tournament{
		Name:        "Belgrade Open",
		Location:    "Belgrade",
		TimeControl: "90+30",
		Rounds:      []RoundSummary{{Count: 2}, {Count: 0}, {Count: 1}},
	}
}

func testPairing() Pairing {
	return Pairing{
		White: Player{Title: "GM", LastName: "Ivanov", FirstName: "Ivan", Federation: "SRB"},
		Black: Player{LastName: "Petrov"},
	}
}

func TestSerialize(t *testing.T) {
	game := RawGame{
		FirstMove: 1700000000000,
		Result:    WhiteWin,
		Moves:     []string{"e4 5400+5", "e5 5390+10", "Nf3"},
	}

	got := Serialize(testTournament(), testPairing(), game, 3, "2024-05-01")

	want := `[Event "Belgrade Open"]
[Site "Belgrade"]
[Date "2024.05.01"]
[Round "3"]
[White "SRB GM Ivanov Ivan"]
[Black "Petrov"]
[Result "1-0"]
[StartTime "1700000000000"]
[PlyCount "3"]
[TimeControl "90+30"]

1. e4 {[%clk 1:30:00]} {[%emt 0:00:05]} e5 {[%clk 1:29:50]} {[%emt 0:00:10]} 2. Nf3 1-0`
	assert.Equal(t, want, got)
}

func TestSerializeDefaults(t *testing.T) {
	got := Serialize(Tournament{}, Pairing{}, RawGame{}, 1, "", WithoutPlyCount())

	want := `[Event "?"]
[Site "?"]
[Date "?"]
[Round "1"]
[White "?"]
[Black "?"]
[Result "*"]
[StartTime "?"]
[TimeControl "?"]

*`
	assert.Equal(t, want, got)
}

func TestSerializeNonNumericTimes(t *testing.T) {
	game := RawGame{Moves: []string{"e4 abc+5", "e5 5390", "Nf3 10+x", "Nc6 -5+1"}}

	got := Serialize(testTournament(), testPairing(), game, 1, "")
	movetext := got[strings.Index(got, "\n\n")+2:]

	assert.Equal(t, "1. e4 e5 2. Nf3 Nc6 *", movetext)
}

func TestSerializeFallsBackToPairingResult(t *testing.T) {
	p := testPairing()
	p.Result = Draw

	got := Serialize(testTournament(), p, RawGame{}, 1, "")
	assert.Contains(t, got, `[Result "1/2-1/2"]`)
	assert.True(t, strings.HasSuffix(got, "1/2-1/2"))
}

func TestResultTokens(t *testing.T) {
	tests := map[Result]string{
		WhiteWin:      "1-0",
		BlackWin:      "0-1",
		Draw:          "1/2-1/2",
		WhiteForfeit:  "1-0",
		BlackForfeit:  "0-1",
		ResultUnknown: "*",
		"ABANDONED":   "*",
	}
	for r, want := range tests {
		assert.Equal(t, want, r.Token(), "result %q", r)
	}
}

func TestDisplayName(t *testing.T) {
	flag := func(fed string) string { return "[" + fed + "]" }

	assert.Equal(t, "[SRB] GM Ivanov Ivan", Player{Title: "GM", LastName: "Ivanov", FirstName: "Ivan", Federation: "SRB"}.DisplayName(flag))
	assert.Equal(t, "Ivanov", Player{LastName: " Ivanov "}.DisplayName(nil))
	assert.Equal(t, "?", Player{}.DisplayName(flag))
	assert.Equal(t, "?", Player{Title: " ", LastName: ","}.DisplayName(nil))
}

func TestRoundTrip(t *testing.T) {
	g := Parse(scenarioPGN)
	extended := Parse(`[Event "Belgrade Open"]
[Site "Belgrade"]
[Date "2024.05.01"]
[Round "3"]
[White "GM Ivanov Ivan"]
[Black "Petrov Petar"]
[Result "1-0"]
[StartTime "1700000000000"]
[TimeControl "90+30"]

1. e4 {[%clk 1:30:00]} {[%emt 0:00:05]} e5 {[%clk 1:29:50]} {[%emt 0:00:10]} 2. Nf3 3. Nc3 1-0`)

	for _, original := range []*Game{g, extended} {
		tournament := Tournament{
			Name:        original.Tags[TagEvent],
			Location:    original.Tags[TagSite],
			TimeControl: original.Tags[TagTimeControl],
		}
		pairing := Pairing{
			White: Player{LastName: original.Tags[TagWhite]},
			Black: Player{LastName: original.Tags[TagBlack]},
		}
		start, ok := original.StartTime()
		require.True(t, ok)
		raw := RawGame{
			FirstMove: start.UnixMilli(),
			Result:    ParseResult(original.Result()),
			Moves:     original.RawMoves(),
		}

		text := Serialize(tournament, pairing, raw, 3, original.Tags[TagDate], WithoutPlyCount())
		again := Parse(text)

		assert.Equal(t, tuples(original), tuples(again))
		assert.Equal(t, original.Tags, again.Tags)
		assert.Equal(t, original.Result(), again.Result())
	}
}

func TestAggregate(t *testing.T) {
	rounds := []RoundIndex{
		{Round: 1, Date: "2024-05-01", Pairings: []Pairing{testPairing(), {White: Player{LastName: "A"}, Black: Player{LastName: "B"}}}},
		{Round: 3, Date: "2024-05-03", Pairings: []Pairing{testPairing()}},
	}
	results := []Fetched{
		{Round: 1, Game: 1, Value: &RawGame{Moves: []string{"e4"}}},
		{Round: 1, Game: 2, Err: errors.New("timeout")},
		{Round: 3, Game: 1, Value: &RawGame{Moves: []string{"d4"}, Result: Draw}},
	}

	got, err := Aggregate(testTournament(), rounds, results)
	require.NoError(t, err)

	games, err := SplitGames(strings.NewReader(got))
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Contains(t, games[0], `[Date "2024.05.01"]`)
	assert.Contains(t, games[1], `[Round "3"]`)
	assert.Contains(t, games[1], `[Date "2024.05.03"]`)
	assert.Contains(t, got, "1. e4 *\n\n[Event")
}

func TestAggregateFallsBackToFirstIndex(t *testing.T) {
	rounds := []RoundIndex{{Round: 1, Date: "2024-05-01", Pairings: []Pairing{testPairing()}}}
	results := []Fetched{{Round: 5, Game: 1, Value: &RawGame{}}}

	got, err := Aggregate(testTournament(), rounds, results)
	require.NoError(t, err)
	assert.Contains(t, got, `[Round "5"]`)
	assert.Contains(t, got, `[Date "2024.05.01"]`)
}

func TestAggregateErrors(t *testing.T) {
	rounds := []RoundIndex{{Round: 1, Pairings: []Pairing{testPairing()}}}

	_, err := Aggregate(testTournament(), rounds, []Fetched{{Round: 1, Game: 1, Err: errors.New("boom")}})
	assert.ErrorIs(t, err, ErrNoGames)

	_, err = Aggregate(testTournament(), rounds, nil)
	assert.ErrorIs(t, err, ErrNoGames)

	_, err = Aggregate(testTournament(), rounds, []Fetched{{Round: 1, Game: 4, Value: &RawGame{}}})
	assert.ErrorIs(t, err, ErrNoPairing)
}

func TestSplitGames(t *testing.T) {
	doc := "[Event \"A\"]\n\n1. e4 *\n\n[Event \"B\"]\n[Site \"?\"]\n\n1. d4 d5\n2. c4 *\n"

	games, err := SplitGames(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, "[Event \"A\"]\n\n1. e4 *", games[0])
	assert.Equal(t, []string{"d4", "d5", "c4"}, moves(Parse(games[1])))
}

type tuple struct {
	Color   Color
	Move    string
	Clock   string
	Elapsed string
}

func tuples(g *Game) []tuple {
	out := make([]tuple, 0, len(g.HalfMoves))
	for _, h := range g.HalfMoves {
		out = append(out, tuple{h.Color, h.Move, h.Clock, h.Elapsed})
	}
	return out
}
