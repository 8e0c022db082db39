package pgn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/thyrook/pgnrelay/internal/clock"
)

// Result is the game outcome code used by the broadcast feed.
type Result string

const (
	WhiteWin      Result = "WHITEWIN"
	BlackWin      Result = "BLACKWIN"
	Draw          Result = "DRAW"
	WhiteForfeit  Result = "WHITEFORFAIT"
	BlackForfeit  Result = "BLACKFORFAIT"
	ResultUnknown Result = ""
)

// Token returns the PGN result token.
func (r Result) Token() string {
	switch r {
	case WhiteWin, WhiteForfeit:
		return "1-0"
	case BlackWin, BlackForfeit:
		return "0-1"
	case Draw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// ParseResult maps a PGN result token back to a result code. Forfeits are
// indistinguishable from wins once written.
func ParseResult(token string) Result {
	switch token {
	case "1-0":
		return WhiteWin
	case "0-1":
		return BlackWin
	case "1/2-1/2":
		return Draw
	default:
		return ResultUnknown
	}
}

// Player is a participant as listed in a round's pairings.
type Player struct {
	Title      string `json:"title"`
	LastName   string `json:"lname"`
	FirstName  string `json:"fname"`
	MiddleName string `json:"mname,omitempty"`
	Federation string `json:"federation"`
	Rating     int    `json:"rating,omitempty"`
	FideID     int    `json:"fideid,omitempty"`
}

// FlagFunc renders a federation code for display, usually as a flag.
type FlagFunc func(federation string) string

// DisplayName joins flag, title, last name and first name, skipping empty
// fields. It returns "?" when nothing is left.
func (p Player) DisplayName(flag FlagFunc) string {
	fed := strings.TrimSpace(p.Federation)
	if flag != nil && fed != "" {
		fed = flag(fed)
	}
	parts := lo.Compact(lo.Map([]string{fed, p.Title, p.LastName, p.FirstName}, func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
	name := strings.Join(parts, " ")
	if strings.Trim(name, " ,") == "" {
		return Unknown
	}
	return name
}

// RoundSummary is a tournament round as listed in the tournament document.
type RoundSummary struct {
	Count int `json:"count"`
	Live  int `json:"live"`
}

// Tournament is the tournament document of the feed.
type Tournament struct {
	Name        string         `json:"name"`
	Location    string         `json:"location"`
	Country     string         `json:"country,omitempty"`
	TimeControl string         `json:"timecontrol"`
	Rounds      []RoundSummary `json:"rounds"`
}

// Pairing identifies one game of a round.
type Pairing struct {
	White  Player `json:"white"`
	Black  Player `json:"black"`
	Result Result `json:"result"`
	Live   bool   `json:"live"`
	Round  int    `json:"-"`
	Index  int    `json:"-"`
}

// RoundIndex is the pairing list of one round.
type RoundIndex struct {
	Round    int       `json:"-"`
	Date     string    `json:"date"`
	Pairings []Pairing `json:"pairings"`
}

// RawGame is a game document: plies as "<move> <clockSeconds>+<emtSeconds>".
type RawGame struct {
	Live      bool     `json:"live"`
	FirstMove int64    `json:"firstMove"`
	Result    Result   `json:"result"`
	Moves     []string `json:"moves"`
}

type writeOptions struct {
	plyCount bool
	flag     FlagFunc
}

// WriteOption configures Serialize and Aggregate.
type WriteOption func(*writeOptions)

// WithoutPlyCount leaves the PlyCount tag out of the header.
func WithoutPlyCount() WriteOption {
	return func(o *writeOptions) {
		o.plyCount = false
	}
}

// WithFlags renders player federations through f.
func WithFlags(f FlagFunc) WriteOption {
	return func(o *writeOptions) {
		o.flag = f
	}
}

func newWriteOptions(opts []WriteOption) writeOptions {
	o := writeOptions{plyCount: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Serialize writes one game as PGN.
func Serialize(t Tournament, p Pairing, g RawGame, round int, date string, opts ...WriteOption) string {
	o := newWriteOptions(opts)

	result := g.Result
	if result == ResultUnknown {
		result = p.Result
	}

	startTime := Unknown
	if g.FirstMove > 0 {
		startTime = strconv.FormatInt(g.FirstMove, 10)
	}
	if date != "" {
		date = strings.ReplaceAll(date, "-", ".")
	} else {
		date = Unknown
	}

	tags := [][2]string{
		{TagEvent, orUnknown(t.Name)},
		{TagSite, orUnknown(t.Location)},
		{TagDate, date},
		{TagRound, strconv.Itoa(round)},
		{TagWhite, p.White.DisplayName(o.flag)},
		{TagBlack, p.Black.DisplayName(o.flag)},
		{TagResult, result.Token()},
		{TagStartTime, startTime},
	}
	if o.plyCount {
		tags = append(tags, [2]string{TagPlyCount, strconv.Itoa(len(g.Moves))})
	}
	tags = append(tags, [2]string{TagTimeControl, orUnknown(t.TimeControl)})

	var b strings.Builder
	for _, tag := range tags {
		fmt.Fprintf(&b, "[%s \"%s\"]\n", tag[0], escape(tag[1]))
	}
	b.WriteString("\n")

	movetext := formatMoves(g.Moves)
	if movetext != "" {
		b.WriteString(movetext)
		b.WriteString(" ")
	}
	b.WriteString(result.Token())

	return b.String()
}

// formatMoves renders raw plies as move text. White plies carry the move
// number; plies whose time suffix is missing or not numeric are written
// without comments.
func formatMoves(plies []string) string {
	parts := make([]string, 0, len(plies)*2)
	for i, ply := range plies {
		fields := strings.Fields(ply)
		if len(fields) == 0 {
			continue
		}
		if i%2 == 0 {
			parts = append(parts, fmt.Sprintf("%d.", (i+2)/2))
		}

		move := fields[0]
		if len(fields) < 2 {
			parts = append(parts, move)
			continue
		}
		clk, emt, ok := plyTimes(fields[1])
		if !ok {
			parts = append(parts, move)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s {[%%clk %s]} {[%%emt %s]}", move, clk, emt))
	}
	return strings.Join(parts, " ")
}

func plyTimes(suffix string) (clk, emt string, ok bool) {
	mainPart, emtPart, found := strings.Cut(suffix, "+")
	if !found {
		return "", "", false
	}
	main, err := strconv.Atoi(mainPart)
	if err != nil {
		return "", "", false
	}
	spent, err := strconv.Atoi(emtPart)
	if err != nil {
		return "", "", false
	}
	if clk, err = clock.SecondsToTime(main); err != nil {
		return "", "", false
	}
	if emt, err = clock.SecondsToTime(spent); err != nil {
		return "", "", false
	}
	return clk, emt, true
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return s
}
