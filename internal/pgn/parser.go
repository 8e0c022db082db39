package pgn

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/thyrook/pgnrelay/internal/clock"
)

var (
	tagLine     = regexp.MustCompile(`^\[(\w+)\s+"(.*)"\]$`)
	moveToken   = regexp.MustCompile(`\{[^}]*\}|\d+\.+|[^\s{}]+`)
	moveNumber  = regexp.MustCompile(`^\d+\.+$`)
	clkComment  = regexp.MustCompile(`\[%clk\s*([0-9:]+)\]`)
	emtComment  = regexp.MustCompile(`\[%emt\s*([0-9:]+)\]`)
	resultToken = map[string]bool{"1-0": true, "0-1": true, "1/2-1/2": true, "*": true}
)

type parseOptions struct {
	start    time.Time
	hasStart bool
	delay    time.Duration
	strict   bool
	newRules RulesFactory
}

// Option configures Parse.
type Option func(*parseOptions)

// WithStartTime sets the game start instant, overriding the StartTime tag.
func WithStartTime(t time.Time) Option {
	return func(o *parseOptions) {
		o.start = t
		o.hasStart = true
	}
}

// WithDelay shifts every scheduled time by the broadcast delay.
func WithDelay(d time.Duration) Option {
	return func(o *parseOptions) {
		o.delay = d
	}
}

// WithDelayMinutes is WithDelay for a delay given in whole minutes.
func WithDelayMinutes(minutes int) Option {
	return WithDelay(time.Duration(minutes) * time.Minute)
}

// WithStrictMoves accepts only exact Standard Algebraic Notation.
func WithStrictMoves() Option {
	return func(o *parseOptions) {
		o.strict = true
	}
}

// WithRules replaces the rules engine used to validate moves.
func WithRules(f RulesFactory) Option {
	return func(o *parseOptions) {
		o.newRules = f
	}
}

// candidate is a move token with the comments that followed it.
type candidate struct {
	number  int
	color   Color
	token   string
	clock   string
	elapsed string
}

// Parse reads one game. Parsing is best-effort: malformed tag lines are
// skipped and move tokens the rules engine refuses end up in
// Game.Rejected instead of failing the parse.
func Parse(text string, opts ...Option) *Game {
	o := parseOptions{newRules: defaultRules}
	for _, opt := range opts {
		opt(&o)
	}

	header, movetext := splitSections(text)

	g := &Game{
		Tags:     parseTags(header),
		board:    o.newRules(),
		newRules: o.newRules,
	}

	if !o.hasStart {
		o.start, o.hasStart = parseStartTime(g.Tags[TagStartTime])
	}

	candidates, stray := tokenize(movetext, g)
	g.Rejected = append(g.Rejected, stray...)

	var elapsedTotal time.Duration
	for _, c := range candidates {
		if c.color == Black && g.board.WhiteToMove() || c.color == White && !g.board.WhiteToMove() {
			g.Rejected = append(g.Rejected, Rejected{Number: c.number, Color: c.color, Token: c.token, Reason: "not this side's turn"})
			continue
		}
		if err := g.board.Apply(c.token, !o.strict); err != nil {
			g.Rejected = append(g.Rejected, Rejected{Number: c.number, Color: c.color, Token: c.token, Reason: err.Error()})
			continue
		}

		h := HalfMove{
			ID:      len(g.HalfMoves) + 1,
			Color:   c.color,
			Move:    c.token,
			Clock:   c.clock,
			Elapsed: c.elapsed,
		}
		spent := elapsedDuration(c.elapsed)
		if o.hasStart {
			h.ScheduledAt = o.start.Add(o.delay + elapsedTotal + spent)
		}
		elapsedTotal += spent

		g.HalfMoves = append(g.HalfMoves, h)
	}

	return g
}

// splitSections separates the tag header from the move text. The header is
// the leading run of bracketed lines, normally closed by a blank line.
func splitSections(text string) (header []string, movetext string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(strings.TrimSpace(text), "\n")

	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "[") {
			break
		}
		header = append(header, line)
	}

	return header, strings.Join(lines[i:], " ")
}

func parseTags(lines []string) Tags {
	tags := make(Tags, len(lines))
	for _, line := range lines {
		m := tagLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		tags[m[1]] = unescape(m[2])
	}
	return tags
}

// tokenize walks the move text and produces white/black candidates per move
// number. Tokens that cannot belong to a move slot come back as stray.
func tokenize(movetext string, g *Game) (candidates []candidate, stray []Rejected) {
	number := 0
	slot := 0
	last := -1

	for _, tok := range moveToken.FindAllString(movetext, -1) {
		switch {
		case strings.HasPrefix(tok, "{"):
			if last < 0 {
				continue
			}
			if m := clkComment.FindStringSubmatch(tok); m != nil {
				candidates[last].clock = m[1]
			}
			if m := emtComment.FindStringSubmatch(tok); m != nil {
				candidates[last].elapsed = m[1]
			}
		case moveNumber.MatchString(tok):
			number, _ = strconv.Atoi(strings.TrimRight(tok, "."))
			slot = 0
			if strings.HasSuffix(tok, "...") {
				slot = 1
			}
			last = -1
		case resultToken[tok]:
			g.Termination = tok
			last = -1
		case strings.HasPrefix(tok, "$"):
			// numeric annotation glyph
		default:
			if number == 0 || slot > 1 {
				stray = append(stray, Rejected{Number: number, Token: tok, Reason: "no move slot"})
				last = -1
				continue
			}
			color := White
			if slot == 1 {
				color = Black
			}
			slot++
			candidates = append(candidates, candidate{number: number, color: color, token: tok})
			last = len(candidates) - 1
		}
	}

	return candidates, stray
}

// elapsedDuration treats a missing or malformed emt as no time spent.
func elapsedDuration(emt string) time.Duration {
	if emt == "" {
		return 0
	}
	seconds, err := clock.TimeToSeconds(emt)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func unescape(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	return strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(v)
}

func escape(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
}
