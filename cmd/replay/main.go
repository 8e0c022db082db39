package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"go.uber.org/zap"

	"github.com/thyrook/pgnrelay/internal/clock"
	"github.com/thyrook/pgnrelay/internal/config"
	"github.com/thyrook/pgnrelay/internal/feed"
	"github.com/thyrook/pgnrelay/internal/logger"
	"github.com/thyrook/pgnrelay/internal/pgn"
	"github.com/thyrook/pgnrelay/internal/relay"
	"github.com/thyrook/pgnrelay/internal/schedule"
)

var (
	errUsage  = errors.New("usage")
	errNoData = errors.New("no games to replay")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, clock.Real()); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "no data: %v\n", err)
		}
		os.Exit(1)
	}
}

type options struct {
	pgnPath    string
	tournament string
	round      string
	game       string
	board      int
	startMs    int64
}

func run(ctx context.Context, args []string, stdout io.Writer, clk clock.Clock) error {
	flags := config.NewFlags("replay")
	fs := flags.FlagSet()
	var o options
	fs.StringVar(&o.pgnPath, "pgn", "", "PGN file to replay, optionally .bz2 or .zst compressed (may hold several games)")
	fs.StringVar(&o.tournament, "tournament", "", "replay games fetched from the live feed instead")
	fs.StringVar(&o.round, "round", "", "round to fetch (needs -tournament)")
	fs.StringVar(&o.game, "game", "", "game to fetch (needs -round)")
	fs.IntVar(&o.board, "board", 0, "replay only this board, 1-based (0 replays all)")
	fs.Int64Var(&o.startMs, "start", 0, "game start in epoch milliseconds, overriding the StartTime tag")
	profileDir := fs.String("profile", "", "write a CPU profile into this directory")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Delayed PGN replay")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  replay -pgn=games.pgn [-board=N] [-delay=15]")
		fmt.Fprintln(os.Stderr, "  replay -tournament=<id> -round=N [-game=M] [-delay=15]")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}

	cfg, err := flags.Parse(args)
	if err != nil {
		return err
	}
	if (o.pgnPath == "") == (o.tournament == "") || o.board < 0 {
		fs.Usage()
		return errUsage
	}
	if *profileDir != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*profileDir), profile.Quiet, profile.NoShutdownHook).Stop()
	}

	log, err := logger.New(logger.Level(cfg.Interface.LogLevel), cfg.Interface.LogPath, cfg.Interface.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	texts, err := loadGames(ctx, cfg, log, o)
	if err != nil {
		return err
	}
	games, err := selectBoards(parseGames(texts, cfg, o, log), o.board)
	if err != nil {
		return err
	}

	out := &syncWriter{w: stdout}
	var pub *relay.Publisher
	if cfg.Relay.NatsURL != "" {
		p, nc, err := relay.Connect(cfg.Relay.NatsURL, cfg.Relay.SubjectPrefix, log.Named("relay"))
		if err != nil {
			return err
		}
		defer nc.Close()
		pub = p
	}
	relayID := o.tournament
	if relayID == "" {
		relayID = "local"
	}

	mosaic := schedule.NewMosaic(clk, log.Named("replay"))
	defer mosaic.StopAll()

	handles := make([]*schedule.Handle, 0, len(games))
	for _, b := range games {
		v := newBoardView(b.index, b.game, clk, out, log)
		v.showCurrent(clk.Now(), cfg.Replay.DelayMinutes)

		cb := v.callbacks()
		if pub != nil {
			cb = pub.Callbacks(relayID, b.index, cb)
		}
		handles = append(handles, mosaic.Start(b.index, b.game, cb))
	}

	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			mosaic.StopAll()
			return nil
		}
	}
	return nil
}

func loadGames(ctx context.Context, cfg *config.Config, log *zap.Logger, o options) ([]string, error) {
	if o.pgnPath != "" {
		return pgn.ReadFile(o.pgnPath)
	}

	client := feed.NewClient(cfg.Feed.BaseURL,
		feed.WithHTTPClient(&http.Client{Timeout: cfg.Feed.Timeout()}),
		feed.WithLogger(log.Named("feed")),
		feed.WithRetry(uint(cfg.Feed.RetryAttempts), cfg.Feed.RetryDelay()),
		feed.WithConcurrency(cfg.Feed.Concurrency))

	var (
		text string
		err  error
	)
	switch {
	case o.game != "":
		text, err = client.GamePGN(ctx, o.tournament, o.round, o.game)
	case o.round != "":
		text, err = client.RoundPGN(ctx, o.tournament, o.round)
	default:
		text, err = client.TournamentPGN(ctx, o.tournament)
	}
	if err != nil {
		return nil, err
	}
	return pgn.SplitGames(strings.NewReader(text))
}

func parseGames(texts []string, cfg *config.Config, o options, log *zap.Logger) []*pgn.Game {
	opts := []pgn.Option{pgn.WithDelayMinutes(cfg.Replay.DelayMinutes)}
	if !cfg.Replay.Lenient {
		opts = append(opts, pgn.WithStrictMoves())
	}
	if o.startMs > 0 {
		opts = append(opts, pgn.WithStartTime(time.UnixMilli(o.startMs)))
	}

	games := make([]*pgn.Game, 0, len(texts))
	for i, text := range texts {
		g := pgn.Parse(text, opts...)
		for _, r := range g.Rejected {
			log.Warn("Move rejected",
				zap.Int("board", i+1),
				zap.Int("move_number", r.Number),
				zap.String("token", r.Token),
				zap.String("reason", r.Reason))
		}
		if _, ok := g.StartTime(); !ok && o.startMs == 0 {
			log.Warn("Game has no start time, moves are shown at once", zap.Int("board", i+1))
		}
		games = append(games, g)
	}
	return games
}

type board struct {
	index int
	game  *pgn.Game
}

func selectBoards(games []*pgn.Game, only int) ([]board, error) {
	if len(games) == 0 {
		return nil, errNoData
	}
	if only > 0 {
		if only > len(games) {
			return nil, fmt.Errorf("%w: board %d of %d", errNoData, only, len(games))
		}
		return []board{{index: only, game: games[only-1]}}, nil
	}

	boards := make([]board, len(games))
	for i, g := range games {
		boards[i] = board{index: i + 1, game: g}
	}
	return boards, nil
}

// boardView prints the progress of one board and runs the countdown of the
// side to move.
type boardView struct {
	index int
	game  *pgn.Game
	clock clock.Clock
	out   io.Writer
	log   *zap.Logger

	mu        sync.Mutex
	lastClock map[pgn.Color]string
	countdown clock.CountdownSlot
}

func newBoardView(index int, g *pgn.Game, clk clock.Clock, out io.Writer, log *zap.Logger) *boardView {
	return &boardView{
		index:     index,
		game:      g,
		clock:     clk,
		out:       out,
		log:       log.With(zap.Int("board", index)),
		lastClock: make(map[pgn.Color]string),
	}
}

func (v *boardView) label() string {
	white := v.game.Tags[pgn.TagWhite]
	black := v.game.Tags[pgn.TagBlack]
	if white == "" && black == "" {
		return fmt.Sprintf("board %d", v.index)
	}
	return fmt.Sprintf("board %d (%s - %s)", v.index, white, black)
}

// showCurrent prints what a delayed viewer sees right now and when the last
// move will become visible.
func (v *boardView) showCurrent(now time.Time, delayMinutes int) {
	if h, ok := schedule.CurrentHalfMove(v.game.HalfMoves, now); ok {
		fmt.Fprintf(v.out, "%s: now at %s\n", v.label(), describe(h))
		v.mu.Lock()
		v.lastClock[h.Color] = h.Clock
		v.mu.Unlock()
	} else {
		fmt.Fprintf(v.out, "%s: waiting for the first move\n", v.label())
	}

	if n := len(v.game.HalfMoves); n > 0 && v.game.HalfMoves[n-1].Scheduled() {
		played := v.game.HalfMoves[n-1].ScheduledAt.Add(-time.Duration(delayMinutes) * time.Minute)
		if shown, err := clock.AddMinutes(played.Format("15:04:05"), delayMinutes); err == nil {
			v.log.Info("Replay scheduled", zap.String("last_move_visible_at", shown))
		}
	}
}

func (v *boardView) callbacks() schedule.Callbacks {
	return schedule.Callbacks{
		OnUpdate: func(h pgn.HalfMove) {
			fmt.Fprintf(v.out, "%s: %s\n", v.label(), describe(h))
			v.startCountdown(h)
		},
		OnComplete: func() {
			v.countdown.Stop()
			fmt.Fprintf(v.out, "%s: %s\n", v.label(), v.game.Result())
		},
		OnStopped: func() {
			v.countdown.Stop()
			fmt.Fprintf(v.out, "%s: stopped\n", v.label())
		},
	}
}

// startCountdown runs the clock of the side that moves next, starting from
// its last known reading.
func (v *boardView) startCountdown(h pgn.HalfMove) {
	v.mu.Lock()
	if h.Clock != "" {
		v.lastClock[h.Color] = h.Clock
	}
	next := pgn.White
	if h.Color == pgn.White {
		next = pgn.Black
	}
	from, ok := v.lastClock[next]
	v.mu.Unlock()

	if !ok || from == "" {
		v.countdown.Stop()
		return
	}
	_, err := v.countdown.Start(v.clock, from,
		func(remaining string) {
			v.log.Debug("Clock", zap.String("side", string(next)), zap.String("remaining", remaining))
		},
		func() {
			v.log.Info("Clock ran out", zap.String("side", string(next)))
		})
	if err != nil {
		v.log.Debug("Countdown not started", zap.Error(err))
	}
}

func describe(h pgn.HalfMove) string {
	number := (h.ID + 1) / 2
	move := fmt.Sprintf("%d. %s", number, h.Move)
	if h.Color == pgn.Black {
		move = fmt.Sprintf("%d... %s", number, h.Move)
	}
	if h.Clock != "" {
		move += " (" + h.Clock + ")"
	}
	return move
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
