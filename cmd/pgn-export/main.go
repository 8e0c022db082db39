package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"
	"go.uber.org/zap"

	"github.com/thyrook/pgnrelay/internal/archive"
	"github.com/thyrook/pgnrelay/internal/config"
	"github.com/thyrook/pgnrelay/internal/feed"
	"github.com/thyrook/pgnrelay/internal/logger"
	"github.com/thyrook/pgnrelay/internal/pgn"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "no data: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := config.NewFlags("pgn-export")
	fs := flags.FlagSet()
	tournament := fs.String("tournament", "", "tournament id")
	round := fs.String("round", "", "round number (empty exports the whole tournament)")
	game := fs.String("game", "", "game number within the round (needs -round)")
	out := fs.String("out", "", "write the PGN to this file instead of stdout")
	profileDir := fs.String("profile", "", "write a CPU profile into this directory")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Live broadcast PGN export")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  pgn-export -tournament=<id> [-round=N [-game=M]] [-out=file.pgn]")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}

	cfg, err := flags.Parse(args)
	if err != nil {
		return err
	}
	if *tournament == "" || (*game != "" && *round == "") {
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

	client := feed.NewClient(cfg.Feed.BaseURL,
		feed.WithHTTPClient(&http.Client{Timeout: cfg.Feed.Timeout()}),
		feed.WithLogger(log.Named("feed")),
		feed.WithRetry(uint(cfg.Feed.RetryAttempts), cfg.Feed.RetryDelay()),
		feed.WithConcurrency(cfg.Feed.Concurrency))

	var opts []pgn.WriteOption
	if !cfg.Replay.PlyCount {
		opts = append(opts, pgn.WithoutPlyCount())
	}

	log.Info("Exporting PGN",
		zap.String("tournament", *tournament),
		zap.String("round", *round),
		zap.String("game", *game))

	var text string
	switch {
	case *game != "":
		text, err = client.GamePGN(ctx, *tournament, *round, *game, opts...)
	case *round != "":
		text, err = client.RoundPGN(ctx, *tournament, *round, opts...)
	default:
		text, err = client.TournamentPGN(ctx, *tournament, opts...)
	}
	if err != nil {
		log.Error("Export failed", zap.Error(err))
		return err
	}

	if cfg.Archive.DBPath != "" {
		if err := store(cfg, log, archiveKey(*tournament, *round, *game), text); err != nil {
			log.Warn("Failed to archive export", zap.Error(err))
		}
	}

	if *out != "" {
		return os.WriteFile(*out, []byte(text+"\n"), 0644)
	}
	_, err = fmt.Fprintln(stdout, text)
	return err
}

func store(cfg *config.Config, log *zap.Logger, key, text string) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	st, err := archive.Open(cfg.Archive.DBPath, log.Named("archive"))
	if err != nil {
		return err
	}
	defer st.Close()

	changed, err := st.Put(key, text)
	if err != nil {
		return err
	}
	stats, err := st.Stats()
	if err != nil {
		return err
	}
	log.Info("Export archived",
		zap.String("key", key),
		zap.Bool("changed", changed),
		zap.Int("snapshots", stats.Snapshots),
		zap.String("size", stats.Size.String()))
	return nil
}

func archiveKey(tournament, round, game string) string {
	r, _ := feed.ValidateNumber(round)
	g, _ := feed.ValidateNumber(game)
	return archive.Key(tournament, r, g)
}
