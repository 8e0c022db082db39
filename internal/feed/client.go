// Package feed reads tournaments, round indexes and games from a live
// broadcast JSON feed.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thyrook/pgnrelay/internal/pgn"
)

// DefaultBaseURL is the public live broadcast pool.
const DefaultBaseURL = "https://1.pool.livechesscloud.com/get"

// Client fetches feed documents over HTTP. Failed requests are retried with
// exponential backoff; client errors (4xx) are not retried.
type Client struct {
	baseURL     string
	http        *http.Client
	logger      *zap.Logger
	attempts    uint
	retryDelay  time.Duration
	concurrency int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetry sets the number of attempts per request and the base backoff
// delay.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		c.retryDelay = delay
	}
}

// WithConcurrency bounds the number of games fetched at once.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// NewClient creates a client for the feed rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: 10 * time.Second},
		logger:      zap.NewNop(),
		attempts:    3,
		retryDelay:  200 * time.Millisecond,
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TournamentURL returns the tournament document location.
func (c *Client) TournamentURL(id string) string {
	return fmt.Sprintf("%s/%s/tournament.json", c.baseURL, id)
}

// RoundIndexURL returns the pairing index location of a round.
func (c *Client) RoundIndexURL(id string, round int) string {
	return fmt.Sprintf("%s/%s/round-%d/index.json", c.baseURL, id, round)
}

// GameURL returns the location of one game document.
func (c *Client) GameURL(id string, round, game int) string {
	return fmt.Sprintf("%s/%s/round-%d/game-%d.json?poll", c.baseURL, id, round, game)
}

// GetTournament fetches the tournament document.
func (c *Client) GetTournament(ctx context.Context, id string) (pgn.Tournament, error) {
	var t pgn.Tournament
	if err := c.getJSON(ctx, c.TournamentURL(id), &t); err != nil {
		return pgn.Tournament{}, fmt.Errorf("tournament %s: %w", id, err)
	}
	return t, nil
}

// GetRoundIndex fetches the pairings of one round. Every pairing is
// stamped with its round and 1-based game number.
func (c *Client) GetRoundIndex(ctx context.Context, id string, round int) (pgn.RoundIndex, error) {
	var idx pgn.RoundIndex
	if err := c.getJSON(ctx, c.RoundIndexURL(id, round), &idx); err != nil {
		return pgn.RoundIndex{}, fmt.Errorf("round %d index: %w", round, err)
	}
	idx.Round = round
	for i := range idx.Pairings {
		idx.Pairings[i].Round = round
		idx.Pairings[i].Index = i + 1
	}
	return idx, nil
}

// GetRoundIndexes fetches several round indexes concurrently. The first
// failure cancels the rest.
func (c *Client) GetRoundIndexes(ctx context.Context, id string, rounds []int) ([]pgn.RoundIndex, error) {
	out := make([]pgn.RoundIndex, len(rounds))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, round := range rounds {
		i, round := i, round
		g.Go(func() error {
			idx, err := c.GetRoundIndex(ctx, id, round)
			if err != nil {
				return err
			}
			out[i] = idx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetGame fetches one game document.
func (c *Client) GetGame(ctx context.Context, id string, round, game int) (pgn.RawGame, error) {
	var g pgn.RawGame
	if err := c.getJSON(ctx, c.GameURL(id, round, game), &g); err != nil {
		return pgn.RawGame{}, fmt.Errorf("round %d game %d: %w", round, game, err)
	}
	return g, nil
}

// GameRef addresses one game of a tournament.
type GameRef struct {
	Round int
	Game  int
}

// FetchGames fetches every referenced game. The batch never fails as a
// whole: each result carries its own value or error, in the order of refs.
func (c *Client) FetchGames(ctx context.Context, id string, refs []GameRef) []pgn.Fetched {
	out := make([]pgn.Fetched, len(refs))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			f := pgn.Fetched{Round: ref.Round, Game: ref.Game}
			raw, err := c.GetGame(ctx, id, ref.Round, ref.Game)
			if err != nil {
				f.Err = err
			} else {
				f.Value = &raw
			}
			out[i] = f
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, f := range out {
		if !f.OK() {
			failed++
		}
	}
	c.logger.Debug("games fetched",
		zap.String("tournament", id),
		zap.Int("total", len(out)),
		zap.Int("failed", failed))
	return out
}

// statusError is a non-2xx response.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.url, e.code)
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("Cache-Control", "no-store")

			resp, err := c.http.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				err := &statusError{url: url, code: resp.StatusCode}
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return retry.Unrecoverable(err)
				}
				return err
			}
			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode %s: %w", url, err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			c.logger.Debug("feed request failed, retrying",
				zap.String("url", url),
				zap.Uint("attempt", n+1),
				zap.Error(err))
			return retry.BackOffDelay(n, err, config)
		}),
	)
}

// IsStatus reports whether err came from a response with the given HTTP
// status code.
func IsStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == code
}
