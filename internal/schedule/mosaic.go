package schedule

import (
	"sync"

	"go.uber.org/zap"

	"github.com/thyrook/pgnrelay/internal/clock"
	"github.com/thyrook/pgnrelay/internal/pgn"
)

// Mosaic runs independent replays for several boards at once, keyed by
// board index.
type Mosaic struct {
	clock  clock.Clock
	logger *zap.Logger

	mu     sync.Mutex
	boards map[int]*Replayer
}

// NewMosaic creates an empty mosaic.
func NewMosaic(clk clock.Clock, logger *zap.Logger) *Mosaic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mosaic{
		clock:  clk,
		logger: logger,
		boards: make(map[int]*Replayer),
	}
}

// Start replays g on the given board, replacing that board's replay.
func (m *Mosaic) Start(index int, g *pgn.Game, cb Callbacks) *Handle {
	m.mu.Lock()
	r, ok := m.boards[index]
	if !ok {
		r = NewReplayer(m.clock, m.logger.With(zap.Int("board", index)))
		m.boards[index] = r
	}
	m.mu.Unlock()

	return r.Start(g, cb)
}

// Stop cancels the replay on one board.
func (m *Mosaic) Stop(index int) {
	m.mu.Lock()
	r, ok := m.boards[index]
	m.mu.Unlock()

	if ok {
		r.Stop()
	}
}

// StopAll cancels every board's replay.
func (m *Mosaic) StopAll() {
	m.mu.Lock()
	replayers := make([]*Replayer, 0, len(m.boards))
	for _, r := range m.boards {
		replayers = append(replayers, r)
	}
	m.mu.Unlock()

	for _, r := range replayers {
		r.Stop()
	}
}

// Len returns the number of boards that have been started.
func (m *Mosaic) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.boards)
}
