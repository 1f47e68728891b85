package world

import (
	"context"
	"sync"
	"time"

	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/rumor"
	"go.uber.org/zap"
)

// TickSink receives the outcome of every daily rumor tick.
type TickSink interface {
	OnDailyTick(ctx context.Context, at time.Time, stats rumor.TickStats) error
}

// TickSinkFunc adapts a function to TickSink.
type TickSinkFunc func(ctx context.Context, at time.Time, stats rumor.TickStats) error

func (f TickSinkFunc) OnDailyTick(ctx context.Context, at time.Time, stats rumor.TickStats) error {
	return f(ctx, at, stats)
}

// DailyTicker is a ClockListener that runs one rumor propagation pass per
// simulated day, using atlas positions and the social source's edges.
type DailyTicker struct {
	interval    time.Duration // world time between passes
	lastBeat    time.Time
	network     *rumor.Network
	atlas       *Atlas
	social      SocialSource
	radius      float64
	probability float64
	sinks       []TickSink
	mu          sync.Mutex
	logger      *zap.Logger
}

// NewDailyTicker creates the ticker. A nil social source means no social
// edges; spreading then relies on proximity alone.
func NewDailyTicker(
	interval time.Duration,
	network *rumor.Network,
	atlas *Atlas,
	social SocialSource,
	spreadRadius, spreadProbability float64,
	logger *zap.Logger,
) *DailyTicker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &DailyTicker{
		interval:    interval,
		network:     network,
		atlas:       atlas,
		social:      social,
		radius:      spreadRadius,
		probability: spreadProbability,
		logger:      logger,
	}
}

// AddSink registers a sink notified after each pass.
func (d *DailyTicker) AddSink(s TickSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// OnTick implements ClockListener.
func (d *DailyTicker) OnTick(worldTime time.Time) {
	d.mu.Lock()
	if d.lastBeat.IsZero() {
		d.lastBeat = worldTime
		d.mu.Unlock()
		return
	}
	if worldTime.Sub(d.lastBeat) < d.interval {
		d.mu.Unlock()
		return
	}
	d.lastBeat = worldTime
	d.mu.Unlock()

	d.FireNow(worldTime)
}

// FireNow runs a pass immediately, bypassing the interval check.
func (d *DailyTicker) FireNow(worldTime time.Time) rumor.TickStats {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var edges map[string][]string
	if d.social != nil {
		var err error
		edges, err = d.social.SocialEdges(ctx)
		if err != nil {
			d.logger.Warn("social edges unavailable, spreading by proximity only",
				zap.Error(err))
			edges = nil
		}
	}
	var locations map[string]memory.Point
	if d.atlas != nil {
		locations = d.atlas.Positions()
	}

	stats := d.network.DailyTick(locations, edges, d.radius, d.probability)
	d.logger.Info("rumor day complete",
		zap.Time("world_time", worldTime),
		zap.Int("spread", stats.Spread),
		zap.Int("decayed", stats.Decayed),
		zap.Int("expired", stats.Expired),
		zap.Int("created", stats.Created),
		zap.Int("evicted", stats.Evicted))

	d.mu.Lock()
	sinks := make([]TickSink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.Unlock()

	for _, s := range sinks {
		if err := s.OnDailyTick(ctx, worldTime, stats); err != nil {
			d.logger.Warn("tick sink failed", zap.Error(err))
		}
	}
	return stats
}

// MemoryDecayer is a ClockListener that decays every memory store in a
// bank once per interval of world time.
type MemoryDecayer struct {
	bank     *memory.Bank
	interval time.Duration
	last     time.Time
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewMemoryDecayer creates the decayer.
func NewMemoryDecayer(bank *memory.Bank, interval time.Duration, logger *zap.Logger) *MemoryDecayer {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &MemoryDecayer{bank: bank, interval: interval, logger: logger}
}

// OnTick implements ClockListener.
func (m *MemoryDecayer) OnTick(worldTime time.Time) {
	m.mu.Lock()
	if m.last.IsZero() {
		m.last = worldTime
		m.mu.Unlock()
		return
	}
	if worldTime.Sub(m.last) < m.interval {
		m.mu.Unlock()
		return
	}
	m.last = worldTime
	m.mu.Unlock()

	if purged := m.bank.DecayAll(); purged > 0 {
		m.logger.Debug("faded memories purged", zap.Int("count", purged))
	}
}
