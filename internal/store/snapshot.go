package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/hearsay/internal/memory"
	"github.com/nidhogg/hearsay/internal/rumor"
	"github.com/nidhogg/hearsay/internal/sim"
	"go.uber.org/zap"
)

// Snapshotter writes the memory bank, the rumor network and the world time
// to a Repository after every daily tick, and loads them back at startup.
type Snapshotter struct {
	repo    Repository
	bank    *memory.Bank
	network *rumor.Network
	clock   sim.Clock
	logger  *zap.Logger
}

// NewSnapshotter creates a Snapshotter. Any of bank, network and clock may
// be nil; a nil clock skips saving the world time.
func NewSnapshotter(repo Repository, bank *memory.Bank, network *rumor.Network, clock sim.Clock, logger *zap.Logger) *Snapshotter {
	return &Snapshotter{repo: repo, bank: bank, network: network, clock: clock, logger: logger}
}

// ResumeTime returns the simulated time a restarted world should continue
// from: the later of the saved world time and the last rumor tick. It is
// the zero time when nothing was saved.
func ResumeTime(ctx context.Context, repo Repository) (time.Time, error) {
	at, err := repo.LoadWorldTime(ctx)
	if err != nil {
		return time.Time{}, err
	}
	_, lastTick, err := repo.LoadRumors(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if lastTick.After(at) {
		at = lastTick
	}
	return at, nil
}

// OnDailyTick persists the state left by the tick.
func (s *Snapshotter) OnDailyTick(ctx context.Context, at time.Time, _ rumor.TickStats) error {
	if err := s.Save(ctx); err != nil {
		return fmt.Errorf("snapshot at %s: %w", at.Format(time.RFC3339), err)
	}
	return nil
}

// Save writes every memory store and the active rumor set. Persisted stores
// whose owner left the bank are deleted.
func (s *Snapshotter) Save(ctx context.Context) error {
	if s.clock != nil {
		if err := s.repo.SaveWorldTime(ctx, s.clock.Now()); err != nil {
			return err
		}
	}

	stores, pruned := 0, 0
	if s.bank != nil {
		var firstErr error
		s.bank.Each(func(st *memory.Store) {
			if firstErr != nil {
				return
			}
			if err := s.repo.SaveMemories(ctx, st.Owner(), st.Records(), st.LastDecay()); err != nil {
				firstErr = err
				return
			}
			stores++
		})
		if firstErr != nil {
			return firstErr
		}

		owners, err := s.repo.Owners(ctx)
		if err != nil {
			return err
		}
		for _, owner := range owners {
			if _, ok := s.bank.Get(owner); ok {
				continue
			}
			if err := s.repo.DeleteMemories(ctx, owner); err != nil {
				return err
			}
			pruned++
		}
	}

	rumors := 0
	if s.network != nil {
		active := s.network.Active()
		if err := s.repo.SaveRumors(ctx, active, s.network.LastTick()); err != nil {
			return err
		}
		rumors = len(active)
	}

	s.logger.Debug("snapshot saved",
		zap.Int("stores", stores),
		zap.Int("pruned", pruned),
		zap.Int("rumors", rumors))
	return nil
}

// Restore loads every persisted store into the bank and the persisted rumors
// into the network.
func (s *Snapshotter) Restore(ctx context.Context) error {
	records := 0
	if s.bank != nil {
		owners, err := s.repo.Owners(ctx)
		if err != nil {
			return err
		}
		for _, owner := range owners {
			snaps, lastDecay, err := s.repo.LoadMemories(ctx, owner)
			if err != nil {
				return err
			}
			st := s.bank.Open(owner)
			if st == nil {
				continue
			}
			records += st.Restore(snaps, lastDecay)
		}
	}

	rumors := 0
	if s.network != nil {
		active, lastTick, err := s.repo.LoadRumors(ctx)
		if err != nil {
			return err
		}
		rumors = s.network.Restore(active, lastTick)
	}

	s.logger.Info("snapshot restored",
		zap.Int("records", records),
		zap.Int("rumors", rumors))
	return nil
}
