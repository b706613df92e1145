package market

import (
	"context"
	"log"
	"time"
)

type SweepStats struct {
	Listings int `json:"listings"`
	Orders   int `json:"orders"`
	Pruned   int `json:"pruned"`
	Credits  int `json:"credits"`
}

// ExpireDue expires every active listing and order whose time is up, pays
// owed credits, then prunes resolved entities older than the retention
// window. Running it
// twice expires nothing the second time.
func (m *Manager) ExpireDue(ctx context.Context) SweepStats {
	var stats SweepStats
	now := m.clock.Now()

	for _, l := range m.store.ActiveListings() {
		if !l.ExpiredAt(now) {
			continue
		}
		won, err := m.expireListing(ctx, l)
		if err != nil {
			log.Printf("[Sweeper] Expiring listing %s: %v", l.ID, err)
		}
		if won {
			stats.Listings++
		}
	}
	for _, o := range m.store.ActiveOrders() {
		if !o.ExpiredAt(now) {
			continue
		}
		won, err := m.expireOrder(ctx, o)
		if err != nil {
			log.Printf("[Sweeper] Expiring order %s: %v", o.ID, err)
		}
		if won {
			stats.Orders++
		}
	}

	if m.credits != nil {
		stats.Credits = m.credits.Settle(ctx, m.escrow.Credit)
	}
	if m.cfg.Retention > 0 {
		stats.Pruned = m.store.Prune(now.Add(-m.cfg.Retention))
	}
	return stats
}

// Sweeper runs ExpireDue on a fixed interval.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
}

func NewSweeper(m *Manager, interval time.Duration) *Sweeper {
	return &Sweeper{manager: m, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("[Sweeper] Sweeping every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats := s.manager.ExpireDue(ctx)
			if stats.Listings+stats.Orders+stats.Pruned+stats.Credits > 0 {
				log.Printf("[Sweeper] Expired %d listings, %d orders; paid %d credits; pruned %d",
					stats.Listings, stats.Orders, stats.Credits, stats.Pruned)
			}
		}
	}
}
