/*
scheduler.go - Automated usage scheduler

PURPOSE:
  Periodically marks approved grants whose period has passed as USED. The
  engine itself never sets USED; this consumer flips it once the days were
  actually taken.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Detects approved grants whose end date is before today
  - Each grant is flipped inside its own store transaction, so one bad
    row does not block the rest

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewUsageScheduler(store)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - recovery/lifecycle.go: The transitions the engine does own
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/recovery-engine/recovery"
)

// UsageScheduler marks expired approved grants as used.
type UsageScheduler struct {
	Store         recovery.TxStore
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	// today is swappable for tests.
	today func() recovery.Date
}

// NewUsageScheduler creates a new scheduler.
func NewUsageScheduler(store recovery.TxStore) *UsageScheduler {
	return &UsageScheduler{
		Store:         store,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
		today:         recovery.Today,
	}
}

// Start begins the scheduler.
func (us *UsageScheduler) Start() {
	us.mu.Lock()
	defer us.mu.Unlock()

	if !us.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	us.ticker = time.NewTicker(us.CheckInterval)
	us.wg.Add(1)

	go us.run()

	log.Printf("[Scheduler] Started with check interval: %v", us.CheckInterval)
}

// Stop stops the scheduler.
func (us *UsageScheduler) Stop() {
	us.mu.Lock()
	defer us.mu.Unlock()

	if us.ticker != nil {
		us.ticker.Stop()
		close(us.stop)
		us.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (us *UsageScheduler) run() {
	defer us.wg.Done()

	// Run immediately on start
	us.checkAndProcess()

	for {
		select {
		case <-us.ticker.C:
			us.checkAndProcess()
		case <-us.stop:
			return
		}
	}
}

func (us *UsageScheduler) checkAndProcess() {
	ctx := context.Background()
	today := us.today()

	expired, err := us.Store.ListApprovedEnding(ctx, today)
	if err != nil {
		log.Printf("[Scheduler] Error listing expired grants: %v", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	processed := 0
	for _, g := range expired {
		if err := us.markUsed(ctx, g.TenantID, g.ID); err != nil {
			log.Printf("[Scheduler] Error marking grant %s used: %v", g.ID, err)
			continue
		}
		processed++
	}

	log.Printf("[Scheduler] Completed: %d of %d grants marked used", processed, len(expired))
}

func (us *UsageScheduler) markUsed(ctx context.Context, tenantID, grantID string) error {
	return us.Store.WithTx(ctx, func(s recovery.Store) error {
		grant, err := s.GetGrant(ctx, tenantID, grantID)
		if err != nil {
			return err
		}
		// Re-check inside the transaction; a concurrent cancel wins.
		if grant == nil || grant.Status != recovery.GrantApproved {
			return nil
		}
		grant.Status = recovery.GrantUsed
		grant.UpdatedAt = time.Now()
		return s.UpdateGrant(ctx, grant)
	})
}

// RunNow triggers an immediate check (for testing/admin).
func (us *UsageScheduler) RunNow() {
	us.checkAndProcess()
}
