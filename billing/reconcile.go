/*
reconcile.go - Ledger drift detection

PURPOSE:
  The account invariant balance == sum(transactions[].amount) is intended but
  not enforced by every store (accounts are created out-of-band, and a store
  that loses half of a write would break it). The reconciler periodically walks
  all accounts and reports the ones that drifted. It never corrects anything.

DESIGN:
  - Background goroutine on a ticker, runs once immediately on Start
  - Each run produces a DriftReport, kept as LastReport
  - Drifted account count is exported as a Prometheus gauge

CONFIGURATION:
  - Interval: how often to check (default: 1 hour)
  - Enabled:  whether the background loop runs (Run can always be called directly)

USAGE:
  r := billing.NewReconciler(store, logger)
  r.Start()
  defer r.Stop()

SEE ALSO:
  - api/handlers.go: POST /admin/reconcile runs it on demand
*/
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Reconciler checks accounts for balance drift.
type Reconciler struct {
	Store    Store
	Interval time.Duration
	Enabled  bool

	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu sync.RWMutex
	last   *DriftReport
}

// DriftReport is the result of one reconciliation run.
type DriftReport struct {
	CheckedAt time.Time
	Accounts  int
	Drifted   []AccountDrift
}

// AccountDrift describes one inconsistent account.
type AccountDrift struct {
	UserID    string
	Balance   decimal.Decimal
	LedgerSum decimal.Decimal
	Drift     decimal.Decimal
}

// NewReconciler creates a reconciler with a one hour interval.
func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		Store:    store,
		Interval: time.Hour,
		Enabled:  true,
		logger:   logger.With("component", "reconciler"),
	}
}

// Start begins the background loop.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Enabled || r.Interval <= 0 {
		r.logger.Info("reconciler disabled, not starting")
		return
	}
	if r.ticker != nil {
		return
	}

	r.ticker = time.NewTicker(r.Interval)
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.run()

	r.logger.Info("reconciler started", "interval", r.Interval.String())
}

// Stop halts the background loop and waits for an in-flight run.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticker != nil {
		r.ticker.Stop()
		close(r.stop)
		r.wg.Wait()
		r.ticker = nil
		r.logger.Info("reconciler stopped")
	}
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	r.runOnce()
	for {
		select {
		case <-r.ticker.C:
			r.runOnce()
		case <-r.stop:
			return
		}
	}
}

func (r *Reconciler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := r.Run(ctx); err != nil {
		r.logger.Error("reconciliation failed", "error", err)
	}
}

// Run checks every account once.
func (r *Reconciler) Run(ctx context.Context) (*DriftReport, error) {
	accounts, err := r.Store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	report := &DriftReport{CheckedAt: time.Now().UTC(), Accounts: len(accounts)}
	for _, acc := range accounts {
		drift := acc.Drift()
		if drift.IsZero() {
			continue
		}
		report.Drifted = append(report.Drifted, AccountDrift{
			UserID:    acc.ID,
			Balance:   acc.Balance,
			LedgerSum: acc.LedgerSum(),
			Drift:     drift,
		})
		r.logger.WarnContext(ctx, "ledger drift detected",
			"user_id", acc.ID, "balance", acc.Balance.String(), "drift", drift.String())
	}

	driftAccounts.Set(float64(len(report.Drifted)))
	r.lastMu.Lock()
	r.last = report
	r.lastMu.Unlock()

	r.logger.InfoContext(ctx, "reconciliation completed", "accounts", report.Accounts, "drifted", len(report.Drifted))
	return report, nil
}

// LastReport returns the most recent report, or nil before the first run.
func (r *Reconciler) LastReport() *DriftReport {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	return r.last
}
