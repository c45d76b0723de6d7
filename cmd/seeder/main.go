// Command seeder creates ledger accounts out-of-band, against the store the
// server is configured for.
//
//	seeder -id alice -balance 5
//	seeder -count 100 -prefix load -balance 10
//
// Accounts start at zero and receive their opening balance as a TOPUP entry
// (paymentId "opening"), so balance always equals the transaction sum.
// Existing accounts are skipped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/warp/voice-bridge/billing"
	"github.com/warp/voice-bridge/config"
	"github.com/warp/voice-bridge/logger"
	"github.com/warp/voice-bridge/store"
)

const openingPaymentRef = "opening"

func main() {
	id := flag.String("id", "", "account id to create")
	count := flag.Int("count", 0, "number of accounts to create as <prefix>-0001...")
	prefix := flag.String("prefix", "user", "id prefix used with -count")
	balance := flag.String("balance", "0", "opening balance")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	opening, err := decimal.NewFromString(*balance)
	if err != nil || opening.IsNegative() {
		log.Error("balance must be a non-negative decimal", "balance", *balance)
		os.Exit(2)
	}

	ids := accountIDs(*id, *prefix, *count)
	if len(ids) == 0 {
		log.Error("nothing to seed: pass -id or -count")
		os.Exit(2)
	}

	src, err := config.ResolveStore(cfg)
	if err != nil {
		log.Error("cannot resolve ledger store", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	ledgerStore, err := store.Open(ctx, src, log)
	if err != nil {
		log.Error("failed to open ledger store", "driver", src.Driver, "error", err)
		os.Exit(1)
	}
	defer ledgerStore.Close()

	created, skipped, err := seed(ctx, billing.NewLedger(ledgerStore, nil, log), ids, opening)
	if err != nil {
		log.Error("seeding failed", "created", created, "skipped", skipped, "error", err)
		os.Exit(1)
	}
	log.Info("seeding done", "driver", src.Driver, "created", created, "skipped", skipped)
}

func accountIDs(id, prefix string, count int) []string {
	var ids []string
	if id != "" {
		ids = append(ids, id)
	}
	for i := 1; i <= count; i++ {
		ids = append(ids, fmt.Sprintf("%s-%04d", prefix, i))
	}
	return ids
}

// seed creates each account at zero and credits the opening balance.
func seed(ctx context.Context, ledger *billing.Ledger, ids []string, opening decimal.Decimal) (created, skipped int, err error) {
	for _, id := range ids {
		err := ledger.Store.CreateAccount(ctx, billing.Account{ID: id, Balance: decimal.Zero})
		if errors.Is(err, billing.ErrAccountExists) {
			skipped++
			continue
		}
		if err != nil {
			return created, skipped, fmt.Errorf("create %s: %w", id, err)
		}

		if opening.IsPositive() {
			if _, err := ledger.ApplyDelta(ctx, id, opening, billing.NewTopUpEntry(opening, openingPaymentRef)); err != nil {
				return created, skipped, fmt.Errorf("opening balance for %s: %w", id, err)
			}
		}
		created++
	}
	return created, skipped, nil
}
