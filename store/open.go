// Package store opens the ledger store selected by configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warp/voice-bridge/billing"
	memstore "github.com/warp/voice-bridge/billing/store"
	"github.com/warp/voice-bridge/config"
	"github.com/warp/voice-bridge/store/firestore"
	"github.com/warp/voice-bridge/store/mongo"
	"github.com/warp/voice-bridge/store/postgres"
	"github.com/warp/voice-bridge/store/sqlite"
	"google.golang.org/api/option"
)

// Open connects to the backend described by src.
//
// A degraded Firestore source (no usable credentials) first tries application
// default credentials. If that fails the client is created unauthenticated, so
// the process still starts and individual ledger calls fail instead.
func Open(ctx context.Context, src config.StoreSource, logger *slog.Logger) (billing.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch src.Driver {
	case config.DriverSQLite:
		return sqlite.New(src.DSN)
	case config.DriverPostgres:
		return postgres.New(ctx, src.DSN)
	case config.DriverMongo:
		return mongo.New(ctx, src.DSN, src.Database)
	case config.DriverMemory:
		return memstore.NewMemory(), nil
	case config.DriverFirestore:
		if len(src.Credentials) > 0 {
			return firestore.New(ctx, src.ProjectID, option.WithCredentialsJSON(src.Credentials))
		}
		s, err := firestore.New(ctx, src.ProjectID)
		if err == nil {
			return s, nil
		}
		logger.Warn("no default credentials, firestore client is unauthenticated",
			"project_id", src.ProjectID, "error", err)
		return firestore.New(ctx, src.ProjectID, option.WithoutAuthentication())
	default:
		return nil, fmt.Errorf("unknown store driver %q", src.Driver)
	}
}
