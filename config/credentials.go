package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/warp/voice-bridge/billing"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverFirestore = "firestore"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverMongo     = "mongo"
	DriverMemory    = "memory"
)

// FallbackProjectID is used when no Firebase credentials are configured.
const FallbackProjectID = "call-now-24582"

// Credential origins reported in StoreSource.Origin.
const (
	OriginDiscreteVars   = "discrete-env-vars"
	OriginServiceAccount = "service-account-json"
	OriginFallback       = "fallback-project"
	OriginDSN            = "dsn"
	OriginNone           = "none"
)

// StoreSource is everything needed to open the ledger store.
type StoreSource struct {
	Driver string
	DSN    string

	// Database is the Mongo database name.
	Database string

	// Firestore only
	ProjectID   string
	Credentials []byte

	Origin string
	// Degraded is set when the store will run without explicit credentials.
	Degraded bool
	// Warning explains a degraded or partial resolution.
	Warning string
}

// ResolveStore picks the ledger store backend and its credentials. It is
// called once at start-up.
func ResolveStore(cfg *Config) (StoreSource, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if driver == "" {
		driver = DriverFirestore
	}

	switch driver {
	case DriverFirestore:
		return resolveFirestore(cfg), nil
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return StoreSource{}, missing("SQLITE_PATH")
		}
		return StoreSource{Driver: driver, DSN: cfg.SQLitePath, Origin: OriginDSN}, nil
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return StoreSource{}, missing("DATABASE_URL")
		}
		return StoreSource{Driver: driver, DSN: cfg.DatabaseURL, Origin: OriginDSN}, nil
	case DriverMongo:
		if cfg.MongoURI == "" {
			return StoreSource{}, missing("MONGO_URI")
		}
		if cfg.MongoDatabase == "" {
			return StoreSource{}, missing("MONGO_DATABASE")
		}
		return StoreSource{Driver: driver, DSN: cfg.MongoURI, Database: cfg.MongoDatabase, Origin: OriginDSN}, nil
	case DriverMemory:
		return StoreSource{Driver: driver, Origin: OriginNone}, nil
	default:
		return StoreSource{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func missing(key string) error {
	return fmt.Errorf("%w: %s is not set", billing.ErrConfigurationMissing, key)
}

// resolveFirestore tries, in order: the three discrete FIREBASE_* variables,
// the full FIREBASE_SERVICE_ACCOUNT document, and finally the bare fallback
// project with no credentials.
func resolveFirestore(cfg *Config) StoreSource {
	if cfg.FirebaseProjectID != "" && cfg.FirebasePrivateKey != "" && cfg.FirebaseClientEmail != "" {
		doc, err := buildServiceAccount(cfg)
		if err == nil {
			return StoreSource{
				Driver:      DriverFirestore,
				ProjectID:   cfg.FirebaseProjectID,
				Credentials: doc,
				Origin:      OriginDiscreteVars,
			}
		}
		return fallback(fmt.Sprintf("discrete firebase variables unusable: %v", err))
	}

	if cfg.FirebaseServiceAccount != "" {
		projectID, err := serviceAccountProject([]byte(cfg.FirebaseServiceAccount))
		if err != nil {
			return fallback(fmt.Sprintf("FIREBASE_SERVICE_ACCOUNT unusable: %v", err))
		}
		return StoreSource{
			Driver:      DriverFirestore,
			ProjectID:   projectID,
			Credentials: []byte(cfg.FirebaseServiceAccount),
			Origin:      OriginServiceAccount,
		}
	}

	return fallback("missing firebase credentials")
}

func fallback(reason string) StoreSource {
	return StoreSource{
		Driver:    DriverFirestore,
		ProjectID: FallbackProjectID,
		Origin:    OriginFallback,
		Degraded:  true,
		Warning:   reason,
	}
}

type serviceAccount struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id,omitempty"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
}

func buildServiceAccount(cfg *Config) ([]byte, error) {
	key := strings.ReplaceAll(cfg.FirebasePrivateKey, `\n`, "\n")
	if !strings.Contains(key, "PRIVATE KEY") {
		return nil, errors.New("FIREBASE_PRIVATE_KEY is not a PEM key")
	}
	return json.Marshal(serviceAccount{
		Type:                    "service_account",
		ProjectID:               cfg.FirebaseProjectID,
		PrivateKeyID:            cfg.FirebasePrivateKeyID,
		PrivateKey:              key,
		ClientEmail:             cfg.FirebaseClientEmail,
		AuthURI:                 "https://accounts.google.com/o/oauth2/auth",
		TokenURI:                "https://oauth2.googleapis.com/token",
		AuthProviderX509CertURL: "https://www.googleapis.com/oauth2/v1/certs",
		ClientX509CertURL:       "https://www.googleapis.com/robot/v1/metadata/x509/" + url.PathEscape(cfg.FirebaseClientEmail),
	})
}

func serviceAccountProject(raw []byte) (string, error) {
	var sa serviceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	if sa.ProjectID == "" {
		return "", errors.New("project_id is empty")
	}
	return sa.ProjectID, nil
}
