package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/shared"
)

// QueueStore persists one [models.QueueRecord] per identity.
type QueueStore interface {
	// Get returns the latest committed record. The boolean is false when the identity has no record yet.
	Get(ctx context.Context, did string) (models.QueueRecord, bool, error)

	// Update writes state for did.
	//
	// A missing record is created at revision 1 whatever expected holds.
	// A nil expected overwrites unconditionally; otherwise expected must equal the stored revision or
	// the call fails with [shared.ErrRevisionConflict] and nothing changes.
	Update(ctx context.Context, did string, state json.RawMessage, expected *int64) (models.QueueRecord, error)

	// Close releases the underlying database.
	Close() error
}

const defaultStoreTimeout = 5 * time.Second

// Open creates the [QueueStore] named by cfg.Driver, running migrations where the backend needs them.
func Open(ctx context.Context, cfg shared.DatabaseConfig) (QueueStore, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}

	switch cfg.Driver {
	case shared.DriverSQLite, "":
		db, err := shared.NewDatabase(shared.DatabaseDSN(cfg.Path, cfg.BusyTimeout))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
		}

		if cfg.Path == ":memory:" {
			shared.ConfigureDatabase(db, 1, 1)
		} else if cfg.MaxOpenConns > 0 {
			shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)
		}

		if err := shared.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return NewQueueRepository(db, timeout), nil

	case shared.DriverPebble:
		return OpenPebbleQueueStore(cfg.Path, timeout)

	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", shared.ErrInvalidConfig, cfg.Driver)
	}
}

// validateWrite checks the arguments shared by every backend's Update.
func validateWrite(did string, state json.RawMessage) error {
	rec := models.QueueRecord{DID: did, State: state}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

// conflictError reports a rejected conditional write.
func conflictError(did string, expected int64) error {
	return fmt.Errorf("%w: queue %s is not at revision %d", shared.ErrRevisionConflict, did, expected)
}
