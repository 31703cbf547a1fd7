package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/shared"
)

// QueueRepository implements [QueueStore] on SQLite.
type QueueRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewQueueRepository creates a new [QueueRepository] with the given database connection.
// The queues table must already exist (see [shared.RunMigrations]).
func NewQueueRepository(db *sql.DB, timeout time.Duration) *QueueRepository {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &QueueRepository{db: db, timeout: timeout}
}

// upsertQueue is the whole concurrency controller: the insert arm creates revision 1,
// the update arm only fires when no revision is expected or the stored one matches.
// A suppressed update returns no row.
const upsertQueue = `
	INSERT INTO queues (did, state, revision, created_at, updated_at)
	VALUES (?, ?, 1, ?, ?)
	ON CONFLICT(did) DO UPDATE
	SET state = excluded.state,
		revision = queues.revision + 1,
		updated_at = excluded.updated_at
	WHERE ? IS NULL OR queues.revision = ?
	RETURNING revision
`

// Get retrieves the queue for did.
func (r *QueueRepository) Get(ctx context.Context, did string) (models.QueueRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT state, revision, updated_at FROM queues WHERE did = ?`

	var (
		state     string
		revision  int64
		updatedAt time.Time
	)

	err := r.db.QueryRowContext(ctx, query, did).Scan(&state, &revision, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.QueueRecord{}, false, nil
	}
	if err != nil {
		return models.QueueRecord{}, false, fmt.Errorf("%w: failed to query queue: %v", shared.ErrStoreUnavailable, err)
	}

	return models.QueueRecord{
		DID:       did,
		State:     json.RawMessage(state),
		Revision:  revision,
		UpdatedAt: updatedAt.UTC(),
	}, true, nil
}

// Update writes state for did in one round-trip.
func (r *QueueRepository) Update(ctx context.Context, did string, state json.RawMessage, expected *int64) (models.QueueRecord, error) {
	if err := validateWrite(did, state); err != nil {
		return models.QueueRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	now := time.Now().UTC()

	var guard sql.NullInt64
	if expected != nil {
		guard = sql.NullInt64{Int64: *expected, Valid: true}
	}

	var revision int64
	err := r.db.QueryRowContext(ctx, upsertQueue, did, string(state), now, now, guard, guard).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return models.QueueRecord{}, conflictError(did, guard.Int64)
	}
	if err != nil {
		return models.QueueRecord{}, fmt.Errorf("%w: failed to update queue: %v", shared.ErrStoreUnavailable, err)
	}

	return models.QueueRecord{
		DID:       did,
		State:     append(json.RawMessage(nil), state...),
		Revision:  revision,
		UpdatedAt: now,
	}, nil
}

// Close closes the database connection.
func (r *QueueRepository) Close() error {
	return r.db.Close()
}
