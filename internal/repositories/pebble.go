package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/shared"
	"github.com/vmihailenco/msgpack/v5"
)

const pebbleKeyPrefix = "queue/"

var errStoreClosed = errors.New("pebble store is closed")

// pebbleEnvelope is the msgpack value stored under each queue key.
type pebbleEnvelope struct {
	State     []byte    `msgpack:"state"`
	Revision  int64     `msgpack:"revision"`
	CreatedAt time.Time `msgpack:"created_at"`
	UpdatedAt time.Time `msgpack:"updated_at"`
}

// PebbleQueueStore implements [QueueStore] on an embedded Pebble database.
//
// Pebble has no conditional write, so Update holds a lock owned by the identity
// across read, compare and a synced commit. Identities never share a lock.
//
// Pebble panics on use after Close, so every call into db runs under a read lock on
// lifecycle and Close takes the write lock.
type PebbleQueueStore struct {
	db      *pebble.DB
	timeout time.Duration
	locks   sync.Map // did -> *sync.Mutex

	lifecycle sync.RWMutex // guards closed and db against Close
	closed    bool
}

// OpenPebbleQueueStore opens (or creates) a Pebble database in dir.
func OpenPebbleQueueStore(dir string, timeout time.Duration) (*PebbleQueueStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: pebble store needs a directory", shared.ErrInvalidConfig)
	}
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open pebble: %v", shared.ErrStoreUnavailable, err)
	}

	return &PebbleQueueStore{db: db, timeout: timeout}, nil
}

func pebbleKey(did string) []byte {
	return []byte(pebbleKeyPrefix + did)
}

func (s *PebbleQueueStore) lockFor(did string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(did, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// read loads the envelope for did; ok is false when the key is absent.
// The caller holds lifecycle for reading.
func (s *PebbleQueueStore) read(did string) (env pebbleEnvelope, ok bool, err error) {
	if s.closed {
		return env, false, errStoreClosed
	}

	val, closer, err := s.db.Get(pebbleKey(did))
	if errors.Is(err, pebble.ErrNotFound) {
		return env, false, nil
	}
	if err != nil {
		return env, false, err
	}
	defer closer.Close()

	if err := msgpack.Unmarshal(val, &env); err != nil {
		return env, false, fmt.Errorf("corrupt queue record for %s: %w", did, err)
	}
	return env, true, nil
}

// Get retrieves the queue for did.
func (s *PebbleQueueStore) Get(ctx context.Context, did string) (models.QueueRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return models.QueueRecord{}, false, fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
	}

	s.lifecycle.RLock()
	env, ok, err := s.read(did)
	s.lifecycle.RUnlock()
	if err != nil {
		return models.QueueRecord{}, false, fmt.Errorf("%w: failed to read queue: %v", shared.ErrStoreUnavailable, err)
	}
	if !ok {
		return models.QueueRecord{}, false, nil
	}

	return models.QueueRecord{
		DID:       did,
		State:     json.RawMessage(env.State),
		Revision:  env.Revision,
		UpdatedAt: env.UpdatedAt.UTC(),
	}, true, nil
}

// Update writes state for did under the identity's lock.
func (s *PebbleQueueStore) Update(ctx context.Context, did string, state json.RawMessage, expected *int64) (models.QueueRecord, error) {
	if err := validateWrite(did, state); err != nil {
		return models.QueueRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	mu := s.lockFor(did)
	mu.Lock()
	defer mu.Unlock()

	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()

	current, exists, err := s.read(did)
	if err != nil {
		return models.QueueRecord{}, fmt.Errorf("%w: failed to read queue: %v", shared.ErrStoreUnavailable, err)
	}

	now := time.Now().UTC()
	next := pebbleEnvelope{
		State:     append([]byte(nil), state...),
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if exists {
		if expected != nil && *expected != current.Revision {
			return models.QueueRecord{}, conflictError(did, *expected)
		}
		next.Revision = current.Revision + 1
		next.CreatedAt = current.CreatedAt
	}

	data, err := msgpack.Marshal(&next)
	if err != nil {
		return models.QueueRecord{}, fmt.Errorf("failed to encode queue record: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return models.QueueRecord{}, fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
	}
	if err := s.db.Set(pebbleKey(did), data, pebble.Sync); err != nil {
		return models.QueueRecord{}, fmt.Errorf("%w: failed to write queue: %v", shared.ErrStoreUnavailable, err)
	}

	return models.QueueRecord{
		DID:       did,
		State:     json.RawMessage(next.State),
		Revision:  next.Revision,
		UpdatedAt: now,
	}, nil
}

// Close closes the Pebble database. Later calls are no-ops.
// It waits for in-flight reads and writes to finish.
func (s *PebbleQueueStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
