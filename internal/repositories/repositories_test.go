package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/qsync/internal/shared"
	"golang.org/x/sync/errgroup"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func newSQLiteStore(t *testing.T) QueueStore {
	t.Helper()
	repo := NewQueueRepository(setupTestDB(t), time.Second)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// newSQLiteFileStore opens a file-backed store through Open, so writers race on separate pooled connections.
func newSQLiteFileStore(t *testing.T) QueueStore {
	t.Helper()
	cfg := shared.DefaultConfig().Database
	cfg.Path = filepath.Join(t.TempDir(), "qsync.db")

	store, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to open sqlite file store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newPebbleStore(t *testing.T) QueueStore {
	t.Helper()
	store, err := OpenPebbleQueueStore(t.TempDir(), time.Second)
	if err != nil {
		t.Fatalf("failed to open pebble store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func rev(n int64) *int64 { return &n }

var backends = []struct {
	name string
	open func(t *testing.T) QueueStore
}{
	{name: "sqlite", open: newSQLiteStore},
	{name: "sqlite file", open: newSQLiteFileStore},
	{name: "pebble", open: newPebbleStore},
}

func TestQueueStore(t *testing.T) {
	ctx := context.Background()

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			t.Run("Get missing", func(t *testing.T) {
				store := b.open(t)

				_, ok, err := store.Get(ctx, "did:plc:nobody")
				if err != nil {
					t.Fatalf("failed to get queue: %v", err)
				}
				if ok {
					t.Error("expected no record for unknown identity")
				}
			})

			t.Run("Create without expected revision", func(t *testing.T) {
				store := b.open(t)
				state := json.RawMessage(`{"track_ids":[1,2,3],"current_index":0}`)

				rec, err := store.Update(ctx, "did:plc:u1", state, nil)
				if err != nil {
					t.Fatalf("failed to create queue: %v", err)
				}
				if rec.Revision != 1 {
					t.Errorf("expected revision 1, got %d", rec.Revision)
				}
				if rec.UpdatedAt.IsZero() {
					t.Error("updated_at should be set")
				}

				got, ok, err := store.Get(ctx, "did:plc:u1")
				if err != nil || !ok {
					t.Fatalf("failed to read back queue: ok=%v err=%v", ok, err)
				}
				if string(got.State) != string(state) {
					t.Errorf("expected state %s, got %s", state, got.State)
				}
				if got.Revision != 1 {
					t.Errorf("expected stored revision 1, got %d", got.Revision)
				}
				if !got.UpdatedAt.Equal(rec.UpdatedAt) {
					t.Errorf("expected updated_at %v, got %v", rec.UpdatedAt, got.UpdatedAt)
				}
			})

			t.Run("Create ignores expected revision", func(t *testing.T) {
				store := b.open(t)

				rec, err := store.Update(ctx, "did:plc:u1", json.RawMessage(`{}`), rev(41))
				if err != nil {
					t.Fatalf("expected creation to ignore expected revision: %v", err)
				}
				if rec.Revision != 1 {
					t.Errorf("expected revision 1, got %d", rec.Revision)
				}
			})

			t.Run("Unconditional overwrite", func(t *testing.T) {
				store := b.open(t)

				for i := 1; i <= 3; i++ {
					rec, err := store.Update(ctx, "did:plc:u1", json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)), nil)
					if err != nil {
						t.Fatalf("write %d failed: %v", i, err)
					}
					if rec.Revision != int64(i) {
						t.Errorf("write %d: expected revision %d, got %d", i, i, rec.Revision)
					}
				}
			})

			t.Run("Conditional update", func(t *testing.T) {
				store := b.open(t)

				first, err := store.Update(ctx, "did:plc:u1", json.RawMessage(`{"n":1}`), nil)
				if err != nil {
					t.Fatalf("failed to create queue: %v", err)
				}

				second, err := store.Update(ctx, "did:plc:u1", json.RawMessage(`{"n":2}`), rev(1))
				if err != nil {
					t.Fatalf("matching revision should succeed: %v", err)
				}
				if second.Revision != 2 {
					t.Errorf("expected revision 2, got %d", second.Revision)
				}
				if second.UpdatedAt.Before(first.UpdatedAt) {
					t.Error("updated_at should not move backwards")
				}

				_, err = store.Update(ctx, "did:plc:u1", json.RawMessage(`{"n":3}`), rev(1))
				if !errors.Is(err, shared.ErrRevisionConflict) {
					t.Fatalf("expected ErrRevisionConflict, got %v", err)
				}

				got, _, err := store.Get(ctx, "did:plc:u1")
				if err != nil {
					t.Fatalf("failed to get queue: %v", err)
				}
				if got.Revision != 2 || string(got.State) != `{"n":2}` {
					t.Errorf("conflict must not mutate the record, got revision %d state %s", got.Revision, got.State)
				}
			})

			t.Run("Identities are independent", func(t *testing.T) {
				store := b.open(t)

				if _, err := store.Update(ctx, "did:plc:a", json.RawMessage(`{}`), nil); err != nil {
					t.Fatal(err)
				}
				if _, err := store.Update(ctx, "did:plc:a", json.RawMessage(`{}`), nil); err != nil {
					t.Fatal(err)
				}

				rec, err := store.Update(ctx, "did:plc:b", json.RawMessage(`{}`), rev(2))
				if err != nil {
					t.Fatalf("failed to create second identity: %v", err)
				}
				if rec.Revision != 1 {
					t.Errorf("expected independent revision 1, got %d", rec.Revision)
				}
			})

			t.Run("Concurrent writers with the same expected revision", func(t *testing.T) {
				store := b.open(t)

				if _, err := store.Update(ctx, "did:plc:race", json.RawMessage(`{"n":0}`), nil); err != nil {
					t.Fatalf("failed to create queue: %v", err)
				}

				const writers = 8
				var wins, conflicts atomic.Int32
				g, gctx := errgroup.WithContext(ctx)
				for i := 0; i < writers; i++ {
					i := i
					g.Go(func() error {
						_, err := store.Update(gctx, "did:plc:race", json.RawMessage(fmt.Sprintf(`{"writer":%d}`, i)), rev(1))
						switch {
						case err == nil:
							wins.Add(1)
						case errors.Is(err, shared.ErrRevisionConflict):
							conflicts.Add(1)
						default:
							return err
						}
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					t.Fatalf("unexpected store error: %v", err)
				}

				if wins.Load() != 1 {
					t.Errorf("expected exactly one winner, got %d", wins.Load())
				}
				if conflicts.Load() != writers-1 {
					t.Errorf("expected %d conflicts, got %d", writers-1, conflicts.Load())
				}

				got, _, err := store.Get(ctx, "did:plc:race")
				if err != nil {
					t.Fatal(err)
				}
				if got.Revision != 2 {
					t.Errorf("expected revision 2 after the race, got %d", got.Revision)
				}
			})

			t.Run("Revision increments once per accepted write", func(t *testing.T) {
				store := b.open(t)

				const writers, perWriter = 4, 10
				g, gctx := errgroup.WithContext(ctx)
				for w := 0; w < writers; w++ {
					g.Go(func() error {
						for i := 0; i < perWriter; i++ {
							if _, err := store.Update(gctx, "did:plc:busy", json.RawMessage(`{}`), nil); err != nil {
								return err
							}
						}
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					t.Fatalf("unexpected store error: %v", err)
				}

				got, _, err := store.Get(ctx, "did:plc:busy")
				if err != nil {
					t.Fatal(err)
				}
				if got.Revision != writers*perWriter {
					t.Errorf("expected revision %d, got %d", writers*perWriter, got.Revision)
				}
			})
		})
	}
}

func TestQueueStoreErrors(t *testing.T) {
	ctx := context.Background()

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			t.Run("ValidationError", func(t *testing.T) {
				store := b.open(t)

				tc := []struct {
					name  string
					did   string
					state json.RawMessage
				}{
					{name: "empty identity", did: "", state: json.RawMessage(`{}`)},
					{name: "empty state", did: "did:plc:u1", state: nil},
					{name: "malformed state", did: "did:plc:u1", state: json.RawMessage(`{"track_ids":[`)},
				}

				for _, tt := range tc {
					t.Run(tt.name, func(t *testing.T) {
						_, err := store.Update(ctx, tt.did, tt.state, nil)
						if !errors.Is(err, shared.ErrInvalidInput) {
							t.Errorf("expected ErrInvalidInput, got %v", err)
						}
					})
				}
			})

			t.Run("Closed store is unavailable", func(t *testing.T) {
				store := b.open(t)
				if err := store.Close(); err != nil {
					t.Fatalf("failed to close store: %v", err)
				}

				_, _, err := store.Get(ctx, "did:plc:u1")
				if !errors.Is(err, shared.ErrStoreUnavailable) {
					t.Errorf("expected ErrStoreUnavailable from Get, got %v", err)
				}

				_, err = store.Update(ctx, "did:plc:u1", json.RawMessage(`{}`), nil)
				if !errors.Is(err, shared.ErrStoreUnavailable) {
					t.Errorf("expected ErrStoreUnavailable from Update, got %v", err)
				}
			})

			t.Run("Close during reads and writes", func(t *testing.T) {
				store := b.open(t)
				if _, err := store.Update(ctx, "did:plc:u1", json.RawMessage(`{}`), nil); err != nil {
					t.Fatalf("failed to create queue: %v", err)
				}

				const workers = 16
				started := make(chan struct{}, workers)
				var g errgroup.Group
				for w := 0; w < workers; w++ {
					g.Go(func() error {
						started <- struct{}{}
						for i := 0; ; i++ {
							var err error
							if i%2 == 0 {
								_, _, err = store.Get(ctx, "did:plc:u1")
							} else {
								_, err = store.Update(ctx, "did:plc:u1", json.RawMessage(`{}`), nil)
							}
							if err == nil {
								continue
							}
							if !errors.Is(err, shared.ErrStoreUnavailable) {
								return fmt.Errorf("expected ErrStoreUnavailable, got %w", err)
							}
							return nil
						}
					})
				}

				for w := 0; w < workers; w++ {
					<-started
				}
				if err := store.Close(); err != nil {
					t.Fatalf("failed to close store: %v", err)
				}
				if err := g.Wait(); err != nil {
					t.Error(err)
				}
			})

			t.Run("Cancelled context", func(t *testing.T) {
				store := b.open(t)
				cctx, cancel := context.WithCancel(ctx)
				cancel()

				_, err := store.Update(cctx, "did:plc:u1", json.RawMessage(`{}`), nil)
				if !errors.Is(err, shared.ErrStoreUnavailable) {
					t.Errorf("expected ErrStoreUnavailable for cancelled context, got %v", err)
				}
			})
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite file", func(t *testing.T) {
		cfg := shared.DefaultConfig().Database
		cfg.Path = filepath.Join(t.TempDir(), "qsync.db")

		store, err := Open(ctx, cfg)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer store.Close()

		if _, ok := store.(*QueueRepository); !ok {
			t.Errorf("expected *QueueRepository, got %T", store)
		}

		if _, err := store.Update(ctx, "did:plc:u1", json.RawMessage(`{}`), nil); err != nil {
			t.Errorf("expected migrated store to accept writes: %v", err)
		}
	})

	t.Run("sqlite memory", func(t *testing.T) {
		cfg := shared.DefaultConfig().Database
		cfg.Path = ":memory:"

		store, err := Open(ctx, cfg)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer store.Close()

		if _, err := store.Update(ctx, "did:plc:u1", json.RawMessage(`{}`), nil); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if _, ok, err := store.Get(ctx, "did:plc:u1"); err != nil || !ok {
			t.Errorf("in-memory store should see its own write: ok=%v err=%v", ok, err)
		}
	})

	t.Run("pebble", func(t *testing.T) {
		cfg := shared.DefaultConfig().Database
		cfg.Driver = shared.DriverPebble
		cfg.Path = t.TempDir()

		store, err := Open(ctx, cfg)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer store.Close()

		if _, ok := store.(*PebbleQueueStore); !ok {
			t.Errorf("expected *PebbleQueueStore, got %T", store)
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := shared.DefaultConfig().Database
		cfg.Driver = "postgres"

		if _, err := Open(ctx, cfg); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestPebbleQueueStorePersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := OpenPebbleQueueStore(dir, time.Second)
	if err != nil {
		t.Fatalf("failed to open pebble store: %v", err)
	}
	if _, err := store.Update(ctx, "did:plc:u1", json.RawMessage(`{"track_ids":[9]}`), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Update(ctx, "did:plc:u1", json.RawMessage(`{"track_ids":[9,10]}`), rev(1)); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	reopened, err := OpenPebbleQueueStore(dir, time.Second)
	if err != nil {
		t.Fatalf("failed to reopen pebble store: %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.Get(ctx, "did:plc:u1")
	if err != nil || !ok {
		t.Fatalf("expected record after reopen: ok=%v err=%v", ok, err)
	}
	if got.Revision != 2 || string(got.State) != `{"track_ids":[9,10]}` {
		t.Errorf("unexpected record after reopen: revision %d state %s", got.Revision, got.State)
	}
}
