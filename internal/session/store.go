package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datasage-io/datasage/internal/dataset"
)

// DefaultTTL is the rolling session lifetime, renewed on every access.
const DefaultTTL = 7 * 24 * time.Hour

// SamplePrefix marks ids that are materialized on first access with the
// built-in sample dataset.
const SamplePrefix = "sample-"

// Store owns session identity and lifecycle. Metadata lives in the primary
// document tier; when the primary is unreachable the same operation is served
// from the in-process fallback tier and only a warning is logged, so degraded
// availability is never surfaced as an error to callers. Snapshots are
// persisted through the codec.
type Store struct {
	primary  DocumentStore
	fallback *MemoryDocuments
	codec    *dataset.Codec
	ttl      time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewStore creates a Store over the given tiers. primary may be nil, in which
// case the fallback tier serves everything (single-process mode).
func NewStore(primary DocumentStore, fallback *MemoryDocuments, codec *dataset.Codec, ttl time.Duration) *Store {
	if fallback == nil {
		fallback = NewMemoryDocuments()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		primary:  primary,
		fallback: fallback,
		codec:    codec,
		ttl:      ttl,
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
	}
}

// lockSession returns the mutex serializing read-modify-write cycles for one
// session id. Every operation that rewrites the whole record (renewal,
// metadata merge, dataset attach) runs under it; without the lock a renewal
// rewrite of a stale record would erase a concurrent merge.
func (s *Store) lockSession(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// forgetLock drops the session's mutex once the session is gone.
func (s *Store) forgetLock(id string) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

// put writes the record to the primary tier, falling back to the in-process
// map when the primary is unreachable. The fallback write cannot fail.
func (s *Store) put(ctx context.Context, rec Record) {
	if s.primary != nil {
		err := s.primary.Put(ctx, rec, s.ttl)
		if err == nil {
			return
		}
		slog.Warn("primary session store unreachable, using in-process fallback",
			"session_id", rec.ID, "error", err)
	}
	s.fallback.Put(ctx, rec, s.ttl)
}

// lookup reads the record through the tiers without renewing its lifetime.
// The fallback is consulted both when the primary is unreachable and when the
// primary has no record, so entries written during an outage stay visible.
func (s *Store) lookup(ctx context.Context, id string) (Record, error) {
	if s.primary != nil {
		rec, err := s.primary.Get(ctx, id)
		if err == nil {
			if rec.Expired(s.now()) {
				return Record{}, ErrNotFound
			}
			return rec, nil
		}
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("primary session store unreachable, reading in-process fallback",
				"session_id", id, "error", err)
		}
	}
	rec, err := s.fallback.Get(ctx, id)
	if err != nil {
		return Record{}, ErrNotFound
	}
	if rec.Expired(s.now()) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Create allocates a new session id, creates its snapshot directory, and
// writes the initial metadata record. The id is returned even if the durable
// write had to fall back.
func (s *Store) Create(ctx context.Context) (string, error) {
	id := uuid.New().String()
	if err := s.codec.EnsureDir(id); err != nil {
		return "", fmt.Errorf("creating session directory: %w", err)
	}

	now := s.now()
	rec := Record{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		HasData:   false,
		Meta:      map[string]any{},
	}
	s.put(ctx, rec)

	slog.Info("created session", "session_id", id)
	return id, nil
}

// Get returns the session record, renewing its expiration before returning.
// Absent and expired sessions are indistinguishable to the caller.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	lock := s.lockSession(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.lookup(ctx, id)
	if errors.Is(err, ErrNotFound) && strings.HasPrefix(id, SamplePrefix) {
		return s.materializeSample(ctx, id)
	}
	if err != nil {
		return Record{}, err
	}

	now := s.now()
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(s.ttl)
	s.put(ctx, rec)
	return rec, nil
}

// materializeSample creates a sample session on first access, snapshot
// included, so demo clients can query without uploading.
func (s *Store) materializeSample(ctx context.Context, id string) (Record, error) {
	frame := dataset.Sample()
	if err := s.codec.Save(id, frame); err != nil {
		return Record{}, fmt.Errorf("writing sample snapshot: %w", err)
	}

	now := s.now()
	rec := Record{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		HasData:   true,
		Meta:      datasetMeta(frame, dataset.SampleFilename),
	}
	rec.Meta["is_sample"] = true
	s.put(ctx, rec)

	slog.Info("materialized sample session", "session_id", id)
	return rec, nil
}

// AttachDataset writes the snapshot for an existing session and then updates
// its metadata. The snapshot write completes before metadata claims
// has_data=true; a failed snapshot write leaves the record untouched.
func (s *Store) AttachDataset(ctx context.Context, id string, frame *dataset.Frame, filename string) error {
	lock := s.lockSession(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}

	if err := s.codec.Save(id, frame); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	now := s.now()
	rec.HasData = true
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(s.ttl)
	if rec.Meta == nil {
		rec.Meta = map[string]any{}
	}
	for k, v := range datasetMeta(frame, filename) {
		rec.Meta[k] = v
	}
	s.put(ctx, rec)

	slog.Info("attached dataset",
		"session_id", id,
		"filename", filename,
		"rows", frame.RowCount(),
		"columns", frame.ColumnCount(),
	)
	return nil
}

// Dataset loads the session's frame through the codec. reinferred is true
// when the frame came from the text snapshot with re-inferred column types.
func (s *Store) Dataset(ctx context.Context, id string) (frame *dataset.Frame, reinferred bool, err error) {
	lock := s.lockSession(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) && strings.HasPrefix(id, SamplePrefix) {
			if rec, err = s.materializeSample(ctx, id); err != nil {
				return nil, false, err
			}
		} else {
			return nil, false, err
		}
	}
	if !rec.HasData {
		return nil, false, ErrNoDataset
	}
	return s.codec.Load(id)
}

// UpdateMetadata merges partial into the session's metadata map. Collaborators
// use this to record filenames and preprocessing steps; the store itself only
// merges.
func (s *Store) UpdateMetadata(ctx context.Context, id string, partial map[string]any) error {
	lock := s.lockSession(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}

	if rec.Meta == nil {
		rec.Meta = map[string]any{}
	}
	for k, v := range partial {
		rec.Meta[k] = v
	}
	now := s.now()
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(s.ttl)
	s.put(ctx, rec)
	return nil
}

// Delete removes the session's snapshot directory. Removal of the durable
// record is best-effort: expiration remains the authoritative reclamation
// path, so a failed delete is only logged. Deleting an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	lock := s.lockSession(id)
	lock.Lock()
	defer func() {
		lock.Unlock()
		s.forgetLock(id)
	}()

	if err := s.codec.Remove(id); err != nil {
		return fmt.Errorf("removing snapshot directory: %w", err)
	}
	if s.primary != nil {
		if err := s.primary.Delete(ctx, id); err != nil {
			slog.Warn("best-effort session record delete failed", "session_id", id, "error", err)
		}
	}
	s.fallback.Delete(ctx, id)

	slog.Info("deleted session", "session_id", id)
	return nil
}

// Sweep removes snapshot directories whose session no longer resolves, the
// reclamation path for sessions that expired without an explicit delete.
// Sample sessions are exempt: their snapshots are recreated on demand anyway.
func (s *Store) Sweep(ctx context.Context) (removed int, err error) {
	orphans, err := s.codec.Orphans(func(id string) bool {
		if strings.HasPrefix(id, SamplePrefix) {
			return true
		}
		_, lookupErr := s.lookup(ctx, id)
		return lookupErr == nil
	})
	if err != nil {
		return 0, err
	}

	for _, id := range orphans {
		if err := s.codec.Remove(id); err != nil {
			slog.Warn("failed to remove orphaned snapshot", "session_id", id, "error", err)
			continue
		}
		s.forgetLock(id)
		removed++
	}
	if removed > 0 {
		slog.Info("swept orphaned snapshots", "removed", removed)
	}
	return removed, nil
}

// datasetMeta builds the metadata fields derived from an attached frame.
func datasetMeta(f *dataset.Frame, filename string) map[string]any {
	return map[string]any{
		"filename":     filename,
		"rows":         f.RowCount(),
		"columns":      f.ColumnCount(),
		"column_names": f.ColumnNames(),
		"dtypes":       f.DTypes(),
	}
}
