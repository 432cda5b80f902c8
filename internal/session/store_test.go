package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/datasage-io/datasage/internal/dataset"
)

// brokenDocuments simulates an unreachable primary tier.
type brokenDocuments struct{}

func (brokenDocuments) Put(context.Context, Record, time.Duration) error {
	return errors.New("connection refused")
}

func (brokenDocuments) Get(context.Context, string) (Record, error) {
	return Record{}, errors.New("connection refused")
}

func (brokenDocuments) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func (brokenDocuments) Ping(context.Context) error {
	return errors.New("connection refused")
}

func testCodec(t *testing.T) *dataset.Codec {
	t.Helper()
	c, err := dataset.NewCodec(t.TempDir())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func newTestStore(t *testing.T, primary DocumentStore) *Store {
	t.Helper()
	return NewStore(primary, NewMemoryDocuments(), testCodec(t), DefaultTTL)
}

func employeeFrame() *dataset.Frame {
	return &dataset.Frame{
		Columns: []dataset.Column{
			{Name: "name", Type: dataset.TypeText},
			{Name: "salary", Type: dataset.TypeInteger},
		},
		Records: [][]string{
			{"alice", "70000"},
			{"bob", "55000"},
		},
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("Create returned empty id")
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.ID != id {
		t.Errorf("rec.ID = %q, want %q", rec.ID, id)
	}
	if rec.HasData {
		t.Error("new session claims has_data")
	}
}

func TestGetUnknown(t *testing.T) {
	s := newTestStore(t, nil)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetRenewsExpiration(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	clock = clock.Add(time.Hour)
	second, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}

	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Errorf("expiration not renewed: first=%v second=%v", first.ExpiresAt, second.ExpiresAt)
	}
	if want := clock.Add(DefaultTTL); !second.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", second.ExpiresAt, want)
	}
}

func TestExpiredSessionIsGone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock = clock.Add(DefaultTTL + time.Minute)
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session: err = %v, want ErrNotFound", err)
	}
}

func TestAttachDataset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.AttachDataset(ctx, id, employeeFrame(), "staff.csv"); err != nil {
		t.Fatalf("AttachDataset: %v", err)
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.HasData {
		t.Error("has_data = false after attach")
	}
	if rec.Meta["filename"] != "staff.csv" {
		t.Errorf("filename = %v, want staff.csv", rec.Meta["filename"])
	}
	if rec.Meta["rows"] != 2 {
		t.Errorf("rows = %v, want 2", rec.Meta["rows"])
	}

	frame, reinferred, err := s.Dataset(ctx, id)
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	if reinferred {
		t.Error("reinferred = true for fresh snapshot")
	}
	if frame.RowCount() != 2 {
		t.Errorf("RowCount = %d, want 2", frame.RowCount())
	}
}

func TestAttachDatasetUnknownSession(t *testing.T) {
	s := newTestStore(t, nil)
	err := s.AttachDataset(context.Background(), "missing", employeeFrame(), "staff.csv")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDatasetWithoutData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := s.Dataset(ctx, id); !errors.Is(err, ErrNoDataset) {
		t.Errorf("err = %v, want ErrNoDataset", err)
	}
}

func TestUpdateMetadataMerges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.UpdateMetadata(ctx, id, map[string]any{"a": 1, "b": "x"}); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if err := s.UpdateMetadata(ctx, id, map[string]any{"b": "y"}); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Meta["a"] != 1 {
		t.Errorf("a = %v, want 1", rec.Meta["a"])
	}
	if rec.Meta["b"] != "y" {
		t.Errorf("b = %v, want y", rec.Meta["b"])
	}
}

func TestRenewalDoesNotClobberMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Gets renew by rewriting the whole record; interleaved with metadata
	// merges on the same session, every merged key must survive.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := s.Get(ctx, id); err != nil {
				t.Errorf("Get: %v", err)
				return
			}
		}
	}()

	const merges = 50
	for i := 0; i < merges; i++ {
		if err := s.UpdateMetadata(ctx, id, map[string]any{fmt.Sprintf("k%d", i): i}); err != nil {
			t.Fatalf("UpdateMetadata: %v", err)
		}
	}
	close(stop)
	wg.Wait()

	rec, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for i := 0; i < merges; i++ {
		key := fmt.Sprintf("k%d", i)
		if _, ok := rec.Meta[key]; !ok {
			t.Errorf("metadata key %s lost to a concurrent renewal", key)
		}
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.AttachDataset(ctx, id, employeeFrame(), "staff.csv"); err != nil {
		t.Fatalf("AttachDataset: %v", err)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("err after delete = %v, want ErrNotFound", err)
	}

	// Deleting an unknown id is a no-op.
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing): %v", err)
	}
}

func TestSampleSessionMaterializes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	rec, err := s.Get(ctx, "sample-demo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.HasData {
		t.Error("sample session has no data")
	}
	if rec.Meta["is_sample"] != true {
		t.Errorf("is_sample = %v, want true", rec.Meta["is_sample"])
	}

	frame, _, err := s.Dataset(ctx, "sample-demo")
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	if frame.RowCount() != 5 || frame.ColumnCount() != 10 {
		t.Errorf("sample frame is %dx%d, want 5x10", frame.RowCount(), frame.ColumnCount())
	}
}

func TestSampleDatasetWithoutPriorGet(t *testing.T) {
	s := newTestStore(t, nil)
	frame, _, err := s.Dataset(context.Background(), "sample-fresh")
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	if frame.RowCount() != 5 {
		t.Errorf("RowCount = %d, want 5", frame.RowCount())
	}
}

func TestPrimaryOutageFallsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, brokenDocuments{})

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create during outage: %v", err)
	}

	// Reads during the outage still see the write.
	rec, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get during outage: %v", err)
	}
	if rec.ID != id {
		t.Errorf("rec.ID = %q, want %q", rec.ID, id)
	}

	if err := s.AttachDataset(ctx, id, employeeFrame(), "staff.csv"); err != nil {
		t.Fatalf("AttachDataset during outage: %v", err)
	}
	frame, _, err := s.Dataset(ctx, id)
	if err != nil {
		t.Fatalf("Dataset during outage: %v", err)
	}
	if frame.RowCount() != 2 {
		t.Errorf("RowCount = %d, want 2", frame.RowCount())
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete during outage: %v", err)
	}
}

func TestSweepRemovesOrphans(t *testing.T) {
	ctx := context.Background()
	codec := testCodec(t)
	s := NewStore(nil, NewMemoryDocuments(), codec, DefaultTTL)

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.AttachDataset(ctx, id, employeeFrame(), "staff.csv"); err != nil {
		t.Fatalf("AttachDataset: %v", err)
	}

	// A snapshot whose session never existed, and a sample one that must survive.
	if err := codec.Save("orphan", employeeFrame()); err != nil {
		t.Fatalf("Save(orphan): %v", err)
	}
	if err := codec.Save("sample-keep", employeeFrame()); err != nil {
		t.Fatalf("Save(sample-keep): %v", err)
	}

	removed, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if !codec.HasSnapshot(id) {
		t.Error("live session snapshot was swept")
	}
	if !codec.HasSnapshot("sample-keep") {
		t.Error("sample snapshot was swept")
	}
	if codec.HasSnapshot("orphan") {
		t.Error("orphan snapshot survived sweep")
	}
}
