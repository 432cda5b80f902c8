package dataset

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func testFrame() *Frame {
	return &Frame{
		Columns: []Column{
			{Name: "id", Type: TypeText},
			{Name: "amount", Type: TypeInteger},
		},
		Records: [][]string{
			{"007", "100"},
			{"042", "250"},
		},
	}
}

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(t.TempDir())
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestCodecSaveLoad(t *testing.T) {
	c := newTestCodec(t)
	f := testFrame()

	if err := c.Save("s1", f); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !c.HasSnapshot("s1") {
		t.Error("HasSnapshot = false after Save")
	}

	got, reinferred, err := c.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reinferred {
		t.Error("reinferred = true for binary snapshot")
	}
	// Binary form preserves the declared TEXT type of the id column.
	if got.Columns[0].Type != TypeText {
		t.Errorf("id type = %v, want TypeText", got.Columns[0].Type)
	}
	if got.Records[0][0] != "007" {
		t.Errorf("id cell = %q, want 007", got.Records[0][0])
	}
}

func TestCodecLoadFallsBackToText(t *testing.T) {
	c := newTestCodec(t)
	f := testFrame()
	if err := c.Save("s1", f); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Drop the binary snapshot; Load must recover from the text form.
	if err := os.Remove(filepath.Join(c.Dir("s1"), "data.bin")); err != nil {
		t.Fatalf("removing binary snapshot: %v", err)
	}

	got, reinferred, err := c.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reinferred {
		t.Error("reinferred = false for text fallback")
	}
	if got.RowCount() != 2 {
		t.Errorf("RowCount = %d, want 2", got.RowCount())
	}
	// Re-inference sees only digit strings and types the id column INTEGER,
	// diverging from the binary snapshot's TEXT.
	if got.Columns[0].Type != TypeInteger {
		t.Errorf("re-inferred id type = %v, want TypeInteger", got.Columns[0].Type)
	}
}

func TestCodecLoadCorruptBinary(t *testing.T) {
	c := newTestCodec(t)
	if err := c.Save("s1", testFrame()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(c.Dir("s1"), "data.bin"), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("corrupting snapshot: %v", err)
	}

	got, reinferred, err := c.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reinferred || got.RowCount() != 2 {
		t.Errorf("got reinferred=%v rows=%d, want text fallback with 2 rows", reinferred, got.RowCount())
	}
}

func TestCodecLoadMissing(t *testing.T) {
	c := newTestCodec(t)
	if _, _, err := c.Load("nope"); err == nil {
		t.Error("expected error for missing snapshot, got nil")
	}
}

func TestCodecRemove(t *testing.T) {
	c := newTestCodec(t)
	if err := c.Save("s1", testFrame()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := c.Remove("s1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if c.HasSnapshot("s1") {
		t.Error("snapshot survived Remove")
	}
	// Removing again is fine.
	if err := c.Remove("s1"); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestCodecOrphans(t *testing.T) {
	c := newTestCodec(t)
	for _, id := range []string{"live", "dead1", "dead2"} {
		if err := c.Save(id, testFrame()); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}

	orphans, err := c.Orphans(func(id string) bool { return id == "live" })
	if err != nil {
		t.Fatalf("Orphans: %v", err)
	}
	slices.Sort(orphans)
	want := []string{"dead1", "dead2"}
	if !slices.Equal(orphans, want) {
		t.Errorf("Orphans = %v, want %v", orphans, want)
	}
}
