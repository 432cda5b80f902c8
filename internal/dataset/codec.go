package dataset

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	binaryName = "data.bin"
	textName   = "data.csv"
)

// Codec persists frames as per-session snapshot pairs under a root directory:
// <root>/<session id>/data.bin (gob, authoritative, type-preserving) and
// <root>/<session id>/data.csv (derived, portable, may lose type fidelity).
type Codec struct {
	root string
}

// NewCodec creates a Codec rooted at dir, creating it if needed.
func NewCodec(dir string) (*Codec, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot root: %w", err)
	}
	return &Codec{root: dir}, nil
}

// Dir returns the snapshot directory for a session id.
func (c *Codec) Dir(id string) string {
	return filepath.Join(c.root, id)
}

// EnsureDir creates the session's snapshot directory.
func (c *Codec) EnsureDir(id string) error {
	return os.MkdirAll(c.Dir(id), 0o755)
}

// Save writes both snapshot forms for the session. The binary form is written
// first; the text form is derived from the same in-memory frame rather than
// re-read from disk, so the two are write-consistent.
func (c *Codec) Save(id string, f *Frame) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid frame: %w", err)
	}
	if err := c.EnsureDir(id); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	bin, err := os.Create(filepath.Join(c.Dir(id), binaryName))
	if err != nil {
		return fmt.Errorf("creating binary snapshot: %w", err)
	}
	if err := gob.NewEncoder(bin).Encode(f); err != nil {
		bin.Close()
		return fmt.Errorf("encoding binary snapshot: %w", err)
	}
	if err := bin.Close(); err != nil {
		return fmt.Errorf("closing binary snapshot: %w", err)
	}

	txt, err := os.Create(filepath.Join(c.Dir(id), textName))
	if err != nil {
		return fmt.Errorf("creating text snapshot: %w", err)
	}
	if err := f.WriteCSV(txt); err != nil {
		txt.Close()
		return fmt.Errorf("writing text snapshot: %w", err)
	}
	return txt.Close()
}

// Load reads the session's frame. The binary snapshot is attempted first; if
// it is absent or unreadable the text snapshot is parsed instead, with column
// types re-inferred from the literal values. reinferred reports which path
// produced the frame so callers know when typing may have diverged.
func (c *Codec) Load(id string) (f *Frame, reinferred bool, err error) {
	binPath := filepath.Join(c.Dir(id), binaryName)
	bin, err := os.Open(binPath)
	if err == nil {
		defer bin.Close()
		var frame Frame
		decErr := gob.NewDecoder(bin).Decode(&frame)
		if decErr == nil {
			return &frame, false, nil
		}
		slog.Warn("binary snapshot unreadable, falling back to text form",
			"session_id", id, "error", decErr)
	}

	txt, err := os.Open(filepath.Join(c.Dir(id), textName))
	if err != nil {
		return nil, false, fmt.Errorf("no readable snapshot for session %s: %w", id, err)
	}
	defer txt.Close()

	frame, err := ReadCSV(txt)
	if err != nil {
		return nil, false, fmt.Errorf("parsing text snapshot for session %s: %w", id, err)
	}
	return frame, true, nil
}

// HasSnapshot reports whether a binary snapshot exists for the session.
func (c *Codec) HasSnapshot(id string) bool {
	_, err := os.Stat(filepath.Join(c.Dir(id), binaryName))
	return err == nil
}

// Remove deletes the session's snapshot directory.
func (c *Codec) Remove(id string) error {
	return os.RemoveAll(c.Dir(id))
}

// Orphans returns the ids of snapshot directories for which live reports
// false. Used by the reclamation sweep for sessions that expired without an
// explicit delete.
func (c *Codec) Orphans(live func(id string) bool) ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot root: %w", err)
	}
	var orphans []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if !live(e.Name()) {
			orphans = append(orphans, e.Name())
		}
	}
	return orphans, nil
}
