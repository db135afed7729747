package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/deixis/evidence/internal/artifact"
)

// DiskStore keeps one indented JSON file per run in a lazily-created temp
// directory, so a run can be read back with any JSON viewer while the
// server is up. Close removes the directory.
type DiskStore struct {
	mu  sync.Mutex
	dir string
}

// NewDiskStore creates a new DiskStore. The underlying temp directory
// is created lazily on the first Save.
func NewDiskStore() *DiskStore {
	return &DiskStore{}
}

// Save writes an entry as a JSON file to disk.
func (s *DiskStore) Save(entry *Entry) error {
	dir, err := s.ensureDir()
	if err != nil {
		return err
	}
	data, err := artifact.Marshal(entry, true)
	if err != nil {
		return fmt.Errorf("marshalling entry %s: %w", entry.ID, err)
	}
	path := filepath.Join(dir, entry.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing entry %s: %w", entry.ID, err)
	}
	return nil
}

// Load reads an entry from disk.
func (s *DiskStore) Load(runID string) (*Entry, error) {
	if runID != filepath.Base(runID) {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}
	dir, err := s.ensureDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, runID+".json"))
	if err != nil {
		return nil, fmt.Errorf("reading entry %s: %w", runID, err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshalling entry %s: %w", runID, err)
	}
	return &entry, nil
}

// List returns every stored entry, newest first. Files that do not decode
// as entries are skipped. Before the first Save the list is empty.
func (s *DiskStore) List() ([]*Entry, error) {
	dir := s.Dir()
	if dir == "" {
		return nil, nil
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing history: %w", err)
	}

	var entries []*Entry
	for _, f := range files {
		id, ok := strings.CutSuffix(f.Name(), ".json")
		if !ok || f.IsDir() {
			continue
		}
		entry, err := s.Load(id)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	sortNewestFirst(entries)
	return entries, nil
}

// Close removes the backing directory and every entry in it. A later Save
// starts a fresh directory.
func (s *DiskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("removing history directory: %w", err)
	}
	s.dir = ""
	return nil
}

func sortNewestFirst(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}

// Dir returns the backing directory, or "" before the first Save or Load
// and after Close.
func (s *DiskStore) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

func (s *DiskStore) ensureDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		return s.dir, nil
	}
	dir, err := os.MkdirTemp("", "evidence-runs-*")
	if err != nil {
		return "", fmt.Errorf("creating history directory: %w", err)
	}
	s.dir = dir
	return dir, nil
}
