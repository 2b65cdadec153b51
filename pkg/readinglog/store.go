// Package readinglog keeps one JSON document per reading for analysis and feedback.
package readinglog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tarotbot/pkg/logx"
)

var (
	// ErrNotFound is returned for an unknown reading id.
	ErrNotFound = errors.New("reading not found")
	// ErrInvalidTransition is returned when an update moves the status backwards.
	ErrInvalidTransition = errors.New("invalid reading status transition")
)

const fileTimeLayout = "20060102_150405"

// Stats summarizes the stored readings.
type Stats struct {
	ByStatus      map[Status]int `json:"by_status"`
	BySpread      map[string]int `json:"by_spread"`
	Total         int            `json:"total"`
	Rated         int            `json:"rated"`
	AverageRating float64        `json:"average_rating"`
}

// Store writes reading records under a directory. It is safe for concurrent use.
type Store struct {
	now    func() time.Time
	logger *logx.Logger
	paths  map[string]string
	dir    string
	mu     sync.Mutex
}

// NewStore creates the log directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reading log directory %s: %w", dir, err)
	}
	return &Store{
		dir:    dir,
		paths:  make(map[string]string),
		now:    time.Now,
		logger: logx.NewLogger("readinglog"),
	}, nil
}

// Dir returns the log directory.
func (s *Store) Dir() string { return s.dir }

// Create assigns an id and timestamp, sets the started status and writes the record.
func (s *Store) Create(r *Record) (string, error) {
	if r == nil {
		return "", fmt.Errorf("record cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r.Metadata.ReadingID = uuid.NewString()
	r.Metadata.Timestamp = s.now().UTC()
	r.Metadata.Status = StatusStarted

	path := s.filename(r)
	if err := writeAtomic(path, r); err != nil {
		return "", err
	}
	s.paths[r.Metadata.ReadingID] = path
	s.logger.Debug("Reading %s logged to %s", r.Metadata.ReadingID, filepath.Base(path))
	return r.Metadata.ReadingID, nil
}

// Get loads a record by id.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, r, err := s.load(id)
	return r, err
}

// Update applies fn to the stored record and writes it back. A status change
// that is not a forward transition is rejected and nothing is written.
func (s *Store) Update(id string, fn func(*Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, r, err := s.load(id)
	if err != nil {
		return err
	}
	from := r.Metadata.Status
	if err := fn(r); err != nil {
		return err
	}
	if !CanTransition(from, r.Metadata.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, r.Metadata.Status)
	}
	r.Metadata.ReadingID = id
	return writeAtomic(path, r)
}

// Stats reads every record in the directory.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{ByStatus: make(map[Status]int), BySpread: make(map[string]int)}
	var ratingSum int
	err := s.each(func(_ string, r *Record) {
		st.Total++
		st.ByStatus[r.Metadata.Status]++
		st.BySpread[r.Spread.Type]++
		if r.Feedback != nil && r.Feedback.Rating > 0 {
			st.Rated++
			ratingSum += r.Feedback.Rating
		}
	})
	if err != nil {
		return Stats{}, err
	}
	if st.Rated > 0 {
		st.AverageRating = float64(ratingSum) / float64(st.Rated)
	}
	return st, nil
}

// Cleanup removes records whose timestamp is older than olderThan and returns
// how many were removed.
func (s *Store) Cleanup(olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UTC().Add(-olderThan)
	var stale []string
	err := s.each(func(path string, r *Record) {
		if r.Metadata.Timestamp.Before(cutoff) {
			stale = append(stale, path)
		}
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			s.logger.Warn("Failed to remove old reading log %s: %v", path, err)
			continue
		}
		removed++
	}
	for id, path := range s.paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			delete(s.paths, id)
		}
	}
	if removed > 0 {
		s.logger.Info("Removed %d reading logs older than %s", removed, olderThan)
	}
	return removed, nil
}

func (s *Store) filename(r *Record) string {
	base := fmt.Sprintf("%s_%d_%s", r.Metadata.Timestamp.Format(fileTimeLayout), r.Metadata.ChatID, r.Spread.Type)
	path := filepath.Join(s.dir, base+".json")
	if _, err := os.Stat(path); err == nil {
		path = filepath.Join(s.dir, base+"_"+r.Metadata.ReadingID[:8]+".json")
	}
	return path
}

// load finds a record by id, scanning the directory for records written by an earlier process.
func (s *Store) load(id string) (string, *Record, error) {
	if path, ok := s.paths[id]; ok {
		r, err := readRecord(path)
		if err == nil {
			return path, r, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, err
		}
		delete(s.paths, id)
	}

	var (
		found  string
		record *Record
	)
	err := s.each(func(path string, r *Record) {
		if r.Metadata.ReadingID == id {
			found, record = path, r
		}
	})
	if err != nil {
		return "", nil, err
	}
	if record == nil {
		return "", nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.paths[id] = found
	return found, record, nil
}

// each calls fn for every readable record. Unreadable files are logged and skipped.
func (s *Store) each(fn func(path string, r *Record)) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read reading log directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(s.dir, name)
		r, err := readRecord(path)
		if err != nil {
			s.logger.Warn("Skipping unreadable reading log %s: %v", name, err)
			continue
		}
		fn(path, r)
	}
	return nil
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reading log: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reading log %s: %w", filepath.Base(path), err)
	}
	return &r, nil
}

// writeAtomic replaces path with the encoded record through a temp file and rename.
func writeAtomic(path string, r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal reading %s: %w", r.Metadata.ReadingID, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".reading-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write reading %s: %w", r.Metadata.ReadingID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace reading log: %w", err)
	}
	return nil
}
