package geodata

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"stopplanner.sistper.org/internal/models"
)

// ErrNotLoaded is returned by Store lookups before the first successful load.
var ErrNotLoaded = errors.New("geodata not loaded")

// Line is everything the planner knows about one bus line.
type Line struct {
	Code  string
	Paths []orb.LineString
	Stops []models.NativeStop
}

// Snapshot is one complete, immutable load of the geodata source.
type Snapshot struct {
	Source   string
	LoadedAt time.Time
	Lines    map[string]*Line
}

func newSnapshot(source string) *Snapshot {
	return &Snapshot{Source: source, Lines: make(map[string]*Line)}
}

// line returns the entry for code, creating it on first use.
func (s *Snapshot) line(code string) *Line {
	l, ok := s.Lines[code]
	if !ok {
		l = &Line{Code: code}
		s.Lines[code] = l
	}
	return l
}

// Store is a thread-safe holder of the current geodata snapshot. Readers
// always see either the previous or the next snapshot, never a mix.
type Store struct {
	mu       sync.RWMutex
	snapshot *Snapshot
}

func NewStore() *Store {
	return &Store{}
}

// Set replaces the current snapshot.
func (s *Store) Set(snapshot *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
}

// Get returns the current snapshot, if any.
func (s *Store) Get() (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.snapshot != nil
}

// StopsForLine returns a copy of the source-ordered stops of a line. An
// unknown line has no stops.
func (s *Store) StopsForLine(lineCode string) ([]models.NativeStop, error) {
	snap, ok := s.Get()
	if !ok {
		return nil, ErrNotLoaded
	}
	l, ok := snap.Lines[lineCode]
	if !ok {
		return nil, nil
	}
	return append([]models.NativeStop(nil), l.Stops...), nil
}

// GeometryForLine returns the raw paths of a line. An unknown line has no paths.
func (s *Store) GeometryForLine(lineCode string) (models.LineGeometry, error) {
	snap, ok := s.Get()
	if !ok {
		return models.LineGeometry{}, ErrNotLoaded
	}
	g := models.LineGeometry{LineCode: lineCode}
	if l, ok := snap.Lines[lineCode]; ok {
		g.Paths = make([]orb.LineString, len(l.Paths))
		for i, p := range l.Paths {
			g.Paths[i] = p.Clone()
		}
	}
	return g, nil
}

// Lines returns the sorted codes of every known line.
func (s *Store) Lines() []string {
	snap, ok := s.Get()
	if !ok {
		return []string{}
	}
	codes := make([]string, 0, len(snap.Lines))
	for code := range snap.Lines {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// HasLine reports whether lineCode exists in the current snapshot.
func (s *Store) HasLine(lineCode string) bool {
	snap, ok := s.Get()
	if !ok {
		return false
	}
	_, exists := snap.Lines[lineCode]
	return exists
}
