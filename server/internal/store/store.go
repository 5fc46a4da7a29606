package store

import (
	"sort"
	"sync"
	"time"

	"github.com/sensorrelay/sensorrelay/pkg/types"
)

// Record is the merged state of one sensor.
type Record struct {
	SensorID string
	// Fields holds every field received for this sensor, last write wins,
	// plus the engine-stamped lastUpdated.
	Fields    Fields
	UpdatedAt time.Time
	// Revision counts merges into this sensor, starting at 1. A higher
	// revision is always the later state.
	Revision uint64
}

// Message returns the replay form of r: its fields with sensorId set to the
// record's key.
func (r Record) Message() Fields {
	out := r.Fields.Clone()
	out[types.FieldSensorID] = String(r.SensorID)
	return out
}

func (r *Record) copy() Record {
	return Record{SensorID: r.SensorID, Fields: r.Fields.Clone(), UpdatedAt: r.UpdatedAt, Revision: r.Revision}
}

// Store is a thread-safe last-value cache keyed by sensor id.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Record
}

// New creates an empty Store.
func New() *Store {
	return &Store{data: make(map[string]*Record)}
}

// Merge folds fields into the record for sensorID, creating it if absent, and
// stamps lastUpdated with at. Existing fields not present in the update are
// kept. It returns a copy of the merged record.
func (s *Store) Merge(sensorID string, fields Fields, at time.Time) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[sensorID]
	if !ok {
		rec = &Record{SensorID: sensorID, Fields: make(Fields, len(fields)+1)}
		s.data[sensorID] = rec
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}
	rec.UpdatedAt = at
	rec.Revision++
	rec.Fields[types.FieldLastUpdated] = String(types.FormatTimestamp(at))

	return rec.copy()
}

// Get returns a copy of the record for sensorID and whether it exists.
func (s *Store) Get(sensorID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[sensorID]
	if !ok {
		return Record{}, false
	}
	return rec.copy(), true
}

// List returns copies of all records ordered by sensor id.
func (s *Store) List() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.data))
	for _, rec := range s.data {
		out = append(out, rec.copy())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

// Count returns the number of sensors tracked.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
