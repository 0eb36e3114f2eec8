package storage

import (
	"sort"

	"github.com/wortwatch/wortwatch/internal/report"
)

// SortNewestFirst orders readings by timestamp descending, breaking
// timestamp ties by reading ID descending so the order is total and
// stable across calls. IDs are hashed once per reading, not per
// comparison.
func SortNewestFirst(readings []report.SensorReading) {
	ids := make([]string, len(readings))
	for i := range readings {
		ids[i] = readings[i].ReadingID()
	}
	sort.Sort(&byRecency{readings: readings, ids: ids})
}

type byRecency struct {
	readings []report.SensorReading
	ids      []string
}

func (s *byRecency) Len() int { return len(s.readings) }

func (s *byRecency) Swap(i, j int) {
	s.readings[i], s.readings[j] = s.readings[j], s.readings[i]
	s.ids[i], s.ids[j] = s.ids[j], s.ids[i]
}

func (s *byRecency) Less(i, j int) bool {
	ti, tj := s.readings[i].Timestamp, s.readings[j].Timestamp
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	return s.ids[i] > s.ids[j]
}
