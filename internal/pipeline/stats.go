package pipeline

import (
	"sync/atomic"

	"github.com/ironsheep/region-lens/internal/failure"
)

var regionFailureKinds = []string{
	failure.KindInvalidInput,
	failure.KindInvalidState,
	failure.KindDecodeFailure,
	failure.KindEmptyRegion,
	failure.KindInferenceFailure,
	failure.KindCanceled,
	failure.KindUnknown,
}

// Stats counts pipeline activity. It is safe for concurrent use; the zero
// value is not ready, use NewStats.
type Stats struct {
	runs              atomic.Int64
	completed         atomic.Int64
	noObjects         atomic.Int64
	detectionFailures atomic.Int64
	canceled          atomic.Int64
	regions           atomic.Int64
	regionFailures    map[string]*atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Runs              int64            `json:"runs"`
	Completed         int64            `json:"completed"`
	NoObjects         int64            `json:"no_objects"`
	DetectionFailures int64            `json:"detection_failures"`
	Canceled          int64            `json:"canceled"`
	Regions           int64            `json:"regions"`
	RegionFailures    map[string]int64 `json:"region_failures"`
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	s := &Stats{regionFailures: make(map[string]*atomic.Int64, len(regionFailureKinds))}
	for _, k := range regionFailureKinds {
		s.regionFailures[k] = new(atomic.Int64)
	}
	return s
}

func (s *Stats) regionFailed(kind string) {
	c, ok := s.regionFailures[kind]
	if !ok {
		c = s.regionFailures[failure.KindUnknown]
	}
	c.Add(1)
}

// Snapshot copies the counters. Kinds with no failures are omitted.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Runs:              s.runs.Load(),
		Completed:         s.completed.Load(),
		NoObjects:         s.noObjects.Load(),
		DetectionFailures: s.detectionFailures.Load(),
		Canceled:          s.canceled.Load(),
		Regions:           s.regions.Load(),
		RegionFailures:    make(map[string]int64),
	}
	for k, c := range s.regionFailures {
		if n := c.Load(); n > 0 {
			snap.RegionFailures[k] = n
		}
	}
	return snap
}
