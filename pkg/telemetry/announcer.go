package telemetry

import (
	bloomFilter "github.com/bits-and-blooms/bloom/v3"
)

const (
	defaultBulkFilterCapacity    = 1000
	defaultBulkFilterProbability = 0.001
)

// eventAnnouncer remembers which unrecognised event names were already reported.
// The names are chosen by the stream server, so memory is bounded by a bloom filter
// that is cleared once it holds capacity names. A false positive only skips a log line.
type eventAnnouncer struct {
	filter   *bloomFilter.BloomFilter
	capacity uint
	added    uint
}

func newEventAnnouncer(capacity uint, probability float64) *eventAnnouncer {
	if capacity == 0 {
		capacity = defaultBulkFilterCapacity
	}
	if probability <= 0 || probability >= 1 {
		probability = defaultBulkFilterProbability
	}
	return &eventAnnouncer{
		filter:   bloomFilter.NewWithEstimates(capacity, probability),
		capacity: capacity,
	}
}

// firstSeen reports whether name was not seen since the filter was last cleared.
func (a *eventAnnouncer) firstSeen(name string) bool {
	key := []byte(name)
	if a.filter.Test(key) {
		return false
	}
	if a.added >= a.capacity {
		a.filter.ClearAll()
		a.added = 0
	}
	a.filter.Add(key)
	a.added++
	return true
}
