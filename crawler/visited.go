package crawler

import (
	"errors"
	"fmt"
	"os"
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/edsrzf/mmap-go"
)

const (
	// visitedFalsePositiveRate is the target bloom filter error rate at the
	// expected page count.
	visitedFalsePositiveRate = 0.001

	// maxVisitedEstimate caps the filter size for very large page budgets.
	maxVisitedEstimate = 1_000_000

	// visitedSyncEvery is how many additions pass between flushes to disk.
	visitedSyncEvery = 1000
)

// VisitedFilter is a bloom filter over visited page URLs, persisted in a
// memory-mapped temp file. It has no false negatives, so a miss proves a URL
// was never visited and the exact page table only has to confirm hits.
type VisitedFilter struct {
	mu      sync.Mutex
	filter  *bloom.BloomFilter
	file    *os.File
	mmap    mmap.MMap
	tmpPath string
	pending int   // additions since the last flush
	lastErr error // last flush error
}

// NewVisitedFilter creates a filter sized for expected URLs.
func NewVisitedFilter(expected int) (*VisitedFilter, error) {
	n := uint(max(expected, 1))
	if n > maxVisitedEstimate {
		n = maxVisitedEstimate
	}
	filter := bloom.NewWithEstimates(n, visitedFalsePositiveRate)

	data, err := filter.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal bloom filter: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "termcrawl-visited-*.bloom")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	cleanup := func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}

	if err := tmpFile.Truncate(int64(len(data))); err != nil {
		cleanup()
		return nil, fmt.Errorf("truncate temp file: %w", err)
	}

	mapped, err := mmap.MapRegion(tmpFile, len(data), mmap.RDWR, 0, 0)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("mmap temp file: %w", err)
	}
	copy(mapped, data)

	return &VisitedFilter{
		filter:  filter,
		file:    tmpFile,
		mmap:    mapped,
		tmpPath: tmpPath,
	}, nil
}

// Add records url as visited.
func (v *VisitedFilter) Add(url string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.filter.AddString(url)
	v.pending++
	if v.pending >= visitedSyncEvery {
		if err := v.syncLocked(); err != nil {
			v.lastErr = err
		}
	}
}

// MayContain reports whether url may have been visited. False is definite.
func (v *VisitedFilter) MayContain(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.filter.TestString(url)
}

// syncLocked copies the filter into the mapping and flushes it. Must be
// called with mu held.
func (v *VisitedFilter) syncLocked() error {
	data, err := v.filter.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal bloom filter: %w", err)
	}
	copy(v.mmap, data)

	if err := v.mmap.Flush(); err != nil {
		return fmt.Errorf("flush mmap: %w", err)
	}
	v.pending = 0
	return nil
}

// Close flushes pending additions, unmaps and removes the temp file.
func (v *VisitedFilter) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var errs []error
	if v.lastErr != nil {
		errs = append(errs, v.lastErr)
	}

	if v.mmap != nil {
		if v.pending > 0 {
			if err := v.syncLocked(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := v.mmap.Unmap(); err != nil {
			errs = append(errs, fmt.Errorf("unmap: %w", err))
		}
		v.mmap = nil
	}

	if v.file != nil {
		if err := v.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close file: %w", err))
		}
		v.file = nil
	}

	if v.tmpPath != "" {
		if err := os.Remove(v.tmpPath); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove temp file: %w", err))
		}
		v.tmpPath = ""
	}

	if len(errs) > 0 {
		return fmt.Errorf("close visited filter: %w", errors.Join(errs...))
	}
	return nil
}

// LastError returns the last error from a periodic flush.
func (v *VisitedFilter) LastError() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}
