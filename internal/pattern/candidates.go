package pattern

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/mzanolli/nesrom/internal/apu"
	"github.com/mzanolli/nesrom/internal/config"
	"github.com/mzanolli/nesrom/internal/diag"
)

// group is one candidate pattern from Phase 1: all occurrences of one
// content signature at one length.
type group struct {
	length    int
	hash      string
	positions []uint32 // ascending, first-occurrence order
}

// chunk is a disjoint (length, position-range) unit of work, the
// granularity workers receive their candidates at.
type chunk struct {
	length   int
	startPos int
	endPos   int // exclusive
}

const chunkPositionSpan = 2000

// enumerateCandidates implements Phase 1: bucket every (position, length)
// window by content hash, across lengths [minLen, maxLen], using a bounded
// worker pool. Buckets with more than one member are candidate patterns.
//
// Each chunk is processed with a per-chunk timeout (default 30s); on
// timeout the chunk is retried once, serially, on the same worker
// goroutine, with no timeout of its own, so it always completes.
func enumerateCandidates(cells []apu.Cell, cfg config.Config, d *diag.Diagnostics) []group {
	minLen, maxLen := cfg.MinPatternLength, cfg.MaxPatternLength
	if minLen < 1 {
		minLen = 1
	}
	if maxLen < minLen {
		maxLen = minLen
	}

	var chunks []chunk
	for length := minLen; length <= maxLen; length++ {
		maxStart := len(cells) - length
		if maxStart < 0 {
			continue
		}
		for start := 0; start <= maxStart; start += chunkPositionSpan {
			end := start + chunkPositionSpan
			if end > maxStart+1 {
				end = maxStart + 1
			}
			chunks = append(chunks, chunk{length: length, startPos: start, endPos: end})
		}
	}

	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(chunks) && len(chunks) > 0 {
		workers = len(chunks)
	}
	timeout := time.Duration(cfg.WorkerChunkTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	results := make([]map[string][]uint32, len(chunks))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < max(workers, 1); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				c := chunks[idx]
				m, ok := runChunkWithTimeout(cells, c, timeout)
				if !ok {
					// Retry once, serially, with no timeout.
					m = bucketChunk(cells, c)
				}
				results[idx] = m
			}
		}()
	}
	for idx := range chunks {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	// Deterministic merge: combine per-chunk maps keyed by "length:hash",
	// sorted by hash then position, so the result never depends on
	// worker scheduling order.
	merged := make(map[lengthHashKey][]uint32)
	for i, m := range results {
		if m == nil {
			continue
		}
		length := chunks[i].length
		for hash, positions := range m {
			key := lengthHashKey{length, hash}
			merged[key] = append(merged[key], positions...)
		}
	}

	var groups []group
	for key, positions := range merged {
		sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
		if len(positions) < 2 {
			continue
		}
		groups = append(groups, group{length: key.length, hash: key.hash, positions: positions})
	}

	// Canonical ordering: ascending (length, first_position), independent
	// of worker completion order.
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].length != groups[j].length {
			return groups[i].length < groups[j].length
		}
		if groups[i].positions[0] != groups[j].positions[0] {
			return groups[i].positions[0] < groups[j].positions[0]
		}
		return groups[i].hash < groups[j].hash
	})

	return groups
}

type lengthHashKey struct {
	length int
	hash   string
}

func runChunkWithTimeout(cells []apu.Cell, c chunk, timeout time.Duration) (map[string][]uint32, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan map[string][]uint32, 1)
	go func() {
		done <- bucketChunk(cells, c)
	}()

	select {
	case m := <-done:
		return m, true
	case <-ctx.Done():
		return nil, false
	}
}

func bucketChunk(cells []apu.Cell, c chunk) map[string][]uint32 {
	m := make(map[string][]uint32)
	for pos := c.startPos; pos < c.endPos; pos++ {
		window := cells[pos : pos+c.length]
		h := cellSignature(window)
		m[h] = append(m[h], uint32(pos))
	}
	return m
}
