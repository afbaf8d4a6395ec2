// Package audio holds the per-session audio input buffering.
package audio

import (
	"sync"
)

// ChunkQueue is a thread-safe bounded queue of raw audio buffers. When full,
// pushing drops the oldest chunk so the most recent speech is preserved.
type ChunkQueue struct {
	mu       sync.Mutex
	chunks   [][]byte
	capacity int
	dropped  int64
}

// NewChunkQueue creates a queue holding at most capacity chunks
func NewChunkQueue(capacity int) *ChunkQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &ChunkQueue{
		chunks:   make([][]byte, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a chunk, dropping the oldest when at capacity.
// Returns true if an old chunk was dropped.
func (q *ChunkQueue) Push(chunk []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if len(q.chunks) >= q.capacity {
		q.chunks = q.chunks[1:]
		q.dropped++
		dropped = true
	}
	q.chunks = append(q.chunks, chunk)
	return dropped
}

// PopBatch removes and returns up to max chunks in FIFO order
func (q *ChunkQueue) PopBatch(max int) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.chunks) == 0 || max <= 0 {
		return nil
	}
	n := max
	if n > len(q.chunks) {
		n = len(q.chunks)
	}
	batch := make([][]byte, n)
	copy(batch, q.chunks[:n])
	q.chunks = q.chunks[n:]
	return batch
}

// Len returns the number of queued chunks
func (q *ChunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

// Dropped returns the total number of chunks dropped since creation
func (q *ChunkQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Clear discards all queued chunks
func (q *ChunkQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = q.chunks[:0]
}
