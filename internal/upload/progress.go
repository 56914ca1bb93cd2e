package upload

import "sync"

// Progress is a point-in-time snapshot of an upload. Snapshots are emitted
// once when the transfer starts and once per completed part.
type Progress struct {
	UploadID       string
	FileName       string
	TotalParts     int
	PartsCompleted int
	TotalBytes     int64
	BytesCompleted int64
}

// ProgressFunc observes upload progress. It is called from transfer worker
// goroutines (serialized by the engine) and must not block for long.
type ProgressFunc func(Progress)

// tracker serializes progress updates from concurrent part workers.
type tracker struct {
	mu  sync.Mutex
	fn  ProgressFunc
	cur Progress
}

// newTracker seeds a tracker and emits the initial snapshot. For a resumed
// upload the completed counts start from what the server already holds.
func newTracker(fn ProgressFunc, initial Progress) *tracker {
	t := &tracker{fn: fn, cur: initial}

	if fn != nil {
		fn(initial)
	}

	return t
}

// partDone records one completed part and emits a snapshot.
func (t *tracker) partDone(sizeBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cur.PartsCompleted++
	t.cur.BytesCompleted += sizeBytes

	if t.fn != nil {
		t.fn(t.cur)
	}
}
