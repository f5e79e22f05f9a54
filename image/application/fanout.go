package application

import (
	"io"
	"sync"
)

// fanout is the client-facing side of a derivation stream. The pump
// goroutine pushes transform output into it while independently feeding
// the blob sink; the two consumers are paced separately, so a slow or
// disconnected client can never stall the persistence write.
//
// Chunks queue in memory, bounded by the size of one derived image.
type fanout struct {
	mu        sync.Mutex
	cond      *sync.Cond
	chunks    [][]byte
	cur       []byte
	err       error
	done      bool
	abandoned bool
}

func newFanout() *fanout {
	f := &fanout{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// push queues a copy of p for the reader. It never blocks and is a no-op
// once the reader has closed.
func (f *fanout) push(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.abandoned {
		return
	}

	chunk := make([]byte, len(p))
	copy(chunk, p)
	f.chunks = append(f.chunks, chunk)
	f.cond.Signal()
}

// finish marks the end of the stream. A non-nil err surfaces to the
// reader after all queued chunks are drained, so a mid-stream transform
// failure manifests as a truncated read.
func (f *fanout) finish(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.done = true
	f.err = err
	f.cond.Broadcast()
}

func (f *fanout) Read(p []byte) (int, error) {
	if len(f.cur) == 0 {
		f.mu.Lock()
		for len(f.chunks) == 0 && !f.done && !f.abandoned {
			f.cond.Wait()
		}

		switch {
		case f.abandoned:
			f.mu.Unlock()
			return 0, io.ErrClosedPipe
		case len(f.chunks) > 0:
			f.cur = f.chunks[0]
			f.chunks = f.chunks[1:]
			f.mu.Unlock()
		default:
			err := f.err
			f.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return 0, err
		}
	}

	n := copy(p, f.cur)
	f.cur = f.cur[n:]

	return n, nil
}

// Close abandons the stream on behalf of the client. The pump keeps
// running; only the queued chunks are dropped.
func (f *fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.abandoned = true
	f.chunks = nil
	f.cur = nil
	f.cond.Broadcast()

	return nil
}
