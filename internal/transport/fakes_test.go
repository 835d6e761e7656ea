package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/gousb"
)

type readStep struct {
	data []byte
	err  error
}

// scriptedIn replays steps in order, then reports timeouts.
type scriptedIn struct {
	mu    sync.Mutex
	steps []readStep
	calls int
}

func (f *scriptedIn) ReadContext(_ context.Context, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.steps) == 0 {
		return 0, gousb.TransferTimedOut
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	if s.err != nil {
		return 0, s.err
	}
	return copy(buf, s.data), nil
}

// chanIn blocks until a step is queued or the context ends.
type chanIn struct {
	steps chan readStep
}

func newChanIn() *chanIn {
	return &chanIn{steps: make(chan readStep, 16)}
}

func (f *chanIn) ReadContext(ctx context.Context, buf []byte) (int, error) {
	select {
	case s := <-f.steps:
		if s.err != nil {
			return 0, s.err
		}
		return copy(buf, s.data), nil
	case <-ctx.Done():
		return 0, gousb.TransferCancelled
	}
}

type recordingOut struct {
	mu     sync.Mutex
	writes [][]byte
	errs   []error
	short  int
}

func (f *recordingOut) WriteContext(_ context.Context, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	f.writes = append(f.writes, append([]byte(nil), buf...))
	if f.short > 0 {
		return len(buf) - f.short, nil
	}
	return len(buf), nil
}

type countingHalter struct {
	mu      sync.Mutex
	cleared []uint8
	err     error
}

func (h *countingHalter) ClearHalt(ep uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleared = append(h.cleared, ep)
	return h.err
}

func (h *countingHalter) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cleared)
}

func stalls(n int) []readStep {
	steps := make([]readStep, n)
	for i := range steps {
		steps[i] = readStep{err: gousb.TransferStall}
	}
	return steps
}

func testConfig() USBConfig {
	return USBConfig{
		Channel:      Channel{Out: DefaultOutEndpoint, In: DefaultInEndpoint, Timeout: 50 * time.Millisecond},
		StallRetries: DefaultStallRetries,
		ReadSize:     64,
	}
}
