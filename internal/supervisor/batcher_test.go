package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu     sync.Mutex
	frames []asyncTagsValuesFrame
}

func (w *recordingWriter) writeFrame(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if f, ok := v.(asyncTagsValuesFrame); ok {
		w.frames = append(w.frames, f)
	}
	return nil
}

func (w *recordingWriter) snapshot() []asyncTagsValuesFrame {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]asyncTagsValuesFrame, len(w.frames))
	copy(out, w.frames)
	return out
}

func TestBatcher_CoalescesSameKeyWithinWindow(t *testing.T) {
	w := &recordingWriter{}
	var lastTransID atomic.Int64
	lastTransID.Store(5)

	b := NewBatcher(w, &lastTransID, 20*time.Millisecond, zerolog.Nop())
	b.Publish("D1", "temp", 1.0)
	b.Publish("D1", "temp", 2.0)
	b.Publish("D1", "pressure", 3.0)

	b.flush()

	frames := w.snapshot()
	require.Len(t, frames, 1)
	assert.Equal(t, "D1", frames[0].DeviceUID)
	assert.Equal(t, 2.0, frames[0].Values["temp"], "later publish in the same window must win")
	assert.Equal(t, 3.0, frames[0].Values["pressure"])
}

func TestBatcher_TransIDIsAtLeastTenAboveLastRequest(t *testing.T) {
	w := &recordingWriter{}
	var lastTransID atomic.Int64
	lastTransID.Store(42)

	b := NewBatcher(w, &lastTransID, 20*time.Millisecond, zerolog.Nop())
	b.Publish("D1", "temp", 1.0)
	b.flush()

	frames := w.snapshot()
	require.Len(t, frames, 1)
	assert.GreaterOrEqual(t, frames[0].TransID, int64(52))
}

func TestBatcher_EmptyFlushWritesNothing(t *testing.T) {
	w := &recordingWriter{}
	var lastTransID atomic.Int64

	b := NewBatcher(w, &lastTransID, 20*time.Millisecond, zerolog.Nop())
	b.flush()

	assert.Empty(t, w.snapshot())
}

func TestBatcher_StartStopFlushesPending(t *testing.T) {
	w := &recordingWriter{}
	var lastTransID atomic.Int64

	b := NewBatcher(w, &lastTransID, time.Hour, zerolog.Nop())
	b.Start(context.Background())
	b.Publish("D1", "temp", 1.0)
	b.Stop()

	frames := w.snapshot()
	require.Len(t, frames, 1)
	assert.Equal(t, "D1", frames[0].DeviceUID)
}
