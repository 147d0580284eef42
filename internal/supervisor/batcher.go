package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// frameWriter is the per-connection line writer; satisfied by
// *connHandler so the Batcher does not need to know about net.Conn.
type frameWriter interface {
	writeFrame(v any) error
}

// Batcher coalesces engine.ChangePump publishes into one
// asyncTagsValues frame per deviceUid every 100ms, using the latest
// value per (deviceUid, tagName) key within the window.
type Batcher struct {
	mu      sync.Mutex
	pending map[string]map[string]any

	writer   frameWriter
	interval time.Duration
	logger   zerolog.Logger

	lastRequestTransID *atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewBatcher(writer frameWriter, lastRequestTransID *atomic.Int64, interval time.Duration, logger zerolog.Logger) *Batcher {
	return &Batcher{
		writer:             writer,
		interval:           interval,
		logger:             logger.With().Str("component", "batcher").Logger(),
		lastRequestTransID: lastRequestTransID,
	}
}

// Start launches the flush loop. Callers must call Stop to release it.
func (b *Batcher) Start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.loop()
}

// Stop flushes any pending updates and stops the loop.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()
		b.wg.Wait()
	})
}

// Publish implements engine.BatchSink: it records the latest value for
// (deviceUID, tagName), overwriting any value queued earlier in the
// same window.
func (b *Batcher) Publish(deviceUID, tagName string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		b.pending = make(map[string]map[string]any)
	}
	values, ok := b.pending[deviceUID]
	if !ok {
		values = make(map[string]any)
		b.pending[deviceUID] = values
	}
	values[tagName] = value
}

func (b *Batcher) loop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			b.flush()
			return
		case <-ticker.C:
			b.flush()
		}
	}
}

func (b *Batcher) flush() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	base := b.lastRequestTransID.Load() + 10
	i := int64(0)
	for deviceUID, values := range pending {
		frame := asyncTagsValuesFrame{
			Cmd:       cmdAsyncTagsValues,
			TransID:   base + i,
			DeviceUID: deviceUID,
			Values:    values,
		}
		i++
		if err := b.writer.writeFrame(frame); err != nil {
			b.logger.Warn().Err(err).Str("device", deviceUID).Msg("failed to write asyncTagsValues frame")
		}
	}
}
