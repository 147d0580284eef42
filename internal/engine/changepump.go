package engine

import (
	"context"

	"github.com/gopcua/opcua/ua"
	"github.com/orangescada/opcua/internal/coerce"
	"github.com/orangescada/opcua/internal/domain"
	opcuaconn "github.com/orangescada/opcua/internal/opcua"
	"github.com/rs/zerolog"
)

// BatchSink receives one projected tag update at a time; the supervisor
// package's Batcher implements this to coalesce updates into
// asyncTagsValues frames.
type BatchSink interface {
	Publish(deviceUID, tagName string, value any)
}

// ChangePump is one goroutine per connection, ranging over its OPC UA
// data-change notifications, updating the Monitor Registry, and
// fanning projected values out to the Batcher: lookup by client
// handle, update cached value, invoke the sink.
type ChangePump struct {
	manager *opcuaconn.Manager
	sink    BatchSink
	logger  zerolog.Logger
}

func NewChangePump(manager *opcuaconn.Manager, sink BatchSink, logger zerolog.Logger) *ChangePump {
	return &ChangePump{
		manager: manager,
		sink:    sink,
		logger:  logger.With().Str("component", "change-pump").Logger(),
	}
}

// Run drains dev's notification channel until it closes or ctx is
// cancelled. Callers start one Run per connection once it reaches the
// Subscribed state.
func (p *ChangePump) Run(ctx context.Context, dev *domain.Device) {
	ch, ok := p.manager.NotifyChannel(dev)
	if !ok {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			p.handleNotification(dev, change)
		}
	}
}

func (p *ChangePump) handleNotification(dev *domain.Device, change *ua.DataChangeNotification) {
	if change == nil {
		return
	}
	for _, item := range change.MonitoredItems {
		if item == nil {
			continue
		}
		p.handleItem(dev, item)
	}
}

func (p *ChangePump) handleItem(dev *domain.Device, item *ua.MonitoredItemNotification) {
	var raw any
	var quality ua.StatusCode
	if item.Value != nil {
		quality = item.Value.Status
		if item.Value.Value != nil {
			raw = item.Value.Value.Value()
		}
	}

	rec, ok := p.manager.PumpNotification(dev, item.ClientHandle, raw, quality)
	if !ok {
		// Possible race with connection teardown: drop.
		p.logger.Debug().Str("device", dev.DeviceUID).Uint32("handle", item.ClientHandle).
			Msg("data-change notification for unknown handle, dropped")
		return
	}

	for _, tr := range rec.Tags() {
		projected := coerce.ByIndex(tr.Tag.ArrayIndex, raw)
		if projected != nil {
			projected = coerce.ByType(tr.Tag.Type, projected)
		}
		p.sink.Publish(tr.DeviceUID, tr.Tag.Name, projected)
	}
}
