// Package engine implements the five supervisor-visible operations
// (status, read, write, browse, restart), each resolving through
// Config View before touching the Connection Manager / Monitor
// Registry: resolve device, find tag, check writable, dispatch,
// structured response.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/gopcua/opcua/ua"
	"github.com/orangescada/opcua/internal/browse"
	"github.com/orangescada/opcua/internal/coerce"
	"github.com/orangescada/opcua/internal/configview"
	"github.com/orangescada/opcua/internal/domain"
	opcuaconn "github.com/orangescada/opcua/internal/opcua"
	"github.com/rs/zerolog"
)

// TagResult is one element of a read response: either a projected
// value or a per-tag error. A per-tag failure does not abort its
// siblings during assembly.
type TagResult struct {
	TagName string
	Value   any
	Err     error
}

// Engine wires Config View, the Connection Manager, the Browser and the
// Change Pump together into the five request operations.
type Engine struct {
	store      *configview.Store
	manager    *opcuaconn.Manager
	browser    *browse.Browser
	changePump *ChangePump
	logger     zerolog.Logger

	pumpStarted sync.Map // deviceUID -> struct{}
}

func New(store *configview.Store, manager *opcuaconn.Manager, browser *browse.Browser, sink BatchSink, logger zerolog.Logger) *Engine {
	logger = logger.With().Str("component", "engine").Logger()
	return &Engine{
		store:      store,
		manager:    manager,
		browser:    browser,
		changePump: NewChangePump(manager, sink, logger),
		logger:     logger,
	}
}

// ensurePumpStarted starts at most one Change Pump goroutine per device.
// Run exits when the connection's notification channel closes on
// destroy; the device's entry is then cleared so the next request that
// brings the connection back up starts a fresh pump.
func (e *Engine) ensurePumpStarted(dev *domain.Device) {
	if _, already := e.pumpStarted.LoadOrStore(dev.DeviceUID, struct{}{}); already {
		return
	}
	go func() {
		e.changePump.Run(context.Background(), dev)
		e.pumpStarted.Delete(dev.DeviceUID)
	}()
}

// resolveDevice is the pre-dispatch step every operation runs first
//: an unknown device fails the whole request with
// DeviceIdNotFound before the Connection Manager is ever consulted.
func (e *Engine) resolveDevice(deviceUID string) (*domain.Device, error) {
	dev, ok := e.store.Device(deviceUID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDeviceIDNotFound, deviceUID)
	}
	return dev, nil
}

// Status reports whether deviceUid has a live (Subscribed) connection.
// If not, it kicks off a background ensureConnection seeded with the
// device's first tag and reports false immediately without waiting on
// it.
func (e *Engine) Status(ctx context.Context, deviceUID string) (bool, error) {
	dev, err := e.resolveDevice(deviceUID)
	if err != nil {
		return false, err
	}

	if e.manager.IsSubscribed(dev) {
		return true, nil
	}

	seedUID := dev.FirstTagUID()
	if seedUID != "" {
		seedTag := dev.Tags[seedUID]
		go func() {
			bgCtx := context.Background()
			if err := e.manager.EnsureMonitored(bgCtx, dev, []*domain.Tag{seedTag}); err != nil {
				e.logger.Debug().Err(err).Str("device", deviceUID).Msg("background ensureConnection failed")
				return
			}
			e.ensurePumpStarted(dev)
		}()
	}
	return false, nil
}

// Read returns the last observed projected value for each requested tag
// name, self-bootstrapping the Monitor Registry for any tag seen for
// the first time. Reads never touch the wire in
// steady state; values come from the subscription cache.
func (e *Engine) Read(ctx context.Context, deviceUID string, tagNames []string) ([]TagResult, error) {
	dev, err := e.resolveDevice(deviceUID)
	if err != nil {
		return nil, err
	}

	results := make([]TagResult, len(tagNames))
	var toRegister []*domain.Tag
	tagsByName := make(map[string]*domain.Tag, len(tagNames))

	for i, name := range tagNames {
		tag, ok := dev.TagByName(name)
		if !ok {
			results[i] = TagResult{TagName: name, Err: fmt.Errorf("%w: %s", domain.ErrTagNotFound, name)}
			continue
		}
		tagsByName[name] = tag
		toRegister = append(toRegister, tag)
	}

	if len(toRegister) > 0 {
		missing := e.manager.MissingTags(dev, toRegister)
		if len(missing) > 0 {
			if err := e.manager.EnsureMonitored(ctx, dev, missing); err != nil {
				return nil, err
			}
			e.ensurePumpStarted(dev)
		}
	}

	for i, name := range tagNames {
		tag, ok := tagsByName[name]
		if !ok {
			continue // already populated with TagNotFound above
		}
		rec, ok := e.manager.NodeRecordFor(dev, tag)
		if !ok {
			results[i] = TagResult{TagName: name, Value: nil}
			continue
		}
		raw, _ := rec.Snapshot()
		projected := coerce.ByIndex(tag.ArrayIndex, raw)
		if projected != nil {
			projected = coerce.ByType(tag.Type, projected)
		}
		results[i] = TagResult{TagName: name, Value: projected}
	}
	return results, nil
}

// WriteRequest is one (tagName -> setValue) pair in a setTagsValues
// call.
type WriteRequest struct {
	TagName  string
	SetValue any
}

// Write coerces and writes each requested tag. The first non-empty
// per-tag error fails the whole write.
func (e *Engine) Write(ctx context.Context, deviceUID string, writes []WriteRequest) error {
	dev, err := e.resolveDevice(deviceUID)
	if err != nil {
		return err
	}

	for _, w := range writes {
		if err := e.writeOne(ctx, dev, w); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) writeOne(ctx context.Context, dev *domain.Device, w WriteRequest) error {
	tag, ok := dev.TagByName(w.TagName)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTagNotFound, w.TagName)
	}
	if !tag.Write {
		return fmt.Errorf("%w: %s", domain.ErrTagNotWriteable, w.TagName)
	}

	coerced, err := coerce.SetValue(tag.Type, w.SetValue)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWriteFail, err)
	}

	nodeID, err := opcuaconn.ParseNodeID(tag.NodeID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigError, err)
	}

	if tag.IsArray() {
		rec, ok := e.manager.NodeRecordFor(dev, tag)
		if !ok {
			return fmt.Errorf("%w: no observed array value yet for %s", domain.ErrWriteFail, w.TagName)
		}
		original, _ := rec.Snapshot()
		if original == nil {
			return fmt.Errorf("%w: no observed array value yet for %s", domain.ErrWriteFail, w.TagName)
		}
		whole, err := coerce.ReplaceElement(original, tag.ArrayIndex, coerced)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWriteFail, err)
		}
		coerced = whole
	} else {
		typed, err := coerce.ToDataType(tag.NodeType, coerced)
		if err != nil {
			return err
		}
		coerced = typed
	}

	variant, err := ua.NewVariant(coerced)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWriteFail, err)
	}

	return e.manager.Write(ctx, dev, tag, variant)
}

// Browse triggers the Browser for deviceUid.
func (e *Engine) Browse(ctx context.Context, deviceUID string) error {
	if _, err := e.resolveDevice(deviceUID); err != nil {
		return err
	}
	return e.browser.Browse(ctx, deviceUID)
}

// Restart destroys deviceUid's current connection, if any; the next
// read/write reconnects from scratch.
func (e *Engine) Restart(ctx context.Context, deviceUID string) error {
	dev, err := e.resolveDevice(deviceUID)
	if err != nil {
		return err
	}
	e.manager.Restart(ctx, dev, "restartDevice")
	return nil
}
