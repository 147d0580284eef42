// Connection Manager: owns one ConnectionRecord per (endpointUrl,
// deviceUid) pair and drives it through the five-state lifecycle
// Absent -> Connecting -> Sessioned -> Subscribed -> (destroy) ->
// Absent.
package opcua

import (
	"context"
	"fmt"
	"sync"

	"github.com/gopcua/opcua/ua"
	"github.com/orangescada/opcua/internal/domain"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

type state int

const (
	stateAbsent state = iota
	stateConnecting
	stateSessioned
	stateSubscribed
)

func (s state) String() string {
	switch s {
	case stateAbsent:
		return "absent"
	case stateConnecting:
		return "connecting"
	case stateSessioned:
		return "sessioned"
	case stateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// connectionKey is the Connection Manager's map key. It is the composite
// of endpoint and device, not the endpoint alone: two devices sharing an
// endpoint must never collapse onto one record.
type connectionKey struct {
	EndpointURL string
	DeviceUID   string
}

// ConnectionRecord is one OPC UA connection's lifecycle state plus its
// Monitor Registry.
type ConnectionRecord struct {
	mu       sync.Mutex
	key      connectionKey
	state    state
	client   *client
	registry *registry
}

// Manager is the Connection Manager. One Manager serves every device the
// Config View knows about.
type Manager struct {
	mu       sync.RWMutex
	records  map[connectionKey]*ConnectionRecord
	breakers sync.Map // deviceUID -> *gobreaker.CircuitBreaker
	logger   zerolog.Logger
	metrics  connectionMetrics
}

// connectionMetrics is the subset of internal/metrics.Registry the
// Connection Manager touches, narrowed to an interface so this package
// does not import the metrics package directly.
type connectionMetrics interface {
	IncConnectionDestroys(reason string)
	SetLiveConnections(n int)
}

func NewManager(logger zerolog.Logger, metrics connectionMetrics) *Manager {
	return &Manager{
		records: make(map[connectionKey]*ConnectionRecord),
		logger:  logger.With().Str("component", "connection-manager").Logger(),
		metrics: metrics,
	}
}

// LiveConnectionCount implements health.ConnectionObserver.
func (m *Manager) LiveConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.records {
		rec.mu.Lock()
		if rec.state == stateSubscribed {
			n++
		}
		rec.mu.Unlock()
	}
	return n
}

// IsSubscribed reports whether dev currently has a live, Subscribed
// connection, without attempting to create one.
func (m *Manager) IsSubscribed(dev *domain.Device) bool {
	key := connectionKey{EndpointURL: dev.EndpointURL, DeviceUID: dev.DeviceUID}
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state == stateSubscribed
}

func (m *Manager) breakerFor(deviceUID string) *gobreaker.CircuitBreaker {
	if v, ok := m.breakers.Load(deviceUID); ok {
		return v.(*gobreaker.CircuitBreaker)
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "opcua-device-" + deviceUID,
		MaxRequests: 1,
		Timeout:     30_000_000_000, // 30s, expressed in ns to avoid importing time here twice
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	actual, _ := m.breakers.LoadOrStore(deviceUID, cb)
	return actual.(*gobreaker.CircuitBreaker)
}

// ensure drives the record for dev to at least Subscribed, dialing and
// subscribing through the circuit breaker if it is currently Absent.
// Destroy semantics live in destroy; ensure never silently retries
// past an open breaker.
func (m *Manager) ensure(ctx context.Context, dev *domain.Device) (*ConnectionRecord, error) {
	key := connectionKey{EndpointURL: dev.EndpointURL, DeviceUID: dev.DeviceUID}

	m.mu.Lock()
	rec, ok := m.records[key]
	if !ok {
		rec = &ConnectionRecord{key: key, registry: newRegistry()}
		m.records[key] = rec
	}
	m.mu.Unlock()

	rec.mu.Lock()
	if rec.state == stateSubscribed {
		rec.mu.Unlock()
		return rec, nil
	}

	breaker := m.breakerFor(dev.DeviceUID)
	_, err := breaker.Execute(func() (any, error) {
		rec.state = stateConnecting
		c, err := dial(ctx, dev.EndpointURL, dev.Security, m.logger)
		if err != nil {
			rec.state = stateAbsent
			return nil, err
		}
		rec.client = c
		rec.state = stateSessioned

		if err := c.createSubscription(ctx); err != nil {
			c.close(ctx)
			rec.client = nil
			rec.state = stateAbsent
			return nil, err
		}
		rec.state = stateSubscribed
		return nil, nil
	})
	// Release before updateLiveGauge: LiveConnectionCount locks every
	// record's mutex, this one included.
	rec.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: device %s: %v", domain.ErrOpcReject, dev.DeviceUID, err)
	}

	m.updateLiveGauge()
	return rec, nil
}

func (m *Manager) updateLiveGauge() {
	if m.metrics != nil {
		m.metrics.SetLiveConnections(m.LiveConnectionCount())
	}
}

// EnsureMonitored brings dev's connection to Subscribed and registers
// tags against the Monitor Registry, creating OPC UA monitored items for
// any node-id not already tracked.
func (m *Manager) EnsureMonitored(ctx context.Context, dev *domain.Device, tags []*domain.Tag) error {
	rec, err := m.ensure(ctx, dev)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	fresh, err := rec.registry.registerTags(dev.DeviceUID, tags)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigError, err)
	}
	for _, s := range fresh {
		if err := rec.client.monitor(ctx, s.nodeID, s.record.ClientHandle); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrOpcReject, err)
		}
	}
	return nil
}

// MissingTags reports which tags are not yet tracked by dev's Monitor
// Registry, used by the Request Engine to decide whether a read must
// first bootstrap monitoring.
func (m *Manager) MissingTags(dev *domain.Device, tags []*domain.Tag) []*domain.Tag {
	key := connectionKey{EndpointURL: dev.EndpointURL, DeviceUID: dev.DeviceUID}
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return tags
	}
	return rec.registry.checkIfTagsInMonitor(tags)
}

// NodeRecordFor returns the cached NodeRecord backing tag, if any.
func (m *Manager) NodeRecordFor(dev *domain.Device, tag *domain.Tag) (*NodeRecord, bool) {
	key := connectionKey{EndpointURL: dev.EndpointURL, DeviceUID: dev.DeviceUID}
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	nodeID, err := ParseNodeID(tag.NodeID)
	if err != nil {
		return nil, false
	}
	return rec.registry.nodeRecord(NodeIDString(nodeID))
}

// Write performs a live write against dev's connection, dialing it first
// if necessary.
func (m *Manager) Write(ctx context.Context, dev *domain.Device, tag *domain.Tag, v *ua.Variant) error {
	rec, err := m.ensure(ctx, dev)
	if err != nil {
		return err
	}
	nodeID, err := ParseNodeID(tag.NodeID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigError, err)
	}

	rec.mu.Lock()
	c := rec.client
	rec.mu.Unlock()

	return c.write(ctx, nodeID, v)
}

// Read performs a one-shot attribute read against dev's connection,
// dialing it first if necessary. Used only by the Browser;
// the Request Engine's steady-state read never calls this.
func (m *Manager) Read(ctx context.Context, dev *domain.Device, nodeID *ua.NodeID) (*ua.DataValue, error) {
	rec, err := m.ensure(ctx, dev)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	c := rec.client
	rec.mu.Unlock()

	return c.read(ctx, nodeID)
}

// Browse lists the direct children of nodeID on dev's connection,
// dialing it first if necessary.
func (m *Manager) Browse(ctx context.Context, dev *domain.Device, nodeID *ua.NodeID) ([]*ua.ReferenceDescription, error) {
	rec, err := m.ensure(ctx, dev)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	c := rec.client
	rec.mu.Unlock()

	return c.browseChildren(ctx, nodeID)
}

// Restart forces dev's connection back to Absent; the next read,
// write or browse re-dials and re-subscribes from scratch. Both
// subscription-delete and session-close failures are swallowed.
func (m *Manager) Restart(ctx context.Context, dev *domain.Device, reason string) {
	key := connectionKey{EndpointURL: dev.EndpointURL, DeviceUID: dev.DeviceUID}
	m.mu.Lock()
	rec, ok := m.records[key]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.destroy(ctx, rec, reason)
}

func (m *Manager) destroy(ctx context.Context, rec *ConnectionRecord, reason string) {
	rec.mu.Lock()
	if rec.client != nil {
		rec.client.close(ctx)
		rec.client = nil
	}
	rec.state = stateAbsent
	rec.registry = newRegistry()
	rec.mu.Unlock()

	if m.metrics != nil {
		m.metrics.IncConnectionDestroys(reason)
	}
	m.updateLiveGauge()
}

// PumpNotification resolves an incoming data-change notification's
// client handle to its NodeRecord and updates the cached value, for the
// Change Pump to then fan out to tags.
func (m *Manager) PumpNotification(dev *domain.Device, handle uint32, value any, quality ua.StatusCode) (*NodeRecord, bool) {
	key := connectionKey{EndpointURL: dev.EndpointURL, DeviceUID: dev.DeviceUID}
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	nodeRec, ok := rec.registry.byHandleRecord(handle)
	if !ok {
		return nil, false
	}
	nodeRec.update(value, quality)
	return nodeRec, true
}

// NotifyChannel exposes dev's raw subscription notification channel for
// the Change Pump to range over. Returns false if the connection is not
// currently Subscribed.
func (m *Manager) NotifyChannel(dev *domain.Device) (<-chan *ua.DataChangeNotification, bool) {
	key := connectionKey{EndpointURL: dev.EndpointURL, DeviceUID: dev.DeviceUID}
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state != stateSubscribed || rec.client == nil {
		return nil, false
	}
	return notificationAdapter(rec.client.notifyCh), true
}
