package opcua

import (
	"testing"

	"github.com/orangescada/opcua/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopMetrics struct {
	destroyed map[string]int
	live      int
}

func (m *noopMetrics) IncConnectionDestroys(reason string) {
	if m.destroyed == nil {
		m.destroyed = make(map[string]int)
	}
	m.destroyed[reason]++
}

func (m *noopMetrics) SetLiveConnections(n int) { m.live = n }

func TestConnectionKey_IsCompositeNotEndpointAlone(t *testing.T) {
	m := NewManager(zerolog.Nop(), &noopMetrics{})

	devA := &domain.Device{DeviceUID: "A", EndpointURL: "opc.tcp://plant:4840"}
	devB := &domain.Device{DeviceUID: "B", EndpointURL: "opc.tcp://plant:4840"}

	keyA := connectionKey{EndpointURL: devA.EndpointURL, DeviceUID: devA.DeviceUID}
	keyB := connectionKey{EndpointURL: devB.EndpointURL, DeviceUID: devB.DeviceUID}
	assert.NotEqual(t, keyA, keyB, "same endpoint, different device must be distinct connection records")

	_ = m // manager construction itself must not panic for two devices sharing an endpoint
}

func TestRestart_OnUnknownDevice_IsNoop(t *testing.T) {
	m := NewManager(zerolog.Nop(), &noopMetrics{})
	dev := &domain.Device{DeviceUID: "ghost", EndpointURL: "opc.tcp://nowhere:4840"}

	assert.NotPanics(t, func() {
		m.Restart(nil, dev, "test")
	})
}

func TestLiveConnectionCount_StartsAtZero(t *testing.T) {
	m := NewManager(zerolog.Nop(), &noopMetrics{})
	require.Equal(t, 0, m.LiveConnectionCount())
}

func TestMissingTags_UnknownDeviceReportsAllMissing(t *testing.T) {
	m := NewManager(zerolog.Nop(), &noopMetrics{})
	dev := &domain.Device{DeviceUID: "D1", EndpointURL: "opc.tcp://plant:4840"}
	tags := []*domain.Tag{tag("1", "ns=2;s=Temperature")}

	missing := m.MissingTags(dev, tags)
	assert.Equal(t, tags, missing)
}
