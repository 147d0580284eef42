package engine

import (
	"context"
	"testing"

	"github.com/orangescada/opcua/internal/browse"
	"github.com/orangescada/opcua/internal/configview"
	"github.com/orangescada/opcua/internal/domain"
	opcuaconn "github.com/orangescada/opcua/internal/opcua"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopSink struct{}

func (noopSink) Publish(string, string, any) {}

func newTestEngine(devices map[string]*domain.Device) *Engine {
	store := configview.NewStore("", devices)
	manager := opcuaconn.NewManager(zerolog.Nop(), nil)
	browser := browse.NewBrowser(manager, store, zerolog.Nop(), nil)
	return New(store, manager, browser, noopSink{}, zerolog.Nop())
}

func writableDevice() map[string]*domain.Device {
	return map[string]*domain.Device{
		"D1": {
			DeviceUID:   "D1",
			EndpointURL: "opc.tcp://plant:4840",
			TagOrder:    []string{"1", "2"},
			Tags: map[string]*domain.Tag{
				"1": {TagUID: "1", Name: "temp", Type: domain.TagTypeFloat, Read: true, Write: false, NodeID: "ns=2;s=Temp", ArrayIndex: -1},
				"2": {TagUID: "2", Name: "setpoint", Type: domain.TagTypeFloat, Read: true, Write: true, NodeID: "ns=2;s=Setpoint", ArrayIndex: -1},
			},
		},
	}
}

func TestRead_UnknownDevice(t *testing.T) {
	e := newTestEngine(writableDevice())
	_, err := e.Read(context.Background(), "ghost", []string{"temp"})
	require.ErrorIs(t, err, domain.ErrDeviceIDNotFound)
}

func TestRead_UnknownTagYieldsTagNotFoundWithoutAbortingRequest(t *testing.T) {
	e := newTestEngine(map[string]*domain.Device{
		"D1": {DeviceUID: "D1", EndpointURL: "opc.tcp://plant:4840", Tags: map[string]*domain.Tag{}},
	})

	results, err := e.Read(context.Background(), "D1", []string{"nope"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, domain.ErrTagNotFound)
}

func TestWrite_UnknownDevice(t *testing.T) {
	e := newTestEngine(writableDevice())
	err := e.Write(context.Background(), "ghost", []WriteRequest{{TagName: "setpoint", SetValue: 1.0}})
	require.ErrorIs(t, err, domain.ErrDeviceIDNotFound)
}

func TestWrite_UnknownTag(t *testing.T) {
	e := newTestEngine(writableDevice())
	err := e.Write(context.Background(), "D1", []WriteRequest{{TagName: "nope", SetValue: 1.0}})
	require.ErrorIs(t, err, domain.ErrTagNotFound)
}

func TestWrite_NonWriteableTag(t *testing.T) {
	e := newTestEngine(writableDevice())
	err := e.Write(context.Background(), "D1", []WriteRequest{{TagName: "temp", SetValue: 1.0}})
	require.ErrorIs(t, err, domain.ErrTagNotWriteable)
}

func TestRestart_UnknownDevice(t *testing.T) {
	e := newTestEngine(writableDevice())
	err := e.Restart(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrDeviceIDNotFound)
}

func TestBrowse_UnknownDeviceFailsBeforeBrowsing(t *testing.T) {
	e := newTestEngine(writableDevice())
	err := e.Browse(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrDeviceIDNotFound)
}

func TestStatus_UnknownDevice(t *testing.T) {
	e := newTestEngine(writableDevice())
	active, err := e.Status(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrDeviceIDNotFound)
	assert.False(t, active)
}
