package configview

import (
	"testing"

	"github.com/orangescada/opcua/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice() *domain.Device {
	return &domain.Device{
		DeviceUID:   "D1",
		EndpointURL: "opc.tcp://x",
		TagOrder:    []string{"1", "2"},
		Tags: map[string]*domain.Tag{
			"1": {TagUID: "1", Name: "temp", Type: domain.TagTypeFloat, Read: true, Write: false, NodeID: "ns=2;s=Temp", ArrayIndex: -1},
			"2": {TagUID: "2", Name: "stale", Type: domain.TagTypeFloat, Read: true, Write: false, NodeID: "ns=2;s=Stale", ArrayIndex: -1},
		},
	}
}

func TestEndpointURL_Found(t *testing.T) {
	store := NewStore("", map[string]*domain.Device{"D1": newTestDevice()})
	url, ok := store.EndpointURL("D1")
	require.True(t, ok)
	assert.Equal(t, "opc.tcp://x", url)
}

func TestEndpointURL_UnknownDevice(t *testing.T) {
	store := NewStore("", map[string]*domain.Device{})
	_, ok := store.EndpointURL("nope")
	assert.False(t, ok)
}

func TestPopulateDevice_ReusesMatchingNameAndDropsStale(t *testing.T) {
	store := NewStore("", map[string]*domain.Device{"D1": newTestDevice()})

	err := store.PopulateDevice("D1", []domain.DiscoveredTag{
		{Name: "temp", NodeID: "ns=2;s=Temp", NodeType: 11, ArrayIndex: -1, TagType: domain.TagTypeFloat},
		{Name: "newone", NodeID: "ns=2;s=New", NodeType: 1, ArrayIndex: -1, TagType: domain.TagTypeBool},
	})
	require.NoError(t, err)

	dev, _ := store.Device("D1")
	assert.Len(t, dev.Tags, 2)

	tempTag, ok := dev.TagByName("temp")
	require.True(t, ok)
	assert.Equal(t, "1", tempTag.TagUID, "existing tagUid must be reused by name match")

	newTag, ok := dev.TagByName("newone")
	require.True(t, ok)
	assert.NotEmpty(t, newTag.TagUID)

	_, staleStillPresent := dev.TagByName("stale")
	assert.False(t, staleStillPresent, "unmatched prior tag must be dropped after merge")

	assert.Equal(t, domain.BrowseTriggerStop, dev.BrowseTrigger)
}

func TestPopulateDevice_NewTagUIDIsMaxPlusOne(t *testing.T) {
	store := NewStore("", map[string]*domain.Device{"D1": newTestDevice()})

	err := store.PopulateDevice("D1", []domain.DiscoveredTag{
		{Name: "temp", NodeID: "ns=2;s=Temp", ArrayIndex: -1, TagType: domain.TagTypeFloat},
		{Name: "fresh", NodeID: "ns=2;s=Fresh", ArrayIndex: -1, TagType: domain.TagTypeInt},
	})
	require.NoError(t, err)

	dev, _ := store.Device("D1")
	fresh, ok := dev.TagByName("fresh")
	require.True(t, ok)
	assert.Equal(t, "3", fresh.TagUID)
}

func TestPopulateDevice_UnknownDevice(t *testing.T) {
	store := NewStore("", map[string]*domain.Device{})
	err := store.PopulateDevice("nope", nil)
	assert.ErrorIs(t, err, domain.ErrDeviceIDNotFound)
}
