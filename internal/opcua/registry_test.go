package opcua

import (
	"testing"

	"github.com/orangescada/opcua/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tag(uid, nodeID string) *domain.Tag {
	return &domain.Tag{TagUID: uid, NodeID: nodeID, Type: domain.TagTypeFloat}
}

func TestRegisterTags_SharedNodeIDGetsOneRecord(t *testing.T) {
	r := newRegistry()

	fresh, err := r.registerTags("D1", []*domain.Tag{
		tag("1", "ns=2;s=Temperature"),
		tag("2", "ns=2;s=Temperature"),
	})
	require.NoError(t, err)
	assert.Len(t, fresh, 1, "two tags on the same node must yield exactly one new NodeRecord")

	rec, ok := r.nodeRecord(NodeIDString(mustParse("ns=2;s=Temperature")))
	require.True(t, ok)
	assert.Len(t, rec.Tags(), 2)
}

func TestRegisterTags_DistinctNodesGetDistinctHandles(t *testing.T) {
	r := newRegistry()

	fresh, err := r.registerTags("D1", []*domain.Tag{
		tag("1", "ns=2;s=Temperature"),
		tag("2", "ns=2;s=Pressure"),
	})
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	assert.NotEqual(t, fresh[0].record.ClientHandle, fresh[1].record.ClientHandle)
}

func TestRegisterTags_ReRegisterIsIdempotent(t *testing.T) {
	r := newRegistry()

	_, err := r.registerTags("D1", []*domain.Tag{tag("1", "ns=2;s=Temperature")})
	require.NoError(t, err)

	fresh, err := r.registerTags("D1", []*domain.Tag{tag("1", "ns=2;s=Temperature")})
	require.NoError(t, err)
	assert.Empty(t, fresh, "re-registering an already-tracked tag must not create a new monitored item")
}

func TestCheckIfTagsInMonitor_ReportsMissingOnly(t *testing.T) {
	r := newRegistry()
	_, err := r.registerTags("D1", []*domain.Tag{tag("1", "ns=2;s=Temperature")})
	require.NoError(t, err)

	missing := r.checkIfTagsInMonitor([]*domain.Tag{
		tag("1", "ns=2;s=Temperature"),
		tag("2", "ns=2;s=Pressure"),
	})
	require.Len(t, missing, 1)
	assert.Equal(t, "2", missing[0].TagUID)
}

func TestByHandleRecord_ResolvesBackToNode(t *testing.T) {
	r := newRegistry()
	fresh, err := r.registerTags("D1", []*domain.Tag{tag("1", "ns=2;s=Temperature")})
	require.NoError(t, err)
	require.Len(t, fresh, 1)

	rec, ok := r.byHandleRecord(fresh[0].record.ClientHandle)
	require.True(t, ok)
	assert.Equal(t, "ns=2;s=Temperature", rec.NodeIDString)
}
