package opcua

import (
	"sync"

	"github.com/gopcua/opcua/ua"
	"github.com/orangescada/opcua/internal/domain"
)

// TagRecord is one supervisor-visible tag projected from a NodeRecord.
// Several TagRecords can point at the same NodeRecord when they differ
// by arrayIndex or type.
type TagRecord struct {
	DeviceUID string
	TagUID    string
	Tag       *domain.Tag
}

// NodeRecord is the at-most-one monitored item backing one or more
// TagRecords.
type NodeRecord struct {
	mu           sync.RWMutex
	NodeID       *ua.NodeID
	NodeIDString string
	ClientHandle uint32
	LastValue    any
	LastQuality  ua.StatusCode
	tags         []*TagRecord
}

// Snapshot returns the NodeRecord's last observed raw value and quality
//. It is the only way the Request Engine
// reads a node's value: steady-state reads never touch the wire.
func (n *NodeRecord) Snapshot() (any, ua.StatusCode) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.LastValue, n.LastQuality
}

func (n *NodeRecord) update(v any, quality ua.StatusCode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.LastValue = v
	n.LastQuality = quality
}

// Tags returns a snapshot of the TagRecords fanned out from this node,
// for the Change Pump to project and forward.
func (n *NodeRecord) Tags() []*TagRecord {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*TagRecord, len(n.tags))
	copy(out, n.tags)
	return out
}

// registry is the Monitor Registry for a single connection: the fan-out
// index from node-id to NodeRecord to TagRecords, and the reverse index
// from OPC UA client handle to NodeRecord needed by the Change Pump.
type registry struct {
	mu          sync.Mutex
	byNodeID    map[string]*NodeRecord
	byHandle    map[uint32]*NodeRecord
	nextHandle  uint32
}

func newRegistry() *registry {
	return &registry{
		byNodeID: make(map[string]*NodeRecord),
		byHandle: make(map[uint32]*NodeRecord),
	}
}

// checkIfTagsInMonitor reports which of the given tags do not yet have a
// NodeRecord, so the caller knows which tags still need to be seeded via
// registerTags before a read or write can be served.
func (r *registry) checkIfTagsInMonitor(tags []*domain.Tag) []*domain.Tag {
	r.mu.Lock()
	defer r.mu.Unlock()

	var missing []*domain.Tag
	for _, tag := range tags {
		nodeID, err := ParseNodeID(tag.NodeID)
		if err != nil {
			// registerTags reports the parse failure to the caller.
			missing = append(missing, tag)
			continue
		}
		rec, ok := r.byNodeID[NodeIDString(nodeID)]
		if !ok {
			missing = append(missing, tag)
			continue
		}
		if !hasTagUID(rec, tag.TagUID) {
			missing = append(missing, tag)
		}
	}
	return missing
}

func hasTagUID(rec *NodeRecord, tagUID string) bool {
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	for _, t := range rec.tags {
		if t.TagUID == tagUID {
			return true
		}
	}
	return false
}

// seeded describes a NodeRecord that registerTags just created and that
// the caller must still create an OPC UA monitored item for.
type seeded struct {
	record *NodeRecord
	nodeID *ua.NodeID
}

// registerTags ensures each tag has a backing NodeRecord, creating new
// NodeRecords (and allocating fresh client handles) only for node-ids
// not already tracked on this connection. It returns the NodeRecords
// that are new and therefore still need a monitored item created against
// the live OPC UA subscription.
func (r *registry) registerTags(deviceUID string, tags []*domain.Tag) ([]seeded, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var fresh []seeded
	for _, tag := range tags {
		nodeID, err := ParseNodeID(tag.NodeID)
		if err != nil {
			return fresh, err
		}
		nodeKey := NodeIDString(nodeID)

		rec, ok := r.byNodeID[nodeKey]
		if !ok {
			r.nextHandle++
			rec = &NodeRecord{
				NodeID:       nodeID,
				NodeIDString: nodeKey,
				ClientHandle: r.nextHandle,
			}
			r.byNodeID[nodeKey] = rec
			r.byHandle[rec.ClientHandle] = rec
			fresh = append(fresh, seeded{record: rec, nodeID: nodeID})
		}

		rec.mu.Lock()
		if !hasTagUIDLocked(rec, tag.TagUID) {
			rec.tags = append(rec.tags, &TagRecord{DeviceUID: deviceUID, TagUID: tag.TagUID, Tag: tag})
		}
		rec.mu.Unlock()
	}
	return fresh, nil
}

func hasTagUIDLocked(rec *NodeRecord, tagUID string) bool {
	for _, t := range rec.tags {
		if t.TagUID == tagUID {
			return true
		}
	}
	return false
}

// byHandleRecord resolves an incoming data-change notification's client
// handle back to its NodeRecord (and therefore its fanned-out tags).
func (r *registry) byHandleRecord(handle uint32) (*NodeRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byHandle[handle]
	return rec, ok
}

func (r *registry) nodeRecord(nodeIDString string) (*NodeRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byNodeID[nodeIDString]
	return rec, ok
}

// mustParse panics on an invalid node-id string. It is only for node-ids
// known to be well-formed, such as literals; configured tag node-ids go
// through ParseNodeID instead, since Device.Validate does not check them.
func mustParse(s string) *ua.NodeID {
	nodeID, err := ua.ParseNodeID(s)
	if err != nil {
		panic("opcua: invalid node id reached registry unvalidated: " + s)
	}
	return nodeID
}
