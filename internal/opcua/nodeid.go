package opcua

import (
	"fmt"

	"github.com/gopcua/opcua/ua"
)

// ParseNodeID parses the canonical node-id string form
// ("ns=<N>;{i|s|g|b}=<V>", namespace 0 omitted) into a *ua.NodeID.
func ParseNodeID(s string) (*ua.NodeID, error) {
	nodeID, err := ua.ParseNodeID(s)
	if err != nil {
		return nil, fmt.Errorf("parse node id %q: %w", s, err)
	}
	return nodeID, nil
}

// NodeIDString renders a *ua.NodeID back to its canonical string form.
// gopcua's NodeID.String() already omits namespace 0.
func NodeIDString(nodeID *ua.NodeID) string {
	return nodeID.String()
}
