// Package opcua implements the Connection Manager and the Monitor
// Registry: per-device OPC UA client lifecycle and the tag/node
// fan-out index built on top of it, using gopcua's request/response
// API (Client.Subscribe, Client.CreateMonitoredItems,
// *ua.DataChangeNotification handling).
package opcua

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/orangescada/opcua/internal/domain"
	"github.com/rs/zerolog"
)

// client wraps a single *opcua.Client connection for one Connection
// Record. It is not safe for concurrent use on its own: callers must
// hold the owning ConnectionRecord's mutex.
type client struct {
	raw         *opcua.Client
	endpointURL string
	logger      zerolog.Logger

	subscriptionID uint32
	notifyCh       chan *opcua.PublishNotificationData
}

// dial opens a secure channel and session against endpointURL with the
// declared security settings. It does not create a
// subscription; that is a separate state transition (Sessioned ->
// Subscribed).
func dial(ctx context.Context, endpointURL string, sec domain.SecurityOptions, logger zerolog.Logger) (*client, error) {
	opts, err := securityOptions(sec)
	if err != nil {
		return nil, err
	}

	raw := opcua.NewClient(endpointURL, opts...)
	if err := raw.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %v", domain.ErrOpcReject, endpointURL, err)
	}

	return &client{
		raw:         raw,
		endpointURL: endpointURL,
		logger:      logger.With().Str("endpoint", endpointURL).Logger(),
	}, nil
}

// Fixed parameters used for every device subscription and every
// monitored item.
const (
	subscriptionPublishIntervalMs = 1000
	subscriptionLifetimeCount     = 100
	subscriptionMaxKeepAlive      = 10
	subscriptionMaxNotifications  = 10
	subscriptionPriority          = 10

	monitoredItemSamplingMs = 1000
	monitoredItemQueueSize  = 10
)

// createSubscription creates the device's single OPC UA subscription
// (Sessioned -> Subscribed transition).
func (c *client) createSubscription(ctx context.Context) error {
	c.notifyCh = make(chan *opcua.PublishNotificationData, 16)

	req := &ua.CreateSubscriptionRequest{
		RequestedPublishingInterval: subscriptionPublishIntervalMs,
		RequestedLifetimeCount:      subscriptionLifetimeCount,
		RequestedMaxKeepAliveCount:  subscriptionMaxKeepAlive,
		MaxNotificationsPerPublish:  subscriptionMaxNotifications,
		PublishingEnabled:           true,
		Priority:                    subscriptionPriority,
	}

	resp, err := c.raw.Subscribe(ctx, req, c.notifyCh)
	if err != nil {
		return fmt.Errorf("%w: create subscription on %s: %v", domain.ErrOpcReject, c.endpointURL, err)
	}

	c.subscriptionID = resp.SubscriptionID
	return nil
}

// monitor creates one monitored item for nodeID under clientHandle, the
// handle used to correlate subsequent data-change notifications back to
// this node. It returns an error if the call fails or the server rejects
// the item.
func (c *client) monitor(ctx context.Context, nodeID *ua.NodeID, clientHandle uint32) error {
	req := &ua.CreateMonitoredItemsRequest{
		SubscriptionID:     c.subscriptionID,
		TimestampsToReturn: ua.TimestampsToReturnBoth,
		ItemsToCreate: []*ua.MonitoredItemCreateRequest{
			{
				ItemToMonitor: &ua.ReadValueID{
					NodeID:       nodeID,
					AttributeID:  ua.AttributeIDValue,
					DataEncoding: &ua.QualifiedName{},
				},
				MonitoringMode: ua.MonitoringModeReporting,
				RequestedParameters: &ua.MonitoringParameters{
					ClientHandle:     clientHandle,
					SamplingInterval: monitoredItemSamplingMs,
					QueueSize:        monitoredItemQueueSize,
					DiscardOldest:    true,
				},
			},
		},
	}

	resp, err := c.raw.CreateMonitoredItems(ctx, req)
	if err != nil {
		return fmt.Errorf("monitor %s: %w", nodeID, err)
	}
	if len(resp.Results) != 1 || resp.Results[0].StatusCode != ua.StatusOK {
		return fmt.Errorf("monitor %s: server rejected monitored item", nodeID)
	}
	return nil
}

// read performs a one-shot attribute read, used only by the Browser; steady-state reads never touch the wire.
func (c *client) read(ctx context.Context, nodeID *ua.NodeID) (*ua.DataValue, error) {
	req := &ua.ReadRequest{
		NodesToRead: []*ua.ReadValueID{{NodeID: nodeID, AttributeID: ua.AttributeIDValue}},
	}
	resp, err := c.raw.Read(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) != 1 {
		return nil, fmt.Errorf("read %s: unexpected result count", nodeID)
	}
	return resp.Results[0], nil
}

// write performs a single attribute write.
func (c *client) write(ctx context.Context, nodeID *ua.NodeID, v *ua.Variant) error {
	req := &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{
			{
				NodeID:      nodeID,
				AttributeID: ua.AttributeIDValue,
				Value:       &ua.DataValue{EncodingMask: ua.DataValueValue, Value: v},
			},
		},
	}
	resp, err := c.raw.Write(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWriteFail, err)
	}
	if len(resp.Results) != 1 || resp.Results[0] != ua.StatusOK {
		return fmt.Errorf("%w: node %s status %v", domain.ErrWriteFail, nodeID, statusOf(resp))
	}
	return nil
}

func statusOf(resp *ua.WriteResponse) ua.StatusCode {
	if len(resp.Results) == 0 {
		return ua.StatusBad
	}
	return resp.Results[0]
}

// browseChildren lists the direct children of nodeID.
func (c *client) browseChildren(ctx context.Context, nodeID *ua.NodeID) ([]*ua.ReferenceDescription, error) {
	req := &ua.BrowseRequest{
		NodesToBrowse: []*ua.BrowseDescription{
			{
				NodeID:          nodeID,
				BrowseDirection: ua.BrowseDirectionForward,
				ReferenceTypeID: ua.NewTwoByteNodeID(id.HierarchicalReferences),
				IncludeSubtypes: true,
				NodeClassMask:   0,
				ResultMask:      uint32(ua.BrowseResultMaskAll),
			},
		},
	}
	resp, err := c.raw.Browse(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) != 1 {
		return nil, fmt.Errorf("browse %s: unexpected result count", nodeID)
	}
	return resp.Results[0].References, nil
}

// close tears down the subscription (if any) and the session/channel.
// Both failures are swallowed; the caller always proceeds to drop the
// record.
func (c *client) close(ctx context.Context) {
	if c.subscriptionID != 0 {
		_, _ = c.raw.DeleteSubscriptions(ctx, &ua.DeleteSubscriptionsRequest{
			SubscriptionIDs: []uint32{c.subscriptionID},
		})
	}
	if err := c.raw.Close(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("error closing OPC UA client, ignored per destroy semantics")
	}
	if c.notifyCh != nil {
		close(c.notifyCh)
	}
}
