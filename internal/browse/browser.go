// Package browse implements recursive address-space descent that
// discovers leaf variables and merges them into a device's tag list:
// an on-demand, progress-reporting operation triggered by the
// supervisor rather than a one-shot startup scan.
package browse

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/orangescada/opcua/internal/coerce"
	"github.com/orangescada/opcua/internal/configview"
	"github.com/orangescada/opcua/internal/domain"
	opcuaconn "github.com/orangescada/opcua/internal/opcua"
	"github.com/rs/zerolog"
)

const progressInterval = 1000 * time.Millisecond

// ProgressFrame is emitted to the supervisor's progress handler while a
// browse is in flight.
type ProgressFrame struct {
	ProgressTxt string
	ProgressID  uint64
	Done        bool
}

// ProgressHandler is the external callback the Browser reports through.
type ProgressHandler func(ProgressFrame)

// Browser owns the driver-level browse flag and progress counter. One
// Browser instance is shared by every device; only one browse may run
// at a time across the whole driver.
type Browser struct {
	mu         sync.Mutex
	browsing   bool
	progressID uint64
	counter    uint64

	manager    *opcuaconn.Manager
	store      *configview.Store
	logger     zerolog.Logger
	onProgress ProgressHandler
}

func NewBrowser(manager *opcuaconn.Manager, store *configview.Store, logger zerolog.Logger, onProgress ProgressHandler) *Browser {
	return &Browser{
		manager:    manager,
		store:      store,
		logger:     logger.With().Str("component", "browser").Logger(),
		onProgress: onProgress,
	}
}

// Browse runs a full address-space descent for deviceUID and merges the
// result into the device's tag list on success. A concurrent call while
// a browse is already running is silently dropped: the caller gets the
// current progress snapshot, not a new scan.
func (b *Browser) Browse(ctx context.Context, deviceUID string) error {
	b.mu.Lock()
	if b.browsing {
		snapshot := ProgressFrame{
			ProgressTxt: fmt.Sprintf("Tag browsing in progress: %d", b.counter),
			ProgressID:  b.progressID,
			Done:        false,
		}
		b.mu.Unlock()
		if b.onProgress != nil {
			b.onProgress(snapshot)
		}
		return nil
	}
	b.browsing = true
	b.progressID++
	myProgressID := b.progressID
	b.counter = 0
	b.mu.Unlock()

	stop := make(chan struct{})
	var tickerDone sync.WaitGroup
	tickerDone.Add(1)
	go b.reportProgress(myProgressID, stop, &tickerDone)

	dev, ok := b.store.Device(deviceUID)
	var discovered []domain.DiscoveredTag
	var err error
	if !ok {
		err = fmt.Errorf("%w: %s", domain.ErrDeviceIDNotFound, deviceUID)
	} else {
		root := ua.NewTwoByteNodeID(id.ObjectsFolder)
		discovered, err = b.descend(ctx, dev, root, "")
	}

	close(stop)
	tickerDone.Wait()

	b.mu.Lock()
	b.browsing = false
	finalCounter := b.counter
	b.mu.Unlock()

	if err == nil {
		if popErr := b.store.PopulateDevice(deviceUID, discovered); popErr != nil {
			err = popErr
		} else {
			b.store.NotifyConfigChanged()
		}
	}

	if b.onProgress != nil {
		b.onProgress(ProgressFrame{
			ProgressTxt: fmt.Sprintf("Tag browsing in progress: %d", finalCounter),
			ProgressID:  myProgressID,
			Done:        true,
		})
	}
	return err
}

func (b *Browser) reportProgress(progressID uint64, stop <-chan struct{}, done *sync.WaitGroup) {
	defer done.Done()
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.mu.Lock()
			count := b.counter
			b.mu.Unlock()
			if b.onProgress != nil {
				b.onProgress(ProgressFrame{
					ProgressTxt: fmt.Sprintf("Tag browsing in progress: %d", count),
					ProgressID:  progressID,
					Done:        false,
				})
			}
		}
	}
}

// descend lists children, emits leaf variables, and recurses into
// every reference regardless of node class. Failures at any single
// node are logged and the traversal continues with whatever it
// already has.
func (b *Browser) descend(ctx context.Context, dev *domain.Device, nodeID *ua.NodeID, pathPrefix string) ([]domain.DiscoveredTag, error) {
	refs, err := b.manager.Browse(ctx, dev, nodeID)
	if err != nil {
		b.logger.Warn().Err(err).Str("device", dev.DeviceUID).Str("node", nodeID.String()).
			Msg("browse failed at node, continuing with partial results")
		return nil, nil
	}

	var out []domain.DiscoveredTag
	for _, ref := range refs {
		childNodeID := ua.NewNodeIDFromExpandedNodeID(ref.NodeID)
		displayName := ref.DisplayName.Text
		childPath := displayName
		if pathPrefix != "" {
			childPath = pathPrefix + "/" + displayName
		}

		if ref.NodeClass == ua.NodeClassVariable || ref.NodeClass == ua.NodeClassObject {
			entries := b.emitVariable(ctx, dev, childNodeID, childPath)
			out = append(out, entries...)
		}

		children, _ := b.descend(ctx, dev, childNodeID, childPath)
		out = append(out, children...)
	}
	return out, nil
}

// emitVariable reads the current value of nodeID to classify it as
// scalar or array, then emits one DiscoveredTag per naming rule:
// "<path>/_value" and, for arrays, "[i]".
func (b *Browser) emitVariable(ctx context.Context, dev *domain.Device, nodeID *ua.NodeID, path string) []domain.DiscoveredTag {
	value, err := b.manager.Read(ctx, dev, nodeID)
	if err != nil {
		b.logger.Debug().Err(err).Str("node", nodeID.String()).Msg("read failed during browse, skipping node")
		return nil
	}

	if value == nil || value.Value == nil || value.Status != ua.StatusOK {
		// Object folders (and any other node with no readable Value
		// attribute) have nothing to project as a tag; only recurse
		// into their children.
		return nil
	}

	dataType := int(value.Value.Type())
	raw := value.Value.Value()

	tagType := coerce.TagTypeFromDataType(dataType)
	nodeIDStr := opcuaconn.NodeIDString(nodeID)

	rv := reflect.ValueOf(raw)
	if raw != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
		n := rv.Len()
		if n == 0 {
			n = 1
		}
		out := make([]domain.DiscoveredTag, 0, n)
		for i := 0; i < n; i++ {
			b.bumpCounter()
			out = append(out, domain.DiscoveredTag{
				Name:       fmt.Sprintf("%s/_value[%d]", path, i),
				NodeID:     nodeIDStr,
				NodeType:   dataType,
				ArrayIndex: i,
				TagType:    tagType,
			})
		}
		return out
	}

	b.bumpCounter()
	return []domain.DiscoveredTag{{
		Name:       path + "/_value",
		NodeID:     nodeIDStr,
		NodeType:   dataType,
		ArrayIndex: -1,
		TagType:    tagType,
	}}
}

func (b *Browser) bumpCounter() {
	b.mu.Lock()
	b.counter++
	b.mu.Unlock()
}

