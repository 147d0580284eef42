// Package configview implements a read-only accessor layer over the
// surrounding device/tag configuration, plus the two documented
// mutation paths the Browser drives (populateDevice, and resetting
// browseTrigger to "Stop"). The engine never parses or writes the
// configuration file itself; this package is the thin adapter that
// does, following a read, then parse, then validate pattern.
package configview

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/orangescada/opcua/internal/domain"
)

// Store holds the in-memory configuration object graph loaded once at
// startup. All methods are safe for concurrent use: reads take the
// read lock, the two Browser-driven mutations take the write lock.
type Store struct {
	mu sync.RWMutex

	path    string
	driver  json.RawMessage
	scheme  optionsSchemeDocument
	nodes   json.RawMessage
	devices map[string]*domain.Device

	onSave func() // setConfigHandler, invoked by NotifyConfigChanged
}

// NewStore builds a Store directly from an in-memory device map, bypassing
// the file loader. Used by tests and by callers that construct devices
// programmatically rather than from the JSON configuration file.
func NewStore(path string, devices map[string]*domain.Device) *Store {
	return &Store{path: path, devices: devices}
}

// SetSaveHandler registers the callback invoked once after a successful
// browse population, so the host can persist the merged configuration.
// The handler is expected to call Save itself; Save does not call back
// into the handler, so the two do not recurse into each other.
func (s *Store) SetSaveHandler(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSave = fn
}

// NotifyConfigChanged invokes the registered save handler, if any. The
// Browser calls this once after a successful PopulateDevice; nothing
// else triggers it.
func (s *Store) NotifyConfigChanged() {
	s.mu.RLock()
	onSave := s.onSave
	s.mu.RUnlock()

	if onSave != nil {
		onSave()
	}
}

// EndpointURL resolves a device's endpoint URL. A missing device or a
// device with no endpoint URL both report ok=false; the engine treats
// either as DeviceIdNotFound.
func (s *Store) EndpointURL(deviceUID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dev, ok := s.devices[deviceUID]
	if !ok || dev.EndpointURL == "" {
		return "", false
	}
	return dev.EndpointURL, true
}

// Device returns a snapshot pointer to the device. Callers must not
// mutate the returned Device; the only mutation paths are PopulateDevice
// and the browseTrigger reset this package performs internally.
func (s *Store) Device(deviceUID string) (*domain.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dev, ok := s.devices[deviceUID]
	return dev, ok
}

// Tag resolves a tag by name within a device.
func (s *Store) Tag(deviceUID, tagName string) (*domain.Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dev, ok := s.devices[deviceUID]
	if !ok {
		return nil, false
	}
	return dev.TagByName(tagName)
}

// AllDeviceUIDs returns every configured device's uid, in no particular
// order; the process wiring uses it to log how many devices were loaded.
func (s *Store) AllDeviceUIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uids := make([]string, 0, len(s.devices))
	for uid := range s.devices {
		uids = append(uids, uid)
	}
	return uids
}

// PopulateDevice implements the Browser's config merge policy. It merges
// whatever it is given; the Browser calls it only after a successful
// browse, so a failed browse leaves the prior tags in place.
func (s *Store) PopulateDevice(deviceUID string, discovered []domain.DiscoveredTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.devices[deviceUID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrDeviceIDNotFound, deviceUID)
	}

	existingByName := make(map[string]string, len(dev.Tags)) // name -> tagUid
	for uid, tag := range dev.Tags {
		existingByName[tag.Name] = uid
	}

	maxUID := 0
	for uid := range dev.Tags {
		if n, err := strconv.Atoi(uid); err == nil && n > maxUID {
			maxUID = n
		}
	}

	newOrder := make([]string, 0, len(discovered))
	newTags := make(map[string]*domain.Tag, len(discovered))

	for _, d := range discovered {
		uid, found := existingByName[d.Name]
		if !found {
			maxUID++
			uid = strconv.Itoa(maxUID)
		}

		tag := dev.Tags[uid]
		if tag == nil {
			tag = &domain.Tag{
				TagUID: uid,
				Name:   d.Name,
				Read:   true,
				Write:  true,
			}
		}
		tag.NodeID = d.NodeID
		tag.NodeType = d.NodeType
		tag.ArrayIndex = d.ArrayIndex
		tag.Type = d.TagType

		newTags[uid] = tag
		newOrder = append(newOrder, uid)
	}

	sort.Strings(newOrder)

	dev.Tags = newTags
	dev.TagOrder = newOrder
	dev.BrowseTrigger = domain.BrowseTriggerStop

	return nil
}

// Save writes the current in-memory device graph back to the
// configuration file. The driver/optionsScheme/nodes sections are
// round-tripped from what was loaded; only the devices section
// reflects mutations made through this Store. Save does not invoke the
// save handler itself: callers that trigger Save from within that
// handler (as the host does) would otherwise recurse.
func (s *Store) Save() error {
	s.mu.RLock()
	doc := fileDocument{
		Driver:        s.driver,
		OptionsScheme: s.scheme,
		Nodes:         s.nodes,
		Devices:       make(map[string]deviceDocument, len(s.devices)),
	}
	for uid, dev := range s.devices {
		doc.Devices[uid] = deviceToDocument(dev)
	}
	path := s.path
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("configview: marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("configview: writing %s: %w", path, err)
	}

	return nil
}

func deviceToDocument(dev *domain.Device) deviceDocument {
	dd := deviceDocument{
		EndpointURL: dev.EndpointURL,
		Options: deviceOptionsDocument{
			SecurityMode:    optionValue{CurrentValue: string(dev.Security.Mode)},
			SecurityPolicy:  optionValue{CurrentValue: string(dev.Security.Policy)},
			CertificateFile: optionValue{CurrentValue: dev.Security.CertificateFile},
			PrivateKeyFile:  optionValue{CurrentValue: dev.Security.PrivateKeyFile},
			Anonymous:       optionValue{CurrentValue: dev.Security.Anonymous},
			UserName:        optionValue{CurrentValue: dev.Security.UserName},
			Password:        optionValue{CurrentValue: dev.Security.Password},
			Timeout:         optionValue{CurrentValue: dev.Timeout},
			BrowseTrigger:   optionValue{CurrentValue: string(dev.BrowseTrigger)},
		},
		Tags: make(map[string]tagDocument, len(dev.Tags)),
	}

	for uid, tag := range dev.Tags {
		dd.Tags[uid] = tagDocument{
			Name:    tag.Name,
			Type:    string(tag.Type),
			Read:    tag.Read,
			Write:   tag.Write,
			Address: uid,
			Options: tagOptionsDocument{
				NodeID:     optionValue{CurrentValue: tag.NodeID},
				NodeType:   optionValue{CurrentValue: tag.NodeType},
				ArrayIndex: optionValue{CurrentValue: tag.ArrayIndex},
			},
		}
	}

	return dd
}
