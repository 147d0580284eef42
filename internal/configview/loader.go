package configview

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/orangescada/opcua/internal/domain"
)

// Load reads the device/tag configuration document and builds a Store
// from it: read file, unmarshal, validate.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configview: reading %s: %w", path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("configview: parsing %s: %w", path, err)
	}

	devices, err := documentToDevices(doc)
	if err != nil {
		return nil, err
	}

	return &Store{
		path:    path,
		driver:  doc.Driver,
		scheme:  doc.OptionsScheme,
		nodes:   doc.Nodes,
		devices: devices,
	}, nil
}

func documentToDevices(doc fileDocument) (map[string]*domain.Device, error) {
	devices := make(map[string]*domain.Device, len(doc.Devices))

	for uid, dd := range doc.Devices {
		dev := &domain.Device{
			DeviceUID:   uid,
			EndpointURL: dd.EndpointURL,
			Security: domain.SecurityOptions{
				Mode:            domain.SecurityMode(stringOption(dd.Options.SecurityMode, string(domain.SecurityModeNone))),
				Policy:          domain.SecurityPolicy(stringOption(dd.Options.SecurityPolicy, string(domain.SecurityPolicyNone))),
				CertificateFile: stringOption(dd.Options.CertificateFile, ""),
				PrivateKeyFile:  stringOption(dd.Options.PrivateKeyFile, ""),
				Anonymous:       boolOption(dd.Options.Anonymous, true),
				UserName:        stringOption(dd.Options.UserName, ""),
				Password:        stringOption(dd.Options.Password, ""),
			},
			Timeout:       intOption(dd.Options.Timeout, 5000),
			BrowseTrigger: domain.BrowseTrigger(stringOption(dd.Options.BrowseTrigger, string(domain.BrowseTriggerStop))),
			TagOrder:      make([]string, 0, len(dd.Tags)),
			Tags:          make(map[string]*domain.Tag, len(dd.Tags)),
		}

		uids := make([]string, 0, len(dd.Tags))
		for tagUID := range dd.Tags {
			uids = append(uids, tagUID)
		}
		sort.Strings(uids)

		for _, tagUID := range uids {
			td := dd.Tags[tagUID]
			dev.TagOrder = append(dev.TagOrder, tagUID)
			dev.Tags[tagUID] = &domain.Tag{
				TagUID:     tagUID,
				Name:       td.Name,
				Type:       domain.TagType(td.Type),
				Read:       td.Read,
				Write:      td.Write,
				NodeID:     stringOption(td.Options.NodeID, ""),
				NodeType:   intOption(td.Options.NodeType, 0),
				ArrayIndex: intOption(td.Options.ArrayIndex, -1),
			}
		}

		if err := dev.Validate(); err != nil {
			return nil, err
		}
		devices[uid] = dev
	}

	return devices, nil
}

func stringOption(o optionValue, def string) string {
	if o.CurrentValue == nil {
		return def
	}
	if s, ok := o.CurrentValue.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", o.CurrentValue)
}

func boolOption(o optionValue, def bool) bool {
	if o.CurrentValue == nil {
		return def
	}
	if b, ok := o.CurrentValue.(bool); ok {
		return b
	}
	return def
}

func intOption(o optionValue, def int) int {
	if o.CurrentValue == nil {
		return def
	}
	switch v := o.CurrentValue.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
