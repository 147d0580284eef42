package configview

import "encoding/json"

// fileDocument mirrors the on-disk JSON configuration file: sections
// driver, optionsScheme.devices, optionsScheme.tags, nodes, devices.
// The engine never parses or writes this shape directly, only this
// package does, behind the read-only Store the engine actually sees.
type fileDocument struct {
	Driver        json.RawMessage          `json:"driver,omitempty"`
	OptionsScheme optionsSchemeDocument    `json:"optionsScheme"`
	Nodes         json.RawMessage          `json:"nodes,omitempty"`
	Devices       map[string]deviceDocument `json:"devices"`
}

// optionsSchemeDocument holds the UI-facing option schemas for devices and
// tags. The engine has no use for schema metadata (labels, types, allowed
// values); it is round-tripped verbatim so that saving the file after a
// browse does not lose it.
type optionsSchemeDocument struct {
	Devices json.RawMessage `json:"devices,omitempty"`
	Tags    json.RawMessage `json:"tags,omitempty"`
}

type deviceDocument struct {
	EndpointURL string                    `json:"endpointUrl"`
	Options     deviceOptionsDocument     `json:"options"`
	Tags        map[string]tagDocument    `json:"tags"`
}

type deviceOptionsDocument struct {
	SecurityMode    optionValue `json:"securityMode"`
	SecurityPolicy  optionValue `json:"securityPolicy"`
	CertificateFile optionValue `json:"certificateFile"`
	PrivateKeyFile  optionValue `json:"privateKeyFile"`
	Anonymous       optionValue `json:"anonymous"`
	UserName        optionValue `json:"userName"`
	Password        optionValue `json:"password"`
	Timeout         optionValue `json:"timeout"`
	BrowseTrigger   optionValue `json:"browseTrigger"`
}

type tagDocument struct {
	Name    string             `json:"name"`
	Type    string             `json:"type"`
	Read    bool               `json:"read"`
	Write   bool               `json:"write"`
	Address string             `json:"address,omitempty"`
	Options tagOptionsDocument `json:"options"`
}

type tagOptionsDocument struct {
	NodeID     optionValue `json:"nodeId"`
	NodeType   optionValue `json:"nodeType"`
	ArrayIndex optionValue `json:"arrayIndex"`
}

// optionValue is the "option holder" shape every device/tag option uses:
// a currentValue alongside whatever schema metadata the UI layer attaches.
// Type Coercion and the engine only ever read/write CurrentValue.
type optionValue struct {
	CurrentValue any `json:"currentValue"`
}
