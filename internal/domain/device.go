// Package domain contains the core business entities of the OPC UA bridge.
// These are protocol-agnostic: they describe devices and tags as the
// surrounding configuration layer and the engine both see them.
package domain

import "fmt"

// BrowseTrigger is the device-level flag the supervisor toggles to kick off
// an address-space browse and that the engine resets to Stop on completion.
type BrowseTrigger string

const (
	BrowseTriggerStart BrowseTrigger = "Start"
	BrowseTriggerStop  BrowseTrigger = "Stop"
)

// SecurityMode mirrors the OPC UA MessageSecurityMode names accepted in
// device configuration.
type SecurityMode string

const (
	SecurityModeNone             SecurityMode = "None"
	SecurityModeSign             SecurityMode = "Sign"
	SecurityModeSignAndEncrypt   SecurityMode = "SignAndEncrypt"
)

// SecurityPolicy mirrors the OPC UA SecurityPolicy URIs' short names
// accepted in device configuration.
type SecurityPolicy string

const (
	SecurityPolicyNone                 SecurityPolicy = "None"
	SecurityPolicyBasic128              SecurityPolicy = "Basic128"
	SecurityPolicyBasic128Rsa15         SecurityPolicy = "Basic128Rsa15"
	SecurityPolicyBasic192              SecurityPolicy = "Basic192"
	SecurityPolicyBasic192Rsa15         SecurityPolicy = "Basic192Rsa15"
	SecurityPolicyBasic256              SecurityPolicy = "Basic256"
	SecurityPolicyBasic256Rsa15         SecurityPolicy = "Basic256Rsa15"
	SecurityPolicyBasic256Sha256        SecurityPolicy = "Basic256Sha256"
	SecurityPolicyAes128Sha256RsaOaep   SecurityPolicy = "Aes128_Sha256_RsaOaep"
	SecurityPolicyAes256Sha256RsaPss    SecurityPolicy = "Aes256_Sha256_RsaPss"
)

// SecurityOptions holds the device's OPC UA channel security and identity
// settings, read from Config View by the Connection Manager.
type SecurityOptions struct {
	Mode            SecurityMode
	Policy          SecurityPolicy
	CertificateFile string
	PrivateKeyFile  string
	Anonymous       bool
	UserName        string
	Password        string
}

// Device is the config-facing entity: identified by a stable
// deviceUid, carrying an endpoint URL, security options, a timeout, a
// browse trigger, and its tags keyed by tagUid.
//
// The engine observes a Device read-only except for two documented
// mutations: Browser-driven population of Tags, and resetting
// BrowseTrigger to Stop after a browse completes.
type Device struct {
	DeviceUID    string
	EndpointURL  string
	Security     SecurityOptions
	Timeout      int // milliseconds; loaded and saved, but the Connection Manager does not read it
	BrowseTrigger BrowseTrigger

	// TagOrder lists the TagUIDs sorted as strings (the loader and
	// PopulateDevice both sort it), not in the order tags were added;
	// Tags is keyed for lookup. Both must be kept in sync by anything
	// that mutates Tags.
	TagOrder []string
	Tags     map[string]*Tag
}

// TagType enumerates the supervisor-level scalar types Type Coercion
// projects OPC UA values into.
type TagType string

const (
	TagTypeBool     TagType = "bool"
	TagTypeInt      TagType = "int"
	TagTypeFloat    TagType = "float"
	TagTypeString   TagType = "string"
	TagTypeDatetime TagType = "datetime"
)

// Tag is a supervisor-visible data point bound to an OPC UA node-id
// and an (optional) array index into it.
type Tag struct {
	TagUID string
	Name   string // supervisor-unique within the device
	Type   TagType
	Read   bool
	Write  bool

	NodeID     string // "ns=<N>;{i|s|g|b}=<V>"
	NodeType   int    // OPC UA DataType numeric code
	ArrayIndex int    // -1 means scalar
}

// IsArray reports whether the tag addresses an element of an array-typed
// node rather than a scalar.
func (t *Tag) IsArray() bool {
	return t.ArrayIndex >= 0
}

// FirstTagUID returns the first tagUid of TagOrder (sorted order), used
// by status() to seed a background ensureConnection with one tag. Returns "" if the device has no tags.
func (d *Device) FirstTagUID() string {
	if len(d.TagOrder) == 0 {
		return ""
	}
	return d.TagOrder[0]
}

// TagByName finds a tag by its supervisor-visible name. Tag names, unlike
// tagUids, are not indexed, so this is a linear scan over TagOrder:
// acceptable given the expected per-device tag counts (tens to low
// thousands, not browsed on every request).
func (d *Device) TagByName(name string) (*Tag, bool) {
	for _, uid := range d.TagOrder {
		tag, ok := d.Tags[uid]
		if ok && tag.Name == name {
			return tag, true
		}
	}
	return nil, false
}

// DiscoveredTag is Browser's output shape: a flat record of
// one variable found during address-space descent, not yet merged into
// any Device's Tags.
type DiscoveredTag struct {
	Name       string
	NodeID     string
	NodeType   int
	ArrayIndex int
	TagType    TagType
}

// Validate checks the structural invariants of a Device that the
// surrounding editing layer is responsible for upholding before handing a
// Device to the engine.
func (d *Device) Validate() error {
	if d.DeviceUID == "" {
		return fmt.Errorf("%w: empty deviceUid", ErrConfigError)
	}
	if d.EndpointURL == "" {
		return fmt.Errorf("%w: device %s has no endpointUrl", ErrConfigError, d.DeviceUID)
	}
	for uid, tag := range d.Tags {
		if tag.ArrayIndex < -1 {
			return fmt.Errorf("%w: tag %s (%s) has invalid arrayIndex %d", ErrConfigError, tag.Name, uid, tag.ArrayIndex)
		}
	}
	return nil
}
