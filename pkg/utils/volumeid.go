package utils

import (
	"fmt"
	"strings"
)

const (
	// VolumeIDSeparator separates the array type from the array-side volume id
	// Format: <arrayType>:<arrayVolumeId>
	VolumeIDSeparator = ":"

	// NodeIDSeparator separates the hostname, iSCSI and FC fields of a node id
	// Format: <hostname>;<iqn1,iqn2>;<wwn1:wwn2>
	NodeIDSeparator = ";"

	// IQNSeparator joins iSCSI initiator names inside the node id
	IQNSeparator = ","

	// WWNSeparator joins FC port names inside the node id
	WWNSeparator = ":"

	nodeIDFields = 3
)

// IdentifierKind names which identifier failed to decode
type IdentifierKind string

const (
	IdentifierVolume IdentifierKind = "volume"
	IdentifierNode   IdentifierKind = "node"
)

// IdentifierFormatError is returned when a volume or node id does not match its wire format
type IdentifierFormatError struct {
	Kind  IdentifierKind
	Value string
}

func (e *IdentifierFormatError) Error() string {
	return fmt.Sprintf("wrong %s id format: %q", e.Kind, e.Value)
}

// VolumeIdentifier is a decoded CSI volume id
type VolumeIdentifier struct {
	ArrayType string
	VolumeID  string
}

// NodeIdentifier is a decoded CSI node id
type NodeIdentifier struct {
	Hostname string
	IQNs     []string
	WWNs     []string
}

// DecodeVolumeID parses "<arrayType>:<arrayVolumeId>". Exactly one separator is required.
func DecodeVolumeID(raw string) (VolumeIdentifier, error) {
	parts := strings.Split(raw, VolumeIDSeparator)
	if len(parts) != 2 {
		return VolumeIdentifier{}, &IdentifierFormatError{Kind: IdentifierVolume, Value: raw}
	}
	return VolumeIdentifier{ArrayType: parts[0], VolumeID: parts[1]}, nil
}

// EncodeVolumeID is the inverse of DecodeVolumeID
func EncodeVolumeID(arrayType, volumeID string) string {
	return arrayType + VolumeIDSeparator + volumeID
}

// String returns the wire form of the volume identifier
func (v VolumeIdentifier) String() string {
	return EncodeVolumeID(v.ArrayType, v.VolumeID)
}

// DecodeNodeID parses "<hostname>;<iqns>;<wwns>". The field count must be exactly three.
// Empty iSCSI or FC fields decode to empty lists.
func DecodeNodeID(raw string) (NodeIdentifier, error) {
	parts := strings.Split(raw, NodeIDSeparator)
	if len(parts) != nodeIDFields {
		return NodeIdentifier{}, &IdentifierFormatError{Kind: IdentifierNode, Value: raw}
	}

	return NodeIdentifier{
		Hostname: parts[0],
		IQNs:     splitNonEmpty(parts[1], IQNSeparator),
		WWNs:     splitNonEmpty(parts[2], WWNSeparator),
	}, nil
}

// EncodeNodeID is the inverse of DecodeNodeID
func EncodeNodeID(hostname string, iqns, wwns []string) string {
	return strings.Join([]string{
		hostname,
		strings.Join(iqns, IQNSeparator),
		strings.Join(wwns, WWNSeparator),
	}, NodeIDSeparator)
}

// String returns the wire form of the node identifier
func (n NodeIdentifier) String() string {
	return EncodeNodeID(n.Hostname, n.IQNs, n.WWNs)
}

func splitNonEmpty(field, sep string) []string {
	if field == "" {
		return []string{}
	}
	return strings.Split(field, sep)
}
