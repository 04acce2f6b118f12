package helios

import "encoding/binary"

// Message-type id ranges, per spec.md §3: the 32-bit message-type space is
// partitioned into an application range and an administrative range; the
// two never overlap. ring.PaddingMsgTypeID (0) inside internal/ring is a
// third, pipeline-private reserved id and is never observed here.
const (
	// AdministrativeRangeStart is the first id in the reserved
	// administrative range. Ids below it are application message types.
	AdministrativeRangeStart int32 = 1 << 30

	// TemplateLoadSnapshot and TemplateSaveSnapshot are the two
	// administrative sub-templates spec.md §4.9/§6 names explicitly.
	TemplateLoadSnapshot int32 = AdministrativeRangeStart + 1
	TemplateSaveSnapshot int32 = AdministrativeRangeStart + 2
)

// IsAdministrative reports whether msgTypeID falls in the reserved
// administrative range.
func IsAdministrative(msgTypeID int32) bool {
	return msgTypeID >= AdministrativeRangeStart
}

// adminHeaderLength is the bit-exact 8-byte administrative message header
// of spec.md §6: 2-byte block length, 2-byte template id, 2-byte schema id,
// 2-byte version, all little-endian.
const adminHeaderLength = 8

// AdminHeader is the fixed header prefixing every administrative record's
// body, per spec.md §6.
type AdminHeader struct {
	BlockLength uint16
	TemplateID  uint16
	SchemaID    uint16
	Version     uint16
}

// Encode writes h in bit-exact little-endian form into buf, which must
// have length at least adminHeaderLength.
func (h AdminHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], h.BlockLength)
	binary.LittleEndian.PutUint16(buf[2:4], h.TemplateID)
	binary.LittleEndian.PutUint16(buf[4:6], h.SchemaID)
	binary.LittleEndian.PutUint16(buf[6:8], h.Version)
}

// DecodeAdminHeader reads an AdminHeader from the front of buf.
func DecodeAdminHeader(buf []byte) AdminHeader {
	return AdminHeader{
		BlockLength: binary.LittleEndian.Uint16(buf[0:2]),
		TemplateID:  binary.LittleEndian.Uint16(buf[2:4]),
		SchemaID:    binary.LittleEndian.Uint16(buf[4:6]),
		Version:     binary.LittleEndian.Uint16(buf[6:8]),
	}
}

// mmbHeaderLength is the minimum length of an MMBHeader: a 2-byte node id.
const mmbHeaderLength = 2

// MMBHeader is the body header carried by LOAD_SNAPSHOT and SAVE_SNAPSHOT
// records, per spec.md §6: at least a 2-byte node identifier.
type MMBHeader struct {
	NodeID uint16
}

// Encode writes h's node id in little-endian form into buf, which must
// have length at least mmbHeaderLength.
func (h MMBHeader) Encode(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], h.NodeID)
}

// DecodeMMBHeader reads an MMBHeader from the front of buf.
func DecodeMMBHeader(buf []byte) MMBHeader {
	return MMBHeader{NodeID: binary.LittleEndian.Uint16(buf[0:2])}
}

// EncodeSnapshotRecord builds a complete administrative record body —
// AdminHeader followed by MMBHeader — for either TemplateLoadSnapshot or
// TemplateSaveSnapshot.
func EncodeSnapshotRecord(templateID int32, schemaID, version uint16, nodeID uint16) []byte {
	buf := make([]byte, adminHeaderLength+mmbHeaderLength)
	AdminHeader{
		BlockLength: uint16(mmbHeaderLength),
		TemplateID:  uint16(templateID),
		SchemaID:    schemaID,
		Version:     version,
	}.Encode(buf[:adminHeaderLength])
	MMBHeader{NodeID: nodeID}.Encode(buf[adminHeaderLength:])
	return buf
}
