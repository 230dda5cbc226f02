package bgp

// BGP path attribute type codes.
const (
	AttrTypeOrigin        uint8 = 1
	AttrTypeASPath        uint8 = 2
	AttrTypeNextHop       uint8 = 3
	AttrTypeMED           uint8 = 4
	AttrTypeLocalPref     uint8 = 5
	AttrTypeMPReachNLRI   uint8 = 14
	AttrTypeMPUnreachNLRI uint8 = 15
)

// Attribute flag bits.
const (
	AttrFlagOptional    uint8 = 0x80
	AttrFlagTransitive  uint8 = 0x40
	AttrFlagExtendedLen uint8 = 0x10
)

// AFI codes.
const (
	AFIIPv4 uint16 = 1
	AFIIPv6 uint16 = 2
)

// SAFI codes.
const (
	SAFIUnicast uint8 = 1
)

// BGP message types.
const (
	MsgTypeOpen         uint8 = 1
	MsgTypeUpdate       uint8 = 2
	MsgTypeNotification uint8 = 3
	MsgTypeKeepalive    uint8 = 4
)

// BGP message header size: marker(16) + length(2) + type(1).
const HeaderSize = 19

// Capability codes advertised in synthetic OPEN messages (RFC 5492).
const (
	CapMultiprotocol uint8 = 1
	CapAS4           uint8 = 65
)

// Optional-parameter type wrapping capabilities in an OPEN.
const optParamCapabilities uint8 = 2

// AS_TRANS stands in for 4-byte AS numbers in the OPEN's 2-byte field.
const ASTrans uint16 = 23456
