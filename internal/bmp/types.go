package bmp

// BMP message type codes (RFC 7854).
const (
	MsgTypeRouteMonitoring  uint8 = 0
	MsgTypeStatisticsReport uint8 = 1
	MsgTypePeerDown         uint8 = 2
	MsgTypePeerUp           uint8 = 3
	MsgTypeInitiation       uint8 = 4
	MsgTypeTermination      uint8 = 5
	MsgTypeRouteMirroring   uint8 = 6
)

// BMP peer types.
const (
	PeerTypeGlobal uint8 = 0
	PeerTypeRD     uint8 = 1
	PeerTypeLocal  uint8 = 2
)

// Peer flag bits.
const (
	PeerFlagIPv6 uint8 = 0x80 // V bit: peer address is IPv6
)

// BMP header sizes.
const (
	CommonHeaderSize  = 6  // version(1) + msg_length(4) + msg_type(1)
	PerPeerHeaderSize = 42 // peer_type(1) + flags(1) + distinguisher(8) + addr(16) + AS(4) + BGPID(4) + ts_sec(4) + ts_usec(4)
)

// Initiation/Termination TLV type codes (RFC 7854 §4.3, §4.5).
const (
	TLVTypeString     uint16 = 0
	TLVTypeSysDescr   uint16 = 1
	TLVTypeSysName    uint16 = 2
	TLVTypeTermReason uint16 = 1
)

// Termination reason codes.
const (
	TermReasonAdminClose uint16 = 0
)

// Peer Down reason codes (RFC 7854 §4.9).
const (
	PeerDownLocalNotify    uint8 = 1
	PeerDownLocalNoNotify  uint8 = 2
	PeerDownRemoteNotify   uint8 = 3
	PeerDownRemoteNoNotify uint8 = 4
)

// Version is the BMP protocol version emitted.
const Version uint8 = 3
