package mrt

// MRT record types (RFC 6396).
const (
	TypeTableDumpV2 uint16 = 13
	TypeBGP4MP      uint16 = 16
	TypeBGP4MPET    uint16 = 17
)

// TABLE_DUMP_V2 subtypes.
const (
	SubtypePeerIndexTable uint16 = 1
	SubtypeRIBIPv4Unicast uint16 = 2
	SubtypeRIBIPv6Unicast uint16 = 4
)

// BGP4MP subtypes.
const (
	SubtypeStateChange    uint16 = 0
	SubtypeMessage        uint16 = 1
	SubtypeMessageAS4     uint16 = 4
	SubtypeStateChangeAS4 uint16 = 5
)

// MRT common header size: timestamp(4) + type(2) + subtype(2) + length(4).
const HeaderSize = 12

// Peer entry flag bits in PEER_INDEX_TABLE.
const (
	peerFlagIPv6 uint8 = 0x01
	peerFlagAS32 uint8 = 0x02
)

// BGP FSM states as carried in BGP4MP_STATE_CHANGE records.
const (
	StateIdle        uint16 = 1
	StateConnect     uint16 = 2
	StateActive      uint16 = 3
	StateOpenSent    uint16 = 4
	StateOpenConfirm uint16 = 5
	StateEstablished uint16 = 6
)

// Header is the MRT common header.
type Header struct {
	Timestamp   uint32
	Microsecond uint32 // only set for extended-timestamp records
	Type        uint16
	Subtype     uint16
	Length      uint32
}

// Peer is one entry of a PEER_INDEX_TABLE.
type Peer struct {
	BGPID   uint32
	Address [16]byte // IPv4 in last 4 bytes
	IPv6    bool
	AS      uint32
}

// PeerIndexTable assigns small integers to peer identities; RIB entries
// reference peers by position in Peers.
type PeerIndexTable struct {
	CollectorBGPID uint32
	ViewName       string
	Peers          []Peer
}

// RIBEntry is one per-peer entry of an AFI-specific RIB record.
type RIBEntry struct {
	PeerIndex      uint16
	OriginatedTime uint32
	Attributes     []byte
}

// RIB is a RIB_IPV4_UNICAST or RIB_IPV6_UNICAST record: one prefix with
// the entries of every peer that carries it.
type RIB struct {
	Sequence  uint32
	PrefixLen uint8
	Prefix    []byte // (PrefixLen+7)/8 bytes
	IPv6      bool
	Entries   []RIBEntry
}

// BGP4MPMessage is a BGP4MP_MESSAGE or BGP4MP_MESSAGE_AS4 record carrying
// a raw BGP message.
type BGP4MPMessage struct {
	PeerAS         uint32
	LocalAS        uint32
	InterfaceIndex uint16
	AFI            uint16
	PeerAddress    [16]byte
	LocalAddress   [16]byte
	IPv6           bool
	Data           []byte // raw BGP message including the 19-byte header
}

// BGP4MPStateChange is a BGP4MP_STATE_CHANGE or BGP4MP_STATE_CHANGE_AS4
// record reporting a peer FSM transition.
type BGP4MPStateChange struct {
	PeerAS         uint32
	LocalAS        uint32
	InterfaceIndex uint16
	AFI            uint16
	PeerAddress    [16]byte
	LocalAddress   [16]byte
	IPv6           bool
	OldState       uint16
	NewState       uint16
}

// Record is one decoded MRT record. Exactly one of the body pointers is
// non-nil, matching the header's type/subtype.
type Record struct {
	Header Header

	PeerIndexTable *PeerIndexTable
	RIB            *RIB
	Message        *BGP4MPMessage
	StateChange    *BGP4MPStateChange
}
