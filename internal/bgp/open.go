// Package bgp constructs the BGP messages the replay pipeline needs:
// synthetic OPENs for BMP Peer Up notifications and UPDATEs synthesized
// from MRT RIB entries.
package bgp

import "encoding/binary"

// marker fills the first 16 bytes of every BGP message header.
func putHeader(msg []byte, msgType uint8) {
	for i := 0; i < 16; i++ {
		msg[i] = 0xFF
	}
	binary.BigEndian.PutUint16(msg[16:18], uint16(len(msg)))
	msg[18] = msgType
}

// BuildOpen constructs a complete BGP OPEN message for the given AS and
// BGP identifier. Both IPv4-unicast and IPv6-unicast multiprotocol
// capabilities are always advertised, along with 4-octet AS support, so
// collectors accept routes of either family from the peer.
func BuildOpen(as uint32, bgpID uint32, holdTime uint16) []byte {
	caps := make([]byte, 0, 18)

	// MP IPv4 unicast: AFI(2) + reserved(1) + SAFI(1)
	caps = append(caps, CapMultiprotocol, 4, 0, byte(AFIIPv4), 0, SAFIUnicast)
	// MP IPv6 unicast
	caps = append(caps, CapMultiprotocol, 4, 0, byte(AFIIPv6), 0, SAFIUnicast)
	// 4-octet AS number
	as4 := make([]byte, 6)
	as4[0] = CapAS4
	as4[1] = 4
	binary.BigEndian.PutUint32(as4[2:6], as)
	caps = append(caps, as4...)

	optParam := make([]byte, 0, 2+len(caps))
	optParam = append(optParam, optParamCapabilities, byte(len(caps)))
	optParam = append(optParam, caps...)

	// version(1) + my_as(2) + hold_time(2) + bgp_id(4) + opt_len(1)
	body := make([]byte, 10, 10+len(optParam))
	body[0] = 4
	if as > 0xFFFF {
		binary.BigEndian.PutUint16(body[1:3], ASTrans)
	} else {
		binary.BigEndian.PutUint16(body[1:3], uint16(as))
	}
	binary.BigEndian.PutUint16(body[3:5], holdTime)
	binary.BigEndian.PutUint32(body[5:9], bgpID)
	body[9] = byte(len(optParam))
	body = append(body, optParam...)

	msg := make([]byte, HeaderSize+len(body))
	copy(msg[HeaderSize:], body)
	putHeader(msg, MsgTypeOpen)
	return msg
}
