package mrt

import (
	"encoding/binary"
	"fmt"
)

// parsePeerIndexTable decodes a PEER_INDEX_TABLE body: collector BGP-ID,
// view name, peer count, then one variable-size entry per peer.
func parsePeerIndexTable(data []byte) (*PeerIndexTable, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: peer index table shorter than fixed header", ErrMalformed)
	}

	pit := &PeerIndexTable{
		CollectorBGPID: binary.BigEndian.Uint32(data[0:4]),
	}

	viewLen := int(binary.BigEndian.Uint16(data[4:6]))
	offset := 6
	if offset+viewLen+2 > len(data) {
		return nil, fmt.Errorf("%w: view name length %d exceeds record", ErrMalformed, viewLen)
	}
	pit.ViewName = string(data[offset : offset+viewLen])
	offset += viewLen

	peerCount := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2

	pit.Peers = make([]Peer, 0, peerCount)
	for i := 0; i < peerCount; i++ {
		if offset+5 > len(data) {
			return nil, fmt.Errorf("%w: peer entry %d truncated", ErrMalformed, i)
		}
		flags := data[offset]
		offset++

		var p Peer
		p.IPv6 = flags&peerFlagIPv6 != 0
		p.BGPID = binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4

		addrLen := 4
		if p.IPv6 {
			addrLen = 16
		}
		asLen := 2
		if flags&peerFlagAS32 != 0 {
			asLen = 4
		}
		if offset+addrLen+asLen > len(data) {
			return nil, fmt.Errorf("%w: peer entry %d truncated", ErrMalformed, i)
		}

		// IPv4 right-aligned in the 16-byte field, matching the BMP
		// per-peer header convention.
		copy(p.Address[16-addrLen:], data[offset:offset+addrLen])
		offset += addrLen

		if asLen == 4 {
			p.AS = binary.BigEndian.Uint32(data[offset : offset+4])
		} else {
			p.AS = uint32(binary.BigEndian.Uint16(data[offset : offset+2]))
		}
		offset += asLen

		pit.Peers = append(pit.Peers, p)
	}

	return pit, nil
}

// parseRIB decodes a RIB_IPV4_UNICAST or RIB_IPV6_UNICAST body: sequence,
// prefix, then per-peer entries carrying the path attributes.
func parseRIB(data []byte, ipv6 bool) (*RIB, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("%w: rib record shorter than sequence and prefix length", ErrMalformed)
	}

	rib := &RIB{
		Sequence:  binary.BigEndian.Uint32(data[0:4]),
		PrefixLen: data[4],
		IPv6:      ipv6,
	}
	offset := 5

	maxBits := 32
	if ipv6 {
		maxBits = 128
	}
	if int(rib.PrefixLen) > maxBits {
		return nil, fmt.Errorf("%w: prefix length %d out of range", ErrMalformed, rib.PrefixLen)
	}

	prefixBytes := (int(rib.PrefixLen) + 7) / 8
	if offset+prefixBytes+2 > len(data) {
		return nil, fmt.Errorf("%w: rib prefix truncated", ErrMalformed)
	}
	rib.Prefix = make([]byte, prefixBytes)
	copy(rib.Prefix, data[offset:offset+prefixBytes])
	offset += prefixBytes

	entryCount := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2

	rib.Entries = make([]RIBEntry, 0, entryCount)
	for i := 0; i < entryCount; i++ {
		if offset+8 > len(data) {
			return nil, fmt.Errorf("%w: rib entry %d truncated", ErrMalformed, i)
		}
		var e RIBEntry
		e.PeerIndex = binary.BigEndian.Uint16(data[offset : offset+2])
		e.OriginatedTime = binary.BigEndian.Uint32(data[offset+2 : offset+6])
		attrLen := int(binary.BigEndian.Uint16(data[offset+6 : offset+8]))
		offset += 8

		if offset+attrLen > len(data) {
			return nil, fmt.Errorf("%w: rib entry %d attributes overrun record", ErrMalformed, i)
		}
		e.Attributes = make([]byte, attrLen)
		copy(e.Attributes, data[offset:offset+attrLen])
		offset += attrLen

		rib.Entries = append(rib.Entries, e)
	}

	return rib, nil
}
