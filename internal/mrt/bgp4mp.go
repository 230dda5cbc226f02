package mrt

import (
	"encoding/binary"
	"fmt"
)

const (
	afiIPv4 uint16 = 1
	afiIPv6 uint16 = 2
)

// bgp4mpPrelude decodes the fields shared by BGP4MP message and state
// change records: peer/local AS, interface index, address family, and
// peer/local addresses. Returns the offset past the prelude.
func bgp4mpPrelude(data []byte, as4 bool, peerAS, localAS *uint32, ifIndex, afi *uint16, peerAddr, localAddr *[16]byte, ipv6 *bool) (int, error) {
	asLen := 2
	if as4 {
		asLen = 4
	}
	if len(data) < 2*asLen+4 {
		return 0, fmt.Errorf("%w: bgp4mp prelude truncated", ErrMalformed)
	}

	offset := 0
	if as4 {
		*peerAS = binary.BigEndian.Uint32(data[0:4])
		*localAS = binary.BigEndian.Uint32(data[4:8])
		offset = 8
	} else {
		*peerAS = uint32(binary.BigEndian.Uint16(data[0:2]))
		*localAS = uint32(binary.BigEndian.Uint16(data[2:4]))
		offset = 4
	}

	*ifIndex = binary.BigEndian.Uint16(data[offset : offset+2])
	*afi = binary.BigEndian.Uint16(data[offset+2 : offset+4])
	offset += 4

	var addrLen int
	switch *afi {
	case afiIPv4:
		addrLen = 4
	case afiIPv6:
		addrLen = 16
		*ipv6 = true
	default:
		return 0, fmt.Errorf("%w: bgp4mp address family %d", ErrMalformed, *afi)
	}

	if offset+2*addrLen > len(data) {
		return 0, fmt.Errorf("%w: bgp4mp addresses truncated", ErrMalformed)
	}
	copy(peerAddr[16-addrLen:], data[offset:offset+addrLen])
	copy(localAddr[16-addrLen:], data[offset+addrLen:offset+2*addrLen])
	offset += 2 * addrLen

	return offset, nil
}

func parseBGP4MPMessage(data []byte, as4 bool) (*BGP4MPMessage, error) {
	m := new(BGP4MPMessage)
	offset, err := bgp4mpPrelude(data, as4, &m.PeerAS, &m.LocalAS, &m.InterfaceIndex, &m.AFI, &m.PeerAddress, &m.LocalAddress, &m.IPv6)
	if err != nil {
		return nil, err
	}

	// The rest is a raw BGP message; 19 bytes is the smallest legal one.
	if len(data)-offset < 19 {
		return nil, fmt.Errorf("%w: bgp message shorter than header (%d bytes)", ErrMalformed, len(data)-offset)
	}
	m.Data = make([]byte, len(data)-offset)
	copy(m.Data, data[offset:])

	return m, nil
}

func parseStateChange(data []byte, as4 bool) (*BGP4MPStateChange, error) {
	sc := new(BGP4MPStateChange)
	offset, err := bgp4mpPrelude(data, as4, &sc.PeerAS, &sc.LocalAS, &sc.InterfaceIndex, &sc.AFI, &sc.PeerAddress, &sc.LocalAddress, &sc.IPv6)
	if err != nil {
		return nil, err
	}

	if len(data)-offset < 4 {
		return nil, fmt.Errorf("%w: state change states truncated", ErrMalformed)
	}
	sc.OldState = binary.BigEndian.Uint16(data[offset : offset+2])
	sc.NewState = binary.BigEndian.Uint16(data[offset+2 : offset+4])

	return sc, nil
}
