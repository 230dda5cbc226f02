package bgp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNoNextHop reports an IPv6 RIB entry whose attributes carry no
// MP_REACH_NLRI to take the next hop from.
var ErrNoNextHop = errors.New("bgp: rib entry has no MP_REACH_NLRI next hop")

// BuildRIBUpdate synthesizes a BGP UPDATE announcing a single prefix from
// a TABLE_DUMP_V2 RIB entry. The entry's path attributes are carried
// through; for IPv4 the prefix rides in the NLRI field, for IPv6 the
// abbreviated MP_REACH_NLRI attribute (RFC 6396 carries only the next
// hop) is rebuilt into its full RFC 4760 form with AFI, SAFI, and the
// prefix as NLRI.
func BuildRIBUpdate(attrs []byte, prefixLen uint8, prefix []byte, ipv6 bool) ([]byte, error) {
	var pathAttrs []byte
	var nlri []byte

	if ipv6 {
		rebuilt, err := rebuildMPReach(attrs, prefixLen, prefix)
		if err != nil {
			return nil, err
		}
		pathAttrs = rebuilt
	} else {
		pathAttrs = attrs
		nlri = make([]byte, 1+len(prefix))
		nlri[0] = prefixLen
		copy(nlri[1:], prefix)
	}

	bodyLen := 2 + 2 + len(pathAttrs) + len(nlri)
	msg := make([]byte, HeaderSize+bodyLen)

	offset := HeaderSize
	// withdrawn routes length = 0
	offset += 2
	binary.BigEndian.PutUint16(msg[offset:offset+2], uint16(len(pathAttrs)))
	offset += 2
	copy(msg[offset:], pathAttrs)
	offset += len(pathAttrs)
	copy(msg[offset:], nlri)

	putHeader(msg, MsgTypeUpdate)
	return msg, nil
}

// rebuildMPReach walks the attribute block, copies every attribute except
// MP_REACH_NLRI verbatim, and replaces the abbreviated MP_REACH_NLRI with
// a full one carrying the given prefix.
func rebuildMPReach(attrs []byte, prefixLen uint8, prefix []byte) ([]byte, error) {
	out := make([]byte, 0, len(attrs)+8+len(prefix))
	foundReach := false

	offset := 0
	for offset < len(attrs) {
		start := offset
		if offset+3 > len(attrs) {
			return nil, fmt.Errorf("bgp: attribute header truncated at offset %d", offset)
		}
		flags := attrs[offset]
		attrType := attrs[offset+1]

		var attrLen, hdrLen int
		if flags&AttrFlagExtendedLen != 0 {
			if offset+4 > len(attrs) {
				return nil, fmt.Errorf("bgp: extended attribute length truncated at offset %d", offset)
			}
			attrLen = int(binary.BigEndian.Uint16(attrs[offset+2 : offset+4]))
			hdrLen = 4
		} else {
			attrLen = int(attrs[offset+2])
			hdrLen = 3
		}

		if offset+hdrLen+attrLen > len(attrs) {
			return nil, fmt.Errorf("bgp: attribute %d overruns block", attrType)
		}
		value := attrs[offset+hdrLen : offset+hdrLen+attrLen]
		offset += hdrLen + attrLen

		if attrType != AttrTypeMPReachNLRI {
			// verbatim, header included
			out = append(out, attrs[start:offset]...)
			continue
		}

		// Abbreviated form: next_hop_len(1) + next_hop.
		if len(value) < 1 || 1+int(value[0]) > len(value) {
			return nil, fmt.Errorf("bgp: abbreviated MP_REACH_NLRI next hop truncated")
		}
		nextHop := value[1 : 1+int(value[0])]

		full := make([]byte, 0, 5+len(nextHop)+1+1+len(prefix))
		var afiBuf [2]byte
		binary.BigEndian.PutUint16(afiBuf[:], AFIIPv6)
		full = append(full, afiBuf[:]...)
		full = append(full, SAFIUnicast)
		full = append(full, byte(len(nextHop)))
		full = append(full, nextHop...)
		full = append(full, 0) // reserved
		full = append(full, prefixLen)
		full = append(full, prefix...)

		out = appendAttr(out, AttrFlagOptional, AttrTypeMPReachNLRI, full)
		foundReach = true
	}

	if !foundReach {
		return nil, ErrNoNextHop
	}
	return out, nil
}

// appendAttr encodes one path attribute, switching to the extended-length
// form when the value exceeds 255 bytes.
func appendAttr(dst []byte, flags, attrType uint8, value []byte) []byte {
	if len(value) > 255 {
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(value)))
		dst = append(dst, flags|AttrFlagExtendedLen, attrType)
		dst = append(dst, lenBuf[:]...)
	} else {
		dst = append(dst, flags, attrType, byte(len(value)))
	}
	return append(dst, value...)
}
