// Package bmp constructs BMP version 3 messages (RFC 7854) ready for the
// collector socket.
package bmp

import (
	"encoding/binary"
	"fmt"
)

// PeerHeader carries the fields of the 42-byte BMP per-peer header. The
// timestamp is the MRT record's, never wall-clock time; downstream
// analytics key on it.
type PeerHeader struct {
	Type          uint8
	Flags         uint8
	Distinguisher uint64
	Address       [16]byte // IPv4 right-aligned
	AS            uint32
	BGPID         uint32
	Timestamp     uint32
	Microsecond   uint32
}

// Key identifies the peer across messages: every field of the per-peer
// header except the flags and the timestamp.
func (p *PeerHeader) Key() string {
	return fmt.Sprintf("%d/%d/%x/%d/%d", p.Type, p.Distinguisher, p.Address, p.AS, p.BGPID)
}

func (p *PeerHeader) put(dst []byte) {
	dst[0] = p.Type
	dst[1] = p.Flags
	binary.BigEndian.PutUint64(dst[2:10], p.Distinguisher)
	copy(dst[10:26], p.Address[:])
	binary.BigEndian.PutUint32(dst[26:30], p.AS)
	binary.BigEndian.PutUint32(dst[30:34], p.BGPID)
	binary.BigEndian.PutUint32(dst[34:38], p.Timestamp)
	binary.BigEndian.PutUint32(dst[38:42], p.Microsecond)
}

// newMessage allocates a message of the given total length and fills the
// common header. The caller writes the body at offset CommonHeaderSize.
func newMessage(msgType uint8, totalLen int) []byte {
	msg := make([]byte, totalLen)
	msg[0] = Version
	binary.BigEndian.PutUint32(msg[1:5], uint32(totalLen))
	msg[5] = msgType
	return msg
}

func appendTLV(dst []byte, tlvType uint16, value []byte) []byte {
	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[0:2], tlvType)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(value)))
	dst = append(dst, hdr[:]...)
	return append(dst, value...)
}

// Initiation builds an Initiation message carrying sysDescr and sysName
// TLVs identifying the replay session, plus any free-form string TLVs.
func Initiation(sysDescr, sysName string, info ...string) []byte {
	var tlvs []byte
	tlvs = appendTLV(tlvs, TLVTypeSysDescr, []byte(sysDescr))
	tlvs = appendTLV(tlvs, TLVTypeSysName, []byte(sysName))
	for _, s := range info {
		tlvs = appendTLV(tlvs, TLVTypeString, []byte(s))
	}

	msg := newMessage(MsgTypeInitiation, CommonHeaderSize+len(tlvs))
	copy(msg[CommonHeaderSize:], tlvs)
	return msg
}

// Termination builds a Termination message with the given reason code.
func Termination(reason uint16) []byte {
	var value [2]byte
	binary.BigEndian.PutUint16(value[:], reason)
	var tlvs []byte
	tlvs = appendTLV(tlvs, TLVTypeTermReason, value[:])

	msg := newMessage(MsgTypeTermination, CommonHeaderSize+len(tlvs))
	copy(msg[CommonHeaderSize:], tlvs)
	return msg
}

// PeerUp builds a Peer Up notification: per-peer header, local address and
// ports, then the sent and received OPEN messages.
func PeerUp(peer *PeerHeader, localAddr [16]byte, localPort, remotePort uint16, sentOpen, recvOpen []byte) []byte {
	bodyLen := PerPeerHeaderSize + 16 + 2 + 2 + len(sentOpen) + len(recvOpen)
	msg := newMessage(MsgTypePeerUp, CommonHeaderSize+bodyLen)

	offset := CommonHeaderSize
	peer.put(msg[offset : offset+PerPeerHeaderSize])
	offset += PerPeerHeaderSize

	copy(msg[offset:offset+16], localAddr[:])
	offset += 16
	binary.BigEndian.PutUint16(msg[offset:offset+2], localPort)
	offset += 2
	binary.BigEndian.PutUint16(msg[offset:offset+2], remotePort)
	offset += 2

	copy(msg[offset:], sentOpen)
	offset += len(sentOpen)
	copy(msg[offset:], recvOpen)
	return msg
}

// PeerDown builds a Peer Down notification. For reason codes without
// protocol data (2, 4) data is nil.
func PeerDown(peer *PeerHeader, reason uint8, data []byte) []byte {
	bodyLen := PerPeerHeaderSize + 1 + len(data)
	msg := newMessage(MsgTypePeerDown, CommonHeaderSize+bodyLen)

	offset := CommonHeaderSize
	peer.put(msg[offset : offset+PerPeerHeaderSize])
	offset += PerPeerHeaderSize

	msg[offset] = reason
	copy(msg[offset+1:], data)
	return msg
}

// RouteMonitoring builds a Route Monitoring message wrapping a complete
// BGP message byte-for-byte.
func RouteMonitoring(peer *PeerHeader, bgpMsg []byte) []byte {
	bodyLen := PerPeerHeaderSize + len(bgpMsg)
	msg := newMessage(MsgTypeRouteMonitoring, CommonHeaderSize+bodyLen)

	offset := CommonHeaderSize
	peer.put(msg[offset : offset+PerPeerHeaderSize])
	offset += PerPeerHeaderSize

	copy(msg[offset:], bgpMsg)
	return msg
}
