package mrt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// --- Test helpers for building MRT byte frames ---

func mrtRecord(ts uint32, typ, sub uint16, body []byte) []byte {
	rec := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(rec[0:4], ts)
	binary.BigEndian.PutUint16(rec[4:6], typ)
	binary.BigEndian.PutUint16(rec[6:8], sub)
	binary.BigEndian.PutUint32(rec[8:12], uint32(len(body)))
	copy(rec[HeaderSize:], body)
	return rec
}

func pitPeer(flags byte, bgpID uint32, addr []byte, as uint32) []byte {
	var b []byte
	b = append(b, flags)
	b = binary.BigEndian.AppendUint32(b, bgpID)
	b = append(b, addr...)
	if flags&peerFlagAS32 != 0 {
		b = binary.BigEndian.AppendUint32(b, as)
	} else {
		b = binary.BigEndian.AppendUint16(b, uint16(as))
	}
	return b
}

func peerIndexTable(collectorID uint32, view string, peers ...[]byte) []byte {
	var b []byte
	b = binary.BigEndian.AppendUint32(b, collectorID)
	b = binary.BigEndian.AppendUint16(b, uint16(len(view)))
	b = append(b, view...)
	b = binary.BigEndian.AppendUint16(b, uint16(len(peers)))
	for _, p := range peers {
		b = append(b, p...)
	}
	return b
}

func ribRecord(seq uint32, prefixLen uint8, prefix []byte, entries ...[]byte) []byte {
	var b []byte
	b = binary.BigEndian.AppendUint32(b, seq)
	b = append(b, prefixLen)
	b = append(b, prefix...)
	b = binary.BigEndian.AppendUint16(b, uint16(len(entries)))
	for _, e := range entries {
		b = append(b, e...)
	}
	return b
}

func ribEntry(peerIndex uint16, originated uint32, attrs []byte) []byte {
	var b []byte
	b = binary.BigEndian.AppendUint16(b, peerIndex)
	b = binary.BigEndian.AppendUint32(b, originated)
	b = binary.BigEndian.AppendUint16(b, uint16(len(attrs)))
	return append(b, attrs...)
}

func bgp4mpMessageAS4(peerAS, localAS uint32, peerIP, localIP []byte, bgpMsg []byte) []byte {
	var b []byte
	b = binary.BigEndian.AppendUint32(b, peerAS)
	b = binary.BigEndian.AppendUint32(b, localAS)
	b = binary.BigEndian.AppendUint16(b, 1) // interface index
	afi := uint16(1)
	if len(peerIP) == 16 {
		afi = 2
	}
	b = binary.BigEndian.AppendUint16(b, afi)
	b = append(b, peerIP...)
	b = append(b, localIP...)
	return append(b, bgpMsg...)
}

func bgpKeepalive() []byte {
	msg := make([]byte, 19)
	for i := 0; i < 16; i++ {
		msg[i] = 0xFF
	}
	binary.BigEndian.PutUint16(msg[16:18], 19)
	msg[18] = 4
	return msg
}

func TestReader_PeerIndexTable(t *testing.T) {
	peers := peerIndexTable(0x0A000001, "test-view",
		pitPeer(peerFlagAS32, 0xC0A80001, []byte{10, 0, 0, 1}, 65001),
		pitPeer(peerFlagAS32|peerFlagIPv6, 0xC0A80002,
			[]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2}, 65002),
		pitPeer(0, 0xC0A80003, []byte{10, 0, 0, 3}, 64512),
	)
	rd := NewReader(bytes.NewReader(mrtRecord(1000, TypeTableDumpV2, SubtypePeerIndexTable, peers)))

	rec, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	pit := rec.PeerIndexTable
	if pit == nil {
		t.Fatal("expected peer index table")
	}
	if pit.CollectorBGPID != 0x0A000001 {
		t.Errorf("collector id = %x", pit.CollectorBGPID)
	}
	if pit.ViewName != "test-view" {
		t.Errorf("view = %q", pit.ViewName)
	}
	if len(pit.Peers) != 3 {
		t.Fatalf("peer count = %d", len(pit.Peers))
	}
	if pit.Peers[0].AS != 65001 || pit.Peers[0].IPv6 {
		t.Errorf("peer 0 = %+v", pit.Peers[0])
	}
	if got := pit.Peers[0].Address[12:16]; !bytes.Equal(got, []byte{10, 0, 0, 1}) {
		t.Errorf("peer 0 address = %v", got)
	}
	if !pit.Peers[1].IPv6 || pit.Peers[1].Address[0] != 0x20 {
		t.Errorf("peer 1 = %+v", pit.Peers[1])
	}
	// 2-byte AS peer
	if pit.Peers[2].AS != 64512 {
		t.Errorf("peer 2 AS = %d", pit.Peers[2].AS)
	}

	if _, err := rd.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestReader_RIBIPv4(t *testing.T) {
	attrs := []byte{0x40, 1, 1, 0} // ORIGIN IGP
	body := ribRecord(7, 24, []byte{10, 0, 0}, ribEntry(0, 900, attrs))
	rd := NewReader(bytes.NewReader(mrtRecord(1000, TypeTableDumpV2, SubtypeRIBIPv4Unicast, body)))

	rec, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	rib := rec.RIB
	if rib == nil {
		t.Fatal("expected rib record")
	}
	if rib.Sequence != 7 || rib.PrefixLen != 24 || rib.IPv6 {
		t.Errorf("rib = %+v", rib)
	}
	if !bytes.Equal(rib.Prefix, []byte{10, 0, 0}) {
		t.Errorf("prefix = %v", rib.Prefix)
	}
	if len(rib.Entries) != 1 {
		t.Fatalf("entries = %d", len(rib.Entries))
	}
	e := rib.Entries[0]
	if e.PeerIndex != 0 || e.OriginatedTime != 900 || !bytes.Equal(e.Attributes, attrs) {
		t.Errorf("entry = %+v", e)
	}
}

func TestReader_RIBIPv6(t *testing.T) {
	body := ribRecord(1, 32, []byte{0x20, 0x01, 0x0d, 0xb8}, ribEntry(2, 500, nil))
	rd := NewReader(bytes.NewReader(mrtRecord(1000, TypeTableDumpV2, SubtypeRIBIPv6Unicast, body)))

	rec, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.RIB == nil || !rec.RIB.IPv6 {
		t.Fatalf("expected ipv6 rib, got %+v", rec.RIB)
	}
	if !bytes.Equal(rec.RIB.Prefix, []byte{0x20, 0x01, 0x0d, 0xb8}) {
		t.Errorf("prefix = %v", rec.RIB.Prefix)
	}
}

func TestReader_BGP4MPMessageAS4(t *testing.T) {
	bgpMsg := bgpKeepalive()
	body := bgp4mpMessageAS4(65001, 65000, []byte{10, 0, 0, 1}, []byte{10, 0, 0, 2}, bgpMsg)
	rd := NewReader(bytes.NewReader(mrtRecord(2000, TypeBGP4MP, SubtypeMessageAS4, body)))

	rec, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	m := rec.Message
	if m == nil {
		t.Fatal("expected bgp4mp message")
	}
	if m.PeerAS != 65001 || m.LocalAS != 65000 || m.IPv6 {
		t.Errorf("message = %+v", m)
	}
	if !bytes.Equal(m.PeerAddress[12:16], []byte{10, 0, 0, 1}) {
		t.Errorf("peer address = %v", m.PeerAddress)
	}
	if !bytes.Equal(m.Data, bgpMsg) {
		t.Errorf("bgp payload not verbatim: %v", m.Data)
	}
	if rec.Header.Timestamp != 2000 {
		t.Errorf("timestamp = %d", rec.Header.Timestamp)
	}
}

func TestReader_StateChangeAS4(t *testing.T) {
	var body []byte
	body = binary.BigEndian.AppendUint32(body, 65001)
	body = binary.BigEndian.AppendUint32(body, 65000)
	body = binary.BigEndian.AppendUint16(body, 0)
	body = binary.BigEndian.AppendUint16(body, 1)
	body = append(body, 10, 0, 0, 1)
	body = append(body, 10, 0, 0, 2)
	body = binary.BigEndian.AppendUint16(body, StateEstablished)
	body = binary.BigEndian.AppendUint16(body, StateIdle)

	rd := NewReader(bytes.NewReader(mrtRecord(2000, TypeBGP4MP, SubtypeStateChangeAS4, body)))
	rec, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	sc := rec.StateChange
	if sc == nil {
		t.Fatal("expected state change")
	}
	if sc.OldState != StateEstablished || sc.NewState != StateIdle {
		t.Errorf("states = %d -> %d", sc.OldState, sc.NewState)
	}
}

func TestReader_ExtendedTimestamp(t *testing.T) {
	bgpMsg := bgpKeepalive()
	inner := bgp4mpMessageAS4(65001, 65000, []byte{10, 0, 0, 1}, []byte{10, 0, 0, 2}, bgpMsg)
	body := make([]byte, 4+len(inner))
	binary.BigEndian.PutUint32(body[0:4], 123456)
	copy(body[4:], inner)

	rd := NewReader(bytes.NewReader(mrtRecord(2000, TypeBGP4MPET, SubtypeMessageAS4, body)))
	rec, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.Header.Microsecond != 123456 {
		t.Errorf("microsecond = %d", rec.Header.Microsecond)
	}
	if rec.Message == nil || !bytes.Equal(rec.Message.Data, bgpMsg) {
		t.Error("payload mismatch under extended timestamp")
	}
}

func TestReader_SkipsUnknownTypes(t *testing.T) {
	var stream []byte
	stream = append(stream, mrtRecord(1, 99, 0, []byte{1, 2, 3})...) // unknown type
	stream = append(stream, mrtRecord(2, TypeTableDumpV2, 77, []byte{9, 9})...) // unknown subtype
	stream = append(stream, mrtRecord(3, TypeBGP4MP, SubtypeMessageAS4,
		bgp4mpMessageAS4(1, 2, []byte{1, 1, 1, 1}, []byte{2, 2, 2, 2}, bgpKeepalive()))...)

	rd := NewReader(bytes.NewReader(stream))
	rec, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.Message == nil || rec.Header.Timestamp != 3 {
		t.Fatalf("expected the bgp4mp record, got %+v", rec.Header)
	}
}

func TestReader_DeclaredLengthOverrun(t *testing.T) {
	good := mrtRecord(1, TypeBGP4MP, SubtypeMessageAS4,
		bgp4mpMessageAS4(1, 2, []byte{1, 1, 1, 1}, []byte{2, 2, 2, 2}, bgpKeepalive()))

	// second record claims more bytes than remain in the stream
	bad := make([]byte, HeaderSize+4)
	binary.BigEndian.PutUint32(bad[0:4], 2)
	binary.BigEndian.PutUint16(bad[4:6], TypeBGP4MP)
	binary.BigEndian.PutUint16(bad[6:8], SubtypeMessageAS4)
	binary.BigEndian.PutUint32(bad[8:12], 500)

	rd := NewReader(bytes.NewReader(append(good, bad...)))

	if _, err := rd.Next(); err != nil {
		t.Fatalf("first record should decode: %v", err)
	}
	_, err := rd.Next()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestReader_TruncatedField(t *testing.T) {
	// declared length covers only 4 of the 12 fixed bgp4mp prelude bytes
	body := []byte{0, 0, 1, 1}
	rd := NewReader(bytes.NewReader(mrtRecord(1, TypeBGP4MP, SubtypeMessageAS4, body)))
	if _, err := rd.Next(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
