// Package replay turns staged MRT files into an ordered BMP message
// stream: a one-shot RIB replay followed by continuous update replay.
package replay

import (
	"github.com/openbmp/mrt2bmp/internal/bmp"
	"github.com/openbmp/mrt2bmp/internal/metrics"
)

// peerState tracks what the session has told the collector about a peer.
type peerState struct {
	header        bmp.PeerHeader // template; timestamp fields are per-message
	announced     bool
	downed        bool
	lastTimestamp uint32 // MRT timestamp of the last forwarded message
}

type addrAS struct {
	addr [16]byte
	as   uint32
}

// peers is the session-lifetime registry. Created on first observation,
// peers live until shutdown. Single-goroutine access: the RIB processor
// hands the registry to the update processor only after finishing.
type peers struct {
	byKey map[string]*peerState
	// byAddrAS recovers a peer's BGP ID for BGP4MP records, which carry
	// address and AS but no identifier.
	byAddrAS map[addrAS]*peerState
}

func newPeers() *peers {
	return &peers{
		byKey:    make(map[string]*peerState),
		byAddrAS: make(map[addrAS]*peerState),
	}
}

// lookup finds or creates the peer for a header template.
func (ps *peers) lookup(hdr bmp.PeerHeader) *peerState {
	key := hdr.Key()
	if st, ok := ps.byKey[key]; ok {
		return st
	}
	st := &peerState{header: hdr}
	ps.byKey[key] = st
	ps.byAddrAS[addrAS{hdr.Address, hdr.AS}] = st
	return st
}

// lookupAddrAS finds a peer by address and AS, creating one with a zero
// BGP ID when the peer was never listed in a PEER_INDEX_TABLE.
func (ps *peers) lookupAddrAS(addr [16]byte, as uint32, ipv6 bool) *peerState {
	if st, ok := ps.byAddrAS[addrAS{addr, as}]; ok {
		return st
	}
	hdr := bmp.PeerHeader{
		Type:    bmp.PeerTypeGlobal,
		Address: addr,
		AS:      as,
	}
	if ipv6 {
		hdr.Flags |= bmp.PeerFlagIPv6
	}
	return ps.lookup(hdr)
}

func (ps *peers) markAnnounced(st *peerState) {
	if !st.announced {
		st.announced = true
		metrics.PeersAnnounced.Inc()
	}
	st.downed = false
}

func (ps *peers) markDowned(st *peerState) {
	if st.announced && !st.downed {
		st.downed = true
		st.announced = false
		metrics.PeersAnnounced.Dec()
	}
}
