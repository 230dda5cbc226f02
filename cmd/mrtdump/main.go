// mrtdump prints a summary of every record in an MRT file. Debugging aid
// for archives that fail to replay.
package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/openbmp/mrt2bmp/internal/mrt"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: mrtdump <file.mrt>")
		os.Exit(1)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	rd := mrt.NewReader(f)
	num := 0
	for {
		rec, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "record %d: %v\n", num+1, err)
			if errors.Is(err, mrt.ErrMalformed) {
				os.Exit(2)
			}
			os.Exit(1)
		}
		num++

		ts := time.Unix(int64(rec.Header.Timestamp), 0).UTC().Format(time.RFC3339)
		switch {
		case rec.PeerIndexTable != nil:
			pit := rec.PeerIndexTable
			fmt.Printf("%6d %s PEER_INDEX_TABLE view=%q peers=%d\n", num, ts, pit.ViewName, len(pit.Peers))
			for i, p := range pit.Peers {
				fmt.Printf("         [%d] as=%d bgp_id=%s addr=%s\n", i, p.AS, bgpID(p.BGPID), peerAddr(p.Address, p.IPv6))
			}
		case rec.RIB != nil:
			rib := rec.RIB
			fmt.Printf("%6d %s RIB seq=%d prefix_len=%d entries=%d\n", num, ts, rib.Sequence, rib.PrefixLen, len(rib.Entries))
		case rec.Message != nil:
			m := rec.Message
			fmt.Printf("%6d %s BGP4MP_MESSAGE peer_as=%d peer=%s bgp_bytes=%d\n", num, ts, m.PeerAS, peerAddr(m.PeerAddress, m.IPv6), len(m.Data))
		case rec.StateChange != nil:
			sc := rec.StateChange
			fmt.Printf("%6d %s BGP4MP_STATE_CHANGE peer_as=%d peer=%s %d->%d\n", num, ts, sc.PeerAS, peerAddr(sc.PeerAddress, sc.IPv6), sc.OldState, sc.NewState)
		}
	}

	fmt.Printf("Total records: %d\n", num)
}

func peerAddr(addr [16]byte, ipv6 bool) string {
	if ipv6 {
		return net.IP(addr[:]).String()
	}
	return net.IP(addr[12:16]).String()
}

func bgpID(id uint32) string {
	return net.IPv4(byte(id>>24), byte(id>>16), byte(id>>8), byte(id)).String()
}
