// Package mrt decodes MRT archives (RFC 6396): the common header plus the
// TABLE_DUMP_V2 and BGP4MP record families used by route collectors.
package mrt

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed reports a structurally invalid MRT record: a declared length
// overrunning the input, or a mandatory field cut short.
var ErrMalformed = errors.New("mrt: malformed record")

// maxRecordLen rejects records whose declared length is absurd before any
// allocation happens. The largest records in real archives are RIB entries
// for heavily-peered prefixes, well under 1 MiB.
const maxRecordLen = 16 << 20

// Reader decodes MRT records lazily from an underlying stream. It buffers
// one record at a time, never the whole file.
type Reader struct {
	r   *bufio.Reader
	buf []byte
	hdr [HeaderSize]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64<<10)}
}

// Next returns the next supported record, skipping unknown types and
// subtypes by their declared length. It returns io.EOF at a clean end of
// input and an ErrMalformed-wrapped error on truncation or overrun.
func (rd *Reader) Next() (*Record, error) {
	for {
		rec, err := rd.next()
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
		// unknown type/subtype, keep going
	}
}

func (rd *Reader) next() (*Record, error) {
	if _, err := io.ReadFull(rd.r, rd.hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: truncated common header: %v", ErrMalformed, err)
	}

	var h Header
	h.Timestamp = binary.BigEndian.Uint32(rd.hdr[0:4])
	h.Type = binary.BigEndian.Uint16(rd.hdr[4:6])
	h.Subtype = binary.BigEndian.Uint16(rd.hdr[6:8])
	h.Length = binary.BigEndian.Uint32(rd.hdr[8:12])

	if h.Length > maxRecordLen {
		return nil, fmt.Errorf("%w: declared length %d exceeds limit", ErrMalformed, h.Length)
	}

	if cap(rd.buf) < int(h.Length) {
		rd.buf = make([]byte, h.Length)
	}
	body := rd.buf[:h.Length]
	if _, err := io.ReadFull(rd.r, body); err != nil {
		return nil, fmt.Errorf("%w: record body truncated (declared %d bytes): %v", ErrMalformed, h.Length, err)
	}

	// BGP4MP_ET prepends a microsecond field to the body.
	if h.Type == TypeBGP4MPET {
		if len(body) < 4 {
			return nil, fmt.Errorf("%w: extended timestamp record shorter than 4 bytes", ErrMalformed)
		}
		h.Microsecond = binary.BigEndian.Uint32(body[0:4])
		body = body[4:]
	}

	rec := &Record{Header: h}
	switch h.Type {
	case TypeTableDumpV2:
		switch h.Subtype {
		case SubtypePeerIndexTable:
			pit, err := parsePeerIndexTable(body)
			if err != nil {
				return nil, err
			}
			rec.PeerIndexTable = pit
		case SubtypeRIBIPv4Unicast, SubtypeRIBIPv6Unicast:
			rib, err := parseRIB(body, h.Subtype == SubtypeRIBIPv6Unicast)
			if err != nil {
				return nil, err
			}
			rec.RIB = rib
		default:
			return nil, nil
		}
	case TypeBGP4MP, TypeBGP4MPET:
		switch h.Subtype {
		case SubtypeMessage, SubtypeMessageAS4:
			msg, err := parseBGP4MPMessage(body, h.Subtype == SubtypeMessageAS4)
			if err != nil {
				return nil, err
			}
			rec.Message = msg
		case SubtypeStateChange, SubtypeStateChangeAS4:
			sc, err := parseStateChange(body, h.Subtype == SubtypeStateChangeAS4)
			if err != nil {
				return nil, err
			}
			rec.StateChange = sc
		default:
			return nil, nil
		}
	default:
		return nil, nil
	}

	return rec, nil
}
