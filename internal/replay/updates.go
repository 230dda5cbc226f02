package replay

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/openbmp/mrt2bmp/internal/archive"
	"github.com/openbmp/mrt2bmp/internal/bmp"
	"github.com/openbmp/mrt2bmp/internal/metrics"
	"github.com/openbmp/mrt2bmp/internal/mirror"
	"github.com/openbmp/mrt2bmp/internal/mrt"
	"go.uber.org/zap"
)

// RunUpdates replays update archives in chronological order until the
// context ends. It picks up where ProcessRIB left off.
func (p *Processor) RunUpdates(ctx context.Context) error {
	for {
		f, ok, err := p.nextUpdates()
		if err != nil {
			return err
		}
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(scanInterval):
			}
			continue
		}

		if err := p.processUpdates(ctx, f); err != nil {
			return err
		}
	}
}

// nextUpdates finds the oldest staged updates file newer than the last
// processed file.
func (p *Processor) nextUpdates() (archive.StagedFile, bool, error) {
	p.mu.Lock()
	files, err := archive.ScanDir(p.masterDir)
	p.mu.Unlock()
	if err != nil {
		return archive.StagedFile{}, false, err
	}

	for _, f := range files {
		if f.Kind == mirror.KindUpdates && f.Timestamp.After(p.lastProcessed) {
			return f, true, nil
		}
	}
	return archive.StagedFile{}, false, nil
}

func (p *Processor) processUpdates(ctx context.Context, f archive.StagedFile) error {
	p.logger.Info("replaying update archive",
		zap.String("file", f.Name),
		zap.Time("timestamp", f.Timestamp),
	)

	file, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	rd := mrt.NewReader(file)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rec, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return p.retireBad(f, err)
		}

		switch {
		case rec.Message != nil:
			if err := p.replayMessage(ctx, rec); err != nil {
				return err
			}
		case rec.StateChange != nil:
			if err := p.replayStateChange(ctx, rec); err != nil {
				return err
			}
		}
	}

	return p.retire(f)
}

// replayMessage forwards one BGP4MP message verbatim, announcing the peer
// first if this session has not seen it yet.
func (p *Processor) replayMessage(ctx context.Context, rec *mrt.Record) error {
	m := rec.Message
	metrics.RecordsDecodedTotal.WithLabelValues("bgp4mp_message").Inc()

	st := p.peers.lookupAddrAS(m.PeerAddress, m.PeerAS, m.IPv6)
	if !st.announced {
		if err := p.announcePeer(ctx, st, rec.Header.Timestamp, rec.Header.Microsecond); err != nil {
			return err
		}
	}

	hdr := st.header
	hdr.Timestamp = rec.Header.Timestamp
	hdr.Microsecond = rec.Header.Microsecond

	if err := p.enqueue(ctx, bmp.RouteMonitoring(&hdr, m.Data), "route_monitoring"); err != nil {
		return err
	}
	st.lastTimestamp = rec.Header.Timestamp
	metrics.LastRecordTimestamp.Set(float64(rec.Header.Timestamp))
	return nil
}

// replayStateChange translates FSM transitions: leaving Established emits
// Peer Down, returning to Established re-arms the Peer Up.
func (p *Processor) replayStateChange(ctx context.Context, rec *mrt.Record) error {
	sc := rec.StateChange
	metrics.RecordsDecodedTotal.WithLabelValues("bgp4mp_state_change").Inc()

	if !p.emitPeerDown {
		return nil
	}

	st := p.peers.lookupAddrAS(sc.PeerAddress, sc.PeerAS, sc.IPv6)

	switch {
	case sc.NewState != mrt.StateEstablished && st.announced:
		hdr := st.header
		hdr.Timestamp = rec.Header.Timestamp
		hdr.Microsecond = rec.Header.Microsecond

		msg := bmp.PeerDown(&hdr, bmp.PeerDownLocalNoNotify, nil)
		p.writer.RemovePeer(st.header.Key())
		if err := p.enqueue(ctx, msg, "peer_down"); err != nil {
			return err
		}
		p.peers.markDowned(st)
		st.lastTimestamp = rec.Header.Timestamp

	case sc.NewState == mrt.StateEstablished && st.downed:
		if err := p.announcePeer(ctx, st, rec.Header.Timestamp, rec.Header.Microsecond); err != nil {
			return err
		}
	}
	return nil
}
