package replay

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"os"
	stdsync "sync"
	"time"

	"github.com/openbmp/mrt2bmp/internal/archive"
	"github.com/openbmp/mrt2bmp/internal/bgp"
	"github.com/openbmp/mrt2bmp/internal/bmp"
	"github.com/openbmp/mrt2bmp/internal/metrics"
	"github.com/openbmp/mrt2bmp/internal/mirror"
	"github.com/openbmp/mrt2bmp/internal/mrt"
	"go.uber.org/zap"
)

// openHoldTime is the hold time advertised in synthetic OPEN messages.
const openHoldTime = 180

// syntheticBGPID derives a deterministic router identifier for the
// Initiation message: an FNV-1a hash of the router name as dotted quad.
func syntheticBGPID(routerName string) string {
	h := fnv.New32a()
	h.Write([]byte(routerName))
	sum := h.Sum32()
	return net.IPv4(byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum)).String()
}

// scanInterval paces the wait for newly staged files.
const scanInterval = time.Second

// Sink is where encoded BMP messages go: the session writer in
// production. Initiation and Peer Up registration lets the sink rebuild
// the collector's view after a reconnect.
type Sink interface {
	Enqueue(ctx context.Context, msg []byte) error
	SetInitiation(msg []byte)
	UpsertPeerUp(key string, msg []byte)
	RemovePeer(key string)
}

// Processor replays staged MRT files as BMP messages: once through the
// initial RIB snapshot, then continuously through update archives.
type Processor struct {
	writer       Sink
	peers        *peers
	routerName   string
	masterDir    string
	processedDir string
	delay        time.Duration
	emitPeerDown bool

	// mu serializes directory access with the synchronizer so a visible
	// file is never mid-write.
	mu     *stdsync.Mutex
	logger *zap.Logger

	// lastProcessed orders update replay after the RIB snapshot.
	lastProcessed time.Time
}

func NewProcessor(w Sink, routerName, masterDir, processedDir string,
	delay time.Duration, emitPeerDown bool, mu *stdsync.Mutex, logger *zap.Logger) *Processor {
	return &Processor{
		writer:       w,
		peers:        newPeers(),
		routerName:   routerName,
		masterDir:    masterDir,
		processedDir: processedDir,
		delay:        delay,
		emitPeerDown: emitPeerDown,
		mu:           mu,
		logger:       logger,
	}
}

// WaitForRIB blocks until a RIB file is staged and returns the oldest one.
func (p *Processor) WaitForRIB(ctx context.Context) (archive.StagedFile, error) {
	for {
		p.mu.Lock()
		files, err := archive.ScanDir(p.masterDir)
		p.mu.Unlock()
		if err != nil {
			return archive.StagedFile{}, err
		}
		for _, f := range files {
			if f.Kind == mirror.KindRIB {
				return f, nil
			}
		}

		select {
		case <-ctx.Done():
			return archive.StagedFile{}, ctx.Err()
		case <-time.After(scanInterval):
		}
	}
}

// ProcessRIB replays the snapshot: peer index, Initiation, Peer Up per
// peer, a settling delay, then one Route Monitoring per RIB entry.
func (p *Processor) ProcessRIB(ctx context.Context, f archive.StagedFile) error {
	p.logger.Info("replaying RIB snapshot",
		zap.String("file", f.Name),
		zap.Time("timestamp", f.Timestamp),
	)

	file, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	rd := mrt.NewReader(file)

	// The peer index precedes everything else in a TABLE_DUMP_V2 file.
	rec, err := rd.Next()
	if err != nil || rec.PeerIndexTable == nil {
		switch {
		case err == io.EOF:
			err = fmt.Errorf("%w: no records in rib file", mrt.ErrMalformed)
		case err == nil:
			err = fmt.Errorf("%w: first record is not a peer index table", mrt.ErrMalformed)
		}
		return p.retireBad(f, err)
	}
	metrics.RecordsDecodedTotal.WithLabelValues("peer_index_table").Inc()

	index := make([]*peerState, 0, len(rec.PeerIndexTable.Peers))
	for _, peer := range rec.PeerIndexTable.Peers {
		hdr := bmp.PeerHeader{
			Type:    bmp.PeerTypeGlobal,
			Address: peer.Address,
			AS:      peer.AS,
			BGPID:   peer.BGPID,
		}
		if peer.IPv6 {
			hdr.Flags |= bmp.PeerFlagIPv6
		}
		index = append(index, p.peers.lookup(hdr))
	}

	initiation := bmp.Initiation(
		fmt.Sprintf("openbmp-mrt2bmp/%s", p.routerName),
		p.routerName,
		fmt.Sprintf("bgp-id %s", syntheticBGPID(p.routerName)),
	)
	p.writer.SetInitiation(initiation)
	if err := p.enqueue(ctx, initiation, "initiation"); err != nil {
		return err
	}

	fileTS := rec.Header.Timestamp
	for _, st := range index {
		if err := p.announcePeer(ctx, st, fileTS, 0); err != nil {
			return err
		}
	}

	// Let the collector register the peers before the table floods in.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.delay):
	}

	for {
		rec, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return p.retireBad(f, err)
		}
		if rec.RIB == nil {
			continue
		}
		metrics.RecordsDecodedTotal.WithLabelValues("rib").Inc()

		if err := p.replayRIBRecord(ctx, rec.RIB, index); err != nil {
			return err
		}
	}

	return p.retire(f)
}

func (p *Processor) replayRIBRecord(ctx context.Context, rib *mrt.RIB, index []*peerState) error {
	for _, entry := range rib.Entries {
		if int(entry.PeerIndex) >= len(index) {
			metrics.DecodeErrorsTotal.WithLabelValues("rib_entry").Inc()
			p.logger.Warn("rib entry references unknown peer",
				zap.Uint16("peer_index", entry.PeerIndex),
				zap.Uint32("sequence", rib.Sequence),
			)
			continue
		}
		st := index[entry.PeerIndex]

		update, err := bgp.BuildRIBUpdate(entry.Attributes, rib.PrefixLen, rib.Prefix, rib.IPv6)
		if err != nil {
			metrics.DecodeErrorsTotal.WithLabelValues("rib_entry").Inc()
			p.logger.Debug("skipping unusable rib entry",
				zap.Uint32("sequence", rib.Sequence),
				zap.Error(err),
			)
			continue
		}

		hdr := st.header
		hdr.Timestamp = entry.OriginatedTime
		if err := p.enqueue(ctx, bmp.RouteMonitoring(&hdr, update), "route_monitoring"); err != nil {
			return err
		}
		st.lastTimestamp = entry.OriginatedTime
		metrics.LastRecordTimestamp.Set(float64(entry.OriginatedTime))
	}
	return nil
}

// announcePeer emits the Peer Up for a peer and registers it with the
// writer so reconnects replay it.
func (p *Processor) announcePeer(ctx context.Context, st *peerState, ts, us uint32) error {
	hdr := st.header
	hdr.Timestamp = ts
	hdr.Microsecond = us

	open := bgp.BuildOpen(hdr.AS, hdr.BGPID, openHoldTime)
	var localAddr [16]byte
	msg := bmp.PeerUp(&hdr, localAddr, 0, 179, open, open)

	p.writer.UpsertPeerUp(st.header.Key(), msg)
	if err := p.enqueue(ctx, msg, "peer_up"); err != nil {
		return err
	}
	p.peers.markAnnounced(st)
	return nil
}

func (p *Processor) enqueue(ctx context.Context, msg []byte, msgType string) error {
	if err := p.writer.Enqueue(ctx, msg); err != nil {
		return err
	}
	metrics.MessagesEnqueuedTotal.WithLabelValues(msgType).Inc()
	return nil
}

// retire moves a fully replayed file to the processed directory.
func (p *Processor) retire(f archive.StagedFile) error {
	p.mu.Lock()
	err := archive.MoveToProcessed(f, p.processedDir, false)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.lastProcessed = f.Timestamp
	metrics.FilesProcessedTotal.WithLabelValues(string(f.Kind), "ok").Inc()
	return nil
}

// retireBad moves a malformed file aside and keeps the pipeline running;
// records decoded before the failure have already been forwarded.
func (p *Processor) retireBad(f archive.StagedFile, cause error) error {
	if !errors.Is(cause, mrt.ErrMalformed) {
		return cause
	}
	metrics.DecodeErrorsTotal.WithLabelValues("file").Inc()
	p.logger.Error("malformed MRT file, retiring",
		zap.String("file", f.Name),
		zap.Error(cause),
	)

	p.mu.Lock()
	err := archive.MoveToProcessed(f, p.processedDir, true)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.lastProcessed = f.Timestamp
	metrics.FilesProcessedTotal.WithLabelValues(string(f.Kind), "bad").Inc()
	return nil
}
