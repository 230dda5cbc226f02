// Package supervisor wires the pipeline together: writer first, then the
// synchronizer, then RIB and update replay, and unwinds everything on one
// shutdown signal.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/openbmp/mrt2bmp/internal/archive"
	"github.com/openbmp/mrt2bmp/internal/config"
	adminhttp "github.com/openbmp/mrt2bmp/internal/http"
	"github.com/openbmp/mrt2bmp/internal/logging"
	"github.com/openbmp/mrt2bmp/internal/mirror"
	"github.com/openbmp/mrt2bmp/internal/replay"
	"github.com/openbmp/mrt2bmp/internal/writer"
	"go.uber.org/zap"
)

// drainGrace bounds the queue flush on shutdown.
const drainGrace = 3 * time.Second

// Supervisor runs one router replay session.
type Supervisor struct {
	cfg        *config.Config
	routerName string
	// mirror and router are nil/zero in local mode: replay what is
	// already staged, no synchronizer.
	mirror mirror.Mirror
	router mirror.Router
	logs   *logging.Factory
}

func New(cfg *config.Config, routerName string, m mirror.Mirror, router mirror.Router, logs *logging.Factory) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		routerName: routerName,
		mirror:     m,
		router:     router,
		logs:       logs,
	}
}

// Run blocks until ctx is cancelled or the pipeline fails. On cancellation
// producers stop first, then the writer drains, emits Termination, and
// closes the collector session.
func (s *Supervisor) Run(ctx context.Context) error {
	logger := s.logs.Named("supervisor")

	masterDir := filepath.Join(s.cfg.RouterData.MasterDirectoryPath, s.routerName)
	processedDir := filepath.Join(s.cfg.RouterData.ProcessedDirectoryPath, s.routerName)

	addr := net.JoinHostPort(s.cfg.Collector.Host, strconv.Itoa(s.cfg.Collector.Port))
	w := writer.New(addr,
		s.cfg.RouterData.MaxQueueSize,
		time.Duration(s.cfg.Collector.InitialBackoffSeconds)*time.Second,
		time.Duration(s.cfg.Collector.MaxBackoffSeconds)*time.Second,
		drainGrace,
		s.logs.Named("writer"),
	)

	var dirMu sync.Mutex
	proc := replay.NewProcessor(w, s.routerName, masterDir, processedDir,
		time.Duration(s.cfg.Collector.DelayAfterInitAndPeerUps)*time.Second,
		s.cfg.RouterData.EmitPeerDown,
		&dirMu,
		s.logs.Named("replay"),
	)

	// Producers run under a cancellable child so a pipeline failure
	// unwinds everything.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The writer outlives the producers: it gets its own context,
	// cancelled only after they have stopped, so shutdown can drain.
	writerCtx, writerCancel := context.WithCancel(context.Background())
	defer writerCancel()

	var admin *adminhttp.Server
	if s.cfg.Admin.Listen != "" {
		admin = adminhttp.NewServer(s.cfg.Admin.Listen, w, s.logs.Named("admin"))
		if err := admin.Start(); err != nil {
			return fmt.Errorf("starting admin server: %w", err)
		}
	}

	var writerWg sync.WaitGroup
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		if err := w.Run(writerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("writer stopped", zap.Error(err))
			cancel()
		}
	}()

	var wg sync.WaitGroup
	var runErr error
	var errOnce sync.Once
	fail := func(err error) {
		errOnce.Do(func() { runErr = err })
		cancel()
	}

	if s.mirror != nil {
		syncer := archive.NewSynchronizer(s.mirror, s.router, masterDir, processedDir,
			time.Duration(s.cfg.RouterData.PollIntervalSeconds)*time.Second,
			time.Duration(s.cfg.RouterData.TimestampIntervalLimit)*time.Minute,
			s.cfg.RouterData.IgnoreTimestampIntervalAbnormality,
			&dirMu,
			s.logs.Named("sync"),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := syncer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				fail(fmt.Errorf("synchronizer: %w", err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		rib, err := proc.WaitForRIB(runCtx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				fail(fmt.Errorf("waiting for rib: %w", err))
			}
			return
		}
		if err := proc.ProcessRIB(runCtx, rib); err != nil {
			if !errors.Is(err, context.Canceled) {
				fail(fmt.Errorf("rib replay: %w", err))
			}
			return
		}
		if err := proc.RunUpdates(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			fail(fmt.Errorf("update replay: %w", err))
		}
	}()

	<-runCtx.Done()
	logger.Info("shutting down")

	wg.Wait()

	// Producers are gone; let the writer flush and terminate the session.
	writerCancel()
	writerWg.Wait()

	if admin != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin server shutdown error", zap.Error(err))
		}
	}

	logger.Info("stopped")
	return runErr
}
