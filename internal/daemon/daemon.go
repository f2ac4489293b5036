// Package daemon is the ticketd process shell: it owns the file lock,
// the ticket store, the scheduler, and the control/inspection servers.
package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/xXKillerNoobYT/ticketd/internal/agents"
	"github.com/xXKillerNoobYT/ticketd/internal/api"
	"github.com/xXKillerNoobYT/ticketd/internal/events"
	"github.com/xXKillerNoobYT/ticketd/internal/llm"
	"github.com/xXKillerNoobYT/ticketd/internal/lock"
	"github.com/xXKillerNoobYT/ticketd/internal/logging"
	"github.com/xXKillerNoobYT/ticketd/internal/model"
	"github.com/xXKillerNoobYT/ticketd/internal/scheduler"
	"github.com/xXKillerNoobYT/ticketd/internal/store"
	"github.com/xXKillerNoobYT/ticketd/internal/uds"
)

// Daemon is the main ticketd daemon process.
type Daemon struct {
	stateDir string
	config   model.Config
	logger   *logging.Logger
	logFile  io.Closer

	fileLock *lock.FileLock
	st       store.Store
	bus      *events.Bus
	sched    *scheduler.Scheduler
	routers  *agents.Routers
	server   *uds.Server
	httpSrv  *http.Server
	ticker   *time.Ticker

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once

	forceExit atomic.Bool
}

// New creates a Daemon logging to <stateDir>/logs/daemon.log.
func New(stateDir string, cfg model.Config) (*Daemon, error) {
	logPath := filepath.Join(stateDir, "logs", "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}

	return newDaemon(stateDir, cfg, logFile, logFile)
}

// newDaemon is the internal constructor for testing.
func newDaemon(stateDir string, cfg model.Config, w io.Writer, closer io.Closer) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	logger := logging.New(w, "daemon", logging.ParseLevel(cfg.Logging.Level))

	scanInterval := cfg.Daemon.ScanIntervalSec
	if scanInterval <= 0 {
		scanInterval = 10
	}

	d := &Daemon{
		stateDir: stateDir,
		config:   cfg,
		logger:   logger,
		logFile:  closer,
		fileLock: lock.NewFileLock(filepath.Join(stateDir, "locks", "daemon.lock")),
		ticker:   time.NewTicker(time.Duration(scanInterval) * time.Second),
		ctx:      ctx,
		cancel:   cancel,
	}

	return d, nil
}

// Run starts the daemon and blocks until shutdown completes.
func (d *Daemon) Run() error {
	if err := os.MkdirAll(filepath.Join(d.stateDir, "locks"), 0755); err != nil {
		return fmt.Errorf("ensure locks dir: %w", err)
	}
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	d.logger.Infof("daemon starting pid=%d", os.Getpid())

	storePath := d.config.Store.Path
	if storePath == "" {
		storePath = filepath.Join(d.stateDir, "tickets.yaml")
	}
	st, err := store.NewFileStore(storePath, d.config.Store.DebounceSec, d.logger.WithComponent("store"))
	if err != nil {
		d.cleanup()
		return fmt.Errorf("open ticket store: %w", err)
	}
	d.st = st
	d.logger.Infof("store ready path=%s", st.Path())

	d.bus = events.NewBus(d.logger.WithComponent("events"))
	d.sched = scheduler.New(d.st, d.bus, d.logger.WithComponent("scheduler"))
	d.sched.Initialize(d.config.Scheduler)

	// The routers need a model client; without a key the daemon still
	// runs the queue, it just cannot plan/verify/answer.
	lm, err := llm.NewAnthropicClient("", d.config.LLM.Model, d.config.LLM.MaxTokens)
	if err != nil {
		d.logger.Warnf("llm_disabled error=%v", err)
	} else {
		d.routers = agents.NewRouters(d.sched, d.st, lm, d.logger)
	}

	socketPath := filepath.Join(d.stateDir, uds.DefaultSocketName)
	d.server = uds.NewServer(socketPath, d.logger.WithComponent("uds"))
	d.registerHandlers()

	if err := d.server.Start(); err != nil {
		d.cleanup()
		return fmt.Errorf("start UDS server: %w", err)
	}
	d.logger.Infof("UDS server listening on %s", socketPath)

	if addr := d.config.Daemon.APIAddr; addr != "" {
		apiSrv := api.New(d.sched, d.logger.WithComponent("api"))
		d.httpSrv = &http.Server{Addr: addr, Handler: apiSrv.Router()}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.logger.Infof("HTTP server listening on %s", addr)
			if err := d.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				d.logger.Errorf("http_server_failed error=%v", err)
			}
		}()
	}

	d.wg.Add(1)
	go d.tickerLoop()

	d.sched.Refresh()
	d.logger.Infof("daemon ready")

	d.waitSignals()

	return nil
}

// tickerLoop triggers periodic refreshes as a backstop for missed
// store notifications.
func (d *Daemon) tickerLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.ticker.C:
			d.logger.Debugf("periodic refresh triggered")
			d.sched.Refresh()
		}
	}
}

// waitSignals blocks until a shutdown signal is received.
func (d *Daemon) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	d.logger.Infof("received signal=%s, initiating graceful shutdown", sig)

	// Second signal → force exit
	go func() {
		<-sigCh
		d.logger.Warnf("received second signal, forcing exit")
		d.forceExit.Store(true)
		os.Exit(1)
	}()

	d.Shutdown()
}

// Shutdown performs graceful shutdown (idempotent via sync.Once).
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.logger.Infof("shutdown started")

		d.cancel()

		d.ticker.Stop()
		if d.server != nil {
			d.server.Stop()
		}
		if d.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = d.httpSrv.Shutdown(ctx)
			cancel()
		}

		timeout := d.config.Daemon.ShutdownTimeoutSec
		if timeout <= 0 {
			timeout = 30
		}

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			d.logger.Infof("all goroutines drained")
		case <-time.After(time.Duration(timeout) * time.Second):
			d.logger.Warnf("shutdown timeout after %ds, some operations may be incomplete", timeout)
		}

		d.cleanup()
		d.logger.Infof("daemon stopped")
	})
}

// cleanup releases resources.
func (d *Daemon) cleanup() {
	if d.st != nil {
		_ = d.st.Close()
	}
	os.Remove(filepath.Join(d.stateDir, uds.DefaultSocketName))
	d.fileLock.Unlock()
	if d.logFile != nil {
		d.logFile.Close()
	}
}
