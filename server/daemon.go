// Package server implements spec.md §4.5's front-end: the accept loop,
// seat registry, and VT signal forwarding, plus the per-connection
// ClientSession handler from §4.3.
package server

import (
	"fmt"
	"net"
	"os"
	"os/signal"

	"github.com/canonical/seatd/internal/conn"
	"github.com/canonical/seatd/internal/logger"
	"github.com/canonical/seatd/internal/ucred"
	"github.com/robfig/cron/v3"
	"golang.org/x/sys/unix"
)

// Config controls how a Daemon listens and logs, resolved by
// cmd/seatd's cobra flags layered over environment defaults.
type Config struct {
	SocketPath string
	Log        *logger.Logger
}

// DefaultSocketPath is spec.md §6's default well-known path.
const DefaultSocketPath = "/run/seatd.sock"

// Daemon is the process-lifetime seat broker: it owns the listener, the
// seat registry, and the single goroutine that serializes every seat
// mutation, mirroring the long-lived-state-holder role the reference
// shell's own Daemon struct plays for canonical/lxd.
type Daemon struct {
	cfg      Config
	log      *logger.Logger
	seats    *Registry
	listener *net.UnixListener

	// cmdCh serializes every seat mutation onto one goroutine
	// (Run), regardless of which connection's goroutine triggered
	// it, per spec.md §5.
	cmdCh chan func()

	sessions map[*ClientSession]struct{}

	cron *cron.Cron
}

// New constructs a Daemon. The caller registers seats on the returned
// value's Seats() registry before calling Run.
func New(cfg Config) *Daemon {
	if cfg.Log == nil {
		cfg.Log = logger.New("info")
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath
	}

	return &Daemon{
		cfg:      cfg,
		log:      cfg.Log,
		seats:    NewRegistry(),
		cmdCh:    make(chan func(), 64),
		sessions: make(map[*ClientSession]struct{}),
		cron:     cron.New(),
	}
}

// Seats returns the daemon's seat registry.
func (d *Daemon) Seats() *Registry { return d.seats }

// submit enqueues fn to run on the daemon's single seat-mutation
// goroutine, blocking until it has run.
func (d *Daemon) submit(fn func()) {
	done := make(chan struct{})
	d.cmdCh <- func() {
		fn()
		close(done)
	}
	<-done
}

// Run opens the listener, starts the watchdog and VT-signal forwarder,
// and serializes seat mutation on the calling goroutine until stop is
// closed.
func (d *Daemon) Run(stop <-chan struct{}) error {
	addr, err := net.ResolveUnixAddr("unix", d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("resolve socket path: %w", err)
	}

	_ = os.Remove(d.cfg.SocketPath)

	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", d.cfg.SocketPath, err)
	}
	d.listener = l
	defer l.Close()

	d.log.Info("listening", logger.Ctx{"socket": d.cfg.SocketPath})

	d.startWatchdog()
	defer d.cron.Stop()

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, unix.SIGUSR1, unix.SIGUSR2)
	go d.forwardVTSignals(sigCh)

	go d.acceptLoop()

	for {
		select {
		case <-stop:
			return nil
		case fn := <-d.cmdCh:
			fn()
		}
	}
}

func (d *Daemon) acceptLoop() {
	for {
		uc, err := d.listener.AcceptUnix()
		if err != nil {
			d.log.Warn("accept failed", logger.Ctx{"err": err})
			return
		}

		go d.handleConnection(uc)
	}
}

func (d *Daemon) handleConnection(uc *net.UnixConn) {
	rawConn, err := uc.SyscallConn()
	if err != nil {
		d.log.Warn("failed to obtain raw conn for peer credentials", logger.Ctx{"err": err})
		uc.Close()
		return
	}

	var cred ucred.Ucred
	var credErr error
	_ = rawConn.Control(func(fd uintptr) {
		cred, credErr = ucred.Get(int(fd))
	})
	if credErr != nil {
		d.log.Warn("failed to capture peer credentials", logger.Ctx{"err": credErr})
		uc.Close()
		return
	}

	c := conn.New(uc)
	var cs *ClientSession
	d.submit(func() {
		cs = newClientSession(c, cred, d.seats, d.log)
		d.sessions[cs] = struct{}{}
	})

	cs.log.Debug("client connected")

	for {
		if err := cs.ReadFromSocket(); err != nil {
			break
		}

		var procErr error
		d.submit(func() {
			procErr = cs.Process()
		})
		if procErr != nil {
			cs.log.Debug("connection terminated", logger.Ctx{"reason": procErr})
			break
		}
	}

	d.submit(func() {
		delete(d.sessions, cs)
		cs.Destroy()
	})
}

// forwardVTSignals routes the kernel's SIGUSR1/SIGUSR2 pattern (spec.md
// §4.5) to seat0's VTRelease/VTActivate, serialized through the same
// cmdCh every client mutation uses.
func (d *Daemon) forwardVTSignals(sigCh <-chan os.Signal) {
	for sig := range sigCh {
		s, ok := d.seats.Get("seat0")
		if !ok {
			continue
		}

		switch sig {
		case unix.SIGUSR1:
			d.submit(func() {
				if err := s.VTRelease(); err != nil {
					d.log.Warn("vt release failed", logger.Ctx{"err": err})
				}
			})
		case unix.SIGUSR2:
			d.submit(func() {
				if err := s.VTActivate(); err != nil {
					d.log.Warn("vt activate failed", logger.Ctx{"err": err})
				}
			})
		}
	}
}

// startWatchdog registers the periodic occupancy diagnostic described in
// SPEC_FULL.md's domain stack section: a standing, low-frequency log
// line, not part of the seat state machine itself.
func (d *Daemon) startWatchdog() {
	_, err := d.cron.AddFunc("@every 30s", func() {
		d.submit(func() {
			for _, s := range d.seats.All() {
				active := s.ActiveClient() != nil
				d.log.Debug("seat occupancy", logger.Ctx{
					"seat":     s.Name,
					"clients":  len(s.Clients()),
					"active":   active,
					"cur_vt":   s.CurrentVT(),
					"vt_bound": s.VTBound,
				})
			}
		})
	})
	if err != nil {
		d.log.Warn("failed to schedule watchdog", logger.Ctx{"err": err})
		return
	}
	d.cron.Start()
}
