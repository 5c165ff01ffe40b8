// main.go - Entry point for the stasis idle daemon
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/saltnpepper97/stasis/internal/actionexec"
	"github.com/saltnpepper97/stasis/internal/config"
	"github.com/saltnpepper97/stasis/internal/controlsock"
	"github.com/saltnpepper97/stasis/internal/logging"
	"github.com/saltnpepper97/stasis/internal/sources/appinhibit"
	"github.com/saltnpepper97/stasis/internal/sources/compositor"
	"github.com/saltnpepper97/stasis/internal/sources/input"
	"github.com/saltnpepper97/stasis/internal/sources/media"
	"github.com/saltnpepper97/stasis/internal/sources/power"
	"github.com/saltnpepper97/stasis/internal/sources/suspend"
	"github.com/saltnpepper97/stasis/internal/timer"
	"github.com/saltnpepper97/stasis/pkg/daemonize"
)

const checkIdleInterval = 1 * time.Second

// Daemon wires the Timer to every signal source and the control
// endpoint, and owns their lifetimes.
type Daemon struct {
	configPath string
	verbose    bool

	tm   *timer.Timer
	exec *actionexec.Executor

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	compositorSrc *compositor.Source
	suspendSrc    *suspend.Source
	mediaSrc      *media.Source
	powerSrc      *power.Source
	appSrc        *appinhibit.Source

	ctl *controlsock.Server

	logger *logging.Logger
}

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		runDaemon  = flag.Bool("daemon", false, "daemonize (re-exec detached, for internal use)")
		foreground = flag.Bool("foreground", false, "run attached to the terminal instead of daemonizing")
		stop       = flag.Bool("stop", false, "stop a running daemon")
		verbose    = flag.Bool("verbose", false, "echo log output to stderr")
	)
	flag.Parse()

	if os.Getenv("WAYLAND_DISPLAY") == "" {
		fmt.Fprintln(os.Stderr, "stasis: WAYLAND_DISPLAY is not set; stasisd requires a running Wayland session")
		os.Exit(1)
	}

	if *stop {
		d := daemonize.NewDaemon("stasisd")
		d.ResolvePidFile()
		if err := d.Stop(); err != nil {
			log.Fatalf("stasis: stop: %v", err)
		}
		fmt.Println("stasis: daemon stopped")
		return
	}

	resolvedConfig := *configPath
	if resolvedConfig == "" {
		if p, err := config.DiscoverPath("stasis", "conf"); err == nil {
			resolvedConfig = p
		}
	}

	if !*foreground && !*runDaemon {
		d := daemonize.NewDaemon("stasisd")
		if err := d.Daemonize(); err != nil {
			log.Fatalf("stasis: daemonize: %v", err)
		}
		return
	}

	logger, err := logging.Open(*verbose)
	if err != nil {
		log.Fatalf("stasis: opening log: %v", err)
	}
	defer logger.Close()

	d, err := newDaemon(resolvedConfig, *verbose, logger)
	if err != nil {
		log.Fatalf("stasis: %v", err)
	}

	d.run()
}

func newDaemon(configPath string, verbose bool, logger *logging.Logger) (*Daemon, error) {
	cfg := timer.DefaultConfig()
	if configPath != "" {
		if loaded, err := config.Load(configPath); err == nil {
			cfg = loaded
		} else {
			log.Printf("stasis: warning: %v, using defaults", err)
		}
	}

	actionLogPath := filepath.Join(filepath.Dir(logger.Path()), "actions.log")
	exec := actionexec.New(actionLogPath)

	isLaptop := power.IsLaptop()
	onAC := true

	ctx, cancel := context.WithCancel(context.Background())

	tm := timer.New(cfg, isLaptop, onAC, exec)

	d := &Daemon{
		configPath: configPath,
		verbose:    verbose,
		tm:         tm,
		exec:       exec,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}

	d.powerSrc = power.New(tm)
	if onAC := d.powerSrc.OnAC(); onAC != tm.Snapshot().OnAC {
		tm.UpdatePowerSource(onAC)
	}
	tm.TriggerInstantActions()

	d.appSrc = appinhibit.New(tm, cfg, verbose)

	if compSrc, err := compositor.Connect(tm); err != nil {
		log.Printf("stasis: compositor idle-notify unavailable, falling back to wall-clock dispatch: %v", err)
	} else {
		d.compositorSrc = compSrc
	}

	if susSrc, err := suspend.Connect(tm, exec); err != nil {
		log.Printf("stasis: suspend listener unavailable: %v", err)
	} else {
		d.suspendSrc = susSrc
	}

	if cfg.MonitorMedia {
		if medSrc, err := media.Connect(tm, verbose); err != nil {
			log.Printf("stasis: media source unavailable: %v", err)
		} else {
			d.mediaSrc = medSrc
		}
	}

	sockPath := controlSocketPath()
	ctl, err := controlsock.Bind(sockPath, tm, d.reloadConfig, d.requestShutdown)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("binding control socket: %w", err)
	}
	d.ctl = ctl

	return d, nil
}

// controlSocketPath places the control socket under
// $XDG_RUNTIME_DIR/stasis.sock, falling back to /tmp for environments
// without a runtime directory.
func controlSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, "stasis.sock")
}

func (d *Daemon) run() {
	log.Println("stasis: daemon starting")

	d.spawn("input", func(ctx context.Context) error {
		return input.New(d.tm, d.verbose).Run(ctx)
	})

	if d.compositorSrc != nil {
		d.spawn("compositor", d.compositorSrc.Run)
	}
	if d.suspendSrc != nil {
		d.spawn("suspend", d.suspendSrc.Run)
	}
	if d.mediaSrc != nil {
		d.spawn("media", d.mediaSrc.Run)
	}
	d.spawn("power", d.powerSrc.Run)
	d.spawn("appinhibit", d.appSrc.Run)

	go d.ctl.Serve()

	if !d.tm.IsCompositorManaged() {
		d.spawn("wall-clock idle check", d.wallClockIdleCheck)
	}
	d.spawn("log rotation check", d.logRotationCheck)

	d.waitForSignal()
}

func (d *Daemon) spawn(name string, fn func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := fn(d.ctx); err != nil {
			log.Printf("stasis: %s source exited: %v", name, err)
		}
	}()
}

// wallClockIdleCheck drives Timer.CheckIdle on a 1s tick whenever the
// compositor idle-notify path is unavailable.
func (d *Daemon) wallClockIdleCheck(ctx context.Context) error {
	ticker := time.NewTicker(checkIdleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.tm.CheckIdle()
		}
	}
}

func (d *Daemon) logRotationCheck(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.logger.CheckRotate(); err != nil {
				log.Printf("stasis: log rotation check failed: %v", err)
			}
		}
	}
}

func (d *Daemon) reloadConfig() error {
	if d.configPath == "" {
		return fmt.Errorf("no config file was loaded at startup")
	}
	cfg, err := config.Load(d.configPath)
	if err != nil {
		return err
	}
	d.tm.UpdateFromConfig(cfg)
	d.appSrc.UpdateConfig(cfg)
	return nil
}

func (d *Daemon) requestShutdown() {
	d.shutdown()
	os.Exit(0)
}

func (d *Daemon) shutdown() {
	log.Println("stasis: shutting down")
	d.cancel()
	if d.compositorSrc != nil {
		d.compositorSrc.Close()
	}
	if d.suspendSrc != nil {
		d.suspendSrc.Close()
	}
	if d.mediaSrc != nil {
		d.mediaSrc.Close()
	}
	d.ctl.Close()
	d.tm.Shutdown()
	d.wg.Wait()
}

func (d *Daemon) waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range c {
		switch sig {
		case os.Interrupt, syscall.SIGTERM:
			d.shutdown()
			return
		case syscall.SIGHUP:
			log.Println("stasis: SIGHUP received, reloading config")
			if err := d.reloadConfig(); err != nil {
				log.Printf("stasis: config reload failed: %v", err)
			}
		}
	}
}
