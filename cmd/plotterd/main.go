// Command plotterd is the pen-plotter control daemon: it owns the one
// serial link to the controller, compiles and runs G-code jobs, and
// exposes both over HTTP and WebSocket.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
	"github.com/sirupsen/logrus"

	"plotterd/config"
	"plotterd/eventbus"
	"plotterd/httpapi"
	"plotterd/jobmanager"
	"plotterd/transport"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file (optional)")
		listenAddr = flag.String("listen", ":8080", "HTTP listen address")
	)
	flag.Parse()

	log := logrus.NewEntry(logrus.StandardLogger())
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load config")
		}
		cfg = loaded
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl, err := buildTransport(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize transport")
	}

	bus := eventbus.New(time.Duration(cfg.Bus.HeartbeatIntervalMs)*time.Millisecond, log)
	jobs := jobmanager.New(ctrl, bus, time.Duration(cfg.JobManager.ProgressUpdateIntervalMs)*time.Millisecond, log)
	go jobs.Watch(ctx)
	go pollPosition(ctx, ctrl, jobs)
	go broadcastMachineStatus(ctx, ctrl, bus)

	server := httpapi.New(jobs, bus, ctrl, log)

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: server,
	}

	go func() {
		log.WithField("addr", *listenAddr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	waitForShutdown(log)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("error during http shutdown")
	}
	cancel()
	if err := ctrl.Close(); err != nil {
		log.WithError(err).Warn("error closing transport")
	}
}

// buildTransport picks SimTransport or SerialTransport per
// transport.devMode; an empty serial path also falls back to simulation so
// the daemon can run on a machine with no plotter attached.
func buildTransport(ctx context.Context, cfg config.Config, log *logrus.Entry) (transport.Transport, error) {
	if cfg.Transport.DevMode || cfg.Transport.SerialPath == "" {
		return transport.NewSimTransport(log), nil
	}

	return transport.Open(ctx, transport.SerialConfig{
		Path:           cfg.Transport.SerialPath,
		BaudRate:       cfg.Transport.BaudRate,
		CommandTimeout: time.Duration(cfg.Transport.CommandTimeoutMs) * time.Millisecond,
	}, log)
}

// pollPosition refreshes the tracked position twice a second while no job
// is active. During a run the poll is redundant: responses to the job's own
// commands carry position, so polling would only contend for the command
// gate.
func pollPosition(ctx context.Context, ctrl transport.Transport, jobs *jobmanager.Manager) {
	ticker := channerics.NewTicker(ctx.Done(), 500*time.Millisecond)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticker:
			if !ok {
				return
			}
			if jobs.ActiveJobID() != "" {
				continue
			}
			if _, err := ctrl.GetPosition(ctx); err != nil {
				logrus.WithError(err).Debug("idle position poll failed")
			}
		}
	}
}

// broadcastMachineStatus pushes a machine:status event to every connected
// client on each ready/error/close transition observed from the transport,
// so subscribers don't have to poll GET /machine/status.
func broadcastMachineStatus(ctx context.Context, ctrl transport.Transport, bus *eventbus.Bus) {
	ready, cancelReady := ctrl.SubscribeReady()
	errs, cancelErrs := ctrl.SubscribeErrors()
	closed, cancelClosed := ctrl.SubscribeClosed()
	defer cancelReady()
	defer cancelErrs()
	defer cancelClosed()

	// The transport's boot-time ready fired before these subscriptions
	// existed; push the current state once so the first transition isn't
	// lost.
	bus.Broadcast(eventbus.EventMachineStatus, ctrl.State())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ready:
			bus.Broadcast(eventbus.EventMachineStatus, ctrl.State())
		case <-errs:
			bus.Broadcast(eventbus.EventMachineStatus, ctrl.State())
		case <-closed:
			bus.Broadcast(eventbus.EventMachineStatus, ctrl.State())
		}
	}
}

func waitForShutdown(log *logrus.Entry) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	log.WithField("signal", s.String()).Info("shutting down")
}
