// main.go
// Purpose: Application entry point. Loads configuration, connects to the
// simulation server and starts the network and timeout threads. Handles
// shutdown on interrupt (Ctrl+C).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"elevdispatch/common"
	"elevdispatch/elevfsm"
	"elevdispatch/elevjournal"
	"elevdispatch/elevnetwork"

	"github.com/google/uuid"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "elevdispatch:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML config file")
	host := flag.String("host", "", "simulation server host")
	port := flag.Int("port", 0, "simulation server port")
	transport := flag.String("transport", "", "tcp or quic")
	journal := flag.String("journal", "", "SQLite journal file")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	flag.Parse()

	cfg := common.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = common.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "transport":
			cfg.Transport = *transport
		case "journal":
			cfg.Journal = *journal
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCloser, err := common.InitLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	sessionID := uuid.NewString()
	log := slog.Default().With("session", sessionID)
	log.Info("starting", "addr", cfg.Addr(), "transport", cfg.Transport)

	// ctrl + c handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("interrupt, shutting down")
		cancel()
	}()

	sess, err := elevnetwork.Dial(ctx, newDialer(cfg), elevnetwork.Options{
		SoftTimeout:       cfg.SoftTimeout.Std(),
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay.Std(),
		Logger:            log,
	})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Addr(), err)
	}
	defer sess.Close()

	var rec elevfsm.Recorder
	if cfg.Journal != "" {
		store, err := elevjournal.New(cfg.Journal, sessionID)
		if err != nil {
			return err
		}
		defer store.Close()
		rec = store
		log.Info("journal open", "path", cfg.Journal)
	}

	dispatcher := elevfsm.NewDispatcher(sess, rec, log)

	timeoutCh := make(chan timeoutNotice, 1)
	sess.OnTimeout(notifyTimeouts(timeoutCh))

	go timeoutThread(ctx, log, dispatcher.Actions, timeoutCh)
	err = networkThread(ctx, log, sess, dispatcher)
	cancel()
	if err != nil {
		log.Error("dispatch loop stopped", "err", err)
		return err
	}
	log.Info("shut down cleanly")
	return nil
}

func newDialer(cfg common.Config) elevnetwork.Dialer {
	if cfg.Transport == common.TransportQUIC {
		return elevnetwork.QUICDialer{Addr: cfg.Addr(), Timeout: cfg.DialTimeout.Std()}
	}
	return elevnetwork.TCPDialer{Addr: cfg.Addr(), Timeout: cfg.DialTimeout.Std()}
}
