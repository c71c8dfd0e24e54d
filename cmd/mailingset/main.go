// Command mailingset runs the mailing-set SMTP server: it loads the
// list universe once at startup (spec §3 lifecycle) and serves the
// receive-side state machine of spec §4.6 until terminated.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mailingset/mailingset/config"
	"github.com/mailingset/mailingset/logger"
	"github.com/mailingset/mailingset/relay"
	"github.com/mailingset/mailingset/resolver"
	"github.com/mailingset/mailingset/smtpd"
	"github.com/mailingset/mailingset/universe"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	configPath := flag.String("config", "/etc/mailingset/mailingset.toml", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mailingset: %v\n", err)
		os.Exit(1)
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mailingset: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logger.Info("mailingset starting", "version", version, "commit", commit)

	u, err := universe.New(
		config.FileListProvider{Dir: cfg.Data.ListsDir},
		config.FileSymbolProvider{Path: cfg.Data.SymbolsFile},
	)
	if err != nil {
		logger.Error("failed to build list universe", "error", err)
		os.Exit(1)
	}
	logger.Info("list universe loaded", "lists_dir", cfg.Data.ListsDir)

	r := resolver.New(u)

	dispatch := relay.NewSMTPDispatcher(relay.Config{
		Server:         cfg.Outgoing.Server,
		Port:           cfg.Outgoing.Port,
		EnvelopeSender: cfg.Outgoing.EnvelopeSender,
		ArchiveAddr:    cfg.Outgoing.ArchiveAddr,
		Concurrency:    cfg.Outgoing.Concurrency,
	}, relay.NewSMTPSender())

	acceptFrom, err := config.ParseAcceptFrom(cfg.Incoming.AcceptFrom)
	if err != nil {
		logger.Error("invalid incoming.accept_from", "error", err)
		os.Exit(1)
	}

	idleTimeout, err := cfg.Timeouts.GetIdleTimeout()
	if err != nil {
		logger.Error("invalid timeouts.idle_timeout", "error", err)
		os.Exit(1)
	}

	backend := smtpd.NewBackend(smtpd.Config{
		IncomingDomain: cfg.Incoming.Domain,
		AcceptFrom:     acceptFrom,
		MaxMessageSize: cfg.Timeouts.MaxMessageSize,
		IdleTimeout:    idleTimeout,
	}, u, r, dispatch)

	addr := net.JoinHostPort("", fmt.Sprintf("%d", cfg.Incoming.Port))
	server := smtpd.NewServer(addr, cfg.Incoming.Domain, backend)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("smtpd listening", "addr", addr, "domain", cfg.Incoming.Domain)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("smtpd server exited", "error", err)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		if err := server.Close(); err != nil {
			logger.Error("error closing smtpd server", "error", err)
		}
	}
}

func serveMetrics(addr string) {
	if addr == "" {
		addr = ":9110"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server exited", "error", err)
	}
}
