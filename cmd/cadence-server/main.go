package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kapdap/cadence/internal/api"
	"github.com/kapdap/cadence/internal/broker"
	"github.com/kapdap/cadence/internal/config"
	"github.com/kapdap/cadence/internal/logging"
	"github.com/kapdap/cadence/internal/metrics"
	"github.com/kapdap/cadence/internal/transport"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "cadence-server",
	Short: "Collaborative timer session broker",
	Long:  `Cadence - an in-memory, permissionless real-time broker for shared focus/break timer sessions.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the broker and HTTP/WebSocket server",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cadence-server v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/cadence/cadence.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	logFileFallback := false

	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
			logFileFallback = true
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")

	if logFileFallback {
		log.Warn("log file fallback active, logging to stdout only", "requestedFile", cfg.LogFile)
	}
}

func runServer() {
	cfg, validation, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	initLogging(cfg)
	for _, w := range validation.Warnings {
		log.Warn("config warning", "error", w)
	}

	log.Info("starting cadence-server",
		"version", version,
		"host", cfg.Host,
		"port", cfg.Port,
		"environment", cfg.Environment,
	)

	collector := metrics.New(prometheus.DefaultRegisterer)

	b := broker.New(nowMillis, cfg.CleanupInterval(), cfg.SessionTimeout(), collector)
	b.Start()
	defer b.Stop()

	wsServer := transport.NewServer(b, cfg.SocketTimeout())
	router := api.New(b, wsServer, cfg.WSPath, cfg.StaticDir)

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.EffectiveWSPort()))
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-sigChan:
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	log.Info("cadence-server stopped")
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
