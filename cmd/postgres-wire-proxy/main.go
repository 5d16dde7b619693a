package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/ybrs/postgres-protocol-debug-tools/internal/api"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/config"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/health"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/logging"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/metrics"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/proxy"
)

func main() {
	defaults := config.Default()

	configPath := flag.String("config", "", "path to optional YAML configuration file")
	listen := flag.StringP("listen", "l", defaults.Listen, "listen address")
	port := flag.IntP("port", "p", defaults.Port, "listen port")
	upstreamHost := flag.String("upstream-host", defaults.UpstreamHost, "upstream PostgreSQL host")
	upstreamPort := flag.Int("upstream-port", defaults.UpstreamPort, "upstream PostgreSQL port")
	sslCert := flag.String("ssl-cert", "", "SSL certificate file (enables SSL mode)")
	sslKey := flag.String("ssl-key", "", "SSL private key file (required if ssl-cert is provided)")
	logFile := flag.String("log-file", "", "log file path (optional, logs always go to stdout)")
	logFormat := flag.String("log-format", defaults.LogFormat, "log format (full, short, bare)")
	tableMode := flag.Bool("table", defaults.Table, "render result sets as bordered tables")
	hexDump := flag.Bool("hex-dump", defaults.HexDump, "log a hex dump of every frame")
	metricsPort := flag.Int("metrics-port", defaults.MetricsPort, "metrics HTTP port (0 disables)")
	flag.Parse()

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.Load(*configPath, defaults)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}

	// Explicitly-set flags win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
		case "port":
			cfg.Port = *port
		case "upstream-host":
			cfg.UpstreamHost = *upstreamHost
		case "upstream-port":
			cfg.UpstreamPort = *upstreamPort
		case "ssl-cert":
			cfg.SSLCert = *sslCert
		case "ssl-key":
			cfg.SSLKey = *sslKey
		case "log-file":
			cfg.LogFile = *logFile
		case "log-format":
			cfg.LogFormat = *logFormat
		case "table":
			cfg.Table = *tableMode
		case "hex-dump":
			cfg.HexDump = *hexDump
		case "metrics-port":
			cfg.MetricsPort = *metricsPort
		}
	})

	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		fatal(err)
	}
	if err := logging.Setup(cfg.LogFile, format); err != nil {
		fatal(err)
	}

	m := metrics.New()

	server, err := proxy.NewServer(cfg, m)
	if err != nil {
		fatal(err)
	}
	if err := server.Listen(); err != nil {
		fatal(err)
	}

	var (
		hc        *health.Checker
		apiServer *api.Server
	)
	if cfg.MetricsPort > 0 {
		hc = health.NewChecker(cfg.UpstreamAddr(), m)
		hc.Start()
		apiServer = api.NewServer(cfg, m, hc)
		if err := apiServer.Start(cfg.MetricsPort); err != nil {
			fatal(err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Target("proxy").Infof("Received signal %s, shutting down", sig)

	if apiServer != nil {
		apiServer.Stop()
	}
	if hc != nil {
		hc.Stop()
	}
	server.Stop()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
