// Command clawlink-probe is an interactive gateway client.
//
// It maintains an authenticated WebSocket session to an OpenClaw gateway,
// pairs a device identity on first contact, and exposes an interactive
// prompt for sending requests and watching events. Useful for exercising
// a gateway by hand and for capturing protocol logs.
//
// Usage:
//
//	clawlink-probe [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-url string        Gateway URL (ws:// or wss://), overrides config
//	-token string      Account bearer token, overrides config
//	-client-id string  Client identifier, overrides config
//	-identity string   Device identity file path
//	-log string        Protocol log file path (.clog)
//	-verbose           Mirror protocol events to stderr
//	-connect           Connect immediately instead of waiting for 'connect'
//
// Examples:
//
//	# Connect to a local gateway with an account token
//	clawlink-probe -url ws://127.0.0.1:8089/ws -token SECRET -client-id probe-1
//
//	# Use a config file and capture the protocol log
//	clawlink-probe -config probe.yaml -log session.clog
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/castle-chat/clawlink/cmd/clawlink-probe/interactive"
	"github.com/castle-chat/clawlink/pkg/config"
	"github.com/castle-chat/clawlink/pkg/gateway"
	"github.com/castle-chat/clawlink/pkg/identity"
	"github.com/castle-chat/clawlink/pkg/log"
	"github.com/castle-chat/clawlink/pkg/transport"
)

var flags struct {
	ConfigFile   string
	URL          string
	Token        string
	ClientID     string
	IdentityPath string
	LogPath      string
	Verbose      bool
	Connect      bool
}

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.URL, "url", "", "Gateway URL (ws:// or wss://), overrides config")
	flag.StringVar(&flags.Token, "token", "", "Account bearer token, overrides config")
	flag.StringVar(&flags.ClientID, "client-id", "", "Client identifier, overrides config")
	flag.StringVar(&flags.IdentityPath, "identity", "", "Device identity file path")
	flag.StringVar(&flags.LogPath, "log", "", "Protocol log file path (.clog)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Mirror protocol events to stderr")
	flag.BoolVar(&flags.Connect, "connect", false, "Connect immediately instead of waiting for 'connect'")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg)

	if cfg.ClientID == "" {
		cfg.ClientID = defaultClientID()
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	identityPath := cfg.IdentityPath
	if identityPath == "" {
		identityPath = defaultIdentityPath()
	}
	ident := identity.NewManager(identityPath)

	logger, closeLogs, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeLogs()

	client, err := gateway.New(gateway.Config{
		URL:              cfg.GatewayURL,
		Token:            cfg.Token,
		ClientID:         cfg.ClientID,
		ClientMode:       cfg.ClientMode,
		DisplayName:      "clawlink-probe",
		Role:             cfg.Role,
		Scopes:           cfg.Scopes,
		Identity:         ident,
		HandshakeTimeout: cfg.HandshakeTimeout,
		RequestTimeout:   cfg.RequestTimeout,
		ReconnectInitial: cfg.ReconnectInitial,
		ReconnectMax:     cfg.ReconnectMax,
		MaxMessageSize:   cfg.MaxMessageSize,
		KeepAlive:        transport.DefaultKeepAliveConfig(),
		Logger:           logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Stop()

	probe, err := interactive.New(client, ident)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Fprintf(probe.Stdout(), "Gateway: %s\n", cfg.GatewayURL)
	if flags.Connect {
		client.Start()
	}

	probe.Run(ctx, cancel)
}

func applyFlags(cfg *config.Config) {
	if flags.URL != "" {
		cfg.GatewayURL = flags.URL
	}
	if flags.Token != "" {
		cfg.Token = flags.Token
	}
	if flags.ClientID != "" {
		cfg.ClientID = flags.ClientID
	}
	if flags.IdentityPath != "" {
		cfg.IdentityPath = flags.IdentityPath
	}
	if flags.LogPath != "" {
		cfg.ProtocolLogPath = flags.LogPath
	}
}

// buildLogger assembles the protocol log sinks: a binary file logger when
// a path is configured, plus a stderr mirror in verbose mode.
func buildLogger(cfg config.Config) (log.Logger, func(), error) {
	var sinks []log.Logger
	var fileLogger *log.FileLogger

	if cfg.ProtocolLogPath != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLogPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open protocol log: %w", err)
		}
		fileLogger = fl
		sinks = append(sinks, fl)
	}
	if flags.Verbose {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		sinks = append(sinks, log.NewSlogAdapter(slog.New(handler)))
	}

	closeLogs := func() {
		if fileLogger != nil {
			fileLogger.Close()
		}
	}

	switch len(sinks) {
	case 0:
		return log.NoopLogger{}, closeLogs, nil
	case 1:
		return sinks[0], closeLogs, nil
	default:
		return log.NewMultiLogger(sinks...), closeLogs, nil
	}
}

func defaultIdentityPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "clawlink-identity.json"
	}
	return filepath.Join(home, ".clawlink", "identity.json")
}

func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil {
		return "clawlink-probe"
	}
	return "probe-" + host
}
