// Command vidaa-remote is an interactive remote control for VIDAA TVs.
//
// It demonstrates the full client surface:
//   - One-time pairing with the 4-digit on-screen code
//   - Credential persistence and transparent token refresh
//   - State, volume, source and app queries
//   - Key emulation, source switching, volume and app control
//
// Usage:
//
//	vidaa-remote -host 192.168.1.50 [flags]
//
// Flags:
//
//	-host string          TV address (required unless set in the config file)
//	-port int             Control port (default 36669)
//	-config string        YAML configuration file path
//	-credentials string   Credentials file path (default "credentials.json")
//	-cert string          Client certificate PEM path
//	-key string           Client key PEM path
//	-mac string           Hardware address to derive the identity from
//	-random-mac           Derive the identity from a random hardware address
//	-reauth               Use the re-authentication username variant
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write a CBOR protocol event trace to this file
//
// Examples:
//
//	# First run: pair with the TV, then control it
//	vidaa-remote -host 192.168.1.50
//	vidaa> pair
//
//	# Reuse an existing pairing with a protocol trace
//	vidaa-remote -host 192.168.1.50 -protocol-log session.vlog
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	protolog "github.com/enbacode/better-hisense-tv/pkg/log"
)

// Config holds the CLI configuration, layered as defaults, then the YAML
// config file, then explicitly set flags.
type Config struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	CredentialsFile string `yaml:"credentials_file"`
	CertFile        string `yaml:"cert_file"`
	KeyFile         string `yaml:"key_file"`
	HardwareAddr    string `yaml:"hardware_addr"`
	RandomMAC       bool   `yaml:"random_mac"`
	Reauth          bool   `yaml:"reauth"`
	LogLevel        string `yaml:"log_level"`
	ProtocolLog     string `yaml:"protocol_log"`
}

var config = Config{
	Port:            36669,
	CredentialsFile: "credentials.json",
	RandomMAC:       true,
	LogLevel:        "info",
}

var configFile string

func init() {
	flag.StringVar(&config.Host, "host", "", "TV address")
	flag.IntVar(&config.Port, "port", config.Port, "Control port")
	flag.StringVar(&configFile, "config", "", "YAML configuration file path")
	flag.StringVar(&config.CredentialsFile, "credentials", config.CredentialsFile, "Credentials file path")
	flag.StringVar(&config.CertFile, "cert", "", "Client certificate PEM path")
	flag.StringVar(&config.KeyFile, "key", "", "Client key PEM path")
	flag.StringVar(&config.HardwareAddr, "mac", "", "Hardware address to derive the identity from")
	flag.BoolVar(&config.RandomMAC, "random-mac", config.RandomMAC, "Derive the identity from a random hardware address")
	flag.BoolVar(&config.Reauth, "reauth", false, "Use the re-authentication username variant")
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Write a CBOR protocol event trace to this file")
}

func main() {
	flag.Parse()

	if configFile != "" {
		if err := loadConfigFile(configFile, &config); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config file: %v\n", err)
			os.Exit(1)
		}
		// Explicit flags win over the config file.
		flag.Parse()
	}

	setupLogging(config.LogLevel)

	if config.Host == "" {
		fmt.Fprintln(os.Stderr, "A TV address is required (-host or the config file).")
		flag.Usage()
		os.Exit(1)
	}

	logger, closeLogger, err := buildProtocolLogger(config)
	if err != nil {
		slog.Error("Failed to set up protocol logging", "error", err)
		os.Exit(1)
	}
	defer closeLogger()

	app, err := newApp(config, logger)
	if err != nil {
		slog.Error("Startup failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(); err != nil {
		slog.Error("Exited with error", "error", err)
		os.Exit(1)
	}
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// buildProtocolLogger assembles the protocol event sink: an slog adapter at
// debug level, plus a CBOR file trace when configured.
func buildProtocolLogger(cfg Config) (protolog.Logger, func(), error) {
	slogAdapter := protolog.NewSlogAdapter(slog.Default())
	if cfg.ProtocolLog == "" {
		return slogAdapter, func() {}, nil
	}

	fileLogger, err := protolog.NewFileLogger(cfg.ProtocolLog)
	if err != nil {
		return nil, nil, err
	}
	return protolog.NewMultiLogger(slogAdapter, fileLogger), func() { _ = fileLogger.Close() }, nil
}
