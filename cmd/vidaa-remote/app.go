package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	protolog "github.com/enbacode/better-hisense-tv/pkg/log"
	"github.com/enbacode/better-hisense-tv/pkg/pairing"
	"github.com/enbacode/better-hisense-tv/pkg/session"
	"github.com/enbacode/better-hisense-tv/pkg/transport"
)

// operationTimeout bounds each interactive command.
const operationTimeout = 90 * time.Second

// App wires the protocol engine to the interactive command loop.
type App struct {
	config Config
	logger protolog.Logger
	rl     *readline.Instance

	certPEM []byte
	keyPEM  []byte

	session *session.Session
}

func newApp(cfg Config, logger protolog.Logger) (*App, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "vidaa> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	app := &App{config: cfg, logger: logger, rl: rl}
	if err := app.loadCertPair(); err != nil {
		rl.Close()
		return nil, err
	}
	return app, nil
}

// Close releases the session and terminal.
func (a *App) Close() {
	if a.session != nil {
		a.session.Close()
	}
	a.rl.Close()
}

func (a *App) loadCertPair() error {
	if a.config.CertFile == "" && a.config.KeyFile == "" {
		return nil
	}
	cert, err := os.ReadFile(a.config.CertFile)
	if err != nil {
		return fmt.Errorf("failed to read client certificate: %w", err)
	}
	key, err := os.ReadFile(a.config.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to read client key: %w", err)
	}
	a.certPEM, a.keyPEM = cert, key
	return nil
}

func (a *App) newTransport() *transport.MQTTSession {
	cfg := transport.DefaultConfig(a.config.Host)
	cfg.Port = a.config.Port
	cfg.ClientCertPEM = a.certPEM
	cfg.ClientKeyPEM = a.keyPEM
	cfg.Logger = a.logger
	return transport.NewMQTTSession(cfg)
}

// Run starts the interactive command loop.
func (a *App) Run() error {
	a.printHelp()

	for {
		line, err := a.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(a.rl.Stdout(), "Exiting...")
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			a.printHelp()
		case "pair":
			a.cmdPair()
		case "state":
			a.cmdState()
		case "volume":
			a.cmdVolume(args)
		case "key":
			a.cmdKey(args)
		case "sources":
			a.cmdSources()
		case "source":
			a.cmdSource(args)
		case "apps":
			a.cmdApps()
		case "launch":
			a.cmdLaunch(args)
		case "on":
			a.cmdPower(true)
		case "off":
			a.cmdPower(false)
		case "status":
			a.cmdStatus()
		case "quit", "exit", "q":
			return nil
		default:
			fmt.Fprintf(a.rl.Stdout(), "Unknown command %q. Type 'help' for commands.\n", cmd)
		}
	}
}

func (a *App) printHelp() {
	fmt.Fprint(a.rl.Stdout(), `Commands:
  pair               Pair with the TV (shows a 4-digit code on screen)
  state              Show the TV state
  volume [level]     Show or set the volume
  key <name>         Send a remote key (e.g. KEY_VOLUMEUP)
  sources            List input sources
  source <id>        Switch to an input source
  apps               List installed apps
  launch <name>      Launch an app by name
  on / off           Turn the TV on or off
  status             Show credential and token status
  help               Show this help
  quit               Exit
`)
}

// cmdPair runs the full pairing ceremony, including code retry, and persists
// the resulting credentials.
func (a *App) cmdPair() {
	out := a.rl.Stdout()

	p, err := pairing.New(pairing.Config{
		Transport:    a.newTransport(),
		Reauth:       a.config.Reauth,
		RandomAddr:   a.config.RandomMAC,
		HardwareAddr: a.config.HardwareAddr,
		Logger:       a.logger,
	})
	if err != nil {
		fmt.Fprintf(out, "Pairing setup failed: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Fprintln(out, "Connecting to the TV...")
	if err := p.Start(ctx); err != nil {
		fmt.Fprintf(out, "Pairing failed: %v\n", err)
		return
	}

	var creds session.Credentials
	for {
		a.rl.SetPrompt("Enter the four digits displayed on your TV: ")
		line, err := a.rl.Readline()
		a.rl.SetPrompt("vidaa> ")
		if err != nil {
			fmt.Fprintln(out, "Pairing aborted.")
			return
		}

		creds, err = p.SubmitCode(ctx, strings.TrimSpace(line))
		if err == nil {
			break
		}
		if errors.Is(err, pairing.ErrAuthCodeRejected) || errors.Is(err, pairing.ErrInvalidAuthCode) {
			fmt.Fprintf(out, "Code not accepted (%v), try again.\n", err)
			continue
		}
		fmt.Fprintf(out, "Pairing failed: %v\n", err)
		return
	}

	if err := a.saveCredentials(creds); err != nil {
		fmt.Fprintf(out, "Paired, but saving credentials failed: %v\n", err)
	} else {
		fmt.Fprintf(out, "Paired. Credentials saved to %s\n", a.config.CredentialsFile)
	}

	a.openSession(creds)
}

// ensureSession opens a session from the credentials file if none is live.
func (a *App) ensureSession() bool {
	if a.session != nil {
		return true
	}
	creds, err := a.loadCredentials()
	if err != nil {
		fmt.Fprintf(a.rl.Stdout(), "No usable credentials (%v). Run 'pair' first.\n", err)
		return false
	}
	a.openSession(creds)
	return a.session != nil
}

func (a *App) openSession(creds session.Credentials) {
	s, err := session.Open(session.Config{
		Transport:   a.newTransport(),
		Credentials: creds,
		Logger:      a.logger,
	})
	if err != nil {
		fmt.Fprintf(a.rl.Stdout(), "Failed to open session: %v\n", err)
		return
	}
	a.session = s
}

func (a *App) loadCredentials() (session.Credentials, error) {
	data, err := os.ReadFile(a.config.CredentialsFile)
	if err != nil {
		return session.Credentials{}, err
	}
	var creds session.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return session.Credentials{}, fmt.Errorf("corrupt credentials file: %w", err)
	}
	return creds, nil
}

func (a *App) saveCredentials(creds session.Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(a.config.CredentialsFile, data, 0600)
}

// persistIfRefreshed re-saves the credentials file after operations, so a
// transparent token refresh is not lost on exit.
func (a *App) persistIfRefreshed(before session.Credentials) {
	after := a.session.Credentials()
	if after == before {
		return
	}
	if err := a.saveCredentials(after); err != nil {
		slog.Warn("Failed to persist refreshed credentials", "error", err)
	}
}

// run wraps an operation with the session guard, timeout and credential
// persistence.
func (a *App) run(op func(ctx context.Context) error) {
	if !a.ensureSession() {
		return
	}
	before := a.session.Credentials()

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := op(ctx); err != nil {
		// A TV that is fully powered off is routine, not an error worth a
		// stack of logs.
		fmt.Fprintf(a.rl.Stdout(), "Device unreachable (%v). Assuming it is off.\n", err)
	}
	a.persistIfRefreshed(before)
}

func (a *App) cmdState() {
	a.run(func(ctx context.Context) error {
		state, err := a.session.GetState(ctx)
		if err != nil {
			return err
		}
		out := a.rl.Stdout()
		if state.Off() {
			fmt.Fprintln(out, "TV is off (standby)")
			return nil
		}
		fmt.Fprintf(out, "State: %s\n", state.StateType)
		if state.AppName != "" {
			fmt.Fprintf(out, "App: %s\n", state.AppName)
		}
		if state.DisplayName != "" {
			fmt.Fprintf(out, "Source: %s\n", state.DisplayName)
		}
		return nil
	})
}

func (a *App) cmdVolume(args []string) {
	if len(args) == 0 {
		a.run(func(ctx context.Context) error {
			vol, err := a.session.GetVolume(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.rl.Stdout(), "Volume: %d\n", vol.Value)
			return nil
		})
		return
	}

	level, err := strconv.Atoi(args[0])
	if err != nil || level < 0 || level > 100 {
		fmt.Fprintln(a.rl.Stdout(), "Usage: volume [0-100]")
		return
	}
	a.run(func(ctx context.Context) error {
		changed, err := a.session.ChangeVolume(ctx, level)
		if err != nil {
			return err
		}
		a.reportApplied(changed, fmt.Sprintf("Volume set to %d", level))
		return nil
	})
}

func (a *App) cmdKey(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(a.rl.Stdout(), "Usage: key <name> (e.g. KEY_VOLUMEUP)")
		return
	}
	key := strings.ToUpper(args[0])
	a.run(func(ctx context.Context) error {
		sent, err := a.session.SendKey(ctx, key)
		if err != nil {
			return err
		}
		a.reportApplied(sent, "Key sent")
		return nil
	})
}

func (a *App) cmdSources() {
	a.run(func(ctx context.Context) error {
		sources, err := a.session.GetSourceList(ctx)
		if err != nil {
			return err
		}
		out := a.rl.Stdout()
		for _, src := range sources {
			signal := ""
			if src.IsSignal == 1 {
				signal = " (signal)"
			}
			fmt.Fprintf(out, "  %s  %s%s\n", src.ID, src.DisplayName, signal)
		}
		return nil
	})
}

func (a *App) cmdSource(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(a.rl.Stdout(), "Usage: source <id>")
		return
	}
	a.run(func(ctx context.Context) error {
		changed, err := a.session.ChangeSource(ctx, args[0])
		if err != nil {
			return err
		}
		a.reportApplied(changed, "Source changed")
		return nil
	})
}

func (a *App) cmdApps() {
	a.run(func(ctx context.Context) error {
		apps, err := a.session.GetAppList(ctx)
		if err != nil {
			return err
		}
		out := a.rl.Stdout()
		for _, app := range apps {
			fmt.Fprintf(out, "  %s\n", app.Name)
		}
		return nil
	})
}

func (a *App) cmdLaunch(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(a.rl.Stdout(), "Usage: launch <name>")
		return
	}
	name := strings.Join(args, " ")
	a.run(func(ctx context.Context) error {
		launched, err := a.session.LaunchApp(ctx, name, nil)
		if err != nil {
			return err
		}
		a.reportApplied(launched, "App launched")
		return nil
	})
}

func (a *App) cmdPower(on bool) {
	a.run(func(ctx context.Context) error {
		var cycled bool
		var err error
		if on {
			cycled, err = a.session.TurnOn(ctx)
		} else {
			cycled, err = a.session.TurnOff(ctx)
		}
		if err != nil {
			return err
		}
		if cycled {
			fmt.Fprintln(a.rl.Stdout(), "Power cycled.")
		} else {
			fmt.Fprintln(a.rl.Stdout(), "Already in the requested state.")
		}
		return nil
	})
}

// cmdStatus shows credential identity and token lifetimes without touching
// the network.
func (a *App) cmdStatus() {
	if !a.ensureSession() {
		return
	}
	creds := a.session.Credentials()
	out := a.rl.Stdout()
	now := time.Now()

	fmt.Fprintf(out, "Client ID: %s\n", creds.ClientID)
	fmt.Fprintf(out, "Username:  %s\n", creds.Username)
	fmt.Fprintf(out, "Access token:  %s\n", describeExpiry(creds.AccessTokenExpiry(), now))
	fmt.Fprintf(out, "Refresh token: %s\n", describeExpiry(creds.RefreshTokenExpiry(), now))
}

func (a *App) reportApplied(applied bool, msg string) {
	out := a.rl.Stdout()
	if applied {
		fmt.Fprintln(out, msg)
	} else {
		fmt.Fprintln(out, "TV is off, nothing done.")
	}
}

func describeExpiry(expiry, now time.Time) string {
	if now.After(expiry) {
		return fmt.Sprintf("expired at %s", expiry.Format(time.RFC1123))
	}
	left := expiry.Sub(now).Round(time.Minute)
	return fmt.Sprintf("valid for %s (until %s)", left, expiry.Format(time.RFC1123))
}
