// ABOUTME: Entry point for the whitelist-gateway server
// ABOUTME: Serves the admin whitelist over gRPC and HTTP and manages its config

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/whitelist-gateway/internal/auth"
	"github.com/2389/whitelist-gateway/internal/config"
	"github.com/2389/whitelist-gateway/internal/gateway"
	"github.com/2389/whitelist-gateway/internal/whitelist"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _     _ _       _ _     _
 __      _| |__ (_) |_ ___| (_)___| |_
 \ \ /\ / / '_ \| | __/ _ \ | / __| __|
  \ V  V /| | | | | ||  __/ | \__ \ |_
   \_/\_/ |_| |_|_|\__\___|_|_|___/\__|
`

// getConfigPath returns the path to the gateway config file.
// Priority: WHITELIST_CONFIG env var > XDG_CONFIG_HOME/whitelist/gateway.yaml > ~/.config/whitelist/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("WHITELIST_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "whitelist", "gateway.yaml")
}

// getDataPath returns the path to the whitelist data directory.
// Priority: XDG_DATA_HOME/whitelist > ~/.local/share/whitelist
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "whitelist")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "whitelist-gateway",
		Short: "Admin-gated message proxy over gRPC and HTTP",
		Long: banner + `
Environment:
  WHITELIST_CONFIG    Config file (default: $XDG_CONFIG_HOME/whitelist/gateway.yaml)
  WHITELIST_DB_PATH   Overrides database.path`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the gateway server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create a new config file interactively",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := runInit(cmd.InOrStdin(), cmd.OutOrStdout())
				return err
			},
		},
		newBootstrapCmd(),
		newTokenCmd(),
		newProbeCmd("health", "/health", "Check gateway health"),
		newProbeCmd("ready", "/health/ready", "Check whether the whitelist is instantiated"),
	)
	return root
}

func newBootstrapCmd() *cobra.Command {
	var (
		admins []string
		frozen bool
	)
	cmd := &cobra.Command{
		Use:   "bootstrap --admins a,b [--frozen]",
		Short: "Instantiate the whitelist and issue a token for the first admin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			admins = splitList(strings.Join(admins, ","))
			if len(admins) == 0 {
				return fmt.Errorf("--admins flag is required")
			}
			return runBootstrap(cmd.Context(), admins, !frozen)
		},
	}
	cmd.Flags().StringSliceVar(&admins, "admins", nil, "initial admin principals")
	cmd.Flags().BoolVar(&frozen, "frozen", false, "instantiate with the admin set frozen")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		sender string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token --sender NAME [--ttl 720h]",
		Short: "Issue a JWT for a sender",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sender == "" {
				return fmt.Errorf("--sender flag is required")
			}
			return runToken(cmd.OutOrStdout(), sender, ttl)
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "principal the token identifies")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func newProbeCmd(name, path, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd.Context(), path)
		},
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Store:     %s\n", cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Outbox:    %s\n", cfg.Outbox.Driver)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	if cfg.Auth.SenderHeader != "" {
		green.Print("    ▶ ")
		fmt.Printf("Identity:  ")
		yellow.Printf("trusting %s header\n", cfg.Auth.SenderHeader)
	}

	fmt.Println()

	logger.Info("starting whitelist-gateway",
		"config", configPath,
		"version", version,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runProbe(ctx context.Context, path string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))
	return nil
}

// generateSecret returns a random base64 secret long enough for the JWT verifier.
func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

// runBootstrap performs first-time setup:
// 1. Creates a config file with a random JWT secret (if none exists)
// 2. Instantiates the whitelist in the configured store
// 3. Issues a JWT for the first admin and saves it next to the config
func runBootstrap(ctx context.Context, admins []string, mutable bool) error {
	configPath := getConfigPath()
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		if err := saveConfig(configPath, defaultConfig(secret)); err != nil {
			return err
		}
		green.Printf("  ✓ Created config: %s\n", configPath)
	} else {
		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s (required for bootstrap)", configPath)
	}

	s, err := gateway.OpenStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	registry := whitelist.NewRegistry(s)
	if _, err := registry.Instantiate(ctx, "bootstrap", admins, mutable); err != nil {
		if errors.Is(err, whitelist.ErrAlreadyInstantiated) {
			return fmt.Errorf("bootstrap already complete: whitelist is instantiated")
		}
		return fmt.Errorf("instantiating whitelist: %w", err)
	}
	list, err := registry.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("listing admins: %w", err)
	}
	green.Printf("  ✓ Instantiated whitelist (%s)\n", cfg.Database.Driver)

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	tokenTTL := 30 * 24 * time.Hour
	token, err := verifier.Generate(list.Admins[0], tokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	green.Printf("  ✓ Saved token for %s: %s\n", list.Admins[0], tokenPath)

	fmt.Println()
	cyan.Println("  Whitelist")
	cyan.Println("  ---------")
	fmt.Printf("  Admins:   %s\n", strings.Join(list.Admins, ", "))
	fmt.Printf("  Mutable:  %t\n", list.Mutable)
	fmt.Printf("  Token:    expires %s\n", time.Now().Add(tokenTTL).UTC().Format("Jan 02, 2006"))
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    whitelist-gateway serve    # start the gateway")
	fmt.Println("    whitelist-admin admins     # list admins")
	fmt.Println()
	return nil
}

// defaultConfig is what bootstrap writes when no config exists: local
// listeners, SQLite under the data dir and a fresh secret.
func defaultConfig(secret string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{GRPCAddr: "localhost:50051", HTTPAddr: "localhost:8080"},
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(getDataPath(), "gateway.db"),
		},
		Auth:    config.AuthConfig{JWTSecret: secret},
		Logging: config.LoggingConfig{Level: "info", Format: "text"},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// saveConfig writes cfg and makes sure the SQLite directory exists.
func saveConfig(path string, cfg *config.Config) error {
	if err := config.Write(path, cfg); err != nil {
		return err
	}
	if cfg.Database.Driver == config.DriverSQLite && cfg.Database.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}
	return nil
}

// runToken issues a JWT for an arbitrary sender using the configured secret.
func runToken(out io.Writer, sender string, ttl time.Duration) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(sender, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

// wizard asks questions on out and reads answers from in. EOF takes the
// default for every remaining question.
type wizard struct {
	in  *bufio.Reader
	out io.Writer
}

func (w wizard) section(title string) {
	fmt.Fprintf(w.out, "\n--- %s ---\n", title)
}

func (w wizard) ask(question, def string) string {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", question)
	}
	line, err := w.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(w.out)
		return def
	}
	if line = strings.TrimSpace(line); line != "" {
		return line
	}
	return def
}

func (w wizard) confirm(question string, def bool) bool {
	d := "no"
	if def {
		d = "yes"
	}
	switch strings.ToLower(w.ask(question, d)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// runInit builds a config interactively and returns where it was written,
// or "" when the user declined to overwrite an existing file.
func runInit(in io.Reader, out io.Writer) (string, error) {
	w := wizard{in: bufio.NewReader(in), out: out}
	fmt.Fprintln(out, "whitelist-gateway configuration setup")

	path := w.ask("Config file path", getConfigPath())
	if _, err := os.Stat(path); err == nil && !w.confirm("File exists. Overwrite?", false) {
		fmt.Fprintln(out, "Aborted.")
		return "", nil
	}

	secret, err := generateSecret()
	if err != nil {
		return "", err
	}
	cfg := defaultConfig(secret)

	w.section("Server")
	cfg.Server.GRPCAddr = w.ask("gRPC address", cfg.Server.GRPCAddr)
	cfg.Server.HTTPAddr = w.ask("HTTP address", cfg.Server.HTTPAddr)

	w.section("Store")
	cfg.Database.Driver = w.ask("Store driver (sqlite/redis/memory)", config.DriverSQLite)
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		cfg.Database.Path = w.ask("SQLite database path", cfg.Database.Path)
	case config.DriverRedis:
		cfg.Database.Path = ""
		cfg.Database.RedisURL = w.ask("Redis URL", "redis://localhost:6379/0")
	default:
		cfg.Database.Path = ""
	}

	w.section("Whitelist")
	cfg.Contract.Admins = splitList(w.ask("Initial admins (comma separated, empty to instantiate later)", ""))
	mutable := w.confirm("Mutable?", true)
	cfg.Contract.Mutable = &mutable

	w.section("Outbox")
	cfg.Outbox.Driver = w.ask("Outbox driver (log/redis)", config.OutboxLog)

	w.section("Tailscale")
	if w.confirm("Enable Tailscale?", false) {
		cfg.Tailscale = config.TailscaleConfig{
			Enabled:   true,
			Hostname:  w.ask("Tailscale hostname", "whitelist-gateway"),
			AuthKey:   w.ask("Tailscale auth key (empty to use TS_AUTHKEY)", ""),
			Ephemeral: w.confirm("Ephemeral node?", false),
		}
	}

	w.section("Logging")
	cfg.Logging.Level = w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	cfg.Logging.Format = w.ask("Log format (text/json)", cfg.Logging.Format)

	if err := saveConfig(path, cfg); err != nil {
		return "", err
	}
	fmt.Fprintf(out, "\nConfig written to %s\nStart the server with:\n  whitelist-gateway serve\n", path)
	return path, nil
}
