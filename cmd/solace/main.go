// ABOUTME: Entry point for the solace CLI: sign-in, chat, and journal.
// ABOUTME: Wires config, storage, auth, inference, and autosave together.

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solace-app/solace-core/internal/auth"
	"github.com/solace-app/solace-core/internal/config"
	"github.com/solace-app/solace-core/internal/observability"
	"github.com/solace-app/solace-core/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the solace config file.
// Priority: SOLACE_CONFIG env var > XDG_CONFIG_HOME/solace/config.yaml > ~/.config/solace/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SOLACE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "solace", "config.yaml")
}

// getDataPath returns the path to the solace data directory.
// Priority: XDG_DATA_HOME/solace > ~/.local/share/solace
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "solace")
}

// credentialsPath is where the signed-in credential is persisted. It
// sits next to the config file so all solace processes share it.
func credentialsPath() string {
	return filepath.Join(filepath.Dir(getConfigPath()), "credentials.json")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: solace <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  init       Create a new config file interactively")
		fmt.Println("  login      Sign in with a one-time passcode")
		fmt.Println("  logout     Discard the stored credential")
		fmt.Println("  chat       Start an interactive conversation")
		fmt.Println("  journal    Browse branches and edit memories")
		fmt.Println("  version    Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit()
	case "login":
		err = runLogin(ctx)
	case "logout":
		err = runLogout(ctx)
	case "chat":
		err = runChat(ctx)
	case "journal":
		err = runJournal(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and installs the configured logger
// as the process default.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	slog.SetDefault(setupLogger(cfg.Logging))
	return cfg, nil
}

// newAuthManager wires the local passcode gateway and file credential
// store for a command that needs the signed-in identity.
func newAuthManager(st *store.SQLiteStore, cfg *config.Config) *auth.Manager {
	deliver := func(_ context.Context, email, code string) error {
		yellow := color.New(color.FgYellow)
		yellow.Printf("  Passcode for %s: %s\n", email, code)
		return nil
	}

	gw := auth.NewLocalGateway(st, deliver, auth.LocalGatewayConfig{
		Secret:        []byte(cfg.Auth.JWTSecret),
		CodeLength:    cfg.Auth.CodeLength,
		CodeTTL:       cfg.Auth.CodeTTL,
		CredentialTTL: cfg.Auth.CredentialTTL,
	})

	return auth.NewManager(gw, auth.NewFileCredentials(credentialsPath()))
}

// maybeMetrics builds the metrics registry and serves it when enabled.
func maybeMetrics(cfg *config.Config) *observability.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}

	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("solace", reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
			slog.Error("metrics server stopped", "addr", cfg.Metrics.Addr, "error", err)
		}
	}()

	return m
}

func runLogin(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	mgr := newAuthManager(st, cfg)
	if err := mgr.Init(ctx); err != nil {
		return fmt.Errorf("initializing auth: %w", err)
	}
	defer mgr.Close()

	green := color.New(color.FgGreen)

	if cred, ok := mgr.Current(); ok {
		fmt.Printf("Already signed in as %s (run 'solace logout' first to switch)\n", cred.Email)
		return nil
	}

	reader := bufio.NewReader(os.Stdin)
	email := prompt(reader, "Email", "")
	if err := mgr.RequestPasscode(ctx, email); err != nil {
		return fmt.Errorf("requesting passcode: %w", err)
	}

	code := prompt(reader, "Passcode", "")
	if err := mgr.VerifyPasscode(ctx, email, code); err != nil {
		return fmt.Errorf("verifying passcode: %w", err)
	}

	green.Printf("  ✓ Signed in as %s\n", email)
	return nil
}

func runLogout(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	mgr := newAuthManager(st, cfg)
	if err := mgr.Init(ctx); err != nil {
		return fmt.Errorf("initializing auth: %w", err)
	}
	defer mgr.Close()

	if !mgr.SignedIn() {
		fmt.Println("Not signed in")
		return nil
	}

	if err := mgr.SignOut(); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	fmt.Println("Signed out")
	return nil
}

// requireSignIn initializes the auth manager and returns the signed-in
// email, failing when no valid credential exists.
func requireSignIn(ctx context.Context, st *store.SQLiteStore, cfg *config.Config) (*auth.Manager, string, error) {
	mgr := newAuthManager(st, cfg)
	if err := mgr.Init(ctx); err != nil {
		return nil, "", fmt.Errorf("initializing auth: %w", err)
	}

	cred, ok := mgr.Current()
	if !ok {
		mgr.Close()
		return nil, "", fmt.Errorf("not signed in: run 'solace login' first")
	}
	return mgr, cred.Email, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("solace configuration setup")
	fmt.Println("==========================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "solace.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Gateway Configuration ---")
	inferenceURL := prompt(reader, "Inference gateway URL", "http://localhost:8787/respond")
	requestTimeout := prompt(reader, "Request timeout", "60s")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	fmt.Println("\n--- Autosave Configuration ---")
	autosaveDelay := prompt(reader, "Autosave delay", "1s")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Random JWT secret for the locally-minted credentials.
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	var cfg strings.Builder
	cfg.WriteString("# solace configuration\n")
	cfg.WriteString("# Generated by solace init\n\n")

	cfg.WriteString("gateway:\n")
	cfg.WriteString(fmt.Sprintf("  inference_url: \"%s\"\n", inferenceURL))
	cfg.WriteString(fmt.Sprintf("  request_timeout: \"%s\"\n", requestTimeout))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString("  code_ttl: \"10m\"\n")
	cfg.WriteString("  credential_ttl: \"720h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("autosave:\n")
	cfg.WriteString(fmt.Sprintf("  delay: \"%s\"\n", autosaveDelay))
	cfg.WriteString("  min_meaningful: 3\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  addr: \"localhost:9090\"\n")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nNext steps:")
	fmt.Println("  solace login    # sign in")
	fmt.Println("  solace chat     # start talking")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

// readLine reads one line of input, honoring context cancellation.
// Returns false when input is exhausted or the context is done.
func readLine(ctx context.Context, scanner *bufio.Scanner) (string, bool) {
	inputCh := make(chan string, 1)
	doneCh := make(chan struct{})

	go func() {
		if scanner.Scan() {
			inputCh <- scanner.Text()
		} else {
			close(doneCh)
		}
	}()

	select {
	case <-ctx.Done():
		return "", false
	case <-doneCh:
		return "", false
	case line := <-inputCh:
		return line, true
	}
}
