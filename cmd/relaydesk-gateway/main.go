// ABOUTME: Entry point for the relaydesk gateway
// ABOUTME: Runs the relay server and tenant management subcommands

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/relaydesk/relaydesk/internal/api"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/gateway"
	"github.com/relaydesk/relaydesk/internal/protocol"
	"github.com/relaydesk/relaydesk/internal/relay"
	"github.com/relaydesk/relaydesk/internal/status"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/tenant"
	"github.com/relaydesk/relaydesk/internal/topic"
	"github.com/relaydesk/relaydesk/internal/transient"
	"github.com/relaydesk/relaydesk/internal/vault"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _                 _           _
  _ __ ___| | __ _ _   _  __| | ___  ___| | __
 | '__/ _ \ |/ _' | | | |/ _' |/ _ \/ __| |/ /
 | | |  __/ | (_| | |_| | (_| |  __/\__ \   <
 |_|  \___|_|\__,_|\__, |\__,_|\___||___/_|\_\
                   |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: RELAYDESK_CONFIG env var > XDG_CONFIG_HOME/relaydesk/gateway.yaml > ~/.config/relaydesk/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("RELAYDESK_CONFIG"); envPath != "" {
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

	return filepath.Join(configDir, "relaydesk", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: relaydesk-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                        Start the gateway")
		fmt.Println("  add-tenant --token TOKEN     Register a new tenant bot")
		fmt.Println("  health                       Check gateway health")
		fmt.Println("  tenants                      List active tenants")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "add-tenant":
		err = runAddTenant(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "tenants":
		err = runTenants(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
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
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	if cfg.Redis.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Redis:    %s\n", cfg.Redis.Addr)
	}
	fmt.Println()

	logger.Info("starting relaydesk-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	var ts transient.Store
	if cfg.Redis.Enabled {
		ts, err = transient.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
	} else {
		ts = transient.NewMemoryStore()
	}
	defer ts.Close()

	operator := protocol.NewHTTPClient(cfg.Operator.Token)
	defer operator.Close()

	identity, err := operator.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("validating operator credential: %w", err)
	}
	logger.Info("operator connected", "bot_username", identity.Username)

	pollSecs := int(cfg.Poll.Timeout.Seconds())

	rl := relay.New(st, ts, cfg.Relay.EnvelopeTTL)
	topics := topic.NewManager(operator, st, cfg.Topics.RenameDelay, cfg.Topics.RenameGap)
	defer topics.Close()
	machine := status.NewMachine(st, topics)
	gw := gateway.New(st, rl, topics, machine, operator, cfg.Operator.GroupID, cfg.MediaGroup.Window, pollSecs)
	defer gw.Stop()

	mgr := tenant.NewManager(st, vault.New(cfg.VaultKey()), func(token string) protocol.Client {
		return protocol.NewHTTPClient(token)
	}, gw, pollSecs)
	gw.SetTenantManager(mgr)
	defer mgr.StopAll()

	if err := mgr.LoadExisting(ctx); err != nil {
		return fmt.Errorf("loading tenants: %w", err)
	}

	apiServer := api.NewServer(cfg.Server.HTTPAddr, st)
	apiErr := make(chan error, 1)
	go func() {
		apiErr <- apiServer.Start()
	}()

	done := make(chan struct{})
	go func() {
		gw.RunOperator(ctx)
		close(done)
	}()

	select {
	case err := <-apiErr:
		return fmt.Errorf("API server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	<-done

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return apiServer.Shutdown(shutdownCtx)
}

func runAddTenant(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-tenant", flag.ExitOnError)
	token := fs.String("token", "", "bot token for the tenant (required)")
	owner := fs.Int64("owner", 0, "platform user id of the tenant owner")
	group := fs.Int64("group", 0, "destination group id (0 uses the shared operator group)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return fmt.Errorf("--token is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupLogger(cfg.Logging)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	mgr := tenant.NewManager(st, vault.New(cfg.VaultKey()), func(token string) protocol.Client {
		return protocol.NewHTTPClient(token)
	}, nil, 0)

	t, err := mgr.Register(ctx, *token, *owner, *group)
	if err != nil {
		return err
	}

	fmt.Printf("Tenant registered:\n")
	fmt.Printf("  ID:       %s\n", t.ID)
	fmt.Printf("  Bot:      @%s\n", t.BotUsername)
	fmt.Printf("  Group:    %d\n", t.GroupID)
	fmt.Println("\nRestart the gateway (or wait for the next start) to connect it.")
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/healthz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runTenants(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/tenants", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listing tenants: status %d", resp.StatusCode)
	}

	var tenants []struct {
		ID          string `json:"id"`
		BotUsername string `json:"bot_username"`
		GroupID     int64  `json:"group_id"`
	}
	if err := json.Unmarshal(body, &tenants); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(tenants) == 0 {
		fmt.Println("No active tenants.")
		return nil
	}
	for _, t := range tenants {
		fmt.Printf("%s  @%s  group=%d\n", t.ID, t.BotUsername, t.GroupID)
	}
	return nil
}
