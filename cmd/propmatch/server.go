package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/propmatch/internal/api"
	"github.com/kalambet/propmatch/internal/config"
	"github.com/kalambet/propmatch/internal/pipeline"
	"github.com/kalambet/propmatch/internal/storage"
	"github.com/kalambet/propmatch/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the propmatch server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running propmatch server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show propmatch system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "propmatch.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "propmatch version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice: a healthy server on the port wins.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("propmatch is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("propmatch is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	matcher := pipeline.NewMatcher(store, pipeline.Options{
		MinScore:   cfg.Matching.MinScore,
		MaxResults: cfg.Matching.MaxResults,
		MaxCatalog: cfg.Matching.MaxCatalog,
	})
	matchTimeout := cfg.MatchTimeout()

	handler := api.NewAppHandler(api.AppDeps{
		Store:        store,
		Matcher:      matcher,
		Token:        apiToken,
		MatchTimeout: matchTimeout,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Worker.Enabled {
		w := worker.NewWorker(store, matcher, cfg.PollInterval(), matchTimeout)
		go w.Run(ctx)
		slog.Info("refresh worker started", "poll_interval", cfg.PollInterval())
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:        store,
			Matcher:      matcher,
			MatchTimeout: matchTimeout,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "propmatch listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("propmatch is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop propmatch (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to propmatch (PID %d)", pid)
	return nil
}

const statusCountLimit = 100

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		printError("%v", err)
		return nil
	}
	client.httpClient = &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		for _, c := range []struct{ label, path string }{
			{"Clients", "/clients"},
			{"Properties", "/properties?status=available"},
		} {
			n, err := countItems(ctx, client, c.path)
			if err != nil {
				printStatus(c.label, "unavailable (%v)", err)
				continue
			}
			printStatus(c.label, "%s", countLabel(n, statusCountLimit))
		}
	}

	printStatus("Min score", "%d", cfg.Matching.MinScore)
	printStatus("Max results", "%d", cfg.Matching.MaxResults)
	printStatus("Worker", "%t", cfg.Worker.Enabled)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countItems(ctx context.Context, client *apiClient, path string) (int, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	resp, err := client.get(ctx, fmt.Sprintf("%s%slimit=%d", path, sep, statusCountLimit))
	if err != nil {
		return 0, err
	}
	var items []json.RawMessage
	if err := decodeJSON(resp, &items); err != nil {
		return 0, err
	}
	return len(items), nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
