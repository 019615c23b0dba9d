package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golovatskygroup/billy-mcp/internal/adapter"
	"github.com/golovatskygroup/billy-mcp/internal/catalog"
	"github.com/golovatskygroup/billy-mcp/internal/config"
	"github.com/golovatskygroup/billy-mcp/internal/httpapi"
	"github.com/golovatskygroup/billy-mcp/internal/httpcache"
	"github.com/golovatskygroup/billy-mcp/internal/remote"
	"github.com/golovatskygroup/billy-mcp/internal/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	serverURL := flag.String("url", "", "Billy MCP Server base URL (overrides "+config.EnvServerURL+")")
	toolsFile := flag.String("tools", "", "Tool definitions file (default: bundled definitions)")
	httpAddr := flag.String("http", "", "Also serve the HTTP API on this address")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *toolsFile != "" {
		cfg.ToolsFile = *toolsFile
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, runOptions{In: os.Stdin, Out: os.Stdout}); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// runOptions carries the process handles run serves on.
type runOptions struct {
	In  io.Reader
	Out io.Writer
	// Listener, when set, is used for the HTTP API instead of listening on
	// cfg.HTTP.Addr.
	Listener net.Listener
}

// run serves MCP over opts.In/opts.Out until EOF or cancellation. With the
// HTTP API enabled it keeps serving HTTP after EOF until ctx is done.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger, opts runOptions) error {
	logger.Info("starting billy mcp client",
		"version", version,
		"server_url", cfg.ServerURL,
		"api_key_provided", cfg.CongressAPIKey != "",
		"default_congress_provided", cfg.DefaultCongress != "")

	loaded := catalog.Load(cfg.ToolsFile)
	if loaded.Outcome == catalog.FellBack {
		logger.Warn("tool definitions unavailable, using fallback catalog",
			"source", loaded.Source, "reason", loaded.Reason, "tools", loaded.Catalog.Len())
	} else {
		logger.Info("tool definitions loaded", "source", loaded.Source, "tools", loaded.Catalog.Len())
	}

	client := remote.New(remote.Options{
		BaseURL:   cfg.ServerURL,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Cache: httpcache.Config{
			Enabled:    cfg.Cache.Enabled,
			TTL:        cfg.Cache.TTL(),
			MaxEntries: cfg.Cache.MaxEntries,
		},
		Logger: logger,
	})

	a := adapter.New(adapter.Options{
		Catalog:      loaded.Catalog,
		Remote:       client,
		Credentials:  cfg.Credentials(),
		ValidateArgs: cfg.ValidateArgs,
		Logger:       logger,
	})

	if logger.Enabled(ctx, slog.LevelDebug) {
		go reportToolDrift(ctx, a, logger)
	}

	httpEnabled := cfg.HTTP.Addr != ""
	if httpEnabled {
		ln := opts.Listener
		if ln == nil {
			var err error
			if ln, err = net.Listen("tcp", cfg.HTTP.Addr); err != nil {
				return fmt.Errorf("http api listen: %w", err)
			}
		}
		api := httpapi.New(httpapi.Options{Adapter: a, Token: cfg.HTTP.Token, Logger: logger})
		srv := &http.Server{Handler: api.Router(), ReadHeaderTimeout: 10 * time.Second}
		if cfg.HTTP.Token == "" {
			logger.Warn("http token not set; /mcp endpoints are open")
		}
		logger.Info("http api listening", "addr", ln.Addr().String())
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http api stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	srv := server.New(server.Options{
		Adapter:       a,
		In:            opts.In,
		Out:           opts.Out,
		MaxConcurrent: cfg.MaxConcurrent,
		Version:       version,
		Logger:        logger,
	})
	if err := srv.Run(ctx); err != nil {
		return err
	}

	if httpEnabled && ctx.Err() == nil {
		logger.Info("stdio input closed; serving http api until shutdown")
		<-ctx.Done()
	}
	return nil
}

// reportToolDrift logs how the service's advertised tools differ from the
// local catalog.
func reportToolDrift(ctx context.Context, a *adapter.Adapter, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	onlyRemote, onlyLocal, err := a.CompareRemote(ctx)
	if err != nil {
		logger.Debug("server info unavailable", "error", err)
		return
	}
	logger.Debug("remote tool comparison", "only_remote", onlyRemote, "only_local", onlyLocal)
}
