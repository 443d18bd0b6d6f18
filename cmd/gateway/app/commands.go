// Package app provides the entry point for the gateway command-line
// application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/authorizer"
	"github.com/mcpjam/hosted-gateway/pkg/chatexec"
	"github.com/mcpjam/hosted-gateway/pkg/config"
	"github.com/mcpjam/hosted-gateway/pkg/gatewayapi"
	"github.com/mcpjam/hosted-gateway/pkg/logger"
	"github.com/mcpjam/hosted-gateway/pkg/oauthproxy"
	"github.com/mcpjam/hosted-gateway/pkg/ratelimit"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

var rootCmd = &cobra.Command{
	Use:               "gateway",
	DisableAutoGenTag: true,
	Short:             "Hosted MCP Gateway - multi-tenant execution plane for remote MCP servers",
	Long: `The hosted MCP gateway turns authenticated HTTP requests from browser
inspector clients into request-scoped MCP sessions against workspace-owned,
remote MCP servers. It authorizes every (workspace, server) pair with an
external policy service, enforces per-tenant rate limits, runs single-shot
MCP operations and streaming agentic chats, and tears every session down at
request end.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for the gateway CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to gateway configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the hosted MCP gateway",
		Long: `Start the gateway's HTTP server. Configuration is read from the file
named by --config (if any) with WEB_* environment variables taking
precedence; CONVEX_HTTP_URL and WEB_ALLOWED_ORIGINS are required.`,
		RunE: runServe,
	}
	cmd.Flags().String("listen", "", "Listen address (overrides configuration)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("gateway version: %s", getVersion())
		},
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Debug || viper.GetBool("debug") {
		level = slog.LevelDebug
	}
	logger.SetOutput(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.ListenAddr = listen
	}

	authz, err := authorizer.NewClient(authorizer.ConnectionConfig{
		URL:     cfg.PolicyServiceURL,
		Timeout: cfg.DefaultOperationTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create authorizer client: %w", err)
	}

	deps := &gatewayapi.Deps{
		Authorizer:       authz,
		HandshakeTimeout: cfg.SessionHandshakeTimeout,
		OperationTimeout: cfg.DefaultOperationTimeout,
	}

	var chat apierrors.HandlerWithError
	if cfg.ChatBackendURL != "" {
		executor := &chatexec.Executor{
			Authorizer:       authz,
			Backend:          chatexec.NewBackendClient(cfg.ChatBackendURL),
			HandshakeTimeout: cfg.SessionHandshakeTimeout,
			OperationTimeout: cfg.DefaultOperationTimeout,
			StreamTimeout:    cfg.StreamTimeout,
			MaxSteps:         cfg.ChatMaxSteps,
		}
		chat = executor.Chat
	} else {
		logger.Warn("chat backend URL not configured; /web/chat-v2 is disabled")
	}

	proxy := oauthproxy.New()

	router := gatewayapi.Router(gatewayapi.RouterOptions{
		Deps:           deps,
		Limiter:        ratelimit.New(cfg.RateLimits),
		AllowedOrigins: cfg.AllowedOrigins,
		BodyLimitBytes: cfg.BodyLimitBytes,
		RateLimit:      cfg.RateLimitEnabled,
		Chat:           chat,
		OAuthProxy:     proxy.Forward,
		OAuthMetadata:  proxy.Metadata,
		WellKnown:      oauthproxy.NewWellKnownHandler(cfg.PublicBaseURL, cfg.AuthorizationServers),
	})

	return serve(cmd.Context(), cfg.ListenAddr, router)
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func serve(ctx context.Context, address string, handler http.Handler) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Infof("starting http server on %s", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Panicf("server stopped with error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("http server stopped")
	return nil
}
