package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codesync-dev/codesync/internal/config"
	"github.com/codesync-dev/codesync/pkg/auth"
	"github.com/codesync-dev/codesync/pkg/exec"
	"github.com/codesync-dev/codesync/pkg/room"
	"github.com/codesync-dev/codesync/pkg/server"
)

// serveCmd runs the relay.
func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		devMode    bool
		logJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the synchronization relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(logJSON)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Address = addr
			}
			strict := cfg.Strict() && !devMode

			verifier := buildVerifier(cfg)
			metrics := room.NewMetrics(room.MetricsConfig{})
			registry := room.NewRegistry(nil, slog.Default(), metrics)

			var execProxy http.Handler
			if cfg.Exec.Enabled {
				execProxy = exec.NewHandler(exec.Config{
					APIURL:            cfg.Exec.APIURL,
					RequestsPerMinute: cfg.Exec.RequestsPerMinute,
					StrictAuth:        strict,
				}, verifier)
			}

			serverCfg := server.DefaultConfig().
				WithAddress(cfg.Address).
				WithStrictAuth(strict)
			if cfg.AllowedOrigins != nil {
				serverCfg.AllowedOrigins = cfg.AllowedOrigins
			}
			if cfg.Relay.SendQueueSize > 0 {
				serverCfg.SendQueueSize = cfg.Relay.SendQueueSize
			}
			if cfg.Relay.MaxMessageBytes > 0 {
				serverCfg.MaxMessageSize = cfg.Relay.MaxMessageBytes
			}
			if t := cfg.ReadTimeout(); t > 0 {
				serverCfg.ReadTimeout = t
			}

			relay := server.New(serverCfg, registry, verifier, metrics, execProxy)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return relay.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to codesync.json")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&devMode, "dev", false, "disable strict authentication for local development")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "emit JSON logs")
	return cmd
}

// buildVerifier picks the identity verifier from configuration. With no
// verifier configured the relay still runs: strict mode then rejects
// every credential, dev mode admits everyone as the development identity.
func buildVerifier(cfg *config.Config) auth.Verifier {
	if cfg.Auth.VerifyURL != "" {
		return auth.NewHTTPVerifier(cfg.Auth.VerifyURL)
	}
	uid := cfg.Auth.StaticUID
	if uid == "" {
		uid = "static-user"
	}
	return auth.StaticVerifier{Token: cfg.Auth.StaticToken, UID: uid}
}

func setupLogging(logJSON bool) {
	var handler slog.Handler
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	slog.SetDefault(slog.New(handler))
}
