package main

import (
	"fmt"

	"github.com/jonathan/apply-agent/internal/config"
	"github.com/jonathan/apply-agent/internal/server"
	"github.com/jonathan/apply-agent/internal/server/middleware"
	"github.com/jonathan/apply-agent/internal/server/ratelimit"
	"github.com/spf13/cobra"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server exposing POST /job-application/single, POST /job-application/batch and
POST /job-discovery. Requests authenticate with an X-API-Key header (API_KEYS) or a bearer token
signed with JWT_SECRET.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", config.DefaultPort, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(func(c *config.Config) {
		if cmd.Flags().Changed("port") {
			c.Port = servePort
		}
	})
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	keys, tokens, err := serverAuth()
	if err != nil {
		return err
	}
	if keys == nil && tokens == nil {
		if cfg.Production() {
			return fmt.Errorf("API_KEYS or JWT_SECRET is required in production")
		}
		logger.Warn("serving without authentication; set API_KEYS or JWT_SECRET")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(server.Config{
		Port:       cfg.Port,
		Production: cfg.Production(),
		Keys:       keys,
		Tokens:     tokens,
		RateLimit:  ratelimit.LoadConfig(),
		Logger:     logger,
	}, a.runner)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}

// serverAuth returns the configured key verifier and token validator; either is nil when unset.
func serverAuth() (middleware.KeyVerifier, middleware.TokenValidator, error) {
	var (
		keys   middleware.KeyVerifier
		tokens middleware.TokenValidator
	)

	keyCfg, err := config.NewAPIKeyConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create API key config: %w", err)
	}
	if keyCfg.Enabled() {
		keys = keyCfg
	}

	jwtCfg, err := config.OptionalJWTConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	if jwtCfg != nil {
		tokens = server.NewJWTService(jwtCfg).AsTokenValidator()
	}
	return keys, tokens, nil
}
