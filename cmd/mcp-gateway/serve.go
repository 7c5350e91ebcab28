package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lsendel/llmrank-mcp-gateway/internal/config"
	"github.com/lsendel/llmrank-mcp-gateway/internal/gateway"
)

type serveOptions struct {
	configFile string
	envFile    string
	addr       string
	issuer     string
	authMode   string
	backend    string
	logFormat  string
	debug      bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Long: `Run the gateway HTTP server.

Configuration is read from the YAML file given with --config, then from a .env
file and MCP_GATEWAY_* environment variables. Flags override both.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	opts.bindFlags(cmd.Flags())

	return cmd
}

func (o *serveOptions) bindFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&o.configFile, "config", "c", "", "path to a YAML configuration file")
	flags.StringVar(&o.envFile, "env-file", ".env", "path to a .env file")
	flags.StringVar(&o.addr, "addr", "", "listen address (overrides server.addr)")
	flags.StringVar(&o.issuer, "issuer", "", "public base URL (overrides oauth.issuer)")
	flags.StringVar(&o.authMode, "auth-mode", "", "authorization mode: header or consent")
	flags.StringVar(&o.backend, "storage", "", "storage backend: memory, valkey, redis or database")
	flags.StringVar(&o.logFormat, "log-format", "", "log format: json or text")
	flags.BoolVar(&o.debug, "debug", false, "enable debug logging")
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger := gateway.NewLogger(cmd.ErrOrStderr(), cfg.Logging.Format, cfg.Logging.Debug)

	gw, err := gateway.New(cfg, version, logger)
	if err != nil {
		return fmt.Errorf("initializing gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return gw.Run(ctx)
}

// loadConfig reads file and environment configuration, then applies the
// flags the user actually set.
func loadConfig(cmd *cobra.Command, opts *serveOptions) (config.Config, error) {
	cfg, err := config.Read(opts.configFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = opts.addr
	}
	if flags.Changed("issuer") {
		cfg.OAuth.Issuer = opts.issuer
	}
	if flags.Changed("auth-mode") {
		cfg.OAuth.AuthMode = opts.authMode
	}
	if flags.Changed("storage") {
		cfg.Storage.Backend = opts.backend
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}
	if flags.Changed("debug") {
		cfg.Logging.Debug = opts.debug
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
