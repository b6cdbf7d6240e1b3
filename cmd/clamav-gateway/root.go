package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	clamav "github.com/DevHatRo/clamav-gateway-go"
	"github.com/DevHatRo/clamav-gateway-go/internal/config"
)

// app carries the state shared by all subcommands once flags are parsed.
type app struct {
	v          *viper.Viper
	configPath string
	cfg        config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}
	d := config.Default()

	cmd := &cobra.Command{
		Use:   appName,
		Short: "HTTP gateway that streams uploads to clamd for virus scanning",
		Long: `clamav-gateway accepts uploads on POST /scan and streams them to a clamd
backend without buffering, answering with {"virus": null} or the list of
detected signatures.

Configuration is read from defaults, an optional config file, CLAMAV_GATEWAY_*
environment variables and flags, in increasing order of precedence.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to a YAML, JSON or TOML config file")
	pf.String("backend-address", d.BackendAddress, "clamd address (host:port, tcp://host:port or unix:///path)")
	pf.Duration("backend-timeout", d.BackendTimeout, "timeout for each read or write on the clamd connection")
	pf.Duration("dial-timeout", d.DialTimeout, "timeout for connecting to clamd")
	pf.Int("chunk-size", d.ChunkSize, "INSTREAM chunk size in bytes")
	pf.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	pf.String("log-format", d.LogFormat, "log format (json, text)")

	cmd.AddCommand(
		newServeCmd(a),
		newScanCmd(a),
		newPingCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// load resolves the configuration for the command being executed and installs
// the logger. Service logs go to stdout; one-shot commands log to stderr so
// their output stays machine readable.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	w := cmd.ErrOrStderr()
	if cmd.Name() == "serve" {
		w = cmd.OutOrStdout()
	}
	a.logger = setupLogger(w, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) newClient() (*clamav.Client, error) {
	client, err := clamav.NewClient(a.cfg.BackendAddress,
		clamav.WithTimeout(a.cfg.BackendTimeout),
		clamav.WithDialTimeout(a.cfg.DialTimeout),
		clamav.WithChunkSize(a.cfg.ChunkSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create clamd client: %w", err)
	}
	return client, nil
}
