package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"svcboot/internal/bootstrap"
	"svcboot/internal/buildinfo"
	"svcboot/internal/config"
	"svcboot/internal/container"
	"svcboot/internal/logging"
	"svcboot/internal/otel"
	"svcboot/internal/storage"
	"svcboot/internal/tlsbundle"
)

const redacted = "******"

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:          "svcboot",
		Short:        "Notes document service",
		Version:      buildinfo.String(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configFile)
		},
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./config.yaml or ./config/config.yaml)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/HTTPS listeners",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configFile)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the normalized configuration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg)
		},
	})
	return cmd
}

func loadConfig(file string) (*config.Config, error) {
	cfg, err := config.Load(file)
	if err != nil {
		return nil, err
	}
	config.Normalize(cfg, buildinfo.Read())

	if cfg.Persistence.Driver == config.DriverPostgres && !slices.Contains(cfg.Persistence.Collections, notesCollection) {
		cfg.Persistence.Collections = append(cfg.Persistence.Collections, notesCollection)
	}
	return cfg, nil
}

// printConfig writes cfg as indented JSON with credentials masked.
func printConfig(w io.Writer, cfg *config.Config) error {
	out := *cfg
	if out.HTTPS != nil {
		h := *out.HTTPS
		if h.Passphrase != "" {
			h.Passphrase = redacted
		}
		out.HTTPS = &h
	}
	if out.Persistence.Postgres.Password != "" {
		out.Persistence.Postgres.Password = redacted
	}
	if out.MinIO.SecretKey != "" {
		out.MinIO.SecretKey = redacted
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func serve(ctx context.Context, configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	log := logging.New(cfg.IsProduction())

	shutdownTracing, err := otel.Init(ctx, cfg.Tracing.Enabled, cfg.Name, logging.Component(log, cfg.Log, "tracing"))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := bootstrap.Options{
		Config:    cfg,
		Container: container.New(),
		Hooks:     bootstrap.Hooks{Created: registerNotes},
		Logger:    log,
		Registry:  reg,
		OnClose:   []func(context.Context) error{shutdownTracing},
	}
	opts.Bundles = bundleLoader(ctx, cfg, log)

	bootstrap.Main(opts)
	return nil
}

// bundleLoader serves s3:// PFX paths from MinIO when object storage is
// configured and reads everything else from disk.
func bundleLoader(ctx context.Context, cfg *config.Config, log *zap.Logger) tlsbundle.Loader {
	exe, _ := executableDir()
	files := tlsbundle.FileLoader{BaseDir: cfg.BaseDir(exe)}
	if cfg.MinIO.Endpoint == "" {
		return files
	}

	store, err := storage.NewMinIO(ctx, cfg.MinIO)
	if err != nil {
		logging.Component(log, cfg.Log, "storage").Warn("object storage unavailable, reading TLS bundles from disk", zap.Error(err))
		return files
	}
	return tlsbundle.ObjectLoader{Storage: store, Fallback: files}
}
