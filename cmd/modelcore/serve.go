package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelcore/internal/backend"
	"modelcore/internal/catalog"
	"modelcore/internal/config"
	"modelcore/internal/dispatcher"
	"modelcore/internal/httpapi"
	"modelcore/internal/progress"
	"modelcore/internal/registry"
	"modelcore/internal/service"
	"modelcore/pkg/types"
)

const shutdownTimeout = 15 * time.Second

type serveFlags struct {
	addr      string
	modelsDir string
	ceilingMB int64
	workers   int
	preload   []string
	cors      bool
	inProcess bool
}

func newServeCmd(g *globals) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP daemon",
		Example: "  modelcore serve --config modelcore.yaml\n" +
			"  modelcore serve --models-dir ~/models --memory-ceiling-mb 12288 --preload whisper-base",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, g, f)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel, os.Stderr)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", "", "HTTP listen address (default "+config.DefaultAddr+")")
	fl.StringVar(&f.modelsDir, "models-dir", "", "Directory scanned for *.gguf and ggml-*.bin model files")
	fl.Int64Var(&f.ceilingMB, "memory-ceiling-mb", 0, "Hard limit on resident model memory in MB")
	fl.IntVar(&f.workers, "workers", 0, "Dispatcher workers (default GOMAXPROCS)")
	fl.StringSliceVar(&f.preload, "preload", nil, "Model ids to load at startup, comma separated")
	fl.BoolVar(&f.cors, "cors", false, "Enable CORS for all origins unless configured otherwise")
	fl.BoolVar(&f.inProcess, "in-process", false, "Load language models in-process (requires the llama build tag)")
	return cmd
}

// resolveConfig layers file, environment and flags, then fills defaults.
func resolveConfig(cmd *cobra.Command, g *globals, f *serveFlags) (config.Config, error) {
	cfg, err := config.Resolve(g.configPath)
	if err != nil {
		return cfg, err
	}
	fl := cmd.Flags()
	if fl.Changed("addr") {
		cfg.Addr = f.addr
	}
	if fl.Changed("models-dir") {
		cfg.ModelsDir = f.modelsDir
	}
	if fl.Changed("memory-ceiling-mb") {
		cfg.MemoryCeilingMB = f.ceilingMB
	}
	if fl.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fl.Changed("preload") {
		cfg.Preload = f.preload
	}
	if fl.Changed("cors") {
		cfg.CORSEnabled = f.cors
	}
	if fl.Changed("in-process") {
		cfg.Llama.InProcess = f.inProcess
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}

// buildCatalog merges configured descriptors with files found in ModelsDir.
// Configured entries win on id clashes.
func buildCatalog(cfg config.Config, log zerolog.Logger) *catalog.Catalog {
	var scanned []types.ModelDescriptor
	if cfg.ModelsDir != "" {
		var err error
		if scanned, err = catalog.ScanDir(cfg.ModelsDir); err != nil {
			log.Warn().Str("dir", cfg.ModelsDir).Err(err).Msg("event=scan_failed")
		}
	}
	cat := catalog.New(cfg.Descriptors(), scanned)
	log.Info().Int("configured", len(cfg.Models)).Int("scanned", len(scanned)).Msg("event=catalog_built")
	return cat
}

// newCore wires the registry, dispatcher and catalog for cfg.
func newCore(cfg config.Config, log zerolog.Logger) *service.Core {
	bus := registry.NewBus()

	bcfg := cfg.BackendConfig()
	bcfg.Logger = &log
	if bcfg.InProcess && !backend.InProcessBuilt {
		log.Warn().Str("hint", "rebuild with -tags llama").Msg("event=in_process_unavailable")
	}

	rcfg := cfg.RegistryConfig()
	rcfg.Launchers = backend.Launchers(bcfg)
	rcfg.Publisher = bus
	rcfg.Progress = progress.NewLog(log)
	rcfg.Logger = &log
	reg := registry.New(rcfg)

	dcfg := cfg.DispatcherConfig()
	dcfg.Logger = &log
	disp := dispatcher.New(reg, dcfg)

	return service.New(service.Options{
		Registry:   reg,
		Dispatcher: disp,
		Catalog:    buildCatalog(cfg, log),
		Bus:        bus,
		Logger:     &log,
	})
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, nil, nil)

	core := newCore(cfg, log)

	// Cancelling base ends event streams and pending waits on shutdown.
	base, cancelBase := context.WithCancel(ctx)
	defer cancelBase()
	httpapi.SetBaseContext(base)
	core.Start(base, cfg.Preload)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(core),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Int64("ceiling_mb", cfg.MemoryCeilingMB).Msg("event=listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	log.Info().Msg("event=shutting_down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("event=http_shutdown")
	}
	if err := core.Close(sctx); err != nil {
		log.Warn().Err(err).Msg("event=backend_shutdown")
	}
	return serveErr
}
