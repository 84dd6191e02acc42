package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"blackboxd/internal/config"
	"blackboxd/internal/engineconfig"
	"blackboxd/internal/httpapi"
	"blackboxd/internal/hub"
	"blackboxd/internal/manager"
	"blackboxd/internal/runtime"
	"blackboxd/internal/telemetry"
	"blackboxd/internal/vllm"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		maxModels  int
		basePort   int
		engineDir  string
		gpuType    string
		credential string
		corsOn     bool
		logLevel   string
	)

	root := &cobra.Command{
		Use:           "blackboxd",
		Short:         "GPU VRAM pool manager for vLLM deployments",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{}
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			// Flags override file values when set on the command line.
			if cmd.Flags().Changed("addr") || cfg.Addr == "" {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("max-models") || cfg.MaxConcurrentModels == 0 {
				cfg.MaxConcurrentModels = maxModels
			}
			if cmd.Flags().Changed("base-port") || cfg.BasePort == 0 {
				cfg.BasePort = basePort
			}
			if cmd.Flags().Changed("engine-config-dir") || cfg.EngineConfigDir == "" {
				cfg.EngineConfigDir = engineDir
			}
			if cmd.Flags().Changed("gpu-type") || cfg.GPUType == "" {
				cfg.GPUType = gpuType
			}
			if cmd.Flags().Changed("hub-credential") || cfg.HubCredential == "" {
				cfg.HubCredential = credential
			}
			if cmd.Flags().Changed("cors") {
				cfg.CORSEnabled = corsOn
			}
			if cmd.Flags().Changed("log-level") || cfg.LogLevel == "" {
				cfg.LogLevel = logLevel
			}
			cfg.ApplyDefaults()
			return serve(cfg)
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", envOr("BLACKBOXD_CONFIG", ""), "Path to config file (.yaml, .json or .toml)")
	root.Flags().StringVar(&addr, "addr", envOr("BLACKBOXD_ADDR", config.DefaultAddr), "HTTP listen address")
	root.Flags().IntVar(&maxModels, "max-models", envOrInt("BLACKBOXD_MAX_MODELS", config.DefaultMaxConcurrentModels), "Maximum concurrently deployed models")
	root.Flags().IntVar(&basePort, "base-port", envOrInt("BLACKBOXD_BASE_PORT", config.DefaultBasePort), "First host port assigned to deployments")
	root.Flags().StringVar(&engineDir, "engine-config-dir", envOr("BLACKBOXD_ENGINE_CONFIG_DIR", ""), "Directory with per-GPU-type vLLM config files")
	root.Flags().StringVar(&gpuType, "gpu-type", envOr("BLACKBOXD_GPU_TYPE", ""), "GPU type override (A100, H100, L40, T4); detected when empty")
	root.Flags().StringVar(&credential, "hub-credential", envOr("HF_TOKEN", ""), "Hugging Face token used when a deploy request omits one")
	root.Flags().BoolVar(&corsOn, "cors", false, "Enable CORS for browser dashboards")
	root.Flags().StringVar(&logLevel, "log-level", envOr("BLACKBOXD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the blackboxd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("blackboxd", version)
		},
	})

	return root
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func serve(cfg config.Config) error {
	log := newLogger(cfg.LogLevel)

	querier := telemetry.NewSMIQuerier()
	engines := engineconfig.NewStore(cfg.EngineConfigDir)
	vllmClient := vllm.NewClient("127.0.0.1")

	mgr := manager.New(manager.Config{
		MaxConcurrentModels:   cfg.MaxConcurrentModels,
		BasePort:              cfg.BasePort,
		PortRange:             cfg.PortRange,
		SampleCapacity:        cfg.SampleCapacity,
		ProbeFailureThreshold: cfg.ProbeFailureThreshold,
		OptimizationWindow:    cfg.OptimizationWindow,
		MinOptimizeSamples:    cfg.MinOptimizeSamples,
		OverageTolerancePct:   cfg.OverageTolerancePct,
		PressureThresholdPct:  cfg.PressureThresholdPct,
		TargetUsedPct:         cfg.TargetUsedPct,
		HubCredential:         cfg.HubCredential,
		GPUType:               cfg.GPUType,
		Runtime:               runtime.NewDockerRuntime(log),
		Hub:                   hub.NewClient(),
		Prober:                vllmClient,
		Engines:               engines,
		DetectGPUType: func() string {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			name, err := querier.DeviceName(ctx)
			if err != nil {
				return "T4"
			}
			return telemetry.GPUTypeFromName(name)
		},
		Logger: log,
	})

	collector := telemetry.NewCollector(querier, vllmClient, mgr, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetBaseContext(ctx)
	httpapi.SetStreamOptions(cfg.StreamInterval, cfg.StreamMaxLifetime)
	if cfg.CORSEnabled {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins,
			[]string{"GET", "POST", "OPTIONS"},
			[]string{"Accept", "Authorization", "Content-Type"})
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mgr.Run(ctx, collector, cfg.PollInterval, cfg.HealthInterval)
	})

	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("version", version).Msg("blackboxd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown failed")
			return srv.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("blackboxd stopped")
	return nil
}
