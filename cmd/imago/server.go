package imago

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/imago-ai/imago"
	"github.com/imago-ai/imago/pkg/config"
	"github.com/imago-ai/imago/pkg/logger"
	"github.com/imago-ai/imago/pkg/server"
	"github.com/imago-ai/imago/pkg/store"
	"github.com/imago-ai/imago/pkg/telemetry"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Imago HTTP server",
	Long: `Start the Imago HTTP server to provide REST API access to the agent bridge.

The server provides endpoints for:
- Recording agent definition snapshots and corrections
- Reading reconstructed snapshots along both time dimensions
- Translating definitions between framework schemas
- Resolving protocol specifications
- Health checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serverCmd.Flags().StringVar(&serverMode, "mode", "release", "Server mode (debug, release, test)")

	// Store flags
	serverCmd.Flags().String("store-backend", "badger", "Record log backend (memory, badger, neo4j)")
	serverCmd.Flags().String("store-path", "", "Record log path (badger backend)")
	serverCmd.Flags().String("store-uri", "", "Record log URI (neo4j backend)")
	serverCmd.Flags().String("store-username", "", "Record log username (neo4j backend)")
	serverCmd.Flags().String("store-password", "", "Record log password (neo4j backend)")

	// Bridge flags
	serverCmd.Flags().Int("bridge-cache-size", 0, "Translation cache size (0 uses the default)")

	// Telemetry flags
	serverCmd.Flags().String("telemetry-parquet-path", "", "Path to directory for telemetry (error records)")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with command-line flags
	overrideConfigWithFlags(cmd, cfg)

	// Validate configuration
	if err := validateServerConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize Imago
	fmt.Println("Initializing Imago...")
	client, err := initializeImago(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Imago: %w", err)
	}
	defer client.Close()

	// Create and setup server
	srv := server.New(cfg, client)
	srv.Setup()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)

		// Create shutdown context with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Shutdown server
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		fmt.Println("Server stopped gracefully")
		return nil
	}
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	// Server flags
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	// Store flags
	if cmd.Flags().Changed("store-backend") {
		backend, _ := cmd.Flags().GetString("store-backend")
		cfg.Store.Backend = store.LogBackend(backend)
	}
	if cmd.Flags().Changed("store-path") {
		cfg.Store.Path, _ = cmd.Flags().GetString("store-path")
	}
	if cmd.Flags().Changed("store-uri") {
		cfg.Store.URI, _ = cmd.Flags().GetString("store-uri")
	}
	if cmd.Flags().Changed("store-username") {
		cfg.Store.Username, _ = cmd.Flags().GetString("store-username")
	}
	if cmd.Flags().Changed("store-password") {
		cfg.Store.Password, _ = cmd.Flags().GetString("store-password")
	}

	// Bridge flags
	if cmd.Flags().Changed("bridge-cache-size") {
		cfg.Bridge.CacheSize, _ = cmd.Flags().GetInt("bridge-cache-size")
	}

	// Telemetry flags
	if cmd.Flags().Changed("telemetry-parquet-path") {
		cfg.Telemetry.ParquetPath, _ = cmd.Flags().GetString("telemetry-parquet-path")
	}
}

func validateServerConfig(cfg *config.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}

	switch cfg.Store.Backend {
	case store.LogBackendMemory:
	case store.LogBackendBadger:
		if cfg.Store.Path == "" {
			return fmt.Errorf("store path is required for the badger backend")
		}
	case store.LogBackendNeo4j:
		if cfg.Store.URI == "" {
			return fmt.Errorf("store URI is required for the neo4j backend")
		}
	default:
		return fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
	return nil
}

func initializeImago(ctx context.Context, cfg *config.Config) (imago.Imago, error) {
	log := buildLogger(cfg)

	client, err := imago.New(ctx, cfg, &imago.Options{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("failed to create Imago client: %w", err)
	}

	fmt.Printf("Imago initialized successfully with backend: %s\n", cfg.Store.Backend)
	return client, nil
}

// buildLogger constructs the colored terminal logger, wrapped with parquet
// error tracking when a telemetry path is configured.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.Log.Level)
	colorHandler := logger.NewColorHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	if cfg.Telemetry.ParquetPath == "" {
		return slog.New(colorHandler)
	}

	if err := os.MkdirAll(cfg.Telemetry.ParquetPath, 0755); err != nil {
		fmt.Printf("Warning: Failed to create telemetry directory: %v\n", err)
		return slog.New(colorHandler)
	}

	parquetHandler, err := telemetry.NewParquetHandler(colorHandler, cfg.Telemetry.ParquetPath)
	if err != nil {
		fmt.Printf("Warning: Failed to initialize error tracking: %v\n", err)
		return slog.New(colorHandler)
	}

	fmt.Printf("Error tracking enabled at: %s\n", cfg.Telemetry.ParquetPath)
	return slog.New(parquetHandler)
}

func parseLevel(level string) slog.Level {
	switch level {
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
