package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/devtoolbox/backend/internal/api"
	"github.com/devtoolbox/backend/internal/config"
	"github.com/devtoolbox/backend/internal/convert"
	"github.com/devtoolbox/backend/internal/models"
	"github.com/devtoolbox/backend/internal/queue"
	"github.com/devtoolbox/backend/internal/storage"
	"github.com/devtoolbox/backend/internal/theme"
	"github.com/devtoolbox/backend/internal/web"
	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Optional .env next to the working directory; real env vars win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Printf("Warning: failed to load .env: %v\n", err)
	}

	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	configPath := filepath.Join(filepath.Dir(exePath), "DevToolbox.config")
	if p := os.Getenv("TOOLBOX_CONFIG"); p != "" {
		configPath = p
	}

	// Load XML configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Two servers must not share one previews directory
	lock := flock.New(filepath.Join(cfg.GetDataDir(), "toolbox.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		fmt.Printf("Failed to acquire data directory lock: %v\n", err)
		os.Exit(1)
	}
	if !locked {
		fmt.Printf("Another toolbox server is already using %s\n", cfg.GetDataDir())
		os.Exit(1)
	}
	defer lock.Unlock()

	if err := run(cfg, configPath); err != nil {
		fmt.Printf("Server error: %v\n", err)
		lock.Unlock()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	embeddedMode := web.HasEmbeddedFiles()

	// Initialize preview storage
	previewFiles, err := storage.NewLocalStore(cfg.GetPreviewDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if cfg.Storage.PurgeOnStart {
		if err := previewFiles.Purge(); err != nil {
			fmt.Printf("Warning: failed to purge old previews: %v\n", err)
		}
	}

	maxUpload, err := cfg.MaxUploadBytes()
	if err != nil {
		return err
	}
	faviconSizes, err := cfg.FaviconSizes()
	if err != nil {
		return err
	}
	defaultFormat, err := models.ParseFormat(cfg.Conversion.DefaultFormat)
	if err != nil {
		return fmt.Errorf("invalid default format: %w", err)
	}

	images := convert.NewService(cfg.Conversion.Quality)
	previews := storage.NewPreviewStore(previewFiles, images, cfg.Conversion.PreviewSize)

	registry := queue.NewRegistry(images, previews, queue.Settings{
		Format:  defaultFormat,
		Quality: cfg.Conversion.Quality,
	}, cfg.Queue.MaxBatches)
	hub := api.NewEventHub(registry, cfg.Advanced.WebSocketMaxMessageSize)
	registry.SetNotifierFactory(hub.Notifier)

	// Start background batch cleanup
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.CleanupIdle(cfg.BatchTimeout()); n > 0 {
					fmt.Printf("[Cleanup] Removed %d idle batch(es), %d preview(s) live\n", n, previews.Live())
				}
			}
		}
	}()

	// Theme presets, optionally hot-reloaded
	themes, err := theme.LoadSet(cfg.Advanced.ThemePresets)
	if err != nil {
		fmt.Printf("Warning: failed to load theme presets, using built-in: %v\n", err)
		themes = theme.NewSet()
	}
	if themes.Path() != "" && cfg.Advanced.WatchThemePresets {
		watcher, err := theme.NewWatcher(themes, nil)
		if err != nil {
			fmt.Printf("Warning: theme presets will not reload: %v\n", err)
		} else {
			watcher.Start()
			defer watcher.Close()
		}
	}

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/preview") || path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/events") ||
				strings.HasSuffix(path, "/download")
		},
		ErrorMessage: "Request timeout - conversion took too long",
	}))

	// Compression middleware; image payloads are already compressed
	if cfg.Advanced.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Advanced.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return strings.HasSuffix(path, "/events") ||
					strings.HasSuffix(path, "/download") ||
					strings.HasSuffix(path, "/preview") ||
					path == convert.ConverterPath ||
					strings.HasPrefix(path, "/api/tools/img-to-ico") ||
					strings.HasPrefix(path, "/api/tools/og-image")
			},
		}))
	}

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  cfg.AllowedOrigins(),
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			ExposeHeaders: []string{echo.HeaderContentDisposition},
		}))
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Images:       images,
		Registry:     registry,
		Previews:     previews,
		Themes:       themes,
		Hub:          hub,
		RunCtx:       ctx,
		MaxUpload:    maxUpload,
		AllowedTypes: cfg.AllowedMimeTypes(),
		FaviconSizes: faviconSizes,
		Version:      Version,
	})
	api.RegisterRoutes(e, handlers)
	api.RegisterWebSocketRoutes(e, handlers)

	// Register embedded front page if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			fmt.Printf("Warning: failed to register static routes: %v\n", err)
		} else {
			fmt.Println("Serving embedded front page from binary")
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, embeddedMode)

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		fmt.Println("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Warning: graceful shutdown failed: %v\n", err)
	}
	registry.CloseAll()
	fmt.Printf("Stopped, %d preview(s) left\n", previews.Live())
	return nil
}

func printBanner(cfg *config.AppConfig, configPath string, embeddedMode bool) {
	mode := "API only"
	if embeddedMode {
		mode = "Embedded front page"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Dev Toolbox Server                              ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("║  Format:    %-46s║\n", cfg.Conversion.DefaultFormat)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}
}
