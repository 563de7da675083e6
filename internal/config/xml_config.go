// Package config provides XML-based configuration management for the toolbox server.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"DevToolbox"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Conversion defaults
	Conversion ConversionConfig `xml:"Conversion"`

	// Batch queue limits
	Queue QueueConfig `xml:"Queue"`

	// Security configuration
	Security SecurityConfig `xml:"Security"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           int    `xml:"Port"`
	BindAddress    string `xml:"BindAddress"`
	EnableCORS     bool   `xml:"EnableCORS"`
	AllowOrigins   string `xml:"AllowOrigins"`
	ReadTimeout    int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout   int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout    int    `xml:"IdleTimeoutSeconds"`
	RequestTimeout int    `xml:"RequestTimeoutSeconds"`
	BodyLimit      string `xml:"BodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory     string `xml:"DataDirectory"`
	PreviewsDirectory string `xml:"PreviewsDirectory"`
	MaxUploadSize     string `xml:"MaxUploadSize"`
	PurgeOnStart      bool   `xml:"PurgeOnStart"`
}

// ConversionConfig contains encoder defaults
type ConversionConfig struct {
	DefaultFormat string `xml:"DefaultFormat"`
	Quality       int    `xml:"Quality"`
	PreviewSize   int    `xml:"PreviewSize"`
	FaviconSizes  string `xml:"FaviconSizes"`
}

// QueueConfig contains batch registry settings
type QueueConfig struct {
	MaxBatches             int `xml:"MaxBatches"`
	BatchTimeoutMinutes    int `xml:"BatchTimeoutMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	AllowedMimeTypes string `xml:"AllowedMimeTypes"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	EnableCompression       bool   `xml:"EnableCompression"`
	CompressionLevel        int    `xml:"CompressionLevel"`
	ThemePresets            string `xml:"ThemePresets"`
	WatchThemePresets       bool   `xml:"WatchThemePresets"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:           8089,
			BindAddress:    "0.0.0.0",
			EnableCORS:     true,
			AllowOrigins:   "*",
			ReadTimeout:    30,
			WriteTimeout:   120,
			IdleTimeout:    120,
			RequestTimeout: 120,
			BodyLimit:      "100M",
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			PreviewsDirectory: "./data/previews",
			MaxUploadSize:     "50MB",
			PurgeOnStart:      true,
		},
		Conversion: ConversionConfig{
			DefaultFormat: "webp",
			Quality:       100,
			PreviewSize:   300,
			FaviconSizes:  "16,32,48,64,128",
		},
		Queue: QueueConfig{
			MaxBatches:             100,
			BatchTimeoutMinutes:    30,
			CleanupIntervalMinutes: 5,
		},
		Security: SecurityConfig{
			AllowedMimeTypes: "image/png,image/jpeg,image/webp,image/gif,image/bmp,image/tiff,image/avif,image/x-icon,image/vnd.microsoft.icon",
		},
		Advanced: AdvancedConfig{
			EnableRequestLogging:    true,
			EnableCompression:       true,
			CompressionLevel:        5,
			ThemePresets:            "",
			WatchThemePresets:       true,
			WebSocketMaxMessageSize: 64,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Dev Toolbox Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that would otherwise fail late at runtime
func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Conversion.Quality < 1 || c.Conversion.Quality > 100 {
		return fmt.Errorf("invalid quality %d: must be 1-100", c.Conversion.Quality)
	}
	if _, err := c.MaxUploadBytes(); err != nil {
		return err
	}
	if _, err := c.FaviconSizes(); err != nil {
		return err
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR override moves the previews with it
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.PreviewsDirectory = filepath.Join(dataDir, "previews")
	}

	if presets := os.Getenv("THEME_PRESETS"); presets != "" {
		c.Advanced.ThemePresets = presets
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.PreviewsDirectory) {
		c.Storage.PreviewsDirectory = filepath.Join(configDir, c.Storage.PreviewsDirectory)
	}
	if c.Advanced.ThemePresets != "" && !filepath.IsAbs(c.Advanced.ThemePresets) {
		c.Advanced.ThemePresets = filepath.Join(configDir, c.Advanced.ThemePresets)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetPreviewDir returns the absolute previews directory path
func (c *AppConfig) GetPreviewDir() string {
	return c.Storage.PreviewsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// MaxUploadBytes parses Storage.MaxUploadSize ("50MB", "2 GiB").
func (c *AppConfig) MaxUploadBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.Storage.MaxUploadSize)
	if err != nil {
		return 0, fmt.Errorf("invalid MaxUploadSize %q: %w", c.Storage.MaxUploadSize, err)
	}
	return int64(n), nil
}

// FaviconSizes parses the comma separated Conversion.FaviconSizes list.
func (c *AppConfig) FaviconSizes() ([]int, error) {
	var sizes []int
	for _, part := range splitList(c.Conversion.FaviconSizes) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid favicon size %q: %w", part, err)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

// AllowedMimeTypes returns the upload allow-list; empty means anything.
func (c *AppConfig) AllowedMimeTypes() []string {
	return splitList(c.Security.AllowedMimeTypes)
}

// AllowedOrigins returns the CORS origins list.
func (c *AppConfig) AllowedOrigins() []string {
	origins := splitList(c.Server.AllowOrigins)
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// BatchTimeout is how long an untouched batch lives.
func (c *AppConfig) BatchTimeout() time.Duration {
	return time.Duration(c.Queue.BatchTimeoutMinutes) * time.Minute
}

// CleanupInterval is the period of the idle batch sweep.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Queue.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Queue.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.PreviewsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
