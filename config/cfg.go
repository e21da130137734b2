package config

import (
	"fmt"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v3"

	"unipub/misc"
)

type (
	// StorageConfig describes where persistent state lives.
	StorageConfig struct {
		// SQLite database with image blobs.
		ImagesPath string `yaml:"images_path"`
		// JSON cache with the document workspace.
		DocumentsPath string `yaml:"documents_path"`
	}

	// ExportConfig keeps defaults for the clipboard export pipeline.
	ExportConfig struct {
		CardTheme      string `yaml:"card_theme"`
		PageAppearance string `yaml:"page_appearance"`
		// Optional stylesheet overriding the embedded theme definitions.
		StylesheetPath string `yaml:"stylesheet_path"`
	}

	Config struct {
		Version int           `yaml:"version"`
		Storage StorageConfig `yaml:"storage"`
		Export  ExportConfig  `yaml:"export"`
		Logging LoggingConfig `yaml:"logging"`
	}
)

const currentConfigVersion = 1

func defaultConfig() *Config {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	dir = filepath.Join(dir, misc.GetAppName())
	return &Config{
		Version: currentConfigVersion,
		Storage: StorageConfig{
			ImagesPath:    filepath.Join(dir, "uni-editor.db"),
			DocumentsPath: filepath.Join(dir, "documents.json"),
		},
		Export: ExportConfig{
			CardTheme:      "classic",
			PageAppearance: "light",
		},
		Logging: LoggingConfig{
			ConsoleLogger: LoggerConfig{Level: "normal"},
			FileLogger:    LoggerConfig{Level: "none", Mode: "append"},
		},
	}
}

// LoadConfiguration reads the configuration from the file at the given path,
// overlaying it on top of built-in defaults. Empty path returns defaults.
func LoadConfiguration(path string) (*Config, error) {
	cfg := defaultConfig()
	if len(path) == 0 {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Version != currentConfigVersion {
		return fmt.Errorf("unsupported configuration version %d (want %d)", cfg.Version, currentConfigVersion)
	}
	switch cfg.Export.PageAppearance {
	case "light", "dark":
	default:
		return fmt.Errorf("unknown page appearance %q (want light or dark)", cfg.Export.PageAppearance)
	}
	switch cfg.Logging.ConsoleLogger.Level {
	case "none", "normal", "debug":
	default:
		return fmt.Errorf("unknown console log level %q", cfg.Logging.ConsoleLogger.Level)
	}
	switch cfg.Logging.FileLogger.Level {
	case "none", "normal", "debug":
	default:
		return fmt.Errorf("unknown file log level %q", cfg.Logging.FileLogger.Level)
	}
	if lvl := cfg.Logging.FileLogger.Level; lvl != "none" && len(cfg.Logging.FileLogger.Destination) == 0 {
		return fmt.Errorf("file logging level is %q but no destination is set", lvl)
	}
	if mode := cfg.Logging.FileLogger.Mode; mode != "" && mode != "append" && mode != "overwrite" {
		return fmt.Errorf("unknown file log mode %q", mode)
	}
	return nil
}

// Dump serializes processed configuration, mostly useful for troubleshooting.
func Dump(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
