package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/michaelbrown/runbox/internal/runner"
)

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ExecutionConfig struct {
	// Mode is local, remote, or auto.
	Mode          string `mapstructure:"mode"`
	PistonURL     string `mapstructure:"piston_url"`
	WorkspaceRoot string `mapstructure:"workspace_root"`
	UserLibsDir   string `mapstructure:"user_libs_dir"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// Load reads runbox.yaml from the working directory or ~/.runbox. A
// missing config file is fine; defaults cover everything.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("runbox")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.runbox")

	home := os.Getenv("HOME")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("execution.mode", runner.ModeAuto)
	v.SetDefault("execution.piston_url", runner.DefaultPistonURL)
	v.SetDefault("execution.workspace_root", os.TempDir())
	v.SetDefault("execution.user_libs_dir", filepath.Join(home, ".runbox", "user_libs"))
	v.SetDefault("storage.db_path", filepath.Join(home, ".runbox", "runbox.db"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Expand environment variables in values like ${PISTON_URL}
	cfg.Execution.PistonURL = expandEnv(cfg.Execution.PistonURL)
	cfg.Execution.WorkspaceRoot = expandEnv(cfg.Execution.WorkspaceRoot)
	cfg.Execution.UserLibsDir = expandEnv(cfg.Execution.UserLibsDir)
	cfg.Storage.DBPath = expandEnv(cfg.Storage.DBPath)

	switch cfg.Execution.Mode {
	case runner.ModeLocal, runner.ModeRemote, runner.ModeAuto:
	default:
		return nil, fmt.Errorf("invalid execution.mode: %s", cfg.Execution.Mode)
	}

	return &cfg, nil
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}
