package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bucketadmin/internal/app"
	"bucketadmin/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var configFlag string

var rootCmd = &cobra.Command{
	Use:          "bucketadmin",
	Short:        "Administration panel for a partitioned bucket/file catalog",
	Version:      app.Version,
	SilenceUsage: true,
}

// configPath returns the --config flag or the default location.
func configPath() (path, baseDir string, err error) {
	path, baseDir, err = config.DefaultPaths()
	if err != nil {
		return "", "", err
	}
	if configFlag != "" {
		path = configFlag
	}
	return path, baseDir, nil
}

// loadConfig reads the config file. A missing file yields the defaults so
// the panel can start before `config init` was run.
func loadConfig() (*config.Config, string, error) {
	path, baseDir, err := configPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.ReadFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default(baseDir)
		return cfg, path, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, path, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp() (*app.App, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, path)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ~/.config/bucketadmin/config.toml)")
}
