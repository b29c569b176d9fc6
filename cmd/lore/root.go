package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/lore/internal/cli"
	"github.com/hyperjump/lore/internal/config"
	"github.com/hyperjump/lore/pkg/utils"
)

const defaultConfigPath = "/usr/local/etc/lore/config.yaml"

// app carries state resolved from the global flags.
type app struct {
	configFlag string
	debugFlag  bool
	outputFlag string

	cfg        *config.Config
	configPath string
	output     cli.OutputFormat
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "lore",
		Short:         "lore - a store of lessons learned",
		Long:          "lore records problems and their resolutions and retrieves the relevant ones by similarity.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configFlag, "config", "c", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&a.debugFlag, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&a.outputFlag, "output", "o", "text", "output format: text or json")

	root.AddCommand(
		newServerCmd(a),
		newPublishCmd(a),
		newQueryCmd(a),
		newSearchCmd(a),
		newGetCmd(a),
		newListCmd(a),
		newDeleteCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newWatchCmd(a),
		newStatusCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) init() error {
	output, err := cli.ParseOutputFormat(a.outputFlag)
	if err != nil {
		return err
	}
	a.output = output

	cfg, path, err := loadConfig(a.configFlag)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.configPath = path

	debug := cfg.Debug || a.debugFlag
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return err
	}
	a.logger = logger
	logger.Debug("config loaded", zap.String("config_path", path), zap.Bool("debug", debug))
	return nil
}

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence so commands run from a project
// directory use its config. When the default file does not exist either,
// defaults plus environment overrides are used and the returned path is "".
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			cfg, err := defaultConfig()
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func defaultConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
