package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nereus-network/nereus/internal/logger"
)

const (
	// prefix for configuration keys inside environment
	envPrefix = "NEREUS"

	defaultConfigFile       = "config.props"
	defaultHomeDirName      = ".nereus"
	defaultLoggerConfigFile = "logger-config.yaml"

	keyHome   = "home"
	keyConfig = "config"

	flagNameLoggerCfgFile = "logger-config"
)

type (
	nereusApp struct {
		baseCmd    *cobra.Command
		baseConfig *baseConfiguration
	}

	baseConfiguration struct {
		// The nereus home directory
		HomeDir string
		// Configuration file URL. If it's relative, then it's relative from the HomeDir.
		CfgFile string
		// Logger configuration file URL.
		LogCfgFile string
	}
)

// New creates a new nereus application.
func New() *nereusApp {
	baseCmd, baseConfig := newBaseCmd()
	return &nereusApp{baseCmd, baseConfig}
}

// Execute adds all child commands and runs the application.
func (a *nereusApp) Execute(ctx context.Context) error {
	a.baseCmd.AddCommand(newStartCmd(a.baseConfig))
	return a.baseCmd.ExecuteContext(ctx)
}

func newBaseCmd() (*cobra.Command, *baseConfiguration) {
	config := &baseConfiguration{}
	baseCmd := &cobra.Command{
		Use:           "nereus",
		Short:         "The nereus node CLI",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(cmd, config); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			return nil
		},
	}
	config.addConfigurationFlags(baseCmd)
	return baseCmd, config
}

func (r *baseConfiguration) addConfigurationFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&r.HomeDir, keyHome, "", fmt.Sprintf("set the NEREUS_HOME for this invocation (default is %s)", nereusHomeDir()))
	cmd.PersistentFlags().StringVar(&r.CfgFile, keyConfig, "", fmt.Sprintf("config file URL (default is $NEREUS_HOME/%s)", defaultConfigFile))
	cmd.PersistentFlags().StringVar(&r.LogCfgFile, flagNameLoggerCfgFile, defaultLoggerConfigFile, "logger config file URL. Considered absolute if starts with '/'. Otherwise relative from $NEREUS_HOME.")
}

func initializeConfig(cmd *cobra.Command, config *baseConfiguration) error {
	v := viper.New()

	config.initConfigFileLocation()
	if config.configFileExists() {
		v.SetConfigFile(config.CfgFile)
	}
	if err := v.ReadInConfig(); err != nil {
		// it's okay if there isn't a config file
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	if err := bindFlags(cmd, v); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	return config.initLogger()
}

// bindFlags overlays viper-resolved values (config file, NEREUS_* env vars)
// onto every cobra flag the user left unset on the command line. Flags with
// dashes get an explicit env alias since env var names use underscores,
// e.g. --chain-db is fed by NEREUS_CHAIN_DB.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		switch f.Name {
		case keyHome, keyConfig:
			// resolved before viper is even set up
			return
		}
		if strings.Contains(f.Name, "-") {
			alias := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindEnv(f.Name, alias); err != nil {
				errs = append(errs, fmt.Errorf("binding %s to flag %q: %w", alias, f.Name, err))
				return
			}
		}
		// command line wins; otherwise take whatever viper resolved
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
			errs = append(errs, fmt.Errorf("applying configured value to flag %q: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func (r *baseConfiguration) initConfigFileLocation() {
	// Home dir is loaded from command line argument. If it's not set, then
	// from env. If that's not set, then default is used.
	if r.HomeDir == "" {
		r.HomeDir = os.Getenv(envKey(keyHome))
		if r.HomeDir == "" {
			r.HomeDir = nereusHomeDir()
		}
	}
	if r.CfgFile == "" {
		r.CfgFile = os.Getenv(envKey(keyConfig))
		if r.CfgFile == "" {
			r.CfgFile = defaultConfigFile
		}
	}
	if !filepath.IsAbs(r.CfgFile) {
		r.CfgFile = filepath.Join(r.HomeDir, r.CfgFile)
	}
}

// initLogger reconfigures the global logger from the logger config file when
// one exists; the compiled-in defaults apply otherwise.
func (r *baseConfiguration) initLogger() error {
	cfgFile := r.LogCfgFile
	if !filepath.IsAbs(cfgFile) {
		cfgFile = filepath.Join(r.HomeDir, cfgFile)
	}
	if _, err := os.Stat(cfgFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("logger config file: %w", err)
	}
	return logger.UpdateGlobalConfigFromFile(cfgFile)
}

func (r *baseConfiguration) configFileExists() bool {
	_, err := os.Stat(r.CfgFile)
	return err == nil
}

func envKey(key string) string {
	return strings.ToUpper(envPrefix + "_" + key)
}

func nereusHomeDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		panic("default user home dir not defined: " + err.Error())
	}
	return filepath.Join(dir, defaultHomeDirName)
}
