package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type (
	// GlobalConfig carries settings shared by all loggers created by the factory.
	// When passed to UpdateGlobalConfig, a nil Writer or nil PackageLevels
	// leaves the current setting unchanged; DefaultLevel and ConsoleFormat are
	// always applied.
	GlobalConfig struct {
		DefaultLevel  LogLevel
		PackageLevels map[string]LogLevel
		Writer        io.Writer
		ConsoleFormat bool
	}

	globalFactory struct {
		sync.Mutex
		config  GlobalConfig
		loggers map[string]*contextLogger
		root    zerolog.Logger
	}
)

var globalFactoryImpl *globalFactory

func init() {
	globalFactoryImpl = &globalFactory{
		loggers: make(map[string]*contextLogger),
		config: GlobalConfig{
			DefaultLevel:  INFO,
			PackageLevels: map[string]LogLevel{},
			Writer:        os.Stderr,
			ConsoleFormat: true,
		},
	}
	globalFactoryImpl.rebuildRoot()
}

// CreateForPackage creates a logger named after the caller package.
func CreateForPackage() Logger {
	return Create(callerPackageName())
}

// Create creates a named logger. Loggers are cached by name: creating a logger
// with a name already in use returns that same logger.
func Create(name string) Logger {
	return globalFactoryImpl.create(name)
}

// UpdateGlobalConfig updates the global configuration and reconfigures all
// existing loggers accordingly.
func UpdateGlobalConfig(config GlobalConfig) {
	globalFactoryImpl.Lock()
	defer globalFactoryImpl.Unlock()

	if config.Writer != nil {
		globalFactoryImpl.config.Writer = config.Writer
	}
	globalFactoryImpl.config.DefaultLevel = config.DefaultLevel
	if config.PackageLevels != nil {
		globalFactoryImpl.config.PackageLevels = config.PackageLevels
	}
	globalFactoryImpl.config.ConsoleFormat = config.ConsoleFormat
	globalFactoryImpl.rebuildRoot()
	for name, l := range globalFactoryImpl.loggers {
		l.update(globalFactoryImpl.root, globalFactoryImpl.levelFor(name))
	}
}

// UpdateGlobalConfigFromFile reads the file and parses it as YAML. The global
// logger configuration is updated accordingly; on error nothing is changed.
func UpdateGlobalConfigFromFile(fileName string) error {
	conf, err := loadGlobalConfigFromFile(fileName)
	if err != nil {
		return err
	}
	UpdateGlobalConfig(conf)
	return nil
}

func loadGlobalConfigFromFile(fileName string) (GlobalConfig, error) {
	type loggerConfiguration struct {
		DefaultLevel  string            `yaml:"defaultLevel"`
		PackageLevels map[string]string `yaml:"packageLevels"`
		OutputPath    string            `yaml:"outputPath"`
		ConsoleFormat bool              `yaml:"consoleFormat"`
	}

	yamlFile, err := os.ReadFile(filepath.Clean(fileName))
	if err != nil {
		return GlobalConfig{}, fmt.Errorf("failed to read logger config file: %w", err)
	}
	config := &loggerConfiguration{}
	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return GlobalConfig{}, fmt.Errorf("failed to unmarshal logger config: %w", err)
	}

	globalConfig := GlobalConfig{
		DefaultLevel:  LevelFromString(config.DefaultLevel),
		PackageLevels: make(map[string]LogLevel),
		Writer:        os.Stderr,
		ConsoleFormat: config.ConsoleFormat,
	}
	if config.OutputPath != "" {
		file, err := os.OpenFile(config.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // -rw-------
		if err != nil {
			return GlobalConfig{}, fmt.Errorf("failed to open log file: %w", err)
		}
		globalConfig.Writer = file
	}
	for k, v := range config.PackageLevels {
		globalConfig.PackageLevels[k] = LevelFromString(v)
	}
	return globalConfig, nil
}

func (gf *globalFactory) create(name string) Logger {
	gf.Lock()
	defer gf.Unlock()

	if l, ok := gf.loggers[name]; ok {
		return l
	}
	l := newContextLogger(gf.root, name, gf.levelFor(name))
	gf.loggers[name] = l
	return l
}

func (gf *globalFactory) levelFor(name string) LogLevel {
	if lvl, ok := gf.config.PackageLevels[name]; ok {
		return lvl
	}
	return gf.config.DefaultLevel
}

func (gf *globalFactory) rebuildRoot() {
	w := gf.config.Writer
	if gf.config.ConsoleFormat {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000000"}
	}
	gf.root = zerolog.New(w).With().Timestamp().Logger()
}
