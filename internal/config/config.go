package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/viper"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/common/fsutil"
	"github.com/deploymenttheory/go-flash-composer/internal/hexfile"
)

const (
	// AppName is the application name used for config files and directories
	AppName = "flash-composer"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "FLASH_COMPOSER"
)

// AppConfig holds the application configuration
type AppConfig struct {
	// Core settings
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Build settings
	Build struct {
		Strict      bool   `mapstructure:"strict"`
		Format      string `mapstructure:"format"` // hex, srec
		RecordWidth int    `mapstructure:"record_width"`
		OutputDir   string `mapstructure:"output_dir"`
		Split       bool   `mapstructure:"split"`    // one output file per block
		Compress    string `mapstructure:"compress"` // "", gzip, bzip2, xz
		Digest      string `mapstructure:"digest"`   // sha256, blake2b
		Parallelism int    `mapstructure:"parallelism"`
	} `mapstructure:"build"`

	// Data source settings
	Data struct {
		Versions []string `mapstructure:"versions"`
		JSON     string   `mapstructure:"json"`
		HTTP     string   `mapstructure:"http"`
	} `mapstructure:"data"`
}

// Global variables
var (
	// Global configuration instance
	Instance AppConfig

	// Status indicators
	ConfigLoaded bool
	ConfigFile   string

	// Viper instance
	v *viper.Viper

	// Ensure thread safety
	initOnce sync.Once
)

// Initialize sets up the global configuration once
func Initialize(cfgFile string) error {
	var err error

	initOnce.Do(func() {
		var cfg AppConfig
		v, cfg, err = Load(cfgFile)
		if err != nil {
			return
		}
		Instance = cfg
		ConfigFile = v.ConfigFileUsed()
		ConfigLoaded = ConfigFile != ""
	})

	return err
}

// Viper returns the global viper instance so commands can bind their flags.
func Viper() *viper.Viper {
	return v
}

// Reload re-reads the global instance, picking up bound flag values.
func Reload() error {
	if v == nil {
		return fmt.Errorf("%w: configuration not initialised", errs.ErrConfigInvalid)
	}
	cfg, err := unmarshal(v)
	if err != nil {
		return err
	}
	Instance = cfg
	return nil
}

// Load builds a viper instance from defaults, an optional config file and the
// environment, and decodes it. A missing config file is not an error unless
// cfgFile names one explicitly.
func Load(cfgFile string) (*viper.Viper, AppConfig, error) {
	nv := viper.New()
	setDefaults(nv)

	if cfgFile != "" {
		nv.SetConfigFile(cfgFile)
	} else {
		nv.SetConfigName(AppName)
		nv.SetConfigType("yaml")
		addSearchPaths(nv)
	}

	nv.SetEnvPrefix(EnvPrefix)
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	nv.AutomaticEnv()

	if err := nv.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, AppConfig{}, fmt.Errorf("%w: reading config file: %v", errs.ErrConfigParseError, err)
		}
	}

	cfg, err := unmarshal(nv)
	if err != nil {
		return nil, AppConfig{}, err
	}
	return nv, cfg, nil
}

func unmarshal(v *viper.Viper) (AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("%w: %v", errs.ErrConfigParseError, err)
	}
	// FLASH_COMPOSER_DATA_VERSIONS arrives as one string
	if len(cfg.Data.Versions) == 1 && strings.Contains(cfg.Data.Versions[0], "/") {
		cfg.Data.Versions = splitVersions(cfg.Data.Versions[0])
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate checks the option values that have a fixed set of choices.
func (c AppConfig) Validate() error {
	if _, err := hexfile.ParseFormat(c.Build.Format); err != nil {
		return fmt.Errorf("%w: build.format %q", errs.ErrConfigInvalid, c.Build.Format)
	}
	if c.Build.RecordWidth < 1 || c.Build.RecordWidth > hexfile.MaxRecordWidth {
		return fmt.Errorf("%w: build.record_width must be between 1 and %d", errs.ErrConfigInvalid, hexfile.MaxRecordWidth)
	}
	switch c.Build.Compress {
	case "", "gzip", "bzip2", "xz":
	default:
		return fmt.Errorf("%w: build.compress %q", errs.ErrConfigInvalid, c.Build.Compress)
	}
	switch c.Build.Digest {
	case "sha256", "blake2b":
	default:
		return fmt.Errorf("%w: build.digest %q", errs.ErrConfigInvalid, c.Build.Digest)
	}
	switch c.LogFormat {
	case "human", "json":
	default:
		return fmt.Errorf("%w: log_format %q", errs.ErrConfigInvalid, c.LogFormat)
	}
	if c.Build.Parallelism < 0 {
		return fmt.Errorf("%w: build.parallelism must not be negative", errs.ErrConfigInvalid)
	}
	return nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Core settings
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")
	v.SetDefault("log_file", "")

	// Build defaults
	v.SetDefault("build.strict", false)
	v.SetDefault("build.format", "hex")
	v.SetDefault("build.record_width", 32)
	v.SetDefault("build.output_dir", ".")
	v.SetDefault("build.split", false)
	v.SetDefault("build.compress", "")
	v.SetDefault("build.digest", "sha256")
	v.SetDefault("build.parallelism", 0)

	// Data source defaults
	v.SetDefault("data.versions", []string{})
	v.SetDefault("data.json", "")
	v.SetDefault("data.http", "")
}

// addSearchPaths adds config search paths
func addSearchPaths(v *viper.Viper) {
	// Always check current directory first
	v.AddConfigPath(".")

	// In CI/Pipeline, only use current directory and the system directory
	if isRunningInPipeline() {
		v.AddConfigPath(fsutil.GetSystemConfigDir(AppName))
		return
	}

	if configDir, err := fsutil.GetConfigDir(AppName); err == nil {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath(fsutil.GetSystemConfigDir(AppName))
}

func splitVersions(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "/") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// isRunningInPipeline returns true if running in a CI/CD pipeline environment
func isRunningInPipeline() bool {
	return os.Getenv("CI") == "true" ||
		os.Getenv("PIPELINE") == "true" ||
		os.Getenv("GITHUB_ACTIONS") == "true" ||
		os.Getenv("JENKINS_URL") != ""
}
