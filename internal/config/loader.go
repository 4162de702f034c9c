package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "glean"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "GLEAN"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoaderWithViper returns a loader on v. Flags bound to v take part in
// resolution.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the first glean config file found in the search paths (if any),
// applies environment variables and defaults, and validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithFile is Load with an explicit config file. An empty path searches.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.read(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithoutValidation is LoadWithFile without the final validation, for
// commands that display configuration.
func (l *Loader) LoadWithoutValidation(configFile string) (*Config, error) {
	return l.read(configFile)
}

func (l *Loader) read(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the config file read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Viper returns the underlying viper instance.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// GLEAN_PLATE_FILTER_CONFIDENCE_THRESHOLD -> plate.filter.confidence_threshold
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("models_dir", d.ModelsDir)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)
	l.v.SetDefault("onnxruntime_lib", d.OnnxRuntimeLib)
	l.v.SetDefault("metrics_file", d.MetricsFile)

	l.v.SetDefault("ocr.language", d.OCR.Language)
	l.v.SetDefault("ocr.tessdata_prefix", d.OCR.TessdataPrefix)
	l.v.SetDefault("ocr.whitelist", d.OCR.Whitelist)
	l.v.SetDefault("ocr.pool_size", d.OCR.PoolSize)

	l.v.SetDefault("pipeline.workers", d.Pipeline.Workers)
	l.v.SetDefault("pipeline.skip_failed_regions", d.Pipeline.SkipFailedRegions)

	l.setDomainDefaults("plate", d.Plate)
	l.setDomainDefaults("message", d.Message)

	l.v.SetDefault("generic.paragraph", d.Generic.Paragraph)
	l.v.SetDefault("generic.tolerance_divisor", d.Generic.ToleranceDivisor)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.file", d.Output.File)
	l.v.SetDefault("output.overlay_dir", d.Output.OverlayDir)

	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.continue_on_error", d.Batch.ContinueOnError)

	l.v.SetDefault("gpu.enabled", d.GPU.UseGPU)
	l.v.SetDefault("gpu.device_id", d.GPU.DeviceID)
	l.v.SetDefault("gpu.memory_limit", d.GPU.MemoryLimit)
	l.v.SetDefault("gpu.arena_extend_strategy", d.GPU.ArenaExtendStrategy)
	l.v.SetDefault("gpu.cudnn_conv_algo_search", d.GPU.CUDNNConvAlgoSearch)
}

func (l *Loader) setDomainDefaults(prefix string, d DomainConfig) {
	l.v.SetDefault(prefix+".model_path", d.ModelPath)
	l.v.SetDefault(prefix+".layout", d.Layout)
	l.v.SetDefault(prefix+".input_size", d.InputSize)
	l.v.SetDefault(prefix+".class_names", d.ClassNames)
	l.v.SetDefault(prefix+".score_floor", d.ScoreFloor)
	l.v.SetDefault(prefix+".num_threads", d.NumThreads)
	l.v.SetDefault(prefix+".filter.confidence_threshold", d.Filter.ConfidenceThreshold)
	l.v.SetDefault(prefix+".filter.class_score_threshold", d.Filter.ClassScoreThreshold)
	l.v.SetDefault(prefix+".filter.nms_iou_threshold", d.Filter.NMSIoUThreshold)
	l.v.SetDefault(prefix+".filter.nms_score_threshold", d.Filter.NMSScoreThreshold)
	l.v.SetDefault(prefix+".join", d.Join)
	l.v.SetDefault(prefix+".scale", d.Scale)
	l.v.SetDefault(prefix+".tolerance_divisor", d.ToleranceDivisor)
	if len(d.Classes) > 0 {
		l.v.SetDefault(prefix+".classes", d.Classes)
	}
}

// GenerateDefaultConfigFile writes DefaultConfig as YAML to filename,
// refusing to overwrite an existing file unless force is set.
func GenerateDefaultConfigFile(filename string, force bool) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	if !force {
		if _, err := os.Stat(filename); err == nil {
			return fmt.Errorf("config file already exists: %s", filename)
		}
	}
	data, err := MarshalYAML(DefaultConfig())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	return os.WriteFile(filename, data, 0o600)
}

// MarshalYAML renders cfg the way config files are written.
func MarshalYAML(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// GetConfigSearchPaths returns the directories searched for glean.yaml, in order.
func GetConfigSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && configDir != "" {
		paths = append(paths, filepath.Join(configDir, "glean"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "glean"))
	}
	return append(paths, "/etc/glean")
}
