package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ServerConfig defines the server configuration.
type ServerConfig struct {
	Port      int    `yaml:"port" mapstructure:"port"`
	StaticDir string `yaml:"static_dir" mapstructure:"static_dir"`
}

// OllamaConfig defines the Ollama configuration.
type OllamaConfig struct {
	Host            string `yaml:"host" mapstructure:"host"`
	Model           string `yaml:"model" mapstructure:"model"`
	MaxPromptLength int    `yaml:"max_prompt_length" mapstructure:"max_prompt_length"`
}

// SourcesConfig points at the register exports the dashboard is computed from.
type SourcesConfig struct {
	BaseActive string `yaml:"base_active" mapstructure:"base_active"`
	News       string `yaml:"news" mapstructure:"news"`
	// CompanyContext is a plain text file describing the site, injected in LLM prompts.
	CompanyContext string `yaml:"company_context" mapstructure:"company_context"`
}

// OutputConfig defines where the generated artifacts are written.
type OutputConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	JSVariable string `yaml:"js_variable" mapstructure:"js_variable"`
}

// DashboardConfig drives the aggregation.
type DashboardConfig struct {
	KPISchema   string `yaml:"kpi_schema" mapstructure:"kpi_schema"`
	TopThemes   int    `yaml:"top_themes" mapstructure:"top_themes"`
	CleanThemes bool   `yaml:"clean_themes" mapstructure:"clean_themes"`
	AutoSource  string `yaml:"auto_source" mapstructure:"auto_source"`
	ReevalYears int    `yaml:"reeval_years" mapstructure:"reeval_years"`
	Actor       string `yaml:"actor" mapstructure:"actor"`
}

// StoreConfig defines the snapshot history database.
type StoreConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`
	Retain int    `yaml:"retain" mapstructure:"retain"`
}

// WatchConfig defines the register watcher used by the server.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// LoggingConfig defines the logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	Output     string `yaml:"output" mapstructure:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// Config is the top-level configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Ollama    OllamaConfig    `yaml:"ollama" mapstructure:"ollama"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Watch     WatchConfig     `yaml:"watch" mapstructure:"watch"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// AppConfig holds the loaded configuration.
var AppConfig *Config

// EnvPrefix prefixes every environment override, e.g. VEILLE_SERVER_PORT.
const EnvPrefix = "VEILLE"

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "config.yaml"

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 5000, StaticDir: ""},
		Ollama: OllamaConfig{
			Host:            "http://127.0.0.1:11434",
			Model:           "gemma3:latest",
			MaxPromptLength: 7500,
		},
		Sources: SourcesConfig{
			BaseActive: filepath.Join("data", "base_active.csv"),
			News:       filepath.Join("data", "rapport_veille_auto.csv"),
		},
		Output: OutputConfig{Dir: "output", JSVariable: "DASHBOARD_DATA"},
		Dashboard: DashboardConfig{
			KPISchema:   "v2",
			TopThemes:   12,
			CleanThemes: true,
			AutoSource:  "Veille Auto",
			ReevalYears: 3,
			Actor:       "veilleboard",
		},
		Store: StoreConfig{Path: filepath.Join("data", "veille.db"), Retain: 90},
		Watch: WatchConfig{Enabled: false, Debounce: 2 * time.Second},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.static_dir", d.Server.StaticDir)
	v.SetDefault("ollama.host", d.Ollama.Host)
	v.SetDefault("ollama.model", d.Ollama.Model)
	v.SetDefault("ollama.max_prompt_length", d.Ollama.MaxPromptLength)
	v.SetDefault("sources.base_active", d.Sources.BaseActive)
	v.SetDefault("sources.news", d.Sources.News)
	v.SetDefault("sources.company_context", d.Sources.CompanyContext)
	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.js_variable", d.Output.JSVariable)
	v.SetDefault("dashboard.kpi_schema", d.Dashboard.KPISchema)
	v.SetDefault("dashboard.top_themes", d.Dashboard.TopThemes)
	v.SetDefault("dashboard.clean_themes", d.Dashboard.CleanThemes)
	v.SetDefault("dashboard.auto_source", d.Dashboard.AutoSource)
	v.SetDefault("dashboard.reeval_years", d.Dashboard.ReevalYears)
	v.SetDefault("dashboard.actor", d.Dashboard.Actor)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.retain", d.Store.Retain)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.compress", d.Logging.Compress)
}

// LoadConfig loads the configuration and publishes it as AppConfig.
// An empty path means "config.yaml" in the working directory, which may be absent.
// Environment variables prefixed with VEILLE_ override file values.
func LoadConfig(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Load reads the configuration without touching AppConfig.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			if explicit {
				return nil, fmt.Errorf("could not read config file at %s: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("could not parse config file at %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode configuration: %w", err)
	}
	return &cfg, nil
}

// WriteDefault writes the default configuration as YAML to path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("could not create %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
