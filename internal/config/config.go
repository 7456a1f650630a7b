package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chalkboard/interp/internal/environment"
)

const (
	// DirName is the per-user and per-project configuration directory.
	DirName = ".interp"
	// FileName is the configuration file inside DirName.
	FileName = "config.toml"

	defaultExecutable       = "octave-cli"
	defaultMarker           = "[[INTERP_ARTIFACT]]"
	defaultEchoPrompt       = "octave:> "
	defaultHistoryLimit     = 50
	defaultHistoryFile      = "history.yaml"
	defaultTranscriptLimit  = 1000
	defaultRestartDelay     = time.Second
	defaultStopGrace        = 3 * time.Second
	defaultKillWait         = 2 * time.Second
	defaultStartupProbe     = 150 * time.Millisecond
	defaultArtifactCacheTTL = 5 * time.Minute
	defaultArtifactMaxBytes = 16 * 1024 * 1024
	defaultLogLevel         = "info"
)

var defaultArgs = []string{"--no-gui", "--quiet", "--interactive", "--no-line-editing"}

// Config stores runtime settings loaded from TOML files.
type Config struct {
	Executable string
	InstallDir string
	Args       []string
	WorkingDir string
	PluginDir  string
	Env        map[string]string
	TempDir    string

	Marker         string
	EchoPrompt     string
	PlotKeywords   []string
	PromptPatterns []string

	HistoryLimit    int
	HistoryFile     string
	TranscriptLimit int

	RestartDelay time.Duration
	StopGrace    time.Duration
	KillWait     time.Duration
	StartupProbe time.Duration

	ArtifactCacheTTL time.Duration
	ArtifactMaxBytes int64

	LogLevel     string
	OTLPEndpoint string

	// Sources lists the files that contributed to this config, in overlay order.
	Sources []string
}

type fileConfig struct {
	Executable *string           `toml:"executable"`
	InstallDir *string           `toml:"install_dir"`
	Args       *[]string         `toml:"args"`
	WorkingDir *string           `toml:"working_dir"`
	PluginDir  *string           `toml:"plugin_dir"`
	Env        map[string]string `toml:"env"`
	TempDir    *string           `toml:"temp_dir"`

	Marker         *string   `toml:"marker"`
	EchoPrompt     *string   `toml:"echo_prompt"`
	PlotKeywords   *[]string `toml:"plot_keywords"`
	PromptPatterns *[]string `toml:"prompt_patterns"`

	HistoryLimit    *int    `toml:"history_limit"`
	HistoryFile     *string `toml:"history_file"`
	TranscriptLimit *int    `toml:"transcript_limit"`

	RestartDelay *string `toml:"restart_delay"`
	StopGrace    *string `toml:"stop_grace"`
	KillWait     *string `toml:"kill_wait"`
	StartupProbe *string `toml:"startup_probe"`

	ArtifactCacheTTL *string `toml:"artifact_cache_ttl"`
	ArtifactMaxBytes *int64  `toml:"artifact_max_bytes"`

	LogLevel     *string `toml:"log_level"`
	OTLPEndpoint *string `toml:"otlp_endpoint"`
}

// Paths returns the config files Load reads: ~/.interp/config.toml, then ./.interp/config.toml.
func Paths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	return []string{
		filepath.Join(homeDir, DirName, FileName),
		filepath.Join(workingDir, DirName, FileName),
	}, nil
}

// Load reads config from ~/.interp/config.toml and overlays a project-local .interp/config.toml.
func Load(ctx context.Context) (*Config, error) {
	paths, err := Paths()
	if err != nil {
		return nil, err
	}
	return LoadFiles(ctx, paths...)
}

// LoadFiles applies defaults and overlays each existing file in order. Missing files are skipped.
func LoadFiles(ctx context.Context, paths ...string) (*Config, error) {
	cfg := Defaults()
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}
	if cfg.HistoryFile == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			cfg.HistoryFile = filepath.Join(homeDir, DirName, defaultHistoryFile)
		}
	}
	return &cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Executable:       defaultExecutable,
		Args:             append([]string(nil), defaultArgs...),
		Env:              map[string]string{},
		Marker:           defaultMarker,
		EchoPrompt:       defaultEchoPrompt,
		HistoryLimit:     defaultHistoryLimit,
		TranscriptLimit:  defaultTranscriptLimit,
		RestartDelay:     defaultRestartDelay,
		StopGrace:        defaultStopGrace,
		KillWait:         defaultKillWait,
		StartupProbe:     defaultStartupProbe,
		ArtifactCacheTTL: defaultArtifactCacheTTL,
		ArtifactMaxBytes: defaultArtifactMaxBytes,
		LogLevel:         defaultLogLevel,
	}
}

// LaunchSettings converts the interpreter keys into environment builder settings.
func (c *Config) LaunchSettings() environment.Settings {
	env := make(map[string]string, len(c.Env))
	for key, value := range c.Env {
		env[key] = value
	}
	return environment.Settings{
		Executable: c.Executable,
		InstallDir: c.InstallDir,
		Args:       append([]string(nil), c.Args...),
		WorkingDir: c.WorkingDir,
		PluginDir:  c.PluginDir,
		Env:        env,
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	meta, err := toml.DecodeFile(path, &decoded)
	if err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("parse %s in %q: unsupported key", undecoded[0].String(), path)
	}

	applyLaunchOverrides(cfg, decoded)
	if err := applyProtocolOverrides(cfg, decoded, path); err != nil {
		return err
	}
	if err := applyLimitOverrides(cfg, decoded, path); err != nil {
		return err
	}
	if err := applyDurationOverrides(cfg, decoded, path); err != nil {
		return err
	}
	if err := applyObservabilityOverrides(cfg, decoded, path); err != nil {
		return err
	}

	cfg.Sources = append(cfg.Sources, path)
	return nil
}

func applyLaunchOverrides(cfg *Config, decoded fileConfig) {
	if decoded.Executable != nil {
		cfg.Executable = strings.TrimSpace(*decoded.Executable)
	}
	if decoded.InstallDir != nil {
		cfg.InstallDir = expandHome(*decoded.InstallDir)
	}
	if decoded.Args != nil {
		cfg.Args = append([]string(nil), (*decoded.Args)...)
	}
	if decoded.WorkingDir != nil {
		cfg.WorkingDir = expandHome(*decoded.WorkingDir)
	}
	if decoded.PluginDir != nil {
		cfg.PluginDir = expandHome(*decoded.PluginDir)
	}
	if decoded.TempDir != nil {
		cfg.TempDir = expandHome(*decoded.TempDir)
	}
	if cfg.Env == nil {
		cfg.Env = map[string]string{}
	}
	for key, value := range decoded.Env {
		cfg.Env[key] = value
	}
}

func applyProtocolOverrides(cfg *Config, decoded fileConfig, path string) error {
	if decoded.Marker != nil {
		marker := strings.TrimSpace(*decoded.Marker)
		if marker == "" || strings.ContainsAny(marker, "\r\n") {
			return fmt.Errorf("parse marker in %q: must be a non-empty single line", path)
		}
		cfg.Marker = marker
	}
	if decoded.EchoPrompt != nil {
		cfg.EchoPrompt = *decoded.EchoPrompt
	}
	if decoded.PlotKeywords != nil {
		keywords := make([]string, 0, len(*decoded.PlotKeywords))
		for _, keyword := range *decoded.PlotKeywords {
			if keyword = strings.TrimSpace(keyword); keyword != "" {
				keywords = append(keywords, keyword)
			}
		}
		cfg.PlotKeywords = keywords
	}
	if decoded.PromptPatterns != nil {
		for _, pattern := range *decoded.PromptPatterns {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("parse prompt_patterns in %q: %w", path, err)
			}
		}
		cfg.PromptPatterns = append([]string(nil), (*decoded.PromptPatterns)...)
	}
	return nil
}

func applyLimitOverrides(cfg *Config, decoded fileConfig, path string) error {
	if decoded.HistoryLimit != nil {
		if *decoded.HistoryLimit <= 0 {
			return fmt.Errorf("parse history_limit in %q: must be > 0", path)
		}
		cfg.HistoryLimit = *decoded.HistoryLimit
	}
	if decoded.HistoryFile != nil {
		cfg.HistoryFile = expandHome(*decoded.HistoryFile)
	}
	if decoded.TranscriptLimit != nil {
		if *decoded.TranscriptLimit <= 0 {
			return fmt.Errorf("parse transcript_limit in %q: must be > 0", path)
		}
		cfg.TranscriptLimit = *decoded.TranscriptLimit
	}
	if decoded.ArtifactMaxBytes != nil {
		if *decoded.ArtifactMaxBytes <= 0 {
			return fmt.Errorf("parse artifact_max_bytes in %q: must be > 0", path)
		}
		cfg.ArtifactMaxBytes = *decoded.ArtifactMaxBytes
	}
	return nil
}

func applyDurationOverrides(cfg *Config, decoded fileConfig, path string) error {
	durations := []struct {
		key    string
		value  *string
		target *time.Duration
	}{
		{"restart_delay", decoded.RestartDelay, &cfg.RestartDelay},
		{"stop_grace", decoded.StopGrace, &cfg.StopGrace},
		{"kill_wait", decoded.KillWait, &cfg.KillWait},
		{"startup_probe", decoded.StartupProbe, &cfg.StartupProbe},
		{"artifact_cache_ttl", decoded.ArtifactCacheTTL, &cfg.ArtifactCacheTTL},
	}
	for _, entry := range durations {
		if entry.value == nil {
			continue
		}
		parsed, err := parseDuration(*entry.value, entry.key, path)
		if err != nil {
			return err
		}
		*entry.target = parsed
	}
	return nil
}

func applyObservabilityOverrides(cfg *Config, decoded fileConfig, path string) error {
	if decoded.LogLevel != nil {
		level := strings.ToLower(strings.TrimSpace(*decoded.LogLevel))
		switch level {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = level
		default:
			return fmt.Errorf("parse log_level in %q: unsupported level %q", path, *decoded.LogLevel)
		}
	}
	if decoded.OTLPEndpoint != nil {
		cfg.OTLPEndpoint = strings.TrimSpace(*decoded.OTLPEndpoint)
	}
	return nil
}

func parseDuration(value, key, path string) (time.Duration, error) {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s in %q: %w", key, path, err)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("parse %s in %q: must be >= 0", key, path)
	}
	return parsed, nil
}

func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}
