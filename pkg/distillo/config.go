// Package distillo wires the cocktail robot: the ESP board, the speech
// services, the agent backend and the mixing workflow.
package distillo

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-distillo/internal/config"
	"github.com/teslashibe/go-distillo/pkg/esp"
	"github.com/teslashibe/go-distillo/pkg/inference"
	"github.com/teslashibe/go-distillo/pkg/mixing"
)

// Default service configuration.
const (
	DefaultSTTAddr     = "localhost:1234"
	DefaultSTTRate     = 16000
	DefaultTTSAddr     = "localhost:2345"
	DefaultTTSRate     = 22500
	DefaultSpeakerGain = 0.5
	DefaultMargin      = 5.0
)

// Config holds all configuration for the robot.
// Flag parsing is done in cmd/distillo; this struct is data only.
type Config struct {
	// Debug logs every recognized sentence.
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`

	ESP    ESPConfig     `yaml:"esp"`
	STT    ServiceConfig `yaml:"stt"`
	TTS    ServiceConfig `yaml:"tts"`
	Agent  AgentConfig   `yaml:"agent"`
	Mixing MixingConfig  `yaml:"mixing"`

	// WebAddr is the status API listen address. Empty disables it.
	WebAddr string `yaml:"web_addr"`

	// HistoryPath is the mix history file. Empty uses ~/.distillo/history.json.
	HistoryPath string `yaml:"history_path"`
}

// ESPConfig describes the board.
type ESPConfig struct {
	Host        string `yaml:"host"`
	AudioPort   int    `yaml:"audio_port"`
	ControlPort int    `yaml:"control_port"`

	// MicRate and SpeakerRate are the board's PCM rates. Audio is resampled
	// when they differ from the speech services.
	MicRate     int `yaml:"mic_rate"`
	SpeakerRate int `yaml:"speaker_rate"`

	MicGain     float64 `yaml:"mic_gain"`
	SpeakerGain float64 `yaml:"speaker_gain"`

	// Stability window and tolerance of the scale.
	Window    int     `yaml:"window"`
	Tolerance float64 `yaml:"tolerance"`

	// Margin is how far off the pour target, in grams, counts as surpassed
	// or not reached yet.
	Margin float64 `yaml:"margin"`
}

// ServiceConfig describes a speech service.
type ServiceConfig struct {
	Addr       string `yaml:"addr"`
	SampleRate int    `yaml:"sample_rate"`
}

// AgentConfig selects the inference backend.
type AgentConfig struct {
	// Provider is "openai" (SDK) or "compatible" (any OpenAI-compatible
	// HTTP server such as Ollama).
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"-"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	// FallbackURL and FallbackModel add an OpenAI-compatible backend that
	// is tried when the primary fails.
	FallbackURL   string `yaml:"fallback_url"`
	FallbackModel string `yaml:"fallback_model"`

	// PromptDir holds <MODE>/system_prompt.md overrides.
	PromptDir string `yaml:"prompt_dir"`
}

// MixingConfig tunes the workflow.
type MixingConfig struct {
	Attempts       int           `yaml:"attempts"`
	EmissionSlack  time.Duration `yaml:"emission_slack"`
	InterruptWords []string      `yaml:"interrupt_words"`
}

// DefaultConfig returns the defaults of the bar setup.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		ESP: ESPConfig{
			Host:        config.DefaultEspHost,
			AudioPort:   config.DefaultEspAudioPort,
			ControlPort: config.DefaultEspCtrlPort,
			MicRate:     DefaultSTTRate,
			SpeakerRate: DefaultTTSRate,
			MicGain:     1.0,
			SpeakerGain: DefaultSpeakerGain,
			Window:      esp.DefaultWindow,
			Tolerance:   esp.DefaultTolerance,
			Margin:      DefaultMargin,
		},
		STT: ServiceConfig{Addr: DefaultSTTAddr, SampleRate: DefaultSTTRate},
		TTS: ServiceConfig{Addr: DefaultTTSAddr, SampleRate: DefaultTTSRate},
		Agent: AgentConfig{
			Provider:  "openai",
			Model:     inference.DefaultModel,
			PromptDir: "resources/llm",
		},
		Mixing: MixingConfig{
			Attempts:       3,
			EmissionSlack:  500 * time.Millisecond,
			InterruptWords: mixing.DefaultInterruptWords,
		},
	}
}

// LoadFile reads a YAML config file over c. Fields missing from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("distillo: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("distillo: parse config %s: %w", path, err)
	}
	return nil
}

// LoadEnvConfig applies environment overrides.
// Call this after flag parsing and LoadFile.
func (c *Config) LoadEnvConfig() {
	c.ESP.Host = config.EspHost(c.ESP.Host)
	c.STT.Addr = config.String("STT_ADDR", c.STT.Addr)
	c.TTS.Addr = config.String("TTS_ADDR", c.TTS.Addr)
	c.Agent.APIKey = config.String("OPENAI_API_KEY", c.Agent.APIKey)
	c.Agent.BaseURL = config.String("OPENAI_BASE_URL", c.Agent.BaseURL)
	c.Agent.Model = config.String("DISTILLO_MODEL", c.Agent.Model)
	c.Agent.PromptDir = config.String("DISTILLO_PROMPTS", c.Agent.PromptDir)
	c.WebAddr = config.String("DISTILLO_WEB_ADDR", c.WebAddr)
	c.HistoryPath = config.String("DISTILLO_HISTORY", c.HistoryPath)
	c.ESP.MicGain = config.Float("DISTILLO_MIC_GAIN", c.ESP.MicGain)
	c.ESP.SpeakerGain = config.Float("DISTILLO_SPEAKER_GAIN", c.ESP.SpeakerGain)
	c.Mixing.EmissionSlack = config.Duration("DISTILLO_EMISSION_SLACK", c.Mixing.EmissionSlack)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.ESP.Host == "" {
		errs = append(errs, &ConfigError{Field: "esp.host", Message: "ESP host is required"})
	}
	if c.STT.Addr == "" || c.TTS.Addr == "" {
		errs = append(errs, &ConfigError{Field: "stt/tts", Message: "speech service addresses are required"})
	}
	for _, r := range []int{c.ESP.MicRate, c.ESP.SpeakerRate, c.STT.SampleRate, c.TTS.SampleRate} {
		if r <= 0 {
			errs = append(errs, &ConfigError{Field: "sample_rate", Message: "sample rates must be positive"})
			break
		}
	}
	switch c.Agent.Provider {
	case "openai":
		if c.Agent.APIKey == "" {
			errs = append(errs, &ConfigError{Field: "agent.api_key", Message: "OPENAI_API_KEY environment variable is required"})
		}
	case "compatible":
		if c.Agent.BaseURL == "" {
			errs = append(errs, &ConfigError{Field: "agent.base_url", Message: "a base URL is required for the compatible provider"})
		}
	default:
		errs = append(errs, &ConfigError{Field: "agent.provider", Message: fmt.Sprintf("unknown provider %q", c.Agent.Provider)})
	}
	if c.Mixing.Attempts < 1 {
		errs = append(errs, &ConfigError{Field: "mixing.attempts", Message: "at least one dispatch attempt is required"})
	}
	return errors.Join(errs...)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
