package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Service struct {
	URL     string `yaml:"url" mapstructure:"url"`
	Timeout int    `yaml:"timeout_sec" mapstructure:"timeout_sec"`
}
type Services struct {
	Emotion Service `yaml:"emotion" mapstructure:"emotion"`
}
type Audio struct {
	SampleRate  int    `yaml:"sample_rate" mapstructure:"sample_rate"`
	Channels    int    `yaml:"channels" mapstructure:"channels"`
	DurationSec int    `yaml:"duration_sec" mapstructure:"duration_sec"`
	OutputPath  string `yaml:"output_path" mapstructure:"output_path"`
	Format      string `yaml:"format" mapstructure:"format"`
	Device      string `yaml:"device" mapstructure:"device"`
}
type Video struct {
	Format         string `yaml:"format" mapstructure:"format"`
	Device         string `yaml:"device" mapstructure:"device"`
	FPS            int    `yaml:"fps" mapstructure:"fps"`
	Width          int    `yaml:"width" mapstructure:"width"`
	Height         int    `yaml:"height" mapstructure:"height"`
	OpenTimeoutSec int    `yaml:"open_timeout_sec" mapstructure:"open_timeout_sec"`
}
type Classifier struct {
	Backend     string `yaml:"backend" mapstructure:"backend"` // http | onnx
	ModelPath   string `yaml:"model_path" mapstructure:"model_path"`
	LibraryPath string `yaml:"library_path" mapstructure:"library_path"`
	InputName   string `yaml:"input_name" mapstructure:"input_name"`
	OutputName  string `yaml:"output_name" mapstructure:"output_name"`
}
type Session struct {
	TimeoutSec int `yaml:"timeout_sec" mapstructure:"timeout_sec"`
}
type Server struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}
type History struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}
type Root struct {
	App struct {
		Name      string `yaml:"name" mapstructure:"name"`
		Version   string `yaml:"version" mapstructure:"version"`
		LogLvl    string `yaml:"log_level" mapstructure:"log_level"`
		LogFormat string `yaml:"log_format" mapstructure:"log_format"`
	} `yaml:"app" mapstructure:"app"`
	Audio      Audio      `yaml:"audio" mapstructure:"audio"`
	Video      Video      `yaml:"video" mapstructure:"video"`
	Services   Services   `yaml:"services" mapstructure:"services"`
	Classifier Classifier `yaml:"classifier" mapstructure:"classifier"`
	Session    Session    `yaml:"session" mapstructure:"session"`
	Server     Server     `yaml:"server" mapstructure:"server"`
	History    History    `yaml:"history" mapstructure:"history"`
	Paths      struct {
		Outputs string `yaml:"outputs" mapstructure:"outputs"`
	} `yaml:"paths" mapstructure:"paths"`
}

const EnvPrefix = "TRUTH"

func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "truth-detector")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "text")

	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.duration_sec", 5)
	v.SetDefault("audio.output_path", "voice_recording.wav")
	v.SetDefault("audio.format", "alsa")
	v.SetDefault("audio.device", "default")

	v.SetDefault("video.format", "v4l2")
	v.SetDefault("video.device", "/dev/video0")
	v.SetDefault("video.fps", 30)
	v.SetDefault("video.width", 640)
	v.SetDefault("video.height", 480)
	v.SetDefault("video.open_timeout_sec", 5)

	v.SetDefault("services.emotion.url", "http://localhost:5005")
	v.SetDefault("services.emotion.timeout_sec", 60)

	v.SetDefault("classifier.backend", "http")
	v.SetDefault("classifier.model_path", "models/emotion-ferplus-8.onnx")
	v.SetDefault("classifier.library_path", "")
	v.SetDefault("classifier.input_name", "Input3")
	v.SetDefault("classifier.output_name", "Plus692_Output_0")

	v.SetDefault("session.timeout_sec", 60)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "truth-detector.db")
	v.SetDefault("paths.outputs", "")
}

// Load reads .env (optional), then the config file, then TRUTH_* env vars.
// An empty path falls back to config/<CONFIG_ENV>/config.yaml and ./config.yaml;
// when neither exists only defaults apply.
func Load(path string) (*Root, error) {
	return LoadWith(viper.New(), path)
}

func LoadWith(v *viper.Viper, path string) (*Root, error) {
	_ = godotenv.Load()

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = guess()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func guess() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	for _, p := range []string{
		filepath.Join("config", env, "config.yaml"),
		"config.yaml",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var ErrInvalid = errors.New("invalid config")

func (c *Root) Validate() error {
	var errs []error
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Audio.DurationSec <= 0 {
		errs = append(errs, fmt.Errorf("audio.duration_sec must be positive, got %d", c.Audio.DurationSec))
	}
	if c.Audio.Channels != 1 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1, got %d", c.Audio.Channels))
	}
	if c.Audio.OutputPath == "" {
		errs = append(errs, errors.New("audio.output_path is empty"))
	}
	if c.Video.FPS <= 0 {
		errs = append(errs, fmt.Errorf("video.fps must be positive, got %d", c.Video.FPS))
	}
	if c.Session.TimeoutSec <= 0 {
		errs = append(errs, fmt.Errorf("session.timeout_sec must be positive, got %d", c.Session.TimeoutSec))
	}
	switch c.Classifier.Backend {
	case "http":
		if c.Services.Emotion.URL == "" {
			errs = append(errs, errors.New("services.emotion.url is required for the http backend"))
		}
	case "onnx":
		if c.Classifier.ModelPath == "" {
			errs = append(errs, errors.New("classifier.model_path is required for the onnx backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown classifier.backend %q", c.Classifier.Backend))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func (c *Root) YAML() ([]byte, error) { return yaml.Marshal(c) }

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Root) RecordDuration() time.Duration { return DurSeconds(c.Audio.DurationSec) }
func (c *Root) SessionTimeout() time.Duration { return DurSeconds(c.Session.TimeoutSec) }
func (c *Root) FrameInterval() time.Duration  { return time.Second / time.Duration(c.Video.FPS) }
