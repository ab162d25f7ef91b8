package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"contentgate/internal/bootstrap/logging"
	"contentgate/internal/domain/quality"
	"contentgate/internal/errs"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Sweeps   SweepsConfig   `mapstructure:"sweeps"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Server   ServerConfig   `mapstructure:"server"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// EngineConfig seeds the first engine config version when the store has none.
type EngineConfig struct {
	Thresholds quality.Thresholds `mapstructure:"thresholds"`
	Weights    map[string]float64 `mapstructure:"weights"`
	Ceilings   map[string]float64 `mapstructure:"ceilings"`
	Floors     map[string]float64 `mapstructure:"floors"`
}

type WorkflowConfig struct {
	ProfileFile string `mapstructure:"profile_file"`
}

type RulesConfig struct {
	File string `mapstructure:"file"`
}

type SweepsConfig struct {
	Schedule           string        `mapstructure:"schedule"`
	Ingest             string        `mapstructure:"ingest"`
	Feedback           string        `mapstructure:"feedback"`
	Metrics            string        `mapstructure:"metrics"`
	ScheduleBatchSize  int           `mapstructure:"schedule_batch_size"`
	FeedbackBatchSize  int           `mapstructure:"feedback_batch_size"`
	MetricsWindow      time.Duration `mapstructure:"metrics_window"`
	MetricsTopWarnings int           `mapstructure:"metrics_top_warnings"`
}

type DaemonConfig struct {
	LockFile   string `mapstructure:"lock_file"`
	WatchInbox bool   `mapstructure:"watch_inbox"`
}

type NotifyConfig struct {
	Backend  string         `mapstructure:"backend"`
	Ntfy     NtfyConfig     `mapstructure:"ntfy"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type NtfyConfig struct {
	URL   string `mapstructure:"url"`
	Topic string `mapstructure:"topic"`
	Token string `mapstructure:"token"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type SourcesConfig struct {
	InboxDir     string             `mapstructure:"inbox_dir"`
	ProcessedDir string             `mapstructure:"processed_dir"`
	HTTPTimeout  time.Duration      `mapstructure:"http_timeout"`
	HTML         []HTMLSourceConfig `mapstructure:"html"`
}

type HTMLSourceConfig struct {
	URL         string  `mapstructure:"url"`
	Name        string  `mapstructure:"name"`
	ContentType string  `mapstructure:"content_type"`
	Credibility float64 `mapstructure:"credibility"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	// Token is the bearer token the API requires; empty disables auth.
	Token string `mapstructure:"token"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithComponent(ctx, "bootstrap.config")

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("notify_backend", cfg.Notify.Backend),
	)
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("%w: database.dsn is required", quality.ErrConfiguration)
	}
	if _, err := c.Engine.Seed(); err != nil {
		return errs.Wrap(err, "engine")
	}
	switch strings.ToLower(strings.TrimSpace(c.Notify.Backend)) {
	case "", "none", "ntfy", "nats", "telegram":
	default:
		return fmt.Errorf("%w: unknown notify.backend %q", quality.ErrConfiguration, c.Notify.Backend)
	}
	return nil
}

// Seed converts the configured values into a validated first engine config.
// Unset weights fall back to the engine defaults.
func (e EngineConfig) Seed() (quality.EngineConfig, error) {
	out := quality.DefaultEngineConfig()
	out.Thresholds = e.Thresholds

	if len(e.Weights) > 0 {
		weights, err := subScoreMap(e.Weights, "weights")
		if err != nil {
			return quality.EngineConfig{}, err
		}
		out.Weights = weights
	}
	if len(e.Ceilings) > 0 {
		ceilings, err := subScoreMap(e.Ceilings, "ceilings")
		if err != nil {
			return quality.EngineConfig{}, err
		}
		out.Ceilings = ceilings
	}
	if len(e.Floors) > 0 {
		floors, err := subScoreMap(e.Floors, "floors")
		if err != nil {
			return quality.EngineConfig{}, err
		}
		out.Floors = floors
	}

	if err := out.Validate(); err != nil {
		return quality.EngineConfig{}, err
	}
	return out, nil
}

func subScoreMap(in map[string]float64, section string) (map[quality.SubScore]float64, error) {
	out := make(map[quality.SubScore]float64, len(in))
	for key, value := range in {
		name, ok := quality.ParseSubScore(key)
		if !ok {
			return nil, fmt.Errorf("%w: engine.%s has unknown sub-score %q", quality.ErrConfiguration, section, key)
		}
		out[name] = value
	}
	return out, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "contentgate")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".contentgate/state/contentgate.sqlite")

	v.SetDefault("engine.thresholds.auto_approve", 90)
	v.SetDefault("engine.thresholds.auto_reject", 40)
	v.SetDefault("engine.thresholds.conditional_low", 70)
	v.SetDefault("engine.thresholds.adjustment_confidence", 0.8)

	v.SetDefault("workflow.profile_file", "configs/workflow.toml")
	v.SetDefault("rules.file", "configs/rules.yaml")

	v.SetDefault("sweeps.schedule", "@every 1m")
	v.SetDefault("sweeps.ingest", "@every 5m")
	v.SetDefault("sweeps.feedback", "@every 15m")
	v.SetDefault("sweeps.metrics", "@hourly")
	v.SetDefault("sweeps.schedule_batch_size", 100)
	v.SetDefault("sweeps.feedback_batch_size", 200)
	v.SetDefault("sweeps.metrics_window", "24h")
	v.SetDefault("sweeps.metrics_top_warnings", 5)

	v.SetDefault("daemon.lock_file", ".contentgate/state/daemon.lock")
	v.SetDefault("daemon.watch_inbox", true)

	v.SetDefault("notify.backend", "none")
	v.SetDefault("notify.nats.subject", "contentgate.approvals")

	v.SetDefault("sources.inbox_dir", ".contentgate/inbox")
	v.SetDefault("sources.processed_dir", ".contentgate/inbox/processed")
	v.SetDefault("sources.http_timeout", "20s")

	v.SetDefault("server.addr", "127.0.0.1:8787")
	v.SetDefault("server.read_header_timeout", "5s")
	v.SetDefault("server.token", "")
}
