package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"trade_guard/internal/analysis"
	"trade_guard/internal/confluence"
	"trade_guard/internal/errs"
	"trade_guard/internal/helper"
	"trade_guard/internal/models"
	"trade_guard/internal/sizing"
	"trade_guard/internal/trailing"
	"trade_guard/pkg/logger"
)

const (
	configFilePathENV = "CONFIG_FILE"
	defaultConfigFile = "configs/values_local.yaml"
)

type Config struct {
	Log        logger.Config   `mapstructure:"log"`
	OKX        OKX             `mapstructure:"okx"`
	Postgres   Postgres        `mapstructure:"postgres"`
	Journal    Journal         `mapstructure:"journal"`
	Telegram   Telegram        `mapstructure:"telegram"`
	Tracing    Tracing         `mapstructure:"tracing"`
	Health     Health          `mapstructure:"health"`
	Cache      Cache           `mapstructure:"cache"`
	Scan       Scan            `mapstructure:"scan"`
	Confluence Confluence      `mapstructure:"confluence"`
	Analysis   analysis.Params `mapstructure:"analysis"`
	Risk       sizing.Config   `mapstructure:"risk"`
	Trail      trailing.Config `mapstructure:"trail"`

	// Profile applies a preset (safe | mid | aggr) underneath explicit settings.
	Profile  string `mapstructure:"profile" validate:"omitempty,oneof=safe mid aggr"`
	Leverage int    `mapstructure:"leverage" validate:"gte=1,lte=100"`
}

type OKX struct {
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	WSPublicURL   string        `mapstructure:"ws_public_url" validate:"required"`
	APIKey        string        `mapstructure:"api_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Passphrase    string        `mapstructure:"passphrase"`
	Simulated     bool          `mapstructure:"simulated"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RatePerSecond float64       `mapstructure:"rate_per_second" validate:"gt=0"`
	Burst         int           `mapstructure:"burst" validate:"gte=1"`
	MarginMode    string        `mapstructure:"margin_mode" validate:"oneof=isolated cross"`
}

// HasCredentials reports whether private endpoints can be used.
func (o OKX) HasCredentials() bool {
	return o.APIKey != "" && o.SecretKey != "" && o.Passphrase != ""
}

type Postgres struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

type Journal struct {
	Backend string `mapstructure:"backend" validate:"oneof=file postgres none"`
	Path    string `mapstructure:"path"`
}

type Telegram struct {
	Enabled        bool   `mapstructure:"enabled"`
	Token          string `mapstructure:"token"`
	ChatID         int64  `mapstructure:"chat_id"`
	PerMinute      int    `mapstructure:"per_minute" validate:"gte=1"`
	QueueSize      int    `mapstructure:"queue_size" validate:"gte=1"`
	DisableLinkPrv bool   `mapstructure:"disable_link_preview"`
}

type Tracing struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	AgentHost    string  `mapstructure:"agent_host"`
	AgentPort    string  `mapstructure:"agent_port"`
	SamplerParam float64 `mapstructure:"sampler_param" validate:"gte=0,lte=1"`
}

type Health struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration" validate:"gt=0"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
}

type Scan struct {
	Symbols     []string `mapstructure:"symbols"`
	TopN        int      `mapstructure:"top_n" validate:"gte=1"`
	MinBand     string   `mapstructure:"min_band" validate:"oneof=STRONG GOOD MODERATE"`
	Concurrency int      `mapstructure:"concurrency" validate:"gte=1,lte=32"`
}

type Confluence struct {
	Weights       map[string]float64 `mapstructure:"weights"`
	DecayExponent float64            `mapstructure:"decay_exponent" validate:"gt=0"`
	ADXGate       float64            `mapstructure:"adx_gate" validate:"gte=0,lte=100"`
	ChecklistTF   string             `mapstructure:"checklist_tf" validate:"required"`
	EntryTF       string             `mapstructure:"entry_tf" validate:"required"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.service", "trade_guard")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("okx.base_url", "https://www.okx.com")
	v.SetDefault("okx.ws_public_url", "wss://ws.okx.com:8443/ws/v5/public")
	v.SetDefault("okx.api_key", "")
	v.SetDefault("okx.secret_key", "")
	v.SetDefault("okx.passphrase", "")
	v.SetDefault("okx.simulated", false)
	v.SetDefault("okx.timeout", "10s")
	v.SetDefault("okx.rate_per_second", 10)
	v.SetDefault("okx.burst", 5)
	v.SetDefault("okx.margin_mode", "isolated")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("journal.backend", "file")
	v.SetDefault("journal.path", "data/journal.jsonl")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("telegram.per_minute", 20)
	v.SetDefault("telegram.queue_size", 64)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "trade_guard")
	v.SetDefault("tracing.agent_host", "localhost")
	v.SetDefault("tracing.agent_port", "6831")
	v.SetDefault("tracing.sampler_param", 1)

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.addr", ":8081")

	v.SetDefault("cache.default_expiration", "5m")
	v.SetDefault("cache.cleanup_interval", "10m")

	v.SetDefault("scan.symbols", []string{})
	v.SetDefault("scan.top_n", 10)
	v.SetDefault("scan.min_band", string(models.BandGood))
	v.SetDefault("scan.concurrency", 4)

	sc := confluence.NewScorer()
	v.SetDefault("confluence.decay_exponent", sc.DecayExponent)
	v.SetDefault("confluence.adx_gate", sc.ADXGate)
	v.SetDefault("confluence.checklist_tf", string(sc.ChecklistTF))
	v.SetDefault("confluence.entry_tf", string(sc.EntryTF))

	ap := analysis.DefaultParams()
	v.SetDefault("analysis.min_bars", ap.MinBars)
	v.SetDefault("analysis.ema_fast", ap.EMAFast)
	v.SetDefault("analysis.ema_slow", ap.EMASlow)
	v.SetDefault("analysis.ema_trend", ap.EMATrend)
	v.SetDefault("analysis.slope_lookback", ap.SlopeLookback)
	v.SetDefault("analysis.rsi_period", ap.RSIPeriod)
	v.SetDefault("analysis.macd_fast", ap.MACDFast)
	v.SetDefault("analysis.macd_slow", ap.MACDSlow)
	v.SetDefault("analysis.macd_signal", ap.MACDSignal)
	v.SetDefault("analysis.stoch_period", ap.StochPeriod)
	v.SetDefault("analysis.stoch_k", ap.StochK)
	v.SetDefault("analysis.stoch_d", ap.StochD)
	v.SetDefault("analysis.adx_period", ap.ADXPeriod)
	v.SetDefault("analysis.atr_period", ap.ATRPeriod)
	v.SetDefault("analysis.bb_period", ap.BBPeriod)
	v.SetDefault("analysis.bb_stddev", ap.BBStdDev)
	v.SetDefault("analysis.volume_period", ap.VolumePeriod)
	v.SetDefault("analysis.obv_slope", ap.OBVSlope)
	v.SetDefault("analysis.structure_window", ap.StructureWindow)
	v.SetDefault("analysis.choppy_adx", ap.ChoppyADX)
	v.SetDefault("analysis.overbought", ap.Overbought)
	v.SetDefault("analysis.oversold", ap.Oversold)

	rc := sizing.DefaultConfig()
	v.SetDefault("risk.risk_fraction", rc.RiskFraction)
	v.SetDefault("risk.margin_cap_fraction", rc.MarginCapFraction)
	v.SetDefault("risk.fee_rate_per_side", rc.FeeRatePerSide)
	tps := make([]map[string]any, 0, len(rc.TakeProfits))
	for _, tp := range rc.TakeProfits {
		tps = append(tps, map[string]any{"r_multiple": tp.RMultiple, "size_fraction": tp.SizeFraction})
	}
	v.SetDefault("risk.take_profits", tps)
	v.SetDefault("risk.min_reward_risk", rc.MinRewardRisk)

	tc := trailing.DefaultConfig()
	v.SetDefault("trail.poll_interval", tc.PollInterval.String())
	v.SetDefault("trail.call_timeout", tc.CallTimeout.String())
	v.SetDefault("trail.activation_r", tc.ActivationR)
	v.SetDefault("trail.trail_atr_multiple", tc.TrailATRMultiple)
	v.SetDefault("trail.atr_timeframe", string(tc.ATRTimeframe))
	v.SetDefault("trail.atr_period", tc.ATRPeriod)
	v.SetDefault("trail.candle_limit", tc.CandleLimit)
	v.SetDefault("trail.max_retries", tc.MaxRetries)
	v.SetDefault("trail.backoff_initial", tc.BackoffInitial.String())
	v.SetDefault("trail.backoff_max", tc.BackoffMax.String())
	v.SetDefault("trail.adaptive", tc.Adaptive)
	v.SetDefault("trail.verify_placement", tc.VerifyPlacement)
	v.SetDefault("trail.fee_rate_per_side", tc.FeeRatePerSide)

	v.SetDefault("profile", "")
	v.SetDefault("leverage", 10)
}

// applyProfile lays preset values under anything set in the file or env.
func applyProfile(v *viper.Viper) error {
	name := strings.ToLower(strings.TrimSpace(v.GetString("profile")))
	if name == "" {
		return nil
	}
	p, ok := models.Presets[name]
	if !ok {
		return errs.E(errs.ConfigInvalid, "config.profile", "unknown profile %q", name)
	}
	v.SetDefault("risk.risk_fraction", p.Profile.RiskFraction)
	v.SetDefault("risk.margin_cap_fraction", p.Profile.MarginCapFraction)
	v.SetDefault("leverage", p.Profile.Leverage)
	v.SetDefault("trail.activation_r", p.Profile.ActivationR)
	v.SetDefault("trail.trail_atr_multiple", p.Profile.TrailATRMultiple)
	return nil
}

// Load reads .env, then the yaml file at path (CONFIG_FILE or the default
// location when empty), then environment overrides such as OKX_API_KEY.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		path = os.Getenv(configFilePathENV)
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Wrap(errs.ConfigInvalid, op, errors.Wrapf(err, "read %s", path))
		}
	} else if explicit {
		return nil, errs.Wrap(errs.ConfigInvalid, op, errors.Wrapf(err, "config file %s", path))
	}

	if err := applyProfile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(errs.ConfigInvalid, op, errors.Wrap(err, "decode"))
	}
	// weights are not defaulted through viper: nested defaults would merge
	// into a configured map instead of being replaced by it.
	if len(cfg.Confluence.Weights) == 0 {
		cfg.Confluence.Weights = make(map[string]float64)
		for tf, w := range confluence.DefaultWeights() {
			cfg.Confluence.Weights[string(tf)] = w
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct tags and the cross-field rules of each component.
func (c *Config) Validate() error {
	const op = "config.Validate"
	if err := validator.New().Struct(c); err != nil {
		return errs.Wrap(errs.ConfigInvalid, op, err)
	}
	if err := c.Scorer().Validate(); err != nil {
		return err
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if c.Trail.ATRTimeframe.Duration() == 0 {
		return errs.E(errs.ConfigInvalid, op, "trail.atr_timeframe %q unknown", c.Trail.ATRTimeframe)
	}
	if c.Journal.Backend == "postgres" && c.Postgres.DSN == "" {
		return errs.E(errs.ConfigInvalid, op, "journal backend postgres needs postgres.dsn")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		return errs.E(errs.ConfigInvalid, op, "telegram enabled without token or chat_id")
	}
	return nil
}

// Scorer builds the confluence scorer from the configured weights.
func (c *Config) Scorer() confluence.Scorer {
	s := confluence.NewScorer()
	s.Weights = make(map[models.Timeframe]float64, len(c.Confluence.Weights))
	for raw, w := range c.Confluence.Weights {
		s.Weights[helper.NormTF(raw)] = w
	}
	s.DecayExponent = c.Confluence.DecayExponent
	s.ADXGate = c.Confluence.ADXGate
	s.ChecklistTF = helper.NormTF(c.Confluence.ChecklistTF)
	s.EntryTF = helper.NormTF(c.Confluence.EntryTF)
	return s
}

func (c *Config) MinBand() models.Band {
	return models.Band(strings.ToUpper(c.Scan.MinBand))
}

func (c *Config) String() string {
	return fmt.Sprintf("profile=%q leverage=%d okx=%s simulated=%t journal=%s telegram=%t",
		c.Profile, c.Leverage, c.OKX.BaseURL, c.OKX.Simulated, c.Journal.Backend, c.Telegram.Enabled)
}
