package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"SignalScope/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"5s"`
	} `yaml:"server"`
	Scanner struct {
		Concurrency   int           `yaml:"concurrency" default:"8" validate:"gte=1,lte=256"`
		Timeframe     string        `yaml:"timeframe" default:"15m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
		HTFTimeframe  string        `yaml:"htf_timeframe" default:"4h" validate:"omitempty,oneof=1m 5m 15m 1h 4h 1d"`
		CandleLimit   int           `yaml:"candle_limit" default:"300" validate:"gte=50,lte=5000"`
		Strategies    []string      `yaml:"strategies" validate:"omitempty,dive,oneof=legacy breakout breakout_v2"`
		SymbolTimeout time.Duration `yaml:"symbol_timeout" default:"30s"`
		PriorTTL      time.Duration `yaml:"prior_ttl" default:"72h"`
	} `yaml:"scanner"`
	Analysis struct {
		MinCandles         int      `yaml:"min_candles" default:"50" validate:"gte=50"`
		Indicators         []string `yaml:"indicators"`
		RSIPeriod          int      `yaml:"rsi_period" default:"14" validate:"gte=2"`
		EMAFast            int      `yaml:"ema_fast" default:"20" validate:"gte=1"`
		EMASlow            int      `yaml:"ema_slow" default:"50" validate:"gtfield=EMAFast"`
		EMATrend           int      `yaml:"ema_trend" default:"200" validate:"gte=1"`
		ADXPeriod          int      `yaml:"adx_period" default:"14" validate:"gte=2"`
		ATRPeriod          int      `yaml:"atr_period" default:"14" validate:"gte=1"`
		BBPeriod           int      `yaml:"bb_period" default:"20" validate:"gte=2"`
		BBStdDev           float64  `yaml:"bb_stddev" default:"2" validate:"gt=0"`
		PivotOrder         int      `yaml:"pivot_order" default:"5" validate:"gte=5,lte=7"`
		TrendlineTolerance float64  `yaml:"trendline_tolerance" default:"0.5" validate:"gte=0"`
	} `yaml:"analysis"`
	Filters struct {
		OILookback        int     `yaml:"oi_lookback" default:"30" validate:"gte=2"`
		OIZThreshold      float64 `yaml:"oi_z_threshold" default:"1.5"`
		OBVLookback       int     `yaml:"obv_lookback" default:"14" validate:"gte=2"`
		OISlopeLookback   int     `yaml:"oi_slope_lookback" default:"14" validate:"gte=2"`
		AmplitudeLookback int     `yaml:"amplitude_lookback" default:"20" validate:"gte=1"`
	} `yaml:"filters"`
	Strategy struct {
		Legacy struct {
			MinScore         float64 `yaml:"min_score" default:"60"`
			ADXThreshold     float64 `yaml:"adx_threshold" default:"20"`
			PullbackLookback int     `yaml:"pullback_lookback" default:"20" validate:"gte=1"`
			StopATRMult      float64 `yaml:"stop_atr_mult" default:"1.5" validate:"gt=0"`
			RewardRisk       float64 `yaml:"reward_risk" default:"2" validate:"gt=0"`
		} `yaml:"legacy"`
		Breakout struct {
			MinScore        float64 `yaml:"min_score" default:"50"`
			FundingLimit    float64 `yaml:"funding_limit" default:"0.05" validate:"gt=0"`
			GeometryScale   float64 `yaml:"geometry_scale" default:"150" validate:"gt=0"`
			OISlopeScale    float64 `yaml:"oi_slope_scale" default:"0.5" validate:"gt=0"`
			VolumeSpikeMult float64 `yaml:"volume_spike_mult" default:"1.5" validate:"gt=0"`
			VolumeLookback  int     `yaml:"volume_lookback" default:"20" validate:"gte=1"`
			StopATRMult     float64 `yaml:"stop_atr_mult" default:"1.5" validate:"gt=0"`
			RewardRisk      float64 `yaml:"reward_risk" default:"2" validate:"gt=0"`
		} `yaml:"breakout"`
		BreakoutV2 struct {
			MinScore            float64 `yaml:"min_score" default:"60"`
			StopATRMult         float64 `yaml:"stop_atr_mult" default:"3" validate:"gt=0"`
			TargetAmplitudeMult float64 `yaml:"target_amplitude_mult" default:"1" validate:"gt=0"`
			ZScoreCap           float64 `yaml:"z_score_cap" default:"3" validate:"gt=0"`
			RetestATRTolerance  float64 `yaml:"retest_atr_tolerance" default:"0.5" validate:"gte=0"`
		} `yaml:"breakout_v2"`
	} `yaml:"strategy"`
	Provider struct {
		Disabled      bool              `yaml:"disabled"`
		BaseURL       string            `yaml:"base_url" default:"https://api.coinalyze.net/v1" validate:"required,url"`
		APIKey        string            `yaml:"api_key"`
		Timeout       time.Duration     `yaml:"timeout" default:"10s"`
		MinInterval   time.Duration     `yaml:"min_interval" default:"1500ms"`
		BatchSize     int               `yaml:"batch_size" default:"20" validate:"gte=1,lte=20"`
		Interval      string            `yaml:"interval" default:"15min" validate:"oneof=1min 5min 15min 30min 1hour 2hour 4hour 6hour 12hour daily"`
		HistoryPoints int               `yaml:"history_points" default:"50" validate:"gte=2"`
		ResponseTTL   time.Duration     `yaml:"response_ttl" default:"5m"`
		MappingTTL    time.Duration     `yaml:"mapping_ttl" default:"24h"`
		ExchangeCodes map[string]string `yaml:"exchange_codes" default:"{\"binance\":\"A\",\"bybit\":\"6\",\"okx\":\"3\",\"bitget\":\"K\",\"gateio\":\"Y\"}"`
		AggregateCode string            `yaml:"aggregate_code" default:"A"`
		Overrides     map[string]string `yaml:"overrides"`
	} `yaml:"provider"`
	Cache struct {
		MemoryMaxSize int           `yaml:"memory_max_size" default:"10000" validate:"gte=1"`
		L1TTL         time.Duration `yaml:"l1_ttl" default:"1m"`
		Redis         struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"signalscope"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
		RetryLimit int           `yaml:"retry_limit" default:"2" validate:"gte=0"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		KeyPrefix  string        `yaml:"key_prefix" default:"signalscope:queue"`
		JobTTL     time.Duration `yaml:"job_ttl" default:"1h"`
	} `yaml:"queue"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		SignalTopic  string   `yaml:"signal_topic" default:"signals"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"20ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			Topic      string        `yaml:"topic" default:"scan-requests"`
			GroupID    string        `yaml:"group_id" default:"signalscope"`
			Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"16" validate:"gte=1"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"market"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		Table        string        `yaml:"table" default:"candles"`
		UseHTTP      bool          `yaml:"use_http"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecTime  time.Duration `yaml:"max_execution_time" default:"30s"`
		MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
	} `yaml:"clickhouse"`
	Websocket struct {
		Disabled     bool          `yaml:"disabled"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
		SendBuffer   int           `yaml:"send_buffer" default:"16" validate:"gte=1"`
	} `yaml:"websocket"`
}

var validate = validator.New()

// Load reads a YAML configuration file, applies defaults and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyEnv(os.Getenv)
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("PROVIDER_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Redis.Enabled = true
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) finish() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Validate checks field rules and cross-section requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	if c.Kafka.Consumer.Enabled && !c.Kafka.Enabled {
		return errors.New("kafka.consumer requires kafka.enabled")
	}
	if c.Queue.Enabled && !c.Cache.Redis.Enabled {
		return errors.New("queue requires cache.redis.enabled")
	}
	if c.Kafka.Consumer.BackoffMax < c.Kafka.Consumer.BackoffMin {
		return errors.New("kafka.consumer.backoff_max must be >= backoff_min")
	}
	return nil
}
