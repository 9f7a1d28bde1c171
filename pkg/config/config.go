package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"TradeCore/pkg/util"
)

const (
	MinFanoutDeadline = 100 * time.Millisecond
	MaxFanoutDeadline = 60 * time.Second
)

// AgentConfig describes one analysis service queried on every request.
type AgentConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Weight  *float64      `yaml:"weight"`
}

// ParameterSpec overrides the built-in default and safety bounds of one policy parameter.
// Nil fields keep the built-in value.
type ParameterSpec struct {
	Default *float64 `yaml:"default"`
	Min     *float64 `yaml:"min"`
	Max     *float64 `yaml:"max"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		AdminToken      string        `yaml:"admin_token"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		RateLimit       struct {
			Capacity     float64 `yaml:"capacity" default:"20"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"5"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Agents []AgentConfig `yaml:"agents"`
	Fanout struct {
		Deadline       time.Duration `yaml:"deadline" default:"8s"`
		AgentTimeout   time.Duration `yaml:"agent_timeout" default:"5s"`
		RetryAllowance time.Duration `yaml:"retry_allowance" default:"500ms"`
		RetryBackoff   time.Duration `yaml:"retry_backoff" default:"50ms"`
		Margin         time.Duration `yaml:"margin" default:"2s"`
	} `yaml:"fanout"`
	Ledger struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"ledger"`
	Learning struct {
		URL        string        `yaml:"url"`
		Timeout    time.Duration `yaml:"timeout" default:"20s"`
		Mode       string        `yaml:"mode" default:"online"`
		WindowSize int           `yaml:"window_size" default:"50"`
		Sync       bool          `yaml:"sync"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		Workers    int           `yaml:"workers" default:"1"`
		Cooldown   time.Duration `yaml:"cooldown" default:"30s"`
	} `yaml:"learning"`
	Scanner struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout" default:"15s"`
	} `yaml:"scanner"`
	Policy struct {
		Dir        string                   `yaml:"dir" default:"/persistent_config"`
		Parameters map[string]ParameterSpec `yaml:"parameters"`
		LockTTL    time.Duration            `yaml:"lock_ttl" default:"10s"`
	} `yaml:"policy"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"tradecore"`
		Pool     struct {
			Size        int           `yaml:"size" default:"10"`
			MinIdle     int           `yaml:"min_idle" default:"2"`
			WaitTimeout time.Duration `yaml:"wait_timeout" default:"4s"`
		} `yaml:"pool"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"decisions"`
		AutoCreate   bool     `yaml:"auto_create_topic"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"tradecore"`
		Table            string        `yaml:"table" default:"decision_log"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"5m"`
	} `yaml:"clickhouse"`
	Quotes struct {
		Enabled        bool          `yaml:"enabled"`
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		MaxAge         time.Duration `yaml:"max_age" default:"5m"`
		LocalCapacity  int           `yaml:"local_capacity" default:"1000"`
	} `yaml:"quotes"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, applies struct defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.applyDefaults(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file next to the process is honoured when present.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.applyDefaults(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	for i := range c.Agents {
		if c.Agents[i].Timeout <= 0 {
			c.Agents[i].Timeout = c.Fanout.AgentTimeout
		}
	}
	if c.Policy.Parameters == nil {
		c.Policy.Parameters = map[string]ParameterSpec{}
	}
	return nil
}

// policyEnvKeys are the tunables recognised as environment overrides of their static default.
var policyEnvKeys = []string{
	"RISK_PER_TRADE",
	"STOP_LOSS_PERCENTAGE",
	"MAX_POSITION_PERCENTAGE",
	"ENABLE_TECHNICAL_STOP",
	"STRICT_DEGRADED_MODE",
	"MAX_TOTAL_EXPOSURE",
	"PER_REQUEST_RISK_BUDGET",
	"MIN_POSITION_VALUE",
	"DECISION_THRESHOLD",
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("LEDGER_URL"); v != "" {
		c.Ledger.URL = v
	}
	if v := getenv("LEARNING_AGENT_URL"); v != "" {
		c.Learning.URL = v
	}
	if v := getenv("SCANNER_AGENT_URL"); v != "" {
		c.Scanner.URL = v
	}
	if v := getenv("POLICY_DIR"); v != "" {
		c.Policy.Dir = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("QUOTES_API_KEY"); v != "" {
		c.Quotes.APIKey = v
	}
	if v := getenv("ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	c.Server.Port = util.ParseIntDefault(getenv("PORT"), c.Server.Port)
	c.Learning.WindowSize = util.ParseIntDefault(getenv("LEARNING_WINDOW_SIZE"), c.Learning.WindowSize)
	if v := getenv("LEARNING_MODE"); v != "" {
		c.Learning.Mode = v
	}
	if v := getenv("FANOUT_DEADLINE"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("FANOUT_DEADLINE: %w", err)
		}
		c.Fanout.Deadline = d
	}

	if c.Policy.Parameters == nil {
		c.Policy.Parameters = map[string]ParameterSpec{}
	}
	setDefault := func(name, raw string) error {
		f, err := parseFloatOrBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		spec := c.Policy.Parameters[name]
		spec.Default = &f
		c.Policy.Parameters[name] = spec
		return nil
	}
	for _, name := range policyEnvKeys {
		if v := getenv(name); v != "" {
			if err := setDefault(name, v); err != nil {
				return err
			}
		}
	}

	for i := range c.Agents {
		key := strings.ToUpper(c.Agents[i].Name)
		if v := getenv(key + "_AGENT_URL"); v != "" {
			c.Agents[i].URL = v
		}
		if v := getenv("AGENT_WEIGHT_" + key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("AGENT_WEIGHT_%s: %w", key, err)
			}
			c.Agents[i].Weight = &f
		}
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	seen := make(map[string]struct{}, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agent name is required")
		}
		if a.URL == "" {
			return fmt.Errorf("agent %s: url is required", a.Name)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("agent %s: duplicate name", a.Name)
		}
		seen[a.Name] = struct{}{}
		if a.Timeout <= 0 {
			return fmt.Errorf("agent %s: timeout must be positive", a.Name)
		}
	}
	if c.Fanout.Deadline < MinFanoutDeadline || c.Fanout.Deadline > MaxFanoutDeadline {
		return fmt.Errorf("fanout.deadline must be within [%s, %s], got %s", MinFanoutDeadline, MaxFanoutDeadline, c.Fanout.Deadline)
	}
	if c.Fanout.RetryAllowance < 0 {
		return fmt.Errorf("fanout.retry_allowance cannot be negative")
	}
	if c.Policy.Dir == "" {
		return fmt.Errorf("policy.dir is required")
	}
	for name, spec := range c.Policy.Parameters {
		if spec.Min != nil && spec.Max != nil && *spec.Min > *spec.Max {
			return fmt.Errorf("policy.parameters.%s: min %v > max %v", name, *spec.Min, *spec.Max)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Quotes.Enabled && len(c.Quotes.Symbols) == 0 {
		return fmt.Errorf("quotes.symbols cannot be empty when quotes are enabled")
	}
	return nil
}

// RequestTimeout is the orchestrator's own budget for one /analyze call.
func (c *Config) RequestTimeout() time.Duration {
	return c.Fanout.Deadline + c.Fanout.RetryAllowance + c.Fanout.Margin
}

func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func parseFloatOrBool(s string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "on":
		return 1, nil
	case "false", "f", "no", "off":
		return 0, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
