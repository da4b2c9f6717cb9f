package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Quote      QuoteConfig      `mapstructure:"quote"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// MarketDataConfig 描述行情源。
type MarketDataConfig struct {
	Provider string         `mapstructure:"provider"` // iex | ccxt
	IEX      IEXConfig      `mapstructure:"iex"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
}

// IEXConfig 描述 IEX 风格的批量行情接口。
type IEXConfig struct {
	Host      string        `mapstructure:"host"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	BatchSize int           `mapstructure:"batch_size"`
}

// ExchangeConfig 描述 ccxt 交易所连接信息。
type ExchangeConfig struct {
	Name       string `mapstructure:"name"`
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	APIPass    string `mapstructure:"api_password"`
	UseSandbox bool   `mapstructure:"use_sandbox"`
}

// QuoteConfig 控制报价缓存。
type QuoteConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Redis           RedisConfig   `mapstructure:"redis"`
}

// RedisConfig 描述报价镜像所用的 Redis。
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// NotifyConfig 控制成交通知。
type NotifyConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig 描述 Kafka 生产者。
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// HTTPConfig 控制对外接口。
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}

	switch strings.ToLower(c.MarketData.Provider) {
	case "iex":
		if c.MarketData.IEX.Host == "" {
			err = multierr.Append(err, errors.New("market_data.iex.host 不能为空"))
		}
		if c.MarketData.IEX.Timeout <= 0 {
			err = multierr.Append(err, errors.New("market_data.iex.timeout 必须大于0"))
		}
		if c.MarketData.IEX.BatchSize <= 0 {
			err = multierr.Append(err, errors.New("market_data.iex.batch_size 必须大于0"))
		}
	case "ccxt":
		if c.MarketData.Exchange.Name == "" {
			err = multierr.Append(err, errors.New("market_data.exchange.name 不能为空"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("market_data.provider 不支持: %q", c.MarketData.Provider))
	}

	if c.Quote.RefreshInterval < 0 {
		err = multierr.Append(err, errors.New("quote.refresh_interval 不能为负"))
	}
	if c.Quote.Redis.Enabled {
		if c.Quote.Redis.Addr == "" {
			err = multierr.Append(err, errors.New("quote.redis.addr 不能为空"))
		}
		if c.Quote.Redis.TTL <= 0 {
			err = multierr.Append(err, errors.New("quote.redis.ttl 必须大于0"))
		}
	}

	if c.Notify.Kafka.Enabled {
		if len(c.Notify.Kafka.Brokers) == 0 {
			err = multierr.Append(err, errors.New("notify.kafka.brokers 至少包含一个地址"))
		}
		if c.Notify.Kafka.Topic == "" {
			err = multierr.Append(err, errors.New("notify.kafka.topic 不能为空"))
		}
	}

	if c.HTTP.Addr == "" {
		err = multierr.Append(err, errors.New("http.addr 不能为空"))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		err = multierr.Append(err, errors.New("http.shutdown_timeout 必须大于0"))
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Database.BusyTimeout <= 0 {
		err = multierr.Append(err, errors.New("database.busy_timeout 必须大于0"))
	}

	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
