package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin 运行模式：release / debug
}

// DatabaseConfig driver 可选 mysql、postgres、memory（仅本地调试）
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	GroupID string           `mapstructure:"group_id"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	PointsEvent     string `mapstructure:"points_event"`
	AttendanceEvent string `mapstructure:"attendance_event"`
}

type BusinessConfig struct {
	Timezone                string `mapstructure:"timezone"`
	StreakBonusInterval     int    `mapstructure:"streak_bonus_interval"`
	LeaderboardCacheSeconds int    `mapstructure:"leaderboard_cache_seconds"`
	LockTimeoutSeconds      int    `mapstructure:"lock_timeout_seconds"`
	MaxRetryCount           int    `mapstructure:"max_retry_count"`
	ReconcileCron           string `mapstructure:"reconcile_cron"`
	WorkerID                int64  `mapstructure:"worker_id"`
}

// Location 业务时区，连续打卡和排行榜周期都按它切分日期
func (b BusinessConfig) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(b.Timezone)
}

func (b BusinessConfig) LeaderboardCacheTTL() time.Duration {
	return time.Duration(b.LeaderboardCacheSeconds) * time.Second
}

func (b BusinessConfig) LockTimeout() time.Duration {
	return time.Duration(b.LockTimeoutSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "attendance_points")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.group_id", "points-engine")
	v.SetDefault("kafka.topic.points_event", "points_event")
	v.SetDefault("kafka.topic.attendance_event", "attendance_event")

	v.SetDefault("business.timezone", "UTC")
	v.SetDefault("business.streak_bonus_interval", 7)
	v.SetDefault("business.leaderboard_cache_seconds", 30)
	v.SetDefault("business.lock_timeout_seconds", 3)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.reconcile_cron", "0 3 * * *")
	v.SetDefault("business.worker_id", 1)
}

// LoadConfig 加载配置文件
// 优先级：环境变量 > 配置文件 > 默认值，.env 文件存在时先载入环境变量
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	if _, err := c.Business.Location(); err != nil {
		return fmt.Errorf("时区配置错误: %w", err)
	}
	if c.Business.StreakBonusInterval < 0 {
		return fmt.Errorf("streak_bonus_interval 不能为负数")
	}
	if c.Business.MaxRetryCount <= 0 {
		return fmt.Errorf("max_retry_count 必须大于0")
	}
	return nil
}
