package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Term     TermConfig     `mapstructure:"term"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	TestData TestDataConfig `mapstructure:"test_data"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port            int        `mapstructure:"port"`
	CORS            CORSConfig `mapstructure:"cors"`
	MaxBodyBytes    int64      `mapstructure:"max_body_bytes"`    // 普通请求体上限
	ImportBodyBytes int64      `mapstructure:"import_body_bytes"` // ICS 上传请求体上限
	ImportRateLimit int        `mapstructure:"import_rate_limit"` // 每分钟每 IP 导入次数
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置（课表持久化）
type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Name         string `mapstructure:"name"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	SSLMode      string `mapstructure:"sslmode"`
	Timezone     string `mapstructure:"timezone"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 周视图缓存配置
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string   `mapstructure:"level"`
	Format string   `mapstructure:"format"`
	Output []string `mapstructure:"output"` // stdout / stderr / 文件路径，可多个
}

// TermConfig 学期配置
type TermConfig struct {
	// StartDate 第 0 周周一 00:00（RFC3339）；数据库中已有学期时以数据库为准
	StartDate string `mapstructure:"start_date"`
}

// StartTime 解析学期起始时间
func (c *TermConfig) StartTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("term.start_date 格式错误: %w", err)
	}
	return t, nil
}

// ScheduleConfig 课表引擎配置
type ScheduleConfig struct {
	ClosedFormConflict bool `mapstructure:"closed_form_conflict"` // 使用同余闭式解代替逐周枚举
	Autosave           bool `mapstructure:"autosave"`             // 每次修改后立即持久化
	TermWeeks          int  `mapstructure:"term_weeks"`           // 学期周数：ICS 无截止重复规则与 Excel 导出使用
}

// TestDataConfig 随机测试数据配置；启用时不从数据库加载
type TestDataConfig struct {
	Enabled        bool  `mapstructure:"enabled"`
	Seed           int64 `mapstructure:"seed"`
	CourseTryCount int   `mapstructure:"course_try_count"`
	DDlCount       int   `mapstructure:"ddl_count"`
	TotalWeeks     int   `mapstructure:"total_weeks"`
	MaxSlot        int   `mapstructure:"max_slot"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量（含 .env）> 配置文件 > 默认值
func Load(path string) (*Config, error) {
	// .env 不存在时忽略；已存在的环境变量不会被覆盖
	_ = godotenv.Load()

	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.import_body_bytes", 6<<20)
	v.SetDefault("server.import_rate_limit", 10)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "timetable")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Asia/Shanghai")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", "10m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", []string{"stdout"})

	v.SetDefault("term.start_date", "2025-02-24T00:00:00+08:00")

	v.SetDefault("schedule.closed_form_conflict", false)
	v.SetDefault("schedule.autosave", true)
	v.SetDefault("schedule.term_weeks", 20)

	v.SetDefault("test_data.enabled", false)
	v.SetDefault("test_data.seed", 1)
	v.SetDefault("test_data.course_try_count", 30)
	v.SetDefault("test_data.ddl_count", 10)
	v.SetDefault("test_data.total_weeks", 18)
	v.SetDefault("test_data.max_slot", 40)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("TIMETABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Server.MaxBodyBytes <= 0 || c.Server.ImportBodyBytes <= 0 {
		return fmt.Errorf("配置校验失败: 请求体上限必须为正")
	}
	if _, err := c.Term.StartTime(); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	if c.Schedule.TermWeeks <= 0 {
		return fmt.Errorf("配置校验失败: schedule.term_weeks 必须为正")
	}
	if c.TestData.Enabled {
		if c.TestData.TotalWeeks <= 0 {
			return fmt.Errorf("配置校验失败: test_data.total_weeks 必须为正")
		}
		if c.TestData.MaxSlot <= 0 {
			return fmt.Errorf("配置校验失败: test_data.max_slot 必须为正")
		}
	}
	return nil
}
