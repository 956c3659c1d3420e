package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Consul      ConsulConfig      `json:"consul"`
	Jaeger      JaegerConfig      `json:"jaeger"`
	Log         LogConfig         `json:"log"`
	Auth        AuthConfig        `json:"auth"`
	Facility    FacilityConfig    `json:"facility"`
	Sweep       SweepConfig       `json:"sweep"`
	PlateReader PlateReaderConfig `json:"plate_reader"`
	RateLimit   RateLimitConfig   `json:"rate_limit"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name     string `json:"name"`      // 服务名称
	Host     string `json:"host"`      // 服务地址
	HTTPPort int    `json:"http_port"` // HTTP端口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

// AuthConfig 管理接口的 JWT 鉴权配置。
// 身份/账号体系由外部服务负责，这里只校验它签发的 token。
type AuthConfig struct {
	Enabled   bool   `json:"enabled"`
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
	Audience  string `json:"audience"`
}

// FacilityConfig 停车场配置
type FacilityConfig struct {
	Capacity       int     `json:"capacity"`         // 车位总数
	Timezone       string  `json:"timezone"`         // 场地时区（计费与查询统一按该时区）
	StandardRate   float64 `json:"standard_rate"`    // STANDARD 费率（货币/小时）
	AuthorizedRate float64 `json:"authorized_rate"`  // AUTHORIZED 费率（货币/小时）
	MaxSessionCost float64 `json:"max_session_cost"` // 单次停车费用上限（超限仅告警）
}

// SweepConfig 费用超限巡检配置
type SweepConfig struct {
	IntervalSeconds int `json:"interval_seconds"` // 巡检周期（秒）
}

// PlateReaderConfig 车牌识别服务配置（外部协作方）
type PlateReaderConfig struct {
	Endpoint       string `json:"endpoint"`        // 识别服务地址，留空则不启用图片入场
	TimeoutSeconds int    `json:"timeout_seconds"` // 单次识别超时
}

// RateLimitConfig 网关限流配置
type RateLimitConfig struct {
	Enabled    bool  `json:"enabled"`
	Capacity   int64 `json:"capacity"`    // 令牌桶容量
	RefillRate int64 `json:"refill_rate"` // 每秒补充令牌数
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		// 如果配置文件不存在，使用默认配置
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:     "gate-service",
			Host:     "0.0.0.0",
			HTTPPort: 8080,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "smartparkgate",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "http://localhost:14268/api/traces",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
		Auth: AuthConfig{
			Enabled: false,
		},
		Facility: FacilityConfig{
			Capacity:       30,
			Timezone:       "Europe/Kiev",
			StandardRate:   30,
			AuthorizedRate: 20,
			MaxSessionCost: 1000,
		},
		Sweep: SweepConfig{
			IntervalSeconds: 300,
		},
		PlateReader: PlateReaderConfig{
			TimeoutSeconds: 5,
		},
		RateLimit: RateLimitConfig{
			Enabled:    false,
			Capacity:   100,
			RefillRate: 50,
		},
	}
}
