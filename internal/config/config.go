package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用程序配置结构
type Config struct {
	// etcd配置，端点为空时使用内存存储
	Etcd struct {
		Endpoints      []string      `mapstructure:"endpoints"`
		Username       string        `mapstructure:"username"`
		Password       string        `mapstructure:"password"`
		DialTimeout    time.Duration `mapstructure:"dial_timeout"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"etcd"`

	// 发现API服务配置
	API struct {
		ListenAddress string `mapstructure:"listen_address"`
		Port          int    `mapstructure:"port"`
	} `mapstructure:"api"`

	// 发现流水线配置
	Discovery struct {
		// 并发处理服务的工作协程上限
		WorkerPoolSize int `mapstructure:"worker_pool_size"`
		// 单次接口描述拉取的超时时间
		FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
		// 整个批次的截止时间
		BatchDeadline time.Duration `mapstructure:"batch_deadline"`
		// 接口描述的公开路径
		InterfacePath string `mapstructure:"interface_path"`
	} `mapstructure:"discovery"`

	// 注册中心客户端配置
	Registry struct {
		Address          string        `mapstructure:"address"`
		RequestTimeout   time.Duration `mapstructure:"request_timeout"`
		MaxRetries       int           `mapstructure:"max_retries"`
		RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
		RetryMaxDelay    time.Duration `mapstructure:"retry_max_delay"`
		FailureThreshold int           `mapstructure:"failure_threshold"`
		RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	} `mapstructure:"registry"`

	// 健康监控配置
	Health struct {
		ProbeInterval time.Duration `mapstructure:"probe_interval"`
		ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
		// 超过该时间没有成功探测的服务视为过期
		StaleTTL time.Duration `mapstructure:"stale_ttl"`
	} `mapstructure:"health"`

	// DNS自动发现配置
	AutoDetect struct {
		Enabled    bool          `mapstructure:"enabled"`
		DNSServer  string        `mapstructure:"dns_server"`
		Domain     string        `mapstructure:"domain"`
		CacheTTL   time.Duration `mapstructure:"cache_ttl"`
		Candidates []string      `mapstructure:"candidates"`
	} `mapstructure:"auto_detect"`

	// 日志配置
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// LoadConfig 从文件和环境变量加载配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果指定了配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// 设置配置文件名和路径
		v.SetConfigName("config")                     // 配置文件名（无扩展名）
		v.AddConfigPath(".")                          // 当前目录
		v.AddConfigPath("./configs")                  // configs目录
		v.AddConfigPath("$HOME/.ecosystem-discovery") // 用户目录
		v.AddConfigPath("/etc/ecosystem-discovery")   // 系统目录
	}

	// 配置文件格式
	v.SetConfigType("yaml")

	// 尝试从配置文件加载
	if err := v.ReadInConfig(); err != nil {
		// 如果找不到配置文件，仅使用默认值；其他错误则返回
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件错误: %w", err)
		}
	}

	// 绑定环境变量
	v.SetEnvPrefix("ECO_DISCOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置错误: %w", err)
	}

	// 进行配置验证
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// etcd默认配置
	v.SetDefault("etcd.endpoints", []string{})
	v.SetDefault("etcd.username", "")
	v.SetDefault("etcd.password", "")
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.request_timeout", 10*time.Second)

	// API服务默认配置
	v.SetDefault("api.listen_address", "0.0.0.0")
	v.SetDefault("api.port", 8090)

	// 发现流水线默认配置
	v.SetDefault("discovery.worker_pool_size", 8)
	v.SetDefault("discovery.fetch_timeout", 10*time.Second)
	v.SetDefault("discovery.batch_deadline", 2*time.Minute)
	v.SetDefault("discovery.interface_path", "/openapi.json")

	// 注册中心客户端默认配置
	v.SetDefault("registry.address", "http://localhost:5099")
	v.SetDefault("registry.request_timeout", 10*time.Second)
	v.SetDefault("registry.max_retries", 3)
	v.SetDefault("registry.retry_base_delay", 500*time.Millisecond)
	v.SetDefault("registry.retry_max_delay", 10*time.Second)
	v.SetDefault("registry.failure_threshold", 5)
	v.SetDefault("registry.recovery_timeout", 30*time.Second)

	// 健康监控默认配置
	v.SetDefault("health.probe_interval", 30*time.Second)
	v.SetDefault("health.probe_timeout", 5*time.Second)
	v.SetDefault("health.stale_ttl", 10*time.Minute)

	// DNS自动发现默认配置
	v.SetDefault("auto_detect.enabled", false)
	v.SetDefault("auto_detect.dns_server", "127.0.0.1:6553")
	v.SetDefault("auto_detect.domain", "service.discovery")
	v.SetDefault("auto_detect.cache_ttl", 60*time.Second)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", true)
}

// validateConfig 验证配置有效性
func validateConfig(config *Config) error {
	// API服务配置验证
	if config.API.Port <= 0 || config.API.Port > 65535 {
		return fmt.Errorf("API端口配置无效: %d", config.API.Port)
	}

	// 发现流水线配置验证
	if config.Discovery.WorkerPoolSize <= 0 {
		return fmt.Errorf("工作协程数配置无效: %d", config.Discovery.WorkerPoolSize)
	}
	if config.Discovery.FetchTimeout <= 0 {
		return fmt.Errorf("接口描述拉取超时配置无效: %v", config.Discovery.FetchTimeout)
	}
	if config.Discovery.BatchDeadline < config.Discovery.FetchTimeout {
		return fmt.Errorf("批次截止时间必须大于单次拉取超时")
	}

	// 注册中心客户端配置验证
	if config.Registry.Address == "" {
		return fmt.Errorf("注册中心地址不能为空")
	}
	if config.Registry.FailureThreshold <= 0 {
		return fmt.Errorf("熔断失败阈值配置无效: %d", config.Registry.FailureThreshold)
	}
	if config.Registry.MaxRetries < 0 {
		return fmt.Errorf("最大重试次数配置无效: %d", config.Registry.MaxRetries)
	}

	// 健康监控配置验证
	if config.Health.ProbeInterval <= 0 {
		return fmt.Errorf("健康探测间隔配置无效: %v", config.Health.ProbeInterval)
	}
	if config.Health.StaleTTL <= config.Health.ProbeInterval {
		return fmt.Errorf("服务过期时间必须大于健康探测间隔")
	}

	return nil
}
