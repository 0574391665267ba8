package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// 从默认位置加载配置
	config, err := LoadConfig("")
	require.NoError(t, err, "无法加载默认配置")
	require.NotNil(t, config, "配置不应为nil")

	// 验证默认值
	assert.Equal(t, 8090, config.API.Port, "API端口应为8090")
	assert.Equal(t, 8, config.Discovery.WorkerPoolSize, "工作协程数应为8")
	assert.Equal(t, "/openapi.json", config.Discovery.InterfacePath, "接口描述路径应为默认值")
	assert.Equal(t, 5, config.Registry.FailureThreshold, "熔断失败阈值应为5")
	assert.Equal(t, 30*time.Second, config.Registry.RecoveryTimeout, "熔断恢复时间应为30秒")
	assert.Equal(t, 30*time.Second, config.Health.ProbeInterval, "健康探测间隔应为30秒")
	assert.Empty(t, config.Etcd.Endpoints, "etcd端点默认应为空")
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	// 设置环境变量
	os.Setenv("ECO_DISCOVERY_API_PORT", "9090")
	os.Setenv("ECO_DISCOVERY_DISCOVERY_WORKER_POOL_SIZE", "4")
	defer func() {
		os.Unsetenv("ECO_DISCOVERY_API_PORT")
		os.Unsetenv("ECO_DISCOVERY_DISCOVERY_WORKER_POOL_SIZE")
	}()

	// 加载配置
	config, err := LoadConfig("")
	require.NoError(t, err, "无法加载配置")
	require.NotNil(t, config, "配置不应为nil")

	// 验证环境变量覆盖
	assert.Equal(t, 9090, config.API.Port, "环境变量应正确覆盖API端口")
	assert.Equal(t, 4, config.Discovery.WorkerPoolSize, "环境变量应正确覆盖工作协程数")

	// 确认其他值不受影响
	assert.Equal(t, "http://localhost:5099", config.Registry.Address, "注册中心地址不应被环境变量影响")
}

func TestLoadConfigWithMissingFile(t *testing.T) {
	// 尝试从不存在的文件加载配置
	config, err := LoadConfig("non_existent_file.yaml")

	// 应该返回错误
	assert.Error(t, err, "从不存在的文件加载配置应该失败")

	// 不应该返回配置对象
	assert.Nil(t, config, "加载不存在的配置文件应该返回nil配置")
}

func TestValidateConfig(t *testing.T) {
	// 从默认值出发构造无效配置
	config, err := LoadConfig("")
	require.NoError(t, err)

	// 熔断失败阈值无效
	config.Registry.FailureThreshold = 0
	assert.Error(t, validateConfig(config), "熔断失败阈值为0应该校验失败")
	config.Registry.FailureThreshold = 5

	// 批次截止时间小于单次拉取超时
	config.Discovery.BatchDeadline = time.Second
	config.Discovery.FetchTimeout = 10 * time.Second
	assert.Error(t, validateConfig(config), "批次截止时间小于拉取超时应该校验失败")
}
