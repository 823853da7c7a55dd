// =============================================================================
// 文件: internal/config/config.go
// 描述: 配置管理 - 引擎参数、信道故障配置、传输驱动、监控
// =============================================================================
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mrcgq/rdt/internal/channel"
	"github.com/mrcgq/rdt/internal/logging"
	"github.com/mrcgq/rdt/internal/rdt"
)

// Config 主配置
type Config struct {
	LogLevel string `yaml:"log_level"`

	Engine  EngineConfig  `yaml:"engine"`
	Channel ChannelConfig `yaml:"channel"`
	Harness HarnessConfig `yaml:"harness"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// EngineConfig RDT 引擎配置
type EngineConfig struct {
	MaxSegmentBytes int  `yaml:"max_segment_bytes"`
	WindowBytes     int  `yaml:"window_bytes"`
	StaleSegments   int  `yaml:"stale_segments"`
	DupAckThreshold int  `yaml:"dup_ack_threshold"`
	EnableSACK      bool `yaml:"enable_sack"`
}

// ChannelConfig 不可靠信道故障配置
type ChannelConfig struct {
	DropRate      float64 `yaml:"drop_rate"`
	CorruptRate   float64 `yaml:"corrupt_rate"`
	DuplicateRate float64 `yaml:"duplicate_rate"`
	DelayRate     float64 `yaml:"delay_rate"`
	MaxDelayTicks int     `yaml:"max_delay_ticks"`
	Reorder       bool    `yaml:"reorder"`
	Seed          int64   `yaml:"seed"`
}

// HarnessConfig 传输驱动配置
type HarnessConfig struct {
	Data     string `yaml:"data"`
	DataFile string `yaml:"data_file"`
	MaxTicks int    `yaml:"max_ticks"`
	Trials   int    `yaml:"trials"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Listen     string `yaml:"listen"`
	Path       string `yaml:"path"`
	HealthPath string `yaml:"health_path"`
}

// Load 加载配置文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Engine: EngineConfig{
			MaxSegmentBytes: rdt.DefaultMaxSegmentBytes,
			WindowBytes:     rdt.DefaultWindowBytes,
			StaleSegments:   rdt.DefaultStaleSegments,
			DupAckThreshold: rdt.DefaultDupAckThreshold,
			EnableSACK:      true,
		},
		Channel: ChannelConfig{
			DropRate:      0.1,
			CorruptRate:   0.1,
			DuplicateRate: 0.05,
			DelayRate:     0.1,
			MaxDelayTicks: 3,
			Reorder:       true,
			Seed:          1,
		},
		Harness: HarnessConfig{
			Data:     "The quick brown fox jumps over the lazy dog.",
			MaxTicks: 100000,
			Trials:   1,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			Listen:     ":9100",
			Path:       "/metrics",
			HealthPath: "/health",
		},
	}
}

// Validate 验证配置, 错误配置在启动前被拦截
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level 无效: %w", err)
	}

	if err := c.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("engine 配置错误: %w", err)
	}

	if err := c.validateChannelConfig(); err != nil {
		return fmt.Errorf("channel 配置错误: %w", err)
	}

	if c.Harness.Data == "" && c.Harness.DataFile == "" {
		return fmt.Errorf("harness.data 与 harness.data_file 不能同时为空")
	}
	if c.Harness.MaxTicks < 1 {
		return fmt.Errorf("harness.max_ticks 需大于 0")
	}
	if c.Harness.Trials < 1 || c.Harness.Trials > 1024 {
		return fmt.Errorf("harness.trials 需在 1-1024 之间")
	}

	if c.Metrics.Enabled {
		if _, err := parsePort(c.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen 端口格式错误: %w", err)
		}
		if c.Metrics.Path == "" || c.Metrics.Path[0] != '/' {
			return fmt.Errorf("metrics.path 必须以 / 开头")
		}
		if c.Metrics.HealthPath == "" || c.Metrics.HealthPath[0] != '/' || c.Metrics.HealthPath == c.Metrics.Path {
			return fmt.Errorf("metrics.health_path 必须以 / 开头且不同于 metrics.path")
		}
	}

	return nil
}

func (c *Config) validateChannelConfig() error {
	rates := []struct {
		name string
		v    float64
	}{
		{"drop_rate", c.Channel.DropRate},
		{"corrupt_rate", c.Channel.CorruptRate},
		{"duplicate_rate", c.Channel.DuplicateRate},
		{"delay_rate", c.Channel.DelayRate},
	}
	for _, r := range rates {
		// 概率为 1 时传输永远无法完成
		if r.v < 0 || r.v >= 1 {
			return fmt.Errorf("%s 需在 [0, 1) 之间: %v", r.name, r.v)
		}
	}
	if c.Channel.DelayRate > 0 && c.Channel.MaxDelayTicks < 1 {
		return fmt.Errorf("启用延迟时 max_delay_ticks 需大于 0")
	}
	return nil
}

// EngineConfig 转换为引擎配置
func (c *Config) EngineConfig() *rdt.Config {
	return &rdt.Config{
		MaxSegmentBytes: c.Engine.MaxSegmentBytes,
		WindowBytes:     c.Engine.WindowBytes,
		StaleSegments:   c.Engine.StaleSegments,
		DupAckThreshold: c.Engine.DupAckThreshold,
		EnableSACK:      c.Engine.EnableSACK,
	}
}

// ChannelProfile 转换为信道故障配置
func (c *Config) ChannelProfile() channel.Profile {
	return channel.Profile{
		DropRate:      c.Channel.DropRate,
		CorruptRate:   c.Channel.CorruptRate,
		DuplicateRate: c.Channel.DuplicateRate,
		DelayRate:     c.Channel.DelayRate,
		MaxDelayTicks: c.Channel.MaxDelayTicks,
		Reorder:       c.Channel.Reorder,
		Seed:          c.Channel.Seed,
	}
}

// LoadData 读取待发送数据, data_file 优先
func (c *Config) LoadData() ([]byte, error) {
	if c.Harness.DataFile != "" {
		data, err := os.ReadFile(c.Harness.DataFile)
		if err != nil {
			return nil, fmt.Errorf("读取数据文件失败: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("数据文件为空: %s", c.Harness.DataFile)
		}
		return data, nil
	}
	return []byte(c.Harness.Data), nil
}

func parsePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("无效端口: %s", portStr)
	}
	return port, nil
}

// =============================================================================
// 配置文件示例生成
// =============================================================================

// GenerateExampleConfig 生成示例配置
func GenerateExampleConfig() string {
	return `# RDT 仿真配置文件示例
# =============================================================================

log_level: "info"                   # 日志级别: debug, info, warn, error

# 可靠传输引擎
engine:
  max_segment_bytes: 4              # 单段有效载荷上限 (字节)
  window_bytes: 15                  # 流控窗口: 在途未确认字节上限, 需小于 stale_segments*max_segment_bytes
  stale_segments: 4                 # 过期阈值 K (段长)
  dup_ack_threshold: 3              # 快速重传所需重复 ACK 数
  enable_sack: true                 # 确认段携带乱序缓存区间

# 不可靠信道 (概率需小于 1)
channel:
  drop_rate: 0.1
  corrupt_rate: 0.1
  duplicate_rate: 0.05
  delay_rate: 0.1
  max_delay_ticks: 3
  reorder: true
  seed: 1

# 传输驱动
harness:
  data: "The quick brown fox jumps over the lazy dog."
  # data_file: "/path/to/input.txt"  # 优先于 data
  max_ticks: 100000
  trials: 1

# Prometheus 监控
metrics:
  enabled: false
  listen: ":9100"
  path: "/metrics"
  health_path: "/health"
`
}

// WriteExampleConfig 写入示例配置文件
func WriteExampleConfig(path string) error {
	return os.WriteFile(path, []byte(GenerateExampleConfig()), 0644)
}
