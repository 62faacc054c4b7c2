// =============================================================================
// 文件: internal/config/config.go
// 描述: 配置管理 - 协议参数/仿真参数校验, 启动前拦截非法组合
// =============================================================================
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 主配置
type Config struct {
	LogLevel string `yaml:"log_level"`

	Protocol ProtocolConfig `yaml:"protocol"`
	Sim      SimConfig      `yaml:"sim"`
	Runner   RunnerConfig   `yaml:"runner"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Trace    TraceConfig    `yaml:"trace"`
}

// ProtocolConfig SR 协议参数
type ProtocolConfig struct {
	WindowSize int     `yaml:"window_size"`
	SeqSpace   int     `yaml:"seqspace"`
	RTT        float64 `yaml:"rtt"`
}

// SimConfig 信道与负载仿真参数
type SimConfig struct {
	Messages         int     `yaml:"messages"`          // 仿真注入的消息总数
	LossProb         float64 `yaml:"loss_prob"`         // 单包丢失概率
	CorruptProb      float64 `yaml:"corrupt_prob"`      // 单包损坏概率
	MeanInterarrival float64 `yaml:"mean_interarrival"` // 应用消息平均到达间隔 (仿真时间单位)
	Seed             int64   `yaml:"seed"`              // 随机种子, 0 表示取当前时间
}

// RunnerConfig 批量试验参数
type RunnerConfig struct {
	Trials      int `yaml:"trials"`      // 试验次数
	Parallelism int `yaml:"parallelism"` // 并发试验数
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Listen      string `yaml:"listen"`
	Path        string `yaml:"path"`
	HealthPath  string `yaml:"health_path"`
	EnablePprof bool   `yaml:"enable_pprof"`
}

// TraceConfig 实时事件流配置
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// Load 加载配置
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

// DefaultConfig 返回默认配置
// 协议默认值沿用经典作业参数: 窗口 6, 序列空间 12, RTT 16 个时间单位
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",

		Protocol: ProtocolConfig{
			WindowSize: 6,
			SeqSpace:   12,
			RTT:        16.0,
		},

		Sim: SimConfig{
			Messages:         20,
			LossProb:         0.1,
			CorruptProb:      0.1,
			MeanInterarrival: 50.0,
			Seed:             0,
		},

		Runner: RunnerConfig{
			Trials:      1,
			Parallelism: 4,
		},

		Metrics: MetricsConfig{
			Enabled:     false,
			Listen:      ":9100",
			Path:        "/metrics",
			HealthPath:  "/health",
			EnablePprof: false,
		},

		Trace: TraceConfig{
			Enabled: false,
			Listen:  ":9101",
			Path:    "/trace",
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "error", "info", "debug":
		if c.LogLevel == "" {
			c.LogLevel = "info"
		}
	default:
		return fmt.Errorf("无效的日志级别: %s (支持: error, info, debug)", c.LogLevel)
	}

	// 协议参数
	if c.Protocol.WindowSize < 1 || c.Protocol.WindowSize > 4096 {
		return fmt.Errorf("protocol.window_size 需在 1-4096 之间")
	}
	if c.Protocol.SeqSpace < 2*c.Protocol.WindowSize {
		return fmt.Errorf("protocol.seqspace (%d) 需至少为 window_size (%d) 的 2 倍",
			c.Protocol.SeqSpace, c.Protocol.WindowSize)
	}
	if c.Protocol.RTT <= 0 {
		return fmt.Errorf("protocol.rtt 需大于 0")
	}

	// 仿真参数
	if c.Sim.Messages < 1 {
		return fmt.Errorf("sim.messages 需大于 0")
	}
	if c.Sim.LossProb < 0 || c.Sim.LossProb >= 1 {
		return fmt.Errorf("sim.loss_prob 需在 [0,1) 区间内")
	}
	if c.Sim.CorruptProb < 0 || c.Sim.CorruptProb >= 1 {
		return fmt.Errorf("sim.corrupt_prob 需在 [0,1) 区间内")
	}
	if c.Sim.MeanInterarrival <= 0 {
		return fmt.Errorf("sim.mean_interarrival 需大于 0")
	}

	// 批量试验参数
	if c.Runner.Trials < 1 {
		return fmt.Errorf("runner.trials 需大于 0")
	}
	if c.Runner.Parallelism < 1 || c.Runner.Parallelism > 256 {
		return fmt.Errorf("runner.parallelism 需在 1-256 之间")
	}

	// 监控与事件流端口不能冲突
	if c.Metrics.Enabled && c.Trace.Enabled && c.Metrics.Listen == c.Trace.Listen {
		return fmt.Errorf("metrics.listen 与 trace.listen 端口冲突: %s", c.Metrics.Listen)
	}

	return nil
}

// LogLevelInt 日志级别数值: 0 error, 1 info, 2 debug
func (c *Config) LogLevelInt() int {
	switch c.LogLevel {
	case "error":
		return 0
	case "debug":
		return 2
	default:
		return 1
	}
}

// =============================================================================
// 配置文件示例生成
// =============================================================================

// GenerateExampleConfig 生成示例配置
func GenerateExampleConfig() string {
	return `# ARQSim 配置文件示例
# =============================================================================

log_level: "info"                   # 日志级别: error, info, debug

# SR 协议参数
protocol:
  window_size: 6                    # 滑动窗口大小
  seqspace: 12                      # 序列号空间 (必须 >= 2 * window_size)
  rtt: 16.0                         # 重传定时器时长 (仿真时间单位)

# 信道与负载仿真
sim:
  messages: 20                      # 注入的应用消息总数
  loss_prob: 0.1                    # 丢包概率
  corrupt_prob: 0.1                 # 损坏概率
  mean_interarrival: 50.0           # 消息平均到达间隔
  seed: 0                           # 随机种子 (0 = 取当前时间)

# 批量试验
runner:
  trials: 1                         # 试验次数 (>1 时并发跑多个种子)
  parallelism: 4                    # 并发度

# Prometheus 监控
metrics:
  enabled: false
  listen: ":9100"                   # 监控端口
  path: "/metrics"                  # Prometheus 指标路径
  health_path: "/health"            # 健康检查路径
  enable_pprof: false               # 启用 pprof

# WebSocket 实时事件流
trace:
  enabled: false
  listen: ":9101"                   # 事件流端口
  path: "/trace"                    # WebSocket 路径
`
}

// WriteExampleConfig 写入示例配置文件
func WriteExampleConfig(path string) error {
	return os.WriteFile(path, []byte(GenerateExampleConfig()), 0644)
}
