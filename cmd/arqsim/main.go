// =============================================================================
// 文件: cmd/arqsim/main.go
// 描述: 主程序入口 - SR 协议仿真, 集成 Prometheus 指标与实时事件流
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/mrcgq/arqsim/internal/config"
	"github.com/mrcgq/arqsim/internal/metrics"
	"github.com/mrcgq/arqsim/internal/protocol"
	"github.com/mrcgq/arqsim/internal/runner"
	"github.com/mrcgq/arqsim/internal/trace"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
	startTime = time.Now()
)

func main() {
	configPath := flag.String("c", "config.yaml", "配置文件路径")
	showVersion := flag.Bool("v", false, "显示版本")
	genConfig := flag.Bool("gen-config", false, "生成示例配置文件")

	// 仿真参数覆盖 (负值表示不覆盖)
	messages := flag.Int("messages", -1, "仿真注入的消息数")
	lossProb := flag.Float64("loss", -1, "单包丢失概率 [0,1)")
	corruptProb := flag.Float64("corrupt", -1, "单包损坏概率 [0,1)")
	seed := flag.Int64("seed", 0, "随机种子 (0 表示取当前时间)")
	windowSize := flag.Int("window", 0, "发送窗口大小")
	seqSpace := flag.Int("seqspace", 0, "序列号空间模数")
	trials := flag.Int("trials", 0, "试验次数")
	parallel := flag.Int("parallel", 0, "并发试验数")

	// 观测相关参数
	enableMetrics := flag.Bool("metrics", false, "开启 Prometheus 指标服务")
	enableTrace := flag.Bool("trace", false, "开启 WebSocket 事件流服务")
	hold := flag.Bool("hold", false, "仿真结束后保持观测服务运行")

	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	if *genConfig {
		if err := config.WriteExampleConfig("config.example.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "生成配置失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("已生成示例配置文件: config.example.yaml")
		return
	}

	// 加载配置: 未显式指定且文件不存在时退回默认值
	var cfg *config.Config
	if _, err := os.Stat(*configPath); os.IsNotExist(err) && *configPath == "config.yaml" {
		cfg = config.DefaultConfig()
	} else {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
			os.Exit(1)
		}
	}

	// 命令行覆盖
	if *messages >= 0 {
		cfg.Sim.Messages = *messages
	}
	if *lossProb >= 0 {
		cfg.Sim.LossProb = *lossProb
	}
	if *corruptProb >= 0 {
		cfg.Sim.CorruptProb = *corruptProb
	}
	if *seed != 0 {
		cfg.Sim.Seed = *seed
	}
	if *windowSize > 0 {
		cfg.Protocol.WindowSize = *windowSize
	}
	if *seqSpace > 0 {
		cfg.Protocol.SeqSpace = *seqSpace
	}
	if *trials > 0 {
		cfg.Runner.Trials = *trials
	}
	if *parallel > 0 {
		cfg.Runner.Parallelism = *parallel
	}
	if *enableMetrics {
		cfg.Metrics.Enabled = true
	}
	if *enableTrace {
		cfg.Trace.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *hold); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, hold bool) error {
	proto := protocol.Config{
		WindowSize: cfg.Protocol.WindowSize,
		SeqSpace:   cfg.Protocol.SeqSpace,
		RTT:        cfg.Protocol.RTT,
	}
	logLevel := cfg.LogLevelInt()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 指标服务
	var metricsServer *metrics.Server
	recorder := metrics.NewRecorder()

	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(
			cfg.Metrics.Listen,
			cfg.Metrics.Path,
			cfg.Metrics.HealthPath,
			cfg.Metrics.EnablePprof,
		)
		metricsServer.MustRegisterCollector(metrics.NewSimulationCollector(recorder))
		metricsServer.SetHealthCheck(func() metrics.HealthStatus {
			return createHealthStatus(recorder)
		})

		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("Metrics 启动失败: %w", err)
		}
		defer metricsServer.Stop()
	}

	// 事件流服务
	var traceServer *trace.Server
	if cfg.Trace.Enabled {
		traceServer = trace.NewServer(cfg.Trace.Listen, cfg.Trace.Path, logLevel)
		if err := traceServer.Start(ctx); err != nil {
			return fmt.Errorf("事件流启动失败: %w", err)
		}
		defer traceServer.Stop()
	}

	r, err := runner.New(proto, cfg.Sim, cfg.Runner, logLevel)
	if err != nil {
		return fmt.Errorf("创建执行器失败: %w", err)
	}
	r.SetObserver(recorder.Observe)

	printBanner(cfg)

	// 事件流只在单次试验模式下开启, 多试验并行会使事件交错
	failed := false
	if cfg.Runner.Trials == 1 && traceServer != nil {
		report, err := r.RunObserved(traceServer)
		if err != nil {
			return fmt.Errorf("仿真失败: %w", err)
		}
		fmt.Print(report.Summary())
		failed = !report.Passed()
	} else {
		agg, err := r.Run(ctx)
		if err != nil {
			return fmt.Errorf("仿真失败: %w", err)
		}
		fmt.Print(agg.Summary())
		failed = !agg.AllPassed()
	}

	if hold && (metricsServer != nil || traceServer != nil) {
		fmt.Println("观测服务保持运行, 按 Ctrl+C 退出")
		waitForSignal()
	}

	if failed {
		return fmt.Errorf("存在未通过核验的试验")
	}
	return nil
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\n正在关闭...")
}

// createHealthStatus 根据累加器状态生成健康报告
func createHealthStatus(rec *metrics.Recorder) metrics.HealthStatus {
	status := metrics.HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Uptime:     time.Since(startTime).String(),
		Components: make(map[string]metrics.ComponentHealth),
	}

	run := rec.GetTrialsRun()
	passed := rec.GetTrialsPassed()

	if run > passed {
		status.Status = "degraded"
		status.Components["verification"] = metrics.ComponentHealth{
			Status:  "degraded",
			Message: fmt.Sprintf("failed_trials: %d", run-passed),
		}
	} else {
		status.Components["verification"] = metrics.ComponentHealth{
			Status:  "healthy",
			Message: fmt.Sprintf("trials: %d", run),
		}
	}

	return status
}

func printVersion() {
	fmt.Printf("arqsim v%s\n", Version)
	fmt.Printf("  Build: %s\n", BuildTime)
	fmt.Printf("  Commit: %s\n", GitCommit)
	fmt.Printf("  Go: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Println()
	fmt.Println("选择重传 (Selective Repeat) 协议仿真器")
	fmt.Println()
	fmt.Println("使用示例:")
	fmt.Println("  # 默认参数单次仿真")
	fmt.Println("  arqsim")
	fmt.Println()
	fmt.Println("  # 高丢包批量试验")
	fmt.Println("  arqsim -trials 100 -parallel 8 -loss 0.3 -seed 42")
	fmt.Println()
	fmt.Println("  # 带实时观测")
	fmt.Println("  arqsim -metrics -trace -hold")
	fmt.Println()
	fmt.Println("监控:")
	fmt.Println("  - /metrics  : Prometheus 格式指标")
	fmt.Println("  - /health   : JSON 健康状态")
	fmt.Println("  - /trace    : WebSocket 实时事件流")
}

func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════════╗")
	fmt.Printf("║         arqsim v%s - 选择重传协议仿真                         ║\n", Version)
	fmt.Println("╠══════════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  窗口/序列空间: %-49s ║\n",
		fmt.Sprintf("%d / %d", cfg.Protocol.WindowSize, cfg.Protocol.SeqSpace))
	fmt.Printf("║  重传定时器:    %-49s ║\n", fmt.Sprintf("%.1f 时间单位", cfg.Protocol.RTT))
	fmt.Printf("║  信道:          %-49s ║\n",
		fmt.Sprintf("丢失 %.0f%% / 损坏 %.0f%%", 100*cfg.Sim.LossProb, 100*cfg.Sim.CorruptProb))
	fmt.Printf("║  负载:          %-49s ║\n",
		fmt.Sprintf("%d 条消息, 平均间隔 %.0f", cfg.Sim.Messages, cfg.Sim.MeanInterarrival))
	fmt.Printf("║  试验:          %-49s ║\n",
		fmt.Sprintf("%d 次, 并发 %d", cfg.Runner.Trials, cfg.Runner.Parallelism))
	if cfg.Metrics.Enabled {
		fmt.Printf("║  Prometheus:    http://localhost%s%-25s ║\n", cfg.Metrics.Listen, cfg.Metrics.Path)
	}
	if cfg.Trace.Enabled {
		fmt.Printf("║  事件流:        ws://localhost%s%-27s ║\n", cfg.Trace.Listen, cfg.Trace.Path)
	}
	fmt.Println("╚══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
}
