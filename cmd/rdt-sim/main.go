// =============================================================================
// 文件: cmd/rdt-sim/main.go
// 描述: 主程序入口 - 在不可靠信道上运行 RDT 传输试验, 可选 Prometheus 指标
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
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/mrcgq/rdt/internal/config"
	"github.com/mrcgq/rdt/internal/harness"
	"github.com/mrcgq/rdt/internal/logging"
	"github.com/mrcgq/rdt/internal/metrics"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("c", "", "配置文件路径 (为空时使用默认配置)")
	data := flag.String("data", "", "待发送数据 (覆盖配置)")
	trials := flag.Int("trials", 0, "试验次数 (覆盖配置)")
	seed := flag.Int64("seed", -1, "信道随机种子 (覆盖配置)")
	logLevel := flag.String("log", "", "日志级别: debug/info/warn/error")
	showVersion := flag.Bool("v", false, "显示版本")
	genConfig := flag.Bool("gen-config", false, "生成示例配置文件")

	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	if *genConfig {
		if err := config.WriteExampleConfig("rdt.example.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "生成配置失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("已生成示例配置文件: rdt.example.yaml")
		return
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
			os.Exit(1)
		}
	}

	// 命令行覆盖
	if *data != "" {
		cfg.Harness.Data = *data
		cfg.Harness.DataFile = ""
	}
	if *trials > 0 {
		cfg.Harness.Trials = *trials
	}
	if *seed >= 0 {
		cfg.Channel.Seed = *seed
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "运行失败: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	payload, err := cfg.LoadData()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("收到退出信号, 停止试验")
			cancel()
		case <-ctx.Done():
		}
	}()

	opts := harness.Options{
		Engine:   cfg.EngineConfig(),
		Channel:  cfg.ChannelProfile(),
		MaxTicks: cfg.Harness.MaxTicks,
		Logger:   logger,
	}

	var server *metrics.Server
	if cfg.Metrics.Enabled {
		if server, err = setupMetrics(ctx, cfg, logger, &opts); err != nil {
			return err
		}
		defer server.Stop()
	}

	logger.Sugar().Infof("开始传输: %d 字节, %d 次试验, MSS=%d, 窗口=%d",
		len(payload), cfg.Harness.Trials, cfg.Engine.MaxSegmentBytes, cfg.Engine.WindowBytes)

	results, runErr := harness.RunTrials(ctx, payload, cfg.Harness.Trials, opts)
	printResults(results)

	if server != nil && runErr == nil {
		// 保持指标服务直到收到退出信号
		logger.Sugar().Infof("试验完成, 指标服务继续运行: %s%s (Ctrl+C 退出)",
			server.Addr(), cfg.Metrics.Path)
		<-ctx.Done()
	}

	return runErr
}

// setupMetrics 启动指标服务, 并在每次传输创建时注册其引擎与信道
func setupMetrics(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts *harness.Options) (*metrics.Server, error) {
	server := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, cfg.Metrics.HealthPath, logger)

	engines := metrics.NewEngineCollector()
	channels := metrics.NewChannelCollector()
	trialMetrics := metrics.NewTrialMetrics()

	server.MustRegister(engines)
	server.MustRegister(channels)
	if err := trialMetrics.Register(server.Registry()); err != nil {
		return nil, err
	}
	server.SetHealthCheck(trialMetrics.Health)

	opts.OnTransfer = func(trial int, tr *harness.Transfer) {
		engines.Add(trial, tr.Sender())
		engines.Add(trial, tr.Receiver())
		channels.Add(trial, "forward", tr.Forward())
		channels.Add(trial, "backward", tr.Backward())
		trialMetrics.Started()
	}
	opts.OnFinish = func(res *harness.Result, err error) {
		trialMetrics.Finished(res.Ticks, err == nil && res.Converged)
	}

	if err := server.Start(ctx); err != nil {
		return nil, err
	}
	return server, nil
}

func printResults(results []*harness.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRIAL\tTICKS\tOK\tSENT\tRETX\tFAST\tSTALE\tACKS\tCORRUPT\tDUP\tDROPPED")
	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Fprintf(w, "%d\t%d\t%v\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			r.Trial, r.Ticks, r.Converged,
			r.Sender.SegmentsSent, r.Sender.Retransmits,
			r.Sender.FastRetransmits, r.Sender.StaleRetransmits,
			r.Receiver.AcksSent,
			r.Receiver.Corrupted+r.Sender.Corrupted,
			r.Receiver.Duplicates,
			r.Forward.Dropped+r.Backward.Dropped)
	}
	w.Flush()
}

func printVersion() {
	fmt.Printf("RDT Simulator v%s\n", Version)
	fmt.Printf("  Build: %s\n", BuildTime)
	fmt.Printf("  Commit: %s\n", GitCommit)
	fmt.Printf("  Go: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
