package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hewenyu/ecosystem-discovery/internal/analyzer"
	"github.com/hewenyu/ecosystem-discovery/internal/autodetect"
	"github.com/hewenyu/ecosystem-discovery/internal/config"
	"github.com/hewenyu/ecosystem-discovery/internal/coordinator"
	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
	"github.com/hewenyu/ecosystem-discovery/internal/fetcher"
	"github.com/hewenyu/ecosystem-discovery/internal/health"
	"github.com/hewenyu/ecosystem-discovery/internal/registry"
	"github.com/hewenyu/ecosystem-discovery/internal/resolver"
	"github.com/hewenyu/ecosystem-discovery/internal/server"
	"github.com/hewenyu/ecosystem-discovery/internal/store/descriptor"
	"github.com/hewenyu/ecosystem-discovery/internal/store/etcd"
	"github.com/hewenyu/ecosystem-discovery/internal/synthesizer"
)

var (
	configFile  string
	discoverArg string
	discoverAll bool
	dryRun      bool
	showStats   bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "配置文件路径")
	flag.StringVar(&discoverArg, "discover", "", "一次性发现单个服务，格式为 name=url")
	flag.BoolVar(&discoverAll, "discover-all", false, "一次性发现全部已配置的候选服务")
	flag.BoolVar(&dryRun, "dry-run", false, "只分析不注册")
	flag.BoolVar(&showStats, "stats", false, "打印注册中心统计后退出")
}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Ecosystem Discovery Service Starting...",
		zap.String("version", "0.1.0"),
		zap.String("etcd_endpoints", fmt.Sprintf("%v", cfg.Etcd.Endpoints)),
		zap.Int("api_port", cfg.API.Port),
		zap.String("registry_address", cfg.Registry.Address),
	)

	// 初始化描述符存储，etcd不可用时回退到内存存储
	store, closeStore := buildStore(cfg, logger)
	defer closeStore()

	reg := registry.NewResilientClient(registry.OptionsFromConfig(cfg), logger)

	var detector autodetect.Detector
	if cfg.AutoDetect.Enabled {
		detector = autodetect.NewDetector(
			cfg.AutoDetect.DNSServer,
			cfg.AutoDetect.Domain,
			cfg.AutoDetect.Candidates,
			cfg.AutoDetect.CacheTTL,
			logger,
		)
	}

	monitor := health.NewMonitor(store, cfg.Health.ProbeInterval, cfg.Health.ProbeTimeout, cfg.Health.StaleTTL, logger)

	coord := coordinator.NewCoordinator(coordinator.Options{
		Resolver:       resolver.NewAddressResolver(logger),
		Fetcher:        fetcher.NewInterfaceFetcher(cfg.Discovery.InterfacePath, cfg.Discovery.FetchTimeout, logger),
		Synthesizer:    synthesizer.NewToolSynthesizer(logger),
		Analyzer:       analyzer.NewDependencyAnalyzer(logger),
		Registry:       reg,
		Store:          store,
		Prober:         monitor,
		Detector:       detector,
		WorkerPoolSize: cfg.Discovery.WorkerPoolSize,
		BatchDeadline:  cfg.Discovery.BatchDeadline,
	}, logger)

	// 一次性命令模式
	if showStats {
		printJSON(reg.Stats())
		return
	}
	if discoverArg != "" {
		runSingleDiscovery(coord, logger)
		return
	}
	if discoverAll {
		runBulkDiscovery(coord, logger)
		return
	}

	// 服务模式
	monitor.StartCleanupTask()
	defer monitor.Stop()

	handler := server.NewDiscoveryHandler(coord, reg, store, logger)
	srv := server.NewServer(handler, cfg, logger)
	if err := srv.Start(); err != nil {
		logger.Error("启动发现API服务失败", zap.Error(err))
		os.Exit(1)
	}

	// 等待信号以优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("接收到关闭信号，正在优雅关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("关闭发现API服务失败", zap.Error(err))
	}
}

// buildStore 连接etcd构建描述符存储，失败时回退到内存存储
func buildStore(cfg *config.Config, logger config.Logger) (descriptor.DescriptorStore, func()) {
	etcdClient, err := etcd.NewClient(&etcd.Config{
		Endpoints:      cfg.Etcd.Endpoints,
		Username:       cfg.Etcd.Username,
		Password:       cfg.Etcd.Password,
		DialTimeout:    cfg.Etcd.DialTimeout,
		RequestTimeout: cfg.Etcd.RequestTimeout,
	})
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if perr := etcdClient.Ping(ctx); perr == nil {
			logger.Info("etcd连接成功并通过健康检查")
			return descriptor.NewEtcdDescriptorStore(etcdClient), func() { _ = etcdClient.Close() }
		}
		_ = etcdClient.Close()
	}

	logger.Warn("etcd不可用，回退到内存描述符存储", zap.Error(err))
	return descriptor.NewMemoryDescriptorStore(), func() {}
}

// runSingleDiscovery 执行一次单服务发现并打印结果
func runSingleDiscovery(coord *coordinator.Coordinator, logger config.Logger) {
	parts := strings.SplitN(discoverArg, "=", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		fmt.Fprintln(os.Stderr, "参数格式错误，期望 -discover name=url")
		os.Exit(1)
	}

	result, err := coord.DiscoverService(context.Background(), &model.SingleDiscoveryRequest{
		ServiceName: parts[0],
		ServiceURL:  parts[1],
		DryRun:      dryRun,
	})
	if err != nil {
		logger.Error("单服务发现失败", zap.Error(err))
		os.Exit(1)
	}

	printJSON(result)
}

// runBulkDiscovery 对配置中的候选服务执行一次自动发现并打印结果
func runBulkDiscovery(coord *coordinator.Coordinator, logger config.Logger) {
	result, err := coord.Discover(context.Background(), &model.BulkDiscoveryRequest{
		AutoDetect: true,
		DryRun:     dryRun,
	})
	if err != nil {
		logger.Error("批量发现失败", zap.Error(err))
		os.Exit(1)
	}

	printJSON(result)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "序列化结果失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
