package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"netwatch/internal/alert"
	"netwatch/internal/api"
	"netwatch/internal/api/storage"
	"netwatch/internal/baseline"
	"netwatch/internal/client"
	"netwatch/internal/correlator"
	"netwatch/internal/intel"
	"netwatch/internal/model"
	"netwatch/internal/pipeline"
	"netwatch/internal/rules"
	"netwatch/internal/source"
	"netwatch/internal/utils"

	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configFile   = flag.String("config", utils.DefaultConfigFile, "Configuration file path (YAML)")
		showVersion  = flag.Bool("version", false, "Show version information")
		pcapFile     = flag.String("pcap", "", "Replay a pcap capture instead of the configured source")
		testTelegram = flag.Bool("test-telegram", false, "Send test message to Telegram")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Print("netwatch"))
		return
	}

	config, err := utils.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load YAML config %s: %v\n", *configFile, err)
		fmt.Println("Using default configuration...")
		config = utils.GetDefaultConfig()
	}

	if *pcapFile != "" {
		config.Source.Type = "pcap"
		config.Source.PcapFile = *pcapFile
	}

	logger := utils.NewLoggerFromConfig(config.Logging)

	if *testTelegram {
		testTelegramNotification(config, logger)
		return
	}

	if err := run(config, logger); err != nil {
		logger.Fatalf("netwatch failed: %v", err)
	}
}

func run(config *utils.Config, logger *logrus.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	exporter, err := alert.NewPrometheusExporterWithCustomRegistry(config.GetPrometheusPort(), logger)
	if err != nil {
		return fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}
	metrics := exporter.GetMetrics()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := exporter.Start(ctx); err != nil {
			logger.Errorf("Prometheus exporter error: %v", err)
		}
	}()

	loaded := rules.LoadRules(config.Application.RulesDir, config.Application.RulesExtension, logger)
	metrics.SetRuleCounts(len(loaded.Rules), loaded.Failed())

	store := intel.Load(config.IntelFiles(), logger)
	store.SetHitScore(config.ThreatIntel.HitScore)
	counts := store.Counts()
	metrics.SetIntelCounts(counts.IPs, counts.Domains, counts.Hashes)

	engine := rules.NewEngine(rules.NewStore(loaded.Rules), logger)
	b := baseline.New()
	detector := baseline.NewDetector(b, config.Detection.UnusualPortThreshold, config.Detection.LargeTransferBytes)
	corr := correlator.NewCorrelator(store, config.CorrelatorConfig(), logger)

	processor := pipeline.NewProcessor(engine, b, detector, corr, store, logger)
	processor.SetMetrics(metrics)
	if config.Source.CaptureClock {
		processor.UseCaptureClock()
	}

	closers := registerAlertNotifiers(ctx, &wg, engine, config, logger)
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	if config.Application.APIEnabled {
		alertStore := storage.NewStorage(config.Application.MaxStoredAlerts, logger)
		engine.RegisterNotifier(alertStore)

		server := api.NewServer(config.Application.APIPort, alertStore, processor, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(ctx); err != nil {
				logger.Errorf("API server error: %v", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		printAlerts(ctx, engine.GetAlertChannel())
	}()

	policy, _ := pipeline.ParseBackpressure(config.Source.Backpressure)
	queue := pipeline.NewQueue(config.Source.QueueSize, policy, func() {
		processor.RecordDrop(config.Source.Type)
	})

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- processor.Run(ctx, queue.C())
	}()

	logger.WithFields(logrus.Fields{
		"source":       config.Source.Type,
		"rules":        len(loaded.Rules),
		"backpressure": policy,
	}).Info("NetWatch started")

	if err := startSource(ctx, config, metrics, queue, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("Packet source stopped: %v", err)
	}
	queue.Close()

	if err := <-consumerDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("Pipeline consumer error: %v", err)
	}

	stats := processor.Stats()
	logger.WithFields(logrus.Fields{
		"packets":   stats.PacketsProcessed,
		"alerts":    stats.AlertsEmitted,
		"dropped":   stats.PacketsDropped,
		"volume":    stats.TrafficVolume,
		"addresses": stats.ScoredAddresses,
	}).Info("Packet source drained")

	if ctx.Err() == nil && config.Application.APIEnabled {
		logger.Info("Source finished, API stays up until interrupted")
	}
	if ctx.Err() == nil && !config.Application.APIEnabled {
		cancel()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// startSource blocks until the configured packet source finishes
func startSource(ctx context.Context, config *utils.Config, metrics *client.PrometheusMetrics, queue *pipeline.Queue, logger *logrus.Logger) error {
	switch config.Source.Type {
	case "pcap":
		return source.NewPcapReplay(config.Source.PcapFile, logger).Run(ctx, queue)
	case "hubble":
		hubbleClient, err := client.NewHubbleGRPCClientWithMetrics(config.Source.HubbleServer, metrics, logger)
		if err != nil {
			return err
		}
		defer hubbleClient.Close()

		testCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := hubbleClient.TestConnection(testCtx); err != nil {
			logger.Warnf("Connection test failed: %v, continuing anyway", err)
		}
		cancel()

		return hubbleClient.StreamPackets(ctx, config.Source.Namespaces, queue)
	default:
		logger.Info("No packet source configured, waiting for shutdown")
		<-ctx.Done()
		return nil
	}
}

func registerAlertNotifiers(ctx context.Context, wg *sync.WaitGroup, engine *rules.Engine, config *utils.Config, logger *logrus.Logger) []func() {
	var closers []func()

	if config.Alerting.Channels.Log {
		engine.RegisterNotifier(alert.NewLogAlertNotifier(logger))
	}

	if config.Alerting.Channels.File {
		fileNotifier := alert.NewFileAlertNotifier(
			config.Alerting.File.Path,
			config.Alerting.File.MaxSizeMB,
			config.Alerting.File.MaxBackups,
			logger,
		)
		engine.RegisterNotifier(fileNotifier)
		closers = append(closers, func() { fileNotifier.Close() })
	}

	if config.Alerting.Channels.Telegram && config.Alerting.Telegram.Enabled {
		telegramNotifier := alert.NewTelegramNotifierWithTemplate(
			config.Alerting.Telegram.BotToken,
			config.Alerting.Telegram.ChatID,
			config.Alerting.Telegram.ParseMode,
			config.Alerting.Telegram.Enabled,
			config.Alerting.Telegram.MessageTemplate,
			logger,
		)
		telegramNotifier.SetFilter(config.Alerting.Telegram.MinThreatScore, config.Alerting.Telegram.EscalatedOnly)

		async := alert.NewAsyncNotifier("telegram", telegramNotifier, 100, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			async.Run(ctx)
		}()
		engine.RegisterNotifier(async)
	}

	return closers
}

func printAlerts(ctx context.Context, alerts <-chan model.Alert) {
	for {
		select {
		case a := <-alerts:
			timestamp := a.Timestamp.Format("2006-01-02 15:04:05")
			severityEmoji := "🟢"
			switch a.Severity() {
			case "HIGH":
				severityEmoji = "🔴"
			case "MEDIUM":
				severityEmoji = "🟡"
			}
			fmt.Printf("%s [%s] %s sid=%s score=%d %s\n", severityEmoji, timestamp, a.Severity(), a.Sid, a.ThreatScore, a.Msg)
		case <-ctx.Done():
			return
		}
	}
}

func testTelegramNotification(config *utils.Config, logger *logrus.Logger) {
	telegramNotifier := alert.NewTelegramNotifier(
		config.Alerting.Telegram.BotToken,
		config.Alerting.Telegram.ChatID,
		config.Alerting.Telegram.ParseMode,
		config.Alerting.Telegram.Enabled,
		logger,
	)

	if !telegramNotifier.IsEnabled() {
		fmt.Println("❌ Telegram notifier is disabled in configuration")
		os.Exit(1)
	}

	fmt.Println("Sending test message to Telegram...")
	if err := telegramNotifier.SendTestMessage(); err != nil {
		fmt.Printf("❌ Failed to send test message: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Test message sent successfully to Telegram!")
}
