package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/eth-withdrawals/withdrawals-publisher/api"
	"github.com/eth-withdrawals/withdrawals-publisher/business/chain"
	"github.com/eth-withdrawals/withdrawals-publisher/business/domain"
	"github.com/eth-withdrawals/withdrawals-publisher/business/domain/blocks"
	"github.com/eth-withdrawals/withdrawals-publisher/business/domain/supply"
	"github.com/eth-withdrawals/withdrawals-publisher/business/domain/validators"
	"github.com/eth-withdrawals/withdrawals-publisher/business/schema"
	"github.com/eth-withdrawals/withdrawals-publisher/external/beacon"
	"github.com/eth-withdrawals/withdrawals-publisher/external/elastic"
	"github.com/eth-withdrawals/withdrawals-publisher/external/etherscan"
	"github.com/eth-withdrawals/withdrawals-publisher/external/kafka"
	"github.com/eth-withdrawals/withdrawals-publisher/infrastructure/sink"
	"github.com/eth-withdrawals/withdrawals-publisher/infrastructure/sink/file"
	"github.com/eth-withdrawals/withdrawals-publisher/infrastructure/store/pebbledb"
	"github.com/eth-withdrawals/withdrawals-publisher/metrics"
)

const prefix = "ETH_WITHDRAWALS_PUBLISHER"

type config struct {
	Beacon     beacon.Config
	Chain      chain.Config
	Limits     schema.Limits
	Blocks     blocks.Config
	Validators validators.Config
	Supply     supply.Config
	Etherscan  etherscan.Config
	Sink       sink.Config
	Kafka      kafka.Config
	Elastic    elastic.Config
	Server     struct {
		StoreFolder      string `conf:"default:store"`
		ListenAddr       string `conf:"default:0.0.0.0:8000"`
		MetricsAddr      string `conf:"default:0.0.0.0:9999"`
		MetricsNamespace string `conf:"default:eth_withdrawals"`
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("main: exited with error: %s", err.Error())
	}
}

func run() error {
	log.SetOutput(os.Stdout) // default is stderr

	// the output format is validated before anything else is set up
	format, args, err := parseFormat(os.Args[1:])
	if err != nil {
		return err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "loading .env file")
	}

	var cfg config
	if err := conf.Parse(args, prefix, &cfg); err != nil {
		switch {
		case errors.Is(err, conf.ErrHelpWanted):
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return errors.Wrap(err, "generating config usage")
			}
			fmt.Println("usage: withdrawals-publisher [jsonl|json|csv] [flags]")
			fmt.Println(usage)
			return nil
		case errors.Is(err, conf.ErrVersionWanted):
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return errors.Wrap(err, "generating config version")
			}
			fmt.Println(version)
			return nil
		}
		return errors.Wrap(err, "parsing config")
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return errors.Wrap(err, "generating config for output")
	}
	log.Printf("main: Config :\n%v\n", out)
	log.Printf("main: Output format [%s].", format)

	zapConfig := zap.NewProductionConfig()
	// this is just for sugar, to display a readable date instead of an epoch time
	zapConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
	logger, err := zapConfig.Build()
	if err != nil {
		return errors.Wrap(err, "creating logger")
	}
	defer logger.Sync()
	sLogger := logger.Sugar()

	store, err := pebbledb.NewProcessorStore(cfg.Server.StoreFolder)
	if err != nil {
		return errors.Wrap(err, "creating processor store")
	}
	defer store.Close()

	targets, closeTargets, err := createTargets(cfg, format, sLogger)
	if err != nil {
		return errors.Wrap(err, "creating sinks")
	}
	defer closeTargets()
	publisher := sink.NewPublisher(sLogger, targets...)

	clock := chain.NewClock(cfg.Chain)
	beaconClient := beacon.NewClient(cfg.Beacon.Url, cfg.Beacon.ReadTimeout, cfg.Limits, sLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	pipelines := []string{domain.PipelineBlocks}
	blocksProcessor := blocks.NewProcessor(beaconClient, publisher, store, clock, cfg.Blocks,
		metrics.NewProcessingMetrics(cfg.Server.MetricsNamespace, domain.PipelineBlocks), sLogger)
	group.Go(func() error { return blocksProcessor.Start(ctx) })

	if cfg.Validators.Enabled {
		pipelines = append(pipelines, domain.PipelineValidators)
		validatorsProcessor := validators.NewProcessor(beaconClient, publisher, store, clock, cfg.Validators,
			metrics.NewProcessingMetrics(cfg.Server.MetricsNamespace, domain.PipelineValidators), sLogger)
		group.Go(func() error { return validatorsProcessor.Start(ctx) })
	} else {
		sLogger.Warn("Validators pipeline disabled")
	}

	if cfg.Supply.Enabled {
		etherscanClient, err := etherscan.NewClient(cfg.Etherscan)
		if err != nil {
			return errors.Wrap(err, "creating etherscan client")
		}
		supplyProcessor := supply.NewProcessor(etherscanClient, publisher, cfg.Supply,
			metrics.NewProcessingMetrics(cfg.Server.MetricsNamespace, domain.PipelineSupply), sLogger)
		group.Go(func() error { return supplyProcessor.Start(ctx) })
	}

	mux := http.NewServeMux()
	handler := api.NewHandler(store, pipelines, sLogger)
	mux.HandleFunc("/health", handler.GetHealth)
	mux.HandleFunc("/v1/status", handler.GetStatus)
	mux.HandleFunc("/v1/skipped", handler.GetSkippedSlots)
	apiServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}

	for _, server := range []*http.Server{apiServer, metricsServer} {
		group.Go(func() error {
			sLogger.Infow("Starting server", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrapf(err, "serving on [%s]", server.Addr)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		apiErr := apiServer.Shutdown(shutdownCtx)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutting down metrics server")
		}
		return errors.Wrap(apiErr, "shutting down api server")
	})

	sLogger.Infow("Service started", "pipelines", pipelines, "sinks", cfg.Sink.Targets)
	if err := group.Wait(); err != nil {
		return err
	}
	sLogger.Info("Service stopped")
	return nil
}

// parseFormat takes the optional leading output format argument. Everything else is left for the config parser.
func parseFormat(args []string) (file.Format, []string, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return file.FormatJsonl, args, nil
	}
	format, err := file.ParseFormat(args[0])
	if err != nil {
		return "", nil, err
	}
	return format, args[1:], nil
}

func createTargets(cfg config, format file.Format, logger *zap.SugaredLogger) ([]sink.Target, func(), error) {
	var (
		targets []sink.Target
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, name := range cfg.Sink.Targets {
		switch name {
		case "file":
			fileSink, err := file.NewSink(cfg.Sink.DataDir, format)
			if err != nil {
				closeAll()
				return nil, nil, errors.Wrap(err, "creating file sink")
			}
			targets = append(targets, fileSink)
		case "kafka":
			m := kprom.NewMetrics(cfg.Server.MetricsNamespace,
				kprom.Registerer(prometheus.DefaultRegisterer),
				kprom.Gatherer(prometheus.DefaultGatherer))
			kcl, err := kgo.NewClient(
				kgo.WithHooks(m),
				kgo.SeedBrokers(cfg.Kafka.BootstrapServers...),
				kgo.ProducerBatchCompression(kgo.ZstdCompression()),
			)
			if err != nil {
				closeAll()
				return nil, nil, errors.Wrap(err, "creating kafka client")
			}
			closers = append(closers, kcl.Close)
			targets = append(targets, kafka.NewClient(kcl, cfg.Kafka.TopicPrefix, logger))
		case "elastic":
			esClient, err := elastic.NewClient(cfg.Elastic)
			if err != nil {
				closeAll()
				return nil, nil, errors.Wrap(err, "creating elastic client")
			}
			targets = append(targets, esClient)
		default:
			closeAll()
			return nil, nil, errors.Errorf("unknown sink [%s]", name)
		}
	}
	return targets, closeAll, nil
}
