// Command creditmonitor runs CreditMonitor as a standalone
// worker process, separable from cmd/bridge for deployments that want the
// HTTP surface and the background reconciliation loop scaled independently.
// It also runs the Streams consumer that recovers credit transfers a
// crashed monitor left mid-flight.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"

	"github.com/protocolbridge/ln-escrow-bridge/config"
	"github.com/protocolbridge/ln-escrow-bridge/internal/chain"
	"github.com/protocolbridge/ln-escrow-bridge/internal/creditmonitor"
	"github.com/protocolbridge/ln-escrow-bridge/internal/escrow"
	"github.com/protocolbridge/ln-escrow-bridge/internal/lightning"
	"github.com/protocolbridge/ln-escrow-bridge/internal/secrets"
	"github.com/protocolbridge/ln-escrow-bridge/internal/store"
	"github.com/protocolbridge/ln-escrow-bridge/pkg/cache"
	"github.com/protocolbridge/ln-escrow-bridge/pkg/logger"
	streams "github.com/protocolbridge/ln-escrow-bridge/pkg/queue"
)

var Cfg config.BridgeConfig

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := logger.Init(logger.GetEnv()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(filename))))
	configPath := config.Path(root).Join("config.toml")
	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.Log

	logger.Info("starting credit monitor worker...")

	var redisCfg cache.Config
	if err := copier.Copy(&redisCfg, &Cfg.Redis); err != nil {
		return fmt.Errorf("failed to copy cache config: %w", err)
	}
	if err := cache.Init(redisCfg); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cache.Close()

	operatorKey, err := secrets.ResolveOperatorKey(Cfg.Chain.OperatorPrivateKey, Cfg.Chain.OperatorKeyPassword)
	if err != nil {
		return fmt.Errorf("failed to resolve operator key: %w", err)
	}

	chainGW, err := chain.NewGateway(chain.Config{
		RPCURL:             Cfg.Chain.RPCURL,
		EscrowAddress:      Cfg.Chain.EscrowAddress,
		TokenAddress:       Cfg.Chain.TokenAddress,
		TokenDecimals:      Cfg.Chain.TokenDecimals,
		OperatorAddress:    Cfg.Chain.OperatorAddress,
		OperatorPrivateKey: operatorKey,
		RequestTimeout:     time.Duration(Cfg.Chain.RequestTimeoutMs) * time.Millisecond,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize chain gateway: %w", err)
	}

	lnClient, err := lightning.NewClient(lightning.Config{
		RESTURL:        Cfg.Lightning.RESTURL,
		AuthTokenPath:  Cfg.Lightning.AuthTokenPath,
		RequestTimeout: time.Duration(Cfg.Lightning.RequestTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize lightning client: %w", err)
	}

	st, err := store.New(Cfg.DataFilePath, log)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	queue := streams.NewStreamQueue(cache.Client)
	streamName := creditmonitor.CreditTransferStream
	groupName := "credit_transfer_workers"
	consumerName := fmt.Sprintf("credit-worker-%d", time.Now().Unix())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queue.DeclareStream(ctx, streamName, groupName); err != nil {
		return fmt.Errorf("failed to declare the consumer group: %w", err)
	}

	monitor := creditmonitor.New(creditmonitor.Config{
		Interval:      time.Duration(Cfg.CreditMonitor.IntervalMs) * time.Millisecond,
		RetryDelay:    time.Duration(Cfg.CreditMonitor.RetryMs) * time.Millisecond,
		StaleAfter:    time.Duration(Cfg.CreditMonitor.StaleMs) * time.Millisecond,
		TokenDecimals: Cfg.Chain.TokenDecimals,
	}, lnClient, creditmonitor.WrapGateway(chainGW), st, escrow.IsWellFormedAddress, queue, nil, log)

	go monitor.Run(ctx)

	go func() {
		err := queue.Consume(ctx, streamName, groupName, consumerName,
			func(messageID string, data []byte) error {
				return monitor.RetryCredit(ctx, data)
			})
		if err != nil && err != context.Canceled {
			logger.Error("credit transfer consumer error", zap.Error(err))
		}
	}()

	logger.Info("credit monitor worker is running",
		zap.String("stream", streamName),
		zap.String("group", groupName),
		zap.String("consumer", consumerName),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	time.Sleep(3 * time.Second)
	logger.Info("credit monitor worker shut down gracefully")
	return nil
}
