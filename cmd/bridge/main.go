// Command bridge is the Lightning/on-chain escrow bridge daemon: it serves
// the public payment-request API, the operator service (/claim, /transfer,
// /health), and runs the credit monitor loop in the background, all against
// one shared chain gateway, Lightning client, and JSON store.
package main

import (
	"context"
	"fmt"
	"net/http"
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
	"github.com/protocolbridge/ln-escrow-bridge/internal/httpapi"
	"github.com/protocolbridge/ln-escrow-bridge/internal/lightning"
	"github.com/protocolbridge/ln-escrow-bridge/internal/orchestrator"
	"github.com/protocolbridge/ln-escrow-bridge/internal/paymentapi"
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
	root := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	configPath := config.Path(root).Join("config.toml")
	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.Log

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

	var redisCfg cache.Config
	if err := copier.Copy(&redisCfg, &Cfg.Redis); err != nil {
		return fmt.Errorf("failed to copy cache config: %w", err)
	}
	var locker orchestrator.DistributedLocker
	var publisher creditmonitor.Publisher
	if Cfg.Redis.Host != "" {
		if err := cache.Init(redisCfg); err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		defer cache.Close()
		locker = orchestrator.NewRedisLocker(cache.Client)
		queue := streams.NewStreamQueue(cache.Client)
		publisher = queue
		ctx := context.Background()
		if err := queue.DeclareStream(ctx, creditmonitor.CreditTransferStream, "credit_transfer_workers"); err != nil {
			return fmt.Errorf("failed to declare credit transfer stream: %w", err)
		}
	} else {
		log.Warn("no redis configured: running without cross-process locking or credit-transfer durability")
	}

	orch := orchestrator.New(orchestrator.Config{
		PayRetryForSeconds: Cfg.PayRetryForSeconds,
		MaxFeePercent:      Cfg.MaxFeePercent,
	}, chainGW, lnClient, st, locker, nil, log)

	monitor := creditmonitor.New(creditmonitor.Config{
		Interval:      time.Duration(Cfg.CreditMonitor.IntervalMs) * time.Millisecond,
		RetryDelay:    time.Duration(Cfg.CreditMonitor.RetryMs) * time.Millisecond,
		StaleAfter:    time.Duration(Cfg.CreditMonitor.StaleMs) * time.Millisecond,
		TokenDecimals: Cfg.Chain.TokenDecimals,
	}, lnClient, creditmonitor.WrapGateway(chainGW), st, escrow.IsWellFormedAddress, publisher, nil, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go monitor.Run(ctx)

	opAPI := httpapi.New(chainGW, st, log)
	opSrv := &http.Server{Addr: "127.0.0.1:" + Cfg.OperatorServicePort, Handler: opAPI.Router}
	go func() {
		log.Info("operator service listening", zap.String("port", Cfg.OperatorServicePort))
		if err := opSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("operator service stopped", zap.Error(err))
		}
	}()

	payAPI := paymentapi.New(orch, log)
	paySrv := &http.Server{Addr: ":" + Cfg.ListenPort, Handler: payAPI.Router}
	go func() {
		log.Info("payment service listening", zap.String("port", Cfg.ListenPort))
		if err := paySrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("payment service stopped", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = opSrv.Shutdown(shutdownCtx)
	_ = paySrv.Shutdown(shutdownCtx)
	log.Info("bridge shut down gracefully")
	return nil
}
