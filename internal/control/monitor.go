package control

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	logger "log/slog"

	"github.com/vietddude/txmonitor/internal/core/config"
	"github.com/vietddude/txmonitor/internal/core/domain"
	"github.com/vietddude/txmonitor/internal/core/worker"
	"github.com/vietddude/txmonitor/internal/health"
	"github.com/vietddude/txmonitor/internal/infra/chain"
	redisclient "github.com/vietddude/txmonitor/internal/infra/redis"
	"github.com/vietddude/txmonitor/internal/infra/relay"
	"github.com/vietddude/txmonitor/internal/infra/storage"
	"github.com/vietddude/txmonitor/internal/infra/storage/memory"
	"github.com/vietddude/txmonitor/internal/infra/storage/postgres"
	"github.com/vietddude/txmonitor/internal/tracking/classifier"
	"github.com/vietddude/txmonitor/internal/tracking/notifier"
	"github.com/vietddude/txmonitor/internal/tracking/price"
	"github.com/vietddude/txmonitor/internal/tracking/registry"
	"github.com/vietddude/txmonitor/internal/tracking/retryq"
	"github.com/vietddude/txmonitor/internal/tracking/waiter"
)

// Config holds the application configuration.
type Config struct {
	Port     int
	Chains   []config.ChainConfig
	Redis    redisclient.Config
	Database postgres.Config
}

// Monitor is the main application struct managing the tracking lifecycle.
type Monitor struct {
	cfg          Config
	registry     *registry.Registry
	consumers    []*retryq.Consumer
	pruners      []*worker.Pruner
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	log          *logger.Logger
}

// NewMonitor creates a Monitor with all dependencies initialized.
func NewMonitor(cfg Config) (*Monitor, error) {
	log := logger.With("component", "monitor")

	// 1. Storage
	var attemptRepo storage.AttemptRepository
	var userOpRepo storage.UserOpRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			return nil, err
		}
		attemptRepo = postgres.NewAttemptRepo(db)
		userOpRepo = postgres.NewUserOpRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		attemptRepo = memory.NewAttemptRepo(store)
		userOpRepo = memory.NewUserOpRepo(store)
		log.Info("Using Memory storage")
	}

	// 2. Redis: idempotency markers, price table, and the retry channel
	redisClient, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	priceSvc := price.NewService(redisClient)
	publisher := retryq.NewPublisher(redisClient)

	// 3. Per-chain services
	reg := registry.New()
	var consumers []*retryq.Consumer
	var pruners []*worker.Pruner

	for _, chainCfg := range cfg.Chains {
		gateway, err := chain.NewClient(chainCfg.ChainID, chainCfg.Endpoints)
		if err != nil {
			return nil, err
		}

		var relayClient *relay.Client
		if chainCfg.Relay != nil {
			key := os.Getenv(chainCfg.Relay.AuthKeyEnv)
			if key == "" {
				log.Warn("relay auth key env is empty, private relay disabled",
					"chain", chainCfg.ChainID, "env", chainCfg.Relay.AuthKeyEnv)
			} else {
				relayClient, err = relay.NewClient(
					chainCfg.Relay.StatusURL, chainCfg.Relay.RPCURL, key)
				if err != nil {
					return nil, fmt.Errorf("chain %d: %w", chainCfg.ChainID, err)
				}
			}
		}

		cls := classifier.New(attemptRepo, userOpRepo, gateway, priceSvc, classifier.Config{
			ChainID:      chainCfg.ChainID,
			NativeSymbol: chainCfg.NativeSymbol,
			LogWindow:    chainCfg.LogWindow,
			BlockOffset:  chainCfg.BlockOffset,
		})

		var relayStatus waiter.RelayStatus
		if relayClient != nil {
			relayStatus = relayClient
		}
		wt := waiter.New(gateway, relayStatus, redisClient, cls, waiter.Config{
			ChainID:      chainCfg.ChainID,
			PollInterval: chainCfg.PollInterval,
			WaitTimeout:  chainCfg.WaitTimeout,
		})

		var relayPools, allPools []string
		for _, p := range chainCfg.Pools {
			allPools = append(allPools, p.Name)
			if p.UsePrivateRelay {
				relayPools = append(relayPools, p.Name)
			}
		}

		ntf := notifier.New(attemptRepo, userOpRepo, publisher, wt,
			chainCfg.ChainID, relayPools)

		reg.Register(&registry.ChainServices{
			ChainID:    chainCfg.ChainID,
			Name:       chainCfg.Name,
			Gateway:    gateway,
			Relay:      relayClient,
			Classifier: cls,
			Waiter:     wt,
			Notifier:   ntf,
		}, allPools)

		resub := retryq.NewHTTPResubmitter(chainCfg.ExecutionServiceURL)
		for _, p := range chainCfg.Pools {
			var poolRelay retryq.RelayStatus
			if p.UsePrivateRelay && relayClient != nil {
				poolRelay = relayClient
			}
			consumers = append(consumers, retryq.NewConsumer(
				redisClient, redisClient, gateway, poolRelay, resub,
				retryq.ConsumerConfig{
					Pool:            p.Name,
					ChainID:         chainCfg.ChainID,
					UsePrivateRelay: p.UsePrivateRelay,
					MaxRetries:      chainCfg.MaxRetries,
				},
			))
		}

		pruners = append(pruners, worker.NewPruner(chainCfg, attemptRepo))
	}

	// 4. Health/metrics server
	checkers := map[string]health.Checker{"redis": redisHealth{redisClient}}
	if db != nil {
		checkers["database"] = db
	}
	healthServer := health.NewServer(checkers, cfg.Port)

	return &Monitor{
		cfg:          cfg,
		registry:     reg,
		consumers:    consumers,
		pruners:      pruners,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          log,
	}, nil
}

// Registry exposes the per-chain services, e.g. for the request surface that
// feeds Notify calls.
func (m *Monitor) Registry() *registry.Registry {
	return m.registry
}

// Notify routes a broadcast notification to its chain's notifier.
func (m *Monitor) Notify(ctx context.Context, chainID uint64, req domain.NotifyRequest) bool {
	svc, ok := m.registry.Chain(chainID)
	if !ok {
		m.log.Error("notify for unknown chain", "chain", chainID, "tx_id", req.TransactionID)
		return false
	}
	return svc.Notifier.Notify(ctx, req)
}

// Start launches the retry consumers, pruners, and the health server.
func (m *Monitor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for _, c := range m.consumers {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			c.Run(runCtx)
		}()
	}
	for _, p := range m.pruners {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			p.Start(runCtx)
		}()
	}

	go func() {
		if err := m.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("health server failed", "error", err)
		}
	}()

	m.log.Info("monitor started",
		"chains", len(m.cfg.Chains), "consumers", len(m.consumers))
	return nil
}

// Stop shuts everything down, waiting for in-flight consumer work.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn("timed out waiting for workers")
	}

	if err := m.healthServer.Stop(ctx); err != nil {
		m.log.Warn("health server shutdown failed", "error", err)
	}
	for _, svc := range m.registry.Chains() {
		svc.Gateway.Close()
	}
	if m.db != nil {
		_ = m.db.Close()
	}
	_ = m.redisClient.Close()
	return nil
}

type redisHealth struct {
	c *redisclient.Client
}

func (r redisHealth) Health(ctx context.Context) error {
	return r.c.Health(ctx)
}
