package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/zero-finance/treasury-engine/pkg/app/http"
	"github.com/zero-finance/treasury-engine/pkg/bridge"
	"github.com/zero-finance/treasury-engine/pkg/chains"
	"github.com/zero-finance/treasury-engine/pkg/config"
	"github.com/zero-finance/treasury-engine/pkg/events"
	"github.com/zero-finance/treasury-engine/pkg/evm"
	"github.com/zero-finance/treasury-engine/pkg/executor"
	"github.com/zero-finance/treasury-engine/pkg/oracle"
	"github.com/zero-finance/treasury-engine/pkg/pgutil"
	"github.com/zero-finance/treasury-engine/pkg/policy"
	"github.com/zero-finance/treasury-engine/pkg/quote"
	"github.com/zero-finance/treasury-engine/pkg/reconcile"
	"github.com/zero-finance/treasury-engine/pkg/safes"
	"github.com/zero-finance/treasury-engine/pkg/signer"
	"github.com/zero-finance/treasury-engine/pkg/vaults"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting treasury server",
		zap.String("config", *configPath),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Treasury server failed", zap.Error(err))
	}
	logger.Info("Treasury server stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database))

	registry, err := chains.NewRegistry(cfg.Chains)
	if err != nil {
		return fmt.Errorf("failed to build chain registry: %w", err)
	}

	// One ethclient per chain; the same client serves balance reads, Safe
	// submission and destination-chain log scans.
	backends := make(map[int64]executor.ChainBackend)
	readers := make(map[int64]oracle.ChainReader)
	watchers := make(map[int64]bridge.ChainWatcher)
	deployClients := make(map[int64]safes.ChainClient)
	for _, chain := range registry.All() {
		client, err := evm.NewClient(chain, cfg.Signer.PrivateKey, &cfg.Executor, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to chain %d: %w", chain.ID, err)
		}
		defer client.Close()
		backends[chain.ID] = client
		readers[chain.ID] = client
		watchers[chain.ID] = client
		deployClients[chain.ID] = client
	}

	signerProvider, err := signer.NewLocalProvider(cfg.Signer.PrivateKey)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	bus := events.NewBus(64)
	balances := oracle.New(registry, readers, logger)
	exec := executor.New(backends, signerProvider,
		common.HexToAddress(cfg.Contracts.MultiSend), cfg.Executor, logger)

	safeStore := safes.NewStore(db)
	policyStore := policy.NewStore(db)
	bridgeStore := bridge.NewStore(db)
	runStore := reconcile.NewStore(db)
	vaultRegistry := vaults.NewRegistry(db)

	deployer := safes.NewDeployer(safeStore, deployClients, safes.DeployerOptions{
		Factory:         common.HexToAddress(cfg.Contracts.ProxyFactory),
		Singleton:       common.HexToAddress(cfg.Contracts.SafeSingleton),
		FallbackHandler: common.HexToAddress(cfg.Contracts.FallbackHandler),
	}, bus, logger)

	quotes, err := quote.NewClient(cfg.Bridge.QuoteURL, quote.Options{})
	if err != nil {
		return fmt.Errorf("failed to create quote client: %w", err)
	}

	coordinator := bridge.NewCoordinator(registry, bridgeStore, quotes, exec, watchers, cfg.Bridge, bus, logger)
	coordinator.Start()
	defer coordinator.Stop()

	runner := reconcile.NewRunner(registry, safeStore, policyStore, balances, exec,
		runStore, cfg.Reconciliation, cfg.Allocation, bus, logger)
	runner.Start()
	defer runner.Stop()

	if cfg.Monitoring.Enabled {
		go serveMetrics(cfg.Monitoring.MetricsPort, logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Route("/api", func(api chi.Router) {
		safes.RegisterRoutes(api, safeStore, deployer, logger)
		policy.RegisterRoutes(api, policyStore, logger)
		reconcile.RegisterRoutes(api, runner, runStore, logger)
		bridge.RegisterRoutes(api, coordinator, vaultRegistry, logger)
	})

	return apphttp.ServeAndWait(ctx, r, logger, &cfg.Server)
}

func serveMetrics(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info("Metrics server listening", zap.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server error", zap.Error(err))
	}
}
