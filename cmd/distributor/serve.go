package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Viewly/token-contracts/internal/chain"
	"github.com/Viewly/token-contracts/internal/config"
	"github.com/Viewly/token-contracts/internal/logger"
	"github.com/Viewly/token-contracts/internal/prompt"
	"github.com/Viewly/token-contracts/internal/repository"
	"github.com/Viewly/token-contracts/internal/router"
	"github.com/Viewly/token-contracts/internal/task"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func serveCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve <store>",
		Short: "Serve a read-only ledger API, optionally running payout and verify on a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dbCfg, err := storeConfig(cfg, args[0])
			if err != nil {
				return err
			}
			return serveRun(cmd.Context(), cfg, dbCfg, watch)
		},
	}
	addChainFlags(cmd)
	addPayoutFlags(cmd)
	cmd.Flags().BoolVar(&watch, "watch", false, "run payout then verify every task.interval seconds")
	cmd.Flags().String("retry-policy", "", "what the scheduled verifier does with failed transactions: approve, deny")
	cmd.Flags().String("port", "", "HTTP listen port")
	return cmd
}

func serveRun(ctx context.Context, cfg *config.Config, dbCfg config.DatabaseConfig, watch bool) error {
	repo, err := repository.Open(dbCfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	network, err := chain.ResolveNetwork(cfg.Chain)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := task.NewMetrics(registry)

	var health router.HealthFunc
	if watch {
		scheduler, chainManager, err := startWatch(ctx, cfg, repo, metrics)
		if err != nil {
			return err
		}
		defer chainManager.Close()
		defer scheduler.Stop()
		health = chainManager.GetHealthStatus
	}

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := router.Setup(repo, network, registry, health)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startWatch 启动定时发放与核对，同一时刻只有一轮在执行
func startWatch(ctx context.Context, cfg *config.Config, repo *repository.PayoutRepository, metrics *task.Metrics) (*task.Manager, *chain.Manager, error) {
	if err := cfg.ValidatePayout(); err != nil {
		return nil, nil, err
	}

	// 无人值守时不能交互确认
	policy := cfg.Verify.RetryPolicy
	if policy == prompt.PolicyAsk || policy == "" {
		logger.Warn("Retry policy %q needs a terminal, scheduled verifier will leave failed records for review", policy)
		policy = prompt.PolicyDeny
	}
	confirmer, err := prompt.FromPolicy(policy, os.Stdin, os.Stdout)
	if err != nil {
		return nil, nil, err
	}

	contract, err := chain.NewContract("payout", cfg.Payout.ContractAddress, cfg.Payout.ABIPath)
	if err != nil {
		return nil, nil, err
	}

	chainManager, err := chain.NewManager(ctx, cfg.Chain)
	if err != nil {
		return nil, nil, err
	}
	from, err := chainManager.Authorize(cfg.Operator)
	if err != nil {
		chainManager.Close()
		return nil, nil, err
	}

	payout := task.NewPayoutJob(repo, chainManager.Client(), contract, task.PayoutOptions{
		Method:   cfg.Payout.Method,
		Decimals: cfg.Payout.Decimals,
		GasLimit: cfg.Payout.GasLimit,
		From:     from,
	}, metrics)
	verify := task.NewVerifyJob(repo, chainManager.Client(), confirmer, cfg.Chain.Confirmations, metrics)

	scheduler, err := task.NewManager()
	if err != nil {
		chainManager.Close()
		return nil, nil, err
	}
	interval := time.Duration(cfg.Task.Interval) * time.Second
	if err := scheduler.Register(task.NewCycleJob(ctx, payout, verify, interval)); err != nil {
		chainManager.Close()
		return nil, nil, err
	}
	scheduler.Start()

	return scheduler, chainManager, nil
}
