package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Viewly/token-contracts/internal/config"
	"github.com/Viewly/token-contracts/internal/logger"
	"github.com/spf13/cobra"
)

const programName = "distributor"

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

// loadConfig 读取配置并初始化日志，命令行参数覆盖配置文件
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if globalFlags.debug {
		cfg.Log.Level = "debug"
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// storeConfig 位置参数指定账本：sqlite 为文件路径，其余驱动为库名
func storeConfig(cfg *config.Config, store string) (config.DatabaseConfig, error) {
	db := cfg.Database
	if store != "" {
		if db.Driver == "" || db.Driver == "sqlite" {
			db.Path = store
		} else {
			db.DBName = store
		}
	}
	check := config.Config{Database: db}
	if err := check.ValidateDatabase(); err != nil {
		return config.DatabaseConfig{}, err
	}
	return db, nil
}

// addChainFlags 节点接入参数
func addChainFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "node provider: http, ws, ipc, parity, infura")
	cmd.Flags().String("chain", "", "chain name, e.g. mainnet, sepolia, testrpc")
	cmd.Flags().String("rpc-url", "", "node URL for the http and ws providers")
	cmd.Flags().String("ipc-path", "", "IPC socket path, defaults to the geth location for the chain")
	cmd.Flags().String("api-key", "", "infura project id")
	cmd.Flags().Uint64("confirmations", 0, "blocks required on top of a successful transaction")
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Batch token payouts driven by a local ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")

	// Subcommands
	rootCmd.AddCommand(importCommand())
	rootCmd.AddCommand(payoutCommand())
	rootCmd.AddCommand(verifyCommand())
	rootCmd.AddCommand(exportCommand())
	rootCmd.AddCommand(convertCommand())
	rootCmd.AddCommand(serveCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
