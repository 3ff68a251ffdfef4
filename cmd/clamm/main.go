package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"clamm/internal/config"
	"clamm/internal/model"
	"clamm/internal/sim"
	"clamm/internal/storage"
	"clamm/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "clamm",
		Short:        "Concentrated liquidity pool simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a scenario file against in-memory pools",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("scenario", "", "scenario JSONL path")
	simulateCmd.Flags().String("out", "./data", "output directory for JSONL records")
	simulateCmd.Flags().String("pg-dsn", "", "Postgres DSN (JSONL output if empty)")
	simulateCmd.Flags().Uint64("start-time", 1, "initial simulated clock (unix seconds)")
	simulateCmd.Flags().Uint64("snapshot-every", 0, "snapshot all pools every N operations, 0 disables")
	simulateCmd.Flags().Bool("stop-on-error", true, "stop at the first failed operation")
	simulateCmd.Flags().Uint64("oracle-slots", 1, "oracle observation slots per pool")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap against the final state of a scenario",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("scenario", "", "scenario JSONL path")
	quoteCmd.Flags().String("token-a", "", "one token of the pair")
	quoteCmd.Flags().String("token-b", "", "other token of the pair")
	quoteCmd.Flags().Uint32("fee", 3000, "fee tier in pips")
	quoteCmd.Flags().Bool("zero-for-one", true, "sell token0 for token1")
	quoteCmd.Flags().String("amount-in", "", "exact input amount")
	quoteCmd.Flags().Uint64("start-time", 1, "initial simulated clock (unix seconds)")
	quoteCmd.Flags().Uint64("oracle-slots", 1, "oracle observation slots per pool")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var storageSink storage.Storage
	if cfg.PgDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		storageSink = store
	} else {
		storageSink = storage.NewJsonlStorage(cfg.Out)
	}

	runner := sim.NewRunner(sim.RunConfig{
		ScenarioPath:  cfg.Scenario,
		StartTime:     cfg.StartTime,
		SnapshotEvery: cfg.SnapshotEvery,
		StopOnError:   cfg.StopOnError,
		OracleSlots:   cfg.OracleSlots,
	}, storageSink, logger)

	logger.Info("simulation start",
		zap.String("scenario", cfg.Scenario),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", cfg.PgDSN != ""),
		zap.Uint64("snapshot_every", cfg.SnapshotEvery),
		zap.Bool("stop_on_error", cfg.StopOnError),
	)

	return runner.Run(ctx)
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}
	tokenA, _ := cmd.Flags().GetString("token-a")
	tokenB, _ := cmd.Flags().GetString("token-b")
	if tokenA == "" || tokenB == "" {
		return fmt.Errorf("token-a and token-b are required")
	}
	amountInRaw, _ := cmd.Flags().GetString("amount-in")
	amountIn, err := uint256.FromDecimal(amountInRaw)
	if err != nil {
		return fmt.Errorf("parse amount-in: %w", err)
	}
	fee, _ := cmd.Flags().GetUint32("fee")
	zeroForOne, _ := cmd.Flags().GetBool("zero-for-one")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Replay the scenario into a throwaway sink, then quote against the
	// resulting state.
	runner := sim.NewRunner(sim.RunConfig{
		ScenarioPath: cfg.Scenario,
		StartTime:    cfg.StartTime,
		StopOnError:  true,
		OracleSlots:  cfg.OracleSlots,
	}, storage.NewJsonlStorage(os.TempDir()), logger)
	if err := runner.Run(ctx); err != nil {
		return err
	}

	p, err := runner.Registry().Get(sim.TokenAddress(tokenA), sim.TokenAddress(tokenB), fee)
	if err != nil {
		return err
	}
	consumed, amountOut, err := p.Quote(zeroForOne, amountIn, nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pool %s\n", p.Address().Hex())
	fmt.Fprintf(cmd.OutOrStdout(), "amount_in %s\n", consumed.Dec())
	fmt.Fprintf(cmd.OutOrStdout(), "amount_out %s\n", amountOut.Dec())
	fmt.Fprintf(cmd.OutOrStdout(), "price %s\n", model.PriceFromSqrtX96(p.SqrtPriceX96().ToBig()))
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
