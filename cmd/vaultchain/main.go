package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	cfgpkg "vaultchain/cmd/config"
	"vaultchain/core"
	"vaultchain/internal/rpc"
)

// consensusOverride is the shape of an optional YAML file overriding the
// consensus section of the loaded configuration, grounded on the teacher's
// devnet.go pattern of reading a small YAML document ahead of node startup.
type consensusOverride struct {
	InitialDifficulty  uint32  `yaml:"initial_difficulty"`
	MinDifficulty      uint32  `yaml:"min_difficulty"`
	AdjustmentInterval uint64  `yaml:"adjustment_interval"`
	TargetBlockTime    uint64  `yaml:"target_block_time"`
	MaxChangeFactor    float64 `yaml:"max_change_factor"`
	MaxClockSkew       uint64  `yaml:"max_clock_skew"`
}

// loadConsensusParams returns base unchanged if overridePath is empty,
// otherwise replaces it wholesale with the YAML file's contents. This is a
// CLI-level escape hatch layered on top of the viper-loaded configuration,
// not a substitute for it.
func loadConsensusParams(base core.ConsensusParams, overridePath string) (core.ConsensusParams, error) {
	if overridePath == "" {
		return base, nil
	}
	b, err := os.ReadFile(overridePath)
	if err != nil {
		return base, fmt.Errorf("read consensus override: %w", err)
	}
	var o consensusOverride
	if err := yaml.Unmarshal(b, &o); err != nil {
		return base, fmt.Errorf("parse consensus override: %w", err)
	}
	return core.ConsensusParams{
		InitialDifficulty:  o.InitialDifficulty,
		MinDifficulty:      o.MinDifficulty,
		AdjustmentInterval: o.AdjustmentInterval,
		TargetBlockTime:    o.TargetBlockTime,
		MaxChangeFactor:    o.MaxChangeFactor,
		MaxClockSkew:       o.MaxClockSkew,
	}, nil
}

// buildVersion is overridden at link time via -ldflags.
var buildVersion = "dev"

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{Use: "vaultchain"}
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(versionCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the vaultchain version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(buildVersion)
		},
	}
}

func startCmd() *cobra.Command {
	var (
		env             string
		consensusConfig string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "start a vaultchain node (chain engine, gossip transport, RPC facade)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(env, consensusConfig)
		},
	}

	cmd.Flags().StringVar(&env, "env", os.Getenv("VAULTCHAIN_ENV"), "named environment config merged over cmd/config/default.yaml (e.g. bootstrap)")
	cmd.Flags().StringVar(&consensusConfig, "consensus-config", "", "optional YAML file overriding the configured consensus parameters")
	return cmd
}

// runNode wires every component from a single viper-backed configuration
// load (cmd/config.LoadConfig, mirroring the teacher's cmd/dexserver.main
// wiring) rather than assembling settings from ad hoc flags.
func runNode(env, consensusConfigPath string) error {
	logger := logrus.New()

	cfgpkg.LoadConfig(env)
	cfg := cfgpkg.AppConfig

	store, err := core.OpenChainStore(cfg.Storage.ChainDBPath)
	if err != nil {
		return fmt.Errorf("open chain store: %w", err)
	}
	defer store.Close()

	blobs, err := core.NewBlobStore(cfg.Storage.BlobDir)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	mempool := core.NewMempool(cfg.Mempool.MaxSize)

	consensusParams, err := loadConsensusParams(core.ConsensusParams{
		InitialDifficulty:  cfg.Consensus.InitialDifficulty,
		MinDifficulty:      cfg.Consensus.MinDifficulty,
		AdjustmentInterval: cfg.Consensus.AdjustmentInterval,
		TargetBlockTime:    cfg.Consensus.TargetBlockTime,
		MaxChangeFactor:    cfg.Consensus.MaxChangeFactor,
		MaxClockSkew:       cfg.Consensus.MaxClockSkew,
	}, consensusConfigPath)
	if err != nil {
		return err
	}
	consensus := core.NewConsensusEngine(consensusParams, logger)

	engine := core.NewChainEngine(store, blobs, mempool, consensus, nil, logger, core.EngineParams{MaxTxPerBlock: cfg.Mempool.MaxTxPerBlock})
	if err := engine.Initialize(); err != nil {
		return fmt.Errorf("initialize chain engine: %w", err)
	}

	transport, err := core.NewGossipTransport(core.GossipConfig{
		ListenAddr:     cfg.Network.ListenAddr,
		DiscoveryTag:   cfg.Network.DiscoveryTag,
		BootstrapPeers: cfg.Network.BootstrapPeers,
	}, engine, logger)
	if err != nil {
		return fmt.Errorf("start gossip transport: %w", err)
	}
	defer transport.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go mineLoop(ctx, engine, transport, logger)

	var httpServer *http.Server
	if cfg.RPC.Enabled {
		zapLogger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("init rpc logger: %w", err)
		}
		defer zapLogger.Sync()

		rpcServer := rpc.NewServer(engine, transport, zapLogger)
		httpServer = &http.Server{Addr: cfg.RPC.ListenAddr, Handler: rpcServer}
		go func() {
			logger.WithField("addr", cfg.RPC.ListenAddr).Info("rpc facade listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("rpc facade stopped")
			}
		}()
	}

	<-ctx.Done()

	logger.Info("shutting down")
	if httpServer != nil {
		httpServer.Shutdown(context.Background())
	}
	return nil
}

// mineLoop runs mine_block to completion or cancellation, adds the result,
// and republishes it to peers, repeating until ctx is done. The engine
// itself never auto-loops; this caller decides the cadence (spec.md §4.5,
// §9's "mining as long-running task" note).
func mineLoop(ctx context.Context, engine *core.ChainEngine, transport *core.GossipTransport, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		blk, err := engine.MineBlock(ctx)
		if err != nil {
			if err == core.ErrCancelled {
				return
			}
			logger.WithError(err).Warn("mine_block failed")
			continue
		}

		if err := engine.AddBlock(blk); err != nil {
			logger.WithError(err).Warn("add_block failed for locally mined block")
			continue
		}
		if err := transport.PublishBlock(blk); err != nil {
			logger.WithError(err).Warn("publish mined block failed")
		}
		logger.WithField("height", blk.Header.Height).Info("mined and committed block")
	}
}
