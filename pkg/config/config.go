package config

// Package config provides a reusable loader for vaultchain configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"vaultchain/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a vaultchain node. It
// mirrors the structure of the YAML files under cmd/config.
type Config struct {
	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		InitialDifficulty  uint32  `mapstructure:"initial_difficulty" json:"initial_difficulty"`
		MinDifficulty      uint32  `mapstructure:"min_difficulty" json:"min_difficulty"`
		AdjustmentInterval uint64  `mapstructure:"adjustment_interval" json:"adjustment_interval"`
		TargetBlockTime    uint64  `mapstructure:"target_block_time" json:"target_block_time"`
		MaxChangeFactor    float64 `mapstructure:"max_change_factor" json:"max_change_factor"`
		MaxClockSkew       uint64  `mapstructure:"max_clock_skew" json:"max_clock_skew"`
	} `mapstructure:"consensus" json:"consensus"`

	Storage struct {
		ChainDBPath string `mapstructure:"chain_db_path" json:"chain_db_path"`
		BlobDir     string `mapstructure:"blob_dir" json:"blob_dir"`
	} `mapstructure:"storage" json:"storage"`

	Mempool struct {
		MaxSize       int `mapstructure:"max_size" json:"max_size"`
		MaxTxPerBlock int `mapstructure:"max_tx_per_block" json:"max_tx_per_block"`
	} `mapstructure:"mempool" json:"mempool"`

	RPC struct {
		Enabled    bool   `mapstructure:"enabled" json:"enabled"`
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"rpc" json:"rpc"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the VAULTCHAIN_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("VAULTCHAIN_ENV", ""))
}
