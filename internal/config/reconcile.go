package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Store backends for the reconcile command.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// ReconcileConfig holds configuration for the reconcile command.
type ReconcileConfig struct {
	RPCURL           string
	Input            string
	Store            string
	PGDSN            string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisPrefix      string
	Workers          int
	BatchSize        int
	ExcludedPools    []string
	PoolDeployer     string
	PoolInitCodeHash string
	CallTimeout      time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	AddressBook      string
	StateFile        string
	StateName        string
	LogLevel         string
}

// LoadReconcile merges config file, environment variables, and flags into ReconcileConfig.
func LoadReconcile(cfgFile string, flags *pflag.FlagSet) (ReconcileConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"store":               StoreMemory,
		"redis-db":            0,
		"redis-prefix":        "positionscope",
		"workers":             8,
		"batch-size":          500,
		"pool-deployer":       "0x1F98431c8aD98523631AE4a59f267346ea31F984",
		"pool-init-code-hash": "0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54",
		"call-timeout":        10 * time.Second,
		"max-retries":         3,
		"retry-backoff":       250 * time.Millisecond,
		"state-name":          "reconcile",
		"log-level":           "info",
	})
	if err != nil {
		return ReconcileConfig{}, err
	}

	cfg := ReconcileConfig{
		RPCURL:           v.GetString("rpc"),
		Input:            v.GetString("in"),
		Store:            strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		PGDSN:            v.GetString("pg-dsn"),
		RedisAddr:        v.GetString("redis-addr"),
		RedisPassword:    v.GetString("redis-password"),
		RedisDB:          v.GetInt("redis-db"),
		RedisPrefix:      v.GetString("redis-prefix"),
		Workers:          v.GetInt("workers"),
		BatchSize:        v.GetInt("batch-size"),
		ExcludedPools:    getStringSlice(v, "excluded-pools"),
		PoolDeployer:     v.GetString("pool-deployer"),
		PoolInitCodeHash: v.GetString("pool-init-code-hash"),
		CallTimeout:      v.GetDuration("call-timeout"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		AddressBook:      v.GetString("address-book"),
		StateFile:        v.GetString("state-file"),
		StateName:        v.GetString("state-name"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, cfg.Validate()
}

// Validate checks that the selected backend has what it needs.
func (c ReconcileConfig) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.Input == "" {
		return fmt.Errorf("input path is required")
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg dsn is required for store %q", c.Store)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis addr is required for store %q", c.Store)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be greater than zero")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	return nil
}
