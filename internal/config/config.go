package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"scalex/domain/ledger"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	DataDir     string
	WALDir      string
	OutboxDir   string
	SnapshotDir string

	SegmentSize      int64
	NoSync           bool
	SnapshotInterval time.Duration

	GRPCAddr    string
	MetricsAddr string

	Owner       common.Address
	FeeReceiver common.Address
	Fees        ledger.Fees
	PoolsFile   string

	KafkaClient  string
	KafkaBrokers []string
	KafkaTopic   string
	SQLitePath   string
	PostgresDSN  string

	BroadcastInterval time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	MaxAttempts       uint32

	LogLevel string
	LogFile  string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCALEX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("data-dir", "./data")
	v.SetDefault("segment-size", int64(64<<20))
	v.SetDefault("no-sync", false)
	v.SetDefault("snapshot-interval", time.Minute)
	v.SetDefault("grpc-addr", ":9090")
	v.SetDefault("metrics-addr", ":9100")
	v.SetDefault("fee-maker", 1)
	v.SetDefault("fee-taker", 2)
	v.SetDefault("fee-protocol", 1)
	v.SetDefault("kafka-client", "sarama")
	v.SetDefault("kafka-topic", "scalex.events")
	v.SetDefault("broadcast-interval", 250*time.Millisecond)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 100*time.Millisecond)
	v.SetDefault("max-attempts", 10)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("scalex")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	dataDir := v.GetString("data-dir")
	cfg := Config{
		DataDir:          dataDir,
		WALDir:           orDefault(v.GetString("wal-dir"), filepath.Join(dataDir, "wal")),
		OutboxDir:        orDefault(v.GetString("outbox-dir"), filepath.Join(dataDir, "outbox")),
		SnapshotDir:      orDefault(v.GetString("snapshot-dir"), filepath.Join(dataDir, "snapshots")),
		SegmentSize:      v.GetInt64("segment-size"),
		NoSync:           v.GetBool("no-sync"),
		SnapshotInterval: v.GetDuration("snapshot-interval"),
		GRPCAddr:         v.GetString("grpc-addr"),
		MetricsAddr:      v.GetString("metrics-addr"),
		Fees: ledger.Fees{
			Maker:    v.GetUint32("fee-maker"),
			Taker:    v.GetUint32("fee-taker"),
			Protocol: v.GetUint32("fee-protocol"),
		},
		PoolsFile:         v.GetString("pools"),
		KafkaClient:       v.GetString("kafka-client"),
		KafkaBrokers:      getStringSlice(v, "kafka-brokers"),
		KafkaTopic:        v.GetString("kafka-topic"),
		SQLitePath:        v.GetString("sqlite"),
		PostgresDSN:       v.GetString("pg-dsn"),
		BroadcastInterval: v.GetDuration("broadcast-interval"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		MaxAttempts:       v.GetUint32("max-attempts"),
		LogLevel:          v.GetString("log-level"),
		LogFile:           v.GetString("log-file"),
	}

	var err error
	if cfg.Owner, err = address(v.GetString("owner")); err != nil {
		return Config{}, fmt.Errorf("owner: %w", err)
	}
	if cfg.FeeReceiver, err = address(v.GetString("fee-receiver")); err != nil {
		return Config{}, fmt.Errorf("fee receiver: %w", err)
	}
	return cfg, nil
}

// Validate checks what the server cannot start without.
func (c Config) Validate() error {
	if c.Owner == (common.Address{}) {
		return fmt.Errorf("owner address is required")
	}
	if err := c.Fees.Validate(); err != nil {
		return err
	}
	switch c.KafkaClient {
	case "sarama", "kafka-go":
	default:
		return fmt.Errorf("unknown kafka client %q", c.KafkaClient)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("kafka topic is required")
	}
	return nil
}

func address(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	switch typed := v.Get(key).(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return cleanStrings(strings.Split(typed, ","))
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
