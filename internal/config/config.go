package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	logpkg "github.com/rfoltyns/esfailover/pkg/log"
)

// EnvPrefix prefixes every environment override, e.g. ESFAILOVER_FAILOVER_BATCHSIZE.
const EnvPrefix = "ESFAILOVER"

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Failover Failover      `mapstructure:"failover"`
	Tunables Tunables      `mapstructure:"tunables"`
	Log      logpkg.Config `mapstructure:"log"`
}

// Failover holds the policy builder parameters.
type Failover struct {
	FileName            string        `mapstructure:"fileName"`
	NumberOfEntries     int64         `mapstructure:"numberOfEntries"`
	AverageValueSize    int           `mapstructure:"averageValueSize"`
	BatchSize           int           `mapstructure:"batchSize"`
	RetryDelay          time.Duration `mapstructure:"retryDelay"`
	Monitored           bool          `mapstructure:"monitored"`
	MonitorTaskInterval time.Duration `mapstructure:"monitorTaskInterval"`
	SeqID               int64         `mapstructure:"seqId"`
	// Fsync is one of always|interval|never.
	Fsync string `mapstructure:"fsync"`
}

// Tunables are process-wide knobs handed explicitly to the components that need them.
type Tunables struct {
	ClaimExpiry           time.Duration `mapstructure:"claimExpiry"`
	ConsistencyCheckDelay time.Duration `mapstructure:"consistencyCheckDelay"`
	RetryBackoff          time.Duration `mapstructure:"retryBackoff"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Failover: Failover{
			FileName:            DefaultFileName(),
			NumberOfEntries:     1_000_000,
			AverageValueSize:    2048,
			BatchSize:           1000,
			RetryDelay:          10 * time.Second,
			Monitored:           false,
			MonitorTaskInterval: 30 * time.Second,
			SeqID:               1,
			Fsync:               "always",
		},
		Tunables: Tunables{
			ClaimExpiry:           30 * time.Second,
			ConsistencyCheckDelay: 100 * time.Millisecond,
			RetryBackoff:          time.Second,
		},
		Log: logpkg.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON, YAML or TOML file (by extension) on top of
// the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	v := newViper(cfg)
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv overlays ESFAILOVER_* environment variables onto cfg. Unparseable values
// leave cfg untouched.
func FromEnv(cfg *Config) {
	v := newViper(*cfg)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	out := *cfg
	if err := v.Unmarshal(&out); err != nil {
		return
	}
	*cfg = out
}

// newViper returns an isolated viper instance seeded with cfg as defaults so that
// every key is known to Unmarshal and AutomaticEnv.
func newViper(cfg Config) *viper.Viper {
	v := viper.New()
	v.SetDefault("failover.fileName", cfg.Failover.FileName)
	v.SetDefault("failover.numberOfEntries", cfg.Failover.NumberOfEntries)
	v.SetDefault("failover.averageValueSize", cfg.Failover.AverageValueSize)
	v.SetDefault("failover.batchSize", cfg.Failover.BatchSize)
	v.SetDefault("failover.retryDelay", cfg.Failover.RetryDelay)
	v.SetDefault("failover.monitored", cfg.Failover.Monitored)
	v.SetDefault("failover.monitorTaskInterval", cfg.Failover.MonitorTaskInterval)
	v.SetDefault("failover.seqId", cfg.Failover.SeqID)
	v.SetDefault("failover.fsync", cfg.Failover.Fsync)
	v.SetDefault("tunables.claimExpiry", cfg.Tunables.ClaimExpiry)
	v.SetDefault("tunables.consistencyCheckDelay", cfg.Tunables.ConsistencyCheckDelay)
	v.SetDefault("tunables.retryBackoff", cfg.Tunables.RetryBackoff)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	return v
}
