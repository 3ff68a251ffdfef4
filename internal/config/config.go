// Package config loads simulator configuration from flags, environment
// variables, and an optional config file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Scenario      string
	Out           string
	PgDSN         string
	StartTime     uint32
	SnapshotEvery uint64
	StopOnError   bool
	OracleSlots   uint16
	LogLevel      string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CLAMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("out", "./data")
	v.SetDefault("start-time", uint32(1))
	v.SetDefault("snapshot-every", uint64(0))
	v.SetDefault("stop-on-error", true)
	v.SetDefault("oracle-slots", uint16(1))
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
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Scenario:      v.GetString("scenario"),
		Out:           v.GetString("out"),
		PgDSN:         v.GetString("pg-dsn"),
		StartTime:     uint32(v.GetUint64("start-time")),
		SnapshotEvery: v.GetUint64("snapshot-every"),
		StopOnError:   v.GetBool("stop-on-error"),
		OracleSlots:   uint16(v.GetUint64("oracle-slots")),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}
