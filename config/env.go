package config

import (
	"fmt"
	"os"
	"strings"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "KLINGPAY_"

// EnvName returns the environment variable that overrides a config key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// ApplyEnv applies KLINGPAY_* overrides using lookup, which has the
// signature of os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, key := range configKeys {
		value, ok := lookup(EnvName(key))
		if !ok {
			continue
		}
		if err := setConfigValue(cfg, key, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("env %s: %w", EnvName(key), err)
		}
	}
	return nil
}
