package cli

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. KESTREL_AUDIT_SECRET.
const EnvPrefix = "KESTREL"

// LoadConfig resolves the configuration from defaults, the optional YAML file
// at path and KESTREL_* environment variables, in increasing priority.
// KESTREL_TIER=pro starts from the Pro tier defaults, and pipeline.variant
// selects the base pipeline that file and env overrides apply to.
func LoadConfig(path string) (*domain.Config, error) {
	return loadConfig(path, "")
}

// loadConfig is LoadConfig with an explicit pipeline variant taking priority
// over the file and environment.
func loadConfig(path, variant string) (*domain.Config, error) {
	defaults := domain.DefaultConfig()
	if strings.EqualFold(os.Getenv(EnvPrefix+"_TIER"), string(domain.TierPro)) {
		defaults = domain.ProConfig()
	}

	v, err := newViper(defaults, path)
	if err != nil {
		return nil, err
	}

	if variant == "" {
		variant = v.GetString("pipeline.variant")
	}
	if variant != "" && variant != defaults.Pipeline.Variant {
		base, err := domain.PipelineVariant(variant)
		if err != nil {
			return nil, fmt.Errorf("error resolving pipeline: %w", err)
		}
		defaults.Pipeline = base
		if v, err = newViper(defaults, path); err != nil {
			return nil, err
		}
		v.Set("pipeline.variant", variant)
	}

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	return cfg, nil
}

func newViper(defaults *domain.Config, path string) (*viper.Viper, error) {
	// Seed viper with every key so environment overrides resolve on Unmarshal
	raw, err := yaml.Marshal(defaults)
	if err != nil {
		return nil, fmt.Errorf("error marshaling defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("error reading defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect Kestrel configuration",
	Long: `Inspect Kestrel configuration.

Configuration hierarchy (highest to lowest priority):
1. Environment variables (KESTREL_*, e.g. KESTREL_AUDIT_SECRET)
2. Config file (--config)
3. Tier defaults (KESTREL_TIER=pro selects Postgres, Redis and NATS)

pipeline.variant (kerala, regional, coverage) picks the pipeline defaults
before file and environment overrides are applied.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cfgFile)
		if err != nil {
			return err
		}

		// Never echo secrets
		redact(cfg)

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		if cfgFile != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Configuration file: %s\n\n", cfgFile)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func redact(cfg *domain.Config) {
	for _, s := range []*string{
		&cfg.Audit.Secret,
		&cfg.Repository.PostgresPassword,
		&cfg.Cache.RedisPassword,
		&cfg.EventBus.NATSToken,
	} {
		if *s != "" {
			*s = "********"
		}
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
