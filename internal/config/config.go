package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	envPrefix         = "WISEPAY_"
	delimiter         = "."
	configFileFlag    = "configfile"
	defaultConfigFile = "wisepay.yaml"
)

type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Wise     WiseConfig     `koanf:"wise"`
	Cache    CacheConfig    `koanf:"cache"`
}

type HTTPConfig struct {
	Address         string        `koanf:"address"`
	ShutdownTimeout time.Duration `koanf:"shutdowntimeout"`
	SlowRequest     time.Duration `koanf:"slowrequest"`
}

type DatabaseConfig struct {
	// URL is a lib/pq connection string. Empty selects in-memory stores.
	URL string `koanf:"url"`
}

type RedisConfig struct {
	// Address of the shared document cache. Empty keeps documents in process.
	Address  string `koanf:"address"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type WiseConfig struct {
	BaseURL   string        `koanf:"baseurl"`
	Token     string        `koanf:"token"`
	ProfileID int64         `koanf:"profileid"`
	Retries   uint          `koanf:"retries"`
	Timeout   time.Duration `koanf:"timeout"`
}

type CacheConfig struct {
	DocumentTTL time.Duration `koanf:"documentttl"`
	SchemaTTL   time.Duration `koanf:"schemattl"`
	MaxSchemas  int           `koanf:"maxschemas"`
	RulesTTL    time.Duration `koanf:"rulesttl"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Address:         ":8080",
			ShutdownTimeout: 30 * time.Second,
			SlowRequest:     2 * time.Second,
		},
		Wise: WiseConfig{
			BaseURL: "https://api.wise.com",
			Retries: 3,
			Timeout: 15 * time.Second,
		},
		Cache: CacheConfig{
			DocumentTTL: time.Hour,
			SchemaTTL:   24 * time.Hour,
			MaxSchemas:  256,
			RulesTTL:    5 * time.Minute,
		},
	}
}

// FlagSet returns the flags that override configuration values. Flag names
// are the configuration keys.
func FlagSet() *pflag.FlagSet {
	def := Default()
	fs := pflag.NewFlagSet("wisepay", pflag.ContinueOnError)
	fs.String(configFileFlag, defaultConfigFile, "YAML config file, ignored when missing")
	fs.String("http.address", def.HTTP.Address, "Address the HTTP server listens on")
	fs.String("database.url", "", "PostgreSQL connection string, in-memory stores when empty")
	fs.String("redis.address", "", "Redis address for the shared requirements cache")
	fs.Int("redis.db", 0, "Redis database number")
	fs.String("wise.baseurl", def.Wise.BaseURL, "Wise API base URL")
	fs.String("wise.token", "", "Wise API token")
	fs.Int64("wise.profileid", 0, "Wise profile ID recipients and quotes are created under")
	fs.Uint("wise.retries", def.Wise.Retries, "Attempts per requirements fetch")
	fs.Duration("cache.documentttl", def.Cache.DocumentTTL, "How long fetched requirements are reused")
	fs.Duration("cache.schemattl", def.Cache.SchemaTTL, "How long compiled schemas are kept")
	fs.Int("cache.maxschemas", def.Cache.MaxSchemas, "Maximum number of compiled schemas kept")
	return fs
}

// Load resolves the configuration from defaults, the config file, the
// environment and flags, in that order. flags may be nil. DATABASE_URL and
// PORT are honoured below the WISEPAY_ variables.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(delimiter)

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := loadFromFile(k, resolveConfigFile(flags)); err != nil {
		return nil, err
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		_ = k.Set("database.url", url)
	}
	if port := os.Getenv("PORT"); port != "" {
		_ = k.Set("http.address", ":"+port)
	}

	// errors can't occur for this provider
	_ = k.Load(env.Provider(envPrefix, delimiter, envKey), nil)

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, delimiter, k), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{FlatPaths: false}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps WISEPAY_WISE_BASEURL to wise.baseurl.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", delimiter)
}

func loadFromFile(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	return nil
}

// resolveConfigFile reads the config file location from the flags and the
// environment, before the file itself is loaded.
func resolveConfigFile(flags *pflag.FlagSet) string {
	k := koanf.New(delimiter)
	_ = k.Set(configFileFlag, defaultConfigFile)
	_ = k.Load(env.Provider(envPrefix, delimiter, envKey), nil)
	if flags != nil {
		_ = k.Load(posflag.Provider(flags, delimiter, k), nil)
	}
	return k.String(configFileFlag)
}

func (c Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address is required")
	}
	if c.Wise.BaseURL == "" {
		return errors.New("wise.baseurl is required")
	}
	if c.Wise.Retries == 0 {
		return errors.New("wise.retries must be at least 1")
	}
	if c.Cache.MaxSchemas < 0 {
		return fmt.Errorf("cache.maxschemas must not be negative, got %d", c.Cache.MaxSchemas)
	}
	if c.Cache.DocumentTTL < 0 || c.Cache.SchemaTTL < 0 {
		return errors.New("cache ttl must not be negative")
	}
	return nil
}
