package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "DICEMANIA"

const (
	StreamsContract = "contract"
	StreamsMemory   = "memory"
)

type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	LogMode  string `mapstructure:"log_mode"`

	RPCURL          string `mapstructure:"rpc_url"`
	ChainID         int64  `mapstructure:"chain_id"`
	ContractAddress string `mapstructure:"contract_address"`
	PrivateKey      string `mapstructure:"private_key"`

	StreamsMode      string `mapstructure:"streams_mode"`
	StreamsAddress   string `mapstructure:"streams_address"`
	PublisherAddress string `mapstructure:"publisher_address"`

	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`

	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`

	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	ResolverInterval time.Duration `mapstructure:"resolver_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_mode", "production")
	v.SetDefault("rpc_url", "https://dream-rpc.somnia.network")
	v.SetDefault("chain_id", 50312)
	v.SetDefault("contract_address", "")
	v.SetDefault("private_key", "")
	v.SetDefault("streams_mode", StreamsContract)
	v.SetDefault("streams_address", "0x6AB397FF662e42312c003175DCD76EfF69D048Fc")
	v.SetDefault("publisher_address", "")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_ttl", 24*time.Hour)
	v.SetDefault("rate_limit", 10.0)
	v.SetDefault("rate_burst", 20)
	v.SetDefault("resolver_interval", time.Duration(0))
	v.SetDefault("request_timeout", 90*time.Second)
}

// New returns a viper instance with defaults and DICEMANIA_* env binding.
// Values from .env and .env.local are visible through the environment.
func New() *viper.Viper {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads an optional config file on top of v and validates the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	normalizeAddresses(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var addressKeys = []string{"contract_address", "streams_address", "publisher_address"}

// normalizeAddresses turns addresses a YAML or TOML decoder read as hex
// integers (an unquoted 0x00..aa) back into 20-byte hex strings.
func normalizeAddresses(v *viper.Viper) {
	for _, key := range addressKeys {
		var n *big.Int
		switch raw := v.Get(key).(type) {
		case int:
			n = big.NewInt(int64(raw))
		case int64:
			n = big.NewInt(raw)
		case uint64:
			n = new(big.Int).SetUint64(raw)
		case uint:
			n = new(big.Int).SetUint64(uint64(raw))
		default:
			continue
		}
		if n.Sign() < 0 {
			continue
		}
		v.Set(key, common.BigToAddress(n).Hex())
	}
}

func (c *Config) Validate() error {
	switch c.StreamsMode {
	case StreamsContract, StreamsMemory:
	default:
		return fmt.Errorf("streams_mode must be %q or %q, got %q", StreamsContract, StreamsMemory, c.StreamsMode)
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("contract_address is required")
	}
	for name, addr := range map[string]string{
		"contract_address":  c.ContractAddress,
		"streams_address":   c.StreamsAddress,
		"publisher_address": c.PublisherAddress,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a hex address: %q", name, addr)
		}
	}
	if c.StreamsMode == StreamsContract && c.StreamsAddress == "" {
		return fmt.Errorf("streams_address is required in contract mode")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("rate_limit and rate_burst must be positive")
	}
	if c.ResolverInterval < 0 {
		return fmt.Errorf("resolver_interval must not be negative")
	}
	return nil
}

// Publisher is the configured streams publisher, or the zero address when
// the wallet address should be used.
func (c *Config) Publisher() common.Address {
	if c.PublisherAddress == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.PublisherAddress)
}
