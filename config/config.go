package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"aptos-x402-gateway/internal/core/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration. The gateway, facilitator and
// payer binaries share it and each reads the sections it needs.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Facilitator FacilitatorConfig `mapstructure:"facilitator"`
	Payment     PaymentConfig     `mapstructure:"payment"`
	SmartWallet SmartWalletConfig `mapstructure:"smart_wallet"`
	Wallet      WalletConfig      `mapstructure:"wallet"`
	Aptos       AptosConfig       `mapstructure:"aptos"`
	Payer       PayerConfig       `mapstructure:"payer"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	AES         AESConfig         `mapstructure:"aes"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FacilitatorConfig configures both sides of the verification API: the
// client the gateway uses and the facilitator server itself.
type FacilitatorConfig struct {
	BaseURL         string            `mapstructure:"base_url"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	Headers         map[string]string `mapstructure:"headers"`
	Port            int               `mapstructure:"port"`
	AllowedSubjects []string          `mapstructure:"allowed_subjects"`
	ConfirmTimeout  time.Duration     `mapstructure:"confirm_timeout"`
	TxHashTTL       time.Duration     `mapstructure:"tx_hash_ttl"`
	DocsPath        string            `mapstructure:"docs_path"`
}

type PaymentRuleConfig struct {
	Path             string `mapstructure:"path"`
	Amount           string `mapstructure:"amount"`
	RecipientAddress string `mapstructure:"recipient_address"`
	Description      string `mapstructure:"description"`
}

type PaymentConfig struct {
	Network   string              `mapstructure:"network"`
	Token     string              `mapstructure:"token"`
	ReplayTTL time.Duration       `mapstructure:"replay_ttl"`
	Rules     []PaymentRuleConfig `mapstructure:"rules"`
}

// DomainRules returns the configured rules in order.
func (p PaymentConfig) DomainRules() []domain.PaymentRule {
	rules := make([]domain.PaymentRule, 0, len(p.Rules))
	for _, r := range p.Rules {
		rules = append(rules, domain.PaymentRule{
			Path:             r.Path,
			Amount:           r.Amount,
			RecipientAddress: r.RecipientAddress,
			Description:      r.Description,
		})
	}
	return rules
}

// NetworkName parses the configured network.
func (p PaymentConfig) NetworkName() (domain.Network, error) {
	return domain.ParseNetwork(p.Network)
}

// SmartWalletConfig keeps amounts as strings so they stay exact decimals.
type SmartWalletConfig struct {
	LowBalanceThreshold  string `mapstructure:"low_balance_threshold"`
	AutoRefillAmount     string `mapstructure:"auto_refill_amount"`
	MaxRefillsPerDay     int    `mapstructure:"max_refills_per_day"`
	MaxDailyRefillAmount string `mapstructure:"max_daily_refill_amount"`
	EnableAutoRefill     bool   `mapstructure:"enable_auto_refill"`
	EnableNotifications  bool   `mapstructure:"enable_notifications"`
}

// ToDomain parses the amounts.
func (s SmartWalletConfig) ToDomain() (domain.SmartWalletConfig, error) {
	var (
		out  domain.SmartWalletConfig
		errs []error
	)
	parse := func(name, raw string) decimal.Decimal {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("smart_wallet.%s: %w", name, err))
		}
		return d
	}
	out.LowBalanceThreshold = parse("low_balance_threshold", s.LowBalanceThreshold)
	out.AutoRefillAmount = parse("auto_refill_amount", s.AutoRefillAmount)
	out.MaxDailyRefillAmount = parse("max_daily_refill_amount", s.MaxDailyRefillAmount)
	out.MaxRefillsPerDay = s.MaxRefillsPerDay
	out.EnableAutoRefill = s.EnableAutoRefill
	out.EnableNotifications = s.EnableNotifications
	return out, errors.Join(errs...)
}

const (
	WalletModeMemory = "memory"
	WalletModeAptos  = "aptos"
)

// WalletKeyConfig describes one account. PrivateKey may be sealed with the
// AES key ("enc:" prefix). In memory mode Address and InitialBalance seed the
// in-process ledger.
type WalletKeyConfig struct {
	PrivateKey     string `mapstructure:"private_key"`
	Address        string `mapstructure:"address"`
	InitialBalance string `mapstructure:"initial_balance"`
}

type WalletConfig struct {
	Mode     string          `mapstructure:"mode"` // memory, aptos
	Spending WalletKeyConfig `mapstructure:"spending"`
	Saving   WalletKeyConfig `mapstructure:"saving"`
}

type AptosConfig struct {
	NodeURLs []string      `mapstructure:"node_urls"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxGas   uint64        `mapstructure:"max_gas"`
	GasPrice uint64        `mapstructure:"gas_price"`
}

// PayerConfig configures the paying client.
type PayerConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Enabled reports whether refill notifications go to Telegram.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from a .env file, the config file and the
// environment, in increasing precedence. Prefix: XAPT_.
// Nested keys use underscore: XAPT_FACILITATOR_BASE_URL, XAPT_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: XAPT_FACILITATOR_BASE_URL -> facilitator.base_url
	v.SetEnvPrefix("XAPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("facilitator.base_url", "http://localhost:8081")
	v.SetDefault("facilitator.timeout", "10s")
	v.SetDefault("facilitator.port", 8081)
	v.SetDefault("facilitator.allowed_subjects", []string{"gateway"})
	v.SetDefault("facilitator.confirm_timeout", "10s")
	v.SetDefault("facilitator.tx_hash_ttl", "168h")
	v.SetDefault("facilitator.docs_path", "docs/api/facilitator-openapi.yaml")

	v.SetDefault("payment.network", string(domain.NetworkTestnet))
	v.SetDefault("payment.token", domain.AptosCoinType)
	v.SetDefault("payment.replay_ttl", "24h")

	def := domain.DefaultSmartWalletConfig()
	v.SetDefault("smart_wallet.low_balance_threshold", def.LowBalanceThreshold.String())
	v.SetDefault("smart_wallet.auto_refill_amount", def.AutoRefillAmount.String())
	v.SetDefault("smart_wallet.max_refills_per_day", def.MaxRefillsPerDay)
	v.SetDefault("smart_wallet.max_daily_refill_amount", def.MaxDailyRefillAmount.String())
	v.SetDefault("smart_wallet.enable_auto_refill", def.EnableAutoRefill)
	v.SetDefault("smart_wallet.enable_notifications", def.EnableNotifications)

	v.SetDefault("wallet.mode", WalletModeMemory)
	for _, w := range []string{"spending", "saving"} {
		v.SetDefault("wallet."+w+".private_key", "")
		v.SetDefault("wallet."+w+".address", "")
		v.SetDefault("wallet."+w+".initial_balance", "0")
	}

	v.SetDefault("aptos.node_urls", []string{})
	v.SetDefault("aptos.api_key", "")
	v.SetDefault("aptos.timeout", "30s")
	v.SetDefault("aptos.max_gas", 2000)
	v.SetDefault("aptos.gas_price", 100)

	v.SetDefault("payer.request_timeout", "30s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "x402")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "5m")
	v.SetDefault("jwt.issuer", "aptos-x402-facilitator")

	v.SetDefault("aes.key", "")

	// registered so AutomaticEnv sees them
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", 0)
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
