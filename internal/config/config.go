package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BatchModePerBox    = "per_box"
	BatchModeAggregate = "aggregate"
)

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	RedisURL  string `env:"REDIS_URL" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	SuiRPCURL      string `env:"SUI_RPC_URL" envDefault:"https://fullnode.testnet.sui.io:443"`
	SignerURL      string `env:"SIGNER_URL" envDefault:"http://localhost:9000"`
	PackageID      string `env:"PACKAGE_ID" envDefault:"0x06ec4cf04fd461d3f49c5c95cb92d85646c0a79de59f27b4ce0f6f5041e062d7"`
	GameConfigID   string `env:"GAME_CONFIG_ID" envDefault:"0xd0405c7277b456baeb54203713e9e62d8b30d8831770571beb5e53a220d84295"`
	RandomObjectID string `env:"RANDOM_OBJECT_ID" envDefault:"0x8"`
	CoinType       string `env:"COIN_TYPE" envDefault:"0x2::sui::SUI"`
	LootBoxPrice   uint64 `env:"LOOT_BOX_PRICE" envDefault:"100"` // in MIST
	ExplorerURL    string `env:"EXPLORER_URL" envDefault:"https://suiscan.xyz/testnet"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	Opening OpeningConfig `envPrefix:"OPENING_"`
}

// OpeningConfig holds the pacing and batching knobs of the opening flow.
type OpeningConfig struct {
	ShakeDuration   time.Duration `env:"SHAKE_DURATION" envDefault:"2s"`
	IntenseDuration time.Duration `env:"INTENSE_DURATION" envDefault:"1500ms"`
	FrameDuration   time.Duration `env:"FRAME_DURATION" envDefault:"100ms"`
	RevealFrames    int           `env:"REVEAL_FRAMES" envDefault:"5"`

	BatchMode          string        `env:"BATCH_MODE" envDefault:"per_box"`
	MaxBatchSize       int           `env:"MAX_BATCH_SIZE" envDefault:"10"`
	SubmissionInterval time.Duration `env:"SUBMISSION_INTERVAL" envDefault:"500ms"`
	SettleDelay        time.Duration `env:"SETTLE_DELAY" envDefault:"1s"`

	ConfirmRetries    int           `env:"CONFIRM_RETRIES" envDefault:"5"`
	ConfirmRetryDelay time.Duration `env:"CONFIRM_RETRY_DELAY" envDefault:"500ms"`

	NotificationTTL time.Duration `env:"NOTIFICATION_TTL" envDefault:"4s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Env == "production" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}

	switch c.Opening.BatchMode {
	case BatchModePerBox, BatchModeAggregate:
	default:
		return fmt.Errorf("invalid OPENING_BATCH_MODE: %q", c.Opening.BatchMode)
	}

	if c.Opening.RevealFrames <= 0 {
		return fmt.Errorf("OPENING_REVEAL_FRAMES must be positive, got %d", c.Opening.RevealFrames)
	}
	if c.Opening.MaxBatchSize < 0 {
		return fmt.Errorf("OPENING_MAX_BATCH_SIZE must not be negative")
	}
	if c.Opening.ConfirmRetries < 0 {
		return fmt.Errorf("OPENING_CONFIRM_RETRIES must not be negative")
	}
	if c.PackageID == "" || c.GameConfigID == "" {
		return fmt.Errorf("PACKAGE_ID and GAME_CONFIG_ID are required")
	}

	return nil
}

func (c *Config) moduleType(name string) string {
	return fmt.Sprintf("%s::loot_box::%s", c.PackageID, name)
}

func (c *Config) GameItemType() string {
	return c.moduleType("GameItem")
}

func (c *Config) LootBoxType() string {
	return c.moduleType("LootBox")
}

func (c *Config) MoveTarget(function string) string {
	return c.moduleType(function)
}

func (c *Config) TxLink(digest string) string {
	return fmt.Sprintf("%s/tx/%s", strings.TrimRight(c.ExplorerURL, "/"), digest)
}

func (c *Config) ObjectLink(id string) string {
	return fmt.Sprintf("%s/object/%s", strings.TrimRight(c.ExplorerURL, "/"), id)
}
