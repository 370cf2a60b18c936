package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Bandit    BanditConfig    `mapstructure:"bandit"`
	Diversity DiversityConfig `mapstructure:"diversity"`
	History   HistoryConfig   `mapstructure:"history"`
	Guard     GuardConfig     `mapstructure:"guard"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Security  SecurityConfig  `mapstructure:"security"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port"`
	Host        string `mapstructure:"host"`
	Mode        string `mapstructure:"mode"`
	DebugRoutes bool   `mapstructure:"debug_routes"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string    `mapstructure:"brokers"`
	Topics  KafkaTopics `mapstructure:"topics"`
}

type KafkaTopics struct {
	InteractionEvents string `mapstructure:"interaction_events"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BanditConfig parameterizes the per-session LinUCB model.
type BanditConfig struct {
	Alpha          float64       `mapstructure:"alpha"`
	AlphaMin       float64       `mapstructure:"alpha_min"`
	AlphaMax       float64       `mapstructure:"alpha_max"`
	AlphaDecay     float64       `mapstructure:"alpha_decay"`
	DecayAfter     int           `mapstructure:"decay_after"`
	Dimensions     int           `mapstructure:"dimensions"`
	Regularization float64       `mapstructure:"regularization"`
	Rewards        RewardsConfig `mapstructure:"rewards"`
}

// RewardsConfig fixes the action-to-reward map. Skip and neutral are
// deployment choices, never repurposed at runtime.
type RewardsConfig struct {
	Love    float64 `mapstructure:"love"`
	Like    float64 `mapstructure:"like"`
	Neutral float64 `mapstructure:"neutral"`
	Skip    float64 `mapstructure:"skip"`
	Dislike float64 `mapstructure:"dislike"`
}

type DiversityConfig struct {
	ExclusionWindow  int     `mapstructure:"exclusion_window"`
	LovedWindow      int     `mapstructure:"loved_window"`
	CategoryLimit    int     `mapstructure:"category_limit"`
	ColorLimit       int     `mapstructure:"color_limit"`
	BrandLimit       int     `mapstructure:"brand_limit"`
	CandidateSample  int     `mapstructure:"candidate_sample"`
	TopK             int     `mapstructure:"top_k"`
	CategoryBonus    float64 `mapstructure:"category_bonus"`
	ColorBonus       float64 `mapstructure:"color_bonus"`
	BrandBonus       float64 `mapstructure:"brand_bonus"`
	ExplorationBase  float64 `mapstructure:"exploration_base"`
	ExplorationStep  float64 `mapstructure:"exploration_step"`
	ExplorationFloor float64 `mapstructure:"exploration_floor"`
}

type HistoryConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

type GuardConfig struct {
	GeneralWindow     time.Duration `mapstructure:"general_window"`
	RapidWindow       time.Duration `mapstructure:"rapid_window"`
	SameActionWindow  time.Duration `mapstructure:"same_action_window"`
	IdempotencyWindow time.Duration `mapstructure:"idempotency_window"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	CleanupEnabled    bool          `mapstructure:"cleanup_enabled"`
}

type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type RateLimitConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	Window    time.Duration  `mapstructure:"window"`
	Classes   map[string]int `mapstructure:"classes"`
	Whitelist []string       `mapstructure:"whitelist"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "development")
	viper.SetDefault("server.debug_routes", false)

	// Database defaults; an empty URL selects the in-memory stores
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults; empty URL disables redis-backed rate limiting
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults; no brokers disables event publishing
	viper.SetDefault("kafka.brokers", []string{})
	viper.SetDefault("kafka.topics.interaction_events", "interaction-events")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Bandit defaults
	viper.SetDefault("bandit.alpha", 1.0)
	viper.SetDefault("bandit.alpha_min", 0.05)
	viper.SetDefault("bandit.alpha_max", 2.0)
	viper.SetDefault("bandit.alpha_decay", 0.95)
	viper.SetDefault("bandit.decay_after", 10)
	viper.SetDefault("bandit.dimensions", 26)
	viper.SetDefault("bandit.regularization", 0.01)
	viper.SetDefault("bandit.rewards.love", 2.0)
	viper.SetDefault("bandit.rewards.like", 1.0)
	viper.SetDefault("bandit.rewards.neutral", 0.0)
	viper.SetDefault("bandit.rewards.skip", 0.0)
	viper.SetDefault("bandit.rewards.dislike", -1.0)

	// Diversity defaults
	viper.SetDefault("diversity.exclusion_window", 20)
	viper.SetDefault("diversity.loved_window", 10)
	viper.SetDefault("diversity.category_limit", 3)
	viper.SetDefault("diversity.color_limit", 2)
	viper.SetDefault("diversity.brand_limit", 3)
	viper.SetDefault("diversity.candidate_sample", 200)
	viper.SetDefault("diversity.top_k", 5)
	viper.SetDefault("diversity.category_bonus", 0.20)
	viper.SetDefault("diversity.color_bonus", 0.15)
	viper.SetDefault("diversity.brand_bonus", 0.10)
	viper.SetDefault("diversity.exploration_base", 0.30)
	viper.SetDefault("diversity.exploration_step", 0.01)
	viper.SetDefault("diversity.exploration_floor", 0.05)

	// History defaults
	viper.SetDefault("history.max_entries", 100)

	// Guard defaults
	viper.SetDefault("guard.general_window", "30s")
	viper.SetDefault("guard.rapid_window", "5s")
	viper.SetDefault("guard.same_action_window", "60s")
	viper.SetDefault("guard.idempotency_window", "24h")
	viper.SetDefault("guard.cleanup_interval", "60s")
	viper.SetDefault("guard.cleanup_enabled", true)

	// Cache defaults
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.ttl", "5m")
	viper.SetDefault("cache.max_entries", 1000)

	// Rate limit defaults
	viper.SetDefault("ratelimit.enabled", true)
	viper.SetDefault("ratelimit.window", "60s")
	viper.SetDefault("ratelimit.classes", map[string]int{
		"session":   5,
		"recommend": 30,
		"feedback":  50,
		"batch":     10,
		"general":   100,
	})
	viper.SetDefault("ratelimit.whitelist", []string{})

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
