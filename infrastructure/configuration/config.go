package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"echotree/infrastructure/logger"

	"github.com/spf13/viper"
)

type Config struct {
	App         App         `json:"app"`
	Database    Database    `json:"database"`
	RedisClient RedisClient `json:"redisClient"`
	Publish     Publish     `json:"publish"`
	SubmitToken SubmitToken `json:"submitToken"`
	Crypto      Crypto      `json:"crypto"`
	Platforms   Platforms   `json:"platforms"`
	Pubsub      Pubsub      `json:"pubsub"`
	ServiceBus  ServiceBus  `json:"serviceBus"`
}

type App struct {
	Port        int      `json:"port"`
	SecretKey   string   `json:"secretKey"`
	TLSEnabled  bool     `json:"tlsEnabled"`
	TLSCertFile string   `json:"tlsCertFile"`
	TLSKeyFile  string   `json:"tlsKeyFile"`
	Timezone    string   `json:"timezone"`
	CorsOrigins []string `json:"corsOrigins"`
}

// Database selects the store. Driver is "sqlite3" (single node, default) or "postgres".
type Database struct {
	Driver string `json:"driver"`
	Psql   Db     `json:"psql"`
	Sqlite Sqlite `json:"sqlite"`
}

type Db struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslMode"`
}

type Sqlite struct {
	Path string `json:"path"`
}

type RedisClient struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	Username string `json:"username"`
	DB       int    `json:"db"`
}

// Publish tunes the delivery engine.
type Publish struct {
	LockPath              string `json:"lockPath"`
	RateLimitMinutes      int    `json:"rateLimitMinutes"`
	Schedule              string `json:"schedule"`
	AdapterTimeoutSeconds int    `json:"adapterTimeoutSeconds"`
	SchedulerEnabled      bool   `json:"schedulerEnabled"`
}

// SubmitToken configures the duplicate submission guard. Store is "memory" or "redis".
type SubmitToken struct {
	Store      string `json:"store"`
	TTLMinutes int    `json:"ttlMinutes"`
}

type Crypto struct {
	// SecretKey is base64 of 32 random bytes.
	SecretKey string `json:"secretKey"`
}

type Platforms struct {
	Twitter  Twitter  `json:"twitter"`
	Mastodon Mastodon `json:"mastodon"`
	Bluesky  Bluesky  `json:"bluesky"`
	LinkedIn LinkedIn `json:"linkedin"`
}

type Twitter struct {
	BaseURL   string `json:"baseUrl"`
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

type Mastodon struct {
	BaseURL string `json:"baseUrl"`
}

type Bluesky struct {
	PDS                 string `json:"pds"`
	EmbedTimeoutSeconds int    `json:"embedTimeoutSeconds"`
}

type LinkedIn struct {
	BaseURL   string `json:"baseUrl"`
	AuthorURN string `json:"authorUrn"`
}

type Pubsub struct {
	ProjectID       string `json:"projectID"`
	Topic           string `json:"topic"`
	CredentialsFile string `json:"credentialsFile"`
}

type ServiceBus struct {
	Namespace string `json:"namespace"`
	Queue     string `json:"queue"`
}

var C Config

func init() {
	LoadConfig()
	initDatabase(&C)
	initApp(&C)
	initPublish(&C)
	initPlatforms(&C)
}

func LoadConfig() {
	name := getConfig()
	viper.SetConfigName(name)
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("../../")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.GetLogger().Warn("Config file not found")
		} else {
			logger.GetLogger().WithField("error", err).Error("Error reading config file")
		}
	}

	logger.GetLogger().WithField("config", name).Info("Config set up successfully")
	if err := viper.Unmarshal(&C); err != nil {
		logger.GetLogger().WithField("error", err).Error("Viper unable to decode into struct")
	}
}

func getConfig() string {
	name := "config"
	env := os.Getenv("ENV")
	if env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

func initDatabase(C *Config) {
	C.Database.Driver = getConfigValue(C.Database.Driver, "DB_DRIVER", "sqlite3")
	C.Database.Sqlite.Path = getConfigValue(C.Database.Sqlite.Path, "SQLITE_PATH", "data/echotree.sqlite")

	C.Database.Psql.Name = getConfigValue(C.Database.Psql.Name, "DB_NAME", "echotree")
	C.Database.Psql.Host = getConfigValue(C.Database.Psql.Host, "DB_HOST", "localhost")
	C.Database.Psql.Port = getConfigValue(C.Database.Psql.Port, "DB_PORT", "5432")
	C.Database.Psql.User = getConfigValue(C.Database.Psql.User, "DB_USER", "postgres")
	C.Database.Psql.Password = getConfigValue(C.Database.Psql.Password, "DB_PASSWORD", "")
	C.Database.Psql.SSLMode = getConfigValue(C.Database.Psql.SSLMode, "DB_SSLMODE", "disable")

	C.RedisClient.Host = getConfigValue(C.RedisClient.Host, "REDIS_HOST", "localhost")
	C.RedisClient.Port = getConfigValue(C.RedisClient.Port, "REDIS_PORT", "6379")
	C.RedisClient.Password = getConfigValue(C.RedisClient.Password, "REDIS_PASSWORD", "")
}

func initApp(C *Config) {
	// SECRET_KEY signs API bearer tokens; env overrides the config file.
	if v := os.Getenv("SECRET_KEY"); v != "" {
		C.App.SecretKey = v
	}
	// Port resolution order (env overrides config): APP_PORT -> PORT -> config -> default 10001
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	}
	if C.App.Port == 0 {
		C.App.Port = 10001
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		switch v {
		case "1", "true", "TRUE", "True":
			C.App.TLSEnabled = true
		case "0", "false", "FALSE", "False":
			C.App.TLSEnabled = false
		}
	}
	C.App.TLSCertFile = getConfigValue(C.App.TLSCertFile, "TLS_CERT_FILE", "")
	C.App.TLSKeyFile = getConfigValue(C.App.TLSKeyFile, "TLS_KEY_FILE", "")
	C.App.Timezone = getConfigValue(C.App.Timezone, "ECHOTREE_TIMEZONE", "UTC")
	if len(C.App.CorsOrigins) == 0 {
		C.App.CorsOrigins = []string{"http://localhost:4200", "http://localhost:5173"}
	}
	if C.App.SecretKey == "" {
		logger.GetLogger().Warn("App.SecretKey not set; API authentication will fail. Provide SECRET_KEY via environment.")
	}
	C.Crypto.SecretKey = getConfigValue(C.Crypto.SecretKey, "ECHOTREE_SECRET_KEY", "")
}

func initPublish(C *Config) {
	C.Publish.LockPath = getConfigValue(C.Publish.LockPath, "ECHOTREE_LOCK_PATH", "data/publisher.lock")
	C.Publish.Schedule = getConfigValue(C.Publish.Schedule, "ECHOTREE_PUBLISH_SCHEDULE", "@every 1m")
	C.Publish.RateLimitMinutes = getIntValue(C.Publish.RateLimitMinutes, "ECHOTREE_RATE_LIMIT_MINUTES", 10)
	C.Publish.AdapterTimeoutSeconds = getIntValue(C.Publish.AdapterTimeoutSeconds, "ECHOTREE_ADAPTER_TIMEOUT", 15)
	if v := os.Getenv("ECHOTREE_SCHEDULER_ENABLED"); v != "" {
		C.Publish.SchedulerEnabled = v == "1" || v == "true"
	}

	C.SubmitToken.Store = getConfigValue(C.SubmitToken.Store, "ECHOTREE_SUBMIT_TOKEN_STORE", "memory")
	C.SubmitToken.TTLMinutes = getIntValue(C.SubmitToken.TTLMinutes, "ECHOTREE_SUBMIT_TOKEN_TTL", 120)
}

func initPlatforms(C *Config) {
	p := &C.Platforms
	p.Twitter.BaseURL = getConfigValue(p.Twitter.BaseURL, "ECHOTREE_X_BASE_URL", "https://api.twitter.com")
	p.Twitter.APIKey = getConfigValue(p.Twitter.APIKey, "ECHOTREE_X_API_KEY", "")
	p.Twitter.APISecret = getConfigValue(p.Twitter.APISecret, "ECHOTREE_X_API_SECRET", "")
	p.Mastodon.BaseURL = getConfigValue(p.Mastodon.BaseURL, "ECHOTREE_MASTODON_BASE_URL", "")
	p.Bluesky.PDS = getConfigValue(p.Bluesky.PDS, "ECHOTREE_BLUESKY_PDS", "https://bsky.social")
	p.Bluesky.EmbedTimeoutSeconds = getIntValue(p.Bluesky.EmbedTimeoutSeconds, "ECHOTREE_BLUESKY_EMBED_TIMEOUT", 5)
	p.LinkedIn.BaseURL = getConfigValue(p.LinkedIn.BaseURL, "ECHOTREE_LINKEDIN_BASE_URL", "https://api.linkedin.com")
	p.LinkedIn.AuthorURN = getConfigValue(p.LinkedIn.AuthorURN, "ECHOTREE_LINKEDIN_AUTHOR_URN", "")

	// Event fan-out is optional; empty values leave the publisher disabled.
	C.Pubsub.ProjectID = getConfigValue(C.Pubsub.ProjectID, "ECHOTREE_PUBSUB_PROJECT", "")
	C.Pubsub.Topic = getConfigValue(C.Pubsub.Topic, "ECHOTREE_PUBSUB_TOPIC", "echotree-deliveries")
	C.Pubsub.CredentialsFile = getConfigValue(C.Pubsub.CredentialsFile, "ECHOTREE_PUBSUB_CREDENTIALS", "")
	C.ServiceBus.Namespace = getConfigValue(C.ServiceBus.Namespace, "ECHOTREE_SERVICEBUS_NAMESPACE", "")
	C.ServiceBus.Queue = getConfigValue(C.ServiceBus.Queue, "ECHOTREE_SERVICEBUS_QUEUE", "echotree-deliveries")
}

// RateLimitWindow is the per-account cool-down after a successful delivery.
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.Publish.RateLimitMinutes) * time.Minute
}

func (c Config) AdapterTimeout() time.Duration {
	return time.Duration(c.Publish.AdapterTimeoutSeconds) * time.Second
}

func (c Config) SubmitTokenTTL() time.Duration {
	return time.Duration(c.SubmitToken.TTLMinutes) * time.Minute
}
