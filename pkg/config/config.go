package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Geocoder  GeocoderConfig
	GeoCache  GeoCacheConfig
	Ingestion IngestionConfig
	Reference ReferenceConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   int
	WriteTimeout  int
	BodyLimit     int
	AllowOrigins  string
	IsDevelopment bool
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// GeocoderConfig points at a Nominatim-compatible search endpoint.
type GeocoderConfig struct {
	Endpoint         string
	UserAgent        string
	Email            string
	TimeoutSec       int
	// MaxAttempts above 1 allows retries, and with them more than one
	// provider call per key in a batch.
	MaxAttempts      int
	FailureThreshold uint32
	OpenTimeoutSec   int
}

// GeoCacheConfig controls the optional cross-batch cache layer. The
// run-scoped cache is always on.
type GeoCacheConfig struct {
	Backend        string
	Size           int
	TTLMinutes     int
	NegativeTTLMin int
}

type IngestionConfig struct {
	Workers         int
	BatchTimeoutSec int
	MaxArticles     int
	Stopwords       []string
}

type ReferenceConfig struct {
	SeedFile string
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// DefaultStopwords are the tokens the location extractor never accepts as a city.
var DefaultStopwords = []string{
	"the", "a", "an", "outbreak", "cases", "reported", "detected", "confirmed", "spread",
}

func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from path when given, otherwise searches the
// default locations. A missing config file is not an error.
func LoadFrom(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/epiwatch")
	}

	v.SetEnvPrefix("EPIWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(config.Ingestion.Stopwords) == 0 {
		config.Ingestion.Stopwords = append([]string(nil), DefaultStopwords...)
	}
	if config.Ingestion.Workers < 1 {
		config.Ingestion.Workers = 1
	}

	return &config, nil
}

func (c GeocoderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c GeoCacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

func (c GeoCacheConfig) NegativeTTL() time.Duration {
	return time.Duration(c.NegativeTTLMin) * time.Minute
}

func (c IngestionConfig) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutSec) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.allowOrigins", "*")
	v.SetDefault("server.isDevelopment", false)

	v.SetDefault("sqlite.path", "./data/epiwatch.db")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("geocoder.endpoint", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocoder.userAgent", "epiwatch-ingest/1.0")
	v.SetDefault("geocoder.timeoutSec", 10)
	v.SetDefault("geocoder.maxAttempts", 1)
	v.SetDefault("geocoder.failureThreshold", 5)
	v.SetDefault("geocoder.openTimeoutSec", 30)

	v.SetDefault("geocache.backend", "memory")
	v.SetDefault("geocache.size", 10000)
	v.SetDefault("geocache.ttlMinutes", 24*60)
	v.SetDefault("geocache.negativeTtlMin", 60)

	v.SetDefault("ingestion.workers", 1)
	v.SetDefault("ingestion.batchTimeoutSec", 90)
	v.SetDefault("ingestion.maxArticles", 500)

	v.SetDefault("ratelimit.maxRequestsPerMinute", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
