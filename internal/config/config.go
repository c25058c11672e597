// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// PrimaryCluster is the name of the cluster configured by the Elasticsearch section.
const PrimaryCluster = "primary"

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"LOGSCOUT_HOST" yaml:"host"`
	Port int    `envconfig:"LOGSCOUT_PORT" yaml:"port"`

	// Embedding provider configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Resolver configuration
	Resolver ResolverConfig `yaml:"resolver"`

	// Qdrant configuration (resolver backend "qdrant")
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Elasticsearch configures the primary search cluster.
	Elasticsearch ClusterConfig `yaml:"elasticsearch"`

	// Clusters lists additional search clusters by name.
	Clusters []ClusterConfig `yaml:"clusters" ignored:"true"`

	// Sources is the log-source catalog, in priority order.
	Sources     []SourceConfig `yaml:"sources" ignored:"true"`
	CatalogFile string         `envconfig:"LOGSCOUT_CATALOG_FILE" yaml:"catalog_file"`

	// Schemas is the schema table, most specific pattern first.
	Schemas    []SchemaConfig `yaml:"schemas" ignored:"true"`
	SchemaFile string         `envconfig:"LOGSCOUT_SCHEMA_FILE" yaml:"schema_file"`

	// Retrieval configuration
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	URL       string        `envconfig:"LOGSCOUT_EMBED_URL" yaml:"url"`
	APIKey    string        `envconfig:"LOGSCOUT_EMBED_API_KEY" yaml:"api_key"`
	Model     string        `envconfig:"LOGSCOUT_EMBED_MODEL" yaml:"model"`
	Timeout   time.Duration `envconfig:"LOGSCOUT_EMBED_TIMEOUT" yaml:"timeout"`
	RateLimit float64       `envconfig:"LOGSCOUT_EMBED_RATE_LIMIT" yaml:"rate_limit"` // requests/sec, 0 = unlimited
}

// ResolverConfig holds source resolution settings.
type ResolverConfig struct {
	Backend     string `envconfig:"LOGSCOUT_RESOLVER_BACKEND" yaml:"backend"`
	DefaultTopK int    `envconfig:"LOGSCOUT_DEFAULT_TOP_K" yaml:"default_top_k"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string        `envconfig:"QDRANT_HOST" yaml:"host"`
	Port       int           `envconfig:"QDRANT_PORT" yaml:"port"`
	APIKey     string        `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	UseTLS     bool          `envconfig:"QDRANT_USE_TLS" yaml:"use_tls"`
	Collection string        `envconfig:"QDRANT_COLLECTION" yaml:"collection"`
	Timeout    time.Duration `envconfig:"QDRANT_TIMEOUT" yaml:"timeout"`
}

// ClusterConfig describes one search cluster.
type ClusterConfig struct {
	Name     string        `yaml:"name" ignored:"true"`
	URL      string        `envconfig:"LOGSCOUT_ES_URL" yaml:"url"`
	Username string        `envconfig:"LOGSCOUT_ES_USERNAME" yaml:"username"`
	Password string        `envconfig:"LOGSCOUT_ES_PASSWORD" yaml:"password"`
	Timeout  time.Duration `envconfig:"LOGSCOUT_ES_TIMEOUT" yaml:"timeout"`
}

// SourceConfig is one catalog entry.
type SourceConfig struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Description string `json:"description" yaml:"description"`
}

// SchemaConfig is one schema table entry.
type SchemaConfig struct {
	Pattern        string   `yaml:"pattern"`
	IPFields       []string `yaml:"ip_fields"`
	TimestampField string   `yaml:"timestamp_field"`
	Cluster        string   `yaml:"cluster"` // empty = primary
}

// RetrievalConfig holds query building and retrieval settings.
type RetrievalConfig struct {
	MaxResults    int           `envconfig:"LOGSCOUT_MAX_RESULTS" yaml:"max_results"`
	DefaultWindow time.Duration `envconfig:"LOGSCOUT_DEFAULT_WINDOW" yaml:"default_window"`
	Timezone      string        `envconfig:"LOGSCOUT_TIMEZONE" yaml:"timezone"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Type     string        `envconfig:"LOGSCOUT_CACHE_TYPE" yaml:"type"`
	Size     int           `envconfig:"LOGSCOUT_CACHE_SIZE" yaml:"size"`
	TTL      time.Duration `envconfig:"LOGSCOUT_CACHE_TTL" yaml:"ttl"` // 0 = no expiry
	RedisURL string        `envconfig:"LOGSCOUT_REDIS_URL" yaml:"redis_url"`
}

// BusConfig holds audit event bus settings.
type BusConfig struct {
	Type         string `envconfig:"LOGSCOUT_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"LOGSCOUT_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"LOGSCOUT_KAFKA_GROUP" yaml:"kafka_group"`
	EventLog     string `envconfig:"LOGSCOUT_EVENT_LOG" yaml:"event_log"` // JSON lines audit file, empty = off
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"LOGSCOUT_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"LOGSCOUT_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds HTTP API security settings.
type SecurityConfig struct {
	APIKey    string `envconfig:"LOGSCOUT_API_KEY" yaml:"api_key"`
	RateLimit int    `envconfig:"LOGSCOUT_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	MetricsEnabled bool   `envconfig:"LOGSCOUT_METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsPath    string `envconfig:"LOGSCOUT_METRICS_PATH" yaml:"metrics_path"`

	// History keeps per-bucket retrieval rates. "memory" or "redis".
	HistoryPersistence string `envconfig:"LOGSCOUT_METRICS_PERSISTENCE" yaml:"history_persistence"`
	HistoryRedisURL    string `envconfig:"LOGSCOUT_METRICS_REDIS_URL" yaml:"history_redis_url"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Separate catalog and schema tables replace the inline ones
	if cfg.CatalogFile != "" {
		if err := loadTable(cfg.CatalogFile, &cfg.Sources); err != nil {
			return nil, fmt.Errorf("loading catalog file: %w", err)
		}
	}
	if cfg.SchemaFile != "" {
		if err := loadTable(cfg.SchemaFile, &cfg.Schemas); err != nil {
			return nil, fmt.Errorf("loading schema file: %w", err)
		}
	}

	cfg.Elasticsearch.Name = PrimaryCluster

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// loadTable reads a YAML list into out, replacing its contents.
func loadTable[T any](path string, out *[]T) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var rows []T
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return err
	}
	*out = rows
	return nil
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Embedding = EmbeddingConfig{
		URL:     "https://api.openai.com/v1/embeddings",
		Model:   "text-embedding-3-small",
		Timeout: 30 * time.Second,
	}

	cfg.Resolver = ResolverConfig{
		Backend:     "memory",
		DefaultTopK: 3,
	}

	cfg.Qdrant = QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "log_sources",
		Timeout:    30 * time.Second,
	}

	cfg.Elasticsearch = ClusterConfig{
		Name:    PrimaryCluster,
		URL:     "http://localhost:9200",
		Timeout: 60 * time.Second,
	}

	cfg.Sources = DefaultSources()
	cfg.Schemas = DefaultSchemas()

	cfg.Retrieval = RetrievalConfig{
		MaxResults:    5000,
		DefaultWindow: time.Hour,
		Timezone:      "UTC",
	}

	cfg.Cache = CacheConfig{
		Type:     "memory",
		Size:     1000,
		RedisURL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Observability = ObservabilityConfig{
		MetricsEnabled:     true,
		MetricsPath:        "/metrics",
		HistoryPersistence: "memory",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// Embedding validation
	if c.Embedding.URL == "" {
		errs = append(errs, "embedding.url is required")
	}
	if c.Embedding.Model == "" {
		errs = append(errs, "embedding.model is required")
	}
	if c.Embedding.RateLimit < 0 {
		errs = append(errs, "embedding.rate_limit must not be negative")
	}

	// Resolver validation
	validBackends := map[string]bool{"memory": true, "qdrant": true}
	if !validBackends[c.Resolver.Backend] {
		errs = append(errs, fmt.Sprintf("invalid resolver backend: %s (must be memory or qdrant)", c.Resolver.Backend))
	}
	if c.Resolver.DefaultTopK < 1 {
		errs = append(errs, "default_top_k must be positive")
	}

	// Cluster validation
	clusters := map[string]bool{}
	for _, cl := range c.AllClusters() {
		if cl.Name == "" {
			errs = append(errs, "every cluster needs a name")
			continue
		}
		if clusters[cl.Name] {
			errs = append(errs, fmt.Sprintf("duplicate cluster name: %s", cl.Name))
		}
		clusters[cl.Name] = true
		if cl.URL == "" {
			errs = append(errs, fmt.Sprintf("cluster %s has no url", cl.Name))
		}
	}

	// Catalog validation
	if len(c.Sources) == 0 {
		errs = append(errs, "catalog must contain at least one source")
	}
	seen := map[string]bool{}
	for _, s := range c.Sources {
		if s.Pattern == "" || s.Description == "" {
			errs = append(errs, "every source needs a pattern and a description")
			continue
		}
		if seen[s.Pattern] {
			errs = append(errs, fmt.Sprintf("duplicate source pattern: %s", s.Pattern))
		}
		seen[s.Pattern] = true
	}

	// Schema validation
	for _, s := range c.Schemas {
		if s.Pattern == "" {
			errs = append(errs, "every schema needs a pattern")
			continue
		}
		if len(s.IPFields) == 0 {
			errs = append(errs, fmt.Sprintf("schema %s needs at least one ip field", s.Pattern))
		}
		if s.TimestampField == "" {
			errs = append(errs, fmt.Sprintf("schema %s needs a timestamp field", s.Pattern))
		}
		if !clusters[c.ClusterName(s)] {
			errs = append(errs, fmt.Sprintf("schema %s references unknown cluster %s", s.Pattern, c.ClusterName(s)))
		}
	}

	// Retrieval validation
	if c.Retrieval.MaxResults < 1 || c.Retrieval.MaxResults > 10000 {
		errs = append(errs, "max_results must be between 1 and 10000")
	}
	if c.Retrieval.DefaultWindow <= 0 {
		errs = append(errs, "default_window must be positive")
	}
	if _, err := time.LoadLocation(c.Retrieval.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("invalid timezone: %s", c.Retrieval.Timezone))
	}

	// Cache validation
	validCacheTypes := map[string]bool{"none": true, "memory": true, "redis": true}
	if !validCacheTypes[c.Cache.Type] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be none, memory or redis)", c.Cache.Type))
	}

	// Bus validation
	validBusTypes := map[string]bool{"none": true, "memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be none, memory or kafka)", c.Bus.Type))
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	switch c.Observability.HistoryPersistence {
	case "", "memory":
	case "redis":
		if c.Observability.HistoryRedisURL == "" {
			errs = append(errs, "observability.history_redis_url is required for redis persistence")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid history persistence: %s (must be memory or redis)", c.Observability.HistoryPersistence))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// AllClusters returns the primary cluster followed by the additional ones.
func (c *Config) AllClusters() []ClusterConfig {
	all := make([]ClusterConfig, 0, len(c.Clusters)+1)
	primary := c.Elasticsearch
	primary.Name = PrimaryCluster
	all = append(all, primary)
	for _, cl := range c.Clusters {
		if cl.Timeout == 0 {
			cl.Timeout = c.Elasticsearch.Timeout
		}
		all = append(all, cl)
	}
	return all
}

// ClusterName returns the cluster a schema entry routes to.
func (c *Config) ClusterName(s SchemaConfig) string {
	if s.Cluster == "" {
		return PrimaryCluster
	}
	return s.Cluster
}

// Location returns the timezone used for caller time strings without a zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Retrieval.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
