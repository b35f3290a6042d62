package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	OpenAI    OpenAIConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Locate    LocateConfig
	Decompose DecomposeConfig
	Chains    ChainsConfig
	Cache     CacheConfig
	Qdrant    QdrantConfig
	Neo4j     Neo4jConfig
	OutputDir string
	Port      int
	LogLevel  string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

type EmbeddingConfig struct {
	Provider  string // "openai" or "tei"
	Model     string
	BatchSize int
	TEIURL    string
}

type LLMConfig struct {
	Model        string
	SummaryModel string
}

type LocateConfig struct {
	Threshold float64
	TopK      int
}

type DecomposeConfig struct {
	Clusters int
}

type ChainsConfig struct {
	MaxDepth   int
	MaxPerRoot int
}

type CacheConfig struct {
	Capacity int
}

type QdrantConfig struct {
	Enabled bool
	URL     string
	APIKey  string
}

type Neo4jConfig struct {
	URI      string
	User     string
	Password string
}

// envAliases lists, per key, the environment variables consulted in order.
var envAliases = map[string][]string{
	"openai.api_key":       {"OPENAI_API_KEY", "openai_key"},
	"openai.base_url":      {"OPENAI_BASE_URL", "openai_base_url"},
	"embedding.provider":   {"FEATLOC_EMBEDDING_PROVIDER", "EMBEDDING_PROVIDER"},
	"embedding.model":      {"OPENAI_EMBEDDING_MODEL", "openai_embedding_model"},
	"embedding.batch_size": {"FEATLOC_EMBEDDING_BATCH_SIZE"},
	"tei.url":              {"TEI_URL"},
	"llm.model":            {"OPENAI_MODEL", "openai_model"},
	"summary.model":        {"OPENAI_SUMMARY_MODEL"},
	"locate.threshold":     {"FEATLOC_THRESHOLD"},
	"locate.top_k":         {"FEATLOC_TOP_K"},
	"decompose.clusters":   {"FEATLOC_CLUSTERS"},
	"chains.max_depth":     {"FEATLOC_MAX_DEPTH"},
	"chains.max_per_root":  {"FEATLOC_MAX_CHAINS_PER_ROOT"},
	"cache.capacity":       {"FEATLOC_CACHE_CAPACITY"},
	"qdrant.enabled":       {"QDRANT_ENABLED"},
	"qdrant.url":           {"QDRANT_URL", "qdrant_url"},
	"qdrant.api_key": {
		"QDRANT_API_KEY", "qdrant_api_key",
		"QDRANT_API_TOKEN", "qdrant_api_token",
		"QDRANT_AUTH_TOKEN", "qdrant_auth_token",
	},
	"neo4j.uri":      {"NEO4J_URI"},
	"neo4j.user":     {"NEO4J_USER"},
	"neo4j.password": {"NEO4J_PASSWORD"},
	"output.dir":     {"FEATLOC_OUTPUT_DIR"},
	"server.port":    {"BACKEND_PORT", "PORT"},
	"log.level":      {"FEATLOC_LOG_LEVEL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 128)
	v.SetDefault("tei.url", "http://localhost:8080")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("locate.threshold", 0.5)
	v.SetDefault("locate.top_k", 5)
	v.SetDefault("decompose.clusters", 3)
	v.SetDefault("chains.max_depth", 10)
	v.SetDefault("chains.max_per_root", 0)
	v.SetDefault("cache.capacity", 1)
	v.SetDefault("qdrant.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("output.dir", "./output")
	v.SetDefault("server.port", 3001)
	v.SetDefault("log.level", "info")
}

// UserConfigPath returns ~/.featloc/config.json, or "" when the home
// directory cannot be resolved.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".featloc", "config.json")
}

// Load resolves configuration from defaults, the user config file and the
// environment. Environment variables win over the file.
func Load() (*Config, error) {
	return LoadFile(UserConfigPath())
}

// LoadFile is Load with an explicit config file path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, envs := range envAliases {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
		// Flat files written for the env-style layout ({"OPENAI_API_KEY": "..."})
		// still apply, below real environment variables.
		for key, envs := range envAliases {
			for _, env := range envs {
				if v.InConfig(env) {
					v.SetDefault(key, v.Get(env))
					break
				}
			}
		}
	}

	summaryModel := v.GetString("summary.model")
	if summaryModel == "" {
		summaryModel = v.GetString("llm.model")
	}

	cfg := &Config{
		OpenAI: OpenAIConfig{
			APIKey:  v.GetString("openai.api_key"),
			BaseURL: v.GetString("openai.base_url"),
		},
		Embedding: EmbeddingConfig{
			Provider:  v.GetString("embedding.provider"),
			Model:     v.GetString("embedding.model"),
			BatchSize: v.GetInt("embedding.batch_size"),
			TEIURL:    v.GetString("tei.url"),
		},
		LLM: LLMConfig{
			Model:        v.GetString("llm.model"),
			SummaryModel: summaryModel,
		},
		Locate: LocateConfig{
			Threshold: v.GetFloat64("locate.threshold"),
			TopK:      v.GetInt("locate.top_k"),
		},
		Decompose: DecomposeConfig{Clusters: v.GetInt("decompose.clusters")},
		Chains: ChainsConfig{
			MaxDepth:   v.GetInt("chains.max_depth"),
			MaxPerRoot: v.GetInt("chains.max_per_root"),
		},
		Cache: CacheConfig{Capacity: v.GetInt("cache.capacity")},
		Qdrant: QdrantConfig{
			Enabled: v.GetBool("qdrant.enabled"),
			URL:     v.GetString("qdrant.url"),
			APIKey:  v.GetString("qdrant.api_key"),
		},
		Neo4j: Neo4jConfig{
			URI:      v.GetString("neo4j.uri"),
			User:     v.GetString("neo4j.user"),
			Password: v.GetString("neo4j.password"),
		},
		OutputDir: v.GetString("output.dir"),
		Port:      v.GetInt("server.port"),
		LogLevel:  v.GetString("log.level"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai", "tei":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Locate.Threshold < -1 || c.Locate.Threshold > 1 {
		return fmt.Errorf("locate.threshold must be within [-1, 1], got %v", c.Locate.Threshold)
	}
	if c.Locate.TopK < 1 {
		return fmt.Errorf("locate.top_k must be at least 1, got %d", c.Locate.TopK)
	}
	if c.Decompose.Clusters < 1 {
		return fmt.Errorf("decompose.clusters must be at least 1, got %d", c.Decompose.Clusters)
	}
	if c.Chains.MaxDepth < 1 {
		return fmt.Errorf("chains.max_depth must be at least 1, got %d", c.Chains.MaxDepth)
	}
	if c.Chains.MaxPerRoot < 0 {
		return fmt.Errorf("chains.max_per_root must not be negative, got %d", c.Chains.MaxPerRoot)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache.capacity must be at least 1, got %d", c.Cache.Capacity)
	}
	return nil
}
