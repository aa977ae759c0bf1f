// Package config loads the service's environment-driven configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the fully-resolved, process-wide configuration.
type Config struct {
	HTTPAddr string

	PlatformBaseURL    string
	PlatformSecret     string
	PlatformTimeout    time.Duration
	PlatformMaxRetries int

	VectorStoreHTTPHost string
	VectorStoreHTTPPort int
	VectorStoreGRPCHost string
	VectorStoreGRPCPort int

	EmbeddingAPIKey string
	EmbeddingModel  string

	CacheDir            string
	ToolCacheFile       string
	MCPServerCacheFile  string
	SyncInterval        time.Duration
	DefaultDropRate     float64
	ClearOnStartup      bool
	SearchResultLimit   int
	AttachDetachTimeout time.Duration
}

// Load reads an optional .env file (development convenience, ignored if
// absent) and then binds every setting to an environment variable under
// the ORCHESTRATOR_ prefix, applying the defaults spec.md calls for.
func Load() (*Config, error) {
	_ = godotenv.Load() // best-effort; absence is not an error

	v := viper.New()
	v.SetEnvPrefix("ORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.addr", ":8090")
	v.SetDefault("platform.base_url", "http://localhost:8283/v1")
	v.SetDefault("platform.secret", "")
	v.SetDefault("platform.timeout_seconds", 10)
	v.SetDefault("platform.max_retries", 3)
	v.SetDefault("vectorstore.http_host", "localhost")
	v.SetDefault("vectorstore.http_port", 8080)
	v.SetDefault("vectorstore.grpc_host", "localhost")
	v.SetDefault("vectorstore.grpc_port", 50051)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("cache.dir", "/app/runtime_cache")
	v.SetDefault("cache.tool_file", "tool_cache.json")
	v.SetDefault("cache.mcp_server_file", "mcp_servers_cache.json")
	v.SetDefault("sync.interval_seconds", 300)
	v.SetDefault("sync.default_drop_rate", 0.1)
	v.SetDefault("sync.clear_on_startup", false)
	v.SetDefault("search.result_limit", 10)
	v.SetDefault("engine.mutation_timeout_seconds", 10)

	cfg := &Config{
		HTTPAddr:             v.GetString("http.addr"),
		PlatformBaseURL:      v.GetString("platform.base_url"),
		PlatformSecret:       v.GetString("platform.secret"),
		PlatformTimeout:      time.Duration(v.GetInt("platform.timeout_seconds")) * time.Second,
		PlatformMaxRetries:   v.GetInt("platform.max_retries"),
		VectorStoreHTTPHost:  v.GetString("vectorstore.http_host"),
		VectorStoreHTTPPort:  v.GetInt("vectorstore.http_port"),
		VectorStoreGRPCHost:  v.GetString("vectorstore.grpc_host"),
		VectorStoreGRPCPort:  v.GetInt("vectorstore.grpc_port"),
		EmbeddingAPIKey:      v.GetString("embedding.api_key"),
		EmbeddingModel:       v.GetString("embedding.model"),
		CacheDir:             v.GetString("cache.dir"),
		ToolCacheFile:        v.GetString("cache.tool_file"),
		MCPServerCacheFile:   v.GetString("cache.mcp_server_file"),
		SyncInterval:         time.Duration(v.GetInt("sync.interval_seconds")) * time.Second,
		DefaultDropRate:      v.GetFloat64("sync.default_drop_rate"),
		ClearOnStartup:       v.GetBool("sync.clear_on_startup"),
		SearchResultLimit:    v.GetInt("search.result_limit"),
		AttachDetachTimeout:  time.Duration(v.GetInt("engine.mutation_timeout_seconds")) * time.Second,
	}

	if cfg.PlatformBaseURL == "" {
		return nil, fmt.Errorf("config: platform.base_url must not be empty")
	}
	if cfg.DefaultDropRate < 0 || cfg.DefaultDropRate > 1 {
		return nil, fmt.Errorf("config: sync.default_drop_rate must be within [0,1], got %v", cfg.DefaultDropRate)
	}

	return cfg, nil
}
