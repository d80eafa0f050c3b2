package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/MegaGrindStone/go-sql-rag/llm"
	"github.com/MegaGrindStone/go-sql-rag/tracing"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type config struct {
	LogLevel string `yaml:"log_level"`

	Database    databaseConfig    `yaml:"database"`
	LLM         llmConfig         `yaml:"llm"`
	Embedding   embeddingConfig   `yaml:"embedding"`
	VectorStore vectorStoreConfig `yaml:"vector_store"`
	Corpus      corpusConfig      `yaml:"corpus"`
	Prompt      promptConfig      `yaml:"prompt"`
	Tracing     tracingConfig     `yaml:"tracing"`
	Server      serverConfig      `yaml:"server"`

	StatePath string `yaml:"state_path"`
}

type databaseConfig struct {
	Driver  string   `yaml:"driver"`
	DSN     string   `yaml:"dsn"`
	Tables  []string `yaml:"tables"`
	MaxRows int      `yaml:"max_rows"`
}

type llmConfig struct {
	Provider   string         `yaml:"provider"`
	Host       string         `yaml:"host"`
	APIKey     string         `yaml:"api_key"`
	Model      string         `yaml:"model"`
	Parameters llm.Parameters `yaml:"parameters"`
}

type embeddingConfig struct {
	Provider string `yaml:"provider"`
	Host     string `yaml:"host"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

type vectorStoreConfig struct {
	Provider string `yaml:"provider"`
	Path     string `yaml:"path"`

	MilvusAddress  string `yaml:"milvus_address"`
	MilvusUsername string `yaml:"milvus_username"`
	MilvusPassword string `yaml:"milvus_password"`
	VectorDim      int    `yaml:"vector_dim"`
}

type corpusConfig struct {
	Path        string `yaml:"path"`
	Concurrency int    `yaml:"concurrency"`
}

type promptConfig struct {
	NumExamples int `yaml:"num_examples"`
	ResultLimit int `yaml:"result_limit"`
}

type tracingConfig struct {
	LangSmithAPIKey   string `yaml:"langsmith_api_key"`
	LangSmithEndpoint string `yaml:"langsmith_endpoint"`
	Project           string `yaml:"project"`

	Local     bool   `yaml:"local"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	QueueSize int    `yaml:"queue_size"`
}

type serverConfig struct {
	Address string `yaml:"address"`
}

const (
	defaultConfigPath = "config.yaml"

	defaultDriver      = "mysql"
	defaultLLMProvider = "openai"
	defaultModel       = "gpt-3.5-turbo-1106"
	defaultTemperature = float32(0.2)
	defaultStop        = "\nSQLResult:"
	defaultVectorStore = "chromem"
	defaultVectorPath  = "./retail_vector_db"
	defaultCorpusPath  = "few_shots.yaml"
	defaultStatePath   = "./retail_state.db"
	defaultQueueSize   = 64
	defaultAddress     = ":8080"
	defaultConcurrency = 4
)

// loadConfig reads the YAML configuration at path, then overrides the secrets from the
// environment and a .env file. A missing file at the default path yields the defaults.
func loadConfig(path string) (config, error) {
	var cfg config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return config{}, fmt.Errorf("error parsing config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && path == defaultConfigPath:
	default:
		return config{}, fmt.Errorf("error reading config file: %w", err)
	}

	// The .env file is optional.
	_ = godotenv.Load()

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = v
		}
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
	}
	if v := os.Getenv("LANGSMITH_API_KEY"); v != "" {
		cfg.Tracing.LangSmithAPIKey = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
}

func applyDefaults(cfg *config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaultDriver
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = defaultLLMProvider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultModel
	}
	if cfg.LLM.Parameters.Temperature == nil {
		temp := defaultTemperature
		cfg.LLM.Parameters.Temperature = &temp
	}
	if cfg.LLM.Parameters.Stop == nil {
		cfg.LLM.Parameters.Stop = []string{defaultStop}
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.Model = llm.DefaultOpenAIEmbeddingModel
	}
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = defaultVectorStore
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = defaultVectorPath
	}
	if cfg.Corpus.Path == "" {
		cfg.Corpus.Path = defaultCorpusPath
	}
	if cfg.Corpus.Concurrency <= 0 {
		cfg.Corpus.Concurrency = defaultConcurrency
	}
	if cfg.Tracing.LangSmithEndpoint == "" {
		cfg.Tracing.LangSmithEndpoint = tracing.DefaultLangSmithEndpoint
	}
	if cfg.Tracing.Project == "" {
		cfg.Tracing.Project = tracing.DefaultProject
	}
	if cfg.Tracing.QueueSize <= 0 {
		cfg.Tracing.QueueSize = defaultQueueSize
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultAddress
	}
	if cfg.StatePath == "" {
		cfg.StatePath = defaultStatePath
	}
}

func (c config) validate() error {
	if c.Database.DSN == "" {
		return errors.New("database dsn not specified, set database.dsn or DATABASE_DSN")
	}
	if c.Database.Driver == "mysql" {
		if _, err := mysql.ParseDSN(c.Database.DSN); err != nil {
			return fmt.Errorf("invalid mysql dsn: %w", err)
		}
	}

	switch c.LLM.Provider {
	case "openai", "openrouter", "anthropic":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm api key not specified for provider %s", c.LLM.Provider)
		}
	case "openai_compat", "ollama":
		if c.LLM.Host == "" {
			return fmt.Errorf("llm host not specified for provider %s", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" {
			return errors.New("embedding api key not specified, set embedding.api_key or OPENAI_API_KEY")
		}
	case "ollama":
		if c.Embedding.Host == "" || c.Embedding.Model == "" {
			return errors.New("ollama embedding needs both host and model")
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}

	switch c.VectorStore.Provider {
	case "chromem":
	case "milvus":
		if c.VectorStore.MilvusAddress == "" || c.VectorStore.VectorDim <= 0 {
			return errors.New("milvus needs both milvus_address and vector_dim")
		}
	default:
		return fmt.Errorf("unknown vector store %q", c.VectorStore.Provider)
	}

	return nil
}

func (c config) logLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// databaseName returns the schema named by a MySQL DSN, for logging.
func (c config) databaseName() string {
	if c.Database.Driver != "mysql" {
		return ""
	}
	dsn, err := mysql.ParseDSN(c.Database.DSN)
	if err != nil {
		return ""
	}
	return dsn.DBName
}
