package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Vector    VectorConfig    `yaml:"vector"`
	EmbedLLM  LLMConfig       `yaml:"embed_llm"`
	ChatLLM   LLMConfig       `yaml:"chat_llm"`
	RAG       RAGConfig       `yaml:"rag"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Server    ServerConfig    `yaml:"server"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig selects the relational store. Driver is one of "pg" (bun pgdriver),
// "postgres" (lib/pq) or "sqlite".
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"`
	Debug    bool   `yaml:"debug"`
}

// VectorConfig selects the vector store. Backend is "chromem" or "pgvector".
type VectorConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	InMemory   bool   `yaml:"in_memory"`
	Compress   bool   `yaml:"compress"`
	Dimensions int    `yaml:"dimensions"`
}

// LLMConfig configures an embedding or chat model. Provider is "ollama", "openai" or "gemini".
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Key       string `yaml:"key"`
	BatchSize int    `yaml:"batch_size"`
}

type RAGConfig struct {
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	MaxSectionSize int    `yaml:"max_section_size"`
	TopK           int    `yaml:"top_k"`
	EncryptionKey  string `yaml:"encryption_key"`
}

type IngestConfig struct {
	Directory     string   `yaml:"directory"`
	Extensions    []string `yaml:"extensions"`
	ClearExisting *bool    `yaml:"clear_existing"`
}

// ClearExistingOrDefault reports whether a directory run wipes both stores first; defaults to true.
func (i *IngestConfig) ClearExistingOrDefault() bool {
	if i.ClearExisting != nil {
		return *i.ClearExisting
	}
	return true
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type BootstrapConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// LoadConfig reads the YAML file at path, then .env and environment overrides, then defaults.
// A missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// .env is optional, like the compose setup it mirrors
	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("DB_DRIVER", &cfg.Database.Driver)
	setString("DB_HOST", &cfg.Database.Host)
	setString("DB_NAME", &cfg.Database.Name)
	setString("DB_USER", &cfg.Database.User)
	setString("DB_PASSWORD", &cfg.Database.Password)
	setString("CHROMA_PATH", &cfg.Vector.Path)
	setString("EMBEDDING_MODEL", &cfg.EmbedLLM.Model)
	setString("GEMINI_API_KEY", &cfg.ChatLLM.Key)
	setString("PDF_DIR", &cfg.Ingest.Directory)

	for key, dst := range map[string]*int{
		"DB_PORT":          &cfg.Database.Port,
		"CHUNK_SIZE":       &cfg.RAG.ChunkSize,
		"CHUNK_OVERLAP":    &cfg.RAG.ChunkOverlap,
		"MAX_SECTION_SIZE": &cfg.RAG.MaxSectionSize,
	} {
		if err := setInt(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pg"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "ragdb"
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "raguser"
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = "ragpass"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/ragdb.sqlite"
	}

	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "chromem"
	}
	if cfg.Vector.Path == "" {
		cfg.Vector.Path = "./chromemdb"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "document_chunks"
	}
	if cfg.Vector.Dimensions == 0 {
		cfg.Vector.Dimensions = 384
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "ollama"
	}
	if cfg.EmbedLLM.BaseURL == "" && cfg.EmbedLLM.Provider == "ollama" {
		cfg.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "all-minilm"
	}
	if cfg.EmbedLLM.BatchSize == 0 {
		cfg.EmbedLLM.BatchSize = 32
	}

	if cfg.ChatLLM.Provider == "" {
		cfg.ChatLLM.Provider = "gemini"
	}
	if cfg.ChatLLM.Model == "" {
		cfg.ChatLLM.Model = "gemini-1.5-flash"
	}

	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 1000
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 200
	}
	if cfg.RAG.MaxSectionSize == 0 {
		cfg.RAG.MaxSectionSize = 3000
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 5
	}

	if cfg.Ingest.Directory == "" {
		cfg.Ingest.Directory = "./data/pdfs"
	}
	if len(cfg.Ingest.Extensions) == 0 {
		cfg.Ingest.Extensions = []string{".pdf"}
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}

	if cfg.Bootstrap.MaxRetries == 0 {
		cfg.Bootstrap.MaxRetries = 30
	}
	if cfg.Bootstrap.RetryDelay == 0 {
		cfg.Bootstrap.RetryDelay = 2 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// PostgresDSN builds a postgres:// URL from the discrete connection fields unless DSN is set.
func (d *DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}
