package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "./configs/config.yaml"

type Config struct {
	EmbedLLM   LLMConfig        `yaml:"embed_llm"`
	ChatLLM    LLMConfig        `yaml:"chat_llm"`
	VectorDB   VectorDBConfig   `yaml:"vector_db"`
	Database   DatabaseConfig   `yaml:"database"`
	RAG        RAGConfig        `yaml:"rag"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Lookup     LookupConfig     `yaml:"lookup"`
	Server     ServerConfig     `yaml:"server"`
	LogLevel   string           `yaml:"log_level"`
}

// LLMConfig describes a langchaingo provider. Provider is one of googleai, openai, ollama.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

type VectorDBConfig struct {
	// Store is chromem or pgvector.
	Store          string `yaml:"store"`
	Path           string `yaml:"path"`
	CollectionName string `yaml:"collection_name"`
	EncryptionKey  string `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	Driver     string `yaml:"driver"`
	VectorSize int    `yaml:"vector_size"`
	Debug      bool   `yaml:"debug"`
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

type IngestConfig struct {
	DocumentsDir       string `yaml:"documents_dir"`
	CheckpointFile     string `yaml:"checkpoint_file"`
	ProcessedFilesFile string `yaml:"processed_files_file"`
}

type ClassifierConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

type LookupConfig struct {
	YouTubeKey             string `yaml:"youtube_key"`
	SearchResults          int    `yaml:"search_results"`
	UserAgent              string `yaml:"user_agent"`
	GeoIPURL               string `yaml:"geoip_url"`
	WeatherURL             string `yaml:"weather_url"`
	NominatimURL           string `yaml:"nominatim_url"`
	WeatherCacheTTLSeconds int    `yaml:"weather_cache_ttl_seconds"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// LoadConfig reads the yaml file at path when it exists, then applies environment
// overrides and defaults. A missing file is not an error. Numeric settings where
// zero is meaningful are preset so an explicit 0 survives.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ChatLLM: LLMConfig{Temperature: 0.3},
		RAG:     RAGConfig{ChunkSize: 200, ChunkOverlap: 100},
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// Load resolves the config path from CONFIG_FILE.
func Load() (*Config, error) {
	return LoadConfig(getEnv("CONFIG_FILE", DefaultConfigPath))
}

func applyEnv(cfg *Config) {
	setString(&cfg.EmbedLLM.Provider, "EMBEDDING_PROVIDER")
	setString(&cfg.EmbedLLM.Model, "EMBEDDING_MODEL")
	setString(&cfg.ChatLLM.Provider, "LLM_PROVIDER")
	setString(&cfg.ChatLLM.Model, "LLM_MODEL")
	setFloat(&cfg.ChatLLM.Temperature, "TEMPERATURE")

	for _, llm := range []*LLMConfig{&cfg.EmbedLLM, &cfg.ChatLLM} {
		if llm.Key != "" {
			continue
		}
		switch llm.Provider {
		case "openai":
			setString(&llm.Key, "OPENAI_API_KEY")
			setString(&llm.BaseURL, "OPENAI_BASE_URL")
		case "ollama":
			setString(&llm.BaseURL, "OLLAMA_URL")
		default:
			setString(&llm.Key, "GOOGLE_API_KEY")
		}
	}

	setString(&cfg.VectorDB.Store, "VECTOR_STORE")
	setString(&cfg.VectorDB.Path, "VECTOR_DB_DIR")
	setString(&cfg.VectorDB.CollectionName, "COLLECTION_NAME")
	setString(&cfg.VectorDB.EncryptionKey, "VECTOR_DB_ENCRYPTION_KEY")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Database.Password, "DATABASE_PASSWORD")
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setInt(&cfg.Database.VectorSize, "VECTOR_SIZE")

	setString(&cfg.Ingest.DocumentsDir, "DOCUMENTS_DIR")
	setString(&cfg.Ingest.CheckpointFile, "CHECKPOINT_FILE")
	setString(&cfg.Ingest.ProcessedFilesFile, "PROCESSED_FILES_FILE")

	setString(&cfg.Classifier.URL, "CLASSIFIER_URL")
	setString(&cfg.Classifier.Model, "CLASSIFIER_MODEL")

	setString(&cfg.Lookup.YouTubeKey, "YOUTUBE_API_KEY")
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
}

func applyDefaults(cfg *Config) {
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "googleai"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "text-embedding-004"
	}
	if cfg.ChatLLM.Provider == "" {
		cfg.ChatLLM.Provider = "googleai"
	}
	if cfg.ChatLLM.Model == "" {
		cfg.ChatLLM.Model = "gemini-2.0-flash"
	}

	if cfg.VectorDB.Store == "" {
		cfg.VectorDB.Store = "chromem"
	}
	if cfg.VectorDB.Path == "" {
		cfg.VectorDB.Path = "vector_db"
	}
	if cfg.VectorDB.CollectionName == "" {
		cfg.VectorDB.CollectionName = "agriculture"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
	if cfg.Database.VectorSize == 0 {
		cfg.Database.VectorSize = 768
	}

	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = 200
	}
	if cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		cfg.RAG.ChunkOverlap = min(100, cfg.RAG.ChunkSize/2)
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 10
	}

	if cfg.Ingest.DocumentsDir == "" {
		cfg.Ingest.DocumentsDir = "Information_About_Crops"
	}
	if cfg.Ingest.CheckpointFile == "" {
		cfg.Ingest.CheckpointFile = "processed_documents.json"
	}
	if cfg.Ingest.ProcessedFilesFile == "" {
		cfg.Ingest.ProcessedFilesFile = "processed_files.json"
	}

	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "disease_classification_model"
	}

	if cfg.Lookup.SearchResults == 0 {
		cfg.Lookup.SearchResults = 10
	}
	if cfg.Lookup.UserAgent == "" {
		cfg.Lookup.UserAgent = "agriguardian/1.0"
	}
	if cfg.Lookup.GeoIPURL == "" {
		cfg.Lookup.GeoIPURL = "http://ip-api.com/json"
	}
	if cfg.Lookup.WeatherURL == "" {
		cfg.Lookup.WeatherURL = "https://api.open-meteo.com/v1/forecast"
	}
	if cfg.Lookup.NominatimURL == "" {
		cfg.Lookup.NominatimURL = "https://nominatim.openstreetmap.org/reverse"
	}
	if cfg.Lookup.WeatherCacheTTLSeconds == 0 {
		cfg.Lookup.WeatherCacheTTLSeconds = 3600
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = "8000"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
