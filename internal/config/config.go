package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Provider  ProviderConfig
	OpenAI    OpenAIConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Index     IndexConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ProviderConfig struct {
	Backend string
}

type OpenAIConfig struct {
	BaseURL    string
	EmbedModel string
	ChatModel  string
	APIKey     string
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
	ChatModel  string
}

type StorageConfig struct {
	DataDir string
}

type IndexConfig struct {
	IgnoreFile   string
	ChunkSize    int
	ChunkOverlap int

	// MaxFileBytes skips files larger than this many bytes. Zero means no limit.
	MaxFileBytes int
}

type RetrievalConfig struct {
	TopK     int
	MaxChars int
}

type LogConfig struct {
	Level string
}

// DefaultDataDir is the store directory, relative to the working directory.
const DefaultDataDir = ".vectordatadb"

func defaults() Config {
	return Config{
		Provider: ProviderConfig{
			Backend: "openai",
		},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com/v1",
			EmbedModel: "text-embedding-ada-002",
			ChatModel:  "gpt-3.5-turbo-16k",
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
			ChatModel:  "llama3.2",
		},
		Storage: StorageConfig{
			DataDir: DefaultDataDir,
		},
		Index: IndexConfig{
			IgnoreFile:   ".gitignore",
			ChunkSize:    500,
			ChunkOverlap: 50,
		},
		Retrieval: RetrievalConfig{
			TopK:     100,
			MaxChars: 60000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// EmbedModel returns the embedding model of the selected backend.
func (c Config) EmbedModel() string {
	if c.Provider.Backend == "ollama" {
		return c.Ollama.EmbedModel
	}
	return c.OpenAI.EmbedModel
}

// ChatModel returns the chat model of the selected backend.
func (c Config) ChatModel() string {
	if c.Provider.Backend == "ollama" {
		return c.Ollama.ChatModel
	}
	return c.OpenAI.ChatModel
}

// Load reads configuration from the TOML file at
// $XDG_CONFIG_HOME/askmyfiles/config.toml, then applies ASKMYFILES_*
// environment overrides. OPENAI_API_KEY is used when no other source sets
// the API key. A missing key is not an error here; only the openai backend
// needs one, and it is checked when the provider is built.
func Load() (Config, error) {
	return loadWith(newFileBackend(ConfigFilePath()))
}

// loadFromPath loads configuration with the file backend at path.
func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Provider.Backend {
	case "openai", "ollama":
	default:
		return fmt.Errorf("invalid provider.backend %q: want openai or ollama", c.Provider.Backend)
	}
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("invalid index.chunk_size %d: must be positive", c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 {
		return fmt.Errorf("invalid index.chunk_overlap %d: must not be negative", c.Index.ChunkOverlap)
	}
	if c.Index.MaxFileBytes < 0 {
		return fmt.Errorf("invalid index.max_file_bytes %d: must not be negative", c.Index.MaxFileBytes)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("missing required config: storage.data_dir")
	}
	return nil
}

// ConfigFilePath returns the location of the user config file.
func ConfigFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "askmyfiles", "config.toml")
}
