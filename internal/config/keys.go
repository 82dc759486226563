package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "provider.backend", typ: kString, env: "ASKMYFILES_PROVIDER_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Provider.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.Backend },
	},
	{
		key: "openai.base_url", typ: kString, env: "ASKMYFILES_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.embed_model", typ: kString, env: "ASKMYFILES_OPENAI_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.EmbedModel },
	},
	{
		key: "openai.chat_model", typ: kString, env: "ASKMYFILES_OPENAI_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.ChatModel },
	},
	{
		key: "openai.api_key", typ: kString, env: "ASKMYFILES_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "ollama.base_url", typ: kString, env: "ASKMYFILES_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "ASKMYFILES_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "ASKMYFILES_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ASKMYFILES_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "index.ignore_file", typ: kString, env: "ASKMYFILES_INDEX_IGNORE_FILE",
		apply:   func(cfg *Config, v any) { cfg.Index.IgnoreFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.IgnoreFile },
	},
	{
		key: "index.chunk_size", typ: kInt, env: "ASKMYFILES_INDEX_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Index.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Index.ChunkSize },
	},
	{
		key: "index.chunk_overlap", typ: kInt, env: "ASKMYFILES_INDEX_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Index.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Index.ChunkOverlap },
	},
	{
		key: "index.max_file_bytes", typ: kInt, env: "ASKMYFILES_INDEX_MAX_FILE_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Index.MaxFileBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Index.MaxFileBytes },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "ASKMYFILES_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.max_chars", typ: kInt, env: "ASKMYFILES_RETRIEVAL_MAX_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MaxChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.MaxChars },
	},
	{
		key: "log.level", typ: kString, env: "ASKMYFILES_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
