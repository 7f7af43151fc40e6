package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in provider names per kind. Unknown
// names only produce a warning so third-party factories can be registered.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "groq", "anthropic", "gemini", "ollama", "deepseek", "mistral", "llamacpp"},
	"stt":        {"assemblyai", "deepgram", "whisper", "whisper-native"},
	"embeddings": {"openai", "ollama"},
}

// LoadEnv loads KEY=value pairs from files into the process environment
// without overriding variables that are already set. Missing files are
// skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env %q: %w", f, err)
		}
		slog.Debug("loaded environment file", "path", f)
	}
	return nil
}

// Load reads the YAML configuration file at path, expands ${VAR}
// references from the environment, applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes, expands, defaults and validates a YAML config.
// An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg is coherent and returns every problem found,
// joined. It expects defaults to have been applied.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative"))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must not be negative"))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	errs = append(errs, validateProvider("llm", cfg.Providers.LLM, true)...)
	errs = append(errs, validateProvider("stt", cfg.Providers.STT, true)...)
	errs = append(errs, validateProvider("embeddings", cfg.Providers.Embeddings, false)...)
	if cb := cfg.Providers.CircuitBreaker; cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("providers.circuit_breaker values must not be negative"))
	}

	switch cfg.Storage.Backend {
	case StorageMemory:
	case StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("storage.postgres_dsn is required when storage.backend is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, postgres", cfg.Storage.Backend))
	}
	if cfg.Storage.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("storage.embedding_dimensions must not be negative"))
	}

	switch cfg.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if cfg.Cache.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("cache.redis_addr is required when cache.backend is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is invalid; valid values: none, memory, redis", cfg.Cache.Backend))
	}
	if cfg.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must not be negative"))
	}

	a := cfg.Assistant
	if a.MatchThreshold < 0 || a.MatchThreshold > 100 {
		errs = append(errs, fmt.Errorf("assistant.match_threshold %.1f is out of range [0, 100]", a.MatchThreshold))
	}
	if a.Temperature != nil && (*a.Temperature < 0 || *a.Temperature > 2) {
		errs = append(errs, fmt.Errorf("assistant.temperature %.2f is out of range [0, 2]", *a.Temperature))
	}
	if a.Recommendations.Candidates < 1 || a.Recommendations.Limit < 1 {
		errs = append(errs, fmt.Errorf("assistant.recommendations candidates and limit must be positive"))
	} else if a.Recommendations.Limit > a.Recommendations.Candidates {
		errs = append(errs, fmt.Errorf("assistant.recommendations.limit %d exceeds candidates %d", a.Recommendations.Limit, a.Recommendations.Candidates))
	}

	if cfg.Providers.Embeddings.Name == "" && cfg.Storage.EmbeddingDimensions > 0 {
		slog.Warn("storage.embedding_dimensions is set but providers.embeddings is not configured; recommendations are disabled")
	}

	return errors.Join(errs...)
}

func validateProvider(kind string, e ProviderEntry, required bool) []error {
	var errs []error
	if e.Name == "" {
		if required {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", kind))
		}
		if len(e.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("providers.%s declares fallbacks without a primary", kind))
		}
		return errs
	}
	warnUnknownProvider(kind, e.Name)
	for i, fb := range e.Fallbacks {
		prefix := fmt.Sprintf("providers.%s.fallbacks[%d]", kind, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s may not declare nested fallbacks", prefix))
		}
		warnUnknownProvider(kind, fb.Name)
	}
	return errs
}

func warnUnknownProvider(kind, name string) {
	if name == "" || slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
