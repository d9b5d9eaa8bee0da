package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAGBOT_"

// DotEnvFiles are loaded from the working directory in this order.
// Neither overrides variables already present in the environment.
var DotEnvFiles = []string{"var.env", ".env"}

// LoadOptions controls where settings are read from.
type LoadOptions struct {
	// ConfigPath is an explicit TOML file. It must exist.
	ConfigPath string

	// WorkDir holds the .env files (default: current directory).
	WorkDir string
}

// Binding ties a dot-notation config key to a settings field.
type Binding struct {
	Key    string
	Target any
}

// Bindings returns every recognised config key bound to its field in s.
func Bindings(s *domain.Settings) []Binding {
	return []Binding{
		{"index.data_path", &s.Index.DataPath},
		{"index.collection_name", &s.Index.CollectionName},
		{"index.chunk_size", &s.Index.ChunkSize},
		{"index.chunk_overlap", &s.Index.ChunkOverlap},
		{"index.separators", &s.Index.Separators},
		{"index.extensions", &s.Index.Extensions},
		{"index.batch_size", &s.Index.BatchSize},
		{"index.workers", &s.Index.Workers},
		{"vector_db.url", &s.VectorDB.URL},
		{"vector_db.api_key", &s.VectorDB.APIKey},
		{"embedding.provider", &s.Embedding.Provider},
		{"embedding.model", &s.Embedding.Model},
		{"embedding.base_url", &s.Embedding.BaseURL},
		{"embedding.api_key", &s.Embedding.APIKey},
		{"embedding.dimensions", &s.Embedding.Dimensions},
		{"embedding.normalize", &s.Embedding.Normalize},
		{"llm.provider", &s.LLM.Provider},
		{"llm.model", &s.LLM.Model},
		{"llm.base_url", &s.LLM.BaseURL},
		{"llm.api_key", &s.LLM.APIKey},
		{"llm.temperature", &s.LLM.Temperature},
		{"llm.timeout", &s.LLM.Timeout},
		{"llm.max_retries", &s.LLM.MaxRetries},
		{"llm.requests_per_second", &s.LLM.RequestsPerSecond},
		{"chat.k", &s.Chat.K},
		{"chat.max_prompt_chars", &s.Chat.MaxPromptChars},
		{"chat.max_history_turns", &s.Chat.MaxHistoryTurns},
		{"chat.exit_keyword", &s.Chat.ExitKeyword},
		{"state_dir", &s.StateDir},
		{"prompts_dir", &s.PromptsDir},
	}
}

// Value returns the current value of the bound field.
func (b Binding) Value() any {
	switch t := b.Target.(type) {
	case *string:
		return *t
	case *domain.AIProvider:
		return string(*t)
	case *int:
		return *t
	case *float64:
		return *t
	case *bool:
		return *t
	case *time.Duration:
		return t.String()
	case *[]string:
		return *t
	default:
		return nil
	}
}

// envSettings mirrors the bindings as RAGBOT_* variables.
// Nil fields were not set.
type envSettings struct {
	DataPath          *string        `env:"DATA_PATH"`
	CollectionName    *string        `env:"COLLECTION_NAME"`
	ChunkSize         *int           `env:"CHUNK_SIZE"`
	ChunkOverlap      *int           `env:"CHUNK_OVERLAP"`
	Separators        []string       `env:"SEPARATORS" envSeparator:"|"`
	Extensions        []string       `env:"EXTENSIONS" envSeparator:","`
	BatchSize         *int           `env:"BATCH_SIZE"`
	Workers           *int           `env:"WORKERS"`
	VectorDBURL       *string        `env:"VECTOR_DB_URL"`
	VectorDBAPIKey    *string        `env:"VECTOR_DB_API_KEY"`
	EmbeddingProvider *string        `env:"EMBEDDING_PROVIDER"`
	EmbeddingModel    *string        `env:"EMBEDDING_MODEL"`
	EmbeddingBaseURL  *string        `env:"EMBEDDING_BASE_URL"`
	EmbeddingAPIKey   *string        `env:"EMBEDDING_API_KEY"`
	EmbeddingDims     *int           `env:"EMBEDDING_DIMENSIONS"`
	EmbeddingNorm     *bool          `env:"EMBEDDING_NORMALIZE"`
	LLMProvider       *string        `env:"LLM_PROVIDER"`
	LLMModel          *string        `env:"LLM_MODEL"`
	LLMBaseURL        *string        `env:"LLM_BASE_URL"`
	LLMAPIKey         *string        `env:"LLM_API_KEY"`
	Temperature       *float64       `env:"TEMPERATURE"`
	LLMTimeout        *time.Duration `env:"LLM_TIMEOUT"`
	LLMMaxRetries     *int           `env:"LLM_MAX_RETRIES"`
	LLMRateLimit      *float64       `env:"LLM_RATE_LIMIT"`
	RetrievalK        *int           `env:"RETRIEVAL_K"`
	MaxPromptChars    *int           `env:"MAX_PROMPT_CHARS"`
	MaxHistoryTurns   *int           `env:"MAX_HISTORY_TURNS"`
	ExitKeyword       *string        `env:"EXIT_KEYWORD"`
	StateDir          *string        `env:"STATE_DIR"`
	PromptsDir        *string        `env:"PROMPTS_DIR"`
}

// ResolveConfigPath returns explicit, or ~/.ragbot/config.toml.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return expandHome(explicit), nil
	}
	dir, err := DefaultDir()
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return filepath.Join(dir, ConfigFile), nil
}

// LoadSettings layers, lowest first: defaults, the TOML file, the .env
// files and RAGBOT_* variables. Provider API keys fall back to the
// provider's conventional variable. The result is validated.
func LoadSettings(opts LoadOptions) (domain.Settings, error) {
	s := domain.DefaultSettings()
	if dir, err := DefaultDir(); err == nil {
		s.StateDir = filepath.Join(dir, "data")
		s.PromptsDir = filepath.Join(dir, "prompts")
	}

	path, err := ResolveConfigPath(opts.ConfigPath)
	if err != nil {
		return s, err
	}
	if opts.ConfigPath != "" {
		if _, err := os.Stat(path); err != nil {
			return s, &domain.ConfigError{Field: "config", Reason: err.Error()}
		}
	}
	store, err := OpenConfigStore(path)
	if err != nil {
		return s, &domain.ConfigError{Field: "config", Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	if err := ApplyStore(store, &s); err != nil {
		return s, err
	}

	if err := loadDotEnv(opts.WorkDir); err != nil {
		return s, err
	}
	if err := applyEnv(&s); err != nil {
		return s, err
	}

	if s.LLM.APIKey == "" {
		s.LLM.APIKey = os.Getenv(s.LLM.Provider.APIKeyEnv())
	}
	if s.Embedding.APIKey == "" {
		s.Embedding.APIKey = os.Getenv(s.Embedding.Provider.APIKeyEnv())
	}
	s.StateDir = expandHome(s.StateDir)
	s.PromptsDir = expandHome(s.PromptsDir)

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// ApplyStore copies every recognised key present in c onto s.
func ApplyStore(c driven.ConfigStore, s *domain.Settings) error {
	for _, b := range Bindings(s) {
		raw, ok := c.Get(b.Key)
		if !ok {
			continue
		}
		if err := assign(b, raw); err != nil {
			return err
		}
	}
	return nil
}

func assign(b Binding, raw any) error {
	bad := func() error {
		return &domain.ConfigError{Field: b.Key, Reason: fmt.Sprintf("unexpected value %v (%T)", raw, raw)}
	}

	switch t := b.Target.(type) {
	case *string:
		v, ok := raw.(string)
		if !ok {
			return bad()
		}
		*t = v
	case *domain.AIProvider:
		v, ok := raw.(string)
		if !ok {
			return bad()
		}
		*t = domain.AIProvider(strings.ToLower(v))
	case *int:
		switch v := raw.(type) {
		case int64:
			*t = int(v)
		case int:
			*t = v
		default:
			return bad()
		}
	case *float64:
		switch v := raw.(type) {
		case float64:
			*t = v
		case int64:
			*t = float64(v)
		case int:
			*t = float64(v)
		default:
			return bad()
		}
	case *bool:
		v, ok := raw.(bool)
		if !ok {
			return bad()
		}
		*t = v
	case *time.Duration:
		switch v := raw.(type) {
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return &domain.ConfigError{Field: b.Key, Reason: err.Error()}
			}
			*t = d
		case int64:
			*t = time.Duration(v) * time.Second
		default:
			return bad()
		}
	case *[]string:
		list, ok := raw.([]any)
		if !ok {
			if strs, ok := raw.([]string); ok {
				*t = strs
				return nil
			}
			return bad()
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			str, ok := item.(string)
			if !ok {
				return bad()
			}
			out = append(out, str)
		}
		*t = out
	}
	return nil
}

// ParseValue converts a command-line value for key into the type stored
// in the TOML file. Lists are comma separated.
func ParseValue(key, raw string) (any, error) {
	var probe domain.Settings
	for _, b := range Bindings(&probe) {
		if b.Key != key {
			continue
		}
		switch b.Target.(type) {
		case *int:
			v, err := strconv.Atoi(raw)
			if err != nil {
				return nil, &domain.ConfigError{Field: key, Reason: "expected an integer"}
			}
			return v, nil
		case *float64:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, &domain.ConfigError{Field: key, Reason: "expected a number"}
			}
			return v, nil
		case *bool:
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, &domain.ConfigError{Field: key, Reason: "expected true or false"}
			}
			return v, nil
		case *time.Duration:
			if _, err := time.ParseDuration(raw); err != nil {
				return nil, &domain.ConfigError{Field: key, Reason: "expected a duration such as 30s"}
			}
			return raw, nil
		case *[]string:
			parts := strings.Split(raw, ",")
			for i := range parts {
				parts[i] = unescape(strings.TrimSpace(parts[i]))
			}
			return parts, nil
		default:
			return raw, nil
		}
	}
	return nil, &domain.ConfigError{Field: key, Reason: "unknown key"}
}

func loadDotEnv(workDir string) error {
	if workDir == "" {
		workDir = "."
	}
	for _, name := range DotEnvFiles {
		path := filepath.Join(workDir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return &domain.ConfigError{Field: name, Reason: err.Error()}
		}
	}
	return nil
}

func applyEnv(s *domain.Settings) error {
	var e envSettings
	if err := env.ParseWithOptions(&e, env.Options{Prefix: EnvPrefix}); err != nil {
		return &domain.ConfigError{Field: "environment", Reason: err.Error()}
	}

	setString(&s.Index.DataPath, e.DataPath)
	setString(&s.Index.CollectionName, e.CollectionName)
	setInt(&s.Index.ChunkSize, e.ChunkSize)
	setInt(&s.Index.ChunkOverlap, e.ChunkOverlap)
	if e.Separators != nil {
		s.Index.Separators = make([]string, len(e.Separators))
		for i, sep := range e.Separators {
			s.Index.Separators[i] = unescape(sep)
		}
	}
	if e.Extensions != nil {
		s.Index.Extensions = e.Extensions
	}
	setInt(&s.Index.BatchSize, e.BatchSize)
	setInt(&s.Index.Workers, e.Workers)
	setString(&s.VectorDB.URL, e.VectorDBURL)
	setString(&s.VectorDB.APIKey, e.VectorDBAPIKey)
	if e.EmbeddingProvider != nil {
		s.Embedding.Provider = domain.AIProvider(strings.ToLower(*e.EmbeddingProvider))
	}
	setString(&s.Embedding.Model, e.EmbeddingModel)
	setString(&s.Embedding.BaseURL, e.EmbeddingBaseURL)
	setString(&s.Embedding.APIKey, e.EmbeddingAPIKey)
	setInt(&s.Embedding.Dimensions, e.EmbeddingDims)
	if e.EmbeddingNorm != nil {
		s.Embedding.Normalize = *e.EmbeddingNorm
	}
	if e.LLMProvider != nil {
		s.LLM.Provider = domain.AIProvider(strings.ToLower(*e.LLMProvider))
	}
	setString(&s.LLM.Model, e.LLMModel)
	setString(&s.LLM.BaseURL, e.LLMBaseURL)
	setString(&s.LLM.APIKey, e.LLMAPIKey)
	setFloat(&s.LLM.Temperature, e.Temperature)
	if e.LLMTimeout != nil {
		s.LLM.Timeout = *e.LLMTimeout
	}
	setInt(&s.LLM.MaxRetries, e.LLMMaxRetries)
	setFloat(&s.LLM.RequestsPerSecond, e.LLMRateLimit)
	setInt(&s.Chat.K, e.RetrievalK)
	setInt(&s.Chat.MaxPromptChars, e.MaxPromptChars)
	setInt(&s.Chat.MaxHistoryTurns, e.MaxHistoryTurns)
	setString(&s.Chat.ExitKeyword, e.ExitKeyword)
	setString(&s.StateDir, e.StateDir)
	setString(&s.PromptsDir, e.PromptsDir)
	return nil
}

func setString(dst, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst, src *float64) {
	if src != nil {
		*dst = *src
	}
}

var escapes = strings.NewReplacer(`\n`, "\n", `\t`, "\t")

// unescape turns the two-character sequences \n and \t into control
// characters so separators can be written on one line.
func unescape(s string) string {
	return escapes.Replace(s)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
