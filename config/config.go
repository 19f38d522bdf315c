package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/answer"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/search"
)

// AIConfig holds connection details for the OpenAI-compatible model services.
type AIConfig struct {
	EmbeddingHost  string  `yaml:"embedding_host"`
	SynthesisHost  string  `yaml:"synthesis_host"`
	EmbeddingModel string  `yaml:"embedding_model"`
	SynthesisModel string  `yaml:"synthesis_model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
}

// ChunkingConfig configures how document text is split.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig configures hybrid retrieval.
type RetrievalConfig struct {
	TopK              int     `yaml:"top_k"`
	VectorCandidates  int     `yaml:"vector_candidates"`
	LexicalCandidates int     `yaml:"lexical_candidates"`
	ScoreThreshold    float32 `yaml:"score_threshold"`
	VectorWeight      float32 `yaml:"vector_weight"`
	LexicalWeight     float32 `yaml:"lexical_weight"`
	EmbedTimeoutSecs  int     `yaml:"embed_timeout_secs"`
}

// AnswerSettings configures answer synthesis.
type AnswerSettings struct {
	ContextPassages      int     `yaml:"context_passages"`
	ContextThreshold     float32 `yaml:"context_threshold"`
	SynthesisTimeoutSecs int     `yaml:"synthesis_timeout_secs"`
	ExcerptLength        int     `yaml:"excerpt_length"`
}

// IngestionConfig configures the ingestion pipeline.
type IngestionConfig struct {
	PoolSize       int `yaml:"pool_size"`
	EmbedBatchSize int `yaml:"embed_batch_size"`
	MaxRetries     int `yaml:"max_retries"`
	RetryDelaySecs int `yaml:"retry_delay_secs"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Database  string          `yaml:"database"`
	AI        AIConfig        `yaml:"ai"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Answer    AnswerSettings  `yaml:"answer"`
	Ingestion IngestionConfig `yaml:"ingestion"`
}

// Load reads a config from the specified path. If the file does not exist,
// returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./docent.yaml first, then ~/.config/docent/config.yaml.
// If neither exists, it writes defaults to ~/.config/docent/config.yaml and
// returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "docent.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AIServiceConfig converts the ai section for the provider constructors.
func (c *AppConfig) AIServiceConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithSynthesisHost(c.AI.SynthesisHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithSynthesisModel(c.AI.SynthesisModel),
		ai.WithTemperature(c.AI.Temperature),
		ai.WithMaxTokens(c.AI.MaxTokens),
	)
}

// ChunkConfig converts the chunking section.
func (c *AppConfig) ChunkConfig() core.ChunkConfig {
	return core.ChunkConfig{Size: c.Chunking.Size, Overlap: c.Chunking.Overlap}
}

// SearchConfig converts the retrieval section.
func (c *AppConfig) SearchConfig() *search.Config {
	return &search.Config{
		TopK:              c.Retrieval.TopK,
		VectorCandidates:  c.Retrieval.VectorCandidates,
		LexicalCandidates: c.Retrieval.LexicalCandidates,
		ScoreThreshold:    c.Retrieval.ScoreThreshold,
		VectorWeight:      c.Retrieval.VectorWeight,
		LexicalWeight:     c.Retrieval.LexicalWeight,
		EmbedTimeout:      time.Duration(c.Retrieval.EmbedTimeoutSecs) * time.Second,
	}
}

// AnswerConfig converts the answer section.
func (c *AppConfig) AnswerConfig() *answer.Config {
	return &answer.Config{
		Retrieval:        c.SearchConfig(),
		ContextPassages:  c.Answer.ContextPassages,
		ContextThreshold: c.Answer.ContextThreshold,
		SynthesisTimeout: time.Duration(c.Answer.SynthesisTimeoutSecs) * time.Second,
		ExcerptLength:    c.Answer.ExcerptLength,
	}
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docent", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	aiDefaults := ai.DefaultConfig()
	retrieval := search.DefaultConfig()
	answers := answer.DefaultConfig()
	chunking := core.DefaultChunkConfig()

	return &AppConfig{
		Database: "./docent_db",
		AI: AIConfig{
			EmbeddingHost:  aiDefaults.EmbeddingHost,
			SynthesisHost:  aiDefaults.SynthesisHost,
			EmbeddingModel: aiDefaults.EmbeddingModel,
			SynthesisModel: aiDefaults.SynthesisModel,
			Temperature:    aiDefaults.Temperature,
			MaxTokens:      aiDefaults.MaxTokens,
		},
		Chunking: ChunkingConfig{Size: chunking.Size, Overlap: chunking.Overlap},
		Retrieval: RetrievalConfig{
			TopK:              retrieval.TopK,
			VectorCandidates:  retrieval.VectorCandidates,
			LexicalCandidates: retrieval.LexicalCandidates,
			ScoreThreshold:    retrieval.ScoreThreshold,
			VectorWeight:      retrieval.VectorWeight,
			LexicalWeight:     retrieval.LexicalWeight,
			EmbedTimeoutSecs:  int(retrieval.EmbedTimeout / time.Second),
		},
		Answer: AnswerSettings{
			ContextPassages:      answers.ContextPassages,
			ContextThreshold:     answers.ContextThreshold,
			SynthesisTimeoutSecs: int(answers.SynthesisTimeout / time.Second),
			ExcerptLength:        answers.ExcerptLength,
		},
		Ingestion: IngestionConfig{
			PoolSize:       0, // 0 means pipeline default (NumCPU / 2)
			EmbedBatchSize: 32,
			MaxRetries:     3,
			RetryDelaySecs: 1,
		},
	}
}

// applyConfigDefaults fills in zero values a hand-edited file may omit.
func applyConfigDefaults(cfg *AppConfig) {
	defaults := defaultConfig()

	if cfg.Database == "" {
		cfg.Database = defaults.Database
	}
	if cfg.AI.EmbeddingHost == "" {
		cfg.AI.EmbeddingHost = defaults.AI.EmbeddingHost
	}
	if cfg.AI.SynthesisHost == "" {
		cfg.AI.SynthesisHost = cfg.AI.EmbeddingHost
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = defaults.AI.EmbeddingModel
	}
	if cfg.AI.SynthesisModel == "" {
		cfg.AI.SynthesisModel = defaults.AI.SynthesisModel
	}
	if cfg.AI.Temperature == 0 {
		cfg.AI.Temperature = defaults.AI.Temperature
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = defaults.AI.MaxTokens
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = defaults.Chunking.Size
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = defaults.Retrieval.TopK
	}
	if cfg.Retrieval.VectorCandidates == 0 {
		cfg.Retrieval.VectorCandidates = defaults.Retrieval.VectorCandidates
	}
	if cfg.Retrieval.LexicalCandidates == 0 {
		cfg.Retrieval.LexicalCandidates = defaults.Retrieval.LexicalCandidates
	}
	if cfg.Retrieval.VectorWeight == 0 && cfg.Retrieval.LexicalWeight == 0 {
		cfg.Retrieval.VectorWeight = defaults.Retrieval.VectorWeight
		cfg.Retrieval.LexicalWeight = defaults.Retrieval.LexicalWeight
	}
	if cfg.Retrieval.EmbedTimeoutSecs == 0 {
		cfg.Retrieval.EmbedTimeoutSecs = defaults.Retrieval.EmbedTimeoutSecs
	}
	if cfg.Answer.ContextPassages == 0 {
		cfg.Answer.ContextPassages = defaults.Answer.ContextPassages
	}
	if cfg.Answer.ContextThreshold == 0 {
		cfg.Answer.ContextThreshold = defaults.Answer.ContextThreshold
	}
	if cfg.Answer.SynthesisTimeoutSecs == 0 {
		cfg.Answer.SynthesisTimeoutSecs = defaults.Answer.SynthesisTimeoutSecs
	}
	if cfg.Answer.ExcerptLength == 0 {
		cfg.Answer.ExcerptLength = defaults.Answer.ExcerptLength
	}
	if cfg.Ingestion.EmbedBatchSize == 0 {
		cfg.Ingestion.EmbedBatchSize = defaults.Ingestion.EmbedBatchSize
	}
	if cfg.Ingestion.MaxRetries == 0 {
		cfg.Ingestion.MaxRetries = defaults.Ingestion.MaxRetries
	}
	if cfg.Ingestion.RetryDelaySecs == 0 {
		cfg.Ingestion.RetryDelaySecs = defaults.Ingestion.RetryDelaySecs
	}
}
