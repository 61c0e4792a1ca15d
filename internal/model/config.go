package model

import "time"

// Config is the complete application configuration.
// Loaded from defaults, then the config file, env vars and CLI flags.
type Config struct {
	Integration IntegrationConfig `yaml:"integration" mapstructure:"integration"`
	Rules       RulesConfig       `yaml:"rules" mapstructure:"rules"`
	Analysis    AnalysisConfig    `yaml:"analysis" mapstructure:"analysis"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Extraction  ExtractionConfig  `yaml:"extraction" mapstructure:"extraction"`
	Export      ExportConfig      `yaml:"export" mapstructure:"export"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	NATS        NATSConfig        `yaml:"nats" mapstructure:"nats"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
}

// IntegrationConfig controls how structured and extracted rows are unified
type IntegrationConfig struct {
	IDFields      []string `yaml:"id_fields" mapstructure:"id_fields"`           // First non-empty wins
	NumericFields []string `yaml:"numeric_fields" mapstructure:"numeric_fields"` // Coerced to numbers
}

// RulesConfig parameterises the default rule set and extra rule packs
type RulesConfig struct {
	RevenueTolerance   float64  `yaml:"revenue_tolerance" mapstructure:"revenue_tolerance"`
	Epsilon            float64  `yaml:"epsilon" mapstructure:"epsilon"`
	RequiredProcedures []string `yaml:"required_procedures" mapstructure:"required_procedures"`
	KAMMarker          string   `yaml:"kam_marker" mapstructure:"kam_marker"`
	Packs              []string `yaml:"packs" mapstructure:"packs"`       // YAML rule packs appended after the defaults
	Disabled           []string `yaml:"disabled" mapstructure:"disabled"` // Rule names to skip
}

// AnalysisConfig controls narrative generation
type AnalysisConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	Knowledge   string        `yaml:"knowledge" mapstructure:"knowledge"` // Optional snippets file
	Template    string        `yaml:"template" mapstructure:"template"`   // Optional prompt wording file
}

// LLMConfig holds model provider configuration
type LLMConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, "" (disabled)
	Model             string  `yaml:"model" mapstructure:"model"`
	APIKey            string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL           string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout           int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float32 `yaml:"temperature" mapstructure:"temperature"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	RetryAttempts     int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	HTTPProxy         string  `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string  `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy           string  `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig controls the model response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ExtractionConfig bounds document text extraction
type ExtractionConfig struct {
	MaxPages  int           `yaml:"max_pages" mapstructure:"max_pages"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxFileMB int           `yaml:"max_file_mb" mapstructure:"max_file_mb"`
}

// ExportConfig controls the delimited result table
type ExportConfig struct {
	BOM       bool   `yaml:"bom" mapstructure:"bom"`
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
}

// ConcurrencyConfig controls rule evaluation parallelism
type ConcurrencyConfig struct {
	RuleWorkers int `yaml:"rule_workers" mapstructure:"rule_workers"`
}

// LoggingConfig selects the slog handler
type LoggingConfig struct {
	Format string `yaml:"format" mapstructure:"format"` // json|text
	Level  string `yaml:"level" mapstructure:"level"`   // debug|info|warn|error
}

// NATSConfig enables publishing review results to a subject
type NATSConfig struct {
	URL     string `yaml:"url,omitempty" mapstructure:"url"`
	Subject string `yaml:"subject" mapstructure:"subject"`
}

// MetricsConfig enables writing pipeline metrics in Prometheus text format
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty" mapstructure:"textfile"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Integration: IntegrationConfig{
			IDFields:      []string{IDField, "报告ID"},
			NumericFields: []string{"amount", "tax_amount", "total_amount"},
		},
		Rules: RulesConfig{
			RevenueTolerance:   0.01,
			Epsilon:            1e-9,
			RequiredProcedures: []string{"函证", "监盘"},
			KAMMarker:          "为何对审计重要",
		},
		Analysis: AnalysisConfig{
			Enabled:     true,
			Concurrency: 4,
			CallTimeout: 60 * time.Second,
		},
		LLM: LLMConfig{
			Provider:          "", // Disabled by default
			Timeout:           30,
			MaxTokens:         1000,
			Temperature:       0.2,
			RequestsPerSecond: 2,
			Burst:             4,
			RetryAttempts:     3,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".auditreview-cache",
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Extraction: ExtractionConfig{
			MaxPages:  100,
			Timeout:   60 * time.Second,
			MaxFileMB: 100,
		},
		Export: ExportConfig{
			BOM:       true,
			Delimiter: ",",
		},
		Concurrency: ConcurrencyConfig{
			RuleWorkers: 4,
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
		NATS: NATSConfig{
			Subject: "audit.review.results",
		},
	}
}
