package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App     App     `mapstructure:"app"`
	ArXiv   ArXiv   `mapstructure:"arxiv"`
	Oracle  Oracle  `mapstructure:"oracle"`
	Scoring Scoring `mapstructure:"scoring"`
	Review  Review  `mapstructure:"review"`
	Output  Output  `mapstructure:"output"`
	Email   Email   `mapstructure:"email"`
}

// App holds general application configuration
type App struct {
	Debug       bool   `mapstructure:"debug"`
	DataDir     string `mapstructure:"data_dir"`     // archive database + full-text cache
	ProfilePath string `mapstructure:"profile_path"` // preference profile JSON
	ConfigFile  string `mapstructure:"-"`            // resolved config file path, set by Load
}

// ArXiv holds candidate retrieval configuration
type ArXiv struct {
	BaseURL       string `mapstructure:"base_url"`       // Atom query endpoint
	HTMLBaseURL   string `mapstructure:"html_base_url"`  // HTML rendering base for full text
	PageSize      int    `mapstructure:"page_size"`      // entries per API page
	MaxResults    int    `mapstructure:"max_results"`    // hard cap on candidates per run
	LookbackDays  int    `mapstructure:"lookback_days"`  // how far back to accept submissions
	PageDelay     string `mapstructure:"page_delay"`     // pause between API pages
	FulltextDelay string `mapstructure:"fulltext_delay"` // pause between full-text downloads
	UserAgent     string `mapstructure:"user_agent"`
}

// Oracle holds judgment-service configuration
type Oracle struct {
	Provider       string       `mapstructure:"provider"` // "gemini" or "claude"
	MaxRetries     int          `mapstructure:"max_retries"`
	InitialBackoff string       `mapstructure:"initial_backoff"`
	Gemini         GeminiConfig `mapstructure:"gemini"`
	Claude         ClaudeConfig `mapstructure:"claude"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	ScorerModel string  `mapstructure:"scorer_model"` // cheap model for interest batches
	ReviewModel string  `mapstructure:"review_model"` // strong model for deep analysis
	MaxTokens   int32   `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// ClaudeConfig holds Anthropic Claude configuration
type ClaudeConfig struct {
	APIKey      string `mapstructure:"api_key"`
	ScorerModel string `mapstructure:"scorer_model"`
	ReviewModel string `mapstructure:"review_model"`
	MaxTokens   int64  `mapstructure:"max_tokens"`
}

// Scoring holds scorer-stage configuration
type Scoring struct {
	Threshold       float64 `mapstructure:"threshold"`        // minimum total to enter the shortlist
	ShortlistCap    int     `mapstructure:"shortlist_cap"`    // most papers the shortlist may hold
	ShortlistFloor  int     `mapstructure:"shortlist_floor"`  // advisory lower bound; never padded
	BatchSize       int     `mapstructure:"batch_size"`       // papers per interest-scoring oracle call
	AbstractExcerpt int     `mapstructure:"abstract_excerpt"` // abstract characters included per paper
}

// Review holds reviewer-stage configuration
type Review struct {
	ItemDelay   string `mapstructure:"item_delay"`   // pause between per-paper oracle calls
	MaxTextLen  int    `mapstructure:"max_text_len"` // full-text truncation for the analysis prompt
	MinSelected int    `mapstructure:"min_selected"` // minimum viable final selection
	MaxSelected int    `mapstructure:"max_selected"` // selection clipped above this
}

// Output holds output configuration
type Output struct {
	Directory string `mapstructure:"directory"`
}

// Email holds email delivery configuration
type Email struct {
	SMTP        SMTPConfig `mapstructure:"smtp"`
	FromAddress string     `mapstructure:"from_address"`
	FromName    string     `mapstructure:"from_name"`
	ToAddress   string     `mapstructure:"to_address"`
}

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".paperboy")
		viper.SetConfigType("yaml")
	}

	// Set defaults
	setDefaults()

	// Bind environment variables
	bindEnvironmentVariables()

	// Enable automatic environment variable reading
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into struct
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	// Apply post-processing
	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".paperboy")
	viper.SetDefault("app.profile_path", "preferences.json")

	// arXiv defaults
	viper.SetDefault("arxiv.base_url", "https://export.arxiv.org/api/query")
	viper.SetDefault("arxiv.html_base_url", "https://arxiv.org/html")
	viper.SetDefault("arxiv.page_size", 100)
	viper.SetDefault("arxiv.max_results", 500)
	viper.SetDefault("arxiv.lookback_days", 2)
	viper.SetDefault("arxiv.page_delay", "3s")
	viper.SetDefault("arxiv.fulltext_delay", "3s")
	viper.SetDefault("arxiv.user_agent", "paperboy/1.0")

	// Oracle defaults
	viper.SetDefault("oracle.provider", "gemini")
	viper.SetDefault("oracle.max_retries", 3)
	viper.SetDefault("oracle.initial_backoff", "2s")
	viper.SetDefault("oracle.gemini.scorer_model", "gemini-2.0-flash")
	viper.SetDefault("oracle.gemini.review_model", "gemini-2.5-pro")
	viper.SetDefault("oracle.gemini.max_tokens", 8192)
	viper.SetDefault("oracle.gemini.temperature", 0.2)
	viper.SetDefault("oracle.claude.scorer_model", "claude-haiku-4-5-20251001")
	viper.SetDefault("oracle.claude.review_model", "claude-sonnet-4-6")
	viper.SetDefault("oracle.claude.max_tokens", 4096)

	// Scoring defaults
	viper.SetDefault("scoring.threshold", 7.0)
	viper.SetDefault("scoring.shortlist_cap", 30)
	viper.SetDefault("scoring.shortlist_floor", 25)
	viper.SetDefault("scoring.batch_size", 20)
	viper.SetDefault("scoring.abstract_excerpt", 500)

	// Review defaults
	viper.SetDefault("review.item_delay", "60s")
	viper.SetDefault("review.max_text_len", 40000)
	viper.SetDefault("review.min_selected", 5)
	viper.SetDefault("review.max_selected", 6)

	// Output defaults
	viper.SetDefault("output.directory", "digests")

	// Email defaults
	viper.SetDefault("email.smtp.port", 587)
	viper.SetDefault("email.from_name", "Paperboy")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	// Gemini API key - support multiple formats
	bindEnvKeys("oracle.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	// Claude API key
	bindEnvKeys("oracle.claude.api_key", []string{
		"ANTHROPIC_API_KEY",
		"CLAUDE_API_KEY",
	})

	// Oracle provider selection
	bindEnvKeys("oracle.provider", []string{
		"PAPERBOY_ORACLE",
		"ORACLE_PROVIDER",
	})

	// Preference profile location
	bindEnvKeys("app.profile_path", []string{
		"PAPERBOY_PROFILE",
	})

	// Email SMTP
	bindEnvKeys("email.smtp.host", []string{
		"SMTP_HOST",
		"EMAIL_SMTP_HOST",
	})

	bindEnvKeys("email.smtp.username", []string{
		"SMTP_USERNAME",
		"EMAIL_USERNAME",
	})

	bindEnvKeys("email.smtp.password", []string{
		"SMTP_PASSWORD",
		"EMAIL_PASSWORD",
	})

	bindEnvKeys("email.from_address", []string{
		"EMAIL_FROM",
	})

	bindEnvKeys("email.to_address", []string{
		"EMAIL_TO",
		"DIGEST_TO",
	})

	// General settings
	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"PAPERBOY_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	// Expand paths
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.App.ProfilePath != "" {
		config.App.ProfilePath = expandPath(config.App.ProfilePath)
	}
	if config.Output.Directory != "" {
		config.Output.Directory = expandPath(config.Output.Directory)
	}

	// Validate durations
	durations := map[string]string{
		"arxiv.page_delay":       config.ArXiv.PageDelay,
		"arxiv.fulltext_delay":   config.ArXiv.FulltextDelay,
		"oracle.initial_backoff": config.Oracle.InitialBackoff,
		"review.item_delay":      config.Review.ItemDelay,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures required configuration is present and funnel
// parameters stay inside their designed ranges
func validateConfig(config *Config) error {
	var errors []string

	switch config.Oracle.Provider {
	case "gemini":
		if config.Oracle.Gemini.APIKey == "" {
			errors = append(errors, "Gemini API key is required. Set GEMINI_API_KEY environment variable or oracle.gemini.api_key in config file")
		}
	case "claude":
		if config.Oracle.Claude.APIKey == "" {
			errors = append(errors, "Claude API key is required. Set ANTHROPIC_API_KEY environment variable or oracle.claude.api_key in config file")
		}
	default:
		errors = append(errors, fmt.Sprintf("Unknown oracle provider: %s. Supported: gemini, claude", config.Oracle.Provider))
	}

	if config.Scoring.Threshold < 0 {
		errors = append(errors, "scoring.threshold must not be negative")
	}
	if config.Scoring.BatchSize < 15 || config.Scoring.BatchSize > 20 {
		errors = append(errors, fmt.Sprintf("scoring.batch_size must be between 15 and 20, got %d", config.Scoring.BatchSize))
	}
	if config.Scoring.ShortlistCap < 1 {
		errors = append(errors, "scoring.shortlist_cap must be at least 1")
	}
	if config.Scoring.ShortlistFloor > config.Scoring.ShortlistCap {
		errors = append(errors, "scoring.shortlist_floor must not exceed scoring.shortlist_cap")
	}
	if config.Review.MinSelected < 1 {
		errors = append(errors, "review.min_selected must be at least 1")
	}
	if config.Review.MaxSelected < config.Review.MinSelected {
		errors = append(errors, "review.max_selected must not be below review.min_selected")
	}
	if config.Oracle.MaxRetries < 1 {
		errors = append(errors, "oracle.max_retries must be at least 1")
	}
	if config.ArXiv.PageSize < 1 {
		errors = append(errors, "arxiv.page_size must be at least 1")
	}
	if config.ArXiv.LookbackDays < 1 {
		errors = append(errors, "arxiv.lookback_days must be at least 1")
	}

	// Validate email SMTP configuration if any email settings are provided
	if config.Email.SMTP.Host != "" || config.Email.SMTP.Username != "" {
		if config.Email.SMTP.Host == "" {
			errors = append(errors, "SMTP host is required when email is configured")
		}
		if config.Email.ToAddress == "" {
			errors = append(errors, "email.to_address is required when email is configured")
		}
		if config.Email.FromAddress == "" {
			errors = append(errors, "email.from_address is required when email is configured")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Duration accessors for values validated at load time

// PageDelayDuration returns the parsed pause between arXiv API pages.
func (a ArXiv) PageDelayDuration() time.Duration {
	d, _ := time.ParseDuration(a.PageDelay)
	return d
}

// FulltextDelayDuration returns the parsed pause between full-text downloads.
func (a ArXiv) FulltextDelayDuration() time.Duration {
	d, _ := time.ParseDuration(a.FulltextDelay)
	return d
}

// InitialBackoffDuration returns the parsed first retry backoff.
func (o Oracle) InitialBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(o.InitialBackoff)
	return d
}

// ItemDelayDuration returns the parsed pause between reviewer oracle calls.
func (r Review) ItemDelayDuration() time.Duration {
	d, _ := time.ParseDuration(r.ItemDelay)
	return d
}

// Convenience getters for commonly used configuration values
func GetApp() App         { return Get().App }
func GetArXiv() ArXiv     { return Get().ArXiv }
func GetOracle() Oracle   { return Get().Oracle }
func GetScoring() Scoring { return Get().Scoring }
func GetReview() Review   { return Get().Review }
func GetOutput() Output   { return Get().Output }
func GetEmail() Email     { return Get().Email }

// Specific convenience getters for frequently accessed values
func GetOracleProvider() string  { return Get().Oracle.Provider }
func GetDataDir() string         { return Get().App.DataDir }
func GetProfilePath() string     { return Get().App.ProfilePath }
func GetOutputDirectory() string { return Get().Output.Directory }
func IsDebugMode() bool          { return Get().App.Debug }

// EmailConfigured returns true when enough SMTP settings exist to deliver
func EmailConfigured() bool {
	email := Get().Email
	return email.SMTP.Host != "" && email.ToAddress != "" && email.FromAddress != ""
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
