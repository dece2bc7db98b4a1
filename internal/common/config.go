package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/deepstock/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"`
	Sources     SourcesConfig `toml:"sources"`
	Scan        ScanConfig    `toml:"scan"`
	Scoring     ScoringConfig `toml:"scoring"`
	AI          AIConfig      `toml:"ai"`
	Claude      ClaudeConfig  `toml:"claude"`
	Gemini      GeminiConfig  `toml:"gemini"`
	OpenAI      OpenAIConfig  `toml:"openai"`
	Alerts      AlertsConfig  `toml:"alerts"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
}

// SourcesConfig holds per-provider settings
type SourcesConfig struct {
	FMP          FMPConfig          `toml:"fmp"`
	Finnhub      FinnhubConfig      `toml:"finnhub"`
	AlphaVantage AlphaVantageConfig `toml:"alphavantage"`
	EDGAR        EDGARConfig        `toml:"edgar"`
}

type FMPConfig struct {
	APIKey       string  `toml:"api_key"`
	BaseURL      string  `toml:"base_url" validate:"required,url"`
	LookbackDays int     `toml:"lookback_days" validate:"min=1,max=90"`
	RateLimit    float64 `toml:"rate_limit" validate:"gt=0"` // requests per second
}

type FinnhubConfig struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url" validate:"required,url"`
	LookbackDays   int     `toml:"lookback_days" validate:"min=1,max=90"`
	RateLimit      float64 `toml:"rate_limit" validate:"gt=0"`
	Congress       bool    `toml:"congress"`         // congressional trading feed
	InsiderFeed    bool    `toml:"insider_feed"`     // per-ticker insider transactions
	NewsForContext bool    `toml:"news_for_context"` // company news as AI prompt context
}

type AlphaVantageConfig struct {
	APIKey    string  `toml:"api_key"`
	BaseURL   string  `toml:"base_url" validate:"required,url"`
	RateLimit float64 `toml:"rate_limit" validate:"gt=0"`
}

// EDGARConfig configures the SEC EDGAR Form 4 feed. No key is needed but the SEC
// rejects requests without a descriptive User-Agent.
type EDGARConfig struct {
	Enabled    bool    `toml:"enabled"`
	BaseURL    string  `toml:"base_url" validate:"required,url"`
	UserAgent  string  `toml:"user_agent" validate:"required"`
	MaxFilings int     `toml:"max_filings" validate:"min=1,max=100"`
	MaxDetails int     `toml:"max_details" validate:"min=0,max=100"` // filing pages fetched for transaction rows
	RateLimit  float64 `toml:"rate_limit" validate:"gt=0"`
}

// ScanConfig holds the filter thresholds and cycle timing
type ScanConfig struct {
	IntervalMinutes   int      `toml:"interval_minutes" validate:"min=1"`
	MinTradeValue     float64  `toml:"min_trade_value" validate:"gte=0"`
	MinScore          float64  `toml:"min_score" validate:"gte=0,lte=10"`
	Watchlist         []string `toml:"watchlist"`
	SourceTimeout     string   `toml:"source_timeout" validate:"duration"`
	RecencyWindowDays int      `toml:"recency_window_days" validate:"min=1"`
	DigestMinTrades   int      `toml:"digest_min_trades" validate:"min=0"`
	MaxAlerts         int      `toml:"max_alerts" validate:"min=0"` // breaking alerts per cycle, 0 = unlimited
}

// ScoringConfig tunes the heuristic score
type ScoringConfig struct {
	RoleWeights     map[string]float64 `toml:"role_weights"`
	NotableInsiders []string           `toml:"notable_insiders"`
}

// AIConfig controls the optional annotation step
type AIConfig struct {
	Enabled          bool   `toml:"enabled"`
	Provider         string `toml:"provider" validate:"omitempty,oneof=claude gemini openai"`
	Model            string `toml:"model"`
	TopN             int    `toml:"top_n" validate:"min=0"`
	Timeout          string `toml:"timeout" validate:"duration"`
	Attempts         int    `toml:"attempts" validate:"min=1,max=3"`
	MaxBackoff       string `toml:"max_backoff" validate:"duration"`
	PatternDetection bool   `toml:"pattern_detection"`
	PatternMinTrades int    `toml:"pattern_min_trades" validate:"min=2"`
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens" validate:"min=1"`
	Temperature float32 `toml:"temperature"`
}

type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
}

type OpenAIConfig struct {
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens" validate:"min=1"`
	Temperature float32 `toml:"temperature"`
}

// AlertsConfig holds the delivery channels. Each is enabled by its credentials.
type AlertsConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
	Email    EmailConfig    `toml:"email"`
	Console  bool           `toml:"console"`
	Digest   bool           `toml:"digest"`
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
	BaseURL  string `toml:"base_url" validate:"required,url"`
}

type EmailConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port" validate:"min=1,max=65535"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	FromName string `toml:"from_name"`
	To       string `toml:"to"`
	UseTLS   bool   `toml:"use_tls"` // implicit TLS (port 465); otherwise STARTTLS is attempted
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig enables durable alerted-key storage across restarts
type BadgerConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Sources: SourcesConfig{
			FMP: FMPConfig{
				BaseURL:      "https://financialmodelingprep.com/api/v4",
				LookbackDays: 7,
				RateLimit:    2,
			},
			Finnhub: FinnhubConfig{
				BaseURL:        "https://finnhub.io/api/v1",
				LookbackDays:   7,
				RateLimit:      1,
				Congress:       true,
				InsiderFeed:    true,
				NewsForContext: true,
			},
			AlphaVantage: AlphaVantageConfig{
				BaseURL:   "https://www.alphavantage.co",
				RateLimit: 5.0 / 60.0, // free tier: 5 requests per minute
			},
			EDGAR: EDGARConfig{
				Enabled:    true,
				BaseURL:    "https://www.sec.gov",
				UserAgent:  "deepstock-bot/0.1.0 (admin@example.com)",
				MaxFilings: 40,
				MaxDetails: 10,
				RateLimit:  5, // SEC fair access allows 10/s
			},
		},
		Scan: ScanConfig{
			IntervalMinutes:   30,
			MinTradeValue:     100_000,
			MinScore:          2.0,
			Watchlist:         []string{"AAPL", "MSFT", "NVDA", "TSLA", "AMD", "GOOGL"},
			SourceTimeout:     "2m",
			RecencyWindowDays: 14,
			DigestMinTrades:   2,
			MaxAlerts:         5,
		},
		Scoring: ScoringConfig{
			RoleWeights:     DefaultRoleWeights(),
			NotableInsiders: DefaultNotableInsiders(),
		},
		AI: AIConfig{
			Enabled:          true,
			TopN:             5,
			Timeout:          "60s",
			Attempts:         2,
			MaxBackoff:       "30s",
			PatternDetection: true,
			PatternMinTrades: 3,
		},
		Claude: ClaudeConfig{
			Model:       "claude-3-5-sonnet-20241022",
			MaxTokens:   1000,
			Temperature: 0.3,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.0-flash",
			Temperature: 0.3,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4",
			MaxTokens:   1000,
			Temperature: 0.3,
		},
		Alerts: AlertsConfig{
			Telegram: TelegramConfig{
				BaseURL: "https://api.telegram.org",
			},
			Email: EmailConfig{
				Host:     "smtp.gmail.com",
				Port:     587,
				FromName: "deepstock",
			},
			Digest: true,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/alerted",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// DefaultRoleWeights returns the role weighting used by the scorer
func DefaultRoleWeights() map[string]float64 {
	return map[string]float64{
		"executive":         3.0,
		"congress":          2.5,
		"director":          2.0,
		"ten_percent_owner": 1.5,
		"officer":           1.5,
		"other":             0.5,
	}
}

// DefaultNotableInsiders lists congress members, CEOs and investors whose trades get a bonus
func DefaultNotableInsiders() []string {
	return []string{
		// Congress
		"Nancy Pelosi", "Dan Crenshaw", "Tommy Tuberville", "Mark Green",
		"Josh Gottheimer", "Michael McCaul", "Pat Fallon", "Virginia Foxx",
		"Ro Khanna", "Marjorie Taylor Greene",
		// CEOs
		"Elon Musk", "Tim Cook", "Satya Nadella", "Lisa Su", "Jensen Huang",
		"Jamie Dimon", "Warren Buffett", "Mark Zuckerberg", "Sundar Pichai",
		"Andy Jassy", "Pat Gelsinger", "Hock Tan",
		// Investors
		"Cathie Wood", "Michael Burry", "Carl Icahn", "Bill Ackman",
		"George Soros", "Ken Griffin", "Ray Dalio", "Stanley Druckenmiller",
		"David Tepper", "Howard Marks",
	}
}

// LoadOptions controls where configuration is read from
type LoadOptions struct {
	Files   []string // TOML files, later files override earlier ones
	EnvFile string   // .env path; empty means ".env" in the working directory
}

// Load builds the configuration: defaults -> TOML files -> .env -> environment.
// A missing .env file is not an error.
func Load(opts LoadOptions) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range opts.Files {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(opts.Files), err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv.Load never overrides variables already present in the process environment
	if err := godotenv.Load(envFile); err != nil {
		if opts.EnvFile != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.ValidateStructure(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DEEPSTOCK_ENV"); env != "" {
		config.Environment = env
	}

	// Data sources
	if key := os.Getenv("FMP_API_KEY"); key != "" {
		config.Sources.FMP.APIKey = key
	}
	if key := os.Getenv("FINNHUB_API_KEY"); key != "" {
		config.Sources.Finnhub.APIKey = key
	}
	if key := os.Getenv("ALPHAVANTAGE_API_KEY"); key != "" {
		config.Sources.AlphaVantage.APIKey = key
	}
	if enabled, ok := envBool("EDGAR_ENABLED"); ok {
		config.Sources.EDGAR.Enabled = enabled
	}
	if ua := os.Getenv("EDGAR_USER_AGENT"); ua != "" {
		config.Sources.EDGAR.UserAgent = ua
	}

	// Scan settings
	if v, ok := envInt("SCAN_INTERVAL_MINUTES"); ok {
		config.Scan.IntervalMinutes = v
	}
	if v, ok := envFloat("MIN_TRADE_VALUE"); ok {
		config.Scan.MinTradeValue = v
	}
	if v, ok := envFloat("MIN_SCORE"); ok {
		config.Scan.MinScore = v
	}
	if watchlist, ok := os.LookupEnv("WATCHLIST"); ok {
		config.Scan.Watchlist = ParseWatchlist(watchlist)
	}
	if timeout := os.Getenv("SOURCE_TIMEOUT"); timeout != "" {
		config.Scan.SourceTimeout = timeout
	}

	// AI providers
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.OpenAI.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if enabled, ok := envBool("AI_ENABLED"); ok {
		config.AI.Enabled = enabled
	}
	if provider := os.Getenv("AI_PROVIDER"); provider != "" {
		config.AI.Provider = strings.ToLower(provider)
	}
	if model := os.Getenv("AI_MODEL"); model != "" {
		config.AI.Model = model
	}
	if v, ok := envInt("AI_TOP_N"); ok {
		config.AI.TopN = v
	}

	// Alert channels
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		config.Alerts.Telegram.BotToken = token
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		config.Alerts.Telegram.ChatID = chatID
	}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		config.Alerts.Email.Host = host
	}
	if v, ok := envInt("SMTP_PORT"); ok {
		config.Alerts.Email.Port = v
	}
	if user := os.Getenv("SMTP_USER"); user != "" {
		config.Alerts.Email.Username = user
	}
	if password := os.Getenv("SMTP_PASSWORD"); password != "" {
		config.Alerts.Email.Password = password
	}
	if from := os.Getenv("SMTP_FROM"); from != "" {
		config.Alerts.Email.From = from
	}
	if to := os.Getenv("ALERT_EMAIL_TO"); to != "" {
		config.Alerts.Email.To = to
	}
	if console, ok := envBool("DEEPSTOCK_ALERT_CONSOLE"); ok {
		config.Alerts.Console = console
	}

	// Storage
	if path := os.Getenv("DEEPSTOCK_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
		config.Storage.Badger.Enabled = true
	}

	// Logging
	if level := os.Getenv("DEEPSTOCK_LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}
	if output := os.Getenv("DEEPSTOCK_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
// Negative values mean the flag was not set.
func ApplyFlagOverrides(config *Config, minValue float64, intervalMinutes int, logLevel string) {
	if minValue >= 0 {
		config.Scan.MinTradeValue = minValue
	}
	if intervalMinutes > 0 {
		config.Scan.IntervalMinutes = intervalMinutes
	}
	if logLevel != "" {
		config.Logging.Level = strings.ToLower(logLevel)
	}
}

// ParseWatchlist splits a comma-separated ticker list, upper-cased, blanks and duplicates removed
func ParseWatchlist(s string) []string {
	seen := make(map[string]bool)
	tickers := []string{}
	for _, t := range strings.Split(s, ",") {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tickers = append(tickers, t)
	}
	return tickers
}

// ValidateStructure checks field-level constraints declared in struct tags
func (c *Config) ValidateStructure() error {
	validate := validator.New()
	if err := validate.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			issues := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				issues = append(issues, fmt.Sprintf("%s failed '%s' (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return &interfaces.ConfigurationError{Issues: issues}
		}
		return fmt.Errorf("failed to validate config: %w", err)
	}
	return nil
}

func validateDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// Severity of a configuration issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single configuration problem
type Issue struct {
	Severity Severity
	Message  string
}

// HasDataSource reports whether at least one keyed data source is configured
func (c *Config) HasDataSource() bool {
	return c.Sources.FMP.APIKey != "" || c.Sources.Finnhub.APIKey != "" || c.Sources.AlphaVantage.APIKey != ""
}

// HasAIProvider reports whether at least one AI provider key is configured
func (c *Config) HasAIProvider() bool {
	return c.OpenAI.APIKey != "" || c.Claude.APIKey != "" || c.Gemini.APIKey != ""
}

// AIActive reports whether annotation will run
func (c *Config) AIActive() bool {
	return c.AI.Enabled && c.HasAIProvider()
}

// HasTelegram reports whether Telegram alerts are configured
func (c *Config) HasTelegram() bool {
	return c.Alerts.Telegram.BotToken != "" && c.Alerts.Telegram.ChatID != ""
}

// HasEmail reports whether email alerts are configured
func (c *Config) HasEmail() bool {
	return c.Alerts.Email.Username != "" && c.Alerts.Email.Password != "" && c.Alerts.Email.To != ""
}

// ResolveAIProvider picks the provider: explicit setting first, then by available key
// in the order openai, claude, gemini. Returns "" when none is usable.
func (c *Config) ResolveAIProvider() string {
	switch c.AI.Provider {
	case "openai":
		if c.OpenAI.APIKey != "" {
			return "openai"
		}
	case "claude":
		if c.Claude.APIKey != "" {
			return "claude"
		}
	case "gemini":
		if c.Gemini.APIKey != "" {
			return "gemini"
		}
	}

	switch {
	case c.OpenAI.APIKey != "":
		return "openai"
	case c.Claude.APIKey != "":
		return "claude"
	case c.Gemini.APIKey != "":
		return "gemini"
	default:
		return ""
	}
}

// Validate returns the semantic configuration issues. Error-severity issues are fatal at startup.
func (c *Config) Validate() []Issue {
	issues := []Issue{}

	if !c.HasDataSource() {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Message:  "No data source configured. Set at least one of: FMP_API_KEY, FINNHUB_API_KEY, ALPHAVANTAGE_API_KEY",
		})
	}

	if c.AI.Enabled && !c.HasAIProvider() {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Message:  "No AI provider configured. Set at least one of: OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY (or AI_ENABLED=false)",
		})
	}

	if c.AI.Provider != "" && c.AI.Enabled && c.ResolveAIProvider() != c.AI.Provider {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("AI_PROVIDER=%s has no API key, falling back to %q", c.AI.Provider, c.ResolveAIProvider()),
		})
	}

	if c.Alerts.Telegram.BotToken != "" && c.Alerts.Telegram.ChatID == "" {
		issues = append(issues, Issue{Severity: SeverityWarning, Message: "TELEGRAM_BOT_TOKEN is set but TELEGRAM_CHAT_ID is missing"})
	}

	if !c.HasTelegram() && !c.HasEmail() && !c.Alerts.Console {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Message:  "No alert channel configured. Set TELEGRAM_BOT_TOKEN or SMTP credentials to receive alerts.",
		})
	}

	return issues
}

// ConfigurationError returns the error-severity issues as a ConfigurationError, or nil
func (c *Config) ConfigurationError() error {
	var errs []string
	for _, issue := range c.Validate() {
		if issue.Severity == SeverityError {
			errs = append(errs, issue.Message)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &interfaces.ConfigurationError{Issues: errs}
}

// SourceTimeout returns the per-source fetch timeout
func (c *Config) SourceTimeout() time.Duration {
	return parseDurationOr(c.Scan.SourceTimeout, 2*time.Minute)
}

// AITimeout returns the per-attempt AI timeout
func (c *Config) AITimeout() time.Duration {
	return parseDurationOr(c.AI.Timeout, 60*time.Second)
}

// AIMaxBackoff caps the wait between AI attempts
func (c *Config) AIMaxBackoff() time.Duration {
	return parseDurationOr(c.AI.MaxBackoff, 30*time.Second)
}

// ScanInterval returns the watch interval
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scan.IntervalMinutes) * time.Minute
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return fallback
}

func envInt(key string) (int, bool) {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return v, true
		}
	}
	return 0, false
}

func envFloat(key string) (float64, bool) {
	if value := os.Getenv(key); value != "" {
		clean := strings.NewReplacer(",", "", "_", "", "$", "").Replace(strings.TrimSpace(value))
		if v, err := strconv.ParseFloat(clean, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func envBool(key string) (bool, bool) {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return v, true
		}
	}
	return false, false
}
