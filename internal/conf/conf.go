package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
	"github.com/devricklin/keyword-forwarder/internal/biz/usecase"
	"github.com/devricklin/keyword-forwarder/internal/data"
	"github.com/devricklin/keyword-forwarder/internal/service"
)

// Config represents application configuration
type Config struct {
	// Feishu configuration
	Feishu FeishuConfig

	// Forwarding configuration
	Forward ForwardConfig

	// Poll loop configuration
	Poll PollConfig

	// Media group reconstruction configuration
	Group GroupConfig

	// Fingerprint store configuration
	Store StoreConfig

	// Logging configuration
	Log LogConfig

	// Status API configuration
	API APIConfig
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
}

// ForwardConfig contains what to scan, what to match and where to forward
type ForwardConfig struct {
	SourceChatIDs []string // Scanned in this order
	TargetChatID  string
	Keywords      []string
	MatchMode     string // substring or word
	DryRun        bool
}

// PollConfig contains poll loop configuration
type PollConfig struct {
	IntervalMinutes   int
	LookbackMinutes   int
	ResumeFromCursor  bool
	MaxCatchUpMinutes int
}

// GroupConfig contains media group reconstruction configuration
type GroupConfig struct {
	SlackSeconds int
	ScanLimit    int
}

// StoreConfig contains fingerprint store configuration
type StoreConfig struct {
	Backend     string // sqlite, pebble or redis
	Path        string
	RedisURL    string
	RedisPrefix string
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string
	Format string // console or json
}

// APIConfig contains status API configuration
type APIConfig struct {
	Addr string // Empty disables the API
}

// Config keys, read from the environment of the same upper-case name
const (
	KeyAppID             = "feishu_app_id"
	KeyAppSecret         = "feishu_app_secret"
	KeySourceChatIDs     = "source_chat_ids"
	KeyTargetChatID      = "target_chat_id"
	KeyKeywords          = "keywords"
	KeyKeywordsFile      = "keywords_file"
	KeyMatchMode         = "match_mode"
	KeyDryRun            = "dry_run"
	KeySearchInterval    = "search_interval"
	KeyLookbackMinutes   = "lookback_minutes"
	KeyResumeFromCursor  = "resume_from_cursor"
	KeyMaxCatchUpMinutes = "max_catch_up_minutes"
	KeyGroupSlackSeconds = "group_slack_seconds"
	KeyGroupScanLimit    = "group_scan_limit"
	KeyStoreBackend      = "store_backend"
	KeyStorePath         = "store_path"
	KeyRedisURL          = "redis_url"
	KeyRedisPrefix       = "redis_prefix"
	KeyLogLevel          = "log_level"
	KeyLogFormat         = "log_format"
	KeyStatusAddr        = "status_addr"
)

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDryRun, false)
	v.SetDefault(KeySearchInterval, 10)
	v.SetDefault(KeyLookbackMinutes, 10)
	v.SetDefault(KeyResumeFromCursor, false)
	v.SetDefault(KeyMaxCatchUpMinutes, 120)
	v.SetDefault(KeyGroupSlackSeconds, 60)
	v.SetDefault(KeyGroupScanLimit, 200)
	v.SetDefault(KeyStoreBackend, data.BackendSQLite)
	v.SetDefault(KeyStorePath, defaultStorePath())
	v.SetDefault(KeyRedisURL, "redis://localhost:6379/0")
	v.SetDefault(KeyRedisPrefix, "kwfwd")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	return Load(viper.New())
}

// Load reads configuration from v. Environment variables are bound
// automatically; flags bound to v by the caller take precedence.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Feishu: FeishuConfig{
			AppID:     strings.TrimSpace(v.GetString(KeyAppID)),
			AppSecret: strings.TrimSpace(v.GetString(KeyAppSecret)),
		},
		Forward: ForwardConfig{
			SourceChatIDs: splitList(v.GetString(KeySourceChatIDs)),
			TargetChatID:  strings.TrimSpace(v.GetString(KeyTargetChatID)),
			Keywords:      splitList(v.GetString(KeyKeywords)),
			MatchMode:     strings.TrimSpace(v.GetString(KeyMatchMode)),
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(strings.TrimSpace(v.GetString(KeyStoreBackend))),
			Path:        expandHome(v.GetString(KeyStorePath)),
			RedisURL:    v.GetString(KeyRedisURL),
			RedisPrefix: v.GetString(KeyRedisPrefix),
		},
		Log: LogConfig{
			Level:  strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
			Format: strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
		},
		API: APIConfig{
			Addr: strings.TrimSpace(v.GetString(KeyStatusAddr)),
		},
	}

	var err error
	if cfg.Forward.DryRun, err = boolValue(v, KeyDryRun); err != nil {
		return nil, err
	}
	if cfg.Poll.ResumeFromCursor, err = boolValue(v, KeyResumeFromCursor); err != nil {
		return nil, err
	}
	if cfg.Poll.IntervalMinutes, err = intValue(v, KeySearchInterval); err != nil {
		return nil, err
	}
	if cfg.Poll.LookbackMinutes, err = intValue(v, KeyLookbackMinutes); err != nil {
		return nil, err
	}
	if cfg.Poll.MaxCatchUpMinutes, err = intValue(v, KeyMaxCatchUpMinutes); err != nil {
		return nil, err
	}
	if cfg.Group.SlackSeconds, err = intValue(v, KeyGroupSlackSeconds); err != nil {
		return nil, err
	}
	if cfg.Group.ScanLimit, err = intValue(v, KeyGroupScanLimit); err != nil {
		return nil, err
	}

	// Keywords from a YAML file are appended to the inline list
	if path := strings.TrimSpace(v.GetString(KeyKeywordsFile)); path != "" {
		kf, err := LoadKeywordsFile(expandHome(path))
		if err != nil {
			return nil, &ConfigError{Field: "KEYWORDS_FILE", Message: err.Error()}
		}
		cfg.Forward.Keywords = append(cfg.Forward.Keywords, kf.Keywords...)
		if kf.MatchMode != "" && cfg.Forward.MatchMode == "" {
			cfg.Forward.MatchMode = kf.MatchMode
		}
	}

	if cfg.Forward.MatchMode == "" {
		cfg.Forward.MatchMode = string(domain.MatchSubstring)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	if len(c.Forward.SourceChatIDs) == 0 {
		return &ConfigError{Field: "SOURCE_CHAT_IDS", Message: "at least one source chat is required"}
	}
	if c.Forward.TargetChatID == "" {
		return &ConfigError{Field: "TARGET_CHAT_ID", Message: "required"}
	}
	if len(domain.NewKeywordMatcher(c.Forward.Keywords, domain.MatchSubstring).Keywords()) == 0 {
		return &ConfigError{Field: "KEYWORDS", Message: "at least one non-blank keyword is required"}
	}
	if _, err := domain.ParseMatchMode(c.Forward.MatchMode); err != nil {
		return &ConfigError{Field: "MATCH_MODE", Message: err.Error()}
	}
	if c.Poll.IntervalMinutes <= 0 {
		return &ConfigError{Field: "SEARCH_INTERVAL", Message: "must be positive"}
	}
	if c.Poll.LookbackMinutes <= 0 {
		return &ConfigError{Field: "LOOKBACK_MINUTES", Message: "must be positive"}
	}
	if c.Poll.ResumeFromCursor && c.Poll.MaxCatchUpMinutes < c.Poll.LookbackMinutes {
		return &ConfigError{Field: "MAX_CATCH_UP_MINUTES", Message: "must not be smaller than LOOKBACK_MINUTES"}
	}
	if c.Group.SlackSeconds < 0 {
		return &ConfigError{Field: "GROUP_SLACK_SECONDS", Message: "must not be negative"}
	}
	if c.Group.ScanLimit <= 0 {
		return &ConfigError{Field: "GROUP_SCAN_LIMIT", Message: "must be positive"}
	}
	if err := c.ValidateStore(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return &ConfigError{Field: "LOG_FORMAT", Message: "must be console or json"}
	}
	return nil
}

// ValidateStore validates only the store settings, for commands that do
// not talk to Feishu
func (c *Config) ValidateStore() error {
	switch c.Store.Backend {
	case data.BackendSQLite, data.BackendPebble:
		if c.Store.Path == "" {
			return &ConfigError{Field: "STORE_PATH", Message: "required for " + c.Store.Backend}
		}
	case data.BackendRedis:
		if c.Store.RedisURL == "" {
			return &ConfigError{Field: "REDIS_URL", Message: "required for redis"}
		}
	default:
		return &ConfigError{Field: "STORE_BACKEND", Message: "unknown backend " + strconv.Quote(c.Store.Backend)}
	}
	return nil
}

// LookbackGap reports whether consecutive windows leave uncovered time
// when no cursor is used
func (c *Config) LookbackGap() bool {
	return !c.Poll.ResumeFromCursor && c.Poll.LookbackMinutes < c.Poll.IntervalMinutes
}

// Matcher builds the keyword matcher
func (c *Config) Matcher() *domain.KeywordMatcher {
	mode, err := domain.ParseMatchMode(c.Forward.MatchMode)
	if err != nil {
		mode = domain.MatchSubstring
	}
	return domain.NewKeywordMatcher(c.Forward.Keywords, mode)
}

// ToForwardConfig converts to usecase forward configuration
func (c *Config) ToForwardConfig() usecase.ForwardConfig {
	return usecase.ForwardConfig{
		TargetChatID: c.Forward.TargetChatID,
		DryRun:       c.Forward.DryRun,
	}
}

// ToGroupConfig converts to usecase group configuration
func (c *Config) ToGroupConfig() usecase.GroupConfig {
	return usecase.GroupConfig{
		Slack:     time.Duration(c.Group.SlackSeconds) * time.Second,
		ScanLimit: c.Group.ScanLimit,
	}
}

// ToStoreOptions converts to data store options
func (c *Config) ToStoreOptions() data.StoreOptions {
	return data.StoreOptions{
		Backend:  c.Store.Backend,
		Path:     c.Store.Path,
		RedisURL: c.Store.RedisURL,
		Prefix:   c.Store.RedisPrefix,
	}
}

// ToSchedulerConfig converts to poll scheduler configuration
func (c *Config) ToSchedulerConfig() service.SchedulerConfig {
	return service.SchedulerConfig{
		Sources:          c.Forward.SourceChatIDs,
		Interval:         c.Poll.Interval(),
		Lookback:         c.Poll.Lookback(),
		ResumeFromCursor: c.Poll.ResumeFromCursor,
		MaxCatchUp:       c.Poll.MaxCatchUp(),
	}
}

// Interval returns the poll interval
func (c *PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Lookback returns the lookback width
func (c *PollConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackMinutes) * time.Minute
}

// MaxCatchUp returns the cursor catch-up cap
func (c *PollConfig) MaxCatchUp() time.Duration {
	return time.Duration(c.MaxCatchUpMinutes) * time.Minute
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func defaultStorePath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".keyword-forwarder", "forwarded.db")
}

func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// splitList splits a comma-separated value, dropping blank entries
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intValue(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigError{Field: strings.ToUpper(key), Message: "not an integer: " + strconv.Quote(raw)}
	}
	return n, nil
}

func boolValue(v *viper.Viper, key string) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ConfigError{Field: strings.ToUpper(key), Message: "not a boolean: " + strconv.Quote(raw)}
	}
	return b, nil
}
