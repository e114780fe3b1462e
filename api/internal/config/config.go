package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	VisionAPIKey         string
	VisionEndpoint       string
	VisionTimeout        time.Duration
	VisionMaxResults     int64
	DisableOnFailedCheck bool

	GeminiAPIKey string
	GeminiModel  string

	TesseractEnabled   bool
	TesseractLanguages []string
	TesseractWhitelist bool

	MorphDilate int
	DebugDir    string
	SaveDebug   bool

	MaxAttempts int

	CaptureMode     string
	CaptureDir      string
	CaptureURL      string
	CaptureSelector string

	DatabaseURL string

	TelegramToken        string
	TelegramChatID       int64
	TelegramReplyTimeout time.Duration
}

// env-имена, которые исторически не совпадают с ключом конфига
var envAliases = map[string][]string{
	"port":                           {"PORT"},
	"vision.api_key":                 {"GOOGLE_VISION_API_KEY", "GOOGLE_API_KEY"},
	"vision.disable_on_failed_check": {"VISION_DISABLE_ON_FAILED_CHECK"},
	"gemini.api_key":                 {"GEMINI_API_KEY"},
	"gemini.model":                   {"GEMINI_MODEL"},
	"database_url":                   {"DATABASE_URL"},
	"telegram.token":                 {"TELEGRAM_BOT_TOKEN"},
	"telegram.chat_id":               {"TELEGRAM_CHAT_ID"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("vision.endpoint", "")
	v.SetDefault("vision.timeout", 30*time.Second)
	v.SetDefault("vision.max_results", 10)
	v.SetDefault("vision.disable_on_failed_check", true)

	v.SetDefault("gemini.model", "gemini-2.5-flash")

	v.SetDefault("tesseract.enabled", true)
	v.SetDefault("tesseract.languages", []string{"eng"})
	v.SetDefault("tesseract.whitelist", true)

	v.SetDefault("preprocess.dilate", 0)
	v.SetDefault("debug.dir", "debug_images")
	v.SetDefault("debug.save", false)

	v.SetDefault("retry.max_attempts", 3)

	v.SetDefault("capture.mode", "dir")
	v.SetDefault("capture.dir", "captchas")
	v.SetDefault("capture.selector", "img[src*='captcha']")

	v.SetDefault("telegram.reply_timeout", 2*time.Minute)
}

// Load читает конфиг: дефолты < файл (если задан) < env.
// Ключ vision.api_key можно задать и как VISION_API_KEY.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key, strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{
		Port:      v.GetString("port"),
		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),

		VisionAPIKey:         strings.TrimSpace(v.GetString("vision.api_key")),
		VisionEndpoint:       v.GetString("vision.endpoint"),
		VisionTimeout:        v.GetDuration("vision.timeout"),
		VisionMaxResults:     v.GetInt64("vision.max_results"),
		DisableOnFailedCheck: v.GetBool("vision.disable_on_failed_check"),

		GeminiAPIKey: strings.TrimSpace(v.GetString("gemini.api_key")),
		GeminiModel:  v.GetString("gemini.model"),

		TesseractEnabled:   v.GetBool("tesseract.enabled"),
		TesseractLanguages: v.GetStringSlice("tesseract.languages"),
		TesseractWhitelist: v.GetBool("tesseract.whitelist"),

		MorphDilate: v.GetInt("preprocess.dilate"),
		DebugDir:    v.GetString("debug.dir"),
		SaveDebug:   v.GetBool("debug.save"),

		MaxAttempts: v.GetInt("retry.max_attempts"),

		CaptureMode:     strings.ToLower(v.GetString("capture.mode")),
		CaptureDir:      v.GetString("capture.dir"),
		CaptureURL:      v.GetString("capture.url"),
		CaptureSelector: v.GetString("capture.selector"),

		DatabaseURL: v.GetString("database_url"),

		TelegramToken:        v.GetString("telegram.token"),
		TelegramChatID:       v.GetInt64("telegram.chat_id"),
		TelegramReplyTimeout: v.GetDuration("telegram.reply_timeout"),
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry.max_attempts must be >= 1, got %d", cfg.MaxAttempts)
	}
	if cfg.MorphDilate < 0 {
		return nil, fmt.Errorf("preprocess.dilate must be >= 0, got %d", cfg.MorphDilate)
	}
	switch cfg.CaptureMode {
	case "dir", "page", "browser":
	default:
		return nil, fmt.Errorf("unknown capture.mode %q (dir|page|browser)", cfg.CaptureMode)
	}
	return cfg, nil
}

// CloudEnabled: есть ли хоть один облачный бэкенд.
func (c *Config) CloudEnabled() bool {
	return c.VisionAPIKey != "" || c.GeminiAPIKey != ""
}
