package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	Store   StoreConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Twilio  TwilioConfig
	LLM     LLMConfig
	STT     STTConfig
	TTS     TTSConfig
	Storage StorageConfig
	Session SessionConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable origin used in TwiML callbacks
	// and <Play> URLs, e.g. https://voice.example.com.
	PublicBaseURL string

	OTelLogs bool
}

// StoreConfig selects the call store driver: memory or postgres.
type StoreConfig struct {
	Driver string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. Without a host, locks stay in-process and
// events are not published to Redis.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	// TokenTTL bounds dashboard access tokens. There are no refresh tokens.
	TokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID        string
	AuthToken         string
	ValidateSignature bool
}

type LLMConfig struct {
	DefaultModel string
	Timeout      time.Duration

	OpenAIKey      string
	OpenAIBaseURL  string
	AnthropicKey   string
	GroqKey        string
	HuggingFaceKey string
	HuggingFaceURL string
}

type STTConfig struct {
	PrimaryLanguage string
	Timeout         time.Duration

	VoskModelDir string
	VoskScript   string
	PythonBin    string

	DeepgramKey   string
	DeepgramModel string
}

type TTSConfig struct {
	Timeout time.Duration

	DefaultProvider string
	DefaultVoice    string
	DefaultLanguage string
	Format          string

	ElevenLabsKey   string
	ElevenLabsModel string
	DeepgramKey     string

	CacheDir string
}

// StorageConfig enables the MinIO audio cache backend when Endpoint is set.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type SessionConfig struct {
	MaxReprompts  int
	GatherTimeout time.Duration
	CompaniesFile string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")
	c.App.OTelLogs = optBool("OTEL_LOGS_ENABLED")

	c.Store.Driver = strings.TrimSpace(os.Getenv("STORE_DRIVER"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := optInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := optInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.TokenTTL = mustDuration("JWT_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.ValidateSignature = optBool("TWILIO_VALIDATE_SIGNATURE")

	c.LLM.DefaultModel = strings.TrimSpace(os.Getenv("LLM_DEFAULT_MODEL"))
	c.LLM.Timeout = mustDuration("LLM_TIMEOUT")
	c.LLM.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.LLM.OpenAIBaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	c.LLM.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	c.LLM.GroqKey = os.Getenv("GROQ_API_KEY")
	c.LLM.HuggingFaceKey = os.Getenv("HUGGINGFACE_API_KEY")
	c.LLM.HuggingFaceURL = strings.TrimSpace(os.Getenv("HUGGINGFACE_API_URL"))

	c.STT.PrimaryLanguage = strings.TrimSpace(os.Getenv("STT_PRIMARY_LANGUAGE"))
	c.STT.Timeout = mustDuration("STT_TIMEOUT")
	c.STT.VoskModelDir = strings.TrimSpace(os.Getenv("VOSK_MODEL_DIR"))
	c.STT.VoskScript = strings.TrimSpace(os.Getenv("VOSK_SCRIPT"))
	c.STT.PythonBin = strings.TrimSpace(os.Getenv("PYTHON_BIN"))
	c.STT.DeepgramKey = os.Getenv("DEEPGRAM_API_KEY")
	c.STT.DeepgramModel = strings.TrimSpace(os.Getenv("DEEPGRAM_STT_MODEL"))

	c.TTS.Timeout = mustDuration("TTS_TIMEOUT")
	c.TTS.DefaultProvider = strings.TrimSpace(os.Getenv("TTS_DEFAULT_PROVIDER"))
	c.TTS.DefaultVoice = strings.TrimSpace(os.Getenv("TTS_DEFAULT_VOICE"))
	c.TTS.DefaultLanguage = strings.TrimSpace(os.Getenv("TTS_DEFAULT_LANGUAGE"))
	c.TTS.Format = strings.TrimSpace(os.Getenv("TTS_FORMAT"))
	c.TTS.ElevenLabsKey = os.Getenv("ELEVENLABS_API_KEY")
	c.TTS.ElevenLabsModel = strings.TrimSpace(os.Getenv("ELEVENLABS_MODEL"))
	c.TTS.DeepgramKey = os.Getenv("DEEPGRAM_API_KEY")
	c.TTS.CacheDir = strings.TrimSpace(os.Getenv("AUDIO_CACHE_DIR"))

	c.Storage.Endpoint = strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	c.Storage.AccessKey = strings.TrimSpace(os.Getenv("MINIO_ACCESS_KEY"))
	c.Storage.SecretKey = os.Getenv("MINIO_SECRET_KEY")
	c.Storage.Bucket = strings.TrimSpace(os.Getenv("MINIO_BUCKET"))
	c.Storage.UseSSL = optBool("MINIO_USE_SSL")

	{
		n, err := optInt("SESSION_MAX_REPROMPTS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Session.MaxReprompts = n
	}
	c.Session.GatherTimeout = mustDuration("SESSION_GATHER_TIMEOUT")
	c.Session.CompaniesFile = strings.TrimSpace(os.Getenv("COMPANIES_FILE"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills env-aware defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("PUBLIC_BASE_URL is required in production"))
		} else {
			c.App.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.App.Port)
		}
	}

	switch c.Store.Driver {
	case "":
		c.Store.Driver = "memory"
		if c.IsProduction() {
			c.Store.Driver = "postgres"
		}
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of memory, postgres, got %q", c.Store.Driver))
	}

	if c.Store.Driver == "postgres" {
		if c.DB.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required"))
		}
		if c.DB.Port == 0 {
			c.DB.Port = 5432
		}
		if c.DB.Port < 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required"))
		}
		if strings.TrimSpace(c.DB.SSLMode) == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.Redis.Host != "" {
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.Port < 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 15 * time.Minute
	}
	if c.Auth.TokenTTL > 24*time.Hour {
		errs = append(errs, errors.New("JWT_TTL must not exceed 24h"))
	}

	if c.Twilio.ValidateSignature && c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required when TWILIO_VALIDATE_SIGNATURE is set"))
	}

	if c.LLM.DefaultModel == "" {
		c.LLM.DefaultModel = "gpt-4o-mini"
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 8 * time.Second
	}

	if c.STT.PrimaryLanguage == "" {
		c.STT.PrimaryLanguage = "fr"
	}
	if c.STT.Timeout <= 0 {
		c.STT.Timeout = 10 * time.Second
	}
	if c.STT.PythonBin == "" {
		c.STT.PythonBin = "python3"
	}
	if c.STT.DeepgramModel == "" {
		c.STT.DeepgramModel = "nova-2"
	}

	if c.TTS.Timeout <= 0 {
		c.TTS.Timeout = 10 * time.Second
	}
	if c.TTS.DefaultLanguage == "" {
		c.TTS.DefaultLanguage = "fr-FR"
	}
	if c.TTS.Format == "" {
		c.TTS.Format = "mp3"
	}
	if c.TTS.CacheDir == "" {
		c.TTS.CacheDir = "audio_cache"
	}
	if c.TTS.ElevenLabsModel == "" {
		c.TTS.ElevenLabsModel = "eleven_multilingual_v2"
	}

	if c.Storage.Endpoint != "" {
		if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required with MINIO_ENDPOINT"))
		}
		if c.Storage.Bucket == "" {
			c.Storage.Bucket = "voice-audio"
		}
	}

	if c.Session.MaxReprompts <= 0 {
		c.Session.MaxReprompts = 3
	}
	if c.Session.GatherTimeout <= 0 {
		c.Session.GatherTimeout = 5 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func optBool(key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && b
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
