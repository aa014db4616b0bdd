package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	ProviderOpenAi = "openai"
	ProviderGemini = "gemini"
)

var (
	appName        string
	apiPort        string
	llmProvider    string
	openAiApiKey   string
	geminiApiKey   string
	modelId        string
	databasePath   string
	exportBucket   string
	telegramToken  string
	delayEnabled   bool
	delayStrategy  string
	delaySeconds   float64
	delayBeforeLlm bool
	delayAfterLlm  bool
)

func Init() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading .env: %w", errors.WithStack(err))
	}

	appName = envOr("APP_NAME", "sloth-chat")
	apiPort = envOr("API_PORT", "8080")

	llmProvider = envOr("LLM_PROVIDER", ProviderOpenAi)
	openAiApiKey = os.Getenv("OPENAI_API_KEY")
	geminiApiKey = os.Getenv("GEMINI_API_KEY")
	switch llmProvider {
	case ProviderOpenAi:
		if openAiApiKey == "" {
			return errors.New("OPENAI_API_KEY is missing")
		}
	case ProviderGemini:
		if geminiApiKey == "" {
			return errors.New("GEMINI_API_KEY is missing")
		}
	default:
		return errors.Errorf("unknown LLM_PROVIDER %q", llmProvider)
	}

	modelId = os.Getenv("MODEL_ID")
	databasePath = envOr("DATABASE_PATH", "tmp/dev.sqlite3")
	exportBucket = envOr("EXPORT_BUCKET_URL", "file:///tmp/sloth-chat-exports")
	telegramToken = os.Getenv("TELEGRAM_TOKEN")

	var err error
	delayEnabled, err = envBool("DELAY_ENABLED", false)
	if err != nil {
		return err
	}
	delayStrategy = envOr("DELAY_STRATEGY", "sleep")
	delaySeconds, err = envFloat("DELAY_SECONDS", 2.0)
	if err != nil {
		return err
	}
	if delaySeconds <= 0 {
		return errors.New("DELAY_SECONDS must be positive")
	}
	delayBeforeLlm, err = envBool("DELAY_BEFORE_LLM", true)
	if err != nil {
		return err
	}
	delayAfterLlm, err = envBool("DELAY_AFTER_LLM", false)
	if err != nil {
		return err
	}

	return nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, errors.WithStack(err))
	}
	return value, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, errors.WithStack(err))
	}
	return value, nil
}

func AppName() string {
	return appName
}

func ApiPort() string {
	return apiPort
}

func LlmProvider() string {
	return llmProvider
}

func OpenAiApiKey() string {
	return openAiApiKey
}

func GeminiApiKey() string {
	return geminiApiKey
}

func ModelId() string {
	return modelId
}

func DatabasePath() string {
	return databasePath
}

func ExportBucketUrl() string {
	return exportBucket
}

func TelegramToken() string {
	return telegramToken
}

func DelayEnabled() bool {
	return delayEnabled
}

func DelayStrategy() string {
	return delayStrategy
}

func DelaySeconds() float64 {
	return delaySeconds
}

func DelayBeforeLlm() bool {
	return delayBeforeLlm
}

func DelayAfterLlm() bool {
	return delayAfterLlm
}
