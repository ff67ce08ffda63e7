package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Telephony  TelephonyConfig
	Services   ServicesConfig
	Recordings RecordingsConfig
	Server     ServerConfig
}

// TelephonyConfig holds Plivo credentials and call routing settings.
// The block is optional: when incomplete, outbound call initiation is
// disabled but the rest of the server keeps working.
type TelephonyConfig struct {
	AuthID     string
	AuthToken  string
	FromNumber string
	ToNumber   string
	// AnswerURL is the webhook Plivo fetches for call-control XML when a
	// call is answered. Defaults to {PublicBaseURL}/webhook.
	AnswerURL     string
	PublicBaseURL string
}

// ServicesConfig holds external speech/LLM service API keys
type ServicesConfig struct {
	OpenAIAPIKey      string
	DeepgramAPIKey    string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
}

// RecordingsConfig holds call audio archival settings
type RecordingsConfig struct {
	Dir string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Telephony configuration (optional as a block, validated at use)
	cfg.Telephony.AuthID = os.Getenv("PLIVO_AUTH_ID")
	cfg.Telephony.AuthToken = os.Getenv("PLIVO_AUTH_TOKEN")
	cfg.Telephony.FromNumber = os.Getenv("PLIVO_FROM_NUMBER")
	cfg.Telephony.ToNumber = os.Getenv("PLIVO_TO_NUMBER")
	cfg.Telephony.PublicBaseURL = strings.TrimRight(os.Getenv("NGROK_URL"), "/")
	cfg.Telephony.AnswerURL = os.Getenv("PLIVO_ANSWER_XML")
	if cfg.Telephony.AnswerURL == "" && cfg.Telephony.PublicBaseURL != "" {
		cfg.Telephony.AnswerURL = cfg.Telephony.PublicBaseURL + "/webhook"
	}

	// Speech and LLM services
	var err error
	if cfg.Services.OpenAIAPIKey, err = requireEnv("OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.DeepgramAPIKey, err = requireEnv("DEEPGRAM_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.ElevenLabsAPIKey, err = requireEnv("ELEVENLABS_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.ElevenLabsVoiceID, err = requireEnv("ELEVENLABS_VOICE_ID"); err != nil {
		return nil, err
	}

	// Recordings directory
	cfg.Recordings.Dir = getEnvWithDefault("RECORDINGS_DIR", "recordings")

	// Server configuration
	serverPort := getEnvWithDefault("SERVER_PORT", "8765")
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	return cfg, nil
}

// CallInitiationEnabled reports whether every credential needed to place
// an outbound call is present.
func (t *TelephonyConfig) CallInitiationEnabled() bool {
	return t.AuthID != "" && t.AuthToken != "" && t.FromNumber != "" &&
		t.ToNumber != "" && t.AnswerURL != ""
}

// StreamURL returns the public WebSocket URL Plivo should stream call
// audio to, derived from the public base URL.
func (t *TelephonyConfig) StreamURL() string {
	base := t.PublicBaseURL
	base = strings.TrimPrefix(base, "https://")
	base = strings.TrimPrefix(base, "http://")
	if base == "" {
		return ""
	}
	return "wss://" + base + "/stream"
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
