package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	GeminiAPIKey string
	LiveModel    string
	TextModel    string
	Voice        string
	Language     string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set - the voice session will not connect")
	}

	liveModel := os.Getenv("GEMINI_LIVE_MODEL")
	if liveModel == "" {
		liveModel = "gemini-2.0-flash-live-001"
	}

	textModel := os.Getenv("GEMINI_TEXT_MODEL")
	if textModel == "" {
		textModel = "gemini-2.0-flash"
	}

	voice := os.Getenv("SOPORTE_VOICE")
	if voice == "" {
		voice = "Aoede"
	}

	language := os.Getenv("SOPORTE_LANGUAGE")
	if language == "" {
		language = "es-MX"
	}

	log.Printf("config: live=%s text=%s voice=%s lang=%s", liveModel, textModel, voice, language)
	return Config{
		GeminiAPIKey: apiKey,
		LiveModel:    liveModel,
		TextModel:    textModel,
		Voice:        voice,
		Language:     language,
	}
}
