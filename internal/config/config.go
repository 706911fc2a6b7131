package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Ai         AIConfig
	Classifier ClassifierConfig
	Storage    StorageConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	BodyLimitMB        int
}

type DatabaseConfig struct {
	Connection string
}

type AIConfig struct {
	Provider string // "ollama" or "openai"
	Model    string
	BaseURL  string
	APIKey   string
}

// ClassifierConfig points at the external classification scripts. Each
// process mode maps to one script under ScriptDir.
type ClassifierConfig struct {
	Interpreter      string
	ScriptDir        string
	SkinScript       string
	MedicalRecScript string
	Timeout          time.Duration
}

type StorageConfig struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			BodyLimitMB:        getEnvAsInt("BODY_LIMIT_MB", 10),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			Provider: getEnv("LLM_PROVIDER", "ollama"),
			Model:    getEnv("LLM_MODEL", "llama3"),
			BaseURL:  getEnv("LLM_BASE_URL", "http://localhost:11434"),
			APIKey:   getEnv("LLM_API_KEY", ""),
		},
		Classifier: ClassifierConfig{
			Interpreter:      getEnv("CLASSIFIER_INTERPRETER", "python3"),
			ScriptDir:        getEnv("CLASSIFIER_SCRIPT_DIR", "scripts"),
			SkinScript:       getEnv("CLASSIFIER_SKIN_SCRIPT", "classify_skin.py"),
			MedicalRecScript: getEnv("CLASSIFIER_MEDICAL_RECORD_SCRIPT", "classify_medical_record.py"),
			Timeout:          getEnvAsDuration("CLASSIFIER_TIMEOUT", 60*time.Second),
		},
		Storage: StorageConfig{
			Bucket:    getEnv("AWS_S3_BUCKET", ""),
			Region:    getEnv("AWS_REGION", "ap-southeast-1"),
			AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
