package bootstrap

import (
	"context"
	"log"
	"path/filepath"

	"healthcare-assistant-be/internal/config"
	"healthcare-assistant-be/internal/constant"
	"healthcare-assistant-be/internal/controller"
	"healthcare-assistant-be/internal/pkg/logger"
	"healthcare-assistant-be/internal/repository/unitofwork"
	"healthcare-assistant-be/internal/service"
	"healthcare-assistant-be/pkg/classifier"
	"healthcare-assistant-be/pkg/llm/factory"
	"healthcare-assistant-be/pkg/storage"

	"gorm.io/gorm"
)

type Container struct {
	ChatController controller.IChatController
	Logger         logger.ILogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Inference Backend
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.Provider,
		cfg.Ai.Model,
		cfg.Ai.BaseURL,
		cfg.Ai.APIKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.Provider, cfg.Ai.Model)

	// 3. Image Classifier
	clf := classifier.NewRunner(
		cfg.Classifier.Interpreter,
		map[string]string{
			constant.ImageProcessModeSkin:          filepath.Join(cfg.Classifier.ScriptDir, cfg.Classifier.SkinScript),
			constant.ImageProcessModeMedicalRecord: filepath.Join(cfg.Classifier.ScriptDir, cfg.Classifier.MedicalRecScript),
		},
		cfg.Classifier.Timeout,
	)

	// 4. Object Storage (optional: without credentials uploads degrade to
	// a null image URL)
	var store storage.ObjectStorage
	if cfg.Storage.Bucket != "" {
		s3Store, err := storage.NewS3Storage(context.Background(), storage.S3Config{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKey,
			SecretAccessKey: cfg.Storage.SecretKey,
		})
		if err != nil {
			log.Printf("[WARN] Failed to initialize S3 storage: %v", err)
		} else {
			store = s3Store
		}
	}

	// 5. Services
	chatService := service.NewChatService(uowFactory)
	streamService := service.NewStreamService(chatService, llmProvider, sysLogger)
	diagnosisService := service.NewDiagnosisService(chatService, clf, store, sysLogger)

	// 6. Controllers
	return &Container{
		ChatController: controller.NewChatController(chatService, streamService, diagnosisService, sysLogger),
		Logger:         sysLogger,
	}
}
