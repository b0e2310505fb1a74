package server

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-antiplagiat/internal/config"
	"github.com/noah-isme/gema-antiplagiat/internal/handler"
	"github.com/noah-isme/gema-antiplagiat/internal/models"
	"github.com/noah-isme/gema-antiplagiat/internal/repository"
	"github.com/noah-isme/gema-antiplagiat/internal/router"
	"github.com/noah-isme/gema-antiplagiat/internal/service"
	"github.com/noah-isme/gema-antiplagiat/internal/storage"
	cloud "github.com/noah-isme/gema-antiplagiat/pkg/cloudinary"
)

// NewFileStoring builds the storing service.
func NewFileStoring(cfg config.Config, logger zerolog.Logger) (*Server, error) {
	srv := newServer(cfg, config.ServiceFileStoring, logger)

	db, err := openDatabase(srv, cfg, &models.Submission{})
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	files, err := newFileStorage(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	submissions := service.NewSubmissionService(repository.NewSubmissionRepository(db), files, validate, cfg.MaxUploadMB, logger)

	router.RegisterFileStoring(srv.App, cfg, router.FileStoringDependencies{
		FileHandler: handler.NewFileHandler(submissions, logger),
	})

	return srv, nil
}

func newFileStorage(cfg config.Config, logger zerolog.Logger) (storage.FileStorage, error) {
	switch cfg.StorageBackend {
	case "cloudinary":
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, tracedHTTPClient(), logger)
		if err != nil {
			return nil, err
		}
		return storage.NewCloudinaryStorage(uploader), nil
	default:
		return storage.NewLocalStorage(cfg.StorageRoot, logger)
	}
}
