package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/noah-isme/course-ledger/api/swagger"
	"github.com/noah-isme/course-ledger/internal/handler"
	"github.com/noah-isme/course-ledger/internal/models"
	"github.com/noah-isme/course-ledger/internal/repository"
	"github.com/noah-isme/course-ledger/internal/server"
	"github.com/noah-isme/course-ledger/internal/service"
	"github.com/noah-isme/course-ledger/pkg/config"
	"github.com/noah-isme/course-ledger/pkg/logger"
)

// @title Course Enrollment Ledger
// @version 1.0.0
// @description Student enrollment records, course rosters and enrollment checks
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "enrollment-service"
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx := context.Background()
	infra, err := server.Bootstrap(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("bootstrap failed", zap.Error(err))
	}
	defer infra.Close()

	workflow := models.ParseWorkflow(cfg.Enrollment.Workflow)
	enrollments := service.NewEnrollmentService(
		repository.NewEnrollmentRepository(infra.DB),
		infra.Catalog,
		infra.Identity,
		infra.Journal,
		infra.Metrics,
		infra.Validate,
		logr,
		service.EnrollmentServiceConfig{
			Workflow:          workflow,
			EnforceCapacity:   cfg.Enrollment.EnforceCapacity,
			EnrichConcurrency: cfg.Enrollment.EnrichConcurrency,
		},
	)

	r, api := server.NewEngine(cfg, logr, infra, swagger.InstanceEnrollment)
	server.RegisterEnrollmentRoutes(api, handler.NewEnrollmentHandler(enrollments), workflow)

	logr.Info("enrollment ledger ready", zap.String("workflow", string(workflow)), zap.Bool("enforce_capacity", cfg.Enrollment.EnforceCapacity))
	if err := server.Run(ctx, cfg, r, logr); err != nil {
		logr.Error("server failed", zap.Error(err))
	}
}
