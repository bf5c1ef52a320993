package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/noah-isme/course-ledger/api/swagger"
	"github.com/noah-isme/course-ledger/internal/client"
	"github.com/noah-isme/course-ledger/internal/handler"
	"github.com/noah-isme/course-ledger/internal/repository"
	"github.com/noah-isme/course-ledger/internal/server"
	"github.com/noah-isme/course-ledger/internal/service"
	"github.com/noah-isme/course-ledger/pkg/config"
	"github.com/noah-isme/course-ledger/pkg/logger"
)

// @title Course Grading Gate
// @version 1.0.0
// @description Grade submission gated on course ownership and enrollment
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "grade-service"
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

	ledger := client.NewEnrollmentClient(cfg.EnrollmentAPI, cfg.EnrollmentAPIPrefix, infra.Clients)
	grades := service.NewGradeService(
		repository.NewGradeRepository(infra.DB),
		infra.Catalog,
		ledger,
		infra.Identity,
		infra.Journal,
		infra.Metrics,
		infra.Validate,
		logr,
		cfg.Enrollment.EnrichConcurrency,
	)

	r, api := server.NewEngine(cfg, logr, infra, swagger.InstanceGrading)
	server.RegisterGradeRoutes(api, handler.NewGradeHandler(grades))

	if err := server.Run(ctx, cfg, r, logr); err != nil {
		logr.Error("server failed", zap.Error(err))
	}
}
