package main

import (
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/openethics/openethics/internal/api"
	"github.com/openethics/openethics/internal/config"
	"github.com/openethics/openethics/internal/events"
	"github.com/openethics/openethics/internal/middleware"
	"github.com/openethics/openethics/internal/permissions"
	"github.com/openethics/openethics/internal/services"
	"github.com/openethics/openethics/internal/store"
	"github.com/openethics/openethics/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	st, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	defer st.Close()

	var pub events.Publisher = events.NopPublisher{}
	if cfg.PublishEvents {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, logger)
		if err != nil {
			logger.Fatal("failed to connect to amqp", zap.Error(err))
		}
		defer amqpPub.Close()
		pub = amqpPub
	}

	engine := workflow.NewFSMEngine(cfg.WorkflowName, st, logger)
	roles := permissions.NewLocalRoles(st, map[string][]string{
		cfg.PrincipalInvestigatorRole: {permissions.CapabilitySubmit, permissions.CapabilityView},
		cfg.ReviewerRole:              {permissions.CapabilityReview, permissions.CapabilityView},
	})

	tokenAuth := middleware.NewTokenAuth(cfg.JWTSecret)
	authSvc := services.NewAuthService(st, tokenAuth.SignToken)
	answerSvc := services.NewAnswerService(st)
	checklistSvc := services.NewChecklistService(st, answerSvc, cfg.ChecklistGroupID)
	formSvc := services.NewFormService(st, checklistSvc, cfg.BasicApplicationGroups)
	reviewSvc := services.NewReviewService(st)
	appSvc := services.NewApplicationService(
		st, answerSvc, reviewSvc, engine, roles, roles, pub,
		cfg.PrincipalInvestigatorRole, cfg.ReviewerRole, logger)

	router := api.NewRouter(
		tokenAuth,
		logger,
		api.NewAuthHandler(authSvc),
		api.NewApplicationHandler(appSvc, checklistSvc, formSvc, answerSvc, logger),
		api.NewCommitteeHandler(reviewSvc),
		api.NewQuestionBankHandler(st),
	)

	logger.Info("openethics portal listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.Bool("publish_events", cfg.PublishEvents))
	if err := http.ListenAndServe(cfg.HTTPAddr, router); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return zcfg.Build()
}
