package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"queuetrack-backend/internal/store"
	"queuetrack-backend/internal/trend"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	projector trend.Projector
	webpush   *webpush.Options
	log       *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, projector trend.Projector, webpushOptions *webpush.Options, log *zap.Logger) *Handler {
	return &Handler{
		store:     s,
		projector: projector,
		webpush:   webpushOptions,
		log:       log,
	}
}
