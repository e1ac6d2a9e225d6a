package handlers

import (
	"context"

	"ecs_event_collector/internal/models"
	"ecs_event_collector/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockHistory struct {
	runs    []models.CollectionRun
	listErr error
	last    models.CollectionRun
	hasLast bool
	lastErr error

	lastLimit int
	listCalls int
}

func (m *mockHistory) List(ctx context.Context, limit int) ([]models.CollectionRun, error) {
	m.listCalls++
	m.lastLimit = limit
	return m.runs, m.listErr
}

func (m *mockHistory) Last(ctx context.Context) (models.CollectionRun, bool, error) {
	return m.last, m.hasLast, m.lastErr
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}
