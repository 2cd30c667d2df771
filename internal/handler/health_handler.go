package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/attendhq/attendance-api/pkg/database"
)

// HealthHandler reports liveness and store connectivity.
type HealthHandler struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewHealthHandler constructs HealthHandler.
func NewHealthHandler(db *sqlx.DB, timeout time.Duration) *HealthHandler {
	return &HealthHandler{db: db, timeout: timeout}
}

// Health handles GET /health. The database flag lets the client distinguish
// a reachable API from a reachable store and drive its reconnect banner.
func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	dbState := "up"
	if err := database.Ping(h.db, h.timeout); err != nil {
		status = http.StatusServiceUnavailable
		dbState = "down"
	}
	c.JSON(status, gin.H{"status": "ok", "database": dbState})
}
