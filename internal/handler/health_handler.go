package handler

import (
	"net/http"
	"time"

	"github.com/hitoshi/negotiator/internal/database"
)

const (
	healthStatusHealthy   = "Healthy"
	healthStatusUnhealthy = "Unhealthy"

	healthPingTimeout = 2 * time.Second
)

// HealthHandler はヘルスチェックのHTTPハンドラー。
// dbがnilの場合（インメモリストア）はデータベースのチェックを省略する。
type HealthHandler struct {
	db database.Pinger
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db database.Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

type healthCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status string        `json:"status"`
	Checks []healthCheck `json:"checks"`
}

// Health はアプリケーションとデータベースの状態を返す。
// いずれかのチェックが失敗した場合は503を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: healthStatusHealthy,
		Checks: []healthCheck{{Name: "self", Status: healthStatusHealthy}},
	}

	if h.db != nil {
		check := healthCheck{Name: "database", Status: healthStatusHealthy}
		if err := database.Ping(r.Context(), h.db, healthPingTimeout); err != nil {
			check.Status = healthStatusUnhealthy
			check.Error = err.Error()
			resp.Status = healthStatusUnhealthy
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if resp.Status != healthStatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
