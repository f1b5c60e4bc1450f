package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docrag/internal/worker"
)

// VectorPinger is the part of the Qdrant client the health check needs.
type VectorPinger interface {
	Ping(ctx context.Context) error
}

// HealthDeps lists what /healthz checks. MQConn is nil when ingestion runs
// on the local pool only.
type HealthDeps struct {
	AppName   string
	Env       string
	StartedAt time.Time
	MySQL     *gorm.DB
	Redis     *redis.Client
	MQConn    *amqp.Connection
	Qdrant    VectorPinger
	Pool      *worker.Pool
}

type HealthHandler struct {
	deps HealthDeps
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{deps: deps}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	deps := gin.H{
		"mysql":  h.checkMySQL(ctx),
		"redis":  h.checkRedis(ctx),
		"qdrant": h.checkQdrant(ctx),
	}
	if h.deps.MQConn != nil {
		deps["rabbitmq"] = h.checkRabbitMQ()
	}

	allOK := true
	for _, s := range deps {
		if !s.(dependencyStatus).OK {
			allOK = false
		}
	}
	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	body := gin.H{
		"app":          h.deps.AppName,
		"env":          h.deps.Env,
		"uptime_sec":   int(time.Since(h.deps.StartedAt).Seconds()),
		"dependencies": deps,
	}
	if h.deps.Pool != nil {
		body["ingest_pool"] = h.deps.Pool.Stats()
	}
	c.JSON(statusCode, body)
}

func (h *HealthHandler) checkMySQL(ctx context.Context) dependencyStatus {
	if h.deps.MySQL == nil {
		return dependencyStatus{OK: false, Message: "not configured"}
	}
	sqlDB, err := h.deps.MySQL.DB()
	if err != nil {
		return unavailable("mysql", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("mysql", err)
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRedis(ctx context.Context) dependencyStatus {
	if h.deps.Redis == nil {
		return dependencyStatus{OK: false, Message: "not configured"}
	}
	if err := h.deps.Redis.Ping(ctx).Err(); err != nil {
		return unavailable("redis", err)
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkQdrant(ctx context.Context) dependencyStatus {
	if h.deps.Qdrant == nil {
		return dependencyStatus{OK: false, Message: "not configured"}
	}
	if err := h.deps.Qdrant.Ping(ctx); err != nil {
		return unavailable("qdrant", err)
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRabbitMQ() dependencyStatus {
	if h.deps.MQConn.IsClosed() {
		return dependencyStatus{OK: false, Message: "connection closed"}
	}
	return dependencyStatus{OK: true}
}

// unavailable logs the cause and reports a fixed message, since driver errors
// carry internal addresses.
func unavailable(name string, err error) dependencyStatus {
	slog.Warn("health check failed", "dependency", name, "error", err)
	return dependencyStatus{OK: false, Message: "unavailable"}
}
