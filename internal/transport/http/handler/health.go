package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pagewise/internal/bootstrap"
	redisClient "pagewise/internal/platform/redis"
)

// Probe reports whether one backing dependency is reachable.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthHandler struct {
	appName   string
	env       string
	startedAt time.Time
	probes    []Probe
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

var errNotConnected = errors.New("not connected")

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	probes := []Probe{
		{Name: "mysql", Check: func(ctx context.Context) error {
			if app.MySQL == nil {
				return errNotConnected
			}
			sqlDB, err := app.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
		{Name: "redis", Check: func(ctx context.Context) error {
			if app.Redis == nil {
				return errNotConnected
			}
			return redisClient.Ping(ctx, app.Redis)
		}},
	}
	// The broker is optional; without one there is nothing to probe.
	if app.Config.RabbitMQ.URL != "" {
		probes = append(probes, Probe{Name: "rabbitmq", Check: func(context.Context) error {
			if app.MQConn == nil || app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}})
	}
	return NewProbeHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, probes...)
}

func NewProbeHealthHandler(appName, env string, startedAt time.Time, probes ...Probe) *HealthHandler {
	return &HealthHandler{appName: appName, env: env, startedAt: startedAt, probes: probes}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	statusCode := http.StatusOK
	deps := make(gin.H, len(h.probes))
	for _, p := range h.probes {
		status := dependencyStatus{OK: true}
		if err := p.Check(ctx); err != nil {
			status = dependencyStatus{OK: false, Message: err.Error()}
			statusCode = http.StatusServiceUnavailable
		}
		deps[p.Name] = status
	}

	c.JSON(statusCode, gin.H{
		"app":          h.appName,
		"env":          h.env,
		"uptime_sec":   int(time.Since(h.startedAt).Seconds()),
		"dependencies": deps,
	})
}
