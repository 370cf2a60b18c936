package services

import (
	"context"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/database"
)

// HealthService probes the external dependencies. PostgreSQL is critical
// when configured; redis and kafka degrade gracefully, so their failures are
// reported but do not flip the overall status.
type HealthService struct {
	logger *logrus.Logger
	db     *database.Database
	start  time.Time
}

type HealthStatus struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Services    map[string]string      `json:"services"`
	Critical    []string               `json:"critical_failures,omitempty"`
	NonCritical []string               `json:"non_critical_failures,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

func NewHealthService(logger *logrus.Logger, db *database.Database) *HealthService {
	return &HealthService{
		logger: logger,
		db:     db,
		start:  time.Now(),
	}
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]string),
		Details:   make(map[string]interface{}),
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if s.db != nil && s.db.PG != nil {
		if err := s.db.PG.Ping(pctx); err != nil {
			status.Services["postgresql"] = "unhealthy"
			status.Critical = append(status.Critical, "postgresql: "+err.Error())
		} else {
			status.Services["postgresql"] = "healthy"
			stat := s.db.PG.Stat()
			status.Details["pg_acquired_conns"] = stat.AcquiredConns()
			status.Details["pg_total_conns"] = stat.TotalConns()
		}
	} else {
		status.Services["postgresql"] = "in-memory"
	}

	if s.db != nil && s.db.Redis != nil {
		if err := s.db.Redis.Ping(pctx).Err(); err != nil {
			status.Services["redis"] = "unhealthy"
			status.NonCritical = append(status.NonCritical, "redis: "+err.Error())
		} else {
			status.Services["redis"] = "healthy"
		}
	} else {
		status.Services["redis"] = "disabled"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	status.Details["goroutines"] = runtime.NumGoroutine()
	status.Details["heap_alloc_bytes"] = mem.HeapAlloc
	status.Details["uptime_seconds"] = int(time.Since(s.start).Seconds())

	if len(status.Critical) > 0 {
		status.Status = "unhealthy"
	} else if len(status.NonCritical) > 0 {
		status.Status = "degraded"
	} else {
		status.Status = "healthy"
	}
	return status
}
