package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthStatus reports pool connectivity and saturation.
type HealthStatus struct {
	Status          string        `json:"status"`
	ResponseTime    int64         `json:"responseTimeMs"`
	TotalConns      int32         `json:"totalConns"`
	IdleConns       int32         `json:"idleConns"`
	AcquiredConns   int32         `json:"acquiredConns"`
	MaxConns        int32         `json:"maxConns"`
}

// Health pings the pool and reports its current statistics.
func Health(ctx context.Context, pool *pgxpool.Pool) (*HealthStatus, error) {
	start := time.Now()

	if err := pool.Ping(ctx); err != nil {
		return &HealthStatus{Status: "unhealthy", ResponseTime: time.Since(start).Milliseconds()}, err
	}

	stats := pool.Stat()
	return &HealthStatus{
		Status:        "healthy",
		ResponseTime:  time.Since(start).Milliseconds(),
		TotalConns:    stats.TotalConns(),
		IdleConns:     stats.IdleConns(),
		AcquiredConns: stats.AcquiredConns(),
		MaxConns:      stats.MaxConns(),
	}, nil
}
