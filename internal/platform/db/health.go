package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Check is a named dependency probe used by the health endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// PoolCheck probes the Postgres pool.
func PoolCheck(pool *pgxpool.Pool) Check {
	return Check{Name: "database", Ping: pool.Ping}
}

// HealthHandler runs every check with a 5s budget and reports 503 if any fails.
func HealthHandler(checks ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, chk := range checks {
			if err := chk.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[chk.Name] = err.Error()
				continue
			}
			results[chk.Name] = "ok"
		}

		overall := "healthy"
		if status != http.StatusOK {
			overall = "unhealthy"
		}
		return c.JSON(status, map[string]interface{}{
			"status": overall,
			"checks": results,
		})
	}
}
