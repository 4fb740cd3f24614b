package db

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// PoolCheck pings the database.
func PoolCheck(pool *pgxpool.Pool) Check {
	return pool.Ping
}

// ComponentStatus is the per-dependency entry of a health response.
type ComponentStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HealthHandler runs every check with a shared 5s budget and answers 503
// when any of them fails.
func HealthHandler(checks map[string]Check) echo.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := "healthy"
		code := http.StatusOK
		components := make([]ComponentStatus, 0, len(names))
		for _, name := range names {
			cs := ComponentStatus{Name: name, Healthy: true}
			if err := checks[name](ctx); err != nil {
				cs.Healthy = false
				cs.Error = err.Error()
				status = "unhealthy"
				code = http.StatusServiceUnavailable
			}
			components = append(components, cs)
		}

		return c.JSON(code, map[string]interface{}{
			"status":     status,
			"components": components,
		})
	}
}
