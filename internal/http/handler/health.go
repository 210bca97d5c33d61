package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"

	"securevault/internal/repository"
)

// Health describes the backends selected at startup. DB is nil when metadata is
// served by the in-process fallback.
type Health struct {
	DB              *sql.DB
	MetadataBackend string
	ObjectStore     string
}

// HealthCheck pings the durable metadata backend when there is one. Running on the
// in-process fallback is reported as degraded but still answers 200.
func HealthCheck(h Health) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status := "healthy"
		if h.DB != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := h.DB.PingContext(ctx); err != nil {
				return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
			}
		} else if h.MetadataBackend == repository.BackendMemory {
			status = "degraded"
		}

		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":           status,
			"metadata_backend": h.MetadataBackend,
			"object_store":     h.ObjectStore,
		})
	}
}

// LivenessProbe answers 200 as long as the process serves requests.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}
