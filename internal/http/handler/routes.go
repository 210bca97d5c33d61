package handler

import (
	"github.com/gofiber/fiber/v2"

	"securevault/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Every /files and /audit route runs behind auth, which must store the caller's
// identity in context locals (see middleware.Auth).
func RegisterRoutes(app *fiber.App, health Health, svc service.VaultService, auth fiber.Handler) {
	app.Get("/health", HealthCheck(health))
	app.Get("/healthz", LivenessProbe())

	app.Post("/files", auth, UploadFile(svc))
	app.Get("/files", auth, ListFiles(svc))
	app.Get("/files/:id", auth, DownloadFile(svc))
	app.Delete("/files/:id", auth, DeleteFile(svc))

	app.Get("/audit", auth, AuditTrail(svc))
}
