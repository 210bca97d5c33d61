package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"securevault/internal/http/middleware"
	"securevault/internal/model"
	"securevault/internal/service"
)

type fileListResponse struct {
	Items []model.FileSummary `json:"data"`
	Total int                 `json:"total"`
}

type auditListResponse struct {
	Items []model.AuditEntry `json:"data"`
	Total int                `json:"total"`
}

// unauthenticated guards handlers mounted without the auth middleware.
func unauthenticated(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
}

// fileID returns the :id path parameter. Ids are not parsed here: a malformed id is
// just an unknown file, and the service audits the attempt like any other.
func fileID(c *fiber.Ctx) string {
	return c.Params("id")
}

// UploadFile godoc
// @Summary Upload a file
// @Tags files
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "file to store"
// @Success 201 {object} model.UploadResult
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Security BearerAuth
// @Router /files [post]
func UploadFile(svc service.VaultService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := middleware.IdentityFrom(c)
		if !ok {
			return unauthenticated(c)
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		res, err := svc.Upload(c.UserContext(), actor, fh.Filename, f)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// ListFiles godoc
// @Summary List the caller's files, newest first
// @Tags files
// @Produce json
// @Success 200 {object} fileListResponse
// @Failure 401 {object} errorPayload
// @Security BearerAuth
// @Router /files [get]
func ListFiles(svc service.VaultService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := middleware.IdentityFrom(c)
		if !ok {
			return unauthenticated(c)
		}

		items, err := svc.List(c.UserContext(), actor)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fileListResponse{Items: items, Total: len(items)})
	}
}

// DownloadFile godoc
// @Summary Download a file
// @Tags files
// @Produce octet-stream
// @Param id path string true "file id"
// @Success 200 {file} binary
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /files/{id} [get]
func DownloadFile(svc service.VaultService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := middleware.IdentityFrom(c)
		if !ok {
			return unauthenticated(c)
		}
		id := fileID(c)

		file, err := svc.Retrieve(c.UserContext(), actor, id)
		if err != nil {
			return writeServiceError(c, err)
		}

		c.Attachment(file.DisplayName)
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		c.Set("X-Content-Kind", file.ContentKind)
		return c.Send(file.Content)
	}
}

// DeleteFile godoc
// @Summary Delete a file
// @Tags files
// @Param id path string true "file id"
// @Success 204
// @Failure 404 {object} errorPayload
// @Security BearerAuth
// @Router /files/{id} [delete]
func DeleteFile(svc service.VaultService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := middleware.IdentityFrom(c)
		if !ok {
			return unauthenticated(c)
		}
		id := fileID(c)

		if err := svc.Delete(c.UserContext(), actor, id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// AuditTrail godoc
// @Summary The caller's audit trail, newest first
// @Tags audit
// @Produce json
// @Param limit query int false "maximum entries"
// @Success 200 {object} auditListResponse
// @Failure 400 {object} errorPayload
// @Security BearerAuth
// @Router /audit [get]
func AuditTrail(svc service.VaultService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := middleware.IdentityFrom(c)
		if !ok {
			return unauthenticated(c)
		}

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
			}
			limit = n
		}

		entries, err := svc.AuditTrail(c.UserContext(), actor, limit)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(auditListResponse{Items: entries, Total: len(entries)})
	}
}
