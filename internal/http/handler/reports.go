package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"crmapi/internal/service"
	"crmapi/internal/storage"
)

const reportURLExpiry = 15 * time.Minute

func reportKey(c *fiber.Ctx) string {
	return "reports/" + c.Params("name")
}

func storageError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, storage.ErrDisabled):
		return writeError(c, fiber.StatusServiceUnavailable, "STORAGE_DISABLED", "report archive is not configured")
	case errors.Is(err, storage.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "report not found")
	case errors.Is(err, service.ErrInvalidArchiveKey):
		return writeError(c, fiber.StatusBadRequest, "INVALID_KEY", "invalid report key")
	}
	return internal(c)
}

// ListReports godoc
// @Summary Archived CRM reports
// @Tags reports
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} errorPayload
// @Router /reports [get]
func ListReports(svc service.ReportService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		objs, err := svc.ListArchives(c.UserContext())
		if err != nil {
			return storageError(c, err)
		}
		return c.JSON(fiber.Map{"data": objs, "total": len(objs)})
	}
}

// GetReport streams one archived report.
// @Summary Download an archived report
// @Tags reports
// @Produce json
// @Param name path string true "Object name, e.g. 20261019T060000Z.json"
// @Success 200 {object} model.Report
// @Failure 404 {object} errorPayload
// @Router /reports/{name} [get]
func GetReport(svc service.ReportService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc, err := svc.OpenArchive(c.UserContext(), reportKey(c))
		if err != nil {
			return storageError(c, err)
		}
		c.Type("json")
		return c.SendStream(rc)
	}
}

// ReportURL godoc
// @Summary Presigned download URL for an archived report
// @Tags reports
// @Produce json
// @Param name path string true "Object name"
// @Success 200 {object} map[string]string
// @Router /reports/{name}/url [get]
func ReportURL(svc service.ReportService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		url, err := svc.ArchiveURL(c.UserContext(), reportKey(c), reportURLExpiry)
		if err != nil {
			return storageError(c, err)
		}
		return c.JSON(fiber.Map{"url": url, "expires_in": int(reportURLExpiry.Seconds())})
	}
}
