package handler

import (
	"fmt"
	"strconv"

	"iot-measurement-backend/internal/service"
	pkglog "iot-measurement-backend/pkg/log"
	"iot-measurement-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService *service.AuditService
	logger       pkglog.Logger
}

func NewAuditHandler(auditService *service.AuditService, logger pkglog.Logger) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		logger:       logger,
	}
}

// List handles GET /admin/audit-logs?action=&actor=&status=&page=&limit=
func (h *AuditHandler) List(c *gin.Context) {
	q := service.AuditQuery{
		Action: c.Query("action"),
		Status: c.Query("status"),
	}
	fields := map[string]string{}

	if v := c.Query("actor"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			fields["actor"] = "actor must be a user id"
		} else {
			actor := uint(id)
			q.ActorID = &actor
		}
	}
	if v := c.Query("page"); v != "" {
		page, err := strconv.Atoi(v)
		switch {
		case err != nil || page < 1:
			fields["page"] = "page must be a positive integer"
		case page > service.MaxAuditPage:
			fields["page"] = fmt.Sprintf("page must be at most %d", service.MaxAuditPage)
		}
		q.Page = page
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			fields["limit"] = "limit must be a positive integer"
		}
		q.Limit = limit
	}
	if len(fields) > 0 {
		utils.ValidationErrorResponse(c, msgValidationFailed, fields)
		return
	}

	page, err := h.auditService.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, page)
}
