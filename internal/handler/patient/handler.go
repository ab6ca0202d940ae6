package patient

import (
	"github.com/gin-gonic/gin"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/handler"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/middleware"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/medical"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/operation"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/rbac"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/httputil"
)

// Handler serves the patient scoped views: the medical record and the
// operation history.
type Handler struct {
	records    *medical.Service
	operations *operation.Service
}

func NewHandler(records *medical.Service, operations *operation.Service) *Handler {
	return &Handler{
		records:    records,
		operations: operations,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	patients := r.Group("/patients")
	{
		read := auth.RequireAction(rbac.ActionMedicalRecordRead)
		patients.GET("/:id/medical-record", read, h.GetMedicalRecord)
		patients.GET("/:id/operations", read, h.GetOperationHistory)
	}
}

func (h *Handler) GetMedicalRecord(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	record, err := h.records.GetMedicalRecord(c.Request.Context(), id, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, record)
}

func (h *Handler) GetOperationHistory(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	history, err := h.operations.History(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, history)
}
