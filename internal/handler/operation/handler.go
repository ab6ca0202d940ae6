package operation

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/handler"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/middleware"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/operation"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/rbac"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/httputil"
)

type Handler struct {
	service *operation.Service
}

func NewHandler(service *operation.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	ops := r.Group("/operations")
	{
		ops.POST("", auth.RequireAction(rbac.ActionOperationSchedule), h.ScheduleOperation)
		ops.GET("", auth.RequireAction(rbac.ActionOperationList), h.ListOperations)
		ops.GET("/mine", auth.RequireAction(rbac.ActionOperationMine), h.ListMine)
		ops.GET("/dashboard/doctor", auth.RequireAction(rbac.ActionOperationMine), h.DoctorDashboard)
		ops.GET("/dashboard/payments", auth.RequireAction(rbac.ActionOperationPaymentDashboard), h.PaymentDashboard)
		ops.GET("/:id", h.GetOperation)
		ops.PATCH("/:id/payment", auth.RequireAction(rbac.ActionOperationUpdatePayment), h.UpdatePayment)
		ops.POST("/:id/start", auth.RequireAction(rbac.ActionOperationStart), h.StartOperation)
		ops.POST("/:id/complete", auth.RequireAction(rbac.ActionOperationComplete), h.CompleteOperation)
		ops.POST("/:id/cancel", auth.RequireAction(rbac.ActionOperationCancel), h.CancelOperation)
	}
}

type scheduleRequest struct {
	PatientID         uuid.UUID               `json:"patient_id" binding:"required"`
	SurgeonID         uuid.UUID               `json:"surgeon_id" binding:"required"`
	AssistantID       *uuid.UUID              `json:"assistant_id"`
	AnesthetistID     *uuid.UUID              `json:"anesthetist_id"`
	VisitID           *uuid.UUID              `json:"visit_id"`
	OperationType     string                  `json:"operation_type" binding:"required,max=200"`
	Category          model.OperationCategory `json:"category" binding:"omitempty,oneof=minor major emergency"`
	AnesthesiaType    model.AnesthesiaType    `json:"anesthesia_type" binding:"omitempty,oneof=general local spinal epidural sedation"`
	ScheduledDate     time.Time               `json:"scheduled_date" binding:"required"`
	EstimatedDuration int                     `json:"estimated_duration" binding:"min=0"`
	Cost              decimal.Decimal         `json:"cost" binding:"decimal_gte0"`
	PreOpNotes        string                  `json:"pre_op_notes"`
}

type completeRequest struct {
	OperativeReport string `json:"operative_report"`
	PostOpReport    string `json:"post_op_report"`
	Complications   string `json:"complications"`
	Recommendations string `json:"recommendations"`
	ActualDuration  int    `json:"actual_duration" binding:"min=0"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

type listQuery struct {
	PatientID string `form:"patient_id"`
	SurgeonID string `form:"surgeon_id"`
	// Status is a comma separated list
	Status string `form:"status"`
	From   string `form:"from"`
	To     string `form:"to"`
	model.Pagination
}

func (h *Handler) ScheduleOperation(c *gin.Context) {
	var req scheduleRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	op, err := h.service.Schedule(c.Request.Context(), operation.ScheduleInput{
		PatientID:         req.PatientID,
		SurgeonID:         req.SurgeonID,
		AssistantID:       req.AssistantID,
		AnesthetistID:     req.AnesthetistID,
		VisitID:           req.VisitID,
		OperationType:     req.OperationType,
		Category:          req.Category,
		AnesthesiaType:    req.AnesthesiaType,
		ScheduledDate:     req.ScheduledDate,
		EstimatedDuration: req.EstimatedDuration,
		Cost:              req.Cost,
		PreOpNotes:        req.PreOpNotes,
		Actor:             handler.Actor(c),
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, op)
}

func (h *Handler) ListOperations(c *gin.Context) {
	var q listQuery
	if !handler.BindQuery(c, &q) {
		return
	}

	patientID, err := handler.OptionalUUID(q.PatientID, "patient_id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	surgeonID, err := handler.OptionalUUID(q.SurgeonID, "surgeon_id")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	from, to, err := handler.DateRange(q.From, q.To)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	filter := model.OperationFilter{
		PatientID:  patientID,
		SurgeonID:  surgeonID,
		From:       from,
		To:         to,
		Pagination: q.Pagination,
	}
	for _, s := range handler.SplitList(q.Status) {
		filter.Statuses = append(filter.Statuses, model.OperationStatus(s))
	}

	ops, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	limit, offset := filter.Normalize()
	httputil.RespondWithPagination(c, ops, offset/limit+1, limit, len(ops))
}

func (h *Handler) ListMine(c *gin.Context) {
	var p model.Pagination
	if !handler.BindQuery(c, &p) {
		return
	}

	ops, err := h.service.ListForSurgeon(c.Request.Context(), handler.Actor(c).UserID, p)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	limit, offset := p.Normalize()
	httputil.RespondWithPagination(c, ops, offset/limit+1, limit, len(ops))
}

func (h *Handler) DoctorDashboard(c *gin.Context) {
	dashboard, err := h.service.DoctorDashboard(c.Request.Context(), handler.Actor(c).UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, dashboard)
}

func (h *Handler) PaymentDashboard(c *gin.Context) {
	dashboard, err := h.service.PaymentDashboard(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, dashboard)
}

func (h *Handler) GetOperation(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	op, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, op)
}

func (h *Handler) UpdatePayment(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req handler.PaymentUpdateRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	op, err := h.service.UpdatePayment(c.Request.Context(), id, req.ToUpdate(handler.Actor(c)))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Operation payment updated", op)
}

func (h *Handler) StartOperation(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	op, err := h.service.Start(c.Request.Context(), id, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Operation started", op)
}

func (h *Handler) CompleteOperation(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	// the reports are optional, so an empty body is accepted
	var req completeRequest
	if c.Request.ContentLength != 0 && !handler.BindJSON(c, &req) {
		return
	}

	op, err := h.service.Complete(c.Request.Context(), id, operation.CompleteInput{
		OperativeReport: req.OperativeReport,
		PostOpReport:    req.PostOpReport,
		Complications:   req.Complications,
		Recommendations: req.Recommendations,
		ActualDuration:  req.ActualDuration,
	}, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Operation completed", op)
}

func (h *Handler) CancelOperation(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req cancelRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	op, err := h.service.Cancel(c.Request.Context(), id, req.Reason, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Operation cancelled", op)
}
