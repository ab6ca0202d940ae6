package payment

import (
	"github.com/gin-gonic/gin"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/handler"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/middleware"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/billing"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/rbac"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/httputil"
)

type Handler struct {
	service     *billing.Service
	idempotency *middleware.Idempotency
}

func NewHandler(service *billing.Service, idempotency *middleware.Idempotency) *Handler {
	return &Handler{
		service:     service,
		idempotency: idempotency,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	payments := r.Group("/payments")
	{
		list := auth.RequireAction(rbac.ActionPaymentList)
		payments.GET("", list, h.ListPayments)
		payments.GET("/summary", list, h.Summary)
		payments.GET("/debtors", list, h.ListDebtors)
		payments.GET("/:id", list, h.GetPayment)
		payments.PATCH("/:id", auth.RequireAction(rbac.ActionPaymentUpdate), h.idempotency.Middleware(), h.UpdatePayment)
	}
}

type listQuery struct {
	PatientID string              `form:"patient_id"`
	Status    model.PaymentStatus `form:"status" binding:"omitempty,oneof=unpaid partial paid"`
	HasDebt   *bool               `form:"has_debt"`
	From      string              `form:"from"`
	To        string              `form:"to"`
	model.Pagination
}

func (q listQuery) filter() (model.PaymentFilter, error) {
	patientID, err := handler.OptionalUUID(q.PatientID, "patient_id")
	if err != nil {
		return model.PaymentFilter{}, err
	}
	from, to, err := handler.DateRange(q.From, q.To)
	if err != nil {
		return model.PaymentFilter{}, err
	}
	return model.PaymentFilter{
		PatientID:  patientID,
		Status:     q.Status,
		HasDebt:    q.HasDebt,
		From:       from,
		To:         to,
		Pagination: q.Pagination,
	}, nil
}

func (h *Handler) parseFilter(c *gin.Context) (model.PaymentFilter, bool) {
	var q listQuery
	if !handler.BindQuery(c, &q) {
		return model.PaymentFilter{}, false
	}
	filter, err := q.filter()
	if err != nil {
		httputil.RespondWithError(c, err)
		return model.PaymentFilter{}, false
	}
	return filter, true
}

func (h *Handler) ListPayments(c *gin.Context) {
	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}

	payments, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	limit, offset := filter.Normalize()
	httputil.RespondWithPagination(c, payments, offset/limit+1, limit, len(payments))
}

func (h *Handler) Summary(c *gin.Context) {
	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, summary)
}

func (h *Handler) ListDebtors(c *gin.Context) {
	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}

	debtors, err := h.service.Debtors(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	limit, offset := filter.Normalize()
	httputil.RespondWithPagination(c, debtors, offset/limit+1, limit, len(debtors))
}

func (h *Handler) GetPayment(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	payment, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, payment)
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

	payment, err := h.service.ApplyPaymentUpdate(c.Request.Context(), id, req.ToUpdate(handler.Actor(c)))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Payment updated", payment)
}
