package visit

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/handler"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/middleware"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/rbac"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/visit"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/httputil"
)

type Handler struct {
	service *visit.Service
}

func NewHandler(service *visit.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	visits := r.Group("/visits")
	{
		visits.POST("", auth.RequireAction(rbac.ActionVisitCreate), h.CreateVisit)
		visits.GET("", auth.RequireAction(rbac.ActionVisitList), h.ListVisits)
		visits.GET("/today/all", auth.RequireAction(rbac.ActionVisitToday), h.ListToday)
		visits.GET("/today/mine", auth.RequireAction(rbac.ActionVisitMine), h.ListMineToday)
		visits.GET("/:id", auth.RequireAction(rbac.ActionVisitRead), h.GetVisit)
		visits.PATCH("/:id", auth.RequireAction(rbac.ActionVisitUpdate), h.UpdateVisit)
		visits.POST("/:id/finish", auth.RequireAction(rbac.ActionVisitFinish), h.FinishVisit)
	}
}

type createRequest struct {
	PatientID          uuid.UUID           `json:"patient_id" binding:"required"`
	DoctorID           uuid.UUID           `json:"doctor_id" binding:"required"`
	Reason             string              `json:"reason" binding:"required,max=500"`
	Notes              string              `json:"notes"`
	TotalAmount        decimal.Decimal     `json:"total_amount" binding:"decimal_gte0"`
	DiscountPercentage *decimal.Decimal    `json:"discount_percentage" binding:"omitempty,percent"`
	PaidAmount         *decimal.Decimal    `json:"paid_amount" binding:"omitempty,decimal_gte0"`
	PaymentMethod      model.PaymentMethod `json:"payment_method" binding:"omitempty,oneof=cash mobile_money"`
}

type updateRequest struct {
	Reason     *string          `json:"reason" binding:"omitempty,max=500"`
	Notes      *string          `json:"notes"`
	PaidAmount *decimal.Decimal `json:"paid_amount" binding:"omitempty,decimal_gte0"`
}

type listQuery struct {
	PatientID string            `form:"patient_id"`
	DoctorID  string            `form:"doctor_id"`
	Status    model.VisitStatus `form:"status"`
	From      string            `form:"from"`
	To        string            `form:"to"`
	model.Pagination
}

func (h *Handler) CreateVisit(c *gin.Context) {
	var req createRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	v, err := h.service.Create(c.Request.Context(), visit.CreateInput{
		PatientID:          req.PatientID,
		DoctorID:           req.DoctorID,
		Reason:             req.Reason,
		Notes:              req.Notes,
		TotalAmount:        req.TotalAmount,
		DiscountPercentage: req.DiscountPercentage,
		PaidAmount:         req.PaidAmount,
		Method:             req.PaymentMethod,
		Actor:              handler.Actor(c),
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, v)
}

func (h *Handler) ListVisits(c *gin.Context) {
	var q listQuery
	if !handler.BindQuery(c, &q) {
		return
	}

	filter := model.VisitFilter{Status: q.Status, Pagination: q.Pagination}
	var err error
	if filter.PatientID, err = handler.OptionalUUID(q.PatientID, "patient_id"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.DoctorID, err = handler.OptionalUUID(q.DoctorID, "doctor_id"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.From, filter.To, err = handler.DateRange(q.From, q.To); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	visits, err := h.service.List(c.Request.Context(), filter, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	limit, offset := filter.Normalize()
	httputil.RespondWithPagination(c, visits, offset/limit+1, limit, len(visits))
}

func (h *Handler) ListToday(c *gin.Context) {
	visits, err := h.service.Today(c.Request.Context(), handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, visits)
}

func (h *Handler) ListMineToday(c *gin.Context) {
	visits, err := h.service.TodayForDoctor(c.Request.Context(), handler.Actor(c).UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, visits)
}

func (h *Handler) GetVisit(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	v, err := h.service.Get(c.Request.Context(), id, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, v)
}

func (h *Handler) UpdateVisit(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req updateRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	v, err := h.service.Update(c.Request.Context(), id, visit.UpdateInput{
		Reason:     req.Reason,
		Notes:      req.Notes,
		PaidAmount: req.PaidAmount,
		Actor:      handler.Actor(c),
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Visit updated", v)
}

func (h *Handler) FinishVisit(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	v, err := h.service.Finish(c.Request.Context(), id, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Visit finished", v)
}
