package analysis

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/handler"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/middleware"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/analysis"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/rbac"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/httputil"
)

const fileField = "file"

type Handler struct {
	service *analysis.Service
}

func NewHandler(service *analysis.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	analyses := r.Group("/analyses")
	{
		read := auth.RequireAction(rbac.ActionAnalysisRead)
		analyses.POST("", auth.RequireAction(rbac.ActionAnalysisCreate), h.CreateAnalysis)
		analyses.GET("", read, h.ListAnalyses)
		analyses.GET("/dashboard", auth.RequireAction(rbac.ActionAnalysisDashboard), h.LabDashboard)
		analyses.GET("/:id", read, h.GetAnalysis)
		analyses.POST("/:id/start", auth.RequireAction(rbac.ActionAnalysisStart), h.StartAnalysis)
		analyses.POST("/:id/results", auth.RequireAction(rbac.ActionAnalysisResults), h.RecordResults)
		analyses.POST("/:id/validate", auth.RequireAction(rbac.ActionAnalysisValidate), h.ValidateAnalysis)

		analyses.POST("/:id/file", auth.RequireAction(rbac.ActionAnalysisUploadFile), h.UploadResultFile)
		analyses.GET("/:id/file", read, h.DownloadResultFile)
		analyses.DELETE("/:id/file", auth.RequireAction(rbac.ActionAnalysisDeleteFile), h.DeleteResultFile)
	}
}

type itemRequest struct {
	Name           string          `json:"name" binding:"required,max=200"`
	Price          decimal.Decimal `json:"price" binding:"decimal_gte0"`
	Unit           string          `json:"unit"`
	ReferenceRange string          `json:"reference_range"`
}

type createRequest struct {
	PatientID          uuid.UUID           `json:"patient_id" binding:"required"`
	DoctorID           *uuid.UUID          `json:"doctor_id"`
	VisitID            *uuid.UUID          `json:"visit_id"`
	Items              []itemRequest       `json:"items" binding:"required,min=1,dive"`
	DiscountPercentage *decimal.Decimal    `json:"discount_percentage" binding:"omitempty,percent"`
	PaidAmount         *decimal.Decimal    `json:"paid_amount" binding:"omitempty,decimal_gte0"`
	PaymentMethod      model.PaymentMethod `json:"payment_method" binding:"omitempty,oneof=cash mobile_money"`
}

type resultsRequest struct {
	Items             []model.ResultEntry `json:"items" binding:"required,min=1,dive"`
	TechnicianComment string              `json:"technician_comment"`
}

type validateRequest struct {
	DoctorComment string `json:"doctor_comment"`
}

type listQuery struct {
	PatientID    string `form:"patient_id"`
	DoctorID     string `form:"doctor_id"`
	TechnicianID string `form:"technician_id"`
	// Status is a comma separated list
	Status string `form:"status"`
	model.Pagination
}

func (h *Handler) CreateAnalysis(c *gin.Context) {
	var req createRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	in := analysis.CreateInput{
		PatientID:          req.PatientID,
		VisitID:            req.VisitID,
		DiscountPercentage: req.DiscountPercentage,
		PaidAmount:         req.PaidAmount,
		Method:             req.PaymentMethod,
		Actor:              handler.Actor(c),
	}
	if req.DoctorID != nil {
		in.DoctorID = *req.DoctorID
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, model.AnalysisItem{
			Name:           item.Name,
			Price:          item.Price,
			Unit:           item.Unit,
			ReferenceRange: item.ReferenceRange,
		})
	}

	a, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, a)
}

func (h *Handler) ListAnalyses(c *gin.Context) {
	var q listQuery
	if !handler.BindQuery(c, &q) {
		return
	}

	filter := model.AnalysisFilter{Pagination: q.Pagination}
	var err error
	if filter.PatientID, err = handler.OptionalUUID(q.PatientID, "patient_id"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.DoctorID, err = handler.OptionalUUID(q.DoctorID, "doctor_id"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.TechnicianID, err = handler.OptionalUUID(q.TechnicianID, "technician_id"); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	for _, s := range handler.SplitList(q.Status) {
		filter.Statuses = append(filter.Statuses, model.AnalysisStatus(s))
	}

	analyses, err := h.service.List(c.Request.Context(), filter, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	limit, offset := filter.Normalize()
	httputil.RespondWithPagination(c, analyses, offset/limit+1, limit, len(analyses))
}

func (h *Handler) LabDashboard(c *gin.Context) {
	dashboard, err := h.service.LabDashboard(c.Request.Context(), handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, dashboard)
}

func (h *Handler) GetAnalysis(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	a, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, a)
}

func (h *Handler) StartAnalysis(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	a, err := h.service.Start(c.Request.Context(), id, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Analysis started", a)
}

func (h *Handler) RecordResults(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req resultsRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	a, err := h.service.RecordResults(c.Request.Context(), id, analysis.ResultsInput{
		Items:             req.Items,
		TechnicianComment: req.TechnicianComment,
	}, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Results recorded", a)
}

func (h *Handler) ValidateAnalysis(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	var req validateRequest
	if c.Request.ContentLength != 0 && !handler.BindJSON(c, &req) {
		return
	}

	a, err := h.service.Validate(c.Request.Context(), id, req.DoctorComment, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Analysis validated", a)
}

func (h *Handler) UploadResultFile(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	header, err := c.FormFile(fileField)
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("a result file is required in the \"file\" field", err))
		return
	}
	f, err := header.Open()
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("failed to read uploaded file", err))
		return
	}
	defer f.Close()

	a, err := h.service.AttachResultFile(c.Request.Context(), id, analysis.UploadInput{
		OriginalName: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Size:         header.Size,
		Body:         f,
	}, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Result file uploaded", a)
}

func (h *Handler) DownloadResultFile(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	file, rc, err := h.service.OpenResultFile(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, file.Size, file.ContentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", file.OriginalName),
	})
}

func (h *Handler) DeleteResultFile(c *gin.Context) {
	id, ok := handler.ParseID(c, "id")
	if !ok {
		return
	}

	a, err := h.service.DeleteResultFile(c.Request.Context(), id, handler.Actor(c))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Result file deleted", a)
}
