package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/config"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/handler/prometheus"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/middleware"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/storage"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/auth"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/logger"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
)

type envelope struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Details map[string]interface{} `json:"details"`
}

type recordingNotifier struct {
	refunds []string
}

func (n *recordingNotifier) RefundIssued(_ context.Context, _ *model.Operation, p *model.Payment) error {
	n.refunds = append(n.refunds, p.PaymentNumber)
	return nil
}

type harness struct {
	t        *testing.T
	engine   *gin.Engine
	jwt      auth.JWTService
	surgeon  model.Actor
	others   map[model.Role]model.Actor
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := &config.Config{
		Server:      config.ServerConfig{Mode: gin.TestMode, RequestTimeout: 5 * time.Second},
		Storage:     config.StorageConfig{ResultsDir: t.TempDir(), MaxUploadSize: 2 << 20},
		Idempotency: config.IdempotencyConfig{TTL: time.Minute},
		Security:    config.SecurityConfig{AllowedOrigins: []string{"*"}},
		RateLimit:   config.RateLimitConfig{Enabled: false},
	}

	repos := NewMemoryRepositories()
	numbers, err := repos.SequenceGenerator("memory", nil)
	require.NoError(t, err)
	files, err := storage.NewDiskStore(cfg.Storage.ResultsDir)
	require.NoError(t, err)

	exporter := prometheus.New()
	m := metrics.NewMetrics("cmc", exporter.Registry())
	notifier := &recordingNotifier{}
	svcs := NewServices(repos, ServiceOptions{
		Numbers:     numbers,
		Files:       files,
		MaxFileSize: cfg.Storage.MaxUploadSize,
		Notifier:    notifier,
		Metrics:     m,
		Logger:      logger.Nop(),
	})

	jwtSvc := auth.NewJWTService("test-secret", "cmc-ua", time.Hour)
	r, err := NewRouter(cfg, repos, svcs, jwtSvc, exporter, m, nil)
	require.NoError(t, err)

	others := map[model.Role]model.Actor{}
	for _, role := range []model.Role{model.RoleSecretary, model.RoleAccountant, model.RoleLabTechnician, model.RoleAdmin} {
		others[role] = model.Actor{UserID: uuid.New(), Roles: []model.Role{role}}
	}
	return &harness{
		t:        t,
		engine:   r.Engine(),
		jwt:      jwtSvc,
		surgeon:  model.Actor{UserID: uuid.New(), Roles: []model.Role{model.RoleDoctor}},
		others:   others,
		notifier: notifier,
	}
}

func (h *harness) do(actor *model.Actor, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return h.send(actor, req)
}

func (h *harness) send(actor *model.Actor, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	h.t.Helper()
	if actor != nil {
		token, err := h.jwt.GenerateAccessToken(*actor)
		require.NoError(h.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (h *harness) as(role model.Role) *model.Actor {
	a := h.others[role]
	return &a
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestOperationLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	secretary := h.as(model.RoleSecretary)

	w, env := h.do(secretary, http.MethodPost, "/api/v1/operations", gin.H{
		"patient_id":     uuid.New(),
		"surgeon_id":     h.surgeon.UserID,
		"operation_type": "Appendectomy",
		"category":       "major",
		"scheduled_date": time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"cost":           2000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	op := decode[model.Operation](t, env.Data)
	assert.Equal(t, model.OperationStatusPendingPayment, op.Status)
	assert.Regexp(t, `^OP-\d{4}-001$`, op.OperationNumber)

	opPath := "/api/v1/operations/" + op.ID.String()

	w, env = h.do(&h.surgeon, http.MethodPost, opPath+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = h.do(h.as(model.RoleAccountant), http.MethodPatch, opPath+"/payment", gin.H{"paid_amount": 2000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	paid := decode[model.OperationWithPayment](t, env.Data)
	assert.Equal(t, model.OperationStatusScheduled, paid.Status)
	assert.True(t, paid.IsPaid)
	require.NotNil(t, paid.Payment)
	assert.Equal(t, model.PaymentStatusPaid, paid.Payment.Status)

	other := model.Actor{UserID: uuid.New(), Roles: []model.Role{model.RoleDoctor}}
	w, _ = h.do(&other, http.MethodPost, opPath+"/start", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = h.do(&h.surgeon, http.MethodPost, opPath+"/cancel", gin.H{"reason": "surgeon unavailable"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = h.do(&h.surgeon, http.MethodPost, opPath+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.OperationStatusInProgress, decode[model.Operation](t, env.Data).Status)

	w, env = h.do(&h.surgeon, http.MethodPost, opPath+"/complete", gin.H{"operative_report": "uneventful"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.OperationStatusCompleted, decode[model.Operation](t, env.Data).Status)

	w, env = h.do(&h.surgeon, http.MethodGet, "/api/v1/operations/mine", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), op.ID.String())
}

func TestCancelPaidOperationRefundsOverHTTP(t *testing.T) {
	h := newHarness(t)
	secretary := h.as(model.RoleSecretary)

	_, env := h.do(secretary, http.MethodPost, "/api/v1/operations", gin.H{
		"patient_id":     uuid.New(),
		"surgeon_id":     h.surgeon.UserID,
		"operation_type": "Hernia repair",
		"scheduled_date": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"cost":           1500,
	})
	op := decode[model.Operation](t, env.Data)
	opPath := "/api/v1/operations/" + op.ID.String()

	w, _ := h.do(secretary, http.MethodPatch, opPath+"/payment", gin.H{"paid_amount": 1500})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = h.do(secretary, http.MethodPost, opPath+"/cancel", gin.H{"reason": "patient request"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cancelled := decode[model.Operation](t, env.Data)
	assert.Equal(t, model.OperationStatusCancelled, cancelled.Status)
	assert.False(t, cancelled.IsPaid)

	w, env = h.do(secretary, http.MethodGet, "/api/v1/payments/"+op.PaymentID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[model.Payment](t, env.Data)
	assert.True(t, p.IsRefunded)
	assert.Equal(t, "1500", p.RefundAmount.String())
	assert.Equal(t, "Operation cancelled: patient request", p.RefundReason)
	assert.Len(t, h.notifier.refunds, 1)

	w, _ = h.do(secretary, http.MethodPost, opPath+"/cancel", gin.H{"reason": "again"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = h.do(secretary, http.MethodGet, "/api/v1/patients/"+op.PatientID.String()+"/operations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[model.OperationHistory](t, env.Data)
	assert.Equal(t, 1, history.Total)
	assert.Len(t, history.ByStatus[model.OperationStatusCancelled], 1)
}

func TestCancelledOperationBillIsClosedOverHTTP(t *testing.T) {
	h := newHarness(t)
	secretary := h.as(model.RoleSecretary)

	_, env := h.do(secretary, http.MethodPost, "/api/v1/operations", gin.H{
		"patient_id":     uuid.New(),
		"surgeon_id":     h.surgeon.UserID,
		"operation_type": "Cholecystectomy",
		"scheduled_date": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"cost":           2000,
	})
	op := decode[model.Operation](t, env.Data)

	w, _ := h.do(secretary, http.MethodPost, "/api/v1/operations/"+op.ID.String()+"/cancel", gin.H{"reason": "no theatre"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = h.do(h.as(model.RoleAccountant), http.MethodPatch, "/api/v1/payments/"+op.PaymentID.String(), gin.H{"paid_amount": 2000})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = h.do(secretary, http.MethodGet, "/api/v1/payments/"+op.PaymentID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[model.Payment](t, env.Data)
	assert.True(t, p.IsClosed)
	assert.Equal(t, model.PaymentStatusUnpaid, p.Status)
}

func TestVisitGateOverHTTP(t *testing.T) {
	h := newHarness(t)
	secretary := h.as(model.RoleSecretary)
	patient := uuid.New()

	w, env := h.do(secretary, http.MethodPost, "/api/v1/visits", gin.H{
		"patient_id":   patient,
		"doctor_id":    h.surgeon.UserID,
		"reason":       "fever",
		"total_amount": 500,
		"paid_amount":  400,
	})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "error", env.Status)
	assert.Contains(t, env.Details, "missing")

	w, _ = h.do(secretary, http.MethodPost, "/api/v1/visits", gin.H{
		"patient_id":   patient,
		"doctor_id":    h.surgeon.UserID,
		"reason":       "fever",
		"total_amount": -1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = h.do(secretary, http.MethodPost, "/api/v1/visits", gin.H{
		"patient_id":   patient,
		"doctor_id":    h.surgeon.UserID,
		"reason":       "fever",
		"total_amount": 500,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	v := decode[model.VisitWithPayment](t, env.Data)
	assert.Equal(t, model.VisitStatusWaitingConsultation, v.Status)
	require.NotNil(t, v.Payment)
	assert.Equal(t, model.PaymentStatusPaid, v.Payment.Status)

	other := model.Actor{UserID: uuid.New(), Roles: []model.Role{model.RoleDoctor}}
	w, _ = h.do(&other, http.MethodGet, "/api/v1/visits/"+v.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = h.do(secretary, http.MethodGet, "/api/v1/visits/today/all", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), v.ID.String())
	w, env = h.do(&h.surgeon, http.MethodGet, "/api/v1/visits/today/mine", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), v.ID.String())
	w, _ = h.do(h.as(model.RoleLabTechnician), http.MethodGet, "/api/v1/visits/today/all", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	today := time.Now().UTC().Format("2006-01-02")
	w, env = h.do(secretary, http.MethodGet, "/api/v1/visits?from="+today+"&to="+today, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), v.ID.String())
	w, _ = h.do(secretary, http.MethodGet, "/api/v1/visits?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = h.do(&h.surgeon, http.MethodPost, "/api/v1/visits/"+v.ID.String()+"/finish", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.VisitStatusFinished, decode[model.VisitWithPayment](t, env.Data).Status)

	w, env = h.do(&h.surgeon, http.MethodGet, "/api/v1/visits/today/mine", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, string(env.Data), v.ID.String())

	w, env = h.do(&h.surgeon, http.MethodGet, "/api/v1/patients/"+patient.String()+"/medical-record", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), v.ID.String())
}

func TestPaymentUpdateIdempotencyOverHTTP(t *testing.T) {
	h := newHarness(t)
	secretary := h.as(model.RoleSecretary)

	_, env := h.do(secretary, http.MethodPost, "/api/v1/operations", gin.H{
		"patient_id":     uuid.New(),
		"surgeon_id":     h.surgeon.UserID,
		"operation_type": "Biopsy",
		"scheduled_date": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"cost":           1000,
	})
	op := decode[model.Operation](t, env.Data)
	path := "/api/v1/payments/" + op.PaymentID.String()

	body := gin.H{"paid_amount": 300, "repayment": gin.H{"amount": 300, "method": "mobile_money"}}
	first, _ := h.do(secretary, http.MethodPatch, path, body, middleware.HeaderIdempotencyKey, "abc")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second, env := h.do(secretary, http.MethodPatch, path, body, middleware.HeaderIdempotencyKey, "abc")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(middleware.HeaderIdempotentReplay))

	p := decode[model.Payment](t, env.Data)
	assert.Equal(t, model.PaymentStatusPartial, p.Status)
	assert.Len(t, p.Repayments, 1)

	w, env := h.do(h.as(model.RoleAccountant), http.MethodGet, "/api/v1/payments/debtors", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), op.PaymentID.String())

	w, _ = h.do(secretary, http.MethodPatch, path, gin.H{"discount_percentage": 150})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.do(h.as(model.RoleLabTechnician), http.MethodGet, "/api/v1/payments", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAnalysisResultFileOverHTTP(t *testing.T) {
	h := newHarness(t)
	tech := h.as(model.RoleLabTechnician)

	w, env := h.do(&h.surgeon, http.MethodPost, "/api/v1/analyses", gin.H{
		"patient_id": uuid.New(),
		"items":      []gin.H{{"name": "CBC", "price": 150}, {"name": "Glucose", "price": 50}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	a := decode[model.Analysis](t, env.Data)
	path := "/api/v1/analyses/" + a.ID.String()

	w, _ = h.do(tech, http.MethodPost, path+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	content := []byte("%PDF-1.4 result")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="result.pdf"`},
		"Content-Type":        {"application/pdf"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path+"/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w, env = h.send(tech, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	uploaded := decode[model.Analysis](t, env.Data)
	require.NotNil(t, uploaded.ResultFile)
	assert.Equal(t, a.AnalysisNumber+".pdf", uploaded.ResultFile.FileName)

	w, _ = h.do(tech, http.MethodGet, path+"/file", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "result.pdf")

	w, _ = h.do(&h.surgeon, http.MethodDelete, path+"/file", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = h.do(tech, http.MethodDelete, path+"/file", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = h.do(tech, http.MethodGet, path+"/file", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicEndpoints(t *testing.T) {
	h := newHarness(t)

	w, _ := h.do(nil, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = h.do(nil, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = h.do(nil, http.MethodGet, "/api/v1/payments", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = h.do(nil, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf("cmc_http_requests_total{method=%q", "GET"))
}
