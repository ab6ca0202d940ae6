package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/audit"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/billing"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/sequence"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/storage"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/event"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/logger"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/metrics"
)

// DefaultMaxFileSize is the upload limit for result documents
const DefaultMaxFileSize int64 = 2 << 20

var allowedTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
}

type Deps struct {
	Tx          repository.Transactor
	Analyses    repository.AnalysisRepository
	Records     repository.MedicalRecordRepository
	Billing     *billing.Service
	Numbers     sequence.Generator
	Bus         event.Publisher
	Files       storage.FileStore
	MaxFileSize int64
	Auditor     *audit.Service
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
}

type Service struct {
	Deps
	now func() time.Time
}

func NewService(deps Deps) *Service {
	if deps.MaxFileSize <= 0 {
		deps.MaxFileSize = DefaultMaxFileSize
	}
	return &Service{Deps: deps, now: time.Now}
}

type CreateInput struct {
	PatientID          uuid.UUID
	DoctorID           uuid.UUID
	VisitID            *uuid.UUID
	Items              []model.AnalysisItem
	DiscountPercentage *decimal.Decimal
	PaidAmount         *decimal.Decimal
	Method             model.PaymentMethod
	Actor              model.Actor
}

type ResultsInput struct {
	Items             []model.ResultEntry
	TechnicianComment string
}

type UploadInput struct {
	OriginalName string
	ContentType  string
	Size         int64
	Body         io.Reader
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Analysis, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperrors.Validation("patient is required")
	}
	if len(in.Items) == 0 {
		return nil, apperrors.Validation("at least one analysis item is required")
	}

	total := decimal.Zero
	for _, item := range in.Items {
		if strings.TrimSpace(item.Name) == "" {
			return nil, apperrors.Validation("analysis item name is required")
		}
		if item.Price.IsNegative() {
			return nil, apperrors.Validation("analysis item price must not be negative").WithDetail("item", item.Name)
		}
		total = total.Add(item.Price)
	}

	doctor := in.DoctorID
	if doctor == uuid.Nil {
		doctor = in.Actor.UserID
	}

	a := &model.Analysis{
		PatientID:  in.PatientID,
		DoctorID:   doctor,
		VisitID:    in.VisitID,
		Items:      append(model.AnalysisItems(nil), in.Items...),
		TotalPrice: total,
		Status:     model.AnalysisStatusPending,
		CreatedBy:  in.Actor.UserID,
	}
	a.Touch(s.now())

	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		number, err := s.Numbers.Next(ctx, sequence.Analysis)
		if err != nil {
			return err
		}
		a.AnalysisNumber = number

		details := make(model.PaymentDetails, 0, len(a.Items))
		for _, item := range a.Items {
			details = append(details, model.PaymentDetail{
				Kind:        model.DetailKindAnalysis,
				ReferenceID: &a.ID,
				Description: item.Name,
				Amount:      item.Price,
			})
		}
		payment, err := s.Billing.CreatePayment(ctx, billing.CreatePaymentInput{
			PatientID:          a.PatientID,
			VisitID:            a.VisitID,
			Details:            details,
			TotalAmount:        &total,
			DiscountPercentage: in.DiscountPercentage,
			PaidAmount:         in.PaidAmount,
			Method:             in.Method,
			Actor:              in.Actor,
		})
		if err != nil {
			return err
		}
		a.PaymentID = payment.ID

		if err := s.Analyses.Create(ctx, a); err != nil {
			return fmt.Errorf("failed to create analysis: %w", err)
		}
		if err := s.Records.Append(ctx, a.PatientID, model.RecordEntryAnalysis, a.ID); err != nil {
			return fmt.Errorf("failed to update medical record: %w", err)
		}
		return s.transitioned(ctx, a, "", model.AuditActionCreate, event.AnalysisCreated, in.Actor.UserID)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Analysis ordered", "analysis_number", a.AnalysisNumber, "items", len(a.Items))
	return a, nil
}

// Start assigns the analysis to the technician picking it up
func (s *Service) Start(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Analysis, error) {
	return s.mutate(ctx, id, model.AnalysisStatusPending, "start", func(a *model.Analysis, now time.Time) (string, event.Type) {
		tech := actor.UserID
		a.TechnicianID = &tech
		a.ProcessingDate = &now
		a.Status = model.AnalysisStatusInProgress
		return model.AuditActionStart, event.AnalysisStarted
	}, actor)
}

// RecordResults merges measured values into the items of the same name.
// Entries naming no existing item are ignored.
func (s *Service) RecordResults(ctx context.Context, id uuid.UUID, in ResultsInput, actor model.Actor) (*model.Analysis, error) {
	return s.mutate(ctx, id, model.AnalysisStatusInProgress, "record results for", func(a *model.Analysis, now time.Time) (string, event.Type) {
		for _, entry := range in.Items {
			for i := range a.Items {
				if a.Items[i].Name != entry.Name {
					continue
				}
				if entry.Value != "" {
					a.Items[i].Value = entry.Value
				}
				if entry.Interpretation != "" {
					a.Items[i].Interpretation = entry.Interpretation
				}
				if entry.Notes != "" {
					a.Items[i].Notes = entry.Notes
				}
			}
		}
		a.ResultDate = &now
		a.TechnicianComment = in.TechnicianComment
		if a.TechnicianID == nil {
			tech := actor.UserID
			a.TechnicianID = &tech
		}
		a.Status = model.AnalysisStatusCompleted
		return model.AuditActionComplete, event.AnalysisCompleted
	}, actor)
}

func (s *Service) Validate(ctx context.Context, id uuid.UUID, doctorComment string, actor model.Actor) (*model.Analysis, error) {
	return s.mutate(ctx, id, model.AnalysisStatusCompleted, "validate", func(a *model.Analysis, now time.Time) (string, event.Type) {
		by := actor.UserID
		a.ValidationDate = &now
		a.ValidatedBy = &by
		a.DoctorComment = doctorComment
		a.Status = model.AnalysisStatusValidated
		return model.AuditActionValidate, event.AnalysisValidated
	}, actor)
}

type mutation func(a *model.Analysis, now time.Time) (action string, t event.Type)

func (s *Service) mutate(ctx context.Context, id uuid.UUID, from model.AnalysisStatus, verb string, apply mutation, actor model.Actor) (*model.Analysis, error) {
	var a *model.Analysis
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.Analyses.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != from {
			return apperrors.InvalidTransition("analysis", string(a.Status), verb)
		}

		now := s.now()
		action, t := apply(a, now)
		a.UpdatedAt = now
		if err := s.Analyses.Update(ctx, a); err != nil {
			return fmt.Errorf("failed to update analysis: %w", err)
		}
		return s.transitioned(ctx, a, from, action, t, actor.UserID)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AttachResultFile stores the result document as <analysisNumber><ext>,
// replacing any earlier one.
func (s *Service) AttachResultFile(ctx context.Context, id uuid.UUID, in UploadInput, actor model.Actor) (*model.Analysis, error) {
	ext := strings.ToLower(filepath.Ext(in.OriginalName))
	types, ok := allowedTypes[ext]
	if !ok {
		return nil, apperrors.Validation("only pdf, doc and docx files are accepted").WithDetail("extension", ext)
	}
	if in.ContentType != "" && !contains(types, in.ContentType) {
		return nil, apperrors.Validation("file content type does not match its extension").WithDetail("content_type", in.ContentType)
	}
	if in.Size > s.MaxFileSize {
		return nil, tooLarge(s.MaxFileSize)
	}

	var (
		a     *model.Analysis
		stale string
	)
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.Analyses.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !a.Status.AcceptsResultFile() {
			return apperrors.InvalidTransition("analysis", string(a.Status), "attach a result file to")
		}

		// The new file lands before the old one goes, so a failed upload
		// keeps the previous document readable.
		name := a.AnalysisNumber + ext
		if a.ResultFile != nil && a.ResultFile.FileName != name {
			stale = a.ResultFile.FileName
		}
		size, err := s.Files.Save(ctx, name, in.Body, s.MaxFileSize)
		if errors.Is(err, storage.ErrTooLarge) {
			return tooLarge(s.MaxFileSize)
		}
		if err != nil {
			return err
		}

		now := s.now()
		a.ResultFile = &model.ResultFile{
			FileName:     name,
			OriginalName: filepath.Base(in.OriginalName),
			ContentType:  types[0],
			Size:         size,
			UploadedAt:   now,
			UploadedBy:   actor.UserID,
		}
		a.UpdatedAt = now
		if err := s.Analyses.Update(ctx, a); err != nil {
			return fmt.Errorf("failed to update analysis: %w", err)
		}
		return s.Auditor.Log(ctx, actor.UserID, model.AuditActionUpload, model.AuditEntityAnalysis, a.ID,
			&audit.LogOptions{Changes: a.ResultFile})
	})
	if err != nil {
		return nil, err
	}
	if stale != "" {
		if err := s.Files.Delete(ctx, stale); err != nil {
			s.Logger.Warn("Previous result file left on disk", "analysis_number", a.AnalysisNumber, "file", stale, "error", err.Error())
		}
	}
	return a, nil
}

// OpenResultFile returns the stored document. The caller closes the reader.
func (s *Service) OpenResultFile(ctx context.Context, id uuid.UUID) (*model.ResultFile, io.ReadCloser, error) {
	a, err := s.Analyses.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if a.ResultFile == nil {
		return nil, nil, apperrors.NotFound("result file", nil)
	}
	rc, err := s.Files.Open(ctx, a.ResultFile.FileName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, apperrors.NotFound("result file", err)
	}
	if err != nil {
		return nil, nil, err
	}
	return a.ResultFile, rc, nil
}

func (s *Service) DeleteResultFile(ctx context.Context, id uuid.UUID, actor model.Actor) (*model.Analysis, error) {
	var a *model.Analysis
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.Analyses.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.ResultFile == nil {
			return apperrors.NotFound("result file", nil)
		}
		if err := s.Files.Delete(ctx, a.ResultFile.FileName); err != nil {
			return err
		}
		removed := a.ResultFile
		a.ResultFile = nil
		a.UpdatedAt = s.now()
		if err := s.Analyses.Update(ctx, a); err != nil {
			return fmt.Errorf("failed to update analysis: %w", err)
		}
		return s.Auditor.Log(ctx, actor.UserID, model.AuditActionDelete, model.AuditEntityAnalysis, a.ID,
			&audit.LogOptions{Changes: removed})
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) transitioned(ctx context.Context, a *model.Analysis, from model.AnalysisStatus, action string, t event.Type, actorID uuid.UUID) error {
	if err := s.Auditor.Log(ctx, actorID, action, model.AuditEntityAnalysis, a.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"from": from, "to": a.Status},
	}); err != nil {
		return err
	}
	if err := s.Bus.Publish(ctx, event.New(t, a.ID, event.StatusChangedPayload{
		ID: a.ID, From: string(from), To: string(a.Status), ActorID: actorID,
	})); err != nil {
		return err
	}
	s.Metrics.Transition(model.AuditEntityAnalysis, string(a.Status))
	return nil
}

func tooLarge(max int64) error {
	return apperrors.Validation("result file exceeds the upload limit").WithDetail("max_bytes", max)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
