package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/repository"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
)

type paymentRepository struct {
	s *Store
}

func NewPaymentRepository(s *Store) repository.PaymentRepository {
	return &paymentRepository{s: s}
}

func clonePayment(p model.Payment) model.Payment {
	p.Details = append(model.PaymentDetails(nil), p.Details...)
	p.Repayments = append(model.Repayments(nil), p.Repayments...)
	return p
}

func (r *paymentRepository) Create(_ context.Context, p *model.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[p.ID]; ok {
		return apperrors.Conflict("payment already exists", nil)
	}
	for _, existing := range r.s.payments {
		if existing.PaymentNumber == p.PaymentNumber {
			return apperrors.Conflict("duplicate payment number "+p.PaymentNumber, nil)
		}
	}
	r.s.payments[p.ID] = clonePayment(*p)
	return nil
}

func (r *paymentRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, apperrors.NotFound("payment", nil)
	}
	out := clonePayment(p)
	return &out, nil
}

func (r *paymentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *paymentRepository) Update(_ context.Context, p *model.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[p.ID]; !ok {
		return apperrors.NotFound("payment", nil)
	}
	r.s.payments[p.ID] = clonePayment(*p)
	return nil
}

func (r *paymentRepository) matching(filter model.PaymentFilter) []*model.Payment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.s.payments {
		if filter.PatientID != nil && p.PatientID != *filter.PatientID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.HasDebt != nil && p.HasDebt != *filter.HasDebt {
			continue
		}
		if filter.Open && (p.IsClosed || p.IsRefunded) {
			continue
		}
		if !inRange(p.CreatedAt, filter.From, filter.To) {
			continue
		}
		c := clonePayment(p)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *paymentRepository) List(_ context.Context, filter model.PaymentFilter) ([]*model.Payment, error) {
	return paginate(r.matching(filter), filter.Pagination), nil
}

func (r *paymentRepository) Summary(_ context.Context, filter model.PaymentFilter) (*model.PaymentSummary, error) {
	s := &model.PaymentSummary{
		TotalBilled:    decimal.Zero,
		TotalDiscount:  decimal.Zero,
		TotalCollected: decimal.Zero,
		Outstanding:    decimal.Zero,
		TotalCredit:    decimal.Zero,
		TotalRefunded:  decimal.Zero,
	}
	for _, p := range r.matching(filter) {
		if p.IsRefunded {
			s.RefundedCount++
			s.TotalRefunded = s.TotalRefunded.Add(p.RefundAmount)
		}
		if p.ExcludeFromStats {
			continue
		}
		s.Count++
		s.TotalBilled = s.TotalBilled.Add(p.TotalAmount)
		s.TotalDiscount = s.TotalDiscount.Add(p.DiscountAmount)
		s.TotalCollected = s.TotalCollected.Add(p.PaidAmount)
		s.Outstanding = s.Outstanding.Add(p.RemainingAmount)
		s.TotalCredit = s.TotalCredit.Add(p.CreditAmount)
		if p.HasDebt {
			s.DebtorCount++
		}
	}
	return s, nil
}
