// Package handler holds the helpers shared by the HTTP handlers of each
// domain. Handlers only translate between JSON and service calls.
package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/middleware"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/billing"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/httputil"
)

const dateLayout = "2006-01-02"

// ParseID reads a uuid path parameter, answering 400 when it is malformed
func ParseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+param, err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON decodes and validates the request body
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return false
	}
	return true
}

// BindQuery decodes and validates the query string
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return false
	}
	return true
}

// Actor returns the authenticated actor. Routes are always mounted behind
// the auth middleware, so a missing actor yields the zero value.
func Actor(c *gin.Context) model.Actor {
	actor, _ := middleware.ActorFrom(c)
	return actor
}

// OptionalUUID parses an optional query value
func OptionalUUID(value, field string) (*uuid.UUID, error) {
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, apperrors.BadRequest("invalid "+field, err)
	}
	return &id, nil
}

// DateRange parses optional YYYY-MM-DD bounds. The upper bound covers the
// whole day.
func DateRange(from, to string) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	if from != "" {
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			return nil, nil, apperrors.BadRequest("invalid from date", err)
		}
		start = &t
	}
	if to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			return nil, nil, apperrors.BadRequest("invalid to date", err)
		}
		t = t.Add(24*time.Hour - time.Nanosecond)
		end = &t
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, apperrors.BadRequest("to date is before from date", nil)
	}
	return start, end, nil
}

// SplitList splits a comma separated query value, dropping blanks
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type RepaymentRequest struct {
	Amount decimal.Decimal     `json:"amount" binding:"decimal_gte0"`
	Method model.PaymentMethod `json:"method" binding:"omitempty,oneof=cash mobile_money"`
	Note   string              `json:"note" binding:"max=500"`
}

// PaymentUpdateRequest is the body shared by payment and operation payment
// updates
type PaymentUpdateRequest struct {
	PaidAmount         *decimal.Decimal    `json:"paid_amount" binding:"omitempty,decimal_gte0"`
	DiscountPercentage *decimal.Decimal    `json:"discount_percentage" binding:"omitempty,percent"`
	PaymentMethod      model.PaymentMethod `json:"payment_method" binding:"omitempty,oneof=cash mobile_money"`
	Repayment          *RepaymentRequest   `json:"repayment"`
}

func (r PaymentUpdateRequest) ToUpdate(actor model.Actor) billing.PaymentUpdate {
	upd := billing.PaymentUpdate{
		PaidAmount:         r.PaidAmount,
		DiscountPercentage: r.DiscountPercentage,
		Method:             r.PaymentMethod,
		Actor:              actor,
	}
	if r.Repayment != nil {
		upd.Repayment = &model.Repayment{
			Amount: r.Repayment.Amount,
			Method: r.Repayment.Method,
			Note:   r.Repayment.Note,
		}
	}
	return upd
}
