package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Changes    json.RawMessage `json:"changes" db:"changes"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate   = "create"
	AuditActionUpdate   = "update"
	AuditActionStart    = "start"
	AuditActionComplete = "complete"
	AuditActionValidate = "validate"
	AuditActionCancel   = "cancel"
	AuditActionRefund   = "refund"
	AuditActionUpload   = "upload"
	AuditActionDelete   = "delete"
	AuditActionRead     = "read"

	// Entity types
	AuditEntityPayment   = "payment"
	AuditEntityOperation = "operation"
	AuditEntityAnalysis  = "analysis"
	AuditEntityVisit     = "visit"
	AuditEntityRecord    = "medical_record"
)
