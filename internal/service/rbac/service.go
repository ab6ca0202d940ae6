package rbac

import (
	"fmt"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
)

type Action string

const (
	ActionPaymentList   Action = "payment.list"
	ActionPaymentUpdate Action = "payment.update"

	ActionOperationSchedule         Action = "operation.schedule"
	ActionOperationUpdatePayment    Action = "operation.update_payment"
	ActionOperationStart            Action = "operation.start"
	ActionOperationComplete         Action = "operation.complete"
	ActionOperationCancel           Action = "operation.cancel"
	ActionOperationMine             Action = "operation.mine"
	ActionOperationList             Action = "operation.list"
	ActionOperationPaymentDashboard Action = "operation.payment_dashboard"

	ActionAnalysisCreate     Action = "analysis.create"
	ActionAnalysisRead       Action = "analysis.read"
	ActionAnalysisStart      Action = "analysis.start"
	ActionAnalysisResults    Action = "analysis.results"
	ActionAnalysisValidate   Action = "analysis.validate"
	ActionAnalysisDashboard  Action = "analysis.dashboard"
	ActionAnalysisUploadFile Action = "analysis.upload_file"
	ActionAnalysisDeleteFile Action = "analysis.delete_file"

	ActionVisitCreate Action = "visit.create"
	ActionVisitRead   Action = "visit.read"
	ActionVisitList   Action = "visit.list"
	ActionVisitUpdate Action = "visit.update"
	ActionVisitFinish Action = "visit.finish"
	ActionVisitToday  Action = "visit.today"
	ActionVisitMine   Action = "visit.mine"

	ActionMedicalRecordRead Action = "medical_record.read"
)

// Rule grants an action to Allow roles unless the actor holds a Deny role.
// An empty Allow set admits any authenticated actor.
type Rule struct {
	Allow []model.Role
	Deny  []model.Role
}

// Policy maps each action to its rule
type Policy map[Action]Rule

func roles(r ...model.Role) []model.Role { return r }

// DefaultPolicy is the clinic's staff policy
func DefaultPolicy() Policy {
	return Policy{
		ActionPaymentList:   {Allow: roles(model.RoleSecretary, model.RoleAccountant)},
		ActionPaymentUpdate: {Allow: roles(model.RoleSecretary, model.RoleAccountant)},

		ActionOperationSchedule:         {Allow: roles(model.RoleDoctor, model.RoleSecretary)},
		ActionOperationUpdatePayment:    {Allow: roles(model.RoleSecretary, model.RoleAccountant)},
		ActionOperationStart:            {Allow: roles(model.RoleDoctor)},
		ActionOperationComplete:         {Allow: roles(model.RoleDoctor)},
		ActionOperationCancel:           {Allow: roles(model.RoleSecretary, model.RoleAdmin), Deny: roles(model.RoleDoctor)},
		ActionOperationMine:             {Allow: roles(model.RoleDoctor)},
		ActionOperationList:             {Allow: roles(model.RoleSecretary, model.RoleAccountant, model.RoleAdmin)},
		ActionOperationPaymentDashboard: {Allow: roles(model.RoleSecretary, model.RoleAccountant)},

		ActionAnalysisCreate:     {Allow: roles(model.RoleSecretary, model.RoleDoctor)},
		ActionAnalysisRead:       {},
		ActionAnalysisStart:      {Allow: roles(model.RoleLabTechnician)},
		ActionAnalysisResults:    {Allow: roles(model.RoleLabTechnician)},
		ActionAnalysisValidate:   {Allow: roles(model.RoleDoctor)},
		ActionAnalysisDashboard:  {Allow: roles(model.RoleLabTechnician)},
		ActionAnalysisUploadFile: {Allow: roles(model.RoleLabTechnician, model.RoleAdmin)},
		ActionAnalysisDeleteFile: {Allow: roles(model.RoleLabTechnician, model.RoleAdmin)},

		ActionVisitCreate: {Allow: roles(model.RoleSecretary, model.RoleDoctor)},
		ActionVisitRead:   {},
		ActionVisitList:   {Allow: roles(model.RoleSecretary, model.RoleDoctor)},
		ActionVisitUpdate: {Allow: roles(model.RoleDoctor, model.RoleSecretary, model.RoleAdmin)},
		ActionVisitFinish: {Allow: roles(model.RoleDoctor)},
		ActionVisitToday:  {Allow: roles(model.RoleSecretary, model.RoleAdmin)},
		ActionVisitMine:   {Allow: roles(model.RoleDoctor)},

		ActionMedicalRecordRead: {Allow: roles(model.RoleSecretary, model.RoleDoctor)},
	}
}

type Service struct {
	policy Policy
}

func NewService(policy Policy) *Service {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Service{policy: policy}
}

// Can reports whether actor may perform action. Unknown actions are denied.
func (s *Service) Can(actor model.Actor, action Action) bool {
	rule, ok := s.policy[action]
	if !ok {
		return false
	}
	for _, r := range rule.Deny {
		if actor.HasRole(r) {
			return false
		}
	}
	if len(rule.Allow) == 0 {
		return len(actor.Roles) > 0
	}
	for _, r := range rule.Allow {
		if actor.HasRole(r) {
			return true
		}
	}
	return false
}

// Authorize returns a Forbidden error when actor may not perform action
func (s *Service) Authorize(actor model.Actor, action Action) error {
	if s.Can(actor, action) {
		return nil
	}
	return apperrors.Forbidden(fmt.Sprintf("role not allowed to %s", action))
}
