// Package policy centralizes role checks for every billing operation.
package policy

import (
	"strings"

	"lounge_backend/internal/models"
)

// Role is the caller role supplied by the auth service.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// ParseRole normalizes a role claim; unknown roles are returned as-is and are denied everything.
func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// Operation names an action on a core resource.
type Operation string

const (
	OpPricingRuleView   Operation = "pricing_rule.view"
	OpPricingRuleCreate Operation = "pricing_rule.create"

	OpTableView   Operation = "table.view"
	OpTableManage Operation = "table.manage"

	OpSessionStart     Operation = "session.start"
	OpSessionQuote     Operation = "session.quote"
	OpSessionAddExtras Operation = "session.add_extras"
	OpSessionStop      Operation = "session.stop"
	OpSessionDiscard   Operation = "session.discard"

	OpItemView   Operation = "item.view"
	OpItemManage Operation = "item.manage"

	OpStockView Operation = "stock.view"
	OpStockPost Operation = "stock.post"

	OpTransactionView      Operation = "transaction.view"
	OpTransactionCreate    Operation = "transaction.create"
	OpTransactionSetStatus Operation = "transaction.set_status"
	OpTransactionEditLines Operation = "transaction.edit_lines"
	OpTransactionTransfer  Operation = "transaction.transfer"

	OpReportView Operation = "report.view"
)

// ResourceState is what the caller knows about the target when asking. Zero fields are unknown.
type ResourceState struct {
	TransactionStatus models.TransactionStatus
	TargetStatus      models.TransactionStatus
	MovementKind      models.MovementKind
}

var staffOperations = map[Operation]bool{
	OpPricingRuleView:      true,
	OpTableView:            true,
	OpSessionStart:         true,
	OpSessionQuote:         true,
	OpSessionAddExtras:     true,
	OpSessionStop:          true,
	OpSessionDiscard:       true,
	OpItemView:             true,
	OpStockView:            true,
	OpStockPost:            true,
	OpTransactionView:      true,
	OpTransactionCreate:    true,
	OpTransactionSetStatus: true,
	OpTransactionEditLines: true,
	OpTransactionTransfer:  true,
}

// CanPerform reports whether role may run op against a resource in the given state.
func CanPerform(role Role, op Operation, state ResourceState) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleManager:
		return op != OpPricingRuleCreate
	case RoleStaff:
		if !staffOperations[op] {
			return false
		}
		switch op {
		case OpStockPost:
			return state.MovementKind == models.MovementIn || state.MovementKind == models.MovementOut
		case OpTransactionSetStatus:
			// reopening a paid bill is a manager action
			return state.TransactionStatus != models.TransactionCompleted
		}
		return true
	default:
		return false
	}
}
