package models

import "time"

// TableStatus is the session state of a physical table.
type TableStatus string

const (
	TableStatusOff TableStatus = "off"
	TableStatusOn  TableStatus = "on"
)

// GameTable represents a physical table or console in the lounge together with its live session.
// While Off, the session fields are either empty or hold the last closed, not yet billed session
// (EndedAt set).
type GameTable struct {
	ID                 int64       `json:"id" db:"id"`
	Name               string      `json:"name" db:"name"`
	PricingRuleID      int64       `json:"pricing_rule_id" db:"pricing_rule_id"`
	Status             TableStatus `json:"status" db:"status"`
	OccupantCustomerID *int64      `json:"occupant_customer_id,omitempty" db:"occupant_customer_id"`
	StartedAt          *time.Time  `json:"started_at,omitempty" db:"started_at"`
	EndedAt            *time.Time  `json:"ended_at,omitempty" db:"ended_at"`
	AccruedCharge      float64     `json:"accrued_charge" db:"accrued_charge"`
	ExtraPlayers       int         `json:"extra_players" db:"extra_players"`
	ExtraControllers   int         `json:"extra_controllers" db:"extra_controllers"`
	OpenedByOperatorID *int64      `json:"opened_by_operator_id,omitempty" db:"opened_by_operator_id"`
	IsActive           bool        `json:"is_active" db:"is_active"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`

	PricingRule *PricingRule  `json:"pricing_rule,omitempty"`
	LiveQuote   *SessionQuote `json:"live_quote,omitempty"`
}

// HasClosedSession reports whether the table holds a stopped session that has not been billed.
func (t *GameTable) HasClosedSession() bool {
	return t.Status == TableStatusOff && t.StartedAt != nil && t.EndedAt != nil
}

// ClearSession resets every session field to its Off default.
func (t *GameTable) ClearSession() {
	t.Status = TableStatusOff
	t.OccupantCustomerID = nil
	t.StartedAt = nil
	t.EndedAt = nil
	t.AccruedCharge = 0
	t.ExtraPlayers = 0
	t.ExtraControllers = 0
	t.OpenedByOperatorID = nil
}

// SessionQuote is a point-in-time, non-persisted computation of what a session costs.
type SessionQuote struct {
	TableID          int64           `json:"table_id"`
	PricingRuleID    int64           `json:"pricing_rule_id"`
	StartedAt        time.Time       `json:"started_at"`
	QuotedAt         time.Time       `json:"quoted_at"`
	ElapsedMinutes   int             `json:"elapsed_minutes"`
	ExtraPlayers     int             `json:"extra_players"`
	ExtraControllers int             `json:"extra_controllers"`
	Charges          ChargeBreakdown `json:"charges"`
}

// SessionDiscard is the audit record of a voided session.
type SessionDiscard struct {
	ID                 int64     `json:"id" db:"id"`
	TableID            int64     `json:"table_id" db:"table_id"`
	OccupantCustomerID *int64    `json:"occupant_customer_id,omitempty" db:"occupant_customer_id"`
	StartedAt          time.Time `json:"started_at" db:"started_at"`
	DiscardedAt        time.Time `json:"discarded_at" db:"discarded_at"`
	Reason             string    `json:"reason" db:"reason"`
	Note               *string   `json:"note,omitempty" db:"note"`
	OperatorID         int64     `json:"operator_id" db:"operator_id"`
}

// TableFilters defines the available filters for listing tables.
type TableFilters struct {
	Status    *TableStatus `form:"status"`
	Name      *string      `form:"name"`
	WithQuote bool         `form:"with_quote"`
}
