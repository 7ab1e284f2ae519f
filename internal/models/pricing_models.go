package models

import "time"

// ChargeMode selects how elapsed table time is converted into a base charge.
type ChargeMode string

const (
	ChargePerMinute   ChargeMode = "per_minute"
	ChargePerHalfHour ChargeMode = "per_half_hour"
	ChargePerHour     ChargeMode = "per_hour"
	ChargeFlexible    ChargeMode = "flexible"
)

// IsValidChargeMode checks if the provided string names a ChargeMode.
func IsValidChargeMode(mode string) bool {
	switch ChargeMode(mode) {
	case ChargePerMinute, ChargePerHalfHour, ChargePerHour, ChargeFlexible:
		return true
	default:
		return false
	}
}

// FlexibleRate charges a flat grace rate up to ThresholdMinutes and full hours beyond it.
type FlexibleRate struct {
	HalfHourRate     float64 `json:"half_hour_rate"`
	HourRate         float64 `json:"hour_rate"`
	ThresholdMinutes int     `json:"threshold_minutes"`
}

// PricingRule is immutable once created. Exactly one of Rate and Flexible is set,
// matching ChargeMode.
type PricingRule struct {
	ID                  int64         `json:"id" db:"id"`
	Name                string        `json:"name" db:"name"`
	ChargeMode          ChargeMode    `json:"charge_mode" db:"charge_mode"`
	Rate                *float64      `json:"rate,omitempty" db:"rate"`
	Flexible            *FlexibleRate `json:"flexible,omitempty"`
	IncludedPlayers     int           `json:"included_players" db:"included_players"`
	IncludedControllers int           `json:"included_controllers" db:"included_controllers"`
	ExtraPersonRate     float64       `json:"extra_person_rate" db:"extra_person_rate"`
	ExtraControllerRate float64       `json:"extra_controller_rate" db:"extra_controller_rate"`
	CreatedAt           time.Time     `json:"created_at" db:"created_at"`
}

// ChargeBreakdown is the output of evaluating a PricingRule.
type ChargeBreakdown struct {
	BilledMinutes         int     `json:"billed_minutes"`
	BaseCharge            float64 `json:"base_charge"`
	ExtraPlayerCharge     float64 `json:"extra_player_charge"`
	ExtraControllerCharge float64 `json:"extra_controller_charge"`
	Total                 float64 `json:"total"`
}
