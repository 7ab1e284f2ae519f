// Package pricing converts elapsed table time into a charge breakdown.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"lounge_backend/internal/models"
	"lounge_backend/pkg/utils"
)

var ErrInvalidRule = errors.New("invalid pricing rule")

// Validate checks that exactly one of Rate and Flexible is populated, matching ChargeMode,
// and that every rate is non-negative.
func Validate(rule *models.PricingRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is required", ErrInvalidRule)
	}
	switch rule.ChargeMode {
	case models.ChargePerMinute, models.ChargePerHalfHour, models.ChargePerHour:
		if rule.Rate == nil || rule.Flexible != nil {
			return fmt.Errorf("%w: %s requires rate and no flexible block", ErrInvalidRule, rule.ChargeMode)
		}
		if *rule.Rate < 0 {
			return fmt.Errorf("%w: rate must not be negative", ErrInvalidRule)
		}
	case models.ChargeFlexible:
		if rule.Flexible == nil || rule.Rate != nil {
			return fmt.Errorf("%w: flexible requires the flexible block and no rate", ErrInvalidRule)
		}
		f := rule.Flexible
		if f.HalfHourRate < 0 || f.HourRate < 0 {
			return fmt.Errorf("%w: flexible rates must not be negative", ErrInvalidRule)
		}
		if f.ThresholdMinutes <= 0 {
			return fmt.Errorf("%w: threshold_minutes must be positive", ErrInvalidRule)
		}
	default:
		return fmt.Errorf("%w: unknown charge mode %q", ErrInvalidRule, rule.ChargeMode)
	}
	if rule.ExtraPersonRate < 0 || rule.ExtraControllerRate < 0 {
		return fmt.Errorf("%w: extra rates must not be negative", ErrInvalidRule)
	}
	if rule.IncludedPlayers < 0 || rule.IncludedControllers < 0 {
		return fmt.Errorf("%w: included counts must not be negative", ErrInvalidRule)
	}
	return nil
}

// ElapsedMinutes is the wall-clock duration between start and now in minutes, fractional.
// A clock that runs backwards yields zero.
func ElapsedMinutes(startedAt, now time.Time) float64 {
	d := now.Sub(startedAt)
	if d < 0 {
		return 0
	}
	return d.Minutes()
}

// Evaluate prices a session of elapsedMinutes with the given extras. Elapsed time is rounded up
// to a whole minute first; each charge unit is then rounded up, so any excess over a unit
// boundary bills a full unit.
func Evaluate(rule *models.PricingRule, elapsedMinutes float64, extraPlayers, extraControllers int) (models.ChargeBreakdown, error) {
	if err := Validate(rule); err != nil {
		return models.ChargeBreakdown{}, err
	}
	if elapsedMinutes < 0 || math.IsNaN(elapsedMinutes) || math.IsInf(elapsedMinutes, 0) {
		return models.ChargeBreakdown{}, fmt.Errorf("%w: elapsed minutes must be a non-negative number", ErrInvalidRule)
	}
	if extraPlayers < 0 {
		extraPlayers = 0
	}
	if extraControllers < 0 {
		extraControllers = 0
	}

	billed := int(math.Ceil(elapsedMinutes))

	var base float64
	switch rule.ChargeMode {
	case models.ChargePerMinute:
		base = float64(billed) * *rule.Rate
	case models.ChargePerHalfHour:
		base = float64(unitsOf(billed, 30)) * *rule.Rate
	case models.ChargePerHour:
		base = float64(unitsOf(billed, 60)) * *rule.Rate
	case models.ChargeFlexible:
		f := rule.Flexible
		if billed <= f.ThresholdMinutes {
			base = f.HalfHourRate
		} else {
			base = float64(unitsOf(billed, 60)) * f.HourRate
		}
	}

	out := models.ChargeBreakdown{
		BilledMinutes:         billed,
		BaseCharge:            utils.RoundMoney(base),
		ExtraPlayerCharge:     utils.RoundMoney(float64(extraPlayers) * rule.ExtraPersonRate),
		ExtraControllerCharge: utils.RoundMoney(float64(extraControllers) * rule.ExtraControllerRate),
	}
	out.Total = utils.RoundMoney(out.BaseCharge + out.ExtraPlayerCharge + out.ExtraControllerCharge)
	return out, nil
}

// unitsOf is ceil(minutes / unit) for whole minutes.
func unitsOf(minutes, unit int) int {
	return (minutes + unit - 1) / unit
}
