/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

ROUNDING:
  Hour quantities are exact decimals internally. They are rounded to two
  places here and only here, at the serialization boundary.

SEE ALSO:
  - handlers.go: Uses these types
  - recovery/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/recovery-engine/recovery"
)

// =============================================================================
// BALANCE
// =============================================================================

// BalanceDTO is an employee's spendable overtime balance.
type BalanceDTO struct {
	EmployeeID        string      `json:"employee_id"`
	CumulativeHours   float64     `json:"cumulative_hours"`
	DailyWorkingHours float64     `json:"daily_working_hours"`
	ConversionRate    float64     `json:"conversion_rate"`
	PossibleDays      float64     `json:"possible_days"`
	Sources           []SourceDTO `json:"sources"`
}

// SourceDTO is one overtime transaction contributing to the balance.
type SourceDTO struct {
	OvertimeID     string  `json:"overtime_id"`
	Date           string  `json:"date"`
	EffectiveHours float64 `json:"effective_hours"`
	SpentLegacy    float64 `json:"spent_legacy_hours"`
	SpentGrant     float64 `json:"spent_grant_hours"`
	AvailableHours float64 `json:"available_hours"`
}

func toBalanceDTO(b *recovery.Balance) BalanceDTO {
	sources := make([]SourceDTO, len(b.Sources))
	for i, s := range b.Sources {
		sources[i] = SourceDTO{
			OvertimeID:     s.OvertimeID,
			Date:           s.Date.String(),
			EffectiveHours: round2(s.EffectiveHours),
			SpentLegacy:    round2(s.SpentLegacyHours),
			SpentGrant:     round2(s.SpentGrantHours),
			AvailableHours: round2(s.AvailableHours),
		}
	}
	return BalanceDTO{
		EmployeeID:        b.EmployeeID,
		CumulativeHours:   round2(b.CumulativeHours),
		DailyWorkingHours: round2(b.DailyWorkingHours),
		ConversionRate:    round2(b.ConversionRate),
		PossibleDays:      round2(b.PossibleDays),
		Sources:           sources,
	}
}

// =============================================================================
// GRANTS
// =============================================================================

// GrantDTO is a recovery grant in API responses.
type GrantDTO struct {
	ID             string  `json:"id"`
	EmployeeID     string  `json:"employee_id"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	DayCount       float64 `json:"day_count"`
	SourceHours    float64 `json:"source_hours"`
	ConversionRate float64 `json:"conversion_rate"`
	Status         string  `json:"status"`
	Notes          string  `json:"notes,omitempty"`
	ApprovedBy     string  `json:"approved_by,omitempty"`
	ApprovedAt     string  `json:"approved_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

func toGrantDTO(g *recovery.RecoveryGrant) GrantDTO {
	dto := GrantDTO{
		ID:             g.ID,
		EmployeeID:     g.EmployeeID,
		StartDate:      g.StartDate.String(),
		EndDate:        g.EndDate.String(),
		DayCount:       round2(g.DayCount),
		SourceHours:    round2(g.SourceHours),
		ConversionRate: round2(g.ConversionRate),
		Status:         string(g.Status),
		Notes:          g.Notes,
		ApprovedBy:     g.ApprovedBy,
		CreatedAt:      g.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      g.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if g.ApprovedAt != nil {
		dto.ApprovedAt = g.ApprovedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// EntryDTO is one ledger entry linking a grant to its funding source.
type EntryDTO struct {
	ID         string  `json:"id"`
	OvertimeID string  `json:"overtime_id"`
	GrantID    string  `json:"grant_id"`
	HoursUsed  float64 `json:"hours_used"`
}

func toEntryDTOs(entries []recovery.LedgerEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = EntryDTO{
			ID:         e.ID,
			OvertimeID: e.OvertimeID,
			GrantID:    e.GrantID,
			HoursUsed:  round2(e.HoursUsed),
		}
	}
	return dtos
}

// GrantDetailDTO is a grant plus the allocation that funded it.
type GrantDetailDTO struct {
	GrantDTO
	Entries []EntryDTO `json:"entries"`
}

// GrantListDTO is a page of grants plus the total match count.
type GrantListDTO struct {
	Items []GrantDTO `json:"items"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}

// SummaryDTO aggregates an employee's grants by status, in days.
type SummaryDTO struct {
	EmployeeID    string  `json:"employee_id"`
	TotalDays     float64 `json:"total_days"`
	PendingDays   float64 `json:"pending_days"`
	ApprovedDays  float64 `json:"approved_days"`
	UsedDays      float64 `json:"used_days"`
	AvailableDays float64 `json:"available_days"`
}

// BlockedDatesDTO lists the dates covered by pending or approved grants.
type BlockedDatesDTO struct {
	EmployeeID string   `json:"employee_id"`
	Dates      []string `json:"dates"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// ConvertRequest asks to convert overtime hours into recovery days.
type ConvertRequest struct {
	EmployeeID string  `json:"employee_id"`
	DayCount   float64 `json:"day_count"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	Notes      string  `json:"notes,omitempty"`
}

// CreateGrantRequest creates a grant without spending overtime.
type CreateGrantRequest struct {
	EmployeeID     string  `json:"employee_id"`
	DayCount       float64 `json:"day_count"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	SourceHours    float64 `json:"source_hours,omitempty"`
	ConversionRate float64 `json:"conversion_rate,omitempty"`
	Notes          string  `json:"notes,omitempty"`
}

// UpdateGrantRequest patches a pending grant. Absent fields are untouched.
type UpdateGrantRequest struct {
	StartDate *string  `json:"start_date,omitempty"`
	EndDate   *string  `json:"end_date,omitempty"`
	DayCount  *float64 `json:"day_count,omitempty"`
	Notes     *string  `json:"notes,omitempty"`
}

// ErrorDTO is the JSON error envelope.
type ErrorDTO struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
