package dto

import "time"

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// ApplicationListResponse is a page of applications.
type ApplicationListResponse struct {
	Items      []ApplicationSummary `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// StaffDecisionRequest carries the optional note attached to a status decision.
type StaffDecisionRequest struct {
	Notes  string `json:"notes" validate:"omitempty,max=4000"`
	Reason string `json:"reason" validate:"omitempty,max=1000"`
}

// TierOverrideRequest sets the vendor tier manually.
type TierOverrideRequest struct {
	Tier string `json:"tier" validate:"required,oneof=standard senior expert"`
}

// StaffNotesRequest replaces the staff review notes.
type StaffNotesRequest struct {
	Notes string `json:"notes" validate:"max=10000"`
}

// NegotiationRequest appends one event to the negotiation log.
type NegotiationRequest struct {
	Event  string   `json:"event" validate:"required,oneof=offer_sent counter_received rate_agreed negotiation_closed note"`
	Amount *float64 `json:"amount" validate:"omitempty,gte=0"`
	Note   string   `json:"note" validate:"omitempty,max=2000"`
}

// CombinationDecisionRequest resolves a borderline combination.
type CombinationDecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
}

// ResendTestsRequest selects combinations whose tests should be issued again.
type ResendTestsRequest struct {
	CombinationIDs []uint `json:"combination_ids" validate:"omitempty,max=50"`
}

// StaffActor identifies the staff member performing an action.
type StaffActor struct {
	ID   uint
	Role string
}

// StaffActionResponse reports the application state after a staff action.
type StaffActionResponse struct {
	ApplicationID uint       `json:"application_id"`
	Status        string     `json:"status"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}
