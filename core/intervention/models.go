package intervention

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/upload"
)

// Statuses
const (
	StatusPending    = "pending"
	StatusAssigned   = "assigned"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusRejected   = "rejected"
)

// Priorities
const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// transitions lists the legal status moves. Everything else is refused.
var transitions = map[string][]string{
	StatusPending:    {StatusAssigned, StatusRejected},
	StatusAssigned:   {StatusInProgress, StatusRejected},
	StatusInProgress: {StatusResolved},
}

func canTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Intervention is a maintenance/repair ticket submitted by field workers and
// routed to the workshop team.
type Intervention struct {
	ID             string              `json:"id"`
	UserID         string              `json:"user_id"`
	Site           string              `json:"site"`
	Equipment      string              `json:"equipment"`
	Description    string              `json:"description"`
	Priority       string              `json:"priority"`
	Status         string              `json:"status"`
	AssigneeID     string              `json:"assignee_id,omitempty"`
	ResolutionNote string              `json:"resolution_note,omitempty"`
	Photos         []upload.Attachment `json:"photos,omitempty"`
	CreatedAt      time.Time           `json:"created_at"` // UTC
	UpdatedAt      time.Time           `json:"updated_at"` // UTC
}

func (iv *Intervention) IsPending() bool { return iv.Status == StatusPending }

// NewIntervention contains information needed to submit a new ticket.
// Photos arrive as multipart files and are attached after the upload pipeline.
type NewIntervention struct {
	Site        string `json:"site" form:"site" validate:"required"`
	Equipment   string `json:"equipment" form:"equipment" validate:"required"`
	Description string `json:"description" form:"description" validate:"required"`
	Priority    string `json:"priority" form:"priority" validate:"omitempty,oneof=low normal high critical"`
}

func (ni *NewIntervention) Validate(validate *validator.Validate) error {
	ni.Site = core.CleanString(ni.Site)
	ni.Equipment = core.CleanString(ni.Equipment)
	ni.Description = core.CleanString(ni.Description)
	if ni.Priority == "" {
		ni.Priority = PriorityNormal
	}
	return validate.Struct(ni)
}

// AssignIntervention routes a ticket to a workshop member.
type AssignIntervention struct {
	AssigneeID string `json:"assignee_id" validate:"required"`
}

func (ai *AssignIntervention) Validate(validate *validator.Validate) error {
	ai.AssigneeID = core.CleanString(ai.AssigneeID)
	return validate.Struct(ai)
}

// UpdateStatus moves a ticket along its lifecycle.
type UpdateStatus struct {
	Status         string `json:"status" validate:"required,oneof=assigned in_progress resolved rejected"`
	ResolutionNote string `json:"resolution_note"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	us.ResolutionNote = core.CleanString(us.ResolutionNote)
	if err := validate.Struct(us); err != nil {
		return err
	}
	if us.Status == StatusResolved && us.ResolutionNote == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "resolution_note", Error: "a resolution note is required to resolve"})
	}
	return nil
}

type QueryFilter struct {
	UserID     string `query:"user_id"`
	AssigneeID string `query:"assignee_id"`
	Status     string `query:"status"`
	Priority   string `query:"priority"`
	Site       string `query:"site"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.UserID == "" && qf.AssigneeID == "" && qf.Status == "" && qf.Priority == "" && qf.Site == ""
}

func (qf *QueryFilter) Clean() {
	qf.Site = core.CleanString(qf.Site)
}
