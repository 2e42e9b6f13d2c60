package absence

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chantio/chantio/core"
)

// Statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Types
const (
	TypeVacation = "vacation"
	TypeSick     = "sick"
	TypePersonal = "personal"
	TypeUnpaid   = "unpaid"
)

// Absence is a user-submitted absence request with a
// Pending -> Approved/Rejected lifecycle reviewed by Admin/HR.
type Absence struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Type          string    `json:"type"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	Reason        string    `json:"reason,omitempty"`
	Status        string    `json:"status"`
	ReviewerID    string    `json:"reviewer_id,omitempty"`
	ReviewComment string    `json:"review_comment,omitempty"`
	ReviewedAt    time.Time `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

func (a *Absence) IsPending() bool { return a.Status == StatusPending }

// NewAbsence contains information needed to submit a new Absence request.
type NewAbsence struct {
	Type      string    `json:"type" form:"type" validate:"required,oneof=vacation sick personal unpaid"`
	StartDate time.Time `json:"start_date" form:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" form:"end_date" validate:"required"`
	Reason    string    `json:"reason" form:"reason"`
}

func (na *NewAbsence) Validate(validate *validator.Validate) error {
	na.Reason = core.CleanString(na.Reason)
	if err := validate.Struct(na); err != nil {
		return err
	}
	if na.EndDate.Before(na.StartDate) {
		return core.NewValidationError(nil, core.FieldError{Field: "end_date", Error: "end date cannot precede start date"})
	}
	return nil
}

// ReviewAbsence is an Admin/HR decision on a pending Absence request.
type ReviewAbsence struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Comment  string `json:"comment"`
}

func (ra *ReviewAbsence) Validate(validate *validator.Validate) error {
	ra.Comment = core.CleanString(ra.Comment)
	return validate.Struct(ra)
}

type QueryFilter struct {
	UserID string    `query:"user_id"`
	Status string    `query:"status"`
	Type   string    `query:"type"`
	From   time.Time `query:"from"`
	To     time.Time `query:"to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.UserID == "" && qf.Status == "" && qf.Type == "" && qf.From.IsZero() && qf.To.IsZero()
}
