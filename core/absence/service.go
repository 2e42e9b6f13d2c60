package absence

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("absence request not found")

	errOverlapping    = errors.New("an absence request already covers part of this period")
	errNotPending     = errors.New("absence request has already been reviewed")
	errNotRequester   = errors.New("only the requester may cancel an absence request")
	reviewedEmailSubj = map[string]string{
		StatusApproved: "Absence request approved",
		StatusRejected: "Absence request rejected",
	}
)

type (
	Repository interface {
		CreateAbsence(ctx context.Context, abs Absence) (Absence, error)
		GetAbsenceByID(ctx context.Context, id string) (Absence, error)
		// FilterAbsences applies AND operation on available QueryFilter fields.
		FilterAbsences(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Absence, error)
		// HasOverlappingAbsence reports whether a Pending or Approved request of
		// the user overlaps [start, end].
		HasOverlappingAbsence(ctx context.Context, userID string, start, end time.Time) (bool, error)
		UpdateAbsence(ctx context.Context, abs Absence) (Absence, error)
		DeleteAbsencesByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo     Repository
		usrSvc   user.Service
		mailSvc  core.EmailService
		notifier core.Notifier
	}
)

func NewService(repo Repository, usrSvc user.Service, mailSvc core.EmailService, notifier core.Notifier) *Service {
	return &Service{repo: repo, usrSvc: usrSvc, mailSvc: mailSvc, notifier: notifier}
}

// Submit creates a Pending request for the user after refusing overlaps.
func (svc *Service) Submit(ctx context.Context, userID string, na NewAbsence) (Absence, error) {
	overlaps, err := svc.repo.HasOverlappingAbsence(ctx, userID, na.StartDate, na.EndDate)
	if err != nil {
		return Absence{}, err
	}
	if overlaps {
		return Absence{}, core.NewValidationError(errOverlapping, core.FieldError{Field: "start_date", Error: errOverlapping.Error()})
	}

	now := time.Now().UTC()
	abs := Absence{
		UserID:    userID,
		Type:      na.Type,
		StartDate: na.StartDate.UTC(),
		EndDate:   na.EndDate.UTC(),
		Reason:    na.Reason,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateAbsence(ctx, abs)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Absence, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	return svc.repo.FilterAbsences(ctx, *filter, ordering...)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Absence, error) {
	return svc.repo.GetAbsenceByID(ctx, id)
}

// Review applies an Admin/HR decision to a Pending request. The requester is
// notified by email and over the socket channel.
func (svc *Service) Review(ctx context.Context, id string, reviewer user.User, ra ReviewAbsence) (Absence, error) {
	abs, err := svc.repo.GetAbsenceByID(ctx, id)
	if err != nil {
		return Absence{}, err
	}
	if !abs.IsPending() {
		return Absence{}, core.NewValidationError(errNotPending)
	}

	now := time.Now().UTC()
	abs.Status = ra.Decision
	abs.ReviewerID = reviewer.ID
	abs.ReviewComment = ra.Comment
	abs.ReviewedAt = now
	abs.UpdatedAt = now

	abs, err = svc.repo.UpdateAbsence(ctx, abs)
	if err != nil {
		return Absence{}, err
	}

	svc.notifyReviewed(ctx, abs)
	return abs, nil
}

// Cancel removes the requester's own Pending request.
func (svc *Service) Cancel(ctx context.Context, id, requesterID string) error {
	abs, err := svc.repo.GetAbsenceByID(ctx, id)
	if err != nil {
		return err
	}
	if abs.UserID != requesterID {
		return core.NewValidationError(errNotRequester)
	}
	if !abs.IsPending() {
		return core.NewValidationError(errNotPending)
	}
	return svc.repo.DeleteAbsencesByID(ctx, id)
}

func (svc *Service) notifyReviewed(ctx context.Context, abs Absence) {
	svc.notifier.Notify(core.Event{
		Type:       core.EventAbsenceUpdated,
		Payload:    abs,
		Recipients: []string{abs.UserID},
	})

	requester, err := svc.usrSvc.GetByID(ctx, abs.UserID)
	if err != nil {
		return // requester deleted meanwhile; nothing to mail
	}
	svc.mailSvc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: requester.Name, Address: requester.Email}},
			Subject:      reviewedEmailSubj[abs.Status],
			TemplateName: "absence-reviewed",
			TemplateData: reviewedEmailData{
				Name:    requester.Name,
				Status:  abs.Status,
				Type:    abs.Type,
				Period:  formatPeriod(abs.StartDate, abs.EndDate),
				Comment: abs.ReviewComment,
			},
		},
	)
}

type reviewedEmailData struct {
	Name    string
	Status  string
	Type    string
	Period  string
	Comment string
}

func formatPeriod(start, end time.Time) string {
	layout := "Jan 2, 2006"
	return fmt.Sprintf("%s - %s", start.Format(layout), end.Format(layout))
}
