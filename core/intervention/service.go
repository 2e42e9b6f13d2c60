package intervention

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/upload"
	"github.com/chantio/chantio/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("intervention request not found")

	errNotWorkshop    = errors.New("assignee is not a workshop member")
	errBadTransition  = errors.New("this status change is not allowed")
	errNotRequester   = errors.New("only the requester may cancel an intervention request")
	errNotCancellable = errors.New("only pending requests can be cancelled")
)

type (
	Repository interface {
		CreateIntervention(ctx context.Context, iv Intervention) (Intervention, error)
		GetInterventionByID(ctx context.Context, id string) (Intervention, error)
		// FilterInterventions applies AND operation on available QueryFilter fields.
		FilterInterventions(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Intervention, error)
		UpdateIntervention(ctx context.Context, iv Intervention) (Intervention, error)
		DeleteInterventionsByID(ctx context.Context, ids ...string) error
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

// Submit creates a Pending ticket, optionally with photos already run
// through the upload pipeline.
func (svc *Service) Submit(ctx context.Context, userID string, ni NewIntervention, photos []upload.Attachment) (Intervention, error) {
	now := time.Now().UTC()
	iv := Intervention{
		UserID:      userID,
		Site:        ni.Site,
		Equipment:   ni.Equipment,
		Description: ni.Description,
		Priority:    ni.Priority,
		Status:      StatusPending,
		Photos:      photos,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateIntervention(ctx, iv)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Intervention, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	return svc.repo.FilterInterventions(ctx, *filter, ordering...)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Intervention, error) {
	return svc.repo.GetInterventionByID(ctx, id)
}

// Assign routes the ticket to a workshop member and marks it assigned.
// The assignee gets an email; requester and assignee get a socket event.
func (svc *Service) Assign(ctx context.Context, id string, ai AssignIntervention) (Intervention, error) {
	iv, err := svc.repo.GetInterventionByID(ctx, id)
	if err != nil {
		return Intervention{}, err
	}
	if !canTransition(iv.Status, StatusAssigned) {
		return Intervention{}, core.NewValidationError(errBadTransition)
	}

	assignee, err := svc.usrSvc.GetByID(ctx, ai.AssigneeID)
	if err != nil {
		if err == user.ErrNotFound {
			return Intervention{}, core.NewValidationError(err, core.FieldError{Field: "assignee_id", Error: err.Error()})
		}
		return Intervention{}, err
	}
	if !assignee.IsWorkshop() && !assignee.IsAdmin() {
		return Intervention{}, core.NewValidationError(errNotWorkshop, core.FieldError{Field: "assignee_id", Error: errNotWorkshop.Error()})
	}

	now := time.Now().UTC()
	iv.Status = StatusAssigned
	iv.AssigneeID = assignee.ID
	iv.UpdatedAt = now

	iv, err = svc.repo.UpdateIntervention(ctx, iv)
	if err != nil {
		return Intervention{}, err
	}

	svc.notifier.Notify(core.Event{
		Type:       core.EventInterventionUpdated,
		Payload:    iv,
		Recipients: []string{iv.UserID, iv.AssigneeID},
	})
	svc.sendAssignedMail(assignee, iv)
	return iv, nil
}

// SetStatus applies a lifecycle transition; illegal moves are refused.
func (svc *Service) SetStatus(ctx context.Context, id string, us UpdateStatus) (Intervention, error) {
	iv, err := svc.repo.GetInterventionByID(ctx, id)
	if err != nil {
		return Intervention{}, err
	}
	if us.Status == StatusAssigned {
		// assignment carries an assignee; it goes through Assign
		return Intervention{}, core.NewValidationError(errBadTransition)
	}
	if !canTransition(iv.Status, us.Status) {
		return Intervention{}, core.NewValidationError(errBadTransition)
	}

	iv.Status = us.Status
	if us.ResolutionNote != "" {
		iv.ResolutionNote = us.ResolutionNote
	}
	iv.UpdatedAt = time.Now().UTC()

	iv, err = svc.repo.UpdateIntervention(ctx, iv)
	if err != nil {
		return Intervention{}, err
	}

	recipients := []string{iv.UserID}
	if iv.AssigneeID != "" {
		recipients = append(recipients, iv.AssigneeID)
	}
	svc.notifier.Notify(core.Event{
		Type:       core.EventInterventionUpdated,
		Payload:    iv,
		Recipients: recipients,
	})
	return iv, nil
}

// Cancel removes the requester's own Pending ticket.
func (svc *Service) Cancel(ctx context.Context, id, requesterID string) error {
	iv, err := svc.repo.GetInterventionByID(ctx, id)
	if err != nil {
		return err
	}
	if iv.UserID != requesterID {
		return core.NewValidationError(errNotRequester)
	}
	if !iv.IsPending() {
		return core.NewValidationError(errNotCancellable)
	}
	return svc.repo.DeleteInterventionsByID(ctx, id)
}

func (svc *Service) sendAssignedMail(assignee user.User, iv Intervention) {
	svc.mailSvc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: assignee.Name, Address: assignee.Email}},
			Subject:      fmt.Sprintf("Intervention assigned: %s", iv.Equipment),
			TemplateName: "intervention-assigned",
			TemplateData: assignedEmailData{
				Name:        assignee.Name,
				Site:        iv.Site,
				Equipment:   iv.Equipment,
				Priority:    iv.Priority,
				Description: iv.Description,
			},
		},
	)
}

type assignedEmailData struct {
	Name        string
	Site        string
	Equipment   string
	Priority    string
	Description string
}
