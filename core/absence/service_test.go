package absence_test

import (
	"context"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/absence"
	"github.com/chantio/chantio/core/user"
	emailsvc "github.com/chantio/chantio/services/email"
	notifsvc "github.com/chantio/chantio/services/notifier"
	inmemdb "github.com/chantio/chantio/storage/database/inmem"
)

var (
	conf = &core.Config{
		TestMode:         true,
		Env:              "TEST",
		AppName:          "Chantio",
		SecretKey:        "--secret--",
		WorkDir:          core.Getwd(),
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: "noreply@test.cd",
	}

	db       *inmemdb.Database
	usrRepo  user.Repository
	absRepo  absence.Repository
	notifier *notifsvc.DummyNotifier
	svc      *absence.Service
)

type testLogger struct{ *log.Logger }

func (l testLogger) Enable(bool)                           {}
func (l testLogger) Debug(msg string, args ...interface{}) { l.Println(msg) }
func (l testLogger) Info(msg string, args ...interface{})  { l.Println(msg) }
func (l testLogger) Warn(msg string, args ...interface{})  { l.Println(msg) }
func (l testLogger) Error(msg string, args ...interface{}) { l.Println(msg) }
func (l testLogger) Fatal(msg string, args ...interface{}) { l.Fatalln(msg) }

func TestMain(m *testing.M) {
	logger := testLogger{log.New(os.Stderr, "TEST : ", log.LstdFlags)}
	core.ParseEmailTemplates(conf, logger)

	db = inmemdb.NewDatabase()
	usrRepo = inmemdb.NewUserRepository(db)
	absRepo = inmemdb.NewAbsenceRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	notifier = notifsvc.NewDummyNotifier()
	usrSvc := user.NewServiceMock(usrRepo, mailSvc, conf)
	svc = absence.NewService(absRepo, usrSvc, mailSvc, notifier)

	os.Exit(m.Run())
}

func resetDB(t *testing.T) {
	t.Helper()
	db.Clear()
	notifier.Reset()
	emailsvc.ResetSentMessages()
}

func createUser(t *testing.T, name, uname, email string) user.User {
	t.Helper()
	usr, err := usrRepo.CreateUser(context.Background(), user.User{
		Name:     name,
		Username: uname,
		Email:    email,
		Roles:    []string{user.RoleWorker},
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func createAbsence(t *testing.T, userID, status string, start, end time.Time) absence.Absence {
	t.Helper()
	now := time.Now().UTC()
	abs, err := absRepo.CreateAbsence(context.Background(), absence.Absence{
		UserID:    userID,
		Type:      absence.TypeVacation,
		StartDate: start,
		EndDate:   end,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateAbsence() failed: %v", err)
	}
	return abs
}

func day(d int) time.Time {
	return time.Date(2026, time.September, d, 0, 0, 0, 0, time.UTC)
}

func TestService_Submit(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd")

	t.Run("overlap is refused", func(t *testing.T) {
		createAbsence(t, worker.ID, absence.StatusApproved, day(1), day(5))

		_, err := svc.Submit(ctx, worker.ID, absence.NewAbsence{
			Type: absence.TypeSick, StartDate: day(4), EndDate: day(8),
		})
		vErr, ok := err.(*core.ValidationError)
		if !ok {
			t.Fatalf("Submit() err = %v; want *core.ValidationError", err)
		}
		if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "start_date" {
			t.Errorf("unexpected fields %+v", vErr.Fields)
		}
	})

	t.Run("rejected requests do not block the period", func(t *testing.T) {
		other := createUser(t, "Don Ovan", "donovan", "don@test.cd")
		createAbsence(t, other.ID, absence.StatusRejected, day(10), day(12))

		if _, err := svc.Submit(ctx, other.ID, absence.NewAbsence{
			Type: absence.TypeVacation, StartDate: day(10), EndDate: day(12),
		}); err != nil {
			t.Errorf("Submit() err = %v; want nil", err)
		}
	})

	t.Run("submitted", func(t *testing.T) {
		abs, err := svc.Submit(ctx, worker.ID, absence.NewAbsence{
			Type: absence.TypePersonal, StartDate: day(20), EndDate: day(22), Reason: "moving",
		})
		if err != nil {
			t.Fatalf("Submit() err = %v", err)
		}
		if abs.ID == "" || abs.Status != absence.StatusPending || abs.UserID != worker.ID {
			t.Errorf("unexpected absence %+v", abs)
		}
		if abs.CreatedAt.IsZero() || abs.StartDate.Location() != time.UTC {
			t.Errorf("unexpected timestamps %+v", abs)
		}
	})
}

func TestService_Review(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd")
	hr := createUser(t, "Anna Conda", "annaconda", "anna@test.cd")

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.Review(ctx, "lol", hr, absence.ReviewAbsence{Decision: absence.StatusApproved})
		if err != absence.ErrNotFound {
			t.Errorf("Review() err = %v; want %v", err, absence.ErrNotFound)
		}
	})

	t.Run("already reviewed", func(t *testing.T) {
		abs := createAbsence(t, worker.ID, absence.StatusRejected, day(1), day(2))
		_, err := svc.Review(ctx, abs.ID, hr, absence.ReviewAbsence{Decision: absence.StatusApproved})
		if err == nil || err.Error() != "absence request has already been reviewed" {
			t.Errorf("Review() err = %v", err)
		}
	})

	t.Run("approved", func(t *testing.T) {
		abs := createAbsence(t, worker.ID, absence.StatusPending, day(10), day(14))

		reviewed, err := svc.Review(ctx, abs.ID, hr, absence.ReviewAbsence{
			Decision: absence.StatusApproved, Comment: "enjoy",
		})
		if err != nil {
			t.Fatalf("Review() err = %v", err)
		}
		if reviewed.Status != absence.StatusApproved || reviewed.ReviewerID != hr.ID ||
			reviewed.ReviewComment != "enjoy" || reviewed.ReviewedAt.IsZero() {
			t.Errorf("unexpected absence %+v", reviewed)
		}

		events := notifier.Events()
		if len(events) != 1 || events[0].Type != core.EventAbsenceUpdated {
			t.Fatalf("unexpected events %+v", events)
		}
		if len(events[0].Recipients) != 1 || events[0].Recipients[0] != worker.ID {
			t.Errorf("unexpected recipients %v", events[0].Recipients)
		}

		if len(emailsvc.SentMessages) != 1 {
			t.Fatalf("len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
		}
		msg := emailsvc.SentMessages[0]
		if msg.To[0].Address != worker.Email || msg.Subject != "Absence request approved" {
			t.Errorf("unexpected message To=%v Subject=%q", msg.To, msg.Subject)
		}
		if !strings.Contains(msg.TextContent, "approved") {
			t.Errorf("unexpected TextContent %q", msg.TextContent)
		}
	})
}

func TestService_Cancel(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd")
	other := createUser(t, "Don Ovan", "donovan", "don@test.cd")

	t.Run("requester only", func(t *testing.T) {
		abs := createAbsence(t, worker.ID, absence.StatusPending, day(1), day(2))
		err := svc.Cancel(ctx, abs.ID, other.ID)
		if err == nil || err.Error() != "only the requester may cancel an absence request" {
			t.Errorf("Cancel() err = %v", err)
		}
	})

	t.Run("reviewed requests cannot be cancelled", func(t *testing.T) {
		abs := createAbsence(t, worker.ID, absence.StatusApproved, day(5), day(6))
		err := svc.Cancel(ctx, abs.ID, worker.ID)
		if err == nil || err.Error() != "absence request has already been reviewed" {
			t.Errorf("Cancel() err = %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		abs := createAbsence(t, worker.ID, absence.StatusPending, day(10), day(11))
		if err := svc.Cancel(ctx, abs.ID, worker.ID); err != nil {
			t.Fatalf("Cancel() err = %v", err)
		}
		if _, err := absRepo.GetAbsenceByID(ctx, abs.ID); err != absence.ErrNotFound {
			t.Errorf("GetAbsenceByID() err = %v; want %v", err, absence.ErrNotFound)
		}
	})
}
