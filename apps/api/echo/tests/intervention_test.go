package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"net/http"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/chantio/chantio/core"
	"github.com/chantio/chantio/core/intervention"
	"github.com/chantio/chantio/core/user"
	emailsvc "github.com/chantio/chantio/services/email"
)

func createIntervention(t *testing.T, userID, status string) intervention.Intervention {
	t.Helper()

	now := time.Now().UTC()
	iv, err := ivRepo.CreateIntervention(context.Background(), intervention.Intervention{
		UserID:      userID,
		Site:        "Site A",
		Equipment:   "Excavator 07",
		Description: "hydraulic leak on the left arm",
		Priority:    intervention.PriorityNormal,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateIntervention() failed: %v", err)
	}
	return iv
}

// pngBytes renders a tiny PNG for photo uploads.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(12, 8, color.NRGBA{R: 200, G: 120, B: 40, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("imaging.Encode() failed: %v", err)
	}
	return buf.Bytes()
}

func Test_interventionApi_submit(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	workerToken := getToken(t, worker)

	fields := map[string]string{
		"site":        "Site A",
		"equipment":   "Excavator 07",
		"description": "hydraulic leak on the left arm",
		"priority":    intervention.PriorityHigh,
	}

	t.Run("Auth required", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/interventions", "", fields)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("required fields", func(t *testing.T) {
		reqMsg := "this field is required"
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"site": reqMsg, "equipment": reqMsg, "description": reqMsg}),
		}
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/interventions", workerToken, nil)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("refused photo type", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/interventions", workerToken, fields,
			formFile{field: "photos", name: "evil.exe", contentType: "application/octet-stream", content: []byte("MZ lol")})
		app.ServeHTTP(rec, req)
		tt := httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"file": "this file type is not allowed"}),
		}
		checkCodeAndData(t, tt, rec)
	})

	t.Run("submitted without photos", func(t *testing.T) {
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/interventions", workerToken, fields)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var iv intervention.Intervention
		if err := json.Unmarshal(rec.Body.Bytes(), &iv); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if iv.Status != intervention.StatusPending || iv.UserID != worker.ID || iv.Priority != intervention.PriorityHigh {
			t.Errorf("failed! unexpected intervention %+v", iv)
		}
		if len(iv.Photos) != 0 {
			t.Errorf("failed! len(Photos) = %d; want 0", len(iv.Photos))
		}
	})

	t.Run("submitted with photos", func(t *testing.T) {
		notifier.Reset()

		png := pngBytes(t)
		req, rec := newMultipartRequest(t, http.MethodPost, "/v1/interventions", workerToken, map[string]string{
			"site": "Site B", "equipment": "Crane 02", "description": "cable frayed",
		},
			formFile{field: "photos", name: "leak.png", contentType: "image/png", content: png},
			formFile{field: "photos", name: "leak2.png", contentType: "image/png", content: png},
		)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var iv intervention.Intervention
		if err := json.Unmarshal(rec.Body.Bytes(), &iv); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if len(iv.Photos) != 2 {
			t.Fatalf("failed! len(Photos) = %d; want 2", len(iv.Photos))
		}
		for _, ph := range iv.Photos {
			if ph.FileID == "" || ph.ContentType != "image/png" || !ph.HasThumbnail {
				t.Errorf("failed! unexpected photo %+v", ph)
			}
		}
		// default priority applies
		if iv.Priority != intervention.PriorityNormal {
			t.Errorf("failed! Priority = %s; want %s", iv.Priority, intervention.PriorityNormal)
		}
		// the pipeline reported progress to the uploader
		var progressEvents int
		for _, ev := range notifier.Events() {
			if ev.Type == core.EventUploadProgress {
				progressEvents++
			}
		}
		if progressEvents == 0 {
			t.Error("failed! no upload progress events")
		}
	})
}

func Test_interventionApi_query(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	other := createUser(t, "Max Tool", "maxtool", "max@test.cd", "", []string{user.RoleWorker}, true)
	mech := createUser(t, "Leo Wrench", "leowrench", "leo@test.cd", "", []string{user.RoleWorkshop}, true)

	mine := createIntervention(t, worker.ID, intervention.StatusPending)
	theirs := createIntervention(t, other.ID, intervention.StatusResolved)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/interventions", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Workers only see their own", path: "/v1/interventions", token: getToken(t, worker),
			wantData: marchallList(t, mine),
		},
		{
			name: "Workers cannot read someone else's via user_id", path: "/v1/interventions?user_id=" + other.ID, token: getToken(t, worker),
			wantData: marchallList(t, mine),
		},
		{
			name: "Workshop sees everything", path: "/v1/interventions", token: getToken(t, mech),
			wantData: marchallList(t, theirs, mine),
		},
		{
			name: "filter by status", path: "/v1/interventions?status=resolved", token: getToken(t, mech),
			wantData: marchallList(t, theirs),
		},
		{
			name: "filter by site", path: "/v1/interventions?site=site+a", token: getToken(t, mech),
			wantData: marchallList(t, theirs, mine),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_interventionApi_retrieve(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	other := createUser(t, "Max Tool", "maxtool", "max@test.cd", "", []string{user.RoleWorker}, true)
	mech := createUser(t, "Leo Wrench", "leowrench", "leo@test.cd", "", []string{user.RoleWorkshop}, true)

	iv := createIntervention(t, worker.ID, intervention.StatusPending)

	notFound := marchallObj(t, httpErr{Error: "not found"})
	tests := []httpTest{
		{name: "Unknown id", path: "/v1/interventions/lol", token: getToken(t, worker), wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "Someone else's ticket reads as a miss", path: "/v1/interventions/" + iv.ID, token: getToken(t, other),
			wantCode: http.StatusNotFound, wantData: notFound,
		},
		{name: "Requester", path: "/v1/interventions/" + iv.ID, token: getToken(t, worker), wantCode: http.StatusOK, wantData: marchallObj(t, iv)},
		{name: "Workshop", path: "/v1/interventions/" + iv.ID, token: getToken(t, mech), wantCode: http.StatusOK, wantData: marchallObj(t, iv)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_interventionApi_assign(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	manager := createUser(t, "Eva Plan", "evaplan", "eva@test.cd", "", []string{user.RoleManager}, true)
	mech := createUser(t, "Leo Wrench", "leowrench", "leo@test.cd", "", []string{user.RoleWorkshop}, true)
	managerToken := getToken(t, manager)

	iv := createIntervention(t, worker.ID, intervention.StatusPending)
	resolved := createIntervention(t, worker.ID, intervention.StatusResolved)

	assignBody := marchallObj(t, intervention.AssignIntervention{AssigneeID: mech.ID})
	tests := []httpTest{
		{
			name: "Staff required", path: "/v1/interventions/" + iv.ID + "/assign", token: getToken(t, worker), body: assignBody,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Assignee must be workshop", path: "/v1/interventions/" + iv.ID + "/assign", token: managerToken,
			body:     marchallObj(t, intervention.AssignIntervention{AssigneeID: worker.ID}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"assignee_id": "assignee is not a workshop member"}),
		},
		{
			name: "Unknown assignee", path: "/v1/interventions/" + iv.ID + "/assign", token: managerToken,
			body:     marchallObj(t, intervention.AssignIntervention{AssigneeID: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"assignee_id": "user not found"}),
		},
		{
			name: "Resolved tickets cannot be assigned", path: "/v1/interventions/" + resolved.ID + "/assign", token: managerToken, body: assignBody,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "this status change is not allowed"}),
		},
		{name: "Assigned", path: "/v1/interventions/" + iv.ID + "/assign", token: managerToken, body: assignBody, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut

		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ResetSentMessages()
			notifier.Reset()

			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var got intervention.Intervention
				if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if got.Status != intervention.StatusAssigned || got.AssigneeID != mech.ID {
					t.Errorf("failed! unexpected intervention %+v", got)
				}

				// assignee gets an email; requester & assignee a socket event
				if len(emailsvc.SentMessages) != 1 {
					t.Errorf("failed! len(SentMessages) = %d; want 1", len(emailsvc.SentMessages))
				} else if to := emailsvc.SentMessages[0].To[0].Address; to != mech.Email {
					t.Errorf("failed! email To = %s; want %s", to, mech.Email)
				}
				events := notifier.Events()
				if len(events) != 1 {
					t.Fatalf("failed! len(events) = %d; want 1", len(events))
				}
				if events[0].Type != core.EventInterventionUpdated || len(events[0].Recipients) != 2 {
					t.Errorf("failed! unexpected event %+v", events[0])
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_interventionApi_setStatus(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	mech := createUser(t, "Leo Wrench", "leowrench", "leo@test.cd", "", []string{user.RoleWorkshop}, true)
	mechToken := getToken(t, mech)

	assigned := createIntervention(t, worker.ID, intervention.StatusAssigned)
	pending := createIntervention(t, worker.ID, intervention.StatusPending)

	tests := []httpTest{
		{
			name: "Workshop required", path: "/v1/interventions/" + assigned.ID + "/status", token: getToken(t, worker),
			body:     marchallObj(t, intervention.UpdateStatus{Status: intervention.StatusInProgress}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Assignment goes through assign", path: "/v1/interventions/" + pending.ID + "/status", token: mechToken,
			body:     marchallObj(t, intervention.UpdateStatus{Status: intervention.StatusAssigned}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "this status change is not allowed"}),
		},
		{
			name: "Illegal transition", path: "/v1/interventions/" + pending.ID + "/status", token: mechToken,
			body:     marchallObj(t, intervention.UpdateStatus{Status: intervention.StatusResolved, ResolutionNote: "done"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "this status change is not allowed"}),
		},
		{
			name: "Resolving needs a note", path: "/v1/interventions/" + assigned.ID + "/status", token: mechToken,
			body:     marchallObj(t, intervention.UpdateStatus{Status: intervention.StatusResolved}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"resolution_note": "a resolution note is required to resolve"}),
		},
		{
			name: "In progress", path: "/v1/interventions/" + assigned.ID + "/status", token: mechToken,
			body: marchallObj(t, intervention.UpdateStatus{Status: intervention.StatusInProgress}), wantCode: http.StatusOK,
			extra: intervention.StatusInProgress,
		},
		{
			name: "Resolved", path: "/v1/interventions/" + assigned.ID + "/status", token: mechToken,
			body:  marchallObj(t, intervention.UpdateStatus{Status: intervention.StatusResolved, ResolutionNote: "seal replaced"}),
			wantCode: http.StatusOK, extra: intervention.StatusResolved,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if wantStatus, ok := tt.extra.(string); ok {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				var got intervention.Intervention
				if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
					t.Fatalf("json.Unmarshal() failed! err %v", err)
				}
				if got.Status != wantStatus {
					t.Errorf("failed! Status = %s; want %s", got.Status, wantStatus)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_interventionApi_cancel(t *testing.T) {
	resetDB(t)

	worker := createUser(t, "Jim Down", "jimdown", "jim@test.cd", "", []string{user.RoleWorker}, true)
	other := createUser(t, "Max Tool", "maxtool", "max@test.cd", "", []string{user.RoleWorker}, true)

	pending := createIntervention(t, worker.ID, intervention.StatusPending)
	assigned := createIntervention(t, worker.ID, intervention.StatusAssigned)

	tests := []httpTest{
		{
			name: "Unknown id", path: "/v1/interventions/lol", token: getToken(t, worker),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "Only the requester may cancel", path: "/v1/interventions/" + pending.ID, token: getToken(t, other),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "only the requester may cancel an intervention request"}),
		},
		{
			name: "Assigned tickets cannot be cancelled", path: "/v1/interventions/" + assigned.ID, token: getToken(t, worker),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "only pending requests can be cancelled"}),
		},
		{name: "Cancelled", path: "/v1/interventions/" + pending.ID, token: getToken(t, worker), wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusNoContent {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
				}
				if _, err := ivRepo.GetInterventionByID(context.Background(), pending.ID); err != intervention.ErrNotFound {
					t.Errorf("GetInterventionByID() err = %v; want ErrNotFound", err)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
