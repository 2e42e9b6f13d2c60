// Package inmemdb implements the repositories on in-memory maps. Tests only.
package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/chantio/chantio/core/absence"
	"github.com/chantio/chantio/core/chat"
	"github.com/chantio/chantio/core/intervention"
	"github.com/chantio/chantio/core/upload"
	"github.com/chantio/chantio/core/user"
)

// Database is the shared map store behind all in-memory repositories.
// A single mutex guards everything; contention is not a concern in tests.
type Database struct {
	mu sync.RWMutex

	users         map[string]user.User
	absences      map[string]absence.Absence
	interventions map[string]intervention.Intervention
	conversations map[string]chat.Conversation
	messages      map[string]chat.Message
	files         map[string]upload.StoredFile
}

func NewDatabase() *Database {
	return &Database{
		users:         make(map[string]user.User),
		absences:      make(map[string]absence.Absence),
		interventions: make(map[string]intervention.Intervention),
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string]chat.Message),
		files:         make(map[string]upload.StoredFile),
	}
}

// Clear empties all collections between tests.
func (db *Database) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = make(map[string]user.User)
	db.absences = make(map[string]absence.Absence)
	db.interventions = make(map[string]intervention.Intervention)
	db.conversations = make(map[string]chat.Conversation)
	db.messages = make(map[string]chat.Message)
	db.files = make(map[string]upload.StoredFile)
}

func newID() string {
	return uuid.New().String()
}
