package screens

import (
	"context"
	"strings"
	"sync"

	"github.com/dmitrijs2005/studynote/internal/client/auth"
	"github.com/dmitrijs2005/studynote/internal/client/notes"
	"github.com/dmitrijs2005/studynote/internal/client/store"
	"github.com/dmitrijs2005/studynote/internal/logging"
)

const (
	msgEmptyBody        = "Description cannot be empty"
	msgNotAuthenticated = "User not authenticated"
	msgAddFailed        = "Failed to add note"
	msgUpdateFailed     = "Failed to update note"
	msgDeleteFailed     = "Failed to delete note"
	msgSignOutFailed    = "Failed to sign out"
	msgLoadFailed       = "Failed to load notes"
)

// NotesDAL is the slice of notes.DAL the screen uses.
type NotesDAL interface {
	Subscribe(userID string, fn func([]notes.Note)) (store.Unsubscribe, error)
	Create(ctx context.Context, userID string, c notes.Content) error
	Update(ctx context.Context, id string, c notes.Content) error
	Delete(ctx context.Context, id string) error
}

// Inputs is the new-note form.
type Inputs struct {
	Title string
	Body  string
}

// Edit is the open edit form.
type Edit struct {
	ID    string
	Title string
	Body  string
}

// NotesScreen lists the signed-in user's notes and runs add, edit, delete and
// sign-out. The list is only ever replaced by subscription pushes.
type NotesScreen struct {
	auth     auth.Provider
	notes    NotesDAL
	nav      Navigator
	alerts   Alerter
	logger   logging.Logger
	requests *requests

	mu          sync.Mutex
	list        []notes.Note
	inputs      Inputs
	editing     *Edit
	unsubscribe store.Unsubscribe
	onChange    func()
}

func NewNotesScreen(p auth.Provider, d NotesDAL, nav Navigator, alerts Alerter, l logging.Logger) *NotesScreen {
	return &NotesScreen{
		auth:     p,
		notes:    d,
		nav:      nav,
		alerts:   alerts,
		logger:   l.With("module", "notes_screen"),
		requests: newRequests(),
	}
}

// OnChange registers the single observer called after every state change.
func (s *NotesScreen) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *NotesScreen) changed() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Mount redirects to login when nobody is signed in, otherwise starts the
// live subscription.
func (s *NotesScreen) Mount(ctx context.Context) {
	user := s.auth.CurrentUser()
	if user == nil {
		s.nav.Replace(RouteLogin)
		return
	}

	s.Unmount()

	unsubscribe, err := s.notes.Subscribe(user.ID, s.replace)
	if err != nil {
		s.logger.Error(ctx, "subscribe failed", "user_id", user.ID, "error", err)
		s.alerts.Alert(alertError, msgLoadFailed)
		return
	}

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

// Unmount releases the subscription. It is safe to call at any time and more
// than once.
func (s *NotesScreen) Unmount() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *NotesScreen) replace(list []notes.Note) {
	s.mu.Lock()
	s.list = list
	s.mu.Unlock()
	s.changed()
}

// Add creates a note from the given inputs. On failure the inputs are kept
// so the user can retry.
func (s *NotesScreen) Add(ctx context.Context, title, body string) {
	s.mu.Lock()
	s.inputs = Inputs{Title: title, Body: body}
	s.mu.Unlock()

	if strings.TrimSpace(body) == "" {
		s.alerts.Alert(alertError, msgEmptyBody)
		return
	}
	user := s.auth.CurrentUser()
	if user == nil {
		s.alerts.Alert(alertError, msgNotAuthenticated)
		return
	}
	if !s.requests.begin(ActionAdd) {
		return
	}
	s.changed()

	err := s.notes.Create(ctx, user.ID, notes.Content{Title: title, Body: body})
	s.requests.finish(ActionAdd, err)
	if err != nil {
		s.logger.Error(ctx, "add note failed", "error", err)
		s.alerts.Alert(alertError, msgAddFailed)
	} else {
		s.mu.Lock()
		s.inputs = Inputs{}
		s.mu.Unlock()
	}
	s.changed()
}

// OpenEdit loads a note's title and body into the edit form.
func (s *NotesScreen) OpenEdit(n notes.Note) {
	s.mu.Lock()
	s.editing = &Edit{ID: n.ID, Title: n.Title, Body: n.Body}
	s.mu.Unlock()
	s.changed()
}

func (s *NotesScreen) CancelEdit() {
	s.mu.Lock()
	s.editing = nil
	s.mu.Unlock()
	s.changed()
}

// SaveEdit replaces the edited note's title and body. An empty body is
// ignored and the form stays open.
func (s *NotesScreen) SaveEdit(ctx context.Context, title, body string) {
	s.mu.Lock()
	if s.editing == nil {
		s.mu.Unlock()
		return
	}
	s.editing.Title, s.editing.Body = title, body
	id := s.editing.ID
	s.mu.Unlock()

	if strings.TrimSpace(body) == "" {
		return
	}
	if !s.requests.begin(ActionSave) {
		return
	}
	s.changed()

	err := s.notes.Update(ctx, id, notes.Content{Title: title, Body: body})
	s.requests.finish(ActionSave, err)
	if err != nil {
		s.logger.Error(ctx, "update note failed", "note_id", id, "error", err)
		s.alerts.Alert(alertError, msgUpdateFailed)
	} else {
		s.mu.Lock()
		if s.editing != nil && s.editing.ID == id {
			s.editing = nil
		}
		s.mu.Unlock()
	}
	s.changed()
}

// Delete removes a note without confirmation.
func (s *NotesScreen) Delete(ctx context.Context, id string) {
	if !s.requests.begin(ActionDelete) {
		return
	}
	s.changed()

	err := s.notes.Delete(ctx, id)
	s.requests.finish(ActionDelete, err)
	if err != nil {
		s.logger.Error(ctx, "delete note failed", "note_id", id, "error", err)
		s.alerts.Alert(alertError, msgDeleteFailed)
	}
	s.changed()
}

// SignOut ends the session and goes to login. The navigator unmounts this
// screen, which releases the subscription.
func (s *NotesScreen) SignOut(ctx context.Context) {
	if !s.requests.begin(ActionSignOut) {
		return
	}
	s.changed()

	err := s.auth.SignOut(ctx)
	s.requests.finish(ActionSignOut, err)
	if err != nil {
		s.logger.Error(ctx, "sign out failed", "error", err)
		s.alerts.Alert(alertError, msgSignOutFailed)
		s.changed()
		return
	}
	s.changed()
	s.nav.Replace(RouteLogin)
}

// Notes returns the latest pushed list.
func (s *NotesScreen) Notes() []notes.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notes.Note(nil), s.list...)
}

// Editing returns the open edit form, or nil.
func (s *NotesScreen) Editing() *Edit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editing == nil {
		return nil
	}
	e := *s.editing
	return &e
}

func (s *NotesScreen) Inputs() Inputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs
}

func (s *NotesScreen) Request(kind ActionKind) RequestState {
	return s.requests.get(kind)
}
