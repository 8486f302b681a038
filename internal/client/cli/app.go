package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/studynote/internal/client/auth"
	"github.com/dmitrijs2005/studynote/internal/client/client"
	"github.com/dmitrijs2005/studynote/internal/client/config"
	"github.com/dmitrijs2005/studynote/internal/client/notes"
	"github.com/dmitrijs2005/studynote/internal/client/repositories/session"
	"github.com/dmitrijs2005/studynote/internal/client/screens"
	"github.com/dmitrijs2005/studynote/internal/client/store"
	"github.com/dmitrijs2005/studynote/internal/logging"
	"github.com/dmitrijs2005/studynote/internal/rpc"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type sessionProvider interface {
	auth.Provider
	Restore(ctx context.Context) error
}

// backend covers the calls the CLI makes outside the screens.
type backend interface {
	Ping(ctx context.Context) error
	ExportDocuments(ctx context.Context, q rpc.Query) (string, error)
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	provider sessionProvider
	api      backend
	closers  []io.Closer

	login    *screens.AuthForm
	register *screens.AuthForm
	notes    *screens.NotesScreen

	reader     *bufio.Reader
	out        io.Writer
	exportBase string

	mu       sync.Mutex
	route    screens.Route
	mode     Mode
	rendered []notes.Note
	fresh    bool
}

func NewApp(ctx context.Context, c *config.Config, l logging.Logger) (*App, error) {
	db, err := client.OpenDatabase(ctx, c.SessionDBPath)
	if err != nil {
		l.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	api, err := client.NewStudyNoteClient(c.ServerEndpointAddr)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	provider := auth.NewGRPCProvider(api, session.NewSQLiteRepository(db), l)
	dal := notes.New(store.NewGRPCStore(api, l))

	a := newApp(c, l, provider, api, dal, bufio.NewReader(os.Stdin), os.Stdout)
	a.closers = []io.Closer{api, db}
	return a, nil
}

func newApp(c *config.Config, l logging.Logger, p sessionProvider, api backend, dal screens.NotesDAL, r *bufio.Reader, w io.Writer) *App {
	a := &App{
		config:   c,
		logger:   l.With("module", "cli"),
		provider: p,
		api:      api,
		reader:   r,
		out:      w,
	}
	a.login = screens.NewLoginForm(p, a, a)
	a.register = screens.NewRegisterForm(p, a, a)
	a.notes = screens.NewNotesScreen(p, dal, a, a, l)
	a.notes.OnChange(a.notesChanged)
	return a
}

// Replace implements screens.Navigator. Leaving /notes unmounts the notes
// screen; entering it mounts it.
func (a *App) Replace(route screens.Route) {
	a.mu.Lock()
	prev := a.route
	a.route = route
	if route != prev && route == screens.RouteNotes {
		a.fresh = true
	}
	a.mu.Unlock()

	if prev == route {
		return
	}
	if prev == screens.RouteNotes {
		a.notes.Unmount()
	}
	switch route {
	case screens.RouteNotes:
		fmt.Fprintln(a.out, "Your notes (type 'help' for commands)")
		a.notes.Mount(context.Background())
	case screens.RouteLogin:
		fmt.Fprintln(a.out, "Please 'login' or 'register'")
	}
}

// Alert implements screens.Alerter.
func (a *App) Alert(title, message string) {
	fmt.Fprintf(a.out, "[%s] %s\n", title, message)
}

func (a *App) currentRoute() screens.Route {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.route
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed {
		a.logger.Info(context.Background(), fmt.Sprintf("Switched to %s mode", mode))
	}
}

func (a *App) isLoggedIn() bool {
	return a.provider.CurrentUser() != nil
}

func (a *App) getStatus() string {
	s := ""
	if u := a.provider.CurrentUser(); u != nil {
		s = u.Email + " "
	}
	a.mu.Lock()
	s += string(a.mode)
	a.mu.Unlock()
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Run restores the session, routes to the first screen and runs the REPL
// until the user exits.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	fmt.Fprintln(a.out, "Welcome to StudyNote CLI (type 'help' for commands)")

	if err := a.api.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
	} else {
		a.setMode(ModeOnline)
	}

	if err := a.provider.Restore(ctx); err != nil {
		a.logger.Warn(ctx, "session not restored", "error", err)
	}
	if err := screens.Launch(ctx, a.provider, a); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, a.reader)
	a.notes.Unmount()
	return nil
}

func (a *App) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	a.closers = nil
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.api.Ping(ctx); err != nil {
				a.setMode(ModeOffline)
			} else {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}
