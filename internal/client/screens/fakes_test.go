package screens

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/studynote/internal/client/auth"
	"github.com/dmitrijs2005/studynote/internal/client/notes"
	"github.com/dmitrijs2005/studynote/internal/client/store"
	"github.com/dmitrijs2005/studynote/internal/common"
)

var errBoom = errors.New("boom")

type fakeProvider struct {
	mu         sync.Mutex
	user       *auth.User
	known      map[string]string
	err        error
	signOutErr error
	listeners  []func(*auth.User)
	resolved   bool
	signIns    int
}

func (p *fakeProvider) SignIn(ctx context.Context, email, password string) (*auth.User, error) {
	p.mu.Lock()
	p.signIns++
	if p.err != nil {
		p.mu.Unlock()
		return nil, p.err
	}
	pw, ok := p.known[email]
	p.mu.Unlock()
	if !ok {
		return nil, common.NewAuthError(common.CodeUserNotFound)
	}
	if pw != password {
		return nil, common.NewAuthError(common.CodeWrongPassword)
	}
	u := &auth.User{ID: "uid-" + email, Email: email}
	p.set(u)
	return u, nil
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string) (*auth.User, error) {
	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return nil, p.err
	}
	if _, ok := p.known[email]; ok {
		p.mu.Unlock()
		return nil, common.NewAuthError(common.CodeEmailInUse)
	}
	if p.known == nil {
		p.known = map[string]string{}
	}
	p.known[email] = password
	p.mu.Unlock()

	u := &auth.User{ID: "uid-" + email, Email: email}
	p.set(u)
	return u, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	if p.signOutErr != nil {
		return p.signOutErr
	}
	p.set(nil)
	return nil
}

func (p *fakeProvider) CurrentUser() *auth.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user
}

func (p *fakeProvider) OnAuthStateChanged(fn func(*auth.User)) func() {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	idx := len(p.listeners) - 1
	resolved, u := p.resolved, p.user
	p.mu.Unlock()
	if resolved {
		fn(u)
	}
	return func() {
		p.mu.Lock()
		p.listeners[idx] = nil
		p.mu.Unlock()
	}
}

func (p *fakeProvider) set(u *auth.User) {
	p.mu.Lock()
	p.user = u
	p.resolved = true
	fns := append([]func(*auth.User){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(u)
		}
	}
}

func (p *fakeProvider) active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, fn := range p.listeners {
		if fn != nil {
			n++
		}
	}
	return n
}

type recordingNav struct {
	mu     sync.Mutex
	routes []Route
}

func (n *recordingNav) Replace(r Route) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, r)
}

func (n *recordingNav) last() Route {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.routes) == 0 {
		return ""
	}
	return n.routes[len(n.routes)-1]
}

type alert struct{ title, message string }

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []alert
}

func (a *recordingAlerts) Alert(title, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, alert{title, message})
}

func (a *recordingAlerts) all() []alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]alert(nil), a.alerts...)
}

// spyDAL counts calls into a real notes.DAL and can fail or block them.
type spyDAL struct {
	*notes.DAL

	mu         sync.Mutex
	creates    int
	updates    int
	deletes    int
	subscribes int
	err        error
	gate       chan struct{}
}

func newSpyDAL() (*spyDAL, *store.Memory) {
	m := store.NewMemory()
	return &spyDAL{DAL: notes.New(m)}, m
}

func (d *spyDAL) wait() error {
	d.mu.Lock()
	gate, err := d.gate, d.err
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (d *spyDAL) Subscribe(userID string, fn func([]notes.Note)) (store.Unsubscribe, error) {
	d.mu.Lock()
	d.subscribes++
	d.mu.Unlock()
	return d.DAL.Subscribe(userID, fn)
}

func (d *spyDAL) Create(ctx context.Context, userID string, c notes.Content) error {
	d.mu.Lock()
	d.creates++
	d.mu.Unlock()
	if err := d.wait(); err != nil {
		return err
	}
	return d.DAL.Create(ctx, userID, c)
}

func (d *spyDAL) Update(ctx context.Context, id string, c notes.Content) error {
	d.mu.Lock()
	d.updates++
	d.mu.Unlock()
	if err := d.wait(); err != nil {
		return err
	}
	return d.DAL.Update(ctx, id, c)
}

func (d *spyDAL) Delete(ctx context.Context, id string) error {
	d.mu.Lock()
	d.deletes++
	d.mu.Unlock()
	if err := d.wait(); err != nil {
		return err
	}
	return d.DAL.Delete(ctx, id)
}
