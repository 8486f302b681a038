// Package auth is the client view of the authentication provider: sign-in,
// sign-up, sign-out, the current user and session-change notifications.
package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/studynote/internal/client/client"
	"github.com/dmitrijs2005/studynote/internal/client/repositories/session"
	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/logging"
	"github.com/dmitrijs2005/studynote/internal/rpc"
)

// User is the signed-in account.
type User struct {
	ID    string
	Email string
}

// Provider is implemented by authentication backends. Failed calls return a
// *common.AuthError carrying the provider code.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignUp(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	// CurrentUser returns nil when nobody is signed in.
	CurrentUser() *User
	// OnAuthStateChanged calls fn with the current user once the session
	// state is known, and again on every change.
	OnAuthStateChanged(fn func(*User)) (unsubscribe func())
}

// Backend is the transport the provider drives.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (rpc.Session, error)
	SignUp(ctx context.Context, email, password string) (rpc.Session, error)
	Resume(ctx context.Context, refreshToken string) (rpc.Session, error)
	SignOut(ctx context.Context) error
	OnTokensRefreshed(fn func(rpc.Session))
}

type GRPCProvider struct {
	backend  Backend
	sessions session.Repository
	logger   logging.Logger

	mu        sync.Mutex
	user      *User
	resolved  bool
	listeners map[int]func(*User)
	nextID    int
}

func NewGRPCProvider(b Backend, repo session.Repository, l logging.Logger) *GRPCProvider {
	p := &GRPCProvider{
		backend:   b,
		sessions:  repo,
		logger:    l.With("module", "auth"),
		listeners: make(map[int]func(*User)),
	}
	b.OnTokensRefreshed(p.persistRotated)
	return p
}

// Restore resumes the stored session, if any, and publishes the initial
// auth state. A rejected session is forgotten; an unreachable server leaves
// it stored for the next start.
func (p *GRPCProvider) Restore(ctx context.Context) error {
	var user *User
	defer func() { p.setUser(user) }()

	stored, err := p.sessions.Load(ctx)
	if err != nil {
		return err
	}
	if stored == nil {
		return nil
	}

	sess, err := p.backend.Resume(ctx, stored.RefreshToken)
	switch {
	case err == nil:
	case errors.Is(err, client.ErrUnavailable):
		p.logger.Warn(ctx, "server unavailable, session not restored")
		return nil
	default:
		p.logger.Info(ctx, "stored session rejected", "error", err)
		return p.sessions.Clear(ctx)
	}

	user = &User{ID: sess.UserID, Email: stored.Email}
	p.save(ctx, user, sess.RefreshToken)
	return nil
}

func (p *GRPCProvider) SignIn(ctx context.Context, email, password string) (*User, error) {
	sess, err := p.backend.SignIn(ctx, email, password)
	if err != nil {
		return nil, toAuthError(err)
	}
	return p.start(ctx, sess), nil
}

func (p *GRPCProvider) SignUp(ctx context.Context, email, password string) (*User, error) {
	sess, err := p.backend.SignUp(ctx, email, password)
	if err != nil {
		return nil, toAuthError(err)
	}
	return p.start(ctx, sess), nil
}

// SignOut always ends the local session. Failing to revoke the refresh token
// on the server is only logged.
func (p *GRPCProvider) SignOut(ctx context.Context) error {
	if err := p.backend.SignOut(ctx); err != nil {
		p.logger.Warn(ctx, "refresh token not revoked", "error", err)
	}
	if err := p.sessions.Clear(ctx); err != nil {
		return err
	}
	p.setUser(nil)
	return nil
}

func (p *GRPCProvider) CurrentUser() *User {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

func (p *GRPCProvider) OnAuthStateChanged(fn func(*User)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	resolved, current := p.resolved, p.user
	p.mu.Unlock()

	if resolved {
		fn(copyUser(current))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *GRPCProvider) start(ctx context.Context, sess rpc.Session) *User {
	user := &User{ID: sess.UserID, Email: sess.Email}
	p.save(ctx, user, sess.RefreshToken)
	p.setUser(user)
	return copyUser(user)
}

// save persists the session; a failure only costs the next restart a
// sign-in.
func (p *GRPCProvider) save(ctx context.Context, u *User, refreshToken string) {
	err := p.sessions.Save(ctx, session.Session{UserID: u.ID, Email: u.Email, RefreshToken: refreshToken})
	if err != nil {
		p.logger.Warn(ctx, "session not persisted", "error", err)
	}
}

func (p *GRPCProvider) persistRotated(sess rpc.Session) {
	u := p.CurrentUser()
	if u == nil || u.ID != sess.UserID {
		return
	}
	p.save(context.Background(), u, sess.RefreshToken)
}

func (p *GRPCProvider) setUser(u *User) {
	p.mu.Lock()
	p.user = u
	p.resolved = true
	fns := make([]func(*User), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(copyUser(u))
	}
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// toAuthError makes sure every failure carries a provider code.
func toAuthError(err error) error {
	if _, ok := common.AuthCodeOf(err); ok {
		return err
	}
	if errors.Is(err, client.ErrUnavailable) {
		return &common.AuthError{Code: common.CodeNetworkFailed, Err: err}
	}
	return &common.AuthError{Code: common.CodeInternal, Err: err}
}
