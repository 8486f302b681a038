package screens

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/studynote/internal/client/auth"
)

// Launch waits for the first auth-state notification and routes to the notes
// screen or to login. The listener is released before returning.
func Launch(ctx context.Context, p auth.Provider, nav Navigator) error {
	var once sync.Once
	done := make(chan struct{})

	unsubscribe := p.OnAuthStateChanged(func(u *auth.User) {
		once.Do(func() {
			if u != nil {
				nav.Replace(RouteNotes)
			} else {
				nav.Replace(RouteLogin)
			}
			close(done)
		})
	})
	defer unsubscribe()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
