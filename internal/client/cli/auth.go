package cli

import (
	"context"

	"github.com/dmitrijs2005/studynote/internal/client/screens"
	"github.com/dmitrijs2005/studynote/internal/common"
)

// getSimpleText, getPassword and getMultiline are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword
var getMultiline = GetMultiline

func (a *App) credentials() (string, []byte, error) {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return email, password, nil
}

func (a *App) submit(ctx context.Context, form *screens.AuthForm) error {
	email, password, err := a.credentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	form.Submit(ctx, email, string(password))
	return nil
}

// Register prompts for an email and password and creates an account. The
// register form reports failures itself.
func (a *App) Register(ctx context.Context) error {
	return a.submit(ctx, a.register)
}

// Login prompts for credentials and signs in.
func (a *App) Login(ctx context.Context) error {
	return a.submit(ctx, a.login)
}

func (a *App) Logout(ctx context.Context) error {
	a.notes.SignOut(ctx)
	return nil
}

// Forgot stands in for the password reset screen, which does not exist yet.
func (a *App) Forgot(ctx context.Context) error {
	a.Alert("Forgot password", "Password reset is not available yet.")
	return nil
}
