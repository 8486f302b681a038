package screens

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/studynote/internal/client/auth"
	"github.com/dmitrijs2005/studynote/internal/common"
)

type AuthMode int

const (
	ModeLogin AuthMode = iota
	ModeRegister
)

type authModeText struct {
	alertTitle  string
	emptyFields string
	fallback    string
	messages    map[common.AuthCode]string
}

var authTexts = map[AuthMode]authModeText{
	ModeLogin: {
		alertTitle:  "Login Error",
		emptyFields: "Please fill in all fields",
		fallback:    "Login failed. Please try again.",
		messages: map[common.AuthCode]string{
			common.CodeInvalidEmail:    "Invalid email format",
			common.CodeUserNotFound:    "Invalid email or password",
			common.CodeWrongPassword:   "Invalid email or password",
			common.CodeTooManyRequests: "Too many attempts. Try again later",
		},
	},
	ModeRegister: {
		alertTitle:  "Registration Error",
		emptyFields: "Please fill all fields",
		fallback:    "Registration failed. Please try again.",
		messages: map[common.AuthCode]string{
			common.CodeEmailInUse:   "This email is already in use.",
			common.CodeInvalidEmail: "Please enter a valid email address.",
			common.CodeWeakPassword: "Password should be at least 6 characters.",
		},
	},
}

// AuthForm backs both the login and the register screen.
type AuthForm struct {
	mode     AuthMode
	auth     auth.Provider
	nav      Navigator
	alerts   Alerter
	requests *requests
}

func NewLoginForm(p auth.Provider, nav Navigator, alerts Alerter) *AuthForm {
	return &AuthForm{mode: ModeLogin, auth: p, nav: nav, alerts: alerts, requests: newRequests()}
}

func NewRegisterForm(p auth.Provider, nav Navigator, alerts Alerter) *AuthForm {
	return &AuthForm{mode: ModeRegister, auth: p, nav: nav, alerts: alerts, requests: newRequests()}
}

func (f *AuthForm) Mode() AuthMode {
	return f.mode
}

// Submitting reports whether a submit is in flight.
func (f *AuthForm) Submitting() bool {
	return f.requests.get(ActionSubmit).Status == StatusSubmitting
}

// Submit validates the fields, calls the provider and goes to the notes
// screen on success. It reports whether the user is now signed in.
func (f *AuthForm) Submit(ctx context.Context, email, password string) bool {
	text := authTexts[f.mode]

	if strings.TrimSpace(email) == "" || password == "" {
		f.alerts.Alert(alertError, text.emptyFields)
		return false
	}
	if !f.requests.begin(ActionSubmit) {
		return false
	}
	defer f.requests.reset(ActionSubmit)

	var err error
	if f.mode == ModeRegister {
		_, err = f.auth.SignUp(ctx, email, password)
	} else {
		_, err = f.auth.SignIn(ctx, email, password)
	}
	if err != nil {
		f.alerts.Alert(text.alertTitle, AuthErrorMessage(f.mode, err))
		return false
	}

	f.nav.Replace(RouteNotes)
	return true
}

// AuthErrorMessage turns a provider failure into the message shown to the
// user.
func AuthErrorMessage(mode AuthMode, err error) string {
	text := authTexts[mode]
	if code, ok := common.AuthCodeOf(err); ok {
		if msg, ok := text.messages[code]; ok {
			return msg
		}
	}
	return text.fallback
}
