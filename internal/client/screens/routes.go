// Package screens holds the state machines behind the app's screens. They
// render nothing; a front end observes them and forwards user actions.
package screens

type Route string

const (
	RouteLogin          Route = "/login"
	RouteRegister       Route = "/register"
	RouteNotes          Route = "/notes"
	RouteForgotPassword Route = "/forgot-password"
)

// Navigator switches the visible screen. Replacing a screen unmounts it.
type Navigator interface {
	Replace(route Route)
}

// Alerter shows a modal message.
type Alerter interface {
	Alert(title, message string)
}

const alertError = "Error"
