// Package cli provides the interactive StudyNote command-line client.
//
// It wires configuration, the local session database, the gRPC transport and
// the screen state machines behind a REPL. On start the stored session is
// restored, the launch screen picks /notes or /login, and a background
// watcher reports connectivity changes.
//
// Commands:
//   - register / login / logout / forgot
//   - list, add, edit <n>, delete <n>
//   - export: download all notes as JSON
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
