package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Forgot(ctx context.Context) error
	List(ctx context.Context) error
	Add(ctx context.Context) error
	Edit(ctx context.Context, arg string) error
	Delete(ctx context.Context, arg string) error
	Export(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the StudyNote CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. The loop exits on EOF or when the user types
// "exit" or "quit".
//
//	Not logged in:
//	  - help                 show available commands
//	  - register             create an account
//	  - login                authenticate
//	  - forgot               password reset (not available)
//	  - exit | quit          leave the program
//
//	Logged in:
//	  - (l)ist               list notes
//	  - add                  add a note
//	  - edit <n>             edit note n
//	  - delete <n>           delete note n
//	  - export               download all notes as JSON
//	  - logout               sign out
//	  - exit | quit          leave the program
//
// Errors returned by command handlers are printed; the loop keeps going.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("sn %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if !a.isLoggedIn() {
			switch cmd {
			case "help":
				printlnFn("Available commands: register, login, forgot, exit")
			case "register":
				report(a.Register(ctx))
			case "login":
				report(a.Login(ctx))
			case "forgot":
				report(a.Forgot(ctx))
			case "exit", "quit":
				printlnFn("Bye!")
				return
			default:
				printlnFn("Unknown command:", cmd, "(please login first)")
			}
			continue
		}

		switch cmd {
		case "help":
			printlnFn("Available commands: (l)ist, add, edit <n>, delete <n>, export, logout, exit")
		case "l", "list":
			report(a.List(ctx))
		case "add":
			report(a.Add(ctx))
		case "edit", "delete":
			if len(args) != 1 {
				printlnFn(fmt.Sprintf("Usage: %s <n>", cmd))
				continue
			}
			if cmd == "edit" {
				report(a.Edit(ctx, args[0]))
			} else {
				report(a.Delete(ctx, args[0]))
			}
		case "export":
			report(a.Export(ctx))
		case "logout":
			report(a.Logout(ctx))
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

func report(err error) {
	if err != nil {
		printlnFn("Error:", err)
	}
}
