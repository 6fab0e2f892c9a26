package cli

import (
	"bufio"
	"context"
	"fmt"
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
	Logout(ctx context.Context) error
	Incident(ctx context.Context, args []string) error
	Room(ctx context.Context, args []string) error
	Add(ctx context.Context, category, payload string) error
	Edit(ctx context.Context, id, payload string) error
	Delete(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Status(ctx context.Context) error
	Sync(ctx context.Context) error
	Refresh(ctx context.Context) error
	Map(ctx context.Context) error
}

// splitHead returns the first word of s and the untouched rest, so JSON
// payloads keep their spacing.
func splitHead(s string) (head, rest string) {
	s = strings.TrimSpace(s)
	head, rest, _ = strings.Cut(s, " ")
	return head, strings.TrimSpace(rest)
}

// runREPL starts a simple read–eval–print loop for the field client.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help                  — show available commands
//	  - register              — create an account
//	  - login                 — authenticate
//	  - status                — show session and queue
//	  - exit | quit           — leave the program
//
//	Logged in:
//	  - incident <id>         — select an incident and pull it
//	  - room <id>             — select a collaboration room and pull it
//	  - add <category> [json] — create content in the selected scope
//	  - edit <id> [json]      — replace the payload of an entity
//	  - delete <id>           — delete an entity
//	  - (l)ist [category]     — list entities of the selected scope
//	  - show <id>             — show one entity
//	  - status                — show session and queue
//	  - sync                  — push every local change
//	  - refresh               — pull everything for the selected scope
//	  - map                   — print the map overlays
//	  - logout                — log out and wipe local data
//	  - exit | quit           — leave the program
//
// Command errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("fs> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		cmd, rest := splitHead(scanner.Text())
		if cmd == "" {
			continue
		}
		args := strings.Fields(rest)

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: incident, room, add, edit, delete, (l)ist, show, status, sync, refresh, map, logout, exit")
			} else {
				printlnFn("Available commands: register, login, status, exit")
			}

		case "register":
			err = a.Register(ctx)

		case "login":
			err = a.Login(ctx)

		case "status":
			err = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		case "incident", "room", "add", "edit", "delete", "l", "list", "show", "sync", "refresh", "map", "logout":
			if !a.isLoggedIn() {
				printlnFn("Please login first")
				continue
			}
			err = dispatch(ctx, a, cmd, rest, args)

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd, rest string, args []string) error {
	switch cmd {
	case "incident":
		return a.Incident(ctx, args)
	case "room":
		return a.Room(ctx, args)
	case "add":
		category, payload := splitHead(rest)
		return a.Add(ctx, category, payload)
	case "edit":
		id, payload := splitHead(rest)
		return a.Edit(ctx, id, payload)
	case "delete":
		return a.Delete(ctx, args)
	case "l", "list":
		return a.List(ctx, args)
	case "show":
		return a.Show(ctx, args)
	case "sync":
		return a.Sync(ctx)
	case "refresh":
		return a.Refresh(ctx)
	case "map":
		return a.Map(ctx)
	case "logout":
		return a.Logout(ctx)
	}
	return nil
}
