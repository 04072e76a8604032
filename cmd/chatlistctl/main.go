package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/chatlist/internal/api"
	"github.com/matheus3301/chatlist/internal/chatlist"
	"github.com/matheus3301/chatlist/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	conn, err := api.Dial(session.SocketPath(sessionName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()
	c := api.NewClient(conn)

	if args[0] == "watch" {
		cmdWatch(c, *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "signin":
		if len(args) < 2 {
			fail("usage: chatlistctl signin <user-id> [display name]")
		}
		cmdSignIn(ctx, c, args[1], strings.Join(args[2:], " "), *jsonFlag)
	case "signout":
		check(c.SignOut(ctx))
		fmt.Println("Signed out.")
	case "list":
		cmdList(ctx, c, *jsonFlag)
	case "read":
		if len(args) != 2 {
			fail("usage: chatlistctl read <group-id>")
		}
		check(c.MarkRead(ctx, args[1]))
	case "send":
		if len(args) < 3 {
			fail("usage: chatlistctl send <group-id> <text>")
		}
		id, err := c.SendText(ctx, args[1], strings.Join(args[2:], " "))
		check(err)
		if *jsonFlag {
			outputJSON(map[string]string{"client_msg_id": id})
			return
		}
		fmt.Printf("Queued %s\n", id)
	case "group":
		if len(args) < 2 {
			fail("usage: chatlistctl group <create|rename|delete|add|remove> ...")
		}
		cmdGroup(ctx, c, args[1], args[2:], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatlistctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                           Show session status")
	fmt.Fprintln(os.Stderr, "  signin <user-id> [name]          Sign in")
	fmt.Fprintln(os.Stderr, "  signout                          Sign out and clear the list")
	fmt.Fprintln(os.Stderr, "  list                             Show the chat list")
	fmt.Fprintln(os.Stderr, "  read <group-id>                  Mark a group as read")
	fmt.Fprintln(os.Stderr, "  send <group-id> <text>           Send a message")
	fmt.Fprintln(os.Stderr, "  group create <name> [member...]  Create a group")
	fmt.Fprintln(os.Stderr, "  group rename <group-id> <name>   Rename a group")
	fmt.Fprintln(os.Stderr, "  group delete <group-id>          Delete a group")
	fmt.Fprintln(os.Stderr, "  group add <group-id> <user-id>   Add a member")
	fmt.Fprintln(os.Stderr, "  group remove <group-id> <user-id> Remove a member")
	fmt.Fprintln(os.Stderr, "  watch                            Stream chat list snapshots")
}

func cmdStatus(ctx context.Context, c *api.Client, jsonOut bool) {
	st, err := c.Status(ctx)
	check(err)
	printStatus(st, jsonOut)
}

func cmdSignIn(ctx context.Context, c *api.Client, userID, name string, jsonOut bool) {
	st, err := c.SignIn(ctx, userID, name)
	check(err)
	printStatus(st, jsonOut)
}

func printStatus(st api.Status, jsonOut bool) {
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Session: %s\n", st.Session)
	fmt.Printf("Status:  %s\n", st.State)
	if st.UserID != "" {
		fmt.Printf("User:    %s (%s)\n", st.UserID, st.DisplayName)
		fmt.Printf("Groups:  %d (%d unread)\n", st.GroupCount, st.UnreadGroups)
	}
	fmt.Printf("Outbox:  %d pending\n", st.PendingOutbox)
	fmt.Printf("Uptime:  %dms\n", st.UptimeMs)
}

func cmdList(ctx context.Context, c *api.Client, jsonOut bool) {
	entries, err := c.ListEntries(ctx)
	check(err)
	printEntries(entries, jsonOut)
}

func printEntries(entries []chatlist.Entry, jsonOut bool) {
	if jsonOut {
		outputJSON(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No groups.")
		return
	}
	for _, e := range entries {
		unread := ""
		if e.Unread() {
			unread = fmt.Sprintf(" (%d)", e.UnreadCount)
		}
		when := "-"
		if e.LastMessageAt > 0 {
			when = time.UnixMilli(e.LastMessageAt).Format("2006-01-02 15:04")
		}
		fmt.Printf("%-36s %-24s %s%s\n", e.GroupID, e.GroupName, when, unread)
		if e.LastMessageText != "" {
			fmt.Printf("    %s: %s\n", e.LastMessageSender, e.LastMessageText)
		}
	}
}

func cmdGroup(ctx context.Context, c *api.Client, sub string, args []string, jsonOut bool) {
	switch sub {
	case "create":
		if len(args) < 1 {
			fail("usage: chatlistctl group create <name> [member...]")
		}
		g, err := c.CreateGroup(ctx, args[0], args[1:])
		check(err)
		if jsonOut {
			outputJSON(g)
			return
		}
		fmt.Printf("Created %s (%s)\n", g.Name, g.ID)
	case "rename":
		if len(args) < 2 {
			fail("usage: chatlistctl group rename <group-id> <name>")
		}
		check(c.RenameGroup(ctx, args[0], strings.Join(args[1:], " ")))
	case "delete":
		if len(args) != 1 {
			fail("usage: chatlistctl group delete <group-id>")
		}
		check(c.DeleteGroup(ctx, args[0]))
	case "add":
		if len(args) != 2 {
			fail("usage: chatlistctl group add <group-id> <user-id>")
		}
		check(c.AddMember(ctx, args[0], args[1]))
	case "remove":
		if len(args) != 2 {
			fail("usage: chatlistctl group remove <group-id> <user-id>")
		}
		check(c.RemoveMember(ctx, args[0], args[1]))
	default:
		fail(fmt.Sprintf("unknown group subcommand: %s", sub))
	}
}

func cmdWatch(c *api.Client, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := c.WatchSnapshots(ctx, func(userID string, entries []chatlist.Entry) {
		if jsonOut {
			outputJSON(map[string]any{"user_id": userID, "entries": entries})
			return
		}
		fmt.Printf("--- %s, %d groups ---\n", userID, len(entries))
		printEntries(entries, false)
	})
	check(err)
}

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
