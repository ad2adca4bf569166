package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/matheus3301/tgchats/internal/api"
	"github.com/matheus3301/tgchats/internal/bus"
	"github.com/matheus3301/tgchats/internal/lock"
	"github.com/matheus3301/tgchats/internal/session"
	"github.com/matheus3301/tgchats/internal/tui/client"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const (
	callTimeout  = 10 * time.Second
	loginTimeout = 60 * time.Second
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fatalf("%v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := client.New(session.SocketPath(sessionName))
	if err != nil {
		fatalf("cannot connect to daemon for session %q: %v", sessionName, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if !c.Serving(ctx) {
		owner, _ := lock.ReadOwner(session.Dir(sessionName))
		if owner.PID != 0 {
			fatalf("daemon for session %q (PID %d) is not serving", sessionName, owner.PID)
		}
		fatalf("daemon for session %q is not running; start it with tgchatsd --session %s", sessionName, sessionName)
	}

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "chats":
		cmdChats(ctx, c, *jsonFlag)
	case "thumbs":
		if len(args) >= 2 {
			out := args[1] + ".img"
			if len(args) >= 3 {
				out = args[2]
			}
			cmdThumbSave(ctx, c, args[1], out)
			return
		}
		cmdThumbs(ctx, c)
	case "media":
		if len(args) < 3 {
			fatalf("usage: tgchatsctl media <chat_id> <message_id>")
		}
		chatID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fatalf("invalid chat id %q", args[1])
		}
		messageID, err := strconv.Atoi(args[2])
		if err != nil {
			fatalf("invalid message id %q", args[2])
		}
		cmdMedia(c, chatID, messageID)
	case "login":
		if len(args) < 2 {
			fatalf("usage: tgchatsctl login <phone>")
		}
		cmdLogin(c, args[1])
	case "code":
		if len(args) < 2 {
			fatalf("usage: tgchatsctl code <code> [password]")
		}
		password := ""
		if len(args) >= 3 {
			password = args[2]
		}
		cmdCode(c, args[1], password)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: tgchatsctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                   Show session status")
	fmt.Fprintln(os.Stderr, "  chats                    List synchronized chats")
	fmt.Fprintln(os.Stderr, "  thumbs [id] [file]       List thumbnails, or save one to file")
	fmt.Fprintln(os.Stderr, "  media <chat> <msg>       Download a message's media")
	fmt.Fprintln(os.Stderr, "  login <phone>            Request a login code")
	fmt.Fprintln(os.Stderr, "  code <code> [password]   Complete the login")
}

func cmdStatus(ctx context.Context, c *client.Client, jsonOut bool) {
	snap, err := c.State.GetSnapshot(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	if jsonOut {
		outputJSON(snap)
		return
	}
	v := api.DecodeSnapshot(snap)
	fmt.Printf("Session:    %s\n", v.Session)
	fmt.Printf("Status:     %s\n", v.Status)
	fmt.Printf("Uptime:     %s\n", (time.Duration(v.UptimeMs) * time.Millisecond).Round(time.Second))
	fmt.Printf("Connected:  %v\n", v.Connected)
	fmt.Printf("Authorized: %v\n", v.Authorized)
	if v.Self != nil {
		fmt.Printf("Account:    %s (%d)\n", v.Self.Name, v.Self.ID)
	}
	fmt.Printf("Chats:      %d (%d thumbnails)\n", len(v.Chats), v.Thumbnails)
	if !v.LastSyncAt.IsZero() {
		fmt.Printf("Last sync:  %s (%d chats)\n", v.LastSyncAt.Format(time.RFC3339), v.LastSyncChats)
	}
}

func cmdChats(ctx context.Context, c *client.Client, jsonOut bool) {
	snap, err := c.State.GetSnapshot(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	if jsonOut {
		outputJSON(snap.GetFields()["chats"])
		return
	}
	v := api.DecodeSnapshot(snap)
	if len(v.Chats) == 0 {
		fmt.Println("No chats synchronized yet.")
		return
	}
	for _, ch := range v.Chats {
		flags := ""
		if ch.Self {
			flags += "*"
		}
		if ch.Muted {
			flags += "m"
		}
		if ch.HasThumbnail {
			flags += "t"
		}
		fmt.Printf("%-16d %-3s %s\n", ch.ID, flags, ch.Name)
	}
}

func cmdThumbs(ctx context.Context, c *client.Client) {
	snap, err := c.State.GetSnapshot(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	v := api.DecodeSnapshot(snap)
	for _, ch := range v.Chats {
		if ch.PhotoID == "" {
			continue
		}
		state := "pending"
		if ch.HasThumbnail {
			state = "resolved"
		}
		fmt.Printf("%-20s %-7s %-9s %s\n", ch.PhotoID, ch.IconKind, state, ch.Name)
	}
}

func cmdThumbSave(ctx context.Context, c *client.Client, photoID, out string) {
	data, err := c.State.GetThumbnail(ctx, photoID)
	if err != nil {
		fatalf("%v", err)
	}
	if err := os.WriteFile(out, data, 0600); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("wrote %d bytes to %s\n", len(data), out)
}

func cmdMedia(c *client.Client, chatID int64, messageID int) {
	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()

	stream, err := c.State.Watch(ctx)
	if err != nil {
		fatalf("watch: %v", err)
	}
	if err := c.Media.Download(ctx, chatID, messageID); err != nil {
		fatalf("%v", err)
	}
	hash := fmt.Sprintf("%d:%d", chatID, messageID)
	for {
		msg, err := stream.Recv()
		if err != nil {
			fatalf("no media received for %s (see the daemon log): %v", hash, err)
		}
		evt := api.DecodeEvent(msg)
		if evt.Kind != bus.KindMediaDownloaded {
			continue
		}
		if p, _ := evt.Payload.(map[string]any); p["hash"] == hash {
			fmt.Printf("downloaded %s (%v bytes)\n", hash, p["size"])
			return
		}
	}
}

func cmdLogin(c *client.Client, phone string) {
	awaitAuth(c, func(ctx context.Context) error {
		return c.Auth.SendCode(ctx, phone)
	}, "code_sent")
	fmt.Println("Code sent. Complete the login with: tgchatsctl code <code> [password]")
}

func cmdCode(c *client.Client, code, password string) {
	awaitAuth(c, func(ctx context.Context) error {
		return c.Auth.SignIn(ctx, "", code, password)
	}, "authorized")
	fmt.Println("Logged in. The chat list is synchronizing.")
}

// awaitAuth runs call with the event stream already open, then waits for
// the auth progress stage it should lead to.
func awaitAuth(c *client.Client, call func(context.Context) error, want string) {
	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)
	defer cancel()

	stream, err := c.State.Watch(ctx)
	if err != nil {
		fatalf("watch: %v", err)
	}
	if err := call(ctx); err != nil {
		fatalf("%v", err)
	}
	for {
		msg, err := stream.Recv()
		if err != nil {
			fatalf("waiting for the daemon: %v", err)
		}
		evt := api.DecodeEvent(msg)
		if evt.Kind != bus.KindAuthProgress {
			continue
		}
		p, _ := evt.Payload.(map[string]any)
		switch p["stage"] {
		case want:
			return
		case "failed":
			fatalf("login failed: %v", p["error"])
		}
	}
}

func outputJSON(m proto.Message) {
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
