package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/example/nats-chat-client/internal/chat"
	"github.com/example/nats-chat-client/internal/identity"
	"github.com/example/nats-chat-client/internal/localstore"
	"github.com/example/nats-chat-client/internal/store"
	"github.com/example/nats-chat-client/pkg/otelhelper"
)

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nats-chat-client"
	}
	return filepath.Join(home, ".nats-chat-client")
}

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	otelShutdown, err := otelhelper.Init(ctx, "chat-client")
	if err != nil {
		slog.Error("Failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx)

	natsURL := envOrDefault("NATS_URL", "nats://localhost:4222")
	natsUser := envOrDefault("NATS_USER", "")
	natsPass := envOrDefault("NATS_PASS", "")
	stateDir := envOrDefault("CHAT_STATE_DIR", defaultStateDir())

	slog.Info("Starting chat client", "nats_url", natsURL, "state_dir", stateDir)

	ident, err := identity.Load(stateDir)
	if err != nil {
		slog.Error("Failed to load identity", "error", err)
		os.Exit(1)
	}

	local, err := localstore.Open(filepath.Join(stateDir, "chat.db"))
	if err != nil {
		slog.Error("Failed to open local store", "error", err)
		os.Exit(1)
	}
	defer local.Close()

	profile, err := local.Profile(ctx)
	if err != nil {
		slog.Error("Failed to load profile", "error", err)
		os.Exit(1)
	}
	// An access token, when present, prefills the display name on first run.
	if token := os.Getenv("CHAT_TOKEN"); token != "" && profile.UserID == "" {
		if name, err := identity.DisplayNameFromToken(token); err == nil {
			profile.Name = name
		} else {
			slog.Warn("Ignoring CHAT_TOKEN", "error", err)
		}
	}
	profile.UserID = ident.UserID()

	// Connect to NATS with retry
	opts := []nats.Option{
		nats.Name("chat-client-" + uuid.NewString()[:8]),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if natsUser != "" {
		opts = append(opts, nats.UserInfo(natsUser, natsPass))
	}
	var nc *nats.Conn
	for attempt := 1; attempt <= 30; attempt++ {
		nc, err = nats.Connect(natsURL, opts...)
		if err == nil {
			break
		}
		slog.Info("Waiting for NATS", "attempt", attempt, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		slog.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Drain()
	slog.Info("Connected to NATS", "url", nc.ConnectedUrl())

	js, err := jetstream.New(nc)
	if err != nil {
		slog.Error("Failed to create JetStream context", "error", err)
		os.Exit(1)
	}
	msgStore, err := store.NewJetStreamStore(ctx, js)
	if err != nil {
		slog.Error("Failed to bind message stream", "error", err)
		os.Exit(1)
	}
	blobStore, err := store.NewObjectBlobStore(ctx, js)
	if err != nil {
		slog.Error("Failed to bind media bucket", "error", err)
		os.Exit(1)
	}

	session := chat.NewSession(msgStore, blobStore, ident.UserID(), profile.Name,
		func(n chat.Notice) {
			fmt.Printf("! %s\n", n.Text)
			slog.Warn(n.Text, "error", n.Err)
		})
	defer session.Close()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go repl(sigCtx, stop, session, local)

	<-sigCtx.Done()
	slog.Info("Shutting down chat client")
}

// repl is the throwaway terminal front end; all state lives in the
// session and the local store.
func repl(ctx context.Context, stop func(), session *chat.Session, local *localstore.Store) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: /create /join CODE [NAME] /rooms /open CODE /rename CODE NAME /leave CODE")
	fmt.Println("          /msgs /reply ID /cancel /select /toggle ID /confirm /done /edit ID TEXT /img PATH /profile NAME [BIO] /quit")

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := session.SendText(ctx, line); err != nil {
				fmt.Printf("! %v\n", err)
			}
			continue
		}

		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		switch cmd {
		case "/create":
			code := localstore.GenerateRoomCode()
			if err := local.AddRoom(ctx, code, code); err != nil {
				fmt.Printf("! %v\n", err)
				continue
			}
			fmt.Printf("created %s\n", code)
			openRoom(ctx, session, code)
		case "/join":
			if len(args) < 1 {
				fmt.Println("usage: /join CODE [NAME]")
				continue
			}
			code := strings.ToUpper(args[0])
			name := code
			if len(args) > 1 {
				name = strings.Join(args[1:], " ")
			}
			if err := local.AddRoom(ctx, code, name); err != nil {
				fmt.Printf("! %v\n", err)
				continue
			}
			openRoom(ctx, session, code)
		case "/rooms":
			rooms, err := local.Rooms(ctx)
			if err != nil {
				fmt.Printf("! %v\n", err)
				continue
			}
			for _, r := range rooms {
				marker := " "
				if r.ID == session.Room() {
					marker = "*"
				}
				fmt.Printf("%s %s  (%s)\n", marker, r.DisplayName, r.ID)
			}
		case "/open":
			if len(args) != 1 {
				fmt.Println("usage: /open CODE")
				continue
			}
			openRoom(ctx, session, strings.ToUpper(args[0]))
		case "/rename":
			if len(args) < 2 {
				fmt.Println("usage: /rename CODE NAME")
				continue
			}
			if err := local.RenameRoom(ctx, strings.ToUpper(args[0]), strings.Join(args[1:], " ")); err != nil {
				fmt.Printf("! %v\n", err)
			}
		case "/leave":
			if len(args) != 1 {
				fmt.Println("usage: /leave CODE")
				continue
			}
			code := strings.ToUpper(args[0])
			if err := local.RemoveRoom(ctx, code); err != nil {
				fmt.Printf("! %v\n", err)
				continue
			}
			if session.Room() == code {
				session.Close()
			}
		case "/msgs":
			printMessages(session)
		case "/reply":
			if len(args) != 1 || !session.SetReplyDraft(args[0]) {
				fmt.Println("no such message")
			}
		case "/cancel":
			session.ClearReplyDraft()
		case "/select":
			session.EnterSelection()
		case "/toggle":
			if len(args) != 1 || !session.ToggleSelect(args[0]) {
				fmt.Println("no such message")
			}
		case "/confirm":
			session.ConfirmDelete(ctx)
		case "/done":
			session.ExitSelection()
		case "/edit":
			if len(args) < 2 {
				fmt.Println("usage: /edit ID TEXT")
				continue
			}
			if err := session.EditMessage(ctx, args[0], strings.Join(args[1:], " ")); err != nil {
				fmt.Printf("! %v\n", err)
			}
		case "/img":
			if len(args) != 1 {
				fmt.Println("usage: /img PATH")
				continue
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Printf("! %v\n", err)
				continue
			}
			if err := session.SendImage(ctx, data); err != nil {
				fmt.Printf("! %v\n", err)
			}
		case "/profile":
			if len(args) < 1 {
				fmt.Println("usage: /profile NAME [BIO]")
				continue
			}
			p, err := local.Profile(ctx)
			if err != nil {
				fmt.Printf("! %v\n", err)
				continue
			}
			p.Name = args[0]
			if len(args) > 1 {
				p.Bio = strings.Join(args[1:], " ")
			}
			if err := local.SaveProfile(ctx, p); err != nil {
				fmt.Printf("! %v\n", err)
				continue
			}
			session.SetAuthorName(p.Name)
		case "/quit":
			stop()
			return
		default:
			fmt.Printf("unknown command %s\n", cmd)
		}
	}
}

func openRoom(ctx context.Context, session *chat.Session, code string) {
	if err := session.SwitchRoom(ctx, code); err != nil {
		return // the session already surfaced a notice
	}
	// Give the replay a moment before the first render.
	time.Sleep(300 * time.Millisecond)
	printMessages(session)
}

func printMessages(session *chat.Session) {
	msgs := session.Messages()
	if len(msgs) == 0 {
		fmt.Println("(no messages yet)")
		return
	}
	for _, m := range msgs {
		if m.ReplyRef != nil {
			fmt.Printf("    ↪ %s: %s\n", m.ReplyRef.AuthorName, m.ReplyRef.Snippet)
		}
		fmt.Printf("[%s] %s %s: %s\n", m.ID, m.DisplayTime, m.AuthorName, m.Body)
	}
}
