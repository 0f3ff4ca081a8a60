package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"chat-sync/client"
	"chat-sync/protocol"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `envconfig:"CHAT_SERVER_URL" default:"ws://localhost:8080/ws"`
	Token     string `envconfig:"CHAT_TOKEN" required:"true"`
	Room      string `envconfig:"CHAT_ROOM" default:"global"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Load configuration from environment variables.
	_ = godotenv.Load()
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect and join.
	c, err := client.Dial(ctx, config.ServerURL, config.Token, log)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = c.Close() }()

	if err := c.JoinRoom(config.Room); err != nil {
		return exitRuntime, fmt.Errorf("joining room %q: %w", config.Room, err)
	}
	color.Cyan.Printf(">>> Connected to %s, room %q (Ctrl+C to quit)\n", config.ServerURL, config.Room)

	// The reconciler runs on the read goroutine; the input loop only reads
	// this guarded copy of the presence snapshot.
	var (
		presenceMu sync.Mutex
		online     []protocol.PresenceUser
	)

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- c.Listen(ctx, func(env protocol.Envelope) {
			render(c.Reconciler(), env)
			if env.Event == protocol.EventOnlineUsers {
				presenceMu.Lock()
				online = c.Reconciler().OnlineUsers()
				presenceMu.Unlock()
			}
		})
	}()

	composer := client.NewComposer(c, client.DefaultQuietPeriod)

	// 4. Input loop: plain lines are messages, /-commands do the rest.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case err := <-listenErr:
			if err != nil {
				return exitRuntime, err
			}
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if err := handleLine(c, composer, line, &presenceMu, &online); err != nil {
				color.Red.Println(err)
			}
		}
	}
}

func handleLine(c *client.Client, composer *client.Composer, line string,
	presenceMu *sync.Mutex, online *[]protocol.PresenceUser) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	switch {
	case line == "/users":
		presenceMu.Lock()
		users := append([]protocol.PresenceUser{}, *online...)
		presenceMu.Unlock()
		printUsers(users)
		return nil
	case strings.HasPrefix(line, "/search "):
		return c.SearchMessages(strings.TrimPrefix(line, "/search "), 0)
	default:
		composer.Keystroke()
		err := c.SendMessage(line, "", "")
		composer.Submit()
		return err
	}
}

func render(rec *client.Reconciler, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventMessage, protocol.EventPrivateMessage:
		messages := rec.Messages()
		if len(messages) == 0 {
			return
		}
		printMessage(rec, messages[len(messages)-1], env.Event == protocol.EventPrivateMessage)
	case protocol.EventMessagesHistory:
		for _, message := range rec.Messages() {
			printMessage(rec, message, false)
		}
	case protocol.EventUserTyping:
		for _, user := range rec.TypingUsers() {
			color.Gray.Printf("… %s is typing\n", user.Username)
		}
	case protocol.EventError:
		var reason string
		if err := json.Unmarshal(env.Data, &reason); err == nil {
			color.Red.Printf("server: %s\n", reason)
		}
	case protocol.EventSearchResults:
		var results []protocol.MessagePayload
		if err := json.Unmarshal(env.Data, &results); err != nil {
			return
		}
		color.Cyan.Printf("%d search result(s)\n", len(results))
		for _, message := range results {
			printMessage(rec, message, false)
		}
	}
}

func printMessage(rec *client.Reconciler, message protocol.MessagePayload, private bool) {
	if preview, ok := rec.ReplyPreview(message); ok {
		color.Gray.Printf("  ↪ %s: %s\n", preview.SenderName, preview.Content)
	}
	line := fmt.Sprintf("[%s] %s: %s",
		message.Timestamp.Local().Format("15:04:05"), message.SenderName, message.Content)
	if message.IsEdited {
		line += " (edited)"
	}
	if private {
		color.Magenta.Println(line)
		return
	}
	color.Green.Println(line)
}

func printUsers(users []protocol.PresenceUser) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"User ID", "Username"})
	for _, user := range users {
		table.Append([]string{user.UserID, user.Username})
	}
	table.Render()
}
