// Command streamctl is a terminal client of the agent stream API. It sends a
// message, renders the progress of the reply as it streams and prints the
// final answer with its sources.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/eternisai/agent-stream/internal/logger"
	"github.com/eternisai/agent-stream/pkg/panel"
	"github.com/eternisai/agent-stream/pkg/progress"
	"github.com/eternisai/agent-stream/pkg/streamclient"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

const defaultServer = "http://localhost:8080"

func main() {
	app := &cli.Command{
		Name:  "streamctl",
		Usage: "Chat with the research agent from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Base URL of the stream API",
				Value:   defaultServer,
				Sources: cli.EnvVars("STREAMCTL_SERVER"),
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token",
				Sources: cli.EnvVars("STREAMCTL_TOKEN"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log requests to stderr",
			},
		},
		Commands: []*cli.Command{
			chatsCommand(),
			sendCommand(),
			stopCommand(),
			historyCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(cmd *cli.Command) *streamclient.Client {
	level := slog.LevelWarn
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	log := logger.New(logger.Config{Level: level, Format: "text", Output: os.Stderr})

	return streamclient.New(cmd.String("server"),
		streamclient.WithToken(cmd.String("token")),
		streamclient.WithLogger(log.Logger),
	)
}

func chatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "chats",
		Usage: "Create and list chats",
		Commands: []*cli.Command{
			{
				Name:      "new",
				Usage:     "Create a chat and print its ID",
				ArgsUsage: "[title]",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					chat, err := newClient(cmd).CreateChat(ctx, strings.Join(cmd.Args().Slice(), " "))
					if err != nil {
						return err
					}
					fmt.Println(chat.ID)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List your chats, most recent first",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					chats, err := newClient(cmd).ListChats(ctx)
					if err != nil {
						return err
					}
					out := termenv.NewOutput(os.Stdout)
					dim := out.String().Faint()
					for _, c := range chats {
						fmt.Fprintf(out, "%s  %s %s\n", c.ID, c.Title, dim.Styled(humanize.Time(c.UpdatedAt)))
					}
					return nil
				},
			},
		},
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send a message and stream the reply",
		ArgsUsage: "<message...>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "chat",
				Aliases: []string{"c"},
				Usage:   "Chat ID",
				Sources: cli.EnvVars("STREAMCTL_CHAT"),
			},
			&cli.BoolFlag{
				Name:  "new",
				Usage: "Create a new chat for the message",
			},
			&cli.BoolFlag{
				Name:    "research",
				Aliases: []string{"r"},
				Usage:   "Use deep research mode",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Toggle the progress panel with Enter",
			},
			&cli.BoolFlag{
				Name:  "raw-status",
				Usage: "Show the true status of failed scrapes",
			},
		},
		Action: runSend,
	}
}

func runSend(ctx context.Context, cmd *cli.Command) error {
	message := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if message == "" {
		stdin, err := readStdin()
		if err != nil {
			return err
		}
		message = strings.TrimSpace(stdin)
	}
	if message == "" {
		return errors.New("a message is required")
	}

	client := newClient(cmd)
	chatID := cmd.String("chat")
	switch {
	case cmd.Bool("new"):
		chat, err := client.CreateChat(ctx, "")
		if err != nil {
			return fmt.Errorf("failed to create chat: %w", err)
		}
		chatID = chat.ID
		fmt.Fprintf(os.Stderr, "chat %s\n", chatID)
	case chatID == "":
		return errors.New("--chat or --new is required")
	}

	live := term.IsTerminal(int(os.Stdout.Fd()))
	out := termenv.NewOutput(os.Stdout)

	policy := progress.DefaultPolicy
	if cmd.Bool("raw-status") {
		policy.SoftFailurePresentation = false
	}

	agg := progress.NewAggregator()
	var r *renderer
	p := panel.New(panel.WithObserver(func(s panel.State) { r.OnPanel(s) }))
	r = newRenderer(out, live, agg, p, policy)
	p.Handle(panel.ActivityStarted)

	if cmd.Bool("interactive") && live {
		go r.readToggles(ctx, os.Stdin)
	}

	_, err := client.Stream(ctx, chatID, streamclient.StreamRequest{
		Content:          message,
		DeepResearchMode: cmd.Bool("research"),
	}, agg, r.OnChange)
	r.Summary(out)

	if errors.Is(err, streamclient.ErrNoTerminal) {
		return errors.New("the server closed the stream before the reply finished")
	}
	return err
}

func stopCommand() *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "Stop the reply being generated for a chat",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "chat",
				Aliases:  []string{"c"},
				Usage:    "Chat ID",
				Required: true,
				Sources:  cli.EnvVars("STREAMCTL_CHAT"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			res, err := newClient(cmd).Stop(ctx, cmd.String("chat"))
			if err != nil {
				return err
			}
			fmt.Printf("stopped stream %s after %s events (instance %s)\n",
				res.StreamID, humanize.Comma(res.EventsSent), res.InstanceID)
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Print the messages of a chat",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "chat",
				Aliases:  []string{"c"},
				Usage:    "Chat ID",
				Required: true,
				Sources:  cli.EnvVars("STREAMCTL_CHAT"),
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of most recent messages",
				Value:   50,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			msgs, err := newClient(cmd).Messages(ctx, cmd.String("chat"), cmd.Int("limit"))
			if err != nil {
				return err
			}
			out := termenv.NewOutput(os.Stdout)
			st := newStyles(out)
			for _, m := range msgs {
				role := st.accent
				if m.Role == "user" {
					role = st.bold
				}
				fmt.Fprintf(out, "%s %s\n%s\n\n", role.Styled(m.Role), st.dim.Styled(humanize.Time(m.CreatedAt)), m.Content)
			}
			return nil
		},
	}
}

func readStdin() (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return "", nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(b), nil
}

// readToggles toggles the panel on every line read from in.
func (r *renderer) readToggles(ctx context.Context, in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		r.Toggle()
	}
}
