package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"navgurukul.org/assistant/internal/app"
	"navgurukul.org/assistant/internal/attachment"
	"navgurukul.org/assistant/internal/core"
)

const chatHelp = "Commands: /clear, /file <path> [question], /up <n>, /down <n>, /quit"

func newChatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Long:  "Opens an interactive chat. Answers stream as they arrive. " + chatHelp + ".",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.loadConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := g.logger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			application, err := app.New(cmd.Context(), cfg, log, app.WithoutDictation())
			if err != nil {
				return err
			}
			defer application.Close()

			tf, err := g.tokenFile()
			if err != nil {
				return err
			}
			token, err := tf.Load()
			if err != nil {
				return err
			}
			user, ok := application.Credentials.CurrentSession(cmd.Context(), token)
			if !ok {
				return errNotSignedIn
			}

			sess := application.NewChatSession()
			defer sess.Close()

			r := newREPL(sess, cmd.OutOrStdout())
			fmt.Fprintf(r.out, "Signed in as %s. %s\n", user.Email, chatHelp)
			if err := r.start(cmd.Context()); err != nil {
				return err
			}
			if len(cfg.Profile.SuggestedPrompts) > 0 {
				fmt.Fprintln(r.out, "Try asking:")
				for _, p := range cfg.Profile.SuggestedPrompts {
					fmt.Fprintf(r.out, "  - %s\n", p)
				}
			}
			return r.run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

// repl drives one ChatSession from line-oriented input.
type repl struct {
	sess    *core.ChatSession
	out     io.Writer
	count   int            // messages in the current transcript, for numbering
	printed map[string]int // bytes of each streamed message already written
}

func newREPL(sess *core.ChatSession, out io.Writer) *repl {
	return &repl{sess: sess, out: out, printed: make(map[string]int)}
}

func (r *repl) start(ctx context.Context) error {
	if err := r.sess.Start(ctx); err != nil {
		return err
	}
	r.count = 0
	r.printed = make(map[string]int)
	for _, m := range r.sess.Messages() {
		r.count++
		r.printMessage(r.count, m)
	}
	return nil
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(r.out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		quit, err := r.handle(ctx, line)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, r.send(ctx, core.SendInput{Text: line})
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/clear":
		return false, r.start(ctx)
	case "/file":
		path, question, _ := strings.Cut(rest, " ")
		if path == "" {
			return false, errors.New("usage: /file <path> [question]")
		}
		a, err := readAttachment(path)
		if err != nil {
			return false, err
		}
		return false, r.send(ctx, core.SendInput{Text: question, Attachment: a})
	case "/up":
		return false, r.feedback(rest, core.FeedbackUp)
	case "/down":
		return false, r.feedback(rest, core.FeedbackDown)
	default:
		return false, fmt.Errorf("unknown command %s. %s", name, chatHelp)
	}
}

func (r *repl) send(ctx context.Context, in core.SendInput) error {
	err := r.sess.Send(ctx, in, r.onEvent)
	if errors.Is(err, core.ErrRequestInFlight) {
		return errors.New("a response is already being generated")
	}
	return err
}

func (r *repl) onEvent(e core.Event) {
	m := e.Message
	switch e.Type {
	case core.EventAppend:
		r.count++
		if m.Role == core.RoleUser {
			return
		}
		if m.Streaming {
			fmt.Fprintf(r.out, "[%d] assistant: %s", r.count, m.Text)
			r.printed[m.ID] = len(m.Text)
			return
		}
		r.printMessage(r.count, m)
	case core.EventUpdate:
		r.writeSuffix(m)
	case core.EventFinalize:
		r.writeSuffix(m)
		delete(r.printed, m.ID)
		fmt.Fprintln(r.out)
		r.printSources(m.Sources)
	}
}

func (r *repl) writeSuffix(m core.Message) {
	done := r.printed[m.ID]
	if done < len(m.Text) {
		fmt.Fprint(r.out, m.Text[done:])
		r.printed[m.ID] = len(m.Text)
	}
}

func (r *repl) printMessage(n int, m core.Message) {
	switch m.Role {
	case core.RoleSystem:
		fmt.Fprintf(r.out, "* %s\n", m.Text)
	case core.RoleUser:
		fmt.Fprintf(r.out, "[%d] you: %s\n", n, m.Text)
	default:
		fmt.Fprintf(r.out, "[%d] assistant: %s\n", n, m.Text)
		r.printSources(m.Sources)
	}
}

func (r *repl) printSources(sources []core.GroundingSource) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(r.out, "Sources:")
	for _, s := range sources {
		fmt.Fprintf(r.out, "  - %s (%s)\n", s.DisplayTitle(), s.URI)
	}
}

func (r *repl) feedback(arg string, value core.Feedback) error {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("usage: /%s <message number>", value)
	}
	msgs := r.sess.Messages()
	if n < 1 || n > len(msgs) {
		return fmt.Errorf("no message %d", n)
	}
	if msgs[n-1].Role != core.RoleModel {
		return fmt.Errorf("message %d is not an assistant answer", n)
	}
	stored, err := r.sess.RecordFeedback(msgs[n-1].ID, value)
	if err != nil {
		return err
	}
	if stored {
		fmt.Fprintln(r.out, "Thanks for the feedback.")
	} else {
		fmt.Fprintln(r.out, "Feedback was already recorded for that message.")
	}
	return nil
}

func readAttachment(path string) (*attachment.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	a := attachment.Attachment{Name: filepath.Base(path), Data: data}
	a.MimeType = attachment.DetectMimeType(a)
	return &a, nil
}
