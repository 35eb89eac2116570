package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/liteclaw/unillm/internal/config"
	"github.com/liteclaw/unillm/internal/providers"
	"github.com/liteclaw/unillm/pkg/agent"
	"github.com/liteclaw/unillm/pkg/llm"
)

type chatOptions struct {
	model        string
	provider     string
	system       string
	noTools      bool
	noStream     bool
	showThinking bool
}

// NewChatCommand creates the chat subcommand.
func NewChatCommand() *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Chat with a model, running built-in tools as requested",
		Long: `Send a prompt to the configured model and print the answer.

With no prompt and an interactive terminal, chat starts a REPL that keeps
the conversation. With no prompt and piped input, stdin is the prompt.`,
		Example: `  unillm chat "What time is it in Tokyo?"
  unillm chat --model ollama/llama3.1
  git diff | unillm chat --no-tools`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if opts.noStream {
				cfg.Agent.Stream = false
			}
			client, err := newClient(cfg, newLogger(cmd, cfg), !opts.noTools)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			s := &chatSession{cmd: cmd, cfg: cfg, client: client, opts: opts}
			in := cmd.InOrStdin()
			prompt := strings.TrimSpace(strings.Join(args, " "))

			if prompt == "" && !isTerminal(in) {
				data, err := io.ReadAll(in)
				if err != nil {
					return err
				}
				prompt = strings.TrimSpace(string(data))
			}
			if prompt != "" {
				return s.turn(ctx, prompt)
			}
			if !isTerminal(in) {
				return errors.New("prompt required")
			}
			return s.repl(ctx, in)
		},
	}

	cmd.Flags().StringVarP(&opts.model, "model", "m", "", `Model id or "provider/model"`)
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "Provider to use (default from config)")
	cmd.Flags().StringVar(&opts.system, "system", "", "System prompt (overrides config)")
	cmd.Flags().BoolVar(&opts.noTools, "no-tools", false, "Do not offer built-in tools")
	cmd.Flags().BoolVar(&opts.noStream, "no-stream", false, "Use non-streaming requests")
	cmd.Flags().BoolVar(&opts.showThinking, "thinking", false, "Print reasoning text when the model emits it")

	return cmd
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type chatSession struct {
	cmd     *cobra.Command
	cfg     *config.Config
	client  *agent.Client
	opts    chatOptions
	history []llm.Message
}

func (s *chatSession) repl(ctx context.Context, in io.Reader) error {
	out := s.cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, infoStyle.Render("Type /reset to clear the conversation, /exit to quit."))

	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, promptStyle.Render("you> "))
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			s.history = nil
			_, _ = fmt.Fprintln(out, infoStyle.Render("Conversation cleared."))
			continue
		}

		if err := s.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			_, _ = fmt.Fprintln(out, errorStyle.Render("error: "+err.Error()))
		}
	}
}

// turn runs one user prompt through the agent loop, printing text as it
// arrives and one line per tool call and result.
func (s *chatSession) turn(ctx context.Context, prompt string) error {
	out := s.cmd.OutOrStdout()

	msgs := append(append([]llm.Message(nil), s.history...), llm.UserMessage(prompt))
	req := providers.Request(s.cfg, s.opts.model, msgs...)
	if s.opts.system != "" {
		req.SystemPrompt = s.opts.system
	}

	thinking := false
	cb := llm.Callbacks{
		OnText: func(delta string) {
			if thinking {
				_, _ = fmt.Fprintln(out)
				thinking = false
			}
			_, _ = fmt.Fprint(out, delta)
		},
		OnThinking: func(delta string) {
			if s.opts.showThinking {
				_, _ = fmt.Fprint(out, thinkingStyle.Render(delta))
				thinking = true
			}
		},
		OnToolCall: func(tc llm.ToolCall) {
			_, _ = fmt.Fprintln(out, toolStyle.Render(fmt.Sprintf("→ %s %s", tc.Name, tc.Arguments.JSON())))
		},
	}
	onResult := func(r agent.ToolResult) {
		if r.Err != nil {
			_, _ = fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("← %s: %s", r.Name, r.Content)))
			return
		}
		_, _ = fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("← %s (%d bytes, %s)", r.Name, len(r.Content), r.Duration.Round(time.Millisecond))))
	}

	res, err := s.client.Run(ctx, req, agent.RunOptions{Provider: s.opts.provider, Callbacks: cb, OnToolResult: onResult})
	_, _ = fmt.Fprintln(out)
	if err != nil {
		var limit *agent.IterationLimitError
		if errors.As(err, &limit) && res != nil {
			s.history = res.Messages
		}
		return err
	}

	s.history = res.Messages
	if s.cfg.Logging.Verbose {
		u := res.TotalUsage
		_, _ = fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("[%s · %d iterations · %d prompt + %d completion tokens]",
			res.Provider, res.Iterations, u.PromptTokens, u.CompletionTokens)))
	}
	return nil
}
