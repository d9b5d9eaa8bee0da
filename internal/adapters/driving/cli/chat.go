package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
	"github.com/custodia-labs/ragbot/internal/core/services"
)

// maxLineBytes bounds a single line of chat input.
const maxLineBytes = 1 << 20

var (
	chatK           int
	chatTemperature float64
	chatShowSources bool
	chatSource      string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about the indexed documents",
	Long: `Starts a conversation over the indexed collection. Each line is a question;
the answer is grounded on the most similar chunks and on the conversation so
far.

Type the exit keyword (default: exit) or press Ctrl+D to quit.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().IntVar(&chatK, "k", 0, "number of chunks retrieved per question (default: chat.k)")
	chatCmd.Flags().Float64Var(&chatTemperature, "temperature", 0, "generation temperature (default: llm.temperature)")
	chatCmd.Flags().BoolVar(&chatShowSources, "show-sources", false, "print the sources of each answer")
	chatCmd.Flags().StringVar(&chatSource, "source", "", "only retrieve chunks from this file")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	settings, err := loadSettings(configPath)
	if err != nil {
		return err
	}

	var opts []services.ChatOption
	if cmd.Flags().Changed("k") {
		if chatK <= 0 {
			return errors.New("--k must be positive")
		}
		opts = append(opts, services.WithRetrievalK(chatK))
	}
	if cmd.Flags().Changed("temperature") {
		opts = append(opts, services.WithTemperature(chatTemperature))
	}
	if chatSource != "" {
		opts = append(opts, services.WithSourceFilter(chatSource))
	}

	chat, closeFn, err := buildChat(ctx, settings, opts...)
	if err != nil {
		return fmt.Errorf("chat setup failed: %w", err)
	}
	defer closeFn()

	return chatLoop(ctx, cmd, chat, settings.Chat.ExitKeyword)
}

// chatLoop reads questions line by line until EOF, the exit keyword or
// cancellation.
func chatLoop(ctx context.Context, cmd *cobra.Command, chat driving.ChatService, exitKeyword string) error {
	out := cmd.OutOrStdout()
	st := newStyles(out)
	interactive := isTerminal(cmd.InOrStdin())

	fmt.Fprintln(out, st.Title.Render(fmt.Sprintf(chatBanner, exitKeyword)))

	lines, readErr := readLines(ctx, cmd.InOrStdin())
	for {
		if interactive {
			fmt.Fprint(out, st.Prompt.Render(userPrompt))
		}

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			return readErr()
		}

		reply, err := chat.HandleInput(ctx, line)
		switch {
		case errors.Is(err, context.Canceled):
			fmt.Fprintln(out)
			return nil
		case err != nil:
			return err
		case reply.Exit:
			return nil
		case reply.Skipped:
			continue
		}

		fmt.Fprintln(out, st.reply(reply))
		if chatShowSources && !reply.Failed && len(reply.Sources) > 0 {
			fmt.Fprintln(out, st.sources(reply.Sources))
		}
		fmt.Fprintln(out, separator)
	}
}

// readLines scans r on its own goroutine so a blocked read does not hold
// up cancellation. The returned func reports the scan error once the
// channel is closed.
func readLines(ctx context.Context, r io.Reader) (<-chan string, func() error) {
	out := make(chan string)
	var scanErr error

	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr = scanner.Err()
	}()

	return out, func() error {
		if scanErr != nil {
			return fmt.Errorf("read input: %w", scanErr)
		}
		return nil
	}
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
