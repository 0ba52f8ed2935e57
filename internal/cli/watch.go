package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"direct-chat-backend/internal/client"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const keepAliveInterval = 30 * time.Second

const watchHelp = `Commands:
  /open <user-id>    open a conversation
  /close             close the open conversation
  /resend <temp-id>  retry a failed message
  /reply             open the conversation of the last notification
  /chats             list conversations
  /sound             toggle the notification sound
  /quit              exit
Any other line is sent to the open conversation.`

// NewWatchCommand creates the interactive watch command.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	var partnerID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected, chat and receive notifications",
		Long: `Connect to the push channel and stay online. Incoming messages for
conversations that are not open are shown as notifications.

` + watchHelp,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, partnerID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&partnerID, "open", "", "open a conversation on start")
	return cmd
}

func runWatch(ctx context.Context, opts *RootOptions, partnerID string, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sock, err := dialSocket(ctx, opts)
	if err != nil {
		return err
	}
	defer sock.Close()

	s, err := openSession(ctx, opts, sock)
	if err != nil {
		return err
	}
	defer s.Close()

	w := &watcher{session: s, out: out, printed: map[string]bool{}}
	w.notifier = client.NewTerminalNotifier(out, opts.Settings.Notifications)
	notifications := client.NewNotifications(s.store, sock, w.notifier, client.TerminalFeedback{Out: out})
	notifications.Start()
	defer notifications.Stop()

	obs := s.store.Observe(w.render)
	defer obs.Close()

	fmt.Fprintf(out, "Connected as %s. Type /help for commands.\n", s.self.FullName)
	if partnerID != "" {
		w.open(ctx, partnerID)
	}
	w.prompt()

	lines := readLines(ctx, in)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sock.Done():
			w.wait()
			return fmt.Errorf("push channel closed: %w", sock.Err())
		case <-keepAlive.C:
			if err := sock.Ping(); err != nil {
				log.Warn().Err(err).Msg("Keep-alive ping failed")
			}
		case line, ok := <-lines:
			if !ok {
				w.wait()
				return nil
			}
			if !w.handle(ctx, strings.TrimSpace(line)) {
				w.wait()
				return nil
			}
			w.prompt()
		}
	}
}

// readLines delivers the lines of in until it ends or ctx is done
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// dialSocket connects the push channel with the saved session token
func dialSocket(ctx context.Context, opts *RootOptions) (*client.Socket, error) {
	prefs, err := openPrefs(opts)
	if err != nil {
		return nil, err
	}
	token, err := prefs.String(client.PrefToken, "")
	prefs.Close()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errNotLoggedIn
	}

	url, err := client.NewAPI(opts.Settings.ServerURL, token).SocketURL()
	if err != nil {
		return nil, err
	}
	return client.Dial(ctx, url)
}

// watcher renders store changes and runs typed commands
type watcher struct {
	*session
	notifier *client.TerminalNotifier
	out      io.Writer
	sends    sync.WaitGroup

	mu      sync.Mutex
	partner string
	printed map[string]bool
	lastErr string
}

// render prints messages of the open conversation that have not been
// printed in their current state, and any newly surfaced error.
func (w *watcher) render(snap client.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	selected := ""
	if snap.Selected != nil {
		selected = snap.Selected.ID
	}
	if selected != w.partner {
		w.partner = selected
		w.printed = map[string]bool{}
		if snap.Selected != nil {
			fmt.Fprintf(w.out, "\r--- %s ---\n", snap.Selected.FullName)
		}
	}

	for _, m := range snap.Messages {
		key := fmt.Sprintf("%s/%s/%t", m.ID, m.Status, m.Read)
		if w.printed[key] {
			continue
		}
		w.printed[key] = true
		fmt.Fprintf(w.out, "\r%s\n", formatMessage(w.self.ID, snap.Selected, m))
	}

	if snap.Error != w.lastErr {
		w.lastErr = snap.Error
		if snap.Error != "" {
			fmt.Fprintf(w.out, "\rerror: %s\n", snap.Error)
		}
	}
}

func (w *watcher) prompt() {
	fmt.Fprint(w.out, "> ")
}

func (w *watcher) wait() {
	w.sends.Wait()
}

// handle runs one input line. It returns false when the user quits.
func (w *watcher) handle(ctx context.Context, line string) bool {
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		w.send(ctx, func(ctx context.Context) error {
			_, err := w.store.Send(ctx, client.SendRequest{Text: line})
			return err
		})
		return true
	}

	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "/quit", "/exit":
		return false
	case "/help":
		fmt.Fprintln(w.out, watchHelp)
	case "/open":
		if arg == "" {
			fmt.Fprintln(w.out, "usage: /open <user-id>")
			break
		}
		w.open(ctx, arg)
	case "/close":
		w.store.CloseConversation()
	case "/resend":
		if arg == "" {
			fmt.Fprintln(w.out, "usage: /resend <temp-id>")
			break
		}
		w.send(ctx, func(ctx context.Context) error {
			_, err := w.store.Resend(ctx, arg)
			return err
		})
	case "/reply":
		if !w.notifier.Activate() {
			fmt.Fprintln(w.out, "no notification to reply to")
		}
	case "/chats":
		if err := w.store.LoadChats(ctx, false); err != nil {
			break
		}
		if err := printChats(w.out, "text", w.store.Snapshot().Chats); err != nil {
			log.Warn().Err(err).Msg("Failed to print chats")
		}
	case "/sound":
		state := "off"
		if w.store.ToggleSound() {
			state = "on"
		}
		fmt.Fprintf(w.out, "notification sound %s\n", state)
	default:
		fmt.Fprintf(w.out, "unknown command %s, try /help\n", fields[0])
	}
	return true
}

func (w *watcher) open(ctx context.Context, partnerID string) {
	if err := w.openPartner(ctx, partnerID); err != nil {
		fmt.Fprintf(w.out, "error: %v\n", err)
	}
}

// send runs fn off the input loop; retries can take several seconds
func (w *watcher) send(ctx context.Context, fn func(ctx context.Context) error) {
	w.sends.Add(1)
	go func() {
		defer w.sends.Done()
		err := fn(ctx)
		switch {
		case errors.Is(err, client.ErrNoConversation), errors.Is(err, client.ErrEmptyMessage),
			errors.Is(err, client.ErrNotResendable):
			fmt.Fprintf(w.out, "\rerror: %v\n> ", err)
		case err != nil:
			// already surfaced through the store error
			log.Debug().Err(err).Msg("Send failed")
		}
	}()
}
