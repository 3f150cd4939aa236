package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"rentmarket/pkg/client/chatsync"
	"rentmarket/pkg/client/realtime"
	"rentmarket/pkg/models"
)

func newConversationsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"convs"},
		Short:   "List conversations with unread counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			convs, err := a.api.Conversations(ctx)
			if err != nil {
				return err
			}
			total, err := a.api.UnreadCount(ctx)
			if err != nil {
				return err
			}

			me := a.session.User().ID
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWITH\tUNREAD\tLAST MESSAGE")
			for _, c := range convs {
				last := ""
				if c.LastMessage != nil {
					last = truncate(c.LastMessage.Content, 40)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, peers(c, me), c.UnreadCount, last)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d unread in total\n", total)
			return nil
		},
	}
}

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <conversation-id>",
		Short: "Open a conversation; type to send, /more for older messages, /quit to leave",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			rt := realtime.New(a.cfg.WSURL, realtime.WebSocketDialer{HandshakeTimeout: 10 * time.Second}, a.session, realtime.Options{})
			rt.Start()
			defer rt.Close()

			unread := chatsync.NewUnreadCounter(a.api, rt, a.session)
			unread.Start()
			defer unread.Close()

			store := chatsync.New(a.api, rt, a.session, chatsync.Options{PollInterval: a.cfg.PollInterval, Unread: unread})
			store.Start()
			defer store.Close()

			out := cmd.OutOrStdout()
			if err := store.LoadConversations(ctx); err != nil {
				fmt.Fprintf(out, "! %s\n", store.State().Error)
			}
			if err := store.Open(ctx, args[0]); err != nil {
				return errors.New(store.State().Error)
			}

			p := newPrinter(out, a.session.User().ID)
			p.render(store.State())

			lines := readLines(cmd.InOrStdin())
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-store.Changed():
					p.render(store.State())
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					switch {
					case line == "":
					case line == "/quit":
						store.Leave()
						return nil
					case line == "/more":
						if err := store.LoadMore(ctx); err != nil {
							fmt.Fprintf(out, "! %s\n", store.State().Error)
						}
					case line == "/unread":
						fmt.Fprintf(out, "%d unread in other conversations\n", unread.Count())
					case strings.HasPrefix(line, "/"):
						fmt.Fprintf(out, "! unknown command %s\n", line)
					default:
						store.NotifyTyping()
						if err := store.Send(ctx, line, nil); err != nil {
							fmt.Fprintf(out, "! %s\n", store.State().Error)
						}
					}
				}
			}
		},
	}
}

func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- strings.TrimSpace(sc.Text())
		}
	}()
	return ch
}

// printer writes each message once and reports typing and connectivity
// changes as they happen.
type printer struct {
	out       io.Writer
	me        string
	printed   map[string]bool
	typing    string
	connected *bool
}

func newPrinter(out io.Writer, me string) *printer {
	return &printer{out: out, me: me, printed: make(map[string]bool)}
}

func (p *printer) render(st chatsync.State) {
	if p.connected == nil || *p.connected != st.Connected {
		c := st.Connected
		p.connected = &c
		if c {
			fmt.Fprintln(p.out, "-- live --")
		} else {
			fmt.Fprintln(p.out, "-- offline, refreshing periodically --")
		}
	}

	for _, e := range st.Messages {
		switch {
		case e.State == chatsync.Failed:
			if !p.printed[e.LocalID] {
				p.printed[e.LocalID] = true
				fmt.Fprintf(p.out, "! not sent: %s\n", e.Content)
			}
		case e.ID != "" && !p.printed[e.ID]:
			p.printed[e.ID] = true
			fmt.Fprintln(p.out, p.line(e.Message))
		}
	}

	names := make([]string, 0, len(st.Typing))
	for _, u := range st.Typing {
		names = append(names, u.UserName)
	}
	if typing := strings.Join(names, ", "); typing != p.typing {
		p.typing = typing
		if typing != "" {
			fmt.Fprintf(p.out, "... %s typing\n", typing)
		}
	}
}

func (p *printer) line(m models.Message) string {
	who := m.SenderName
	if m.SenderID == p.me {
		who = "you"
	} else if who == "" {
		who = m.SenderID
	}
	text := m.Content
	if m.Attachment != nil {
		text = strings.TrimSpace(fmt.Sprintf("%s [%s %s]", text, m.Attachment.Name, m.Attachment.URL))
	}
	return fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format("Jan 2 15:04"), who, text)
}

func peers(c models.Conversation, me string) string {
	names := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.UserID != me {
			names = append(names, p.Name)
		}
	}
	return strings.Join(names, ", ")
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
