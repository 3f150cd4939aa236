package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"rentmarket/pkg/client/api"
	"rentmarket/pkg/client/session"
	"rentmarket/pkg/config"
)

var errNotLoggedIn = errors.New("not logged in, run `rentctl login` first")

// app is shared by every command once the root pre-run has built it.
type app struct {
	cfg     config.Client
	session *session.Session
	api     *api.Client
	timeout time.Duration
}

func (a *app) requireLogin() error {
	if !a.session.Authenticated() {
		return errNotLoggedIn
	}
	return nil
}

// context returns a request context that is cancelled on interrupt or after
// the configured timeout.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var apiURL string

	root := &cobra.Command{
		Use:           "rentctl",
		Short:         "Chat, offers and contracts of the rent market from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config.LoadEnv()
			a.cfg = config.LoadClient()
			if apiURL != "" {
				a.cfg.APIURL = apiURL
				a.cfg.WSURL = config.DeriveWebSocketURL(apiURL)
			}
			if err := os.MkdirAll(filepath.Dir(a.cfg.SessionFile), 0o700); err != nil {
				return fmt.Errorf("session dir: %w", err)
			}
			a.session = session.New(session.NewFileStore(a.cfg.SessionFile))
			a.api = api.New(a.cfg.APIURL, a.session)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL (overrides RENT_API_URL)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "timeout of a single request")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoAmICmd(a),
		newConversationsCmd(a),
		newChatCmd(a),
		newOffersCmd(a),
		newContractCmd(a),
	)
	return root
}
