package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rentmarket/pkg/client/chatsync"
	"rentmarket/pkg/models"
)

func TestPrinter_PrintsEachMessageOnce(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "u1")
	at := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	st := chatsync.State{
		Messages: []chatsync.Entry{
			{Message: models.Message{ID: "m1", SenderID: "u2", SenderName: "Lena", Content: "hello", CreatedAt: at}},
			{Message: models.Message{Content: "pending"}, LocalID: "local-1", State: chatsync.Sending},
		},
		Typing: []models.TypingUser{{UserID: "u2", UserName: "Lena"}},
	}
	p.render(st)
	p.render(st)

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, "Lena: hello"))
	require.Equal(t, 1, strings.Count(out, "... Lena typing"))
	require.Equal(t, 1, strings.Count(out, "-- offline"))
	require.NotContains(t, out, "pending")

	st.Messages[1] = chatsync.Entry{Message: models.Message{ID: "m2", SenderID: "u1", Content: "pending", CreatedAt: at}}
	st.Connected = true
	p.render(st)
	require.Contains(t, buf.String(), "you: pending")
	require.Contains(t, buf.String(), "-- live --")
}

func TestPrinter_FailedSend(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, "u1")

	p.render(chatsync.State{Messages: []chatsync.Entry{{Message: models.Message{Content: "oops"}, LocalID: "local-1", State: chatsync.Failed}}})

	require.Contains(t, buf.String(), "! not sent: oops")
}

func TestTruncateAndPeers(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcd…", truncate("abcdefgh", 5))

	c := models.Conversation{Participants: []models.Participant{{UserID: "u1", Name: "Me"}, {UserID: "u2", Name: "Lena"}}}
	require.Equal(t, "Lena", peers(c, "u1"))
}
