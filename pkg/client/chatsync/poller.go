package chatsync

import (
	"context"
	"time"

	"rentmarket/pkg/models"
)

// poller is the degraded-mode refresher. At most one exists per Store and it
// only lives while the user is logged in and the realtime link is down.
type poller struct {
	ticker *time.Ticker
	done   chan struct{}
}

func startPoller(interval time.Duration, tick func()) *poller {
	p := &poller{ticker: time.NewTicker(interval), done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-p.done:
				return
			case <-p.ticker.C:
				select {
				case <-p.done:
					return
				default:
				}
				tick()
			}
		}
	}()
	return p
}

// stop returns once no further tick can start.
func (p *poller) stop() {
	p.ticker.Stop()
	close(p.done)
}

func (s *Store) evaluatePolling() {
	want := s.auth.Snapshot().Authenticated()

	s.mu.Lock()
	want = want && !s.connected
	var stopping *poller
	switch {
	case want && s.poll == nil:
		s.poll = startPoller(s.opts.PollInterval, s.pollOnce)
	case !want && s.poll != nil:
		stopping = s.poll
		s.poll = nil
	}
	s.mu.Unlock()

	if stopping != nil {
		stopping.stop()
	}
	s.notify()
}

// pollOnce refreshes the conversation list and the newest page of the active
// conversation, merging rather than replacing what is already shown.
func (s *Store) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PollInterval)
	defer cancel()

	_ = s.LoadConversations(ctx)

	s.mu.Lock()
	id, gen := s.activeID, s.gen
	s.mu.Unlock()
	if id == "" {
		return
	}

	result, err := s.api.Messages(ctx, id, 1, s.opts.PageSize)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.setErrorLocked(opLoadMessages, err, "Failed to load messages")
		s.mu.Unlock()
		s.notify()
		return
	}
	s.clearErrorLocked(opLoadMessages)
	var added []models.Message
	s.messages, added = mergeLatest(s.messages, result.Messages)
	toRead := s.unreadFromOthersLocked(added)
	s.mu.Unlock()
	s.notify()

	s.markRead(ctx, gen, id, toRead)
}
