package chatsync

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"rentmarket/pkg/client/realtime"
	"rentmarket/pkg/client/session"
	"rentmarket/pkg/models"
)

type UnreadAPI interface {
	UnreadCount(ctx context.Context) (int, error)
}

// UnreadCounter aggregates the unread badge across all conversations.
type UnreadCounter struct {
	api  UnreadAPI
	rt   Realtime
	auth Auth

	mu    sync.Mutex
	count int
	subs  []interface{ Close() }

	obsMu  sync.Mutex
	nextID int
	obs    map[int]func(int)
}

func NewUnreadCounter(client UnreadAPI, rt Realtime, auth Auth) *UnreadCounter {
	return &UnreadCounter{api: client, rt: rt, auth: auth, obs: make(map[int]func(int))}
}

// Start listens for pushes and refreshes on every reconnect.
func (u *UnreadCounter) Start() {
	u.subs = append(u.subs,
		u.rt.On(models.EventNewMessage, u.onNewMessage),
		u.rt.OnConnectivity(func(connected bool) {
			if connected {
				go u.Refresh(context.Background())
			}
		}),
		u.auth.Subscribe(func(snap session.Snapshot) {
			if !snap.Authenticated() {
				u.set(0)
			}
		}),
	)
}

func (u *UnreadCounter) Close() {
	for i := len(u.subs) - 1; i >= 0; i-- {
		u.subs[i].Close()
	}
	u.subs = nil
}

func (u *UnreadCounter) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}

func (u *UnreadCounter) Refresh(ctx context.Context) error {
	if !u.auth.Snapshot().Authenticated() {
		u.set(0)
		return nil
	}
	n, err := u.api.UnreadCount(ctx)
	if err != nil {
		return err
	}
	u.set(n)
	return nil
}

// MessagesRead implements ReadObserver.
func (u *UnreadCounter) MessagesRead(n int) {
	u.update(func(c int) int {
		if c -= n; c < 0 {
			return 0
		}
		return c
	})
}

func (u *UnreadCounter) onNewMessage(data json.RawMessage) {
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}
	me := u.auth.Snapshot().User
	if me == nil || m.SenderID == me.ID {
		return
	}
	u.update(func(c int) int { return c + 1 })
}

func (u *UnreadCounter) set(n int) {
	u.update(func(int) int { return n })
}

func (u *UnreadCounter) update(fn func(int) int) {
	u.mu.Lock()
	n := fn(u.count)
	changed := u.count != n
	u.count = n
	u.mu.Unlock()
	if !changed {
		return
	}

	u.obsMu.Lock()
	ids := make([]int, 0, len(u.obs))
	for id := range u.obs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(int), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, u.obs[id])
	}
	u.obsMu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}

// Subscribe calls fn with the new count after every change.
func (u *UnreadCounter) Subscribe(fn func(int)) realtime.Subscription {
	u.obsMu.Lock()
	id := u.nextID
	u.nextID++
	u.obs[id] = fn
	u.obsMu.Unlock()

	return closer(func() {
		u.obsMu.Lock()
		delete(u.obs, id)
		u.obsMu.Unlock()
	})
}

type closeFunc struct {
	once sync.Once
	fn   func()
}

func (c *closeFunc) Close() { c.once.Do(c.fn) }

func closer(fn func()) *closeFunc { return &closeFunc{fn: fn} }
