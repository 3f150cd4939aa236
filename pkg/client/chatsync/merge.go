package chatsync

import (
	"rentmarket/pkg/models"
)

type DeliveryState int

const (
	Delivered DeliveryState = iota
	Sending
	Failed
)

func (d DeliveryState) String() string {
	switch d {
	case Sending:
		return "sending"
	case Failed:
		return "failed"
	default:
		return "delivered"
	}
}

// Entry is a message as held by the client. Optimistic entries carry a
// LocalID and no server ID until the send is confirmed.
type Entry struct {
	models.Message
	LocalID string
	State   DeliveryState
}

func indexOf(list []Entry, id string) int {
	if id == "" {
		return -1
	}
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfLocal(list []Entry, localID string) int {
	for i := range list {
		if list[i].LocalID == localID {
			return i
		}
	}
	return -1
}

// appendUnique appends messages whose id is not already present. An incoming
// copy of a known message is dropped; the first copy wins.
func appendUnique(list []Entry, msgs ...models.Message) ([]Entry, []models.Message) {
	added := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if indexOf(list, m.ID) >= 0 {
			continue
		}
		list = append(list, Entry{Message: m})
		added = append(added, m)
	}
	return list, added
}

// prependUnique puts an older page in front of the list.
func prependUnique(list []Entry, older []models.Message) []Entry {
	front := make([]Entry, 0, len(older)+len(list))
	for _, m := range older {
		if indexOf(list, m.ID) >= 0 || indexOf(front, m.ID) >= 0 {
			continue
		}
		front = append(front, Entry{Message: m})
	}
	return append(front, list...)
}

// replaceWithFirstPage installs page 1 and keeps entries that arrived while
// it was loading (pushes and optimistic sends) after it.
func replaceWithFirstPage(list []Entry, page []models.Message) []Entry {
	out, _ := appendUnique(make([]Entry, 0, len(page)+len(list)), page...)
	for _, e := range list {
		if e.ID != "" && indexOf(out, e.ID) >= 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

// mergeLatest folds a refreshed first page into the list: new messages are
// appended, known ones only pick up their read state.
func mergeLatest(list []Entry, page []models.Message) ([]Entry, []models.Message) {
	for _, m := range page {
		if i := indexOf(list, m.ID); i >= 0 && m.IsRead && m.ReadAt != nil {
			list[i].MarkRead(*m.ReadAt)
		}
	}
	return appendUnique(list, page...)
}

// confirmLocal swaps an optimistic entry for the server copy. When the server
// copy already arrived by push the optimistic entry is simply dropped.
func confirmLocal(list []Entry, localID string, server models.Message) []Entry {
	li := indexOfLocal(list, localID)
	if indexOf(list, server.ID) >= 0 {
		if li >= 0 {
			list = append(list[:li], list[li+1:]...)
		}
		return list
	}
	if li < 0 {
		out, _ := appendUnique(list, server)
		return out
	}
	list[li] = Entry{Message: server, LocalID: localID, State: Delivered}
	return list
}

func failLocal(list []Entry, localID string) []Entry {
	if i := indexOfLocal(list, localID); i >= 0 {
		list[i].State = Failed
	}
	return list
}

// applyReceipt marks one message read. Read state only moves forward.
func applyReceipt(list []Entry, rr models.ReadReceipt) bool {
	i := indexOf(list, rr.MessageID)
	if i < 0 {
		return false
	}
	return list[i].MarkRead(rr.ReadAt)
}
