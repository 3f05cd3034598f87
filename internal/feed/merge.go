package feed

import (
	"cmp"
	"slices"
	"spacechat/backend/internal/models"
)

// Merge folds incoming messages into a newest-first list, deduplicated by id.
// An incoming copy replaces the stored one. A confirmed message that echoes
// a pending send from the same sender with the same text replaces the
// oldest such pending message.
func Merge(current, incoming []models.ChatMessage) []models.ChatMessage {
	merged := make([]models.ChatMessage, 0, len(current)+len(incoming))
	index := make(map[string]int, len(current)+len(incoming))
	for _, m := range current {
		if i, ok := index[m.ID.Key()]; ok {
			merged[i] = m
			continue
		}
		index[m.ID.Key()] = len(merged)
		merged = append(merged, m)
	}

	dropped := make(map[string]bool)
	for _, m := range incoming {
		if i, ok := index[m.ID.Key()]; ok {
			merged[i] = m
			continue
		}
		if !m.ID.IsPending() {
			if echo := pendingEcho(merged, dropped, m); echo != "" {
				dropped[echo] = true
			}
		}
		index[m.ID.Key()] = len(merged)
		merged = append(merged, m)
	}

	if len(dropped) > 0 {
		merged = slices.DeleteFunc(merged, func(m models.ChatMessage) bool {
			return dropped[m.ID.Key()]
		})
	}
	SortNewestFirst(merged)
	return merged
}

// pendingEcho finds the oldest pending message that confirmed is the server
// copy of, and returns its key.
func pendingEcho(messages []models.ChatMessage, dropped map[string]bool, confirmed models.ChatMessage) string {
	var match *models.ChatMessage
	for i := range messages {
		m := &messages[i]
		if !m.ID.IsPending() || dropped[m.ID.Key()] {
			continue
		}
		if m.ChatRoomID != confirmed.ChatRoomID || m.Text != confirmed.Text || !sameSender(m.SenderProfileID, confirmed.SenderProfileID) {
			continue
		}
		if match == nil || m.CreatedAt.Before(match.CreatedAt) {
			match = m
		}
	}
	if match == nil {
		return ""
	}
	return match.ID.Key()
}

// RemoveMessage drops the message with id from the list.
func RemoveMessage(messages []models.ChatMessage, id models.MessageID) []models.ChatMessage {
	key := id.Key()
	return slices.DeleteFunc(messages, func(m models.ChatMessage) bool {
		return m.ID.Key() == key
	})
}

// SortNewestFirst orders messages by creation time, newest first. Pending
// messages sort ahead of confirmed ones created at the same instant, and
// confirmed ties fall back to the id.
func SortNewestFirst(messages []models.ChatMessage) {
	slices.SortStableFunc(messages, func(a, b models.ChatMessage) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		aid, aok := a.ID.ServerID()
		bid, bok := b.ID.ServerID()
		switch {
		case !aok && bok:
			return -1
		case aok && !bok:
			return 1
		case aok && bok:
			return cmp.Compare(bid, aid)
		}
		return 0
	})
}
