package collab

import (
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"

	"saturuang/internal/collab/model"
)

// SendChat appends a message and trims the log to MaxChatMessages,
// oldest first.
func (r *Room) SendChat(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	msg := model.ChatMessage{
		ID:        ulid.Make().String(),
		UserID:    r.self.UserID,
		Name:      r.self.Name,
		Text:      text,
		CreatedAt: r.timestamp(),
	}
	log := r.doc.Array(ChatArray)
	r.doc.Transact(func() {
		log.Push(msg.Record())
		if n := log.Len(); n > MaxChatMessages {
			log.Delete(0, n-MaxChatMessages)
		}
	})
	return true
}

// ChatMessages returns the log oldest first by creation time; entries
// with equal times keep their log order. Malformed entries are skipped.
func (r *Room) ChatMessages() []model.ChatMessage {
	values := r.doc.Array(ChatArray).ToArray()
	out := make([]model.ChatMessage, 0, len(values))
	for _, v := range values {
		if msg, ok := model.ParseChatMessage(v); ok {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}
