package model

import "strings"

// Identity is who the local client is in every room it joins.
type Identity struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
}

// Requester identifies who queued an edit request.
type Requester struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type EditRequest struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	RequestedBy Requester `json:"requestedBy"`
	CreatedAt   int64     `json:"createdAt"`
}

type TerminalRequest struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

// InputRecord is one chunk of guest keystrokes queued for the host.
type InputRecord struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Data      string `json:"data"`
	CreatedAt int64  `json:"createdAt"`
}

type ChatMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// Member is a participant as shown in the room: presence joined with roles.
type Member struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Role   Role   `json:"role"`
	Online bool   `json:"online"`
}

// Record converts to the shape stored in the document.
func (r EditRequest) Record() map[string]any {
	return map[string]any{
		"id":   r.ID,
		"path": r.Path,
		"requestedBy": map[string]any{
			"userId": r.RequestedBy.UserID,
			"name":   r.RequestedBy.Name,
		},
		"createdAt": r.CreatedAt,
	}
}

func (r TerminalRequest) Record() map[string]any {
	return map[string]any{"id": r.ID, "userId": r.UserID, "name": r.Name, "createdAt": r.CreatedAt}
}

func (r InputRecord) Record() map[string]any {
	return map[string]any{"id": r.ID, "userId": r.UserID, "data": r.Data, "createdAt": r.CreatedAt}
}

func (m ChatMessage) Record() map[string]any {
	return map[string]any{"id": m.ID, "userId": m.UserID, "name": m.Name, "text": m.Text, "createdAt": m.CreatedAt}
}

// ParseEditRequest validates a stored entry. Entries missing an id, a
// path or a requester are rejected.
func ParseEditRequest(v any) (EditRequest, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return EditRequest{}, false
	}
	by, ok := m["requestedBy"].(map[string]any)
	if !ok {
		return EditRequest{}, false
	}
	r := EditRequest{
		ID:          String(m["id"]),
		Path:        String(m["path"]),
		RequestedBy: Requester{UserID: String(by["userId"]), Name: String(by["name"])},
		CreatedAt:   Int64(m["createdAt"]),
	}
	if r.ID == "" || r.Path == "" || r.RequestedBy.UserID == "" {
		return EditRequest{}, false
	}
	return r, true
}

func ParseTerminalRequest(v any) (TerminalRequest, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return TerminalRequest{}, false
	}
	r := TerminalRequest{
		ID:        String(m["id"]),
		UserID:    String(m["userId"]),
		Name:      String(m["name"]),
		CreatedAt: Int64(m["createdAt"]),
	}
	if r.ID == "" || r.UserID == "" {
		return TerminalRequest{}, false
	}
	return r, true
}

func ParseInputRecord(v any) (InputRecord, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return InputRecord{}, false
	}
	data, ok := m["data"].(string)
	if !ok {
		return InputRecord{}, false
	}
	r := InputRecord{
		ID:        String(m["id"]),
		UserID:    String(m["userId"]),
		Data:      data,
		CreatedAt: Int64(m["createdAt"]),
	}
	if r.ID == "" || r.UserID == "" {
		return InputRecord{}, false
	}
	return r, true
}

func ParseChatMessage(v any) (ChatMessage, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return ChatMessage{}, false
	}
	text, ok := m["text"].(string)
	if !ok {
		return ChatMessage{}, false
	}
	msg := ChatMessage{
		ID:        String(m["id"]),
		UserID:    String(m["userId"]),
		Name:      String(m["name"]),
		Text:      text,
		CreatedAt: Int64(m["createdAt"]),
	}
	if msg.ID == "" || msg.UserID == "" {
		return ChatMessage{}, false
	}
	return msg, true
}

// ParseIdentity reads the "user" field a client publishes on presence.
func ParseIdentity(v any) (Identity, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Identity{}, false
	}
	id := Identity{UserID: String(m["id"]), Name: String(m["name"]), Color: String(m["color"])}
	if strings.TrimSpace(id.UserID) == "" {
		return Identity{}, false
	}
	return id, true
}

// String returns v if it is a string, else "".
func String(v any) string {
	s, _ := v.(string)
	return s
}

// Int64 reads a number stored by any peer.
func Int64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// Bool returns v if it is a bool, else false.
func Bool(v any) bool {
	b, _ := v.(bool)
	return b
}
