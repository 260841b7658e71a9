/*
Copyright 2026 The Codeheal Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package chat implements the chat history adapter (C12): a
// session-scoped, append-only log of LLM-facing messages. It is the
// sole legitimate channel for carrying LLM-interpreted data — it never
// mutates envelope packets directly.
package chat

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	cherrors "github.com/codeheals/codeheal/pkg/shared/errors"
)

// Role names who produced a message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleTool   Role = "tool"
	RoleAI     Role = "ai"
)

// Metadata carries the phase a message belongs to (e.g. "attempt_1",
// "retry_backoff"), per spec.md §4.12.
type Metadata struct {
	Phase string `json:"phase,omitempty"`
}

// Message is one entry in the chat history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	Timestamp time.Time `json:"timestamp"`
}

// History is a session-scoped, ordered, append-only message log. The
// zero value is not usable; construct with New.
type History struct {
	mu       sync.Mutex
	messages []Message
	audit    io.Writer
	nowFn    func() time.Time
}

// New builds a History that mirrors every append to audit as a JSON
// line. A nil audit writer disables persistence (useful in tests).
func New(audit io.Writer) *History {
	return &History{audit: audit, nowFn: time.Now}
}

// Append records a message built from role, content and metadata,
// stamped with the current time, and mirrors it to the audit buffer. There is deliberately no edit or delete
// surface: the log is write-once.
func (h *History) Append(role Role, content string, metadata Metadata) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := Message{Role: role, Content: content, Metadata: metadata, Timestamp: h.nowFn()}
	h.messages = append(h.messages, msg)

	if h.audit == nil {
		return nil
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return cherrors.FailedTo("marshal chat message for the audit buffer", err)
	}
	line = append(line, '\n')
	if _, err := h.audit.Write(line); err != nil {
		return cherrors.FailedTo("write chat message to the audit buffer", err)
	}
	return nil
}

// All returns every message recorded so far, in insertion order. The
// returned slice is a copy; callers may not mutate history through it.
func (h *History) All() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len reports how many messages have been recorded.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}
