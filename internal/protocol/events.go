// JamWave Signaling - Presence and Call Signaling for JamWave
// Copyright 2026 JamWave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jamwave/signaling

// Package protocol defines the wire-level events exchanged with clients and
// the small interfaces the registry, room tracker and relay use to push
// events to live connections without depending on the transport package.
package protocol

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Inbound event types. These are the identifiers a client sends over its
// websocket connection.
const (
	EventAuthenticate      = "authenticate"
	EventCallSignal        = "call-signal"
	EventTyping            = "typing"
	EventStatusUpdate      = "status-update"
	EventMessageDelivered  = "message-delivered"
	EventMessageRead       = "message-read"
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
)

// Outbound event types.
const (
	EventAuthenticated     = "authenticated"
	EventAuthError         = "auth_error"
	EventCallSignalError   = "call-signal-error"
	EventUserStatusChanged = "user-status-changed"
)

// Call signal types relayed between peers. The relay does not interpret the
// payload; these are only used for logging and metrics labels.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
	SignalHangup    = "hangup"
)

// Event is one wire-level message in either direction.
// Data is left raw on the inbound path so each handler can decode its own
// payload shape (join-conversation carries a bare string, the rest objects).
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an outbound event, marshaling data with goccy/go-json.
func NewEvent(eventType string, data interface{}) (Event, error) {
	if data == nil {
		return Event{Type: eventType}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return Event{Type: eventType, Data: raw}, nil
}

// MustEvent is NewEvent for payloads that cannot fail to marshal
// (map/struct literals built by the server itself).
func MustEvent(eventType string, data interface{}) Event {
	ev, err := NewEvent(eventType, data)
	if err != nil {
		panic(err)
	}
	return ev
}

// AuthenticatePayload is the inbound authenticate payload.
type AuthenticatePayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// CallSignalPayload is the inbound call-signal payload. Extra carries the
// opaque signal body (SDP, ICE candidate, etc.) untouched.
type CallSignalPayload struct {
	To    string                 `json:"to"`
	Type  string                 `json:"type"`
	Extra map[string]interface{} `json:"-"`
}

// UnmarshalJSON keeps unknown fields in Extra so the relay can forward the
// payload without knowing its shape.
func (p *CallSignalPayload) UnmarshalJSON(data []byte) error {
	var all map[string]interface{}
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	if to, ok := all["to"].(string); ok {
		p.To = to
	}
	if st, ok := all["type"].(string); ok {
		p.Type = st
	}
	delete(all, "to")
	delete(all, "type")
	p.Extra = all
	return nil
}

// TypingPayload is the inbound typing payload.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// StatusUpdatePayload is the inbound status-update payload.
type StatusUpdatePayload struct {
	Status string `json:"status"`
}

// ReceiptPayload covers message-delivered and message-read.
type ReceiptPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// Pusher delivers one outbound event to a connection's send queue.
// Delivery is non-blocking; Push reports false when the event was dropped
// (queue full or connection closing).
type Pusher interface {
	Push(ev Event) bool
}

// ConnResolver maps a connection identifier to its live Pusher.
// Implemented by the signaling hub; consumed by the room tracker and relay.
type ConnResolver interface {
	Conn(connID string) (Pusher, bool)
}

// UserRoom returns the personal room joined on authenticate.
func UserRoom(userID string) string {
	return "user_" + userID
}

// ConversationRoom returns the broadcast room for a conversation.
func ConversationRoom(conversationID string) string {
	return "conversation_" + conversationID
}
