package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is the value of the "type" field of a signaling message
type MessageType string

const (
	TypeJoinRoom     MessageType = "join_room"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice_candidate"
	TypeChatMessage  MessageType = "chat_message"

	// Synthesized by the server
	TypeUserJoined MessageType = "user_joined"
	TypeRoomUsers  MessageType = "room_users"
)

// DefaultRoomID is used when a message carries no room_id or a null one.
const DefaultRoomID = "default"

// ErrMissingType is reported for objects without a string "type" field.
var ErrMissingType = errors.New("message has no type")

// Inbound is one decoded client message. The concrete type is one of
// JoinRoom, Signal, Chat or Ignored.
type Inbound interface {
	inbound()
}

// JoinRoom asks the server to add the sender to a room.
type JoinRoom struct {
	RoomID string
}

// Signal is an offer, answer or ICE candidate. Fields holds every top-level
// field of the original object so it can be forwarded untouched.
type Signal struct {
	Type     MessageType
	RoomID   string
	TargetID string
	Fields   map[string]json.RawMessage
}

// Chat is a text message for the rest of the room. Message and Timestamp are
// kept as raw JSON and relayed verbatim.
type Chat struct {
	RoomID    string
	Message   json.RawMessage
	Timestamp json.RawMessage
}

// Ignored is a message the server does not route. Err is nil for well-formed
// messages of an unknown type.
type Ignored struct {
	Type MessageType
	Err  error
}

func (JoinRoom) inbound() {}
func (Signal) inbound()   {}
func (Chat) inbound()     {}
func (Ignored) inbound()  {}

type envelope struct {
	Type      *MessageType    `json:"type"`
	RoomID    *string         `json:"room_id"`
	TargetID  *string         `json:"target_id"`
	Message   json.RawMessage `json:"message"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Decode classifies a raw client frame. It never fails: anything that is not
// a JSON object with a string type, or whose well-known fields have the wrong
// JSON type, decodes to Ignored.
func Decode(raw []byte) Inbound {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Ignored{Err: fmt.Errorf("decode message: %w", err)}
	}
	if fields == nil {
		return Ignored{Err: fmt.Errorf("decode message: %w", ErrMissingType)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Ignored{Err: fmt.Errorf("decode message fields: %w", err)}
	}
	if env.Type == nil {
		return Ignored{Err: ErrMissingType}
	}

	// Only an absent or null room_id falls back; "" is a room of its own.
	roomID := DefaultRoomID
	if env.RoomID != nil {
		roomID = *env.RoomID
	}

	switch *env.Type {
	case TypeJoinRoom:
		return JoinRoom{RoomID: roomID}
	case TypeOffer, TypeAnswer, TypeICECandidate:
		sig := Signal{Type: *env.Type, RoomID: roomID, Fields: fields}
		if env.TargetID != nil {
			sig.TargetID = *env.TargetID
		}
		return sig
	case TypeChatMessage:
		return Chat{RoomID: roomID, Message: env.Message, Timestamp: env.Timestamp}
	default:
		return Ignored{Type: *env.Type}
	}
}

// WithSender encodes the original signal with sender_id set to senderID,
// overwriting any sender_id the client supplied.
func (s Signal) WithSender(senderID string) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.Fields)+1)
	for k, v := range s.Fields {
		out[k] = v
	}
	sender, err := json.Marshal(senderID)
	if err != nil {
		return nil, err
	}
	out["sender_id"] = sender
	return json.Marshal(out)
}

// UserJoined tells existing room members that a client joined.
type UserJoined struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"user_id"`
}

// NewUserJoined builds a user_joined notice.
func NewUserJoined(userID string) UserJoined {
	return UserJoined{Type: TypeUserJoined, UserID: userID}
}

// RoomUsers lists the other members of a room to a client that just joined.
type RoomUsers struct {
	Type  MessageType `json:"type"`
	Users []string    `json:"users"`
}

// NewRoomUsers builds a room_users message. A nil list encodes as [].
func NewRoomUsers(users []string) RoomUsers {
	if users == nil {
		users = []string{}
	}
	return RoomUsers{Type: TypeRoomUsers, Users: users}
}

// ChatBroadcast is the normalized chat message relayed to room members.
type ChatBroadcast struct {
	Type      MessageType     `json:"type"`
	Message   json.RawMessage `json:"message"`
	SenderID  string          `json:"sender_id"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// NewChatBroadcast normalizes an inbound chat for relay.
func NewChatBroadcast(c Chat, senderID string) ChatBroadcast {
	return ChatBroadcast{
		Type:      TypeChatMessage,
		Message:   c.Message,
		SenderID:  senderID,
		Timestamp: c.Timestamp,
	}
}
