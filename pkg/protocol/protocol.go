// Package protocol defines the datagram command envelope and the outbound
// response/notification envelopes.
//
// Inbound datagrams are JSON objects carrying a "command" field plus string
// parameters. Outbound envelopes are JSON objects tagged by "type", except
// for the short plain-byte auth/register acknowledgements.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fastjson"

	"github.com/NicolasHaas/chatrelay/pkg/model"
)

// Inbound command names.
const (
	CmdAuth        = "auth"
	CmdRegister    = "register"
	CmdMessage     = "message"
	CmdHeartbeat   = "heartbeat"
	CmdJoinChannel = "join_channel"
)

// Plain-byte acknowledgements for auth and register flows.
const (
	AckRegisterSuccess = "REGISTER_SUCCESS"
	AckRegisterFailed  = "REGISTER_FAILED"
	AckInvalidUsername = "INVALID_USERNAME"
	AckWeakPassword    = "WEAK_PASSWORD"
	AckUsernameExists  = "USERNAME_EXISTS"
	AckAuthFailed      = "AUTH_FAILED"
)

// SystemSender is the sender name used for server-authored notices.
const SystemSender = "system"

var ErrNotObject = errors.New("protocol: payload is not a JSON object")
var ErrMissingCommand = errors.New("protocol: payload has no command field")

// Command is a decoded inbound envelope. Fields the payload does not carry
// are left empty; each handler checks what it needs.
type Command struct {
	Name      string
	Username  string
	Password  string
	Content   string
	Channel   string
	Recipient string
}

// ParseCommand decodes a datagram into a Command using the supplied parser.
// The parser is reused across calls; the dispatch loop owns exactly one.
func ParseCommand(p *fastjson.Parser, data []byte) (Command, error) {
	v, err := p.ParseBytes(data)
	if err != nil {
		return Command{}, fmt.Errorf("protocol: parse envelope: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return Command{}, ErrNotObject
	}

	name := string(v.GetStringBytes("command"))
	if name == "" {
		return Command{}, ErrMissingCommand
	}

	return Command{
		Name:      name,
		Username:  string(v.GetStringBytes("username")),
		Password:  string(v.GetStringBytes("password")),
		Content:   string(v.GetStringBytes("content")),
		Channel:   string(v.GetStringBytes("channel")),
		Recipient: string(v.GetStringBytes("recipient")),
	}, nil
}

// ChannelList is the outbound envelope listing the public channels.
type ChannelList struct {
	Type     string          `json:"type"`
	Channels []model.Channel `json:"channels"`
}

// History is the outbound envelope carrying recent channel messages,
// newest first.
type History struct {
	Type     string          `json:"type"`
	Messages []model.Message `json:"messages"`
}

// ChatMessage is the outbound envelope for a relayed message, public or
// private. Timestamp is the Unix-seconds decimal string.
type ChatMessage struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Channel   string `json:"channel"`
	IsPrivate bool   `json:"is_private,omitempty"`
}

// ChannelJoined confirms a completed channel switch.
type ChannelJoined struct {
	Type    string        `json:"type"`
	Channel model.Channel `json:"channel"`
}

// EncodeChannelList marshals a channel_list envelope.
func EncodeChannelList(channels []model.Channel) ([]byte, error) {
	if channels == nil {
		channels = []model.Channel{}
	}
	return json.Marshal(ChannelList{Type: "channel_list", Channels: channels})
}

// EncodeHistory marshals a history envelope.
func EncodeHistory(messages []model.Message) ([]byte, error) {
	if messages == nil {
		messages = []model.Message{}
	}
	return json.Marshal(History{Type: "history", Messages: messages})
}

// EncodeChatMessage marshals a message envelope stamped with the given time.
func EncodeChatMessage(sender, content, channel string, private bool, at time.Time) ([]byte, error) {
	return json.Marshal(ChatMessage{
		Type:      "message",
		Sender:    sender,
		Content:   content,
		Timestamp: strconv.FormatInt(at.Unix(), 10),
		Channel:   channel,
		IsPrivate: private,
	})
}

// EncodeChannelJoined marshals a channel_joined confirmation.
func EncodeChannelJoined(ch model.Channel) ([]byte, error) {
	return json.Marshal(ChannelJoined{Type: "channel_joined", Channel: ch})
}
