package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/valyala/fastjson"

	"github.com/NicolasHaas/chatrelay/pkg/model"
	"github.com/NicolasHaas/chatrelay/pkg/protocol"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    protocol.Command
		wantErr error
	}{
		{
			name:  "auth",
			input: `{"command":"auth","username":"alice","password":"abcdef12"}`,
			want:  protocol.Command{Name: "auth", Username: "alice", Password: "abcdef12"},
		},
		{
			name:  "message with recipient",
			input: `{"command":"message","username":"alice","content":"psst","recipient":"bob"}`,
			want:  protocol.Command{Name: "message", Username: "alice", Content: "psst", Recipient: "bob"},
		},
		{
			name:  "join_channel",
			input: `{"command":"join_channel","username":"alice","channel":"random"}`,
			want:  protocol.Command{Name: "join_channel", Username: "alice", Channel: "random"},
		},
		{
			name:  "extra fields ignored",
			input: `{"command":"heartbeat","username":"alice","bogus":42}`,
			want:  protocol.Command{Name: "heartbeat", Username: "alice"},
		},
		{
			name:    "not json",
			input:   `this is not json`,
			wantErr: errors.New("any"),
		},
		{
			name:    "not an object",
			input:   `[1,2,3]`,
			wantErr: protocol.ErrNotObject,
		},
		{
			name:    "missing command",
			input:   `{"username":"alice"}`,
			wantErr: protocol.ErrMissingCommand,
		},
	}

	var p fastjson.Parser
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := protocol.ParseCommand(&p, []byte(tt.input))
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("ParseCommand(%q): expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand(%q): unexpected error: %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseCommand mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeChatMessage(t *testing.T) {
	at := time.Unix(1700000000, 0)
	payload, err := protocol.EncodeChatMessage("alice", "hi there", "general", false, at)
	if err != nil {
		t.Fatalf("EncodeChatMessage: unexpected error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"type":      "message",
		"sender":    "alice",
		"content":   "hi there",
		"timestamp": "1700000000",
		"channel":   "general",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chat message mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeChatMessagePrivate(t *testing.T) {
	payload, err := protocol.EncodeChatMessage("alice", "psst", "general", true, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("EncodeChatMessage: unexpected error: %v", err)
	}

	var got protocol.ChatMessage
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.IsPrivate {
		t.Errorf("is_private not set on private message")
	}
}

func TestEncodeChannelListEmpty(t *testing.T) {
	payload, err := protocol.EncodeChannelList(nil)
	if err != nil {
		t.Fatalf("EncodeChannelList: unexpected error: %v", err)
	}
	if string(payload) != `{"type":"channel_list","channels":[]}` {
		t.Errorf("EncodeChannelList(nil) = %s, want empty array", payload)
	}
}

func TestEncodeHistoryRoundTrip(t *testing.T) {
	recipient := int64(2)
	messages := []model.Message{
		{ID: 9, ChannelID: 1, SenderID: 1, Content: "newest"},
		{ID: 8, ChannelID: 1, SenderID: 2, Content: "older", IsPrivate: true, RecipientID: &recipient},
	}
	payload, err := protocol.EncodeHistory(messages)
	if err != nil {
		t.Fatalf("EncodeHistory: unexpected error: %v", err)
	}

	var got protocol.History
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "history" {
		t.Errorf("type = %q, want %q", got.Type, "history")
	}
	if diff := cmp.Diff(messages, got.Messages); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeChannelJoined(t *testing.T) {
	ch := model.Channel{ID: 3, Name: "random", Description: "anything goes"}
	payload, err := protocol.EncodeChannelJoined(ch)
	if err != nil {
		t.Fatalf("EncodeChannelJoined: unexpected error: %v", err)
	}

	var got protocol.ChannelJoined
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "channel_joined" || got.Channel.Name != "random" {
		t.Errorf("channel_joined = %+v", got)
	}
}
