package datastore_test

import (
	"context"
	"testing"

	"github.com/NicolasHaas/chatrelay/pkg/datastore"
	"github.com/NicolasHaas/chatrelay/pkg/model"
)

func TestMemoryUsers(t *testing.T) {
	t.Parallel()

	st := datastore.NewMemoryFactory().NonTx()

	u, err := st.CreateUser("alice", "hash", "salt")
	if err != nil {
		t.Fatalf("CreateUser: unexpected error: %v", err)
	}
	if u.ID == 0 {
		t.Errorf("CreateUser: expected assigned ID, got 0")
	}

	if _, err := st.CreateUser("alice", "hash2", "salt2"); err != datastore.ErrUsernameTaken {
		t.Errorf("CreateUser duplicate: got %v, want ErrUsernameTaken", err)
	}

	missing, err := st.GetUserByUsername("nobody")
	if err != nil {
		t.Fatalf("GetUserByUsername: unexpected error: %v", err)
	}
	if missing != nil {
		t.Errorf("GetUserByUsername: expected nil for missing user, got %+v", missing)
	}

	if err := st.UpdateUserChannel(u.ID, "random"); err != nil {
		t.Fatalf("UpdateUserChannel: unexpected error: %v", err)
	}
	fetched, err := st.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: unexpected error: %v", err)
	}
	if fetched.CurrentChannel != "random" {
		t.Errorf("current channel = %q, want %q", fetched.CurrentChannel, "random")
	}
}

func TestMemoryChannelsAndMessages(t *testing.T) {
	t.Parallel()

	st := datastore.NewMemoryFactory().NonTx()

	ch := &model.Channel{Name: "gaming", OwnerID: 1}
	if err := st.CreateChannel(ch); err != nil {
		t.Fatalf("CreateChannel: unexpected error: %v", err)
	}
	system := model.NewSystemChannel("general")
	if err := st.CreateChannel(system); err != nil {
		t.Fatalf("CreateChannel: unexpected error: %v", err)
	}

	deleted, err := st.DeleteChannel(system.ID, 1)
	if err != nil {
		t.Fatalf("DeleteChannel: unexpected error: %v", err)
	}
	if deleted {
		t.Errorf("DeleteChannel: system channel was deleted")
	}

	for _, content := range []string{"one", "two", "three"} {
		if err := st.CreateMessage(&model.Message{ChannelID: ch.ID, SenderID: 1, Content: content}); err != nil {
			t.Fatalf("CreateMessage: unexpected error: %v", err)
		}
	}
	got, err := st.GetChannelMessages(ch.ID, 2)
	if err != nil {
		t.Fatalf("GetChannelMessages: unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Content != "three" || got[1].Content != "two" {
		t.Errorf("GetChannelMessages: got %+v, want newest two", got)
	}
}

func TestMemoryTx(t *testing.T) {
	t.Parallel()

	f := datastore.NewMemoryFactory()
	tx, err := f.Tx(context.Background())
	if err != nil {
		t.Fatalf("Tx: unexpected error: %v", err)
	}
	if _, err := tx.CreateUser("bob", "hash", "salt"); err != nil {
		t.Fatalf("CreateUser in tx: unexpected error: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: unexpected error: %v", err)
	}

	got, err := f.NonTx().GetUserByUsername("bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: unexpected error: %v", err)
	}
	if got == nil {
		t.Fatalf("user missing after tx commit")
	}
}
