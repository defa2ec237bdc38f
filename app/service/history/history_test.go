package history

import (
	"fmt"
	"testing"
	"time"
)

func TestHistoryKeepsMostRecent(t *testing.T) {
	var h History

	now := time.Unix(0, 0)
	for i := 0; i < messageLimit+5; i++ {
		h.Add(RoleUser, fmt.Sprintf("message %d", i), now)
	}

	if h.Len() != messageLimit {
		t.Fatalf("len = %d, want %d", h.Len(), messageLimit)
	}

	msgs := h.All()
	if msgs[0].Content != "message 5" {
		t.Fatalf("oldest kept = %q, want %q", msgs[0].Content, "message 5")
	}

	if msgs[len(msgs)-1].Content != fmt.Sprintf("message %d", messageLimit+4) {
		t.Fatalf("newest = %q", msgs[len(msgs)-1].Content)
	}
}

func TestAllReturnsCopy(t *testing.T) {
	var h History

	h.Add(RoleUser, "original", time.Unix(0, 0))

	msgs := h.All()
	msgs[0].Content = "mutated"

	if h.All()[0].Content != "original" {
		t.Fatal("All must return a copy")
	}
}

func TestFormat(t *testing.T) {
	if got := Format(nil); got != "No recent messages" {
		t.Fatalf("empty format = %q", got)
	}

	var h History
	h.Add(RoleUser, "hi", time.Unix(0, 0))
	h.Add(RoleAssistant, "hello", time.Unix(0, 0))

	want := "user: hi\nassistant: hello\n"
	if got := Format(h.All()); got != want {
		t.Fatalf("format = %q, want %q", got, want)
	}
}
