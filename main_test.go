package main

import (
	"testing"

	"github.com/deemkeen/quill/activitypub"
)

func TestTransportTrusted(t *testing.T) {
	if got := transportTrusted(nil); len(got) != len(activitypub.DefaultTransportTrusted) {
		t.Errorf("Expected defaults for empty config, got %v", got)
	}

	got := transportTrusted([]string{"Delete"})
	if len(got) != 1 || got[0] != activitypub.KindDelete {
		t.Errorf("Expected [Delete], got %v", got)
	}
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"alice", "my-blog", "bob_2"} {
		if err := validName(name); err != nil {
			t.Errorf("Expected %q to be valid: %v", name, err)
		}
	}
	for _, name := range []string{"", "a/b", "@alice", "two words", "x?y"} {
		if err := validName(name); err == nil {
			t.Errorf("Expected %q to be rejected", name)
		}
	}
}
