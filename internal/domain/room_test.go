package domain

import (
	"strings"
	"testing"
)

func TestNewCallCode(t *testing.T) {
	a := NewCallCode()
	b := NewCallCode()
	if len(a) != 8 {
		t.Errorf("code length = %d, want 8", len(a))
	}
	if a == b {
		t.Error("two call codes collided")
	}
	if strings.Contains(a, "-") {
		t.Errorf("code %q contains separator", a)
	}
}

func TestManualRoomNeverCollidesWithAutoIDs(t *testing.T) {
	room := ManualRoom("abc12345")
	if room.Kind != RoomManual {
		t.Errorf("kind = %v, want manual", room.Kind)
	}
	if !strings.HasPrefix(string(room.ID), ManualRoomPrefix) {
		t.Errorf("manual room id %q missing prefix", room.ID)
	}

	auto := AutoRoom("party-abc12345")
	if auto.Kind != RoomAuto {
		t.Errorf("kind = %v, want auto", auto.Kind)
	}
	if auto.ID == room.ID {
		t.Error("auto and manual ids collided")
	}
}

func TestPresenceEntryMetaAccessors(t *testing.T) {
	e := PresenceEntry{
		ID: "p1",
		Meta: map[string]any{
			MetaName:     "Alice",
			MetaSpeaking: true,
			MetaMuted:    false,
		},
	}
	if e.Name() != "Alice" || !e.Speaking() || e.Muted() {
		t.Errorf("accessors wrong for %+v", e)
	}

	empty := PresenceEntry{ID: "p2", Meta: map[string]any{}}
	if empty.Name() != "" || empty.Speaking() || empty.Muted() {
		t.Error("empty meta must read as silent, unmuted, unnamed")
	}

	// a backend that sends strings instead of bools must not panic
	weird := PresenceEntry{ID: "p3", Meta: map[string]any{MetaSpeaking: "yes", MetaName: 7}}
	if weird.Speaking() || weird.Name() != "" {
		t.Errorf("mistyped meta handled wrong: %+v", weird)
	}
}

func TestNewPeerValidation(t *testing.T) {
	p, err := NewPeer("Alice")
	if err != nil {
		t.Fatalf("NewPeer: %v", err)
	}
	if p.ID == "" || p.Name != "Alice" {
		t.Errorf("peer = %+v", p)
	}

	if _, err := NewPeer(""); err != ErrPeerNameEmpty {
		t.Errorf("empty name error = %v", err)
	}
	if _, err := NewPeer(strings.Repeat("x", MaxPeerNameLen+1)); err != ErrPeerNameTooLong {
		t.Errorf("long name error = %v", err)
	}

	if err := p.SetName(strings.Repeat("y", MaxPeerNameLen)); err != nil {
		t.Errorf("SetName at limit: %v", err)
	}
}
