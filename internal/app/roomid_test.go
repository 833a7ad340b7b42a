package app

import (
	"strings"
	"testing"

	"github.com/partyline/voice/internal/domain"
)

func TestDeriveRoomID(t *testing.T) {
	tests := []struct {
		name string
		snap domain.TelemetrySnapshot
		want domain.RoomID
	}{
		{
			name: "party_id_wins",
			snap: domain.TelemetrySnapshot{
				Lobby:   domain.LobbyInfo{PartyID: "p1", LobbyID: "l1"},
				Members: []domain.PeerDescriptor{{StableID: "a"}, {StableID: "b"}},
			},
			want: "party-p1",
		},
		{
			name: "lobby_id_second",
			snap: domain.TelemetrySnapshot{
				Lobby:   domain.LobbyInfo{LobbyID: "l1"},
				Members: []domain.PeerDescriptor{{StableID: "a"}},
			},
			want: "lobby-l1",
		},
		{
			name: "member_fallback_sorted",
			snap: domain.TelemetrySnapshot{
				Members: []domain.PeerDescriptor{{StableID: "zeta"}, {StableID: "alpha"}},
			},
			want: "peers-alpha.zeta",
		},
		{
			name: "members_without_stable_ids_yield_nothing",
			snap: domain.TelemetrySnapshot{
				Members: []domain.PeerDescriptor{{Name: "ghost"}},
			},
			want: "",
		},
		{
			name: "empty_snapshot",
			snap: domain.TelemetrySnapshot{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveRoomID(tt.snap); got != tt.want {
				t.Errorf("DeriveRoomID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeriveRoomIDOrderIndependent(t *testing.T) {
	a := domain.TelemetrySnapshot{
		Members: []domain.PeerDescriptor{{StableID: "x"}, {StableID: "y"}, {StableID: "z"}},
	}
	b := domain.TelemetrySnapshot{
		Members: []domain.PeerDescriptor{{StableID: "z"}, {StableID: "x"}, {StableID: "y"}},
	}
	if DeriveRoomID(a) != DeriveRoomID(b) {
		t.Error("room id depends on member order")
	}
}

func TestDeriveRoomIDBounded(t *testing.T) {
	long := strings.Repeat("m", 100)
	snap := domain.TelemetrySnapshot{Lobby: domain.LobbyInfo{PartyID: long}}
	got := DeriveRoomID(snap)
	if len(got) != domain.MaxRoomIDLen {
		t.Errorf("len = %d, want %d", len(got), domain.MaxRoomIDLen)
	}
	if !strings.HasPrefix(string(got), "party-") {
		t.Errorf("prefix lost in truncation: %q", got)
	}
}
