package signal

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/partyline/voice/internal/domain"
)

// decodePresence turns a presence_state payload into a roster ordered
// by join time, ties broken by id so every peer observes the same
// ordering.
func decodePresence(data []byte) ([]domain.PresenceEntry, error) {
	var state map[string]presenceMeta
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("bad presence payload: %w", err)
	}

	entries := make([]domain.PresenceEntry, 0, len(state))
	for id, pm := range state {
		meta := pm.Meta
		if meta == nil {
			meta = map[string]any{}
		}
		entries = append(entries, domain.PresenceEntry{
			ID:         domain.PeerID(id),
			Meta:       meta,
			JoinedAtMs: pm.JoinedAtMs,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].JoinedAtMs != entries[j].JoinedAtMs {
			return entries[i].JoinedAtMs < entries[j].JoinedAtMs
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// mergeMeta merges partial into base without removing unrelated keys.
func mergeMeta(base, partial map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	for k, v := range partial {
		base[k] = v
	}
	return base
}
