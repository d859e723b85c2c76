package sessionlist

import (
	"strings"

	"github.com/verte-zerg/touchsync/internal/session"
)

// FilterFunc returns true when a session should be kept.
type FilterFunc func(string) bool

// FilterForParticipant keeps valid ids of one participant. An empty
// participant keeps every valid id.
func FilterForParticipant(participant string) FilterFunc {
	want := strings.ToUpper(strings.TrimSpace(participant))
	return func(raw string) bool {
		id, err := session.Parse(raw)
		if err != nil {
			return false
		}
		return want == "" || id.Participant == want
	}
}

// Apply returns the ids accepted by filter, in order.
func Apply(ids []string, filter FilterFunc) []string {
	var out []string
	for _, id := range ids {
		if filter(id) {
			out = append(out, id)
		}
	}
	return out
}
