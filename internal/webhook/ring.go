package webhook

import "github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/model"

// logRing is a fixed-capacity delivery-log queue: pushing beyond capacity
// evicts the oldest entry. Entries are kept oldest-first internally and
// exposed most-recent-first, which is the order the log is persisted in.
type logRing struct {
	capacity int
	entries  []model.WebhookLog
}

// newLogRing seeds a ring from a persisted most-recent-first snapshot.
func newLogRing(capacity int, snapshot []model.WebhookLog) *logRing {
	r := &logRing{capacity: capacity}
	for i := len(snapshot) - 1; i >= 0; i-- {
		r.Push(snapshot[i])
	}
	return r
}

func (r *logRing) Push(entry model.WebhookLog) {
	if r.capacity <= 0 {
		return
	}
	if len(r.entries) == r.capacity {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:len(r.entries)-1]
	}
	r.entries = append(r.entries, entry)
}

func (r *logRing) Len() int {
	return len(r.entries)
}

// Snapshot returns the entries most-recent-first.
func (r *logRing) Snapshot() []model.WebhookLog {
	out := make([]model.WebhookLog, len(r.entries))
	for i, e := range r.entries {
		out[len(r.entries)-1-i] = e
	}
	return out
}
