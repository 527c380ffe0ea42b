package lifecycle

import "github.com/couchcryptid/storm-data-sync/internal/domain"

// Dedup collapses alerts sharing a key to the one with the latest sent time.
// Alerts with a zero sent time never win over a parsed one; ties and all-zero
// groups keep the first alert. Output follows first appearance of each key.
func Dedup(alerts []domain.Alert) []domain.Alert {
	idx := make(map[string]int, len(alerts))
	out := make([]domain.Alert, 0, len(alerts))
	for _, a := range alerts {
		i, seen := idx[a.Key]
		if !seen {
			idx[a.Key] = len(out)
			out = append(out, a)
			continue
		}
		if a.Sent.IsZero() {
			continue
		}
		if cur := out[i]; cur.Sent.IsZero() || a.Sent.After(cur.Sent) {
			out[i] = a
		}
	}
	return out
}
