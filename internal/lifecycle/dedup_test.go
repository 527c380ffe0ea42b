package lifecycle

import (
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-sync/internal/domain"
	"github.com/stretchr/testify/assert"
)

func ids(alerts []domain.Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.ID
	}
	return out
}

func TestDedup(t *testing.T) {
	other := func(id string, sent time.Time) domain.Alert {
		a := alert(id, domain.MsgNew, sent)
		a.Key = "OTHER"
		return a
	}

	tests := []struct {
		name string
		in   []domain.Alert
		want []string
	}{
		{
			name: "latest sent wins",
			in:   []domain.Alert{alert("a1", domain.MsgNew, t0), alert("a2", domain.MsgNew, t0.Add(5*time.Minute)), alert("a3", domain.MsgNew, t0.Add(time.Minute))},
			want: []string{"a2"},
		},
		{
			name: "tie keeps first",
			in:   []domain.Alert{alert("a1", domain.MsgNew, t0), alert("a2", domain.MsgNew, t0)},
			want: []string{"a1"},
		},
		{
			name: "unparsable never beats parsed",
			in:   []domain.Alert{alert("a1", domain.MsgNew, time.Time{}), alert("a2", domain.MsgNew, t0), alert("a3", domain.MsgNew, time.Time{})},
			want: []string{"a2"},
		},
		{
			name: "all unparsable keeps first",
			in:   []domain.Alert{alert("a1", domain.MsgNew, time.Time{}), alert("a2", domain.MsgNew, time.Time{})},
			want: []string{"a1"},
		},
		{
			name: "first appearance order",
			in:   []domain.Alert{other("o1", t0), alert("a1", domain.MsgNew, t0), other("o2", t0.Add(time.Minute))},
			want: []string{"o2", "a1"},
		},
		{
			name: "empty",
			in:   nil,
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Dedup(tt.in)))
		})
	}
}
