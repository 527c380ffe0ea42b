package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnseen(t *testing.T) {
	seen := make(map[string]struct{})

	first := unseen(seen, []string{"storm:event:a", "storm:event:b", "storm:event:a"})
	assert.Equal(t, []string{"storm:event:a", "storm:event:b"}, first)

	// A later SCAN page repeating keys from an earlier one.
	second := unseen(seen, []string{"storm:event:b", "storm:event:c"})
	assert.Equal(t, []string{"storm:event:c"}, second)

	assert.Empty(t, unseen(seen, []string{"storm:event:a", "storm:event:c"}))
	assert.Len(t, seen, 3)
}
