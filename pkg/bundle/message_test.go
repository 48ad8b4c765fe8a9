package bundle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	errs "github.com/logflow/bundler/pkg/errors"
)

func TestComposeMessage(t *testing.T) {
	tests := []struct {
		count    int
		name     string
		expected string
	}{
		{1, "X", "X went on a tour"},
		{2, "X", "X and 1 other went on a tour"},
		{3, "Javi", "Javi and 2 others went on a tour"},
		{5, "X", "X and 4 others went on a tour"},
		{1, "Σωτήριος", "Σωτήριος went on a tour"},
	}

	for _, tt := range tests {
		got, err := ComposeMessage(tt.count, tt.name)
		assert.NoError(t, err)
		assert.Equal(t, tt.expected, got)
	}
}

func TestComposeMessage_InvalidCount(t *testing.T) {
	for _, count := range []int{0, -1} {
		msg, err := ComposeMessage(count, "X")
		assert.Empty(t, msg)
		assert.True(t, errors.Is(err, ErrInvalidBatchCount), "count=%d", count)
		assert.True(t, errs.IsFatal(err))
	}
}
