package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		verbose bool
		quiet   bool
		debug   bool
		info    bool
	}{
		{"verbose", true, false, true, true},
		{"default", false, false, false, true},
		{"quiet", false, true, false, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, err := New(tt.verbose, tt.quiet)
			require.NoError(t, err)
			assert.Equal(t, tt.debug, l.Core().Enabled(zap.DebugLevel))
			assert.Equal(t, tt.info, l.Core().Enabled(zap.InfoLevel))
			assert.True(t, l.Core().Enabled(zap.WarnLevel))
		})
	}
}
