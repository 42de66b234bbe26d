package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error constants are available", func(t *testing.T) {
		assert.NotNil(t, persistence.ErrRunNotFound)
		assert.NotNil(t, persistence.ErrInvalidRun)
	})

	t.Run("error checking functions work correctly", func(t *testing.T) {
		runErr := persistence.NewRunError("RunByID", "wf-123", "evt-1", persistence.ErrRunNotFound)

		assert.True(t, persistence.IsRunNotFound(runErr))
		assert.True(t, errors.Is(runErr, persistence.ErrRunNotFound))
		assert.False(t, persistence.IsRunNotFound(errors.New("other")))
	})

	t.Run("run error contains context", func(t *testing.T) {
		err := persistence.NewRunError("SaveRun", "wf-123", "evt-9", persistence.ErrRunNotFound)

		assert.Contains(t, err.Error(), "SaveRun")
		assert.Contains(t, err.Error(), "wf-123/evt-9")
		assert.Contains(t, err.Error(), "run not found")
	})

	t.Run("validate run ids", func(t *testing.T) {
		require.NoError(t, persistence.ValidateRunIDs("SaveRun", "wf", "evt"))

		err := persistence.ValidateRunIDs("SaveRun", "", "evt")
		require.Error(t, err)
		assert.ErrorIs(t, err, persistence.ErrInvalidRun)
	})
}
