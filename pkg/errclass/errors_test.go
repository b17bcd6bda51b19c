package errclass_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibepruner/vibepruner/pkg/errclass"
)

func TestCoreError_Error(t *testing.T) {
	err := errclass.ErrLockConflict.WithMessage("another session is running")
	assert.Equal(t, "E_LOCK_CONFLICT: another session is running", err.Error())
}

func TestCoreError_ErrorWithoutMessage(t *testing.T) {
	assert.Equal(t, "E_INTEGRITY", errclass.ErrIntegrity.Error())
}

func TestCoreError_Is(t *testing.T) {
	err := errclass.ErrLockConflict.WithMessage("specific message")
	require.True(t, errors.Is(err, errclass.ErrLockConflict))
	require.False(t, errors.Is(err, errclass.ErrNotFound))
}

func TestCoreError_WithMessagef(t *testing.T) {
	err := errclass.ErrNotFound.WithMessagef("transaction not found: %s", "20240101_120000_abcd1234")
	assert.Equal(t, "E_NOT_FOUND: transaction not found: 20240101_120000_abcd1234", err.Error())
	require.True(t, errors.Is(err, errclass.ErrNotFound))
}

func TestCoreError_AllClassesDefined(t *testing.T) {
	all := []*errclass.CoreError{
		errclass.ErrPersistence,
		errclass.ErrIntegrity,
		errclass.ErrNotFound,
		errclass.ErrLockConflict,
		errclass.ErrTransactionActive,
		errclass.ErrNoTransaction,
		errclass.ErrAlreadyCompleted,
		errclass.ErrReversalFailed,
		errclass.ErrNoSession,
		errclass.ErrNameInvalid,
		errclass.ErrPathEscape,
	}

	seen := make(map[string]bool)
	for _, e := range all {
		require.NotEmpty(t, e.Code)
		assert.False(t, seen[e.Code], "duplicate code %s", e.Code)
		seen[e.Code] = true
	}
}
