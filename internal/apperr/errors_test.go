package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationfFormats(t *testing.T) {
	err := Validationf("stage %s cannot start from state %s", "grade", "UPLOADED")

	var ve *ValidationError
	require.ErrorAs(t, fmt.Errorf("submit: %w", err), &ve)
	assert.Equal(t, "stage grade cannot start from state UPLOADED", ve.Error())
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := &NotFoundError{Kind: "job", ID: "abc"}
	assert.Equal(t, "job not found: abc", err.Error())
}

func TestCapabilityErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := &CapabilityError{Provider: "trocr", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "trocr: connection refused", err.Error())
}

func TestTypedErrorsSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("run job: %w", &NotFoundError{Kind: "reference", ID: "xyz"})

	var nf *NotFoundError
	require.ErrorAs(t, wrapped, &nf)
	assert.Equal(t, "reference", nf.Kind)

	assert.ErrorIs(t, fmt.Errorf("enqueue: %w", ErrJobBusy), ErrJobBusy)
}
