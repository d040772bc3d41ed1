package pipeline

import (
	"github.com/gradelab/scriptgrade-backend/internal/apperr"
)

// The error taxonomy lives in apperr so leaf layers (repositories) can
// return typed errors without importing the orchestration core. The
// aliases keep pipeline callers on the short names.

var ErrJobBusy = apperr.ErrJobBusy

type (
	ValidationError = apperr.ValidationError
	NotFoundError   = apperr.NotFoundError
	CapabilityError = apperr.CapabilityError
)

var Validationf = apperr.Validationf
