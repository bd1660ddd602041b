package chat

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/suPer8Hu/ai-concierge/internal/apierr"
)

var (
	ErrValidation    = errors.New("invalid request")
	ErrNotFound      = errors.New("session not found")
	ErrSessionClosed = errors.New("session closed")
	ErrGeneration    = errors.New("reply generation failed")
)

// envelope codes rendered by the HTTP layer
const (
	CodeBadJSON       = 10001
	CodeInvalidField  = 10002
	CodeNotFound      = 40004
	CodeSessionClosed = 40010
	CodeGeneration    = 50001
	CodeInternal      = 50002
)

func validationErr(format string, args ...any) error {
	return apierr.New(http.StatusBadRequest, CodeInvalidField,
		fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...)))
}

func notFoundErr() error {
	return apierr.New(http.StatusNotFound, CodeNotFound, ErrNotFound)
}

func closedErr() error {
	return apierr.New(http.StatusBadRequest, CodeSessionClosed, ErrSessionClosed)
}

func generationErr(err error) error {
	return apierr.New(http.StatusInternalServerError, CodeGeneration, fmt.Errorf("%w: %v", ErrGeneration, err))
}

func internalErr(op string, err error) error {
	return apierr.New(http.StatusInternalServerError, CodeInternal, fmt.Errorf("%s: %w", op, err))
}
