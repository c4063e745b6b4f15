package prometheus

import (
	"errors"

	"github.com/aescanero/dagent/pkg/domain"
)

func failureKind(err error) string {
	var be *domain.BackendError
	switch {
	case errors.Is(err, domain.ErrPoolExhausted):
		return "pool_exhausted"
	case errors.As(err, &be):
		return string(be.Kind)
	default:
		return "other"
	}
}
