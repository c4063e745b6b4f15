package credentials

import (
	"errors"
	"sync"

	"github.com/aescanero/dagent/pkg/domain"
)

// modelSelector holds the active model of a provider.
type modelSelector struct {
	modelMu sync.RWMutex
	model   string
}

// Model returns the active model.
func (m *modelSelector) Model() string {
	m.modelMu.RLock()
	defer m.modelMu.RUnlock()
	return m.model
}

// SetModel changes the active model.
func (m *modelSelector) SetModel(model string) {
	m.modelMu.Lock()
	defer m.modelMu.Unlock()
	m.model = model
}

func isQuota(err error) bool {
	var be *domain.BackendError
	return errors.As(err, &be) && be.Kind == domain.KindQuota
}
