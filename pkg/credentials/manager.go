package credentials

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/errors"
)

// Manager resolves the effective password of an input
type Manager struct {
	store   Store
	updater config.InputUpdater
	logger  *zap.Logger
}

// NewManager creates a credential manager. The updater persists the mask
// into the input configuration after a literal password has been stored.
func NewManager(store Store, updater config.InputUpdater, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		updater: updater,
		logger:  logger.With(zap.String("component", "credential_manager")),
	}
}

// Resolve returns the password to use for input kind://name.
//
// A masked password is read from the store, where exactly one entry must
// exist under the input's realm. A literal password replaces whatever is
// stored, and the input configuration is rewritten to hold the mask.
func (m *Manager) Resolve(ctx context.Context, kind, name, configured string) (string, error) {
	secret := ParseSecret(configured)
	realm := name
	log := m.logger.With(zap.String("input", kind+"://"+name))

	switch secret.Kind {
	case UseStored:
		stored, err := m.store.Find(ctx, PasswordKey, realm)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeStorage, "failed to look up stored password")
		}
		if len(stored) != 1 {
			return "", errors.New(errors.ErrorTypeMissingCredential,
				fmt.Sprintf("encrypted %s was not found, reconfigure its value", PasswordKey)).
				WithDetail("realm", realm).
				WithDetail("matches", len(stored))
		}
		return stored[0].Secret, nil

	case Literal:
		// Stored rows are removed unread; they may be sealed under an older key.
		switch err := m.store.Delete(ctx, PasswordKey, realm); {
		case err == nil:
			log.Debug("Removed current password")
		case !errors.IsType(err, errors.ErrorTypeNotFound):
			return "", errors.Wrap(err, errors.ErrorTypeStorage, "failed to remove stored password")
		}

		log.Debug("Storing password and updating input")
		if err := m.store.Create(ctx, secret.Value(), PasswordKey, realm); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeStorage, "failed to store password")
		}
		if m.updater != nil {
			if err := m.updater.UpdateInput(ctx, kind, name, map[string]string{PasswordKey: MaskSentinel}); err != nil {
				return "", errors.Wrap(err, errors.ErrorTypeConfig, "failed to mask password in input configuration")
			}
		}
		return secret.Value(), nil

	default:
		return "", errors.New(errors.ErrorTypeInternal, fmt.Sprintf("unknown secret kind %d", secret.Kind))
	}
}

// Forget removes the stored password of an input
func (m *Manager) Forget(ctx context.Context, name string) error {
	if err := m.store.Delete(ctx, PasswordKey, name); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to remove stored password")
	}
	return nil
}
