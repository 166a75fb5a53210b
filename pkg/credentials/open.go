package credentials

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/gridfeed/pkg/config"
	"github.com/ajitpratap0/gridfeed/pkg/errors"
)

// OpenStore builds the Store selected by cfg
func OpenStore(ctx context.Context, cfg config.CredentialsConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "postgres":
		c, err := NewCipher([]byte(cfg.Key), cfg.KeyID)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid credential store key")
		}
		return OpenSQLStore(ctx, Dialect(cfg.Backend), cfg.DSN, c, logger)
	default:
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unknown credential store backend %q", cfg.Backend))
	}
}
