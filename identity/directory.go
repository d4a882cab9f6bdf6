package identity

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/sales-engine/sales"
)

// DefaultAdminSecret is used by Seed when no secret is configured.
const DefaultAdminSecret = "admin123"

// Directory holds bcrypt hashes of operator secrets.
type Directory struct {
	mu     sync.RWMutex
	hashes map[string][]byte
	cost   int
	logger *zap.Logger
}

func NewDirectory(logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		hashes: make(map[string][]byte),
		cost:   bcrypt.DefaultCost,
		logger: logger.Named("identity"),
	}
}

// WithCost changes the bcrypt cost for secrets added afterwards. Tests use
// bcrypt.MinCost.
func (d *Directory) WithCost(cost int) *Directory {
	d.cost = cost
	return d
}

// Add registers or replaces an operator's secret.
func (d *Directory) Add(actorID, secret string) error {
	if actorID == "" || secret == "" {
		return fmt.Errorf("actor id and secret are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), d.cost)
	if err != nil {
		return fmt.Errorf("hash secret for %s: %w", actorID, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.hashes[actorID] = hash
	return nil
}

// Seed registers the "admin" operator. An empty secret falls back to
// DefaultAdminSecret with a warning.
func (d *Directory) Seed(adminSecret string) error {
	if adminSecret == "" {
		d.logger.Warn("using default dev credentials, set SEED_ADMIN_PASSWORD to override")
		adminSecret = DefaultAdminSecret
	}
	return d.Add("admin", adminSecret)
}

// Reverify implements sales.Verifier.
func (d *Directory) Reverify(_ context.Context, cred sales.Credential) (string, error) {
	d.mu.RLock()
	hash, ok := d.hashes[cred.ActorID]
	d.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: unknown actor %q", ErrInvalidCredentials, cred.ActorID)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(cred.Secret)); err != nil {
		return "", ErrInvalidCredentials
	}
	return cred.ActorID, nil
}
