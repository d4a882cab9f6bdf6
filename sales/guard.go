package sales

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// =============================================================================
// ACCESS GUARD - Credential reverification before money-touching actions
// =============================================================================

// Credential is what the operator re-enters to confirm a destructive action.
type Credential struct {
	ActorID string `json:"actorId"`
	Secret  string `json:"secret"`
}

// Verifier is the external identity collaborator. Reverify must be
// synchronous and return the verified actor id.
type Verifier interface {
	Reverify(ctx context.Context, cred Credential) (string, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, cred Credential) (string, error)

func (f VerifierFunc) Reverify(ctx context.Context, cred Credential) (string, error) {
	return f(ctx, cred)
}

var errNoVerifier = errors.New("no identity verifier configured")

// Guard gates Cancel and Purge. It runs before the transaction opens, so a
// denied credential never starts one.
type Guard struct {
	verifier Verifier
	logger   *zap.Logger
}

func NewGuard(verifier Verifier, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{verifier: verifier, logger: logger.Named("guard")}
}

// Require returns the verified actor id, or an AccessDeniedError for any
// verifier failure.
func (g *Guard) Require(ctx context.Context, cred Credential) (string, error) {
	if g.verifier == nil {
		return "", &AccessDeniedError{ActorID: cred.ActorID, Cause: errNoVerifier}
	}

	actorID, err := g.verifier.Reverify(ctx, cred)
	if err != nil {
		g.logger.Info("credential rejected", zap.String("actor_id", cred.ActorID), zap.Error(err))
		return "", &AccessDeniedError{ActorID: cred.ActorID, Cause: err}
	}
	if actorID == "" {
		actorID = cred.ActorID
	}
	return actorID, nil
}
