package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/warp/sales-engine/sales"
)

// Remote asks an identity service to re-authenticate an operator.
//
//	POST {base}/reauthenticate  {"actorId": "...", "secret": "..."}
//	2xx      -> verified; body may carry {"actorId": "..."}
//	401, 403 -> ErrInvalidCredentials
//	other    -> ErrUnavailable
type Remote struct {
	client *resty.Client
	logger *zap.Logger
}

type reauthResponse struct {
	ActorID string `json:"actorId"`
}

func NewRemote(baseURL string, timeout time.Duration, logger *zap.Logger) *Remote {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Remote{client: client, logger: logger.Named("identity")}
}

// Reverify implements sales.Verifier.
func (r *Remote) Reverify(ctx context.Context, cred sales.Credential) (string, error) {
	var out reauthResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(cred).
		SetResult(&out).
		Post("/reauthenticate")
	if err != nil {
		r.logger.Warn("identity service call failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch code := resp.StatusCode(); {
	case resp.IsSuccess():
		if out.ActorID != "" {
			return out.ActorID, nil
		}
		return cred.ActorID, nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return "", ErrInvalidCredentials
	default:
		r.logger.Warn("identity service returned unexpected status",
			zap.Int("status", code),
			zap.Duration("latency", resp.Time()),
		)
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, code)
	}
}
