/*
Package identity verifies operator credentials for destructive sale
actions (cancel, purge).

IMPLEMENTATIONS:
  Directory: bcrypt-hashed secrets held in process, seeded from the
             environment. Dev and single-store deployments.
  Remote:    Delegates to an identity service over HTTP
             (POST {base}/reauthenticate). Used when IDENTITY_URL is set.

Both satisfy sales.Verifier. Neither is consulted for create, edit or
installment toggles.

ERRORS:
  ErrInvalidCredentials: Unknown actor or wrong secret
  ErrUnavailable:        The identity service could not give an answer

  The access guard wraps either one into sales.AccessDeniedError, so an
  unreachable identity service never lets an action through.
*/
package identity

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnavailable        = errors.New("identity service unavailable")
)
