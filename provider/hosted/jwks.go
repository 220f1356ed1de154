package hosted

import (
	"context"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenVerifier checks provider-issued access tokens against the
// provider's published JWKS.
type TokenVerifier struct {
	jwks *keyfunc.JWKS
}

// NewTokenVerifier starts a background-refreshing JWKS fetch for the
// given endpoint. Close releases the refresh goroutine.
func NewTokenVerifier(ctx context.Context, jwksURL string) (*TokenVerifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:             ctx,
		RefreshInterval: time.Hour,
		RefreshErrorHandler: func(err error) {
			// Stale keys are still usable, refresh retries next interval.
		},
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to load signing keys")
	}
	return &TokenVerifier{jwks: jwks}, nil
}

func (v *TokenVerifier) Verify(accessToken string) error {
	token, err := jwt.Parse(accessToken, v.jwks.Keyfunc)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryAuth, "access token verification failed").
			WithCode(goerrors.CodeUnauthorized)
	}
	if !token.Valid {
		return goerrors.New("access token is not valid", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}
	return nil
}

func (v *TokenVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func parseIdentityID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryExternal, "identity backend returned a malformed user id")
	}
	return id, nil
}
