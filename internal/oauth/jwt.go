package oauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenClaims is the payload of an access token. aud is a single
// string holding the redirect URI the grant was issued for.
type AccessTokenClaims struct {
	ClientID  string           `json:"client_id"`
	Scope     []string         `json:"scope"`
	Subject   string           `json:"sub"`
	Audience  string           `json:"aud"`
	IssuedAt  *jwt.NumericDate `json:"iat"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
}

func (c AccessTokenClaims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c AccessTokenClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c AccessTokenClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c AccessTokenClaims) GetIssuer() (string, error)                   { return "", nil }
func (c AccessTokenClaims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c AccessTokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}

// signAccessToken mints an HS256 access token valid for AccessTokenTTL from
// now.
func signAccessToken(secret []byte, clientID, userID, aud string, scope []string, now time.Time) (string, error) {
	claims := AccessTokenClaims{
		ClientID:  clientID,
		Scope:     scope,
		Subject:   userID,
		Audience:  aud,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// parseAccessToken validates signature and expiry as of now.
func parseAccessToken(secret []byte, tokenString string, now time.Time) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
