package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrEmptyKey = errors.New("jwt signing key is empty")

// AccessClaims carries one "roles" entry per role assigned to the user.
type AccessClaims struct {
	Email string   `json:"email"`
	UID   string   `json:"uid"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) HasAnyRole(roles ...string) bool {
	for _, have := range c.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

type Issuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
}

func NewIssuer(key []byte, issuer, audience string, ttl time.Duration) (*Issuer, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	if ttl <= 0 {
		return nil, errors.New("jwt lifetime must be positive")
	}
	return &Issuer{key: key, issuer: issuer, audience: audience, ttl: ttl}, nil
}

func (i *Issuer) TTL() time.Duration { return i.ttl }

// Sign stamps issuer, audience, iat and exp onto claims and signs them with HS256.
func (i *Issuer) Sign(claims AccessClaims, issuedAt, expiry time.Time) (string, error) {
	claims.Issuer = i.issuer
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}
	claims.IssuedAt = jwt.NewNumericDate(issuedAt)
	claims.ExpiresAt = jwt.NewNumericDate(expiry)

	tokenAccess := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tokenAccess.SignedString(i.key)
}

func (i *Issuer) Parse(tokenStr string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	if i.audience != "" {
		opts = append(opts, jwt.WithAudience(i.audience))
	}
	return parse(tokenStr, i.key, opts...)
}

func parse(tokenStr string, key []byte, opts ...jwt.ParserOption) (*AccessClaims, error) {
	var claims AccessClaims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return &claims, nil
}
