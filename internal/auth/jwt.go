package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in tokens.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// Token types.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"expires_at"`
	RefreshExp   time.Time `json:"-"`
}

// Claims represents JWT payload.
type Claims struct {
	Role string `json:"role"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   string
}

// IsTeacher reports whether the caller holds the teacher role.
func (p Principal) IsTeacher() bool { return p.Role == RoleTeacher }

// CanAccess reports whether the caller may read resources owned by ownerID.
func (p Principal) CanAccess(ownerID string) bool {
	return p.IsTeacher() || (p.UserID != "" && p.UserID == ownerID)
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	Name       string
	Key        []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an issuer for the given signing key.
func NewIssuer(name, key string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{Name: name, Key: []byte(key), AccessTTL: accessTTL, RefreshTTL: refreshTTL, now: time.Now}
}

// Issue issues signed access and refresh tokens.
func (i *Issuer) Issue(userID, role string) (TokenPair, error) {
	now := i.now()
	accessExp := now.Add(i.AccessTTL)
	refreshExp := now.Add(i.RefreshTTL)

	accessToken, err := i.sign(userID, role, TypeAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := i.sign(userID, role, TypeRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (i *Issuer) sign(userID, role, typ string, now, exp time.Time) (string, error) {
	claims := Claims{
		Role: role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.Name,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Key)
}

// Parse validates a token of the wanted type and returns claims.
func (i *Issuer) Parse(tokenStr, wantType string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.Key, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if i.Name != "" && claims.Issuer != i.Name {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Type != wantType {
		return Claims{}, errors.New("wrong token type")
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("missing subject")
	}
	return *claims, nil
}

// Refresh exchanges a refresh token for a new pair.
func (i *Issuer) Refresh(refreshToken string) (TokenPair, error) {
	claims, err := i.Parse(refreshToken, TypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return i.Issue(claims.Subject, claims.Role)
}
