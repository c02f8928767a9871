package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims: sub はユーザーID（10進文字列）
type Claims struct {
	Email string `json:"email"`
	Staff bool   `json:"staff"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

// Tokens は HS256 固定で access / refresh を発行・検証する
type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokens(secret []byte, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (t *Tokens) IssuePair(u *User) (Pair, error) {
	access, err := t.issue(u.ID, u.Email, u.IsStaff, TokenAccess, t.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := t.issue(u.ID, u.Email, u.IsStaff, TokenRefresh, t.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

func (t *Tokens) IssueAccess(c *Claims) (string, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	return t.issue(id, c.Email, c.Staff, TokenAccess, t.accessTTL)
}

func (t *Tokens) issue(userID int64, email string, staff bool, typ string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Email: email,
		Staff: staff,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse は署名・有効期限・種別を検証する
func (t *Tokens) Parse(tokenStr, wantType string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(tok *jwt.Token) (any, error) {
		// alg 固定（none攻撃とか回避）
		if tok.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != wantType {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.Type)
	}
	if _, err := strconv.ParseInt(claims.Subject, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: invalid sub", ErrInvalidToken)
	}
	return &claims, nil
}
