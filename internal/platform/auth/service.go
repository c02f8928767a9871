package auth

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"LIBRA-backend/internal/platform/apperr"
	"LIBRA-backend/internal/platform/db"
)

var (
	ErrAlreadyExists      = apperr.Conflict("user with this email already exists")
	ErrInvalidCredentials = apperr.Unauthenticated("no active account found with the given credentials")
)

type Service struct {
	store  UserStore
	tokens *Tokens
}

func NewService(conn *db.Conn, tokens *Tokens) *Service {
	return &Service{store: NewStore(conn), tokens: tokens}
}

type AuthService interface {
	Register(ctx context.Context, in RegisterRequest, staff bool) (*User, error)
	ObtainTokens(ctx context.Context, email, password string) (Pair, error)
	Refresh(ctx context.Context, refresh string) (string, error)
	Me(ctx context.Context, p Principal) (*User, error)
	UpdateMe(ctx context.Context, p Principal, in UpdateMeRequest) (*User, error)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *Service) Register(ctx context.Context, in RegisterRequest, staff bool) (*User, error) {
	// CLI からも呼ばれるので handler と同じタグで検証し直す
	in.Email = normalizeEmail(in.Email)
	if err := apperr.Validate(in); err != nil {
		return nil, err
	}
	email := in.Email

	// 同時登録で両方ここを通っても Store.Create の UNIQUE 違反で 409 になる
	exists, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists != nil {
		return nil, ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		IsStaff:      staff,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	log.Printf("[INFO] user registered: id=%d staff=%t", u.ID, u.IsStaff)
	return u, nil
}

func (s *Service) ObtainTokens(ctx context.Context, email, password string) (Pair, error) {
	u, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return Pair{}, err
	}
	if u == nil {
		return Pair{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Pair{}, ErrInvalidCredentials
	}
	return s.tokens.IssuePair(u)
}

// Refresh は refresh トークンから新しい access トークンを発行する。
// ユーザーが削除されていれば拒否し、staff フラグは DB の最新値を使う。
func (s *Service) Refresh(ctx context.Context, refresh string) (string, error) {
	claims, err := s.tokens.Parse(refresh, TokenRefresh)
	if err != nil {
		return "", apperr.Unauthenticated("token is invalid or expired")
	}
	id, _ := strconv.ParseInt(claims.Subject, 10, 64)
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", apperr.Unauthenticated("user not found")
	}
	claims.Email, claims.Staff = u.Email, u.IsStaff
	return s.tokens.IssueAccess(claims)
}

func (s *Service) Me(ctx context.Context, p Principal) (*User, error) {
	u, err := s.store.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

func (s *Service) UpdateMe(ctx context.Context, p Principal, in UpdateMeRequest) (*User, error) {
	u, err := s.Me(ctx, p)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if err := s.store.UpdateName(ctx, u.ID, u.FirstName, u.LastName); err != nil {
		return nil, err
	}
	return u, nil
}
