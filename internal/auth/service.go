package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/redis/go-redis/v9"

	"github.com/customsway/backend-cargo/internal/common"
	"github.com/customsway/backend-cargo/internal/user"
)

const defaultSessionTTL = 7 * 24 * time.Hour

const sessionKeyPrefix = "session:"

// UserDirectory is the slice of the user store the auth service needs.
type UserDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
}

// Service verifies credentials and manages the session cookie lifecycle.
// The cookie carries a signed token; the session record in Redis is the
// revocation authority, so logout and lockout take effect immediately.
type Service struct {
	users      UserDirectory
	redis      redis.UniversalClient
	secret     []byte
	sessionTTL time.Duration
	now        func() time.Time
	signer     jwa.SignatureAlgorithm
	validator  TokenValidator
	issuer     string
	audience   string
}

// Config configures the auth service.
type Config struct {
	Users      UserDirectory
	Redis      redis.UniversalClient
	Secret     string
	SessionTTL time.Duration
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

// Session identifies an authenticated user attached to a request.
type Session struct {
	UserID   uuid.UUID
	Username string
	Role     string
}

// LoginResult bundles the user view and token material after a login.
type LoginResult struct {
	User      SafeUser
	Token     string
	ExpiresAt time.Time
}

// SafeUser is the subset of the account returned to clients.
type SafeUser struct {
	ID                 uuid.UUID `json:"id"`
	Username           string    `json:"username"`
	Role               string    `json:"role"`
	MustChangePassword bool      `json:"must_change_password"`
}

// NewService constructs a Service with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if cfg.Redis == nil {
		return nil, errors.New("auth: redis client is required")
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "backend-cargo"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "cargo-frontend"
	}
	clockSkew := cfg.ClockSkew
	if clockSkew < 0 {
		clockSkew = 0
	}

	return &Service{
		users:      cfg.Users,
		redis:      cfg.Redis,
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		now:        time.Now,
		signer:     jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: clockSkew,
			Algorithm: jwa.HS256,
		},
		issuer:   issuer,
		audience: audience,
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SessionTTL reports the configured session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, common.NewAppError("BAD_REQUEST", "Usuario y contraseña requeridos", http.StatusBadRequest, nil)
	}

	account, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return LoginResult{}, invalidCredentials(err)
	}
	if account.IsLocked {
		return LoginResult{}, common.NewAppError("USER_LOCKED", "Usuario bloqueado", http.StatusForbidden, nil)
	}
	ok, err := argon2id.ComparePasswordAndHash(password, account.PasswordHash)
	if err != nil || !ok {
		return LoginResult{}, invalidCredentials(err)
	}

	token, expiresAt, err := s.openSession(ctx, account)
	if err != nil {
		return LoginResult{}, fmt.Errorf("open session: %w", err)
	}
	return LoginResult{User: safeUser(account), Token: token, ExpiresAt: expiresAt}, nil
}

// Logout revokes the session carried by the given token. Unknown or expired
// tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil
	}
	parsed, err := s.parseToken(trimmed)
	if err != nil {
		return nil
	}
	if jti := parsed.JwtID(); jti != "" {
		return s.redis.Del(ctx, sessionKeyPrefix+jti).Err()
	}
	return nil
}

// Me fetches the current authenticated user. A valid session whose account
// has since been deleted yields 404, not 401.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (SafeUser, error) {
	account, err := s.users.Get(ctx, userID)
	if errors.Is(err, user.ErrNotFound) {
		return SafeUser{}, common.NewAppError("NOT_FOUND", "Usuario no encontrado", http.StatusNotFound, err)
	}
	if err != nil {
		return SafeUser{}, common.NewAppError("UNAUTHORIZED", "unauthorized", http.StatusUnauthorized, err)
	}
	return safeUser(account), nil
}

// Authenticate validates a session token and confirms the session is still
// live in Redis and the account is still usable.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	parsed, err := s.parseToken(strings.TrimSpace(token))
	if err != nil {
		return Session{}, err
	}
	jti := parsed.JwtID()
	if jti == "" {
		return Session{}, unauthorized(errors.New("auth: token missing id"))
	}
	stored, err := s.redis.Get(ctx, sessionKeyPrefix+jti).Result()
	if err != nil {
		return Session{}, unauthorized(errors.New("auth: session revoked or expired"))
	}
	if stored != parsed.Subject() {
		return Session{}, unauthorized(errors.New("auth: session subject mismatch"))
	}

	userID, err := uuid.Parse(parsed.Subject())
	if err != nil {
		return Session{}, unauthorized(err)
	}
	account, err := s.users.Get(ctx, userID)
	if err != nil {
		return Session{}, unauthorized(err)
	}
	if account.IsLocked {
		_ = s.redis.Del(ctx, sessionKeyPrefix+jti).Err()
		return Session{}, common.NewAppError("USER_LOCKED", "Usuario bloqueado", http.StatusForbidden, nil)
	}
	return Session{UserID: account.ID, Username: account.Username, Role: account.Role}, nil
}

func (s *Service) openSession(ctx context.Context, account user.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.sessionTTL)
	jti := uuid.NewString()

	token, err := jwt.NewBuilder().
		JwtID(jti).
		Subject(account.ID.String()).
		Issuer(s.issuer).
		Audience([]string{s.audience}).
		IssuedAt(now).
		Expiration(expiresAt).
		Claim("role", account.Role).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.redis.Set(ctx, sessionKeyPrefix+jti, account.ID.String(), s.sessionTTL).Err(); err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func (s *Service) parseToken(token string) (jwt.Token, error) {
	if token == "" {
		return nil, common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(token)
	if err != nil {
		return nil, unauthorized(err)
	}
	if s.validator.Algorithm != "" && algorithm != s.validator.Algorithm {
		return nil, unauthorized(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(token, jwt.WithKey(algorithm, s.secret))
	if err != nil {
		return nil, unauthorized(err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return nil, unauthorized(err)
	}
	return parsed, nil
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", errors.New("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}

func safeUser(account user.User) SafeUser {
	return SafeUser{
		ID:                 account.ID,
		Username:           account.Username,
		Role:               account.Role,
		MustChangePassword: account.MustChangePassword,
	}
}

func invalidCredentials(err error) error {
	return common.NewAppError("INVALID_CREDENTIALS", "Credenciales inválidas", http.StatusUnauthorized, err)
}

func unauthorized(err error) error {
	return common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
}
