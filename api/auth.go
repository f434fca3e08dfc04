package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/estate/internal/apperr"
	"github.com/garnizeh/estate/internal/validation"
	"github.com/garnizeh/estate/pkg/models"
	"github.com/garnizeh/estate/pkg/repository"
)

type AuthHandler struct {
	users         repository.UserRepo
	validate      *validation.Validator
	jwtSecret     string
	tokenDuration time.Duration
	now           func() time.Time
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(users repository.UserRepo, v *validation.Validator, jwtSecret string, tokenDuration time.Duration) *AuthHandler {
	if v == nil {
		v = validation.New()
	}
	return &AuthHandler{users: users, validate: v, jwtSecret: jwtSecret, tokenDuration: tokenDuration, now: time.Now}
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var in models.SignupInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := h.validate.Struct(&in); err != nil {
		respondError(w, r, err)
		return
	}

	ctx := r.Context()
	existing, err := h.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		respondError(w, r, apperr.Internal("lookup user", err))
		return
	}
	if existing != nil {
		respondError(w, r, apperr.Conflict("an account with this email already exists"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, r, apperr.Internal("hash password", err))
		return
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Role:         in.Role,
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: string(hash),
	}
	if err := h.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			respondError(w, r, apperr.Conflict("an account with this email or phone already exists"))
			return
		}
		respondError(w, r, apperr.Internal("create user", err))
		return
	}
	logger.Info("user signed up", slog.String("user_id", u.ID), slog.String("role", string(u.Role)))

	h.issue(w, r, http.StatusCreated, u)
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var in models.SigninInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	in.Email = normalizeEmail(in.Email)
	if err := h.validate.Struct(&in); err != nil {
		respondError(w, r, err)
		return
	}

	u, err := h.users.GetUserByEmail(r.Context(), in.Email)
	if err != nil {
		respondError(w, r, apperr.Internal("lookup user", err))
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		respondError(w, r, apperr.Unauthenticated("invalid email or password"))
		return
	}

	h.issue(w, r, http.StatusOK, u)
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller := CallerFrom(r.Context())
	if caller == nil {
		respondError(w, r, apperr.Unauthenticated("authentication required"))
		return
	}
	u, err := h.users.GetUser(r.Context(), caller.ID)
	if err != nil {
		respondError(w, r, apperr.Internal("load user", err))
		return
	}
	if u == nil {
		respondError(w, r, apperr.Unauthenticated("user no longer exists"))
		return
	}
	respond(w, http.StatusOK, u)
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, status int, u *models.User) {
	now := h.now()
	tokenStr, err := IssueToken(h.jwtSecret, u.ID, h.tokenDuration, now)
	if err != nil {
		respondError(w, r, apperr.Internal("sign token", err))
		return
	}
	respond(w, status, authResponse{Token: tokenStr, ExpiresAt: now.Add(h.tokenDuration).UTC(), User: u})
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
