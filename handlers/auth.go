package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kevinaaaquil/grimoire/middleware"
	"github.com/kevinaaaquil/grimoire/models"
	"github.com/kevinaaaquil/grimoire/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the slice of user persistence the auth endpoints need.
type UserStore interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (primitive.ObjectID, error)
}

type AuthHandler struct {
	Users     UserStore
	JWTSecret string
	TokenTTL  time.Duration
	Logger    *zap.Logger
}

type LoginResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

func (h *AuthHandler) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsPayload, bool) {
	var req credentialsPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return req, false
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return req, false
	}
	return req, true
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Logger.Error("hash password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	id, err := h.Users.CreateUser(r.Context(), &models.User{
		Email:     req.Email,
		Password:  string(hash),
		CreatedAt: time.Now(),
	})
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, http.StatusConflict, "email already in use")
		return
	}
	if err != nil {
		h.Logger.Error("create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "user created", ID: id.Hex()})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}
	user, err := h.Users.UserByEmail(r.Context(), req.Email)
	if err != nil {
		h.Logger.Error("find user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	token, err := h.createToken(user.ID.Hex())
	if err != nil {
		h.Logger.Error("sign token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create token")
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{UserID: user.ID.Hex(), Token: token})
}

func (h *AuthHandler) createToken(userID string) (string, error) {
	now := time.Now()
	claims := &middleware.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(h.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.JWTSecret))
}
