package auth

import (
	"chat-gateway/internal/config"
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

// UserContextKey carries the authenticated external user identifier through
// the request context
const UserContextKey contextKey = "user"

// Claims are the JWT claims issued by this service
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handlers provides the identity edge: login, register and the bearer-token
// middleware that yields the stable external user identifier
type Handlers struct {
	db  db.Database
	cfg config.AuthConfig
}

// NewHandlers creates auth handlers
func NewHandlers(database db.Database, cfg config.AuthConfig) *Handlers {
	return &Handlers{db: database, cfg: cfg}
}

// sendError sends a standardized JSON error response
func sendError(w http.ResponseWriter, status int, code, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := ErrorResponse{
		Code:    code,
		Message: message,
	}
	if err != nil {
		errResp.Error = err.Error()
	}
	json.NewEncoder(w).Encode(errResp)
}

// GenerateToken issues a signed token for a username
func (h *Handlers) GenerateToken(username string) (string, error) {
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.cfg.TokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.cfg.JWTSecret)
}

// ValidateToken parses and verifies a token, returning its claims
func (h *Handlers) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return h.cfg.JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// LoginHandler authenticates a user and returns a JWT token
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "bad_request", "Invalid request body", err)
		return
	}

	if req.Username == "" || req.Password == "" {
		sendError(w, http.StatusBadRequest, "bad_request", "Username and password are required", nil)
		return
	}

	user, err := h.db.GetUserByUsername(req.Username)
	if err != nil {
		logger.Log.WithField("username", req.Username).Info("Login failed: user not found")
		sendError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials", nil)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		logger.Log.WithField("username", req.Username).Info("Login failed: invalid password")
		sendError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials", nil)
		return
	}

	token, err := h.GenerateToken(req.Username)
	if err != nil {
		logger.Log.WithError(err).Error("Error generating token")
		sendError(w, http.StatusInternalServerError, "internal_error", "Error generating token", err)
		return
	}

	logger.Log.WithField("username", req.Username).Info("User logged in")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{Token: token})
}

// RegisterHandler creates a new user account
func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "bad_request", "Invalid request body", err)
		return
	}

	if req.Username == "" || req.Password == "" {
		sendError(w, http.StatusBadRequest, "bad_request", "Username and password are required", nil)
		return
	}

	if len(req.Password) < 6 {
		sendError(w, http.StatusBadRequest, "bad_request", "Password must be at least 6 characters", nil)
		return
	}

	user, err := h.db.CreateUser(req.Username, req.Email, req.Password)
	if err != nil {
		logger.Log.WithError(err).WithField("username", req.Username).Info("Registration failed")
		if err.Error() == "username already exists" {
			sendError(w, http.StatusConflict, "conflict", "Username already exists", err)
			return
		}
		sendError(w, http.StatusInternalServerError, "internal_error", "Error creating user", err)
		return
	}

	token, err := h.GenerateToken(user.Username)
	if err != nil {
		logger.Log.WithError(err).Error("Error generating token")
		sendError(w, http.StatusInternalServerError, "internal_error", "Error generating token", err)
		return
	}

	logger.Log.WithField("username", user.Username).Info("User registered")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(RegisterResponse{
		Message: "User registered successfully",
		Token:   token,
	})
}

// Middleware validates the bearer token and puts the external user
// identifier in the request context
func (h *Handlers) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			sendError(w, http.StatusUnauthorized, "unauthorized", "Missing authorization header", nil)
			return
		}

		bearerToken := strings.Split(authHeader, " ")
		if len(bearerToken) != 2 || bearerToken[0] != "Bearer" {
			sendError(w, http.StatusUnauthorized, "unauthorized", "Invalid authorization header format", nil)
			return
		}

		claims, err := h.ValidateToken(bearerToken[1])
		if err != nil {
			sendError(w, http.StatusUnauthorized, "unauthorized", "Invalid token", err)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}
