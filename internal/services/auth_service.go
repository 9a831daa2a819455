package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/replywave/backend/internal/config"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

// AuthService handles customer registration, login, account recovery
// and admin authentication for the dashboard APIs.
type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	limiter   *RateLimitService
	rlCfg     *config.RateLimitConfig
	validator *validator.Validate
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email        string `json:"email" validate:"required,email" example:"owner@plumbingco.com"`
	Password     string `json:"password" validate:"required,min=8" example:"password123"`
	BusinessName string `json:"businessName" validate:"required,min=2" example:"Acme Plumbing"`
	PhoneNumber  string `json:"phoneNumber" validate:"required" example:"+15551234567"` // Provisioned business number
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"owner@plumbingco.com"`
	Password string `json:"password" validate:"required,min=8" example:"password123"`
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token    string  `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	Customer Account `json:"customer"`
}

// Account is the customer view returned by the auth endpoints.
type Account struct {
	ID           int    `json:"id" example:"1"`
	Email        string `json:"email" example:"owner@plumbingco.com"`
	BusinessName string `json:"businessName" example:"Acme Plumbing"`
	PhoneNumber  string `json:"phoneNumber" example:"+15551234567"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, limiter *RateLimitService, rlCfg *config.RateLimitConfig) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		limiter:   limiter,
		rlCfg:     rlCfg,
		validator: validator.New(),
	}
}

// Register handles customer registration
// @Summary Register a new customer
// @Description Create a customer account with an empty prepaid wallet
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Email already exists"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	var customerID int
	err = tx.QueryRow(`
		INSERT INTO customers (email, password, business_name, phone_number, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id`,
		strings.ToLower(req.Email), hashedPassword, req.BusinessName, req.PhoneNumber).Scan(&customerID)
	if err != nil {
		log.Printf("[AUTH] Customer creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Email Already Exists", http.StatusConflict, nil)
		return
	}

	// Every customer gets a wallet at signup; the pipeline assumes one
	// exists for any customer that owns a number.
	if err := CreateWalletTx(tx, customerID, "USD"); err != nil {
		log.Printf("[AUTH] Wallet creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	token, err := generateJWT(customerID, "customer")
	if err != nil {
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Registration successful for customer %d", customerID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Token: token,
		Customer: Account{
			ID:           customerID,
			Email:        strings.ToLower(req.Email),
			BusinessName: req.BusinessName,
			PhoneNumber:  req.PhoneNumber,
		},
	})
}

// Login handles customer authentication
// @Summary Login
// @Description Authenticate with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 429 {object} ErrorResponse "Too many attempts"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	email := strings.ToLower(req.Email)
	limit := s.limiter.CheckBoth(r.Context(), ScopeEmail, email, ScopeIP, clientIP(r),
		s.rlCfg.Limit, s.rlCfg.Window)
	if !limit.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(limit.RetryAfter.Seconds())))
		SendErrorResponse(w, "Too many attempts, try again later", http.StatusTooManyRequests, nil)
		return
	}

	var account Account
	var hashedPassword string
	err := s.db.QueryRow(`
		SELECT id, email, business_name, phone_number, password
		FROM customers WHERE email = $1`, email).
		Scan(&account.ID, &account.Email, &account.BusinessName, &account.PhoneNumber, &hashedPassword)
	if err != nil {
		log.Printf("[AUTH] Login failed, unknown email from %s", r.RemoteAddr)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for customer %d", account.ID)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(account.ID, "customer")
	if err != nil {
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for customer %d", account.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Customer: account})
}

// Recover starts a password reset
// @Summary Request password recovery
// @Description Start a password reset; the response is identical whether or not the email exists
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool "Always success"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Router /auth/recover [post]
func (s *AuthService) Recover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// A throttled request returns the same 200 body as a served one.
	// Anything else hands an enumeration oracle to whoever is probing
	// which emails have accounts.
	email := strings.ToLower(req.Email)
	limit := s.limiter.CheckBoth(r.Context(), ScopeEmail, email, ScopeIP, clientIP(r),
		s.rlCfg.Limit, s.rlCfg.Window)
	if limit.Allowed {
		s.issueRecoveryToken(r.Context(), email)
	} else {
		log.Printf("[RATELIMIT] Recovery request suppressed for %s from %s", email, r.RemoteAddr)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

func (s *AuthService) issueRecoveryToken(ctx context.Context, email string) {
	var customerID int
	err := s.db.QueryRowContext(ctx, `SELECT id FROM customers WHERE email = $1`, email).Scan(&customerID)
	if err != nil {
		// Unknown address; the caller already saw success.
		return
	}

	tokenBytes := make([]byte, 32)
	if _, err := cryptorand.Read(tokenBytes); err != nil {
		log.Printf("[AUTH] Failed to generate recovery token: %v", err)
		return
	}
	token := hex.EncodeToString(tokenBytes)

	if s.redis != nil {
		key := fmt.Sprintf("recovery:%s", token)
		if err := s.redis.Set(ctx, key, customerID, 30*time.Minute).Err(); err != nil {
			log.Printf("[AUTH] Failed to store recovery token for customer %d: %v", customerID, err)
			return
		}
	}

	// Delivery is handled by the notification worker reading the token store.
	log.Printf("[AUTH] Recovery token issued for customer %d", customerID)
}

// AdminLogin authenticates the operations principal
// @Summary Admin login
// @Description Authenticate the admin principal; throttled with an explicit retry hint
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "JWT token"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 429 {object} ErrorResponse "Too many attempts"
// @Router /admin/login [post]
func (s *AuthService) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// The admin knows their own identity, so the throttle is surfaced
	// explicitly instead of masked.
	limit := s.limiter.Check(r.Context(), ScopeAdmin, clientIP(r), s.rlCfg.Limit, s.rlCfg.Window)
	if !limit.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(limit.RetryAfter.Seconds())))
		SendErrorResponse(w, "Too many attempts, try again later", http.StatusTooManyRequests, nil)
		return
	}

	expected := viper.GetString("admin.password")
	if expected == "" || req.Password != expected {
		log.Printf("[AUTH] Admin login failed from %s", r.RemoteAddr)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(0, "admin")
	if err != nil {
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Admin login successful from %s", r.RemoteAddr)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func generateJWT(customerID int, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": customerID,
		"role":    role,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})
	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))

	return fmt.Sprintf("%s$%s",
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))

	return string(hash) == string(computedHash)
}
