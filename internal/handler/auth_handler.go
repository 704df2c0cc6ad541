package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"identity-service/internal/repository/redis"
	"identity-service/internal/service"
	"identity-service/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AuthHandler exposes the credential and OTP verification flows over HTTP.
type AuthHandler struct {
	authService *service.AuthService
	limiter     *redis.RateLimitCache // nil disables throttling
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, limiter *redis.RateLimitCache, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		limiter:     limiter,
		logger:      logger,
	}
}

// RegisterRoutes registers all auth routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.throttled("login", h.UnifiedLogin))
		r.Post("/staff/login", h.throttled("staff_login", h.StaffLogin))
		r.Post("/password/reset", h.ResetPassword)
		r.Post("/staff/register", h.RegisterStaff)
		r.Post("/otp/verify", h.throttled("otp_verify", h.VerifyOTP))
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserType               string `json:"userType,omitempty"`
	UserID                 string `json:"userId"`
	Email                  string `json:"email"`
	Name                   string `json:"name"`
	Role                   string `json:"role"`
	RequiresPasswordChange bool   `json:"requiresPasswordChange"`
}

// StaffLogin authenticates staff accounts only
// @Summary Staff login
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} loginResponse
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Router /auth/staff/login [post]
func (h *AuthHandler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, true)
}

// UnifiedLogin authenticates any account and reports a coarse userType
// @Summary Unified login
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} loginResponse
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Router /auth/login [post]
func (h *AuthHandler) UnifiedLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, false)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, staffOnly bool) {
	startTime := time.Now()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	allowedRoles := service.AnyRole
	if staffOnly {
		allowedRoles = service.StaffOnly
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password, allowedRoles)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	resp := loginResponse{
		UserID:                 result.UserID.String(),
		Email:                  result.Email,
		Name:                   result.Name,
		Role:                   result.Role.String(),
		RequiresPasswordChange: result.RequiresPasswordChange,
	}
	if !staffOnly {
		resp.UserType = service.UserTypeForRole(result.Role)
	}

	h.respondJSON(w, http.StatusOK, resp)
	h.logger.Info("Login via HTTP",
		util.String("user_id", resp.UserID),
		util.String("role", resp.Role),
		util.Bool("staff_only", staffOnly),
		util.Duration("duration", time.Since(startTime)))
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword consumes a single-use reset token
// @Summary Reset password with token
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} errorBody
// @Router /auth/password/reset [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Password has been reset successfully",
	})
}

type registerStaffRequest struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Password      string `json:"password"`
	Role          string `json:"role"`
	Phone         string `json:"phone"`
	AdminEmail    string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
}

type registerStaffResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// RegisterStaff provisions a staff account under admin authorization
// @Summary Register staff account
// @Tags auth
// @Accept json
// @Produce json
// @Success 201 {object} registerStaffResponse
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /auth/staff/register [post]
func (h *AuthHandler) RegisterStaff(w http.ResponseWriter, r *http.Request) {
	var req registerStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.authService.RegisterStaff(r.Context(), service.RegisterStaffRequest{
		Email:         req.Email,
		Name:          req.Name,
		Password:      req.Password,
		Role:          req.Role,
		Phone:         req.Phone,
		AdminEmail:    req.AdminEmail,
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, registerStaffResponse{
		ID:    user.ID.String(),
		Email: user.Email,
		Name:  user.DisplayName(),
		Role:  user.Role.String(),
	})
	h.logger.Info("Staff registered via HTTP",
		util.String("user_id", user.ID.String()),
		util.String("role", user.Role.String()))
}

type verifyOTPRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Location  string `json:"location"`
	Password  string `json:"password"`
	EmailOTP  string `json:"emailOTP"`
}

type verifyOTPResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

// VerifyOTP checks a pending one-time code and promotes the registration
// @Summary Verify email OTP
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} verifyOTPResponse
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Failure 404 {object} errorBody
// @Failure 429 {object} errorBody
// @Router /auth/otp/verify [post]
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.authService.VerifyOTP(r.Context(), service.VerifyOTPRequest{
		Email:     req.Email,
		Phone:     req.Phone,
		EmailOTP:  req.EmailOTP,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Location:  req.Location,
		Password:  req.Password,
	})
	if err != nil {
		var otpErr *service.InvalidOTPError
		if errors.As(err, &otpErr) {
			h.respondJSON(w, http.StatusUnauthorized, map[string]any{
				"error":             "Invalid verification code",
				"attemptsRemaining": otpErr.AttemptsRemaining,
			})
			return
		}
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, verifyOTPResponse{
		UserID: result.UserID.String(),
		Email:  result.Email,
		Phone:  result.Phone,
	})
}

// Helper Methods

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// throttled wraps an endpoint with the per-IP fixed-window limiter.
func (h *AuthHandler) throttled(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil {
			ok, err := h.limiter.Allow(r.Context(), name+":"+r.RemoteAddr)
			if err != nil {
				// Throttle cache down: let the request through, the store
				// level caps still hold.
				h.logger.Warn("Rate limiter unavailable", util.ErrorField(err))
			} else if !ok {
				h.respondError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
		}
		next(w, r)
	}
}

func (h *AuthHandler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, errorBody{Error: message})
}

// respondServiceError maps service errors onto the HTTP taxonomy. Store and
// unexpected failures are logged with context and surfaced as a generic 500.
func (h *AuthHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := h.statusForError(err)

	if statusCode == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			util.String("path", r.URL.Path),
			util.ErrorField(err))
		h.respondJSON(w, statusCode, errorBody{
			Error:   "Internal server error",
			Details: "an unexpected error occurred",
		})
		return
	}

	h.logger.Warn("Request rejected",
		util.String("path", r.URL.Path),
		util.Int("status_code", statusCode),
		util.ErrorField(err))
	h.respondError(w, statusCode, err.Error())
}

func (h *AuthHandler) statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrTokenInvalid):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidAdminCredentials),
		errors.Is(err, service.ErrInvalidOTP):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrOTPNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrOTPAttemptsExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
