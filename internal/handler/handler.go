package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"accounts_service/internal/autherr"
	"accounts_service/internal/validation"

	"github.com/gin-gonic/gin"
)

// Each token kind travels on exactly one channel: confirmation tokens as the
// `token` query parameter, the access token in its own cookie, the refresh
// token in another. A token presented through the wrong channel never
// reaches the matching verifier and fails as Unauthorized.
const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
	tokenQueryParam   = "token"

	emailContextKey = "Email"
)

type Handler struct {
	serviceLayer Service
	log          *slog.Logger
	accessTTL    time.Duration
	refreshTTL   time.Duration
	metricsH     http.Handler
}

type response struct {
	Payload any    `json:"payload"`
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func newErrorResponse(c *gin.Context, statusCode int, errMessage string) {
	c.AbortWithStatusJSON(statusCode, errorResponse{Message: errMessage})
}

func NewHandler(srvc Service, lgr *slog.Logger, accessTTL, refreshTTL time.Duration, metricsH http.Handler) *Handler {
	return &Handler{
		serviceLayer: srvc,
		log:          lgr,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
		metricsH:     metricsH,
	}
}

func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	auth := router.Group("/auth")
	{
		auth.POST("/signup", h.Signup)
		auth.GET("/confirm-email", h.ConfirmEmail)
		auth.POST("/login", h.Login)
		auth.POST("/reset-password", h.ResetPassword)
		auth.POST("/update-password", h.ParamGuard(), h.UpdatePassword)

		auth.GET("/refresh", h.RefreshGuard(), h.RefreshTokens)

		protected := auth.Group("")
		protected.Use(h.AccessGuard())
		protected.GET("/logout", h.Logout)
		protected.GET("/profile", h.GetProfile)
		protected.DELETE("/user", h.DeleteUser)
	}

	if h.metricsH != nil {
		router.GET("/metrics", gin.WrapH(h.metricsH))
	}

	return router
}

// AccessGuard authenticates the access-cookie channel and stores the
// resolved email in the request context.
func (h *Handler) AccessGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(accessCookieName)
		if err != nil || token == "" {
			newErrorResponse(c, http.StatusUnauthorized, "Unauthorized")
			return
		}

		identity, err := h.serviceLayer.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.abortWithError(c, err)
			return
		}

		c.Set(emailContextKey, identity.Email)
		c.Next()
	}
}

// RefreshGuard authenticates the refresh-cookie channel.
func (h *Handler) RefreshGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(refreshCookieName)
		if err != nil || token == "" {
			newErrorResponse(c, http.StatusUnauthorized, "Unauthorized")
			return
		}

		identity, err := h.serviceLayer.AuthenticateRefresh(c.Request.Context(), token)
		if err != nil {
			h.abortWithError(c, err)
			return
		}

		c.Set(emailContextKey, identity.Email)
		c.Next()
	}
}

// ParamGuard verifies a confirmation token from the query-parameter channel.
func (h *Handler) ParamGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query(tokenQueryParam)
		if token == "" {
			newErrorResponse(c, http.StatusUnauthorized, "Unauthorized")
			return
		}

		email, err := h.serviceLayer.VerifyConfirmation(c.Request.Context(), token)
		if err != nil {
			h.abortWithError(c, err)
			return
		}

		c.Set(emailContextKey, email)
		c.Next()
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /auth/signup
func (h *Handler) Signup(c *gin.Context) {
	const op = "handler.Signup"

	log := h.log.With(slog.String("op", op))

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	creds, issues := validation.ParseCredentials(req.Email, req.Password)
	if len(issues) > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": issues[0].Message, "issues": issues})
		return
	}

	message, err := h.serviceLayer.Signup(c.Request.Context(), creds.Email, creds.Password)
	if err != nil {
		log.Error("signup failed", slog.String("email", creds.Email), slog.Any("error", err))
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response{Message: message})
}

// GET /auth/confirm-email?token=...
func (h *Handler) ConfirmEmail(c *gin.Context) {
	const op = "handler.ConfirmEmail"

	log := h.log.With(slog.String("op", op))

	token := c.Query(tokenQueryParam)
	if token == "" {
		newErrorResponse(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	message, err := h.serviceLayer.ConfirmEmail(c.Request.Context(), token)
	if err != nil {
		log.Error("email confirmation failed", slog.Any("error", err))
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, response{Message: message})
}

// POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	const op = "handler.Login"

	log := h.log.With(slog.String("op", op))

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if issue := validation.ValidateEmail(req.Email); issue != nil {
		newErrorResponse(c, http.StatusBadRequest, issue.Message)
		return
	}

	pair, err := h.serviceLayer.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		log.Error("login failed", slog.String("email", req.Email), slog.Any("error", err))
		h.abortWithError(c, err)
		return
	}

	h.setAuthCookies(c, pair.AccessToken, pair.RefreshToken)

	c.JSON(http.StatusOK, response{
		Payload: gin.H{"email": req.Email},
		Message: "Login successfully",
	})
}

// GET /auth/logout
func (h *Handler) Logout(c *gin.Context) {
	const op = "handler.Logout"

	log := h.log.With(slog.String("op", op))

	email := c.GetString(emailContextKey)

	if err := h.serviceLayer.Logout(c.Request.Context(), email); err != nil {
		log.Error("logout failed", slog.String("email", email), slog.Any("error", err))
		h.abortWithError(c, err)
		return
	}

	h.clearAuthCookies(c)

	c.JSON(http.StatusOK, response{Message: "Logout successfully"})
}

// GET /auth/refresh
func (h *Handler) RefreshTokens(c *gin.Context) {
	const op = "handler.RefreshTokens"

	log := h.log.With(slog.String("op", op))

	email := c.GetString(emailContextKey)

	pair, err := h.serviceLayer.RefreshTokens(c.Request.Context(), email)
	if err != nil {
		log.Error("token refresh failed", slog.String("email", email), slog.Any("error", err))
		h.abortWithError(c, err)
		return
	}

	h.setAuthCookies(c, pair.AccessToken, pair.RefreshToken)

	c.JSON(http.StatusOK, response{Message: "Tokens successfully updated"})
}

type emailRequest struct {
	Email string `json:"email"`
}

// POST /auth/reset-password
func (h *Handler) ResetPassword(c *gin.Context) {
	const op = "handler.ResetPassword"

	log := h.log.With(slog.String("op", op))

	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if issue := validation.ValidateEmail(req.Email); issue != nil {
		newErrorResponse(c, http.StatusBadRequest, issue.Message)
		return
	}

	message, err := h.serviceLayer.ResetPassword(c.Request.Context(), req.Email)
	if err != nil {
		log.Error("password reset failed", slog.String("email", req.Email), slog.Any("error", err))
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, response{Message: message})
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

// POST /auth/update-password?token=...
func (h *Handler) UpdatePassword(c *gin.Context) {
	const op = "handler.UpdatePassword"

	log := h.log.With(slog.String("op", op))

	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		newErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if issue := validation.ValidatePassword(req.Password); issue != nil {
		newErrorResponse(c, http.StatusBadRequest, issue.Message)
		return
	}

	email := c.GetString(emailContextKey)

	message, err := h.serviceLayer.UpdatePassword(c.Request.Context(), email, req.Password)
	if err != nil {
		log.Error("password update failed", slog.String("email", email), slog.Any("error", err))
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, response{Message: message})
}

// DELETE /auth/user
func (h *Handler) DeleteUser(c *gin.Context) {
	const op = "handler.DeleteUser"

	log := h.log.With(slog.String("op", op))

	email := c.GetString(emailContextKey)

	message, err := h.serviceLayer.DeleteUser(c.Request.Context(), email)
	if err != nil {
		log.Error("user deletion failed", slog.String("email", email), slog.Any("error", err))
		h.abortWithError(c, err)
		return
	}

	h.clearAuthCookies(c)

	c.JSON(http.StatusOK, response{Message: message})
}

// GET /auth/profile
func (h *Handler) GetProfile(c *gin.Context) {
	const op = "handler.GetProfile"

	log := h.log.With(slog.String("op", op))

	email := c.GetString(emailContextKey)

	identity, err := h.serviceLayer.Profile(c.Request.Context(), email)
	if err != nil {
		log.Error("failed to get profile", slog.String("email", email), slog.Any("error", err))
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, response{Payload: identity})
}

func (h *Handler) setAuthCookies(c *gin.Context, accessToken, refreshToken string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessCookieName, accessToken, int(h.accessTTL.Seconds()), "/", "", false, true)
	c.SetCookie(refreshCookieName, refreshToken, int(h.refreshTTL.Seconds()), "/", "", false, true)
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessCookieName, "", -1, "/", "", false, true)
	c.SetCookie(refreshCookieName, "", -1, "/", "", false, true)
}

func (h *Handler) abortWithError(c *gin.Context, err error) {
	var authErr *autherr.Error
	if !errors.As(err, &authErr) {
		newErrorResponse(c, http.StatusInternalServerError, "internal error")
		return
	}

	newErrorResponse(c, statusForKind(authErr.Kind), authErr.Message)
}

func statusForKind(kind autherr.Kind) int {
	switch kind {
	case autherr.KindNotFound:
		return http.StatusNotFound
	case autherr.KindDuplicateEmail:
		return http.StatusConflict
	case autherr.KindUnauthorized:
		return http.StatusUnauthorized
	case autherr.KindForbidden:
		return http.StatusForbidden
	case autherr.KindInvalidCredentials:
		// Matches the vague login failure contract: same status for
		// unknown email and wrong password.
		return http.StatusNotFound
	case autherr.KindNotificationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
