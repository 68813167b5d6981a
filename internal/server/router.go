package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/marismas/boda/backend/internal/auth"
	"github.com/marismas/boda/backend/internal/rsvp"
	"github.com/marismas/boda/backend/internal/users"
)

const sessionContextKey = "boda_session_claims"

var (
	errMissingGoogleVerifier = errors.New("google verifier dependency required")
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingIdentities     = errors.New("identity resolver dependency required")
	errMissingRSVPService    = errors.New("rsvp service dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// GoogleVerifier validates Google-issued ID tokens.
type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (auth.GoogleClaims, error)
}

// BackendTokenManager issues and validates backend session tokens.
type BackendTokenManager interface {
	IssueBackendToken(ctx context.Context, guestID string, claims auth.GoogleClaims) (string, int64, error)
	ValidateToken(token string) (auth.SessionClaims, error)
}

// IdentityResolver maps verified provider claims to canonical guest ids.
type IdentityResolver interface {
	ResolveGuestID(provider string, claims auth.GoogleClaims) (string, error)
}

// Dependencies wires the HTTP surface.
type Dependencies struct {
	GoogleVerifier GoogleVerifier
	TokenManager   BackendTokenManager
	Identities     IdentityResolver
	RSVPService    *rsvp.Service
	AdminKey       string
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router hosting the RSVP API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.GoogleVerifier == nil {
		return nil, errMissingGoogleVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Identities == nil {
		return nil, errMissingIdentities
	}
	if deps.RSVPService == nil {
		return nil, errMissingRSVPService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Admin-Key"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier:    deps.GoogleVerifier,
		tokens:      deps.TokenManager,
		identities:  deps.Identities,
		rsvpService: deps.RSVPService,
		adminKey:    deps.AdminKey,
		logger:      logger,
	}

	router.POST("/auth/google", handler.handleGoogleAuth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/rsvp", handler.handleGetRSVP)
	protected.PUT("/rsvp", handler.handleSaveDraft)
	protected.POST("/rsvp/submit", handler.handleSubmit)
	protected.GET("/rsvp/stream", handler.handleRSVPStream)

	admin := router.Group("/admin")
	admin.Use(handler.authorizeAdmin)
	admin.GET("/rsvps", handler.handleListRSVPs)
	admin.GET("/rsvps/stats", handler.handleRSVPStats)
	admin.DELETE("/rsvps/:userID", handler.handleDeleteRSVP)

	return router, nil
}

type httpHandler struct {
	verifier    GoogleVerifier
	tokens      BackendTokenManager
	identities  IdentityResolver
	rsvpService *rsvp.Service
	adminKey    string
	logger      *zap.Logger
}

type authRequestPayload struct {
	IDToken string `json:"id_token"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleGoogleAuth(c *gin.Context) {
	var request authRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("google token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": auth.SignInMessageForError(err),
		})
		return
	}

	guestID, err := h.identities.ResolveGuestID(users.ProviderGoogle, claims)
	if err != nil {
		h.logger.Error("identity resolution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity_resolution_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueBackendToken(c.Request.Context(), guestID, claims)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type saveResponsePayload struct {
	Version       int64     `json:"version"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	IsSubmitted   bool      `json:"isSubmitted"`
}

func (h *httpHandler) handleGetRSVP(c *gin.Context) {
	claims, ok := h.sessionClaims(c)
	if !ok {
		return
	}
	userID, ok := h.guestID(c, claims)
	if !ok {
		return
	}

	submission, err := h.rsvpService.Get(c.Request.Context(), userID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if submission == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, submission)
}

func (h *httpHandler) handleSaveDraft(c *gin.Context) {
	h.handleSave(c, false)
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	h.handleSave(c, true)
}

func (h *httpHandler) handleSave(c *gin.Context, submitted bool) {
	claims, ok := h.sessionClaims(c)
	if !ok {
		return
	}
	userID, ok := h.guestID(c, claims)
	if !ok {
		return
	}

	var responses rsvp.Response
	if err := c.ShouldBindJSON(&responses); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if submitted {
		if fieldErrors := h.rsvpService.Schema().Validate(responses); len(fieldErrors) > 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":  "validation_failed",
				"fields": fieldErrors,
			})
			return
		}
	}

	submission, err := h.rsvpService.Save(
		c.Request.Context(),
		userID,
		claims.UserEmail,
		claims.UserDisplayName,
		responses,
		submitted,
	)
	if err != nil {
		if rsvp.IsIncompleteSubmission(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "incomplete_submission"})
			return
		}
		h.respondServiceError(c, err)
		return
	}

	if submitted {
		c.JSON(http.StatusOK, submission)
		return
	}
	c.JSON(http.StatusOK, saveResponsePayload{
		Version:       submission.Version,
		LastUpdatedAt: submission.LastUpdatedAt,
		IsSubmitted:   submission.IsSubmitted,
	})
}

func (h *httpHandler) handleListRSVPs(c *gin.Context) {
	submissions, err := h.rsvpService.ListAll(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": submissions})
}

func (h *httpHandler) handleRSVPStats(c *gin.Context) {
	stats, err := h.rsvpService.Statistics(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) handleDeleteRSVP(c *gin.Context) {
	userID, err := rsvp.NewUserID(c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}
	if err := h.rsvpService.Delete(c.Request.Context(), userID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		// An expired session is routine, not suspicious.
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionContextKey, claims)
	c.Next()
}

func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	if h.adminKey == "" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin_disabled"})
		return
	}
	provided := c.GetHeader("X-Admin-Key")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.adminKey)) != 1 {
		h.logger.Warn("admin key rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (h *httpHandler) sessionClaims(c *gin.Context) (auth.SessionClaims, bool) {
	value, exists := c.Get(sessionContextKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return auth.SessionClaims{}, false
	}
	return claims, true
}

func (h *httpHandler) guestID(c *gin.Context, claims auth.SessionClaims) (rsvp.UserID, bool) {
	userID, err := rsvp.NewUserID(claims.Subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}

func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	h.logger.Error("rsvp request failed", zap.Error(err))
	var serviceErr *rsvp.ServiceError
	if errors.As(err, &serviceErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   serviceErr.Code(),
			"message": serviceErr.UserMessage(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
