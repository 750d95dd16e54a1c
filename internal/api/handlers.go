package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sitescan/internal/auth"
	"sitescan/internal/metrics"
	"sitescan/internal/models"
	"sitescan/internal/scan"
	"sitescan/internal/service/account"
	"sitescan/internal/storage"
	"sitescan/internal/uploads"
)

// Scanner runs the scan pipeline on a stored image.
type Scanner interface {
	Run(ctx context.Context, img *models.ImageAsset) (*scan.Result, error)
}

// ScanFinder loads persisted records of a scan.
type ScanFinder interface {
	FindByScanID(ctx context.Context, scanID string) (*storage.ScanRecords, error)
}

// Handler wires HTTP routes to the scan pipeline and account services.
type Handler struct {
	scanner   Scanner
	scans     ScanFinder
	uploads   *uploads.Store
	accounts  *account.Service
	auth      *auth.Service
	bodyLimit int64
	proxies   []string
	trusted   []*net.IPNet
	log       *zap.Logger
}

// Deps are the services a Handler routes to.
type Deps struct {
	Scanner  Scanner
	Scans    ScanFinder
	Uploads  *uploads.Store
	Accounts *account.Service
	Auth     *auth.Service
	// BodyLimit caps request bodies in bytes. Zero means 50 MiB.
	BodyLimit int64
	// TrustedProxies lists IPs or CIDRs whose X-Forwarded-* headers are
	// honoured. Empty trusts no proxy.
	TrustedProxies []string
	Log            *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	limit := d.BodyLimit
	if limit <= 0 {
		limit = 50 << 20
	}
	trusted := make([]*net.IPNet, 0, len(d.TrustedProxies))
	proxies := make([]string, 0, len(d.TrustedProxies))
	for _, p := range d.TrustedProxies {
		ipnet, err := parseProxy(p)
		if err != nil {
			log.Warn("ignoring invalid trusted proxy", zap.String("proxy", p), zap.Error(err))
			continue
		}
		trusted = append(trusted, ipnet)
		proxies = append(proxies, ipnet.String())
	}
	return &Handler{
		scanner:   d.Scanner,
		scans:     d.Scans,
		uploads:   d.Uploads,
		accounts:  d.Accounts,
		auth:      d.Auth,
		bodyLimit: limit,
		proxies:   proxies,
		trusted:   trusted,
		log:       log,
	}
}

func parseProxy(p string) (*net.IPNet, error) {
	p = strings.TrimSpace(p)
	if strings.Contains(p, "/") {
		_, ipnet, err := net.ParseCIDR(p)
		return ipnet, err
	}
	ip := net.ParseIP(p)
	if ip == nil {
		return nil, &net.ParseError{Type: "IP address", Text: p}
	}
	bits := 128
	if v4 := ip.To4(); v4 != nil {
		ip, bits = v4, 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

// NewRouter builds the gin engine with middleware and every route attached.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	if err := router.SetTrustedProxies(h.proxies); err != nil {
		h.log.Warn("trusted proxies rejected, trusting none", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(gin.Recovery(), metrics.Middleware(), h.requestLogger(), securityHeaders(), h.limitBody())
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health-check", h.healthCheck)
	api.POST("/scan", h.scanImage)
	api.GET("/scans/:scanId", h.getScan)

	authRoutes := api.Group("/auth")
	authRoutes.POST("/signup", h.signup)
	authRoutes.POST("/login", h.login)
	protected := authRoutes.Group("", h.auth.Middleware())
	protected.POST("/logout", h.logout)
	protected.GET("/me", h.me)

	router.Static("/uploads", h.uploads.Dir())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		h.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
		)
	}
}

// securityHeaders stops browsers from sniffing content types and keeps
// uploaded files from running script on this origin.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		if strings.HasPrefix(c.Request.URL.Path, "/uploads/") {
			c.Header("Content-Security-Policy", "default-src 'none'; sandbox")
		}
		c.Next()
	}
}

func (h *Handler) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.bodyLimit)
		}
		c.Next()
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "All Ok", "status": http.StatusOK})
}

type scanRequest struct {
	Image string `json:"image"`
}

func (h *Handler) scanImage(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": scan.MsgNoImage})
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": scan.MsgNoImage})
		return
	}

	decoded, err := uploads.ParseDataURI(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": scan.MsgInvalidImage})
		return
	}
	asset, err := h.uploads.Save(decoded, h.requestBase(c))
	if err != nil {
		h.log.Error("save upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": scan.MsgSaveImage})
		return
	}

	res, err := h.scanner.Run(c.Request.Context(), asset)
	if err != nil {
		var se *scan.Error
		if !errors.As(err, &se) {
			h.log.Error("scan failed", zap.String("image_url", asset.URL), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
			return
		}
		status := http.StatusInternalServerError
		if se.Kind == scan.KindBadRequest {
			status = http.StatusBadRequest
		}
		h.log.Warn("scan failed",
			zap.String("kind", se.Kind.String()),
			zap.String("image_url", asset.URL),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": se.Message})
		return
	}
	c.JSON(http.StatusOK, res.Payload())
}

func (h *Handler) getScan(c *gin.Context) {
	scanID := strings.TrimSpace(c.Param("scanId"))
	records, err := h.scans.FindByScanID(c.Request.Context(), scanID)
	if err != nil {
		h.log.Error("load scan failed", zap.String("scan_id", scanID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load scan"})
		return
	}
	if records.Empty() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scan not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scanId":    records.ScanID,
		"tools":     records.Tools,
		"materials": records.Materials,
		"buildings": records.Buildings,
	})
}

// requestBase is scheme://host of the incoming request. X-Forwarded-Proto
// counts only from a trusted proxy and only as http or https.
func (h *Handler) requestBase(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" && h.fromTrustedProxy(c) {
		switch p := strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0])); p {
		case "http", "https":
			scheme = p
		}
	}
	return scheme + "://" + c.Request.Host
}

func (h *Handler) fromTrustedProxy(c *gin.Context) bool {
	ip := net.ParseIP(c.RemoteIP())
	if ip == nil {
		return false
	}
	for _, n := range h.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Signup&login interface
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	if _, err := h.accounts.Register(c.Request.Context(), req.Email, req.Password); err != nil {
		h.accountError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "You're all set! Thanks for signing up"})
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	user, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.accountError(c, err)
		return
	}
	token, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error("issue token failed", zap.Int64("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Welcome back!", "token": token})
}

func (h *Handler) accountError(c *gin.Context, err error) {
	if msg, ok := account.IsValidation(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": msg})
		return
	}
	h.log.Error("account request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
}

func (h *Handler) logout(c *gin.Context) {
	if token, ok := auth.TokenFromContext(c); ok {
		if err := h.auth.RevokeToken(c.Request.Context(), token); err != nil {
			h.log.Error("revoke token failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}
	user, err := h.accounts.Profile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		h.log.Error("load profile failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "email": user.Email, "createdAt": user.CreatedAt})
}
