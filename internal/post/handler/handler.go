// Package handler exposes the post service over HTTP.
package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/postboard/postboard/backend/go-services/internal/post/refs"
	"github.com/postboard/postboard/backend/go-services/internal/post/service"
	"github.com/postboard/postboard/backend/go-services/internal/storage"
	"github.com/postboard/postboard/backend/go-services/internal/sweep"
	"github.com/postboard/postboard/backend/go-services/pkg/logger"
	"github.com/postboard/postboard/backend/go-services/pkg/middleware"
)

// Deps wires the handler. Store and Sweeper may be nil, which disables the
// upload and sweep endpoints.
type Deps struct {
	Service      *service.Service
	Store        storage.ObjectStore
	Sweeper      *sweep.Sweeper
	Auth         gin.HandlerFunc
	AdminRole    string
	PresignTTL   time.Duration
	UploadPrefix string
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	if d.AdminRole == "" {
		d.AdminRole = "admin"
	}
	if d.PresignTTL <= 0 {
		d.PresignTTL = 5 * time.Minute
	}
	if d.UploadPrefix == "" {
		d.UploadPrefix = "uploads/"
	}
	return &Handler{Deps: d}
}

// Register mounts every post route on r.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.GET("/posts", h.list)

	posts := api.Group("/posts", h.Auth)
	posts.POST("", h.create)
	posts.GET("/my", h.listMine)
	posts.GET("/:id", h.get)
	posts.PUT("/:id", h.update)
	posts.DELETE("/:id", h.delete)

	admin := api.Group("/admin", h.Auth, middleware.RequireRole(h.AdminRole))
	admin.GET("/posts", h.adminList)
	admin.DELETE("/posts/:id", h.adminDelete)
	if h.Sweeper != nil {
		admin.POST("/sweep", h.sweep)
		admin.GET("/sweep/last", h.lastSweep)
	}

	if h.Store != nil {
		uploads := api.Group("/uploads", h.Auth)
		uploads.POST("/presign", h.presignPut)
		uploads.GET("/presign", h.presignGet)
	}
}

// postRequest is the body of create and update. Pointer and refs.Field
// members tell an omitted field apart from an empty one.
type postRequest struct {
	Title    *string    `json:"title"`
	Content  *string    `json:"content"`
	FileURL  refs.Field `json:"fileUrl"`
	ImageURL refs.Field `json:"imageUrl"`
}

func bindPost(c *gin.Context) (*postRequest, bool) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return nil, false
	}
	return &req, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// respondError maps service errors to status codes. Unknown errors are
// logged and reported without detail.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidID), errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (h *Handler) create(c *gin.Context) {
	req, ok := bindPost(c)
	if !ok {
		return
	}
	p, err := h.Service.Create(c.Request.Context(), middleware.Subject(c), service.CreateInput{
		Title:    deref(req.Title),
		Content:  deref(req.Content),
		FileURL:  req.FileURL,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) list(c *gin.Context) {
	list, err := h.Service.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) listMine(c *gin.Context) {
	list, err := h.Service.ListMine(c.Request.Context(), middleware.Subject(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) update(c *gin.Context) {
	req, ok := bindPost(c)
	if !ok {
		return
	}
	p, err := h.Service.Update(c.Request.Context(), middleware.Subject(c), c.Param("id"), service.UpdateInput{
		Title:    req.Title,
		Content:  req.Content,
		FileURL:  req.FileURL,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.Service.Delete(c.Request.Context(), middleware.Subject(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": id})
}

func (h *Handler) adminList(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	res, err := h.Service.AdminList(c.Request.Context(), service.AdminQuery{
		Page:  page,
		Size:  size,
		Owner: c.Query("user"),
		Q:     c.Query("q"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) adminDelete(c *gin.Context) {
	id := c.Param("id")
	if err := h.Service.AdminDelete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": id})
}

func (h *Handler) sweep(c *gin.Context) {
	dryRun, _ := strconv.ParseBool(c.Query("dryRun"))
	rep, err := h.Sweeper.Run(c.Request.Context(), dryRun)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) lastSweep(c *gin.Context) {
	rec, err := h.Sweeper.LastRun(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sweep has run yet"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with a dash.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Trim(unsafeName.ReplaceAllString(name, "-"), "-.")
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	if name == "" {
		name = "file"
	}
	return name
}

// uploadKey returns uploads/<owner>/<uuid>-<filename>.
func (h *Handler) uploadKey(owner, filename string) string {
	prefix := strings.TrimRight(h.UploadPrefix, "/")
	return fmt.Sprintf("%s/%s/%s-%s", prefix, sanitizeFilename(owner), uuid.NewString(), sanitizeFilename(filename))
}

func (h *Handler) presignPut(c *gin.Context) {
	var req struct {
		Filename    string `json:"filename" binding:"required"`
		ContentType string `json:"contentType"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename is required"})
		return
	}
	owner := middleware.Subject(c)
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
		return
	}
	key := h.uploadKey(owner, req.Filename)
	u, err := h.Store.PresignPut(c.Request.Context(), key, h.PresignTTL)
	if err != nil {
		respondError(c, fmt.Errorf("presign put %s: %w", key, err))
		return
	}
	logger.Debugf("presigned upload key=%s contentType=%s", key, req.ContentType)
	c.JSON(http.StatusOK, gin.H{
		"key":       key,
		"uploadUrl": u,
		"url":       h.Service.Normalizer().ToURL(key),
		"expiresIn": int(h.PresignTTL.Seconds()),
	})
}

func (h *Handler) presignGet(c *gin.Context) {
	key := h.Service.Normalizer().ToKey(strings.TrimSpace(c.Query("key")))
	if key == "" || refs.Classify(key).Kind == refs.KindURL {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	u, err := h.Store.PresignGet(c.Request.Context(), key, h.PresignTTL)
	if err != nil {
		respondError(c, fmt.Errorf("presign get %s: %w", key, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "url": u, "expiresIn": int(h.PresignTTL.Seconds())})
}
