package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/picshare/picshare/internal/apperr"
	"github.com/picshare/picshare/internal/auth"
	"github.com/picshare/picshare/internal/config"
	"github.com/picshare/picshare/internal/model"
	"github.com/picshare/picshare/internal/service"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	config  *config.Config
	auth    *auth.Auth
	service *service.Service
}

func NewHandler(config *config.Config, auth *auth.Auth, service *service.Service) *Handler {
	return &Handler{config: config, auth: auth, service: service}
}

func SetupRouter(config *config.Config, auth *auth.Auth, svc *service.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(RateLimitMiddleware(config.RateLimit.Requests, config.RateLimit.Duration))

	h := NewHandler(config, auth, svc)

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Get("/gallery", h.Gallery)
		r.Get("/trending", h.Trending)
		r.Get("/search", h.Search)
		r.Post("/upload", h.Upload)
		r.Get("/image/{id}", h.GetImage)
		r.Patch("/image/{id}", h.EditImage)
		r.Delete("/image/{id}", h.DeleteImage)
		r.Post("/image/{id}/like", h.ToggleLike)
		r.Post("/image/{id}/comment", h.AddComment)
		r.Post("/image/{id}/view", h.IncrementView)
		r.Post("/image/{id}/report", h.Report)
		r.Post("/user/{username}/follow", h.Follow)
		r.Post("/user/{username}/unfollow", h.Unfollow)
	})

	return r
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		respondAppError(w, err, "Failed to register")
		return
	}
	token, err := h.auth.GenerateToken(user.ID, user.Username, 24*time.Hour)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"token": token, "user": user.Public()})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Email, req.Password, 24*time.Hour)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"token": token, "user": user.Public()})
}

func (h *Handler) Gallery(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	q := service.ListQuery{
		Page:  page,
		Limit: limit,
		Q:     r.URL.Query().Get("q"),
		Tag:   r.URL.Query().Get("tag"),
		Sort:  r.URL.Query().Get("sort"),
	}

	items, err := h.service.List(r.Context(), callerID(r), q)
	if err != nil {
		respondAppError(w, err, "Failed to load gallery")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Trending(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.Trending(r.Context(), callerID(r), limit)
	if err != nil {
		respondAppError(w, err, "Failed to load trending")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	images, err := h.service.Search(r.Context(), r.URL.Query().Get("q"), offset, limit)
	if err != nil {
		respondAppError(w, err, "Failed to search images")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": images})
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	maxSize := h.config.MaxUploadSizeOrDefault()
	// Cap the whole body; the per-file limit is enforced again in the
	// service before the blob write.
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing title or file")
		return
	}
	defer file.Close()

	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		tags = strings.Split(raw, ",")
	}
	img, err := h.service.Upload(r.Context(), caller(r), service.UploadInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Tags:        tags,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		File:        file,
	})
	if err != nil {
		respondAppError(w, err, "Upload failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": img.ID, "imageUrl": img.ImageURL})
}

func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	img, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err, "Image not found")
		return
	}
	respondJSON(w, http.StatusOK, img)
}

func (h *Handler) EditImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	img, err := h.service.EditImage(r.Context(), chi.URLParam(r, "id"), callerID(r), service.EditInput{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		respondAppError(w, err, "Edit failed")
		return
	}
	respondJSON(w, http.StatusOK, img)
}

func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteImage(r.Context(), chi.URLParam(r, "id"), callerID(r)); err != nil {
		respondAppError(w, err, "Delete failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	likes, err := h.service.ToggleLike(r.Context(), chi.URLParam(r, "id"), callerID(r))
	if err != nil {
		respondAppError(w, err, "Like failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"likes": likes})
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	count, err := h.service.AddComment(r.Context(), chi.URLParam(r, "id"), caller(r), req.Text)
	if err != nil {
		respondAppError(w, err, "Comment failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"count": count})
}

func (h *Handler) IncrementView(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.IncrementView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, err, "View failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"views": views})
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason  string `json:"reason"`
		Details string `json:"details"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := h.service.Report(r.Context(), caller(r), chi.URLParam(r, "id"), req.Reason, req.Details); err != nil {
		respondAppError(w, err, "Report failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Follow(r.Context(), callerID(r), chi.URLParam(r, "username")); err != nil {
		respondAppError(w, err, "Follow failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unfollow(r.Context(), callerID(r), chi.URLParam(r, "username")); err != nil {
		respondAppError(w, err, "Unfollow failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value("user_id").(string)
	return id
}

func caller(r *http.Request) *model.User {
	username, _ := r.Context().Value("username").(string)
	return &model.User{ID: callerID(r), Username: username}
}

func respondAppError(w http.ResponseWriter, err error, fallback string) {
	status := apperr.Status(err)
	msg := fallback
	for _, sentinel := range []error{
		apperr.ErrUnauthorized, apperr.ErrForbidden, apperr.ErrNotFound,
		apperr.ErrValidation, apperr.ErrPayloadTooLarge,
	} {
		if errors.Is(err, sentinel) {
			msg = err.Error()
			break
		}
	}
	respondError(w, status, msg)
}

func respondError(w http.ResponseWriter, status int, message string) {
	slog.Error("Request failed", "status", status, "message", message)
	respondJSON(w, status, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
