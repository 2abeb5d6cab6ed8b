package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"wardstock/m/domain"
	"wardstock/m/internal/borrowing"
	"wardstock/m/internal/forecast"
	"wardstock/m/internal/inventory"
	"wardstock/m/internal/messaging"
	"wardstock/m/internal/notify"
)

type ctxKey string

const (
	ctxUserID     ctxKey = "userID"
	ctxName       ctxKey = "name"
	ctxDepartment ctxKey = "department"
	ctxRole       ctxKey = "role"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db        *sqlx.DB
	secret    string
	borrowing *borrowing.Service
	inventory *inventory.Service
	messaging *messaging.Service
	forecast  *forecast.Client
	hub       *notify.Hub
}

// New constructs a Handler.
func New(db *sqlx.DB, secret string, hub *notify.Hub, fc *forecast.Client) *Handler {
	return &Handler{
		db:        db,
		secret:    secret,
		borrowing: borrowing.NewService(db),
		inventory: inventory.NewService(db),
		messaging: messaging.NewService(db),
		forecast:  fc,
		hub:       hub,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Get("/ws", h.serveWs)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Group(func(protected chi.Router) {
			protected.Use(h.authMiddleware)
			protected.Post("/reset-password", h.resetPassword)
		})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Get("/departments/status", h.departmentStatus)

		pr.Route("/drugs", func(r chi.Router) {
			r.Get("/", h.listDrugs)
			r.Get("/departments", h.listDepartments)
			r.Get("/supplies", h.listSupplies)
			r.Get("/stats", h.stats)
			r.Get("/expiry-alert", h.expiryAlerts)
		})

		pr.Route("/checkouts", func(r chi.Router) {
			r.Post("/", h.checkout)
			r.Get("/", h.listCheckouts)
		})

		pr.Route("/requests", func(r chi.Router) {
			r.Post("/", h.submitRequest)
			r.Get("/", h.listRequests)
			r.Post("/{id}/approve", h.approveRequest)
			r.Post("/{id}/reject", h.rejectRequest)
			r.Post("/{id}/cancel", h.cancelRequest)
		})

		pr.Route("/messages", func(r chi.Router) {
			r.Post("/", h.sendMessage)
			r.Get("/", h.listMessages)
			r.Post("/{id}/read", h.markMessageRead)
			r.Post("/{id}/cancel", h.cancelMessage)
		})

		pr.Get("/forecast", h.forecastDrugs)
		pr.Get("/forecast/{drug}", h.predict)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers

type authClaims struct {
	UserID     int64  `json:"user_id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64, name, department, role string) (string, error) {
	claims := authClaims{
		UserID:     userID,
		Name:       name,
		Department: department,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) parseToken(tokenString string) (*authClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(h.secret), nil
	})
	if err != nil || !token.Valid {
		return nil, domain.ErrUnauthorized
	}
	claims, ok := token.Claims.(*authClaims)
	if !ok {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.parseToken(strings.TrimSpace(header[len("Bearer "):]))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxName, claims.Name)
		ctx = context.WithValue(ctx, ctxDepartment, claims.Department)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func department(r *http.Request) string {
	dept, _ := r.Context().Value(ctxDepartment).(string)
	return dept
}

func isAdmin(r *http.Request) bool {
	role, _ := r.Context().Value(ctxRole).(string)
	return role == domain.RoleAdmin
}

// Auth handlers

type registerRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Department string `json:"department"`
	Role       string `json:"role,omitempty"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" || req.Department == "" {
		respondError(w, http.StatusBadRequest, "name, email, password and department are required")
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleDepartment
	}
	if req.Role != domain.RoleDepartment && req.Role != domain.RoleAdmin {
		respondError(w, http.StatusBadRequest, "role must be department or admin")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}

	var userID int64
	err = h.db.QueryRowxContext(r.Context(),
		`INSERT INTO users (name, email, password, department, role) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		req.Name, strings.ToLower(req.Email), hashed, req.Department, req.Role).Scan(&userID)
	if err != nil {
		respondError(w, http.StatusConflict, "email already exists")
		return
	}

	token, err := h.generateToken(userID, req.Name, req.Department, req.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}
	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: domain.User{
		ID: userID, Name: req.Name, Email: strings.ToLower(req.Email),
		Department: req.Department, Role: req.Role,
	}})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user domain.User
	err := h.db.GetContext(r.Context(), &user,
		`SELECT id, name, email, password, department, role FROM users WHERE email = $1`,
		strings.ToLower(req.Email))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.generateToken(user.ID, user.Name, user.Department, user.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}
	user.Password = ""
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "new_password is required")
		return
	}
	uid := r.Context().Value(ctxUserID).(int64)
	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}
	if _, err := h.db.ExecContext(r.Context(), `UPDATE users SET password = $1 WHERE id = $2`, hashed, uid); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

// Drug handlers

func (h *Handler) listDrugs(w http.ResponseWriter, r *http.Request) {
	dept := strings.TrimSpace(r.URL.Query().Get("department"))
	if dept == "" {
		dept = department(r)
	}
	drugs, err := h.inventory.ListDrugs(r.Context(), dept, r.URL.Query().Get("query"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, drugs)
}

// departmentStatus reports which departments have a live dashboard socket.
func (h *Handler) departmentStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"logged_in": h.hub.Online()})
}

func (h *Handler) listDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.inventory.Departments(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, departments)
}

func (h *Handler) listSupplies(w http.ResponseWriter, r *http.Request) {
	supplies, err := h.inventory.Supplies(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, supplies)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.inventory.Stats(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) expiryAlerts(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	drugs, err := h.inventory.ExpiryAlerts(r.Context(), department(r), days)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, drugs)
}

// Checkout handlers

type checkoutRequest struct {
	Drug     string `json:"drug"`
	Quantity int64  `json:"quantity"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	name, _ := r.Context().Value(ctxName).(string)
	dept := department(r)
	if err := h.inventory.Checkout(r.Context(), req.Drug, req.Quantity, name, dept); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.hub.Publish(notify.EventNewCheckout, dept)
	respondJSON(w, http.StatusCreated, map[string]string{"status": "checked out"})
}

func (h *Handler) listCheckouts(w http.ResponseWriter, r *http.Request) {
	checkouts, err := h.inventory.RecentCheckouts(r.Context(), department(r))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, checkouts)
}

// Borrowing-request handlers

type submitRequest struct {
	Drug           string `json:"drug"`
	Quantity       int64  `json:"quantity"`
	FromDepartment string `json:"from_department"`
}

func (h *Handler) submitRequest(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	// The borrowing side is always the caller's own department.
	toDepartment := department(r)
	id, err := h.borrowing.Submit(r.Context(), req.Drug, req.Quantity, req.FromDepartment, toDepartment)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.hub.Publish(notify.EventRequestUpdate, req.FromDepartment, toDepartment)
	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "status": domain.RequestStatusPending})
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.borrowing.List(r.Context(), department(r))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, requests)
}

func (h *Handler) approveRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	if err := h.borrowing.Approve(r.Context(), id, department(r)); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.notifyRequestUpdate(r.Context(), id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (h *Handler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	if err := h.borrowing.Reject(r.Context(), id, department(r), isAdmin(r)); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.notifyRequestUpdate(r.Context(), id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (h *Handler) cancelRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	if err := h.borrowing.Cancel(r.Context(), id, department(r)); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.notifyRequestUpdate(r.Context(), id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) notifyRequestUpdate(ctx context.Context, id int64) {
	req, err := h.borrowing.Get(ctx, id)
	if err != nil {
		log.Printf("notify request update %d: %v", id, err)
		return
	}
	h.hub.Publish(notify.EventRequestUpdate, req.FromDepartment, req.ToDepartment)
}

// Message handlers

type sendMessageRequest struct {
	ToDepartment string `json:"to_department"`
	Message      string `json:"message"`
	Priority     string `json:"priority,omitempty"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	dept := department(r)
	id, err := h.messaging.Send(r.Context(), dept, req.ToDepartment, req.Message, req.Priority)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.hub.Publish(notify.EventNewMessage, req.ToDepartment, dept)
	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "status": "sent"})
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messaging.Recent(r.Context(), department(r))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

func (h *Handler) markMessageRead(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	if err := h.messaging.MarkRead(r.Context(), id, department(r)); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (h *Handler) cancelMessage(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	if err := h.messaging.Cancel(r.Context(), id, department(r)); err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Forecast handlers

func (h *Handler) forecastDrugs(w http.ResponseWriter, r *http.Request) {
	drugs, err := h.forecast.AvailableDrugs(r.Context())
	if err != nil {
		log.Printf("forecast catalog: %v", err)
		respondError(w, http.StatusBadGateway, "forecast service unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"available_drugs": drugs})
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	drug := chi.URLParam(r, "drug")
	prediction, err := h.forecast.Predict(r.Context(), drug)
	if err != nil {
		log.Printf("forecast %q: %v", drug, err)
		respondError(w, http.StatusBadGateway, "forecast service unavailable")
		return
	}
	respondJSON(w, http.StatusOK, prediction)
}

// Helpers

func requestID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidRequest
	}
	return id, nil
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
// Persistence failures are logged and reported generically so raw store
// errors never reach clients.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrDrugNotFound),
		errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrMessageNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrAlreadyProcessed):
		respondError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
