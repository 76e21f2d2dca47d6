package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/bapaynter/commtrack/internal/board"
	"github.com/bapaynter/commtrack/internal/models"
	"github.com/bapaynter/commtrack/internal/store"
	"github.com/bapaynter/commtrack/internal/uploads"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
)

const sessionName = "commtrack-session"

// SessionMaxAge is how long a login lasts, in seconds.
const SessionMaxAge = 7 * 24 * 60 * 60

type AdminHandler struct {
	Store        *store.Repository
	Uploads      *uploads.Store
	SessionStore sessions.Store
	Templates    *TemplateCache
	// Password is compared directly unless PasswordHash (bcrypt) is set.
	Password     string
	PasswordHash string
}

func (h *AdminHandler) session(r *http.Request) *sessions.Session {
	session, err := h.SessionStore.Get(r, sessionName)
	if err != nil {
		// A cookie signed with an old key still yields a usable new session.
		slog.Debug("Discarding unreadable session", "error", err)
	}
	return session
}

func (h *AdminHandler) isAuthenticated(r *http.Request) bool {
	auth, ok := h.session(r).Values["authenticated"].(bool)
	return ok && auth
}

func (h *AdminHandler) checkPassword(password string) bool {
	if h.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(h.PasswordHash), []byte(password)) == nil
	}
	if h.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(h.Password)) == 1
}

func (h *AdminHandler) LoginGet(w http.ResponseWriter, r *http.Request) {
	tmpl := h.Templates.Get("login.html")
	if tmpl == nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}
	session := h.session(r)
	data := map[string]interface{}{
		"CsrfField": csrf.TemplateField(r),
		"Flashes":   GetFlash(session),
	}
	session.Save(r, w)
	tmpl.Execute(w, data)
}

func (h *AdminHandler) LoginPost(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)

	if !h.checkPassword(r.FormValue("password")) {
		slog.Warn("Failed login attempt", "ip", clientIP(r))
		session.AddFlash(FlashMessage{Type: "error", Message: "Invalid password"})
		session.Save(r, w)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	session.Values["authenticated"] = true
	session.AddFlash(FlashMessage{Type: "success", Message: "Welcome back!"})
	if err := session.Save(r, w); err != nil {
		slog.Error("Failed to save session", "error", err)
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}

	slog.Info("Login successful", "ip", clientIP(r))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	session.Values["authenticated"] = false
	session.Options.MaxAge = -1 // Expire immediately
	session.Save(r, w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// AuthMiddleware ensures the operator is logged in. API callers get a 401
// instead of a redirect.
func (h *AdminHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.isAuthenticated(r) {
			next(w, r)
			return
		}
		slog.Info("AuthMiddleware: not authenticated", "path", r.URL.Path)
		if wantsJSON(r) {
			writeJSONError(w, http.StatusUnauthorized, "login required")
			return
		}
		session := h.session(r)
		session.AddFlash(FlashMessage{Type: "error", Message: "You must be logged in to access this page."})
		session.Save(r, w)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

type boardColumn struct {
	Status models.Status
	Label  string
	Items  []models.Commission
}

// Dashboard renders the board, list or stats view over the filtered set.
// Logged out visitors get a read-only board without prices.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	authed := h.isAuthenticated(r)

	records, err := h.Store.FetchAll()
	if err != nil {
		session.AddFlash(FlashMessage{Type: "error", Message: "Could not read commissions. Showing an empty board."})
	}

	query := r.URL.Query().Get("q")
	statusFilter := r.URL.Query().Get("status")
	if statusFilter == "" {
		statusFilter = "All"
	}
	view := r.URL.Query().Get("view")
	switch view {
	case "list", "board":
	case "stats":
		if !authed {
			view = "board"
		}
	default:
		view = "board"
	}

	// The status filter belongs to the list view; the board always shows every column.
	// A searched board hides cards, so its indexes do not match stored positions
	// and it is rendered without drag-and-drop.
	filtered := models.Filter(records, query, "All")
	if view == "list" {
		filtered = models.Filter(records, query, statusFilter)
	}

	cols := board.Columns(filtered)
	columns := make([]boardColumn, 0, len(models.Statuses))
	for _, s := range models.Statuses {
		columns = append(columns, boardColumn{Status: s, Label: s.Label(), Items: cols[s]})
	}

	tmpl := h.Templates.Get("dashboard.html")
	if tmpl == nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}
	data := map[string]interface{}{
		"View":            view,
		"Query":           query,
		"StatusFilter":    statusFilter,
		"Statuses":        models.Statuses,
		"Columns":         columns,
		"Commissions":     filtered,
		"Stats":           store.ComputeStats(records),
		"IsAuthenticated": authed,
		"Draggable":       authed && query == "",
		"CsrfToken":       csrf.Token(r),
		"CsrfField":       csrf.TemplateField(r),
		"Flashes":         GetFlash(session),
	}
	session.Save(r, w)
	tmpl.Execute(w, data)
}
