package handlers

import "net/http"

// Routes registers every page and API endpoint. Middleware such as CSRF and
// logging is applied by the caller.
func (h *AdminHandler) Routes(staticDir string, loginLimiter *RateLimiter) *http.ServeMux {
	mux := http.NewServeMux()

	if staticDir != "" {
		fileServer := http.FileServer(http.Dir(staticDir))
		mux.Handle("GET /static/", http.StripPrefix("/static", fileServer))
	}

	login := h.LoginPost
	if loginLimiter != nil {
		login = loginLimiter.Middleware(h.LoginPost)
	}

	// Public
	mux.HandleFunc("GET /{$}", h.Dashboard)
	mux.HandleFunc("GET /login", h.LoginGet)
	mux.HandleFunc("POST /login", login)
	mux.HandleFunc("POST /logout", h.Logout)
	mux.HandleFunc("GET /api/uploads/{filename}", h.ServeUpload)

	// Protected pages
	mux.HandleFunc("GET /commissions/new", h.AuthMiddleware(h.NewCommissionForm))
	mux.HandleFunc("POST /commissions", h.AuthMiddleware(h.CreateCommission))
	mux.HandleFunc("GET /commissions/edit", h.AuthMiddleware(h.EditCommissionForm))
	mux.HandleFunc("POST /commissions/update", h.AuthMiddleware(h.UpdateCommission))
	mux.HandleFunc("POST /commissions/delete", h.AuthMiddleware(h.DeleteCommission))
	mux.HandleFunc("POST /commissions/images", h.AuthMiddleware(h.AddImage))
	mux.HandleFunc("POST /commissions/images/remove", h.AuthMiddleware(h.RemoveImage))

	// Protected JSON API
	mux.HandleFunc("GET /api/commissions", h.AuthMiddleware(h.ListCommissions))
	mux.HandleFunc("POST /api/commissions/move", h.AuthMiddleware(h.MoveCommission))
	mux.HandleFunc("POST /api/commissions/batch", h.AuthMiddleware(h.BatchUpdate))
	mux.HandleFunc("POST /api/uploads", h.AuthMiddleware(h.UploadImage))

	return mux
}
