package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bapaynter/commtrack/internal/models"
	"github.com/bapaynter/commtrack/internal/store"
	"github.com/bapaynter/commtrack/internal/uploads"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
)

// parseCommissionForm builds a patch from the commission form. Every field on
// the form is sent, so every field is set.
func parseCommissionForm(r *http.Request, creating bool) (models.Patch, error) {
	title := strings.TrimSpace(r.FormValue("title"))
	clientName := strings.TrimSpace(r.FormValue("client_name"))
	description := strings.TrimSpace(r.FormValue("description"))
	status := models.Status(r.FormValue("status"))
	payment := models.PaymentStatus(r.FormValue("payment_status"))
	if status == "" {
		status = models.StatusRequested
	}
	if payment == "" {
		payment = models.PaymentUnpaid
	}

	p := models.Patch{
		Title:         &title,
		ClientName:    &clientName,
		Description:   &description,
		Status:        &status,
		PaymentStatus: &payment,
	}

	errs := models.ValidationError{}
	if priceStr := strings.TrimSpace(r.FormValue("price")); priceStr != "" {
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			errs["price"] = "Invalid price format."
		} else {
			p.Price = &price
		}
	} else if creating {
		zero := 0.0
		p.Price = &zero
	}

	if err := p.Validate(creating); err != nil {
		var verr models.ValidationError
		if errors.As(err, &verr) {
			for k, v := range verr {
				errs[k] = v
			}
		}
	}
	if len(errs) > 0 {
		return p, errs
	}
	return p, nil
}

// redirect persists pending flashes before the redirect writes the header.
func (h *AdminHandler) redirect(w http.ResponseWriter, r *http.Request, session *sessions.Session, target string) {
	if err := session.Save(r, w); err != nil {
		slog.Error("Failed to save session", "error", err)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func addValidationFlashes(h *AdminHandler, r *http.Request, err error) {
	session := h.session(r)
	var verr models.ValidationError
	if errors.As(err, &verr) {
		for _, msg := range verr {
			session.AddFlash(FlashMessage{Type: "error", Message: msg})
		}
		return
	}
	session.AddFlash(FlashMessage{Type: "error", Message: err.Error()})
}

func (h *AdminHandler) NewCommissionForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, models.Commission{
		Status:        models.StatusRequested,
		PaymentStatus: models.PaymentUnpaid,
		Images:        models.Images{}.Normalized(),
	}, false)
}

func (h *AdminHandler) EditCommissionForm(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	c, err := h.Store.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Commission not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to load commission", "id", id, "error", err)
		http.Error(w, "Error loading commission", http.StatusInternalServerError)
		return
	}
	h.renderForm(w, r, c, true)
}

func (h *AdminHandler) renderForm(w http.ResponseWriter, r *http.Request, c models.Commission, editing bool) {
	tmpl := h.Templates.Get("commission_form.html")
	if tmpl == nil {
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}
	session := h.session(r)
	data := map[string]interface{}{
		"CsrfField":       csrf.TemplateField(r),
		"Flashes":         GetFlash(session),
		"Item":            c,
		"Editing":         editing,
		"Statuses":        models.Statuses,
		"PaymentStatuses": models.PaymentStatuses,
		"ImageKinds":      models.ImageKinds,
	}
	session.Save(r, w)
	tmpl.Execute(w, data)
}

func (h *AdminHandler) CreateCommission(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)

	p, err := parseCommissionForm(r, true)
	if err != nil {
		addValidationFlashes(h, r, err)
		h.redirect(w, r, session, "/commissions/new")
		return
	}

	c, err := h.Store.Save("", p)
	if err != nil {
		slog.Error("Failed to create commission", "error", err)
		session.AddFlash(FlashMessage{Type: "error", Message: "Error saving commission."})
		h.redirect(w, r, session, "/commissions/new")
		return
	}

	slog.Info("Commission created", "id", c.ID)
	session.AddFlash(FlashMessage{Type: "success", Message: "Commission added!"})
	h.redirect(w, r, session, "/commissions/edit?id="+url.QueryEscape(c.ID))
}

func (h *AdminHandler) UpdateCommission(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)

	id := r.FormValue("id")
	editURL := "/commissions/edit?id=" + url.QueryEscape(id)

	p, err := parseCommissionForm(r, false)
	if err != nil {
		addValidationFlashes(h, r, err)
		h.redirect(w, r, session, editURL)
		return
	}

	if _, err := h.Store.Save(id, p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			session.AddFlash(FlashMessage{Type: "error", Message: "Commission not found."})
			h.redirect(w, r, session, "/")
			return
		}
		slog.Error("Failed to update commission", "id", id, "error", err)
		session.AddFlash(FlashMessage{Type: "error", Message: "Error updating commission."})
		h.redirect(w, r, session, editURL)
		return
	}

	session.AddFlash(FlashMessage{Type: "success", Message: "Commission updated!"})
	h.redirect(w, r, session, editURL)
}

func (h *AdminHandler) DeleteCommission(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)

	id := r.FormValue("id")
	if err := h.Store.Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			session.AddFlash(FlashMessage{Type: "error", Message: "Commission not found."})
		} else {
			slog.Error("Failed to delete commission", "id", id, "error", err)
			session.AddFlash(FlashMessage{Type: "error", Message: "Error deleting commission."})
		}
		h.redirect(w, r, session, "/")
		return
	}

	slog.Info("Commission deleted", "id", id)
	session.AddFlash(FlashMessage{Type: "success", Message: "Commission deleted."})
	h.redirect(w, r, session, "/")
}

// AddImage appends either an uploaded file or a pasted URL to one of the
// commission's image sequences.
func (h *AdminHandler) AddImage(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)

	r.Body = http.MaxBytesReader(w, r.Body, h.Uploads.MaxBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		session.AddFlash(FlashMessage{Type: "error", Message: "Upload too large or malformed."})
		h.redirect(w, r, session, "/")
		return
	}

	id := r.FormValue("id")
	kind := r.FormValue("kind")
	editURL := "/commissions/edit?id=" + url.QueryEscape(id)
	imageURL := strings.TrimSpace(r.FormValue("url"))

	// Reject a bad kind before anything is written to the upload dir.
	if _, err := (models.Images{}).Kind(kind); err != nil {
		session.AddFlash(FlashMessage{Type: "error", Message: "Unknown image section."})
		h.redirect(w, r, session, editURL)
		return
	}

	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		imageURL, err = h.Uploads.Save(header.Filename, header.Header.Get("Content-Type"), header.Size, file)
		if err != nil {
			var uerr *uploads.UploadError
			msg := "Failed to upload file"
			if errors.As(err, &uerr) {
				msg = uerr.Reason
			}
			session.AddFlash(FlashMessage{Type: "error", Message: msg})
			h.redirect(w, r, session, editURL)
			return
		}
	}
	if imageURL == "" {
		session.AddFlash(FlashMessage{Type: "error", Message: "Choose a file or paste an image URL."})
		h.redirect(w, r, session, editURL)
		return
	}

	if _, err := h.Store.AppendImage(id, kind, imageURL); err != nil {
		addValidationFlashes(h, r, err)
		h.redirect(w, r, session, editURL)
		return
	}
	session.AddFlash(FlashMessage{Type: "success", Message: "Image added."})
	h.redirect(w, r, session, editURL)
}

func (h *AdminHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)

	id := r.FormValue("id")
	editURL := "/commissions/edit?id=" + url.QueryEscape(id)
	kind := r.FormValue("kind")
	if _, err := (models.Images{}).Kind(kind); err != nil {
		session.AddFlash(FlashMessage{Type: "error", Message: "Unknown image section."})
		h.redirect(w, r, session, editURL)
		return
	}
	index, err := strconv.Atoi(r.FormValue("index"))
	if err != nil {
		session.AddFlash(FlashMessage{Type: "error", Message: "Invalid image index."})
		h.redirect(w, r, session, editURL)
		return
	}
	if _, err := h.Store.RemoveImage(id, kind, index); err != nil {
		addValidationFlashes(h, r, err)
		h.redirect(w, r, session, editURL)
		return
	}
	session.AddFlash(FlashMessage{Type: "success", Message: "Image removed."})
	h.redirect(w, r, session, editURL)
}
