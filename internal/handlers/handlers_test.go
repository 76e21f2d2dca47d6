package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bapaynter/commtrack/internal/board"
	"github.com/bapaynter/commtrack/internal/models"
	"github.com/bapaynter/commtrack/internal/store"
	"github.com/bapaynter/commtrack/internal/uploads"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	h   *AdminHandler
	mux *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	uploadStore, err := uploads.NewStore(filepath.Join(dir, "uploads"), 0, 16)
	require.NoError(t, err)
	db, err := store.NewFileDB(filepath.Join(dir, "commissions.json"))
	require.NoError(t, err)

	templates := NewTemplateCache()
	require.NoError(t, templates.Load(filepath.Join("..", "..", "templates")))

	h := &AdminHandler{
		Store:        store.NewRepository(db, uploadStore),
		Uploads:      uploadStore,
		SessionStore: sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")),
		Templates:    templates,
		Password:     "hunter2",
	}
	return &testEnv{h: h, mux: h.Routes("", nil)}
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postJSON(t *testing.T, path string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	rr := e.do(postForm("/login", url.Values{"password": {"hunter2"}}))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/", rr.Header().Get("Location"))
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func (e *testEnv) seed(t *testing.T, title string, status models.Status) models.Commission {
	t.Helper()
	client := "Client " + title
	c, err := e.h.Store.Save("", models.Patch{Title: &title, ClientName: &client, Status: &status})
	require.NoError(t, err)
	return c
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: 80, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(postForm("/login", url.Values{"password": {"nope"}}))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))

	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)
	page := env.do(httptest.NewRequest(http.MethodGet, "/login", nil), cookies[0])
	assert.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "Invalid password")
}

func TestLoginWithBcryptHash(t *testing.T) {
	env := newTestEnv(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	env.h.PasswordHash = string(hash)

	rr := env.do(postForm("/login", url.Values{"password": {"hunter2"}}))
	assert.Equal(t, "/login", rr.Header().Get("Location"), "plain password is ignored once a hash is set")

	rr = env.do(postForm("/login", url.Values{"password": {"s3cret"}}))
	assert.Equal(t, "/", rr.Header().Get("Location"))
}

func TestEmptyPasswordNeverAuthenticates(t *testing.T) {
	env := newTestEnv(t)
	env.h.Password = ""

	rr := env.do(postForm("/login", url.Values{"password": {""}}))
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestLogoutEndsSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rr := env.do(postForm("/logout", nil), cookie)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	expired := rr.Result().Cookies()
	require.NotEmpty(t, expired)
	assert.True(t, expired[0].MaxAge < 0)
}

func TestAPIRequiresLogin(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/commissions", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error":"login required"}`, rr.Body.String())
}

func TestPagesRedirectToLogin(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/commissions/new", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestListCommissions(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	env.seed(t, "Fox", models.StatusRequested)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/commissions", nil), cookie)
	require.Equal(t, http.StatusOK, rr.Code)

	var got []models.Commission
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Fox", got[0].Title)
}

func TestMoveCommissionAcrossColumns(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	a := env.seed(t, "A", models.StatusRequested)
	b := env.seed(t, "B", models.StatusRequested)

	mv := board.Move{
		ID:   a.ID,
		From: board.Location{Status: models.StatusRequested, Index: 1},
		To:   board.Location{Status: models.StatusStarted, Index: 0},
	}
	rr := env.do(postJSON(t, "/api/commissions/move", mv), cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	moved, err := env.h.Store.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, moved.Status)
	assert.Equal(t, 0, moved.Position())

	left, err := env.h.Store.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequested, left.Status)
	assert.Equal(t, 0, left.Position())
}

func TestMoveCommissionRejectsUnknownColumn(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	a := env.seed(t, "A", models.StatusRequested)

	mv := board.Move{
		ID:   a.ID,
		From: board.Location{Status: models.StatusRequested, Index: 0},
		To:   board.Location{Status: "Archived", Index: 0},
	}
	rr := env.do(postJSON(t, "/api/commissions/move", mv), cookie)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(httptest.NewRequest(http.MethodPost, "/api/commissions/move", strings.NewReader("{")), cookie)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBatchUpdate(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	a := env.seed(t, "A", models.StatusRequested)

	paid := models.PaymentPaid
	updates := []models.Update{
		{ID: a.ID, Patch: models.Patch{PaymentStatus: &paid}},
		{ID: "missing", Patch: models.Patch{PaymentStatus: &paid}},
	}
	rr := env.do(postJSON(t, "/api/commissions/batch", updates), cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"applied":1}`, rr.Body.String())

	got, err := env.h.Store.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
}

func TestBatchUpdateValidates(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rr := env.do(postJSON(t, "/api/commissions/batch", json.RawMessage(`[{"id":"x","price":-1}]`)), cookie)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func uploadRequest(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadAndServeImage(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rr := env.do(uploadRequest(t, "my sketch.png", pngBytes(t, 32, 32)), cookie)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp["url"], uploads.URLPrefix))
	assert.True(t, strings.HasSuffix(resp["url"], "_my_sketch.png"))

	served := env.do(httptest.NewRequest(http.MethodGet, resp["url"], nil))
	require.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, "image/png", served.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=31536000, immutable", served.Header().Get("Cache-Control"))

	thumb := env.do(httptest.NewRequest(http.MethodGet, resp["url"]+"?thumb=1", nil))
	require.Equal(t, http.StatusOK, thumb.Code)
	assert.Equal(t, "image/jpeg", thumb.Header().Get("Content-Type"))
}

func TestUploadRejectsNonImage(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rr := env.do(uploadRequest(t, "notes.txt", []byte("just some text")), cookie)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServeUploadMissingFile(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/uploads/nothing.png", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServeUploadRejectsTraversal(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/uploads/x", nil)
	req.SetPathValue("filename", "../secret")
	rr := httptest.NewRecorder()
	env.h.ServeUpload(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDashboardHidesPricesWhenLoggedOut(t *testing.T) {
	env := newTestEnv(t)
	title, client, price := "Dragon", "Sam", 123.0
	_, err := env.h.Store.Save("", models.Patch{Title: &title, ClientName: &client, Price: &price})
	require.NoError(t, err)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Dragon")
	assert.NotContains(t, rr.Body.String(), "$123.00")

	cookie := env.login(t)
	rr = env.do(httptest.NewRequest(http.MethodGet, "/?view=list", nil), cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "$123.00")
}

func TestDashboardSearchFilters(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "Wolf", models.StatusRequested)
	env.seed(t, "Otter", models.StatusStarted)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/?view=list&q=wolf", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Wolf")
	assert.NotContains(t, rr.Body.String(), "Otter")
}

func TestCreateCommissionValidation(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rr := env.do(postForm("/commissions", url.Values{"title": {""}, "client_name": {"Sam"}}), cookie)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/commissions/new", rr.Header().Get("Location"))

	records, err := env.h.Store.FetchAll()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCreateAndEditCommission(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rr := env.do(postForm("/commissions", url.Values{
		"title":          {"Badge"},
		"client_name":    {"Robin"},
		"price":          {"45.50"},
		"status":         {"Started"},
		"payment_status": {"Deposit"},
	}), cookie)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	location := rr.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/commissions/edit?id="))

	records, err := env.h.Store.FetchAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 45.5, records[0].Price)
	assert.Equal(t, models.StatusStarted, records[0].Status)

	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)
	page := env.do(httptest.NewRequest(http.MethodGet, location, nil), cookies[0])
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "Badge")
	assert.Contains(t, page.Body.String(), "Commission added!")
}

func TestDeleteCommission(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	c := env.seed(t, "Gone", models.StatusFinished)

	rr := env.do(postForm("/commissions/delete", url.Values{"id": {c.ID}}), cookie)
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	_, err := env.h.Store.Get(c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddAndRemoveImageByURL(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	c := env.seed(t, "Cat", models.StatusRequested)

	rr := env.do(postForm("/commissions/images", url.Values{
		"id": {c.ID}, "kind": {models.ImageReferences}, "url": {"https://example.com/ref.png"},
	}), cookie)
	require.Equal(t, http.StatusSeeOther, rr.Code)

	got, err := env.h.Store.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/ref.png"}, got.Images.References)

	rr = env.do(postForm("/commissions/images/remove", url.Values{
		"id": {c.ID}, "kind": {models.ImageReferences}, "index": {"0"},
	}), cookie)
	require.Equal(t, http.StatusSeeOther, rr.Code)

	got, err = env.h.Store.Get(c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Images.References)
}

func TestSearchedBoardIsNotDraggable(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	env.seed(t, "Alpha", models.StatusRequested)
	env.seed(t, "Beta", models.StatusRequested)
	env.seed(t, "Alps", models.StatusRequested)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/", nil), cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `data-draggable="true"`)
	assert.Contains(t, rr.Body.String(), `draggable="true"`)

	// With Beta hidden, indexes in the visible column no longer match stored
	// positions, so the board must not offer moves.
	rr = env.do(httptest.NewRequest(http.MethodGet, "/?q=alp", nil), cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Alpha")
	assert.NotContains(t, body, "Beta")
	assert.NotContains(t, body, `draggable="true"`)
}

func TestAddImageRejectsUnknownKindBeforeUpload(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	c := env.seed(t, "Cat", models.StatusRequested)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("id", c.ID))
	require.NoError(t, mw.WriteField("kind", "sketches"))
	part, err := mw.CreateFormFile("file", "ref.png")
	require.NoError(t, err)
	_, err = part.Write(pngBytes(t, 8, 8))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/commissions/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := env.do(req, cookie)
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	_, statErr := os.Stat(env.h.Uploads.Dir)
	assert.True(t, os.IsNotExist(statErr), "no file is stored for a rejected kind")

	rr = env.do(postForm("/commissions/images/remove", url.Values{
		"id": {c.ID}, "kind": {"sketches"}, "index": {"0"},
	}), cookie)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestCreateCommissionRejectsNaNPrice(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	for _, price := range []string{"NaN", "Inf", "-Inf"} {
		rr := env.do(postForm("/commissions", url.Values{
			"title": {"Badge"}, "client_name": {"Robin"}, "price": {price},
		}), cookie)
		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/commissions/new", rr.Header().Get("Location"), price)
	}

	records, err := env.h.Store.FetchAll()
	require.NoError(t, err)
	assert.Empty(t, records)
}
