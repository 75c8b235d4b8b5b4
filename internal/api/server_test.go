// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuGH/gestprep/internal/accounts"
	"github.com/ManuGH/gestprep/internal/auth"
	"github.com/ManuGH/gestprep/internal/config"
	"github.com/ManuGH/gestprep/internal/inventory"
	"github.com/ManuGH/gestprep/internal/mail"
	"github.com/ManuGH/gestprep/internal/media"
	"github.com/ManuGH/gestprep/internal/persistence/sqlite"
	"github.com/ManuGH/gestprep/internal/store"
)

type testEnv struct {
	t       *testing.T
	store   *store.Store
	media   *media.Storage
	mailer  *mail.Console
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	auth.BcryptCost = bcrypt.MinCost
	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "api.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ms, err := media.NewStorage(filepath.Join(t.TempDir(), "media"))
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.API.RateLimitRPS = 0
	cfg.Media.MaxUploadSize = 1 << 20

	issuer := auth.NewIssuer("test-signing-key-with-enough-bytes", time.Hour, 24*time.Hour, st)
	resets := auth.NewResetTokens("test-signing-key-with-enough-bytes", 72*time.Hour)
	mailer := mail.NewConsole(zerolog.Nop())
	svc := accounts.NewService(st, issuer, resets, mailer, accounts.Options{
		ManagerDepartment: "IT",
		FrontendURL:       "http://localhost:3000",
		MinPasswordLength: 8,
		MailFrom:          "noreply@example.com",
	})

	srv := New(cfg, Deps{Store: st, Accounts: svc, Media: ms})
	return &testEnv{t: t, store: st, media: ms, mailer: mailer, handler: srv.Handler()}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// login registers an account in department and returns its access and
// refresh tokens.
func (e *testEnv) login(email, department string) (access, refresh string) {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/auth/register/", "", map[string]string{
		"email": email, "username": strings.Split(email, "@")[0], "password": "s3cret-pass",
		"employee_id": fmt.Sprintf("E%d", len(email)), "department": department,
	})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/api/auth/login/", "", map[string]string{"email": email, "password": "s3cret-pass"})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Tokens struct{ Access, Refresh string }
	}](e.t, rec)
	return body.Tokens.Access, body.Tokens.Refresh
}

// article seeds a site down to an article holding qty units.
func (e *testEnv) article(qty int64) inventory.Article {
	e.t.Helper()
	ctx := context.Background()
	c := e.store.Catalog()
	site := inventory.Site{Nom: "Skikda"}
	require.NoError(e.t, c.Sites.Create(ctx, &site))
	stock := inventory.Stock{Nom: "Magasin", Site: site.ID, Emplacement: "A1"}
	require.NoError(e.t, c.Stocks.Create(ctx, &stock))
	cat := inventory.CategorieArticle{Nom: "Joints"}
	require.NoError(e.t, c.Categories.Create(ctx, &cat))
	a := inventory.Article{
		CodeArticle: "JT-01", Description: "Joint spiralé", Stock: stock.ID, CategorieArticle: cat.ID,
		UniteMesure: "u", QuantiteInitiale: inventory.D(qty), QuantiteStock: inventory.D(qty), SeuilAlerte: inventory.D(1),
	}
	require.NoError(e.t, c.Articles.Create(ctx, &a))
	return a
}

type page struct {
	Count    int               `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []json.RawMessage `json:"results"`
}

func TestCatalogCRUDAndPagination(t *testing.T) {
	e := newTestEnv(t)

	for i := 0; i < 12; i++ {
		rec := e.do(http.MethodPost, "/api/sites/", "", map[string]any{"nom": fmt.Sprintf("Site %02d", i)})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := e.do(http.MethodGet, "/api/sites/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[page](t, rec)
	assert.Equal(t, 12, p.Count)
	assert.Len(t, p.Results, 10)
	require.NotNil(t, p.Next)
	assert.Equal(t, "http://example.com/api/sites/?page=2", *p.Next)
	assert.Nil(t, p.Previous)

	rec = e.do(http.MethodGet, "/api/sites/?page=2", "", nil)
	p = decode[page](t, rec)
	assert.Len(t, p.Results, 2)
	assert.Nil(t, p.Next)
	require.NotNil(t, p.Previous)
	assert.Equal(t, "http://example.com/api/sites/", *p.Previous)

	rec = e.do(http.MethodGet, "/api/sites/?page=3", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgInvalidPage, decode[map[string]string](t, rec)["detail"])

	rec = e.do(http.MethodPost, "/api/sites/", "", map[string]any{"nom": "Site 00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec), "nom")

	rec = e.do(http.MethodGet, "/api/sites/?search=site+05", "", nil)
	assert.Equal(t, 1, decode[page](t, rec).Count)

	rec = e.do(http.MethodGet, "/api/sites/999/", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgNotFound, decode[map[string]string](t, rec)["detail"])
}

func TestCatalogUpdateAndDelete(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/api/sites/", "", map[string]any{"nom": "Arzew", "description": "Zone"})
	require.Equal(t, http.StatusCreated, rec.Code)
	site := decode[inventory.Site](t, rec)

	rec = e.do(http.MethodPatch, fmt.Sprintf("/api/sites/%d/", site.ID), "", map[string]any{"description": "Zone industrielle"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decode[inventory.Site](t, rec)
	assert.Equal(t, "Arzew", patched.Nom)
	require.NotNil(t, patched.Description)
	assert.Equal(t, "Zone industrielle", *patched.Description)

	rec = e.do(http.MethodPut, fmt.Sprintf("/api/sites/%d/", site.ID), "", map[string]any{"nom": "Arzew II"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, decode[inventory.Site](t, rec).Description)

	rec = e.do(http.MethodDelete, fmt.Sprintf("/api/sites/%d/", site.ID), "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(http.MethodGet, fmt.Sprintf("/api/sites/%d/", site.ID), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedJSON(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/sites/", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(decode[map[string]string](t, rec)["detail"], "JSON parse error"))
}

func TestMovementsRequireAuthentication(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/api/mouvements/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, msgNotAuthenticated, decode[map[string]string](t, rec)["detail"])

	rec = e.do(http.MethodGet, "/api/mouvements/", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_not_valid", decode[map[string]string](t, rec)["code"])

	// An invalid token is refused on public routes too.
	rec = e.do(http.MethodGet, "/api/sites/", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMovementWorkflow(t *testing.T) {
	e := newTestEnv(t)
	access, _ := e.login("chef@example.com", "IT")
	a := e.article(10)

	rec := e.do(http.MethodPost, "/api/mouvements/", access, map[string]any{
		"type_mouvement":      "SORTIE_DEFINITIVE",
		"description_bmm":     "Remplacement joints",
		"emetteur_recepteur":  "Atelier",
		"departement_service": "Maintenance",
		"lignes":              []map[string]any{{"article": a.ID, "quantite": "3"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[inventory.Movement](t, rec)
	assert.Equal(t, "BMM1", m.NumeroBMM)
	assert.Equal(t, inventory.Brouillon, m.Statut)

	rec = e.do(http.MethodPost, fmt.Sprintf("/api/mouvements/%d/validate/", m.ID), access, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, inventory.Valide, decode[inventory.Movement](t, rec).Statut)

	got, err := e.store.Catalog().Articles.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "7.00", got.QuantiteStock.String())

	rec = e.do(http.MethodPatch, fmt.Sprintf("/api/mouvements/%d/", m.ID), access, map[string]any{"description_bmm": "Autre"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodDelete, fmt.Sprintf("/api/mouvements/%d/", m.ID), access, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/mouvements/cancel/", access, map[string]any{"ids": []int64{m.ID, 999}})
	require.Equal(t, http.StatusOK, rec.Code)
	bulk := decode[store.BulkResult](t, rec)
	assert.Equal(t, 0, bulk.SuccessCount)
	assert.Equal(t, 2, bulk.ErrorCount)

	rec = e.do(http.MethodGet, fmt.Sprintf("/api/historiques/?mouvement=%d", m.ID), access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[page](t, rec).Count)
}

func TestBulkValidateRequiresManager(t *testing.T) {
	e := newTestEnv(t)
	access, _ := e.login("agent@example.com", "OPS")

	rec := e.do(http.MethodPost, "/api/mouvements/validate/", access, map[string]any{"ids": []int64{1}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, msgForbidden, decode[map[string]string](t, rec)["detail"])

	rec = e.do(http.MethodPost, "/api/mouvements/cancel/", access, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec), "ids")
}

func TestDocumentUploadAndMedia(t *testing.T) {
	e := newTestEnv(t)
	access, _ := e.login("doc@example.com", "IT")
	a := e.article(5)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("article", fmt.Sprint(a.ID)))
	require.NoError(t, mw.WriteField("remarque", "Fiche technique"))
	fw, err := mw.CreateFormFile("fichier", "fiche technique.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	doc := decode[inventory.Document](t, rec)
	const prefix = "http://example.com/media/"
	require.True(t, strings.HasPrefix(doc.Fichier, prefix), doc.Fichier)
	rel := strings.TrimPrefix(doc.Fichier, prefix)
	assert.Equal(t, "documents/articles/fiche_technique.pdf", rel)

	rec = e.do(http.MethodGet, "/media/"+rel, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4 test", rec.Body.String())

	rec = e.do(http.MethodGet, "/media/../api.db", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodDelete, fmt.Sprintf("/api/documents/%d/", doc.ID), access, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, err = os.Stat(filepath.Join(e.media.Root(), filepath.FromSlash(rel)))
	assert.True(t, os.IsNotExist(err))
}

func TestDocumentRequiresOwner(t *testing.T) {
	e := newTestEnv(t)
	access, _ := e.login("doc@example.com", "IT")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("fichier", "orphan.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec), inventory.NonFieldKey)

	entries, _ := os.ReadDir(filepath.Join(e.media.Root(), "documents"))
	assert.Empty(t, entries, "nothing is written for a rejected upload")
}

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t)
	access, refresh := e.login("user@example.com", "OPS")

	rec := e.do(http.MethodGet, "/api/auth/token/verify/", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	verify := decode[map[string]any](t, rec)
	assert.Equal(t, true, verify["token_valid"])
	assert.Equal(t, false, verify["is_manager"])

	rec = e.do(http.MethodPost, "/api/auth/token/refresh/", "", map[string]string{"refresh": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string]string](t, rec)["access"])

	rec = e.do(http.MethodPost, "/api/auth/logout/", access, map[string]string{"refresh": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Successfully logged out", decode[map[string]string](t, rec)["message"])

	rec = e.do(http.MethodPost, "/api/token/refresh/", "", map[string]string{"refresh": refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodPost, "/api/auth/logout/", access, map[string]string{"refresh": "garbage"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid token", decode[map[string]string](t, rec)["error"])

	rec = e.do(http.MethodPost, "/api/auth/login/", "", map[string]string{"email": "user@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decode[map[string]string](t, rec)["error"])
}

func TestObtainTokenAndUserMe(t *testing.T) {
	e := newTestEnv(t)
	e.login("me@example.com", "OPS")

	rec := e.do(http.MethodPost, "/api/token/", "", map[string]string{"email": "me@example.com", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, accounts.ErrNoActiveAccount.Error(), decode[map[string]string](t, rec)["detail"])

	rec = e.do(http.MethodPost, "/api/token/", "", map[string]string{"email": "me@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/token/", "", map[string]string{"email": "me@example.com", "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, rec.Code)
	pair := decode[map[string]string](t, rec)

	rec = e.do(http.MethodGet, "/api/users/me/", pair["access"], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]any](t, rec)
	assert.Equal(t, "me", me["name"])
	assert.Equal(t, "Utilisateur", me["role"])
	assert.Equal(t, "/images/placeholder.png", me["avatar"])
}

func TestDepartmentManagement(t *testing.T) {
	e := newTestEnv(t)
	manager, _ := e.login("boss@example.com", "IT")
	e.login("agent@example.com", "IT")
	outsider, _ := e.login("ops@example.com", "OPS")

	rec := e.do(http.MethodGet, "/api/auth/department/users/", outsider, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(http.MethodGet, "/api/auth/department/stats/", manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[accounts.DepartmentStats](t, rec)
	assert.Equal(t, "IT", stats.Department)
	assert.Equal(t, 2, stats.TotalUsers)

	ops, err := e.store.UserByEmail(context.Background(), "ops@example.com")
	require.NoError(t, err)
	rec = e.do(http.MethodPost, fmt.Sprintf("/api/auth/department/assign-manager/%d/", ops.ID), manager, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec), "error")

	rec = e.do(http.MethodGet, "/api/auth/users/", manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[accounts.Directory](t, rec).TotalUsers)
}

func TestPasswordResetFlow(t *testing.T) {
	e := newTestEnv(t)
	e.login("reset@example.com", "OPS")

	rec := e.do(http.MethodPost, "/api/auth/password/reset/", "", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodPost, "/api/auth/password/reset/", "", map[string]string{"email": "reset@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	sent := e.mailer.Sent()
	require.NotEmpty(t, sent)
	body := sent[len(sent)-1].Body
	i := strings.Index(body, "/reset-password/")
	require.GreaterOrEqual(t, i, 0)
	parts := strings.Split(strings.TrimSpace(body[i+len("/reset-password/"):]), "/")
	require.Len(t, parts, 2)
	uid, token := parts[0], parts[1]

	rec = e.do(http.MethodPost, "/api/auth/password/reset/"+uid+"/"+token+"/verify/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodPost, "/api/auth/password/reset/"+uid+"/"+token+"/confirm/", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "New password is required", decode[map[string]string](t, rec)["error"])

	rec = e.do(http.MethodPost, "/api/auth/password/reset/"+uid+"/"+token+"/confirm/", "", map[string]string{"new_password": "brand-new-pass"})
	require.Equal(t, http.StatusOK, rec.Code)

	// The link is void once the password changed.
	rec = e.do(http.MethodPost, "/api/auth/password/reset/"+uid+"/"+token+"/verify/", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/api/auth/login/", "", map[string]string{"email": "reset@example.com", "password": "brand-new-pass"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRootCSRFAndHealth(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "prep.example.org")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	root := decode[map[string]string](t, rec)
	assert.Equal(t, "https://prep.example.org/api/users/me/", root["users-me"])
	assert.Equal(t, "https://prep.example.org/api/articles/", root["articles"])

	rec = e.do(http.MethodGet, "/api/auth/csrf/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CSRF cookie set", decode[map[string]string](t, rec)["detail"])
	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "csrftoken" {
			found = true
			assert.Len(t, c.Value, 64)
		}
	}
	assert.True(t, found)

	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/readyz", "", nil).Code)
}
