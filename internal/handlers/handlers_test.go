package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/3ltranslate/legtrans/internal/credentials"
	"github.com/3ltranslate/legtrans/internal/models"
	"github.com/3ltranslate/legtrans/internal/ocr"
	"github.com/3ltranslate/legtrans/internal/providers"
	"github.com/3ltranslate/legtrans/internal/storage"
	"github.com/3ltranslate/legtrans/internal/subscription"
	"github.com/3ltranslate/legtrans/internal/translation"
	"github.com/3ltranslate/legtrans/internal/workspace"
)

type stubOCR struct {
	text string
	err  error
	// rejected is answered with an invalid key error
	rejected string
	seen     []string
}

func (s *stubOCR) ExtractText(ctx context.Context, req providers.OCRRequest) (string, error) {
	if req.Credentials != nil {
		key, err := req.Credentials.Get(ctx)
		if err != nil {
			return "", err
		}
		s.seen = append(s.seen, key)
		if key == s.rejected {
			return "", providers.NewStatusError(http.StatusBadRequest, "API key not valid. Please pass a valid API key.")
		}
	}
	return s.text, s.err
}

type stubTranslator struct {
	out string
}

func (s *stubTranslator) Translate(ctx context.Context, text string) (string, error) {
	return s.out, nil
}

type failingHistory struct {
	storage.History
}

func (failingHistory) Save(ctx context.Context, rec models.TranslationRecord) (models.TranslationRecord, error) {
	return models.TranslationRecord{}, errors.New("connection refused")
}

type testServer struct {
	mux   *http.ServeMux
	store *storage.MemoryStore
	keys  *credentials.Keyring
	ocr   *stubOCR
}

type serverOptions struct {
	shared  credentials.Provider
	history storage.History
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, serverOptions{})
}

func newTestServerWith(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	store := storage.NewMemory()
	file := credentials.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"), credentials.DefaultKeyName)
	var keys *credentials.Keyring
	if opts.shared != nil {
		keys = credentials.NewKeyring(file, opts.shared)
	} else {
		keys = credentials.NewKeyring(file)
	}
	if err := keys.Stored("alice").Set(t.Context(), "AIza-test"); err != nil {
		t.Fatalf("Failed to store key: %v", err)
	}
	var history storage.History = store
	if opts.history != nil {
		history = opts.history
	}
	backend := &stubOCR{text: "Bonjour le monde"}
	ocrSvc := ocr.NewService(backend, nil, ocr.Options{Models: []string{"gemini-2.5-flash"}})
	translator := translation.NewService(&stubTranslator{out: "مرحبا بالعالم!"}, history)

	for _, user := range []string{"alice", "mallory"} {
		if err := store.UpsertProfile(t.Context(), models.Profile{UserID: user, IsAdmin: true}); err != nil {
			t.Fatalf("Failed to create profile: %v", err)
		}
	}

	h := New(Deps{
		Workspaces:    workspace.NewStore(ocrSvc, translator).WithKeys(keys),
		History:       history,
		Translators:   store,
		Subscriptions: subscription.NewService(store),
		Keys:          keys,
		StaticDir:     t.TempDir(),

		RequireSubscription: true,
	})
	return &testServer{mux: h.Routes(), store: store, keys: keys, ocr: backend}
}

func (s *testServer) do(t *testing.T, method, path, owner, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if owner != "" {
		req.Header.Set(UserHeader, owner)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(t *testing.T, method, path, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return s.do(t, method, path, owner, "application/json", r)
}

func pngUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 10, 4))
	for x := range 10 {
		img.Set(x, 1, color.NRGBA{R: 200, G: 50, B: 10, A: 255})
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="jugement.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("Failed to create part: %v", err)
	}
	_, _ = part.Write(pngBuf.Bytes())
	_ = mw.Close()
	return &body, mw.FormDataContentType()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestFullFlow(t *testing.T) {
	s := newTestServer(t)

	body, ct := pngUpload(t)
	rec := s.do(t, "POST", "/api/images", "alice", ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from upload, got %d: %s", rec.Code, rec.Body.String())
	}
	img := decode[imageResponse](t, rec)
	if img.Width != 10 || img.Height != 4 || !strings.HasPrefix(img.DataURL, "data:image/png;base64,") {
		t.Errorf("Unexpected upload response %+v", img)
	}

	rec = s.doJSON(t, "POST", "/api/images/contrast", "alice", `{"factor":1.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from contrast, got %d: %s", rec.Code, rec.Body.String())
	}
	if adj := decode[imageResponse](t, rec); adj.Factor != 1.5 || adj.Width != 10 {
		t.Errorf("Unexpected contrast response %+v", adj)
	}

	rec = s.doJSON(t, "POST", "/api/ocr", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from OCR, got %d: %s", rec.Code, rec.Body.String())
	}
	if res := decode[ocr.Result](t, rec); res.Text != "Bonjour le monde" || res.Model != "gemini-2.5-flash" {
		t.Errorf("Unexpected OCR result %+v", res)
	}

	rec = s.doJSON(t, "PUT", "/api/text", "alice", `{"text":"Bonjour le monde!"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from text edit, got %d", rec.Code)
	}

	rec = s.doJSON(t, "POST", "/api/translate", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from translate, got %d: %s", rec.Code, rec.Body.String())
	}
	tr := decode[translation.Result](t, rec)
	if tr.Translation != "مرحبا بالعالم!" || tr.Record == nil || tr.Record.SourceText != "Bonjour le monde!" {
		t.Errorf("Unexpected translation %+v", tr)
	}

	rec = s.doJSON(t, "GET", "/api/history", "alice", "")
	history := decode[[]models.TranslationRecord](t, rec)
	if len(history) != 1 {
		t.Fatalf("Expected 1 history record, got %d", len(history))
	}

	rec = s.doJSON(t, "GET", "/api/history?format=yaml", "alice", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "source_text: Bonjour le monde!") {
		t.Errorf("Unexpected YAML export %d: %s", rec.Code, rec.Body.String())
	}

	rec = s.doJSON(t, "DELETE", "/api/history/"+history[0].ID, "alice", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 from delete, got %d", rec.Code)
	}
	rec = s.doJSON(t, "DELETE", "/api/history/"+history[0].ID, "alice", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 deleting twice, got %d", rec.Code)
	}
}

func TestMissingOwner(t *testing.T) {
	s := newTestServer(t)
	rec := s.doJSON(t, "GET", "/api/history", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Errorf("Expected JSON error body, got %s", rec.Body.String())
	}
}

func TestSubscriptionGate(t *testing.T) {
	s := newTestServer(t)
	rec := s.doJSON(t, "POST", "/api/ocr", "bob", "")
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402 for inactive user, got %d", rec.Code)
	}
	if e := decode[errorResponse](t, rec); e.Category != "subscription_required" {
		t.Errorf("Unexpected category %s", e.Category)
	}

	if _, err := s.store.CreateCode(t.Context(), models.ActivationCode{Code: "BOB-30", DurationDays: 30}); err != nil {
		t.Fatalf("CreateCode failed: %v", err)
	}
	rec = s.doJSON(t, "POST", "/api/activate", "bob", `{"code":"bob-30"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from activate, got %d: %s", rec.Code, rec.Body.String())
	}
	if p := decode[profileResponse](t, rec); !p.Active || p.SubscriptionExpiresAt == nil || p.SubscriptionExpiresAt.Before(time.Now().AddDate(0, 0, 29)) {
		t.Errorf("Unexpected profile after activation %+v", p)
	}

	rec = s.doJSON(t, "POST", "/api/activate", "bob", `{"code":"bob-30"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 reusing code, got %d", rec.Code)
	}

	// active now, so OCR fails only because no image is loaded
	rec = s.doJSON(t, "POST", "/api/ocr", "bob", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without image, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOCRInvalidKeyClearsCredential(t *testing.T) {
	s := newTestServer(t)
	s.ocr.err = providers.NewStatusError(http.StatusUnauthorized, "API key not valid. Please pass a valid API key.")

	body, ct := pngUpload(t)
	if rec := s.do(t, "POST", "/api/images", "alice", ct, body); rec.Code != http.StatusOK {
		t.Fatalf("Upload failed: %d", rec.Code)
	}

	rec := s.doJSON(t, "POST", "/api/ocr", "alice", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
	if e := decode[errorResponse](t, rec); e.Category != string(ocr.InvalidCredential) {
		t.Errorf("Expected invalid_credential, got %s", e.Category)
	}

	rec = s.doJSON(t, "GET", "/api/credentials", "alice", "")
	if got := decode[map[string]bool](t, rec); got["configured"] {
		t.Error("Expected the rejected key to be cleared")
	}

	rec = s.doJSON(t, "PUT", "/api/credentials", "alice", `{"api_key":"AIza-new"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 storing key, got %d", rec.Code)
	}
	if key, err := s.keys.Stored("alice").Get(t.Context()); err != nil || key != "AIza-new" {
		t.Errorf("Expected stored key, got %q (%v)", key, err)
	}
}

func TestOCRNoTextFound(t *testing.T) {
	s := newTestServer(t)
	s.ocr.text = ""

	body, ct := pngUpload(t)
	s.do(t, "POST", "/api/images", "alice", ct, body)

	rec := s.doJSON(t, "POST", "/api/ocr", "alice", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if e := decode[errorResponse](t, rec); e.Category != string(ocr.NoTextFound) {
		t.Errorf("Expected no_text_found, got %s", e.Category)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	s := newTestServer(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("image", "notes.txt")
	_, _ = part.Write([]byte("just some text"))
	_ = mw.Close()

	rec := s.do(t, "POST", "/api/images", "alice", mw.FormDataContentType(), &body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestView(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		body     string
		wantZoom float64
		wantCode int
	}{
		{body: `{"event":"wheel","delta_y":-500}`, wantZoom: 1.5, wantCode: http.StatusOK},
		{body: `{"event":"wheel","delta_y":-100000}`, wantZoom: 5, wantCode: http.StatusOK},
		{body: `{"event":"reset"}`, wantZoom: 1, wantCode: http.StatusOK},
		{body: `{"event":"pinch"}`, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := s.doJSON(t, "POST", "/api/view", "alice", tt.body)
		if rec.Code != tt.wantCode {
			t.Errorf("%s: expected %d, got %d", tt.body, tt.wantCode, rec.Code)
			continue
		}
		if tt.wantCode != http.StatusOK {
			continue
		}
		var got struct {
			Zoom float64 `json:"zoom"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if got.Zoom != tt.wantZoom {
			t.Errorf("%s: expected zoom %v, got %v", tt.body, tt.wantZoom, got.Zoom)
		}
	}
}

func TestTranslators(t *testing.T) {
	s := newTestServer(t)
	rec := s.doJSON(t, "POST", "/api/translators", "alice", `{"first_name":"Amina","last_name":"Benali","wilaya":"Alger","accreditation_number":"TA-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[models.Translator](t, rec)
	if created.UserID != "alice" || created.Verified {
		t.Errorf("Unexpected translator %+v", created)
	}

	rec = s.doJSON(t, "POST", "/api/translators", "alice", `{"first_name":"Amina","last_name":"Benali","wilaya":"Alger","accreditation_number":"TA-1"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate, got %d", rec.Code)
	}

	rec = s.doJSON(t, "POST", "/api/translators", "carol", `{"first_name":"Carol"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing fields, got %d", rec.Code)
	}

	if err := s.store.SetVerified(created.ID, true); err != nil {
		t.Fatalf("SetVerified failed: %v", err)
	}
	rec = s.doJSON(t, "GET", "/api/translators?q=amina&wilaya=alger", "", "")
	if list := decode[[]models.Translator](t, rec); len(list) != 1 {
		t.Errorf("Expected 1 translator, got %d", len(list))
	}
}

func TestHealthcheck(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "GET", "/healthcheck", "", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("Unexpected healthcheck %d %q", rec.Code, rec.Body.String())
	}
}

func TestCredentialsArePerUser(t *testing.T) {
	s := newTestServer(t)

	rec := s.doJSON(t, "GET", "/api/credentials", "bob", "")
	if got := decode[credentialsResponse](t, rec); got.Configured {
		t.Error("Expected bob to see no key of his own")
	}

	rec = s.doJSON(t, "DELETE", "/api/credentials", "bob", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	if key, err := s.keys.Stored("alice").Get(t.Context()); err != nil || key != "AIza-test" {
		t.Fatalf("Expected alice's key to survive bob's delete, got %q (%v)", key, err)
	}

	rec = s.doJSON(t, "PUT", "/api/credentials", "bob", `{"api_key":"AIza-bob"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 storing bob's key, got %d", rec.Code)
	}
	if key, _ := s.keys.Stored("alice").Get(t.Context()); key != "AIza-test" {
		t.Errorf("Expected alice's key unchanged, got %q", key)
	}

	body, ct := pngUpload(t)
	s.do(t, "POST", "/api/images", "alice", ct, body)
	if rec := s.doJSON(t, "POST", "/api/ocr", "alice", ""); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from OCR, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(s.ocr.seen) != 1 || s.ocr.seen[0] != "AIza-test" {
		t.Errorf("Expected alice's OCR to use her own key, got %v", s.ocr.seen)
	}
}

func TestRejectedUserKeyKeepsSharedKey(t *testing.T) {
	shared := credentials.NewStatic("OPERATOR-KEY")
	s := newTestServerWith(t, serverOptions{shared: shared})
	s.ocr.rejected = "garbage"

	if rec := s.doJSON(t, "PUT", "/api/credentials", "mallory", `{"api_key":"garbage"}`); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 storing key, got %d", rec.Code)
	}
	body, ct := pngUpload(t)
	s.do(t, "POST", "/api/images", "mallory", ct, body)

	rec := s.doJSON(t, "POST", "/api/ocr", "mallory", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for the rejected key, got %d: %s", rec.Code, rec.Body.String())
	}
	if key, err := shared.Get(t.Context()); err != nil || key != "OPERATOR-KEY" {
		t.Fatalf("Expected the shared key to survive, got %q (%v)", key, err)
	}

	rec = s.doJSON(t, "GET", "/api/credentials", "mallory", "")
	if got := decode[credentialsResponse](t, rec); got.Configured || !got.Shared {
		t.Errorf("Expected own key cleared and shared key available, got %+v", got)
	}

	// the next attempt falls back to the shared key
	rec = s.doJSON(t, "POST", "/api/ocr", "mallory", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 with the shared key, got %d: %s", rec.Code, rec.Body.String())
	}
	if last := s.ocr.seen[len(s.ocr.seen)-1]; last != "OPERATOR-KEY" {
		t.Errorf("Expected the shared key to be used, got %s", last)
	}
}

func TestContrastOutOfRange(t *testing.T) {
	s := newTestServer(t)
	body, ct := pngUpload(t)
	s.do(t, "POST", "/api/images", "alice", ct, body)

	rec := s.doJSON(t, "POST", "/api/images/contrast", "alice", `{"factor":3}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if e := decode[errorResponse](t, rec); e.Category != "invalid_input" {
		t.Errorf("Expected invalid_input, got %s", e.Category)
	}

	// the previous preview stays active
	rec = s.doJSON(t, "GET", "/api/workspace", "alice", "")
	if snap := decode[workspace.Snapshot](t, rec); snap.Adjusted == nil || snap.Adjusted.Factor != 1 {
		t.Errorf("Expected neutral preview kept, got %+v", snap.Adjusted)
	}
}

func TestTranslateReturnsTextWhenHistoryFails(t *testing.T) {
	s := newTestServerWith(t, serverOptions{history: failingHistory{}})

	rec := s.doJSON(t, "POST", "/api/translate", "alice", `{"text":"Bonjour le monde!"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Translation string                    `json:"translation"`
		Record      *models.TranslationRecord `json:"record"`
		Warning     string                    `json:"warning"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.Translation != "مرحبا بالعالم!" {
		t.Errorf("Expected translated text, got %q", got.Translation)
	}
	if got.Record != nil {
		t.Errorf("Expected no record, got %+v", got.Record)
	}
	if got.Warning == "" {
		t.Error("Expected a persistence warning")
	}
}
