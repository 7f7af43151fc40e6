package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/MrWong99/voicecart/internal/api"
	"github.com/MrWong99/voicecart/internal/inventory"
	"github.com/MrWong99/voicecart/internal/recommend"
	"github.com/MrWong99/voicecart/internal/storage/memory"
	"github.com/MrWong99/voicecart/internal/voice"
	"github.com/MrWong99/voicecart/internal/wishlist"
	"github.com/MrWong99/voicecart/pkg/provider/stt"
	sttmock "github.com/MrWong99/voicecart/pkg/provider/stt/mock"
)

type recommenderFunc func(ctx context.Context, username string) ([]recommend.Recommendation, error)

func (f recommenderFunc) Recommend(ctx context.Context, username string) ([]recommend.Recommendation, error) {
	return f(ctx, username)
}

type extractorFunc func(ctx context.Context, text string) (map[string]any, error)

func (f extractorFunc) Extract(ctx context.Context, text string) (map[string]any, error) {
	return f(ctx, text)
}

type failingViews struct{}

func (failingViews) Wishlist(context.Context, string) ([]wishlist.Entry, error) {
	return nil, errors.New("connection reset")
}

func (failingViews) ListStore(context.Context) ([]inventory.StoreItem, error) {
	return nil, errors.New("connection reset")
}

func newStore(t *testing.T, items ...inventory.StoreItem) *memory.Store {
	t.Helper()
	s := memory.New()
	if len(items) == 0 {
		return s
	}
	if _, err := s.SeedIfEmpty(context.Background(), items); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func newServer(t *testing.T, cfg api.Config) *httptest.Server {
	t.Helper()
	if cfg.Reconciler == nil || cfg.Views == nil {
		s := newStore(t,
			inventory.StoreItem{Product: "Milk", Category: "dairy", Price: 40, Quantity: 100},
			inventory.StoreItem{Product: "Bread", Category: "bakery", Price: 30, Quantity: 3},
		)
		views := wishlist.NewViews(s, nil, 0)
		if cfg.Reconciler == nil {
			cfg.Reconciler = wishlist.NewReconciler(s, wishlist.WithObserver(views.Observer()))
		}
		if cfg.Views == nil {
			cfg.Views = views
		}
	}
	srv := httptest.NewServer(api.New(cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
	}
	return resp.StatusCode, body
}

func get(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return do(t, req)
}

func postJSON(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(t, req)
}

func upload(t *testing.T, url, filename string, data []byte) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(data)
	} else {
		_ = mw.WriteField("note", "no file here")
	}
	_ = mw.Close()
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return do(t, req)
}

func TestUpdateWishlist(t *testing.T) {
	t.Parallel()
	srv := newServer(t, api.Config{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{
			name:       "add",
			body:       `{"product":"milk","quantity":2,"category":"dairy","action":"add","status":"pending"}`,
			wantStatus: http.StatusOK,
			wantKey:    "message",
			wantValue:  "Product added to wishlist and stock updated",
		},
		{
			name:       "unknown product",
			body:       `{"product":"Caviar","quantity":1,"category":"deli","action":"add","status":"pending"}`,
			wantStatus: http.StatusBadRequest,
			wantKey:    "detail",
			wantValue:  "No item 'Caviar' found in store",
		},
		{
			name:       "insufficient stock",
			body:       `{"product":"Bread","quantity":4,"category":"bakery","action":"add","status":"pending"}`,
			wantStatus: http.StatusBadRequest,
			wantKey:    "detail",
			wantValue:  "Only 3 × Bread available in store",
		},
		{
			name:       "missing fields",
			body:       `{"product":"Milk"}`,
			wantStatus: http.StatusBadRequest,
			wantKey:    "detail",
			wantValue:  "Invalid LLM response format",
		},
		{
			name:       "malformed json",
			body:       `{"product":`,
			wantStatus: http.StatusBadRequest,
			wantKey:    "detail",
			wantValue:  "Invalid JSON body",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := postJSON(t, srv.URL+"/update_wishlist/alice", tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %v)", status, tt.wantStatus, body)
			}
			if got, _ := body[tt.wantKey].(string); got != tt.wantValue {
				t.Errorf("%s = %q, want %q", tt.wantKey, got, tt.wantValue)
			}
		})
	}
}

func TestUpdateWishlist_EchoesData(t *testing.T) {
	t.Parallel()
	srv := newServer(t, api.Config{})

	status, body := postJSON(t, srv.URL+"/update_wishlist/bob",
		`{"product":"Milk","quantity":3,"category":"dairy","action":"add","status":"pending"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %#v, want object", body["data"])
	}
	if data["product"] != "Milk" || data["quantity"] != float64(3) {
		t.Errorf("data = %v", data)
	}
	if ts, _ := data["timestamp"].(string); ts == "" {
		t.Error("data.timestamp missing")
	}

	_, wl := get(t, srv.URL+"/wishlist/bob")
	entries, _ := wl["wishlist"].([]any)
	if len(entries) != 1 {
		t.Fatalf("wishlist = %v, want one entry", wl)
	}
	e := entries[0].(map[string]any)
	if e["product"] != "Milk" || e["quantity"] != float64(3) || e["id"] == "" {
		t.Errorf("entry = %v", e)
	}
}

func TestUpdateWishlist_InternalError(t *testing.T) {
	t.Parallel()
	srv := newServer(t, api.Config{
		Reconciler: reconcilerFunc(func(context.Context, string, any) (wishlist.Result, error) {
			return wishlist.Result{}, errors.New("disk on fire")
		}),
		Views: failingViews{},
	})

	status, body := postJSON(t, srv.URL+"/update_wishlist/alice", `{}`)
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if body["detail"] != "Internal server error: disk on fire" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestUpdateWishlist_BodyReadFailures(t *testing.T) {
	t.Parallel()
	h := api.New(api.Config{
		Reconciler: reconcilerFunc(func(context.Context, string, any) (wishlist.Result, error) {
			t.Error("reconciler called for an unreadable body")
			return wishlist.Result{}, nil
		}),
		Views: failingViews{},
	}).Handler()

	tests := []struct {
		name       string
		body       io.Reader
		wantStatus int
		wantDetail string
	}{
		{
			name:       "oversized",
			body:       bytes.NewReader(bytes.Repeat([]byte(" "), 65<<10)),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantDetail: "Request body too large",
		},
		{
			name:       "broken connection",
			body:       iotest.ErrReader(errors.New("connection reset by peer")),
			wantStatus: http.StatusBadRequest,
			wantDetail: "Failed to read request body",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/update_wishlist/alice", tt.body))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["detail"] != tt.wantDetail {
				t.Errorf("detail = %q, want %q", body["detail"], tt.wantDetail)
			}
		})
	}
}

type reconcilerFunc func(ctx context.Context, username string, raw any) (wishlist.Result, error)

func (f reconcilerFunc) Apply(ctx context.Context, username string, raw any) (wishlist.Result, error) {
	return f(ctx, username, raw)
}

func TestWishlist_UnknownUserIsEmpty(t *testing.T) {
	t.Parallel()
	srv := newServer(t, api.Config{})

	status, body := get(t, srv.URL+"/wishlist/nobody")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	entries, ok := body["wishlist"].([]any)
	if !ok || len(entries) != 0 {
		t.Errorf("wishlist = %#v, want []", body["wishlist"])
	}
}

func TestStore(t *testing.T) {
	t.Parallel()

	t.Run("seeded", func(t *testing.T) {
		srv := newServer(t, api.Config{})
		status, body := get(t, srv.URL+"/store")
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		items, _ := body["store_items"].([]any)
		if len(items) != 2 {
			t.Fatalf("store_items = %v", body["store_items"])
		}
		if _, ok := body["note"]; ok {
			t.Error("unexpected note for a seeded store")
		}
	})

	t.Run("empty", func(t *testing.T) {
		s := newStore(t)
		views := wishlist.NewViews(s, nil, 0)
		srv := newServer(t, api.Config{Reconciler: wishlist.NewReconciler(s), Views: views})
		status, body := get(t, srv.URL+"/store")
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		if body["note"] != "Store is empty. Please seed the database." {
			t.Errorf("note = %v", body["note"])
		}
		if items, ok := body["store_items"].([]any); !ok || len(items) != 0 {
			t.Errorf("store_items = %#v, want []", body["store_items"])
		}
	})
}

func TestReadFailures(t *testing.T) {
	t.Parallel()
	srv := newServer(t, api.Config{
		Reconciler: reconcilerFunc(func(context.Context, string, any) (wishlist.Result, error) {
			return wishlist.Result{}, nil
		}),
		Views: failingViews{},
	})

	tests := []struct {
		path   string
		detail string
	}{
		{"/wishlist/alice", "Failed to fetch wishlist: connection reset"},
		{"/store", "Failed to fetch store items: connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := get(t, srv.URL+tt.path)
			if status != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", status)
			}
			if body["detail"] != tt.detail {
				t.Errorf("detail = %v, want %q", body["detail"], tt.detail)
			}
		})
	}
}

func TestRecommendations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		rec        api.Recommender
		wantStatus int
		wantNote   string
		wantDetail string
		wantCount  int
	}{
		{
			name:       "not configured",
			wantStatus: http.StatusServiceUnavailable,
			wantDetail: "Recommendations are not configured",
		},
		{
			name: "no wishlist",
			rec: recommenderFunc(func(context.Context, string) ([]recommend.Recommendation, error) {
				return nil, recommend.ErrNoWishlist
			}),
			wantStatus: http.StatusOK,
			wantNote:   "No wishlist found",
		},
		{
			name: "empty wishlist",
			rec: recommenderFunc(func(context.Context, string) ([]recommend.Recommendation, error) {
				return nil, recommend.ErrEmptyWishlist
			}),
			wantStatus: http.StatusOK,
			wantNote:   "Wishlist empty",
		},
		{
			name: "results",
			rec: recommenderFunc(func(context.Context, string) ([]recommend.Recommendation, error) {
				return []recommend.Recommendation{
					{Product: "Cheese", Category: "dairy", Price: 120},
					{Product: "Butter", Category: "dairy", Price: 55},
				}, nil
			}),
			wantStatus: http.StatusOK,
			wantCount:  2,
		},
		{
			name: "embedding failure",
			rec: recommenderFunc(func(context.Context, string) ([]recommend.Recommendation, error) {
				return nil, errors.New("embeddings down")
			}),
			wantStatus: http.StatusInternalServerError,
			wantDetail: "Failed to generate recommendations: embeddings down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newServer(t, api.Config{Recommender: tt.rec})
			status, body := get(t, srv.URL+"/recommendations/alice")
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", status, tt.wantStatus)
			}
			if tt.wantDetail != "" && body["detail"] != tt.wantDetail {
				t.Errorf("detail = %v, want %q", body["detail"], tt.wantDetail)
			}
			if tt.wantNote != "" && body["note"] != tt.wantNote {
				t.Errorf("note = %v, want %q", body["note"], tt.wantNote)
			}
			if tt.wantStatus == http.StatusOK {
				recs, ok := body["recommendations"].([]any)
				if !ok || len(recs) != tt.wantCount {
					t.Errorf("recommendations = %#v, want %d entries", body["recommendations"], tt.wantCount)
				}
			}
		})
	}
}

func TestRecognise(t *testing.T) {
	t.Parallel()

	validIntent := map[string]any{
		"product": "Milk", "quantity": 2, "category": "dairy", "action": "add", "status": "pending",
	}

	tests := []struct {
		name       string
		filename   string
		data       []byte
		sttText    string
		sttErr     error
		intent     map[string]any
		llmErr     error
		wantStatus int
		wantDetail string
	}{
		{name: "ok", filename: "clip.webm", data: []byte("RIFF"), sttText: "add two milk", intent: validIntent, wantStatus: http.StatusOK},
		{name: "no file", wantStatus: http.StatusBadRequest, wantDetail: "No file provided"},
		{name: "bad extension", filename: "clip.ogg", data: []byte("x"), wantStatus: http.StatusBadRequest,
			wantDetail: "Unsupported audio format. Please use .webm, .wav, .mp3, or .m4a"},
		{name: "empty", filename: "clip.wav", data: nil, wantStatus: http.StatusBadRequest, wantDetail: "Empty audio file"},
		{name: "invalid intent", filename: "clip.mp3", data: []byte("x"), sttText: "hello",
			intent: map[string]any{"product": "Milk"}, wantStatus: http.StatusBadRequest, wantDetail: "Invalid AI response format"},
		{name: "stt down", filename: "clip.m4a", data: []byte("x"), sttErr: errors.New("503 from upstream"),
			wantStatus: http.StatusInternalServerError, wantDetail: "Voice recognition failed: Transcription failed: 503 from upstream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := &sttmock.Transcriber{Text: tt.sttText, Err: tt.sttErr}
			ext := extractorFunc(func(context.Context, string) (map[string]any, error) {
				return tt.intent, tt.llmErr
			})
			srv := newServer(t, api.Config{Voice: voice.New(tr, ext)})

			status, body := upload(t, srv.URL+"/recognise_text_to_llm", tt.filename, tt.data)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %v)", status, tt.wantStatus, body)
			}
			if tt.wantDetail != "" && body["detail"] != tt.wantDetail {
				t.Errorf("detail = %v, want %q", body["detail"], tt.wantDetail)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if body["recognized_text"] != tt.sttText {
				t.Errorf("recognized_text = %v", body["recognized_text"])
			}
			llm, _ := body["llm_response"].(map[string]any)
			if llm["product"] != "Milk" || llm["action"] != "add" {
				t.Errorf("llm_response = %v", body["llm_response"])
			}
			calls := tr.Calls()
			if len(calls) != 1 || calls[0].Audio.Filename != tt.filename {
				t.Errorf("transcriber calls = %+v", calls)
			}
		})
	}
}

func TestRecognise_NotConfigured(t *testing.T) {
	t.Parallel()
	srv := newServer(t, api.Config{})
	status, body := upload(t, srv.URL+"/recognise_text_to_llm", "clip.wav", []byte("x"))
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, body %v", status, body)
	}
}

var _ api.VoiceProcessor = processorFunc(nil)

type processorFunc func(ctx context.Context, audio stt.Audio) (voice.Result, error)

func (f processorFunc) Process(ctx context.Context, audio stt.Audio) (voice.Result, error) {
	return f(ctx, audio)
}

func TestRecognise_UnexpectedError(t *testing.T) {
	t.Parallel()
	srv := newServer(t, api.Config{Voice: processorFunc(func(context.Context, stt.Audio) (voice.Result, error) {
		return voice.Result{}, errors.New("boom")
	})})
	status, body := upload(t, srv.URL+"/recognise_text_to_llm", "clip.wav", []byte("x"))
	if status != http.StatusInternalServerError || body["detail"] != "Voice recognition failed: boom" {
		t.Errorf("got %d %v", status, body)
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		allowed     []string
		origin      string
		wantAllowed string
	}{
		{name: "any origin", origin: "http://localhost:3000", wantAllowed: "http://localhost:3000"},
		{name: "listed origin", allowed: []string{"https://shop.example"}, origin: "https://shop.example", wantAllowed: "https://shop.example"},
		{name: "unlisted origin", allowed: []string{"https://shop.example"}, origin: "https://evil.example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newServer(t, api.Config{AllowedOrigins: tt.allowed})

			req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/update_wishlist/alice", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", "POST")
			req.Header.Set("Access-Control-Request-Headers", "content-type")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusNoContent {
				t.Errorf("preflight status = %d, want 204", resp.StatusCode)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.wantAllowed {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllowed)
			}
			if tt.wantAllowed == "" {
				return
			}
			if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
				t.Errorf("Allow-Credentials = %q", got)
			}
			if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "POST" {
				t.Errorf("Allow-Methods = %q", got)
			}
			if got := resp.Header.Get("Access-Control-Allow-Headers"); got != "content-type" {
				t.Errorf("Allow-Headers = %q", got)
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	srv := newServer(t, api.Config{})

	resp, err := http.Post(srv.URL+"/store", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /store = %d, want 405", resp.StatusCode)
	}
}
