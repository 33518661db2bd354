package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/polygon-locator/internal/common"
	"github.com/joseph-ayodele/polygon-locator/internal/spatial"
)

const layoutResult = `{
  "status": "succeeded",
  "analyzeResult": {
    "apiVersion": "2024-11-30",
    "modelId": "prebuilt-layout",
    "content": "Invoice Number INV-2024-001",
    "pages": [{
      "pageNumber": 1,
      "words": [
        {"content": "Invoice", "polygon": [1,1,2,1,2,2,1,2], "confidence": 0.99},
        {"content": "INV-2024-001", "polygon": [3,1,6,1,6,2,3,2], "confidence": 0.97}
      ],
      "lines": [{"content": "Invoice Number INV-2024-001", "polygon": [1,1,6,1,6,2,1,2]}]
    }, {
      "words": [{"content": "orphan"}]
    }],
    "keyValuePairs": [
      {
        "key": {"content": "Invoice Number", "boundingRegions": [{"pageNumber": 1, "polygon": [1,1,2,1,2,2,1,2]}]},
        "value": {"content": "INV-2024-001", "boundingRegions": [{"pageNumber": 1, "polygon": [3,1,6,1,6,2,3,2]}]},
        "confidence": 0.88
      },
      {"key": {"content": "Notes"}}
    ],
    "paragraphs": [
      {"content": "Invoice Number INV-2024-001", "role": "title", "boundingRegions": [{"polygon": [1,1,6,1,6,2,1,2]}]},
      {"content": "no regions"}
    ]
  }
}`

func TestNormalizeDocIntel(t *testing.T) {
	var res DocIntelResult
	if err := json.Unmarshal([]byte(layoutResult), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ix := NormalizeDocIntel(*res.AnalyzeResult)

	if ix.Content != "Invoice Number INV-2024-001" {
		t.Fatalf("content = %q", ix.Content)
	}
	if diff := cmp.Diff(spatial.Counts{Words: 3, Lines: 1, KeyValuePairs: 2, Paragraphs: 2}, ix.Counts()); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}

	orphan := ix.Words[2]
	if orphan.PageNumber != 1 || orphan.Points == nil || len(orphan.Points) != 0 || orphan.Confidence != nil {
		t.Fatalf("orphan word = %+v", orphan)
	}

	kv := ix.KeyValuePairs[0]
	want := []spatial.Polygon{{Points: []float64{3, 1, 6, 1, 6, 2, 3, 2}, PageNumber: 1}}
	if diff := cmp.Diff(want, kv.Value.BoundingPolygons); diff != "" {
		t.Fatalf("value polygons (-want +got):\n%s", diff)
	}
	if kv.Confidence == nil || *kv.Confidence != 0.88 {
		t.Fatalf("kv confidence = %v", kv.Confidence)
	}

	missing := ix.KeyValuePairs[1]
	if missing.Value.Content != "" || missing.Value.BoundingPolygons == nil || len(missing.Key.BoundingPolygons) != 0 {
		t.Fatalf("missing value = %+v", missing)
	}

	title := ix.Paragraphs[0]
	if title.Role == nil || *title.Role != "title" || title.BoundingPolygons[0].PageNumber != 1 {
		t.Fatalf("paragraph = %+v", title)
	}
	if ix.Paragraphs[1].BoundingPolygons == nil {
		t.Fatal("paragraph without regions must carry an empty list")
	}
}

func TestNormalizeDocIntelEmpty(t *testing.T) {
	b, err := json.Marshal(NormalizeDocIntel(DocIntelAnalyzeResult{}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"content":"","words":[],"lines":[],"keyValuePairs":[],"paragraphs":[]}` {
		t.Fatalf("got %s", b)
	}
}

func TestDocIntelAnalyze(t *testing.T) {
	var polls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "key-1" {
			http.Error(w, "missing key", http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost:
			if r.URL.Path != "/documentintelligence/documentModels/prebuilt-layout:analyze" {
				t.Errorf("path = %s", r.URL.Path)
			}
			if r.URL.Query().Get("features") != "keyValuePairs" || r.URL.Query().Get("api-version") != "2024-11-30" {
				t.Errorf("query = %s", r.URL.RawQuery)
			}
			if r.Header.Get("x-ms-useragent") != UserAgent {
				t.Errorf("user agent header = %q", r.Header.Get("x-ms-useragent"))
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != "%PDF-1.7" {
				t.Errorf("body = %q", body)
			}
			w.Header().Set("Operation-Location", srv.URL+"/operations/42")
			w.WriteHeader(http.StatusAccepted)
		case r.URL.Path == "/operations/42":
			if atomic.AddInt32(&polls, 1) == 1 {
				_, _ = io.WriteString(w, `{"status":"running"}`)
				return
			}
			_, _ = io.WriteString(w, layoutResult)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d, err := NewDocIntel(common.DocIntelConfig{Endpoint: srv.URL + "/", APIKey: "key-1", PollInterval: time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("NewDocIntel: %v", err)
	}
	ix, err := d.Analyze(context.Background(), Document{Name: "invoice.pdf", Data: []byte("%PDF-1.7")})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if atomic.LoadInt32(&polls) != 2 {
		t.Fatalf("polls = %d, want 2", polls)
	}
	if len(ix.KeyValuePairs) != 2 || ix.Words[1].Content != "INV-2024-001" {
		t.Fatalf("index = %+v", ix)
	}
}

func TestDocIntelAnalyzeWithAADToken(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tenant/token":
			_ = r.ParseForm()
			if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("scope") != cognitiveServicesScope {
				t.Errorf("token form = %v", r.Form)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`)
		case "/documentintelligence/documentModels/prebuilt-layout:analyze":
			if r.Header.Get("Authorization") != "Bearer tok-123" {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
			w.Header().Set("Operation-Location", srv.URL+"/operations/1")
			w.WriteHeader(http.StatusAccepted)
		case "/operations/1":
			_, _ = io.WriteString(w, `{"status":"succeeded","analyzeResult":{"content":"ok"}}`)
		}
	}))
	defer srv.Close()

	d, err := NewDocIntel(common.DocIntelConfig{
		Endpoint:     srv.URL,
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/tenant/token",
		PollInterval: time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewDocIntel: %v", err)
	}
	ix, err := d.Analyze(context.Background(), Document{Name: "a.png", Data: []byte{0x89}})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if ix.Content != "ok" || ix.Words == nil {
		t.Fatalf("index = %+v", ix)
	}
}

func TestDocIntelAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
		message string
	}{
		{
			name: "submit rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "InvalidRequest", http.StatusBadRequest)
			},
			status:  http.StatusBadRequest,
			message: "InvalidRequest",
		},
		{
			name: "analysis failed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodPost {
					w.Header().Set("Operation-Location", "http://"+r.Host+"/op")
					w.WriteHeader(http.StatusAccepted)
					return
				}
				_, _ = io.WriteString(w, `{"status":"failed","error":{"code":"InvalidContent","message":"corrupt file"}}`)
			},
			message: "analysis failed: InvalidContent: corrupt file",
		},
		{
			name: "missing operation location",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			},
			status:  http.StatusAccepted,
			message: "response carried no Operation-Location",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			d, err := NewDocIntel(common.DocIntelConfig{Endpoint: srv.URL, APIKey: "k", PollInterval: time.Millisecond}, nil)
			if err != nil {
				t.Fatalf("NewDocIntel: %v", err)
			}
			_, err = d.Analyze(context.Background(), Document{Name: "x.pdf"})
			var pe *common.ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want ProviderError", err)
			}
			if !errors.Is(err, common.ErrProviderCall) {
				t.Fatal("ProviderError must wrap ErrProviderCall")
			}
			if pe.StatusCode != tt.status || !strings.Contains(pe.Message, tt.message) {
				t.Fatalf("got status %d message %q", pe.StatusCode, pe.Message)
			}
		})
	}
}

func TestNewDocIntelRequiresConfig(t *testing.T) {
	_, err := NewDocIntel(common.DocIntelConfig{APIKey: "k"}, nil)
	if !errors.Is(err, common.ErrProviderConfig) {
		t.Fatalf("err = %v, want ErrProviderConfig", err)
	}
	_, err = NewDocIntel(common.DocIntelConfig{Endpoint: "https://x"}, nil)
	if !errors.Is(err, common.ErrProviderConfig) {
		t.Fatalf("err = %v, want ErrProviderConfig", err)
	}
}
