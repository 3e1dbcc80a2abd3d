package clientinfo

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    Info
		wantErr bool
	}{
		{
			name:   "full declaration",
			header: `app="customer", version="2.4.0", platform="web"`,
			want:   Info{App: "customer", Version: "2.4.0", Platform: "web"},
		},
		{
			name:   "platform optional",
			header: `app="admin", version="1.0.0"`,
			want:   Info{App: "admin", Version: "1.0.0"},
		},
		{
			name:   "item parameters ignored",
			header: `app="customer";build=42, version="2.4.0"`,
			want:   Info{App: "customer", Version: "2.4.0"},
		},
		{name: "empty header", header: "", wantErr: true},
		{name: "missing app", header: `version="2.4.0"`, wantErr: true},
		{name: "missing version", header: `app="customer"`, wantErr: true},
		{name: "non-semver version", header: `app="customer", version="latest"`, wantErr: true},
		{name: "malformed dictionary", header: `app=`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeader(tt.header)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseHeader(%q) succeeded with %+v, want error", tt.header, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHeader(%q): %v", tt.header, err)
			}
			if got != tt.want {
				t.Fatalf("ParseHeader(%q) = %+v, want %+v", tt.header, got, tt.want)
			}
		})
	}
}

func TestCheckMinVersion(t *testing.T) {
	tests := []struct {
		version string
		min     string
		wantErr bool
	}{
		{"2.4.0", "2.0.0", false},
		{"2.0.0", "2.0.0", false},
		{"1.9.9", "2.0.0", true},
		{"2.4.0", "", false},
		{"10.0.0", "9.0.0", false},
	}

	for _, tt := range tests {
		err := CheckMinVersion(tt.version, tt.min)
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckMinVersion(%q, %q) = %v, wantErr %v", tt.version, tt.min, err, tt.wantErr)
		}
		if err != nil {
			var verErr *VersionError
			if !errors.As(err, &verErr) {
				t.Errorf("CheckMinVersion(%q, %q) error type = %T", tt.version, tt.min, err)
			}
		}
	}
}

func newTestHandler(minVersion string) (http.Handler, *Info) {
	var captured Info
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info, ok := FromContext(r.Context()); ok {
			captured = info
		}
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(minVersion, logger)(inner), &captured
}

func TestMiddlewareAcceptsDeclaredClient(t *testing.T) {
	h, captured := newTestHandler("2.0.0")

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(Header, `app="customer", version="2.4.0", platform="web"`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if captured.App != "customer" || captured.Version != "2.4.0" {
		t.Fatalf("context info = %+v", *captured)
	}
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	h, _ := newTestHandler("")

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMiddlewareRejectsOutdatedVersion(t *testing.T) {
	h, _ := newTestHandler("2.0.0")

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(Header, `app="customer", version="1.5.0"`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUpgradeRequired {
		t.Fatalf("status = %d, want 426", rec.Code)
	}
}

func TestMiddlewareExemptsInfrastructurePaths(t *testing.T) {
	h, _ := newTestHandler("2.0.0")

	for _, path := range []string{"/health", "/healthz", "/.well-known/orderflow"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200 without header", path, rec.Code)
		}
	}
}
