package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codec-agences/admin-backend/internal/apperr"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		remote string
		want   string
	}{
		{"socket address", "", "192.0.2.7:51234", "192.0.2.7"},
		{"forwarded single", "203.0.113.9", "10.0.0.1:80", "203.0.113.9"},
		{"forwarded chain", " 203.0.113.9 , 10.0.0.2", "10.0.0.1:80", "203.0.113.9"},
		{"empty first entry", ", 10.0.0.2", "10.0.0.1:80", "10.0.0.1"},
		{"no port", "", "192.0.2.7", "192.0.2.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

type loginBody struct {
	Username string `json:"username" validate:"required,max=10"`
	Password string `json:"password" validate:"required"`
}

func TestDecodeJSON(t *testing.T) {
	var body loginBody
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"alice","password":"pw"}`))
	if err := DecodeJSON(r, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Username != "alice" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestDecodeJSON_ValidationDetails(t *testing.T) {
	var body loginBody
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"averyveryverylongname"}`))

	err := DecodeJSON(r, &body)
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(appErr.Details["username"]) != 1 || len(appErr.Details["password"]) != 1 {
		t.Errorf("expected details keyed by json name, got %v", appErr.Details)
	}
}

func TestDecodeJSON_Malformed(t *testing.T) {
	var body loginBody
	err := DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)), &body)
	if apperr.From(err).Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReadJSONFields_RestoresBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"alice","age":3}`))

	fields, err := ReadJSONFields(r)
	if err != nil {
		t.Fatal(err)
	}
	if fields["username"] != "alice" {
		t.Errorf("unexpected fields %v", fields)
	}

	rest, _ := io.ReadAll(r.Body)
	if string(rest) != `{"username":"alice","age":3}` {
		t.Errorf("body not restored: %q", rest)
	}
}

func TestReadJSONFields_NonObject(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`["a"]`))
	fields, err := ReadJSONFields(r)
	if err != nil || len(fields) != 0 {
		t.Errorf("expected empty fields for non-object body, got %v %v", fields, err)
	}
}
