package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
	Setup()
}

func TestIsAccessCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"BIO101", true},
		{"ROOM-7A", true},
		{"ABC", false},
		{"bio101", false},
		{"BIO 101", false},
		{strings.Repeat("A", 32), true},
		{strings.Repeat("A", 33), false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsAccessCode(tt.code); got != tt.want {
			t.Errorf("IsAccessCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

type joinPayload struct {
	AccessCode string `json:"access_code" binding:"required,accesscode"`
}

func TestBindTranslatesAccessCode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"access_code":"BIO101"}`, ""},
		{"lower case", `{"access_code":"bio101"}`, "access_code must be 4-32 upper-case letters, digits or dashes"},
		{"missing", `{}`, "access_code is a required field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var p joinPayload
			fields := Bind(c, &p)
			if tt.wantErr == "" {
				if fields != nil {
					t.Fatalf("unexpected errors %v", fields)
				}
				return
			}
			if fields["access_code"] != tt.wantErr {
				t.Fatalf("fields = %v, want access_code=%q", fields, tt.wantErr)
			}
		})
	}
}

func TestTranslateErrorsFallsBackToDetail(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"access_code":`))
	c.Request.Header.Set("Content-Type", "application/json")

	var p joinPayload
	fields := Bind(c, &p)
	if _, ok := fields["detail"]; !ok {
		t.Fatalf("fields = %v, want detail", fields)
	}
}
