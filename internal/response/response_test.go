package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
		reuse  bool
	}{
		{"minted when absent", "", false},
		{"caller id reused", "trace-123", true},
		{"oversized id replaced", strings.Repeat("x", maxRequestIDLen+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestIDMiddleware())
			r.GET("/", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"ok": true}) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(HeaderRequestID, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			var env Response
			if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			got := w.Header().Get(HeaderRequestID)
			if got == "" || env.Metadata.RequestID != got {
				t.Fatalf("header %q, metadata %q", got, env.Metadata.RequestID)
			}
			if (got == tt.header) != tt.reuse {
				t.Fatalf("request id %q, reuse = %v", got, tt.reuse)
			}
		})
	}
}

func TestAcceptedAndFail(t *testing.T) {
	r := gin.New()
	r.PUT("/queued", func(c *gin.Context) { Accepted(c, gin.H{"option_id": "o1"}) })
	r.GET("/bad", func(c *gin.Context) {
		FailWithFields(c, http.StatusBadRequest, ErrValidation, map[string]string{"title": "is required"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/queued", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))
	var env Response
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != ErrValidation {
		t.Fatalf("status = %d, error = %+v", w.Code, env.Error)
	}
	if env.Data != nil {
		t.Fatalf("data = %v, want null on failure", env.Data)
	}
	if env.Error.Fields["title"] == "" || env.Metadata.RequestID == "" {
		t.Fatalf("fields = %v, request id = %q", env.Error.Fields, env.Metadata.RequestID)
	}
}
