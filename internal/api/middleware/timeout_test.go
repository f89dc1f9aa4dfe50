package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRequestTimeout_Disabled(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		r := gin.New()
		r.Use(RequestTimeout(d))
		var hasDeadline bool
		r.GET("/clients", func(c *gin.Context) {
			_, hasDeadline = c.Request.Context().Deadline()
			c.String(http.StatusOK, "ok")
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/clients", nil))

		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", d, w.Code)
		}
		if hasDeadline {
			t.Errorf("%s: expected no deadline", d)
		}
	}
}

func TestRequestTimeout_FastHandler(t *testing.T) {
	r := gin.New()
	r.Use(RequestTimeout(5 * time.Second))
	var hasDeadline bool
	r.GET("/clients", func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/clients", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if !hasDeadline {
		t.Error("expected context to have deadline")
	}
}

func TestRequestTimeout_SlowHandlerGets504(t *testing.T) {
	r := gin.New()
	r.Use(RequestTimeout(50 * time.Millisecond))
	r.GET("/notifications", func(c *gin.Context) {
		select {
		case <-time.After(200 * time.Millisecond):
			c.String(http.StatusOK, "ok")
		case <-c.Request.Context().Done():
		}
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications", nil))

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("expected status 504, got %d", w.Code)
	}
}

func TestRequestTimeout_WrittenResponseIsKept(t *testing.T) {
	r := gin.New()
	r.Use(RequestTimeout(50 * time.Millisecond))
	r.GET("/notifications", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
		<-c.Request.Context().Done()
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/notifications", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 (already written), got %d", w.Code)
	}
}
