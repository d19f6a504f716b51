package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeInvalidator struct {
	prefixes []string
}

func (f *fakeInvalidator) DeletePrefix(ctx context.Context, prefix string) error {
	f.prefixes = append(f.prefixes, prefix)
	return nil
}

func newCacheRouter(cache *fakeInvalidator, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CacheInvalidation(cache, "dashboard:", zap.NewNop()))
	handler := func(c *gin.Context) { c.Status(status) }
	r.GET("/things", handler)
	r.POST("/things", handler)
	r.DELETE("/things", handler)
	return r
}

func TestCacheInvalidationFlushesOnWrite(t *testing.T) {
	cache := &fakeInvalidator{}
	r := newCacheRouter(cache, http.StatusCreated)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/things", nil))

	assert.Equal(t, []string{"dashboard:"}, cache.prefixes)
}

func TestCacheInvalidationSkipsReads(t *testing.T) {
	cache := &fakeInvalidator{}
	r := newCacheRouter(cache, http.StatusOK)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things", nil))

	assert.Empty(t, cache.prefixes)
}

func TestCacheInvalidationSkipsFailedWrites(t *testing.T) {
	cache := &fakeInvalidator{}
	r := newCacheRouter(cache, http.StatusBadRequest)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/things", nil))

	assert.Empty(t, cache.prefixes)
}
