package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wb_catalog_v1_202610/internal/controller"
	"wb_catalog_v1_202610/internal/service"
	"wb_catalog_v1_202610/internal/task"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTrigger struct{ n int }

func (f *fakeTrigger) Start(string) (string, error) {
	f.n++
	return "run-x", nil
}
func (f *fakeTrigger) IsRunning() bool       { return false }
func (f *fakeTrigger) Last() *task.RunReport { return nil }

func TestRouter_TriggerCooldown(t *testing.T) {
	trigger := &fakeTrigger{}
	mirrors := service.NewMirrorService(nil, nil, service.MirrorConfig{HostTemplate: "https://basket-%02d.test", Min: 20, Max: 30}, nil)
	r := New(controller.NewRunController(trigger, nil, nil, mirrors, nil), Options{TriggerCooldown: time.Minute})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/runs", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	// 冷却期内
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/runs", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 1, trigger.n)

	// 只读接口不受限
	for i := 0; i < 3; i++ {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/mirrors", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_NoCooldown(t *testing.T) {
	trigger := &fakeTrigger{}
	mirrors := service.NewMirrorService(nil, nil, service.MirrorConfig{HostTemplate: "https://basket-%02d.test", Min: 20, Max: 30}, nil)
	r := New(controller.NewRunController(trigger, nil, nil, mirrors, nil), Options{})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/runs", nil))
		assert.Equal(t, http.StatusAccepted, w.Code)
	}
	assert.Equal(t, 3, trigger.n)
}

func TestRouter_SwaggerDoc(t *testing.T) {
	mirrors := service.NewMirrorService(nil, nil, service.MirrorConfig{HostTemplate: "https://basket-%02d.test", Min: 20, Max: 30}, nil)
	r := New(controller.NewRunController(&fakeTrigger{}, nil, nil, mirrors, nil), Options{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Swagger string                    `json:"swagger"`
		Info    map[string]any            `json:"info"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "2.0", doc.Swagger)
	assert.Equal(t, "wb-catalog API", doc.Info["title"])
	assert.Contains(t, doc.Paths["/api/runs"], "post")
	assert.Contains(t, doc.Paths, "/api/runs/{run_id}")
	assert.Contains(t, doc.Paths, "/api/mirrors")
}
