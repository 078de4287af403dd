package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AnTengye/leaseflow/model"
	"github.com/AnTengye/leaseflow/service"
	"github.com/gin-gonic/gin"
)

const testEventSecret = "counterpart-secret"

func setupEventsTest(t *testing.T, secret string) (*service.MemoryStore, *gin.Engine) {
	t.Helper()
	store := service.NewMemoryStore()
	handler := NewEventsHandler(service.NewOrchestrator(store, nil, nil, nil), secret)

	router := gin.New()
	router.POST("/events/counterpart", handler.HandleCounterpart)
	return store, router
}

func postEvent(router *gin.Engine, checksum, content string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(EventRequest{Checksum: checksum, Content: content})
	req := httptest.NewRequest("POST", "/events/counterpart", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func eventContent(event, contractID string) string {
	data, _ := json.Marshal(map[string]string{
		"event":       event,
		"contract_id": contractID,
		"occurred_at": "2026-05-01T12:00:00Z",
	})
	return string(data)
}

func TestEventsHandlerAppliesSignedEvents(t *testing.T) {
	store, router := setupEventsTest(t, testEventSecret)
	if _, err := store.Create(context.Background(), &model.Contract{ID: "c-1", Account: "acme", Status: model.StatusSentToTenant}); err != nil {
		t.Fatalf("Failed to seed contract: %v", err)
	}

	steps := []struct {
		event    string
		expected model.Status
	}{
		{"tenant_signed", model.StatusSignedByTenant},
		{"finalized", model.StatusCompleted},
	}
	for _, step := range steps {
		content := eventContent(step.event, "c-1")
		w := postEvent(router, Checksum(testEventSecret, content), content)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200 for %s, got %d: %s", step.event, w.Code, w.Body.String())
		}

		c, err := store.Get(context.Background(), "c-1")
		if err != nil {
			t.Fatalf("Failed to load contract: %v", err)
		}
		if c.Status != step.expected {
			t.Errorf("Expected status %s after %s, got %s", step.expected, step.event, c.Status)
		}
	}
}

func TestEventsHandlerRejects(t *testing.T) {
	store, router := setupEventsTest(t, testEventSecret)
	if _, err := store.Create(context.Background(), &model.Contract{ID: "c-1", Account: "acme", Status: model.StatusDraft}); err != nil {
		t.Fatalf("Failed to seed contract: %v", err)
	}

	signed := func(content string) (string, string) {
		return Checksum(testEventSecret, content), content
	}

	tests := []struct {
		name           string
		checksum       string
		content        string
		expectedStatus int
	}{
		{
			name:           "wrong checksum",
			checksum:       Checksum("other-secret", eventContent("tenant_signed", "c-1")),
			content:        eventContent("tenant_signed", "c-1"),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "checksum not hex",
			checksum:       "zz",
			content:        eventContent("tenant_signed", "c-1"),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unknown event",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "not from sent_to_tenant",
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "unknown contract",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "malformed content",
			expectedStatus: http.StatusBadRequest,
		},
	}
	tests[2].checksum, tests[2].content = signed(eventContent("archived", "c-1"))
	tests[3].checksum, tests[3].content = signed(eventContent("tenant_signed", "c-1"))
	tests[4].checksum, tests[4].content = signed(eventContent("finalized", "missing"))
	tests[5].checksum, tests[5].content = signed("not json")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postEvent(router, tt.checksum, tt.content)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}

	c, _ := store.Get(context.Background(), "c-1")
	if c.Status != model.StatusDraft {
		t.Errorf("Expected rejected events to leave the contract in draft, got %s", c.Status)
	}
}

func TestEventsHandlerWithoutSecret(t *testing.T) {
	store, router := setupEventsTest(t, "")
	if _, err := store.Create(context.Background(), &model.Contract{ID: "c-1", Account: "acme", Status: model.StatusSentToTenant}); err != nil {
		t.Fatalf("Failed to seed contract: %v", err)
	}

	content := eventContent("tenant_signed", "c-1")
	w := postEvent(router, Checksum("", content), content)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without a configured secret, got %d", w.Code)
	}
}
