package handlers

import (
	"net/http"
	"testing"

	"github.com/mediagallery/backend/internal/models"
)

func TestContactEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	author, authorToken := createTestUser(t, env.db, "contact-author@test.com", "password123", models.UserRoleUser)
	_, otherToken := createTestUser(t, env.db, "contact-other@test.com", "password123", models.UserRoleUser)
	_, adminToken := createTestUser(t, env.db, "contact-admin@test.com", "password123", models.UserRoleAdmin)

	var messageID string

	t.Run("POST /api/contact creates a message", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/contact/", map[string]any{
			"message": "The upload form keeps spinning.",
		}, authHeaders(authorToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)
		data := body["data"].(map[string]any)
		messageID = data["id"].(string)
		if data["message"] != "The upload form keeps spinning." {
			t.Fatalf("unexpected message body: %+v", data)
		}
		if data["authorID"] != author.ID.String() {
			t.Fatalf("expected author %s, got %v", author.ID, data["authorID"])
		}
	})

	t.Run("POST /api/contact rejects an empty message", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/contact/", map[string]any{
			"message": "   ",
		}, authHeaders(authorToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "message is required")
	})

	t.Run("GET /api/contact lists only the caller's messages", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/contact/", nil, authHeaders(authorToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		if items := body["data"].([]any); len(items) != 1 {
			t.Fatalf("expected 1 message for the author, got %d", len(items))
		}

		resp = performRequest(t, env.app, http.MethodGet, "/api/contact/", nil, authHeaders(otherToken))
		body = decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		if items := body["data"].([]any); len(items) != 0 {
			t.Fatalf("expected no messages for another user, got %d", len(items))
		}
	})

	t.Run("PUT /api/contact/:id author edits their message", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/contact/"+messageID, map[string]any{
			"message": "The upload form keeps spinning on large files.",
		}, authHeaders(authorToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if data["message"] != "The upload form keeps spinning on large files." {
			t.Fatalf("expected updated body, got %+v", data)
		}
	})

	t.Run("PUT /api/contact/:id is author-only, even for admins", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/contact/"+messageID, map[string]any{
			"message": "rewritten by someone else",
		}, authHeaders(otherToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "access denied")

		resp = performJSONRequest(t, env.app, http.MethodPut, "/api/contact/"+messageID, map[string]any{
			"message": "rewritten by admin",
		}, authHeaders(adminToken))
		body = decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "access denied")
	})

	t.Run("GET /api/contact/admin/all is admin-only and includes authors", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/contact/admin/all", nil, authHeaders(authorToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "admin access required")

		resp = performRequest(t, env.app, http.MethodGet, "/api/contact/admin/all", nil, authHeaders(adminToken))
		body = decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		items := body["data"].([]any)
		if len(items) != 1 {
			t.Fatalf("expected 1 message, got %d", len(items))
		}
		item := items[0].(map[string]any)
		authorData, _ := item["author"].(map[string]any)
		if authorData == nil || authorData["email"] != author.Email {
			t.Fatalf("expected author to be preloaded, got %+v", item)
		}
	})

	t.Run("DELETE /api/contact/:id stranger cannot delete", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/contact/"+messageID, nil, authHeaders(otherToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "access denied")
	})

	t.Run("DELETE /api/contact/:id admin deletes any message", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/contact/admin/"+messageID, nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)

		resp = performRequest(t, env.app, http.MethodDelete, "/api/contact/"+messageID, nil, authHeaders(authorToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "message not found")
	})

	t.Run("DELETE /api/contact/:id author deletes their own message", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/contact/", map[string]any{
			"message": "please delete me",
		}, authHeaders(authorToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)
		id := body["data"].(map[string]any)["id"].(string)

		resp = performRequest(t, env.app, http.MethodDelete, "/api/contact/"+id, nil, authHeaders(authorToken))
		assertStatus(t, resp, http.StatusOK)
	})
}
