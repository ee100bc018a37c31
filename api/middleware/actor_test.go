package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/returns-engine/pkg/enums"
)

func actorRequest(role string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/returns/abc/refund", nil)
	if role != "" {
		req.Header.Set("X-Actor-Role", role)
		req.Header.Set("X-Actor-Id", uuid.NewString())
	}
	return req
}

func TestActorParsesHeadersIntoContext(t *testing.T) {
	var gotRole enums.ActorRole
	var gotID uuid.UUID
	handler := Actor(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := ActorRoleFromContext(r.Context())
		require.True(t, ok)
		gotRole = role
		id, ok := ActorIDFromContext(r.Context())
		require.True(t, ok)
		gotID = id
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, actorRequest("finance"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.ActorRoleFinance, gotRole)
	assert.NotEqual(t, uuid.Nil, gotID)
}

func TestRequireRolesAdmitsListedRole(t *testing.T) {
	called := false
	handler := Actor(nil)(RequireRoles(nil, enums.ActorRoleAdmin, enums.ActorRoleFinance)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, actorRequest("admin"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestRequireRolesRejectsUnlistedRole(t *testing.T) {
	called := false
	handler := Actor(nil)(RequireRoles(nil, enums.ActorRoleFinance, enums.ActorRoleSystem)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, actorRequest("admin"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)
}
