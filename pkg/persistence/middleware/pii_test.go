package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
	"github.com/aretw0/canopy/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlying := NewMockStore()
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	require.NoError(t, err)
	secure := mw(underlying)

	ctx := context.Background()
	id := domain.NewIdentity(1, 1)
	snap := &memory.Snapshot{Identity: id, Vars: map[string]any{
		"username":      "jdoe",
		"user_password": "secret123",
		"details": map[string]any{
			"address":    "123 St",
			"ssn_number": "999-99-9999",
		},
		"safe_data": "public",
	}}
	require.NoError(t, secure.Save(ctx, id, snap))

	assert.Equal(t, "secret123", snap.Vars["user_password"], "the caller's snapshot is untouched")
	assert.Equal(t, "999-99-9999", snap.Vars["details"].(map[string]any)["ssn_number"])

	stored, err := underlying.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "jdoe", stored.Vars["username"])
	assert.Equal(t, middleware.Mask, stored.Vars["user_password"])
	assert.Equal(t, middleware.Mask, stored.Vars["details"].(map[string]any)["ssn_number"])
	assert.Equal(t, "123 St", stored.Vars["details"].(map[string]any)["address"])
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_Order(t *testing.T) {
	underlying := NewMockStore()
	pii, err := middleware.NewPIIMiddleware([]string{"token"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(underlying, pii, enc)
	ctx := context.Background()
	id := domain.NewIdentity(4, 4)
	require.NoError(t, store.Save(ctx, id, &memory.Snapshot{Identity: id, Vars: map[string]any{"token": "abc", "name": "ana"}}))

	stored, err := underlying.Load(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, stored.Vars, "__encrypted__", "encryption is innermost")

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Vars["token"], "masking ran before sealing")
	assert.Equal(t, "ana", loaded.Vars["name"])
}
