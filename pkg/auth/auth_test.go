/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aschie4589/QuantumHiveServer/pkg/ephemeral"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
)

func newTestAuthenticator() *Authenticator {
	return &Authenticator{
		secret:     []byte("test-secret"),
		store:      ephemeral.NewMemoryStore(),
		accessTTL:  time.Hour,
		refreshTTL: 720 * time.Hour,
		now:        time.Now,
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	assert.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)
	assert.True(t, VerifyPassword("hunter2", hash))
	assert.False(t, VerifyPassword("hunter3", hash))
}

func TestIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator()

	access, refresh, err := a.IssuePair("worker-1")
	assert.NoError(t, err)
	assert.NotEqual(t, access, refresh)

	claims, err := a.Verify(ctx, access, TokenTypeAccess)
	assert.NoError(t, err)
	assert.Equal(t, "worker-1", claims.Subject)
	assert.Equal(t, TokenTypeAccess, claims.Type)

	claims, err = a.Verify(ctx, refresh, TokenTypeRefresh)
	assert.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, claims.Type)
}

func TestVerifyRejectsWrongType(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator()

	access, refresh, err := a.IssuePair("worker-1")
	assert.NoError(t, err)

	_, err = a.Verify(ctx, refresh, TokenTypeAccess)
	assert.True(t, hiveerrors.IsBadRequest(err))
	_, err = a.Verify(ctx, access, TokenTypeRefresh)
	assert.True(t, hiveerrors.IsBadRequest(err))
}

func TestVerifyRejectsExpired(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator()
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	access, _, err := a.IssuePair("worker-1")
	assert.NoError(t, err)

	a.now = time.Now
	_, err = a.Verify(ctx, access, TokenTypeAccess)
	assert.True(t, hiveerrors.IsUnauthorized(err))
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator()
	other := newTestAuthenticator()
	other.secret = []byte("different-secret")

	access, _, err := other.IssuePair("worker-1")
	assert.NoError(t, err)

	_, err = a.Verify(ctx, access, TokenTypeAccess)
	assert.True(t, hiveerrors.IsUnauthorized(err))
}

func TestRotateRevokesOldRefresh(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator()

	_, refresh, err := a.IssuePair("worker-1")
	assert.NoError(t, err)

	access2, refresh2, err := a.Rotate(ctx, refresh)
	assert.NoError(t, err)
	assert.NotEmpty(t, access2)
	assert.NotEqual(t, refresh, refresh2)

	_, _, err = a.Rotate(ctx, refresh)
	assert.True(t, hiveerrors.IsUnauthorized(err))

	_, err = a.Verify(ctx, refresh2, TokenTypeRefresh)
	assert.NoError(t, err)
}

func TestRevokedAccessToken(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator()

	access, _, err := a.IssuePair("worker-1")
	assert.NoError(t, err)
	assert.NoError(t, a.Revoke(ctx, access))

	_, err = a.Verify(ctx, access, TokenTypeAccess)
	assert.True(t, hiveerrors.IsUnauthorized(err))
}
