/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package token mints and redeems the single-use tokens that gate artifact
// transfers. A token is an opaque random string; everything the server needs
// to validate a transfer is stored server-side under the token key, so a
// worker can neither forge nor extend one.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/Aschie4589/QuantumHiveServer/pkg/config"
	"github.com/Aschie4589/QuantumHiveServer/pkg/ephemeral"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
	"github.com/Aschie4589/QuantumHiveServer/pkg/metrics"
	"github.com/Aschie4589/QuantumHiveServer/pkg/utils/json"
	"github.com/Aschie4589/QuantumHiveServer/pkg/utils/stringutil"
)

const (
	uploadKeyPrefix   = "upload_token:"
	downloadKeyPrefix = "download_token:"
)

// UploadClaims is the server-side state of an upload token. Only UserId is
// set at mint time; the rest is bound when the first chunk arrives and must
// stay consistent across the remaining chunks.
type UploadClaims struct {
	UserId      int64  `json:"user_id"`
	SessionId   string `json:"session_id,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	JobId       int64  `json:"job_id,omitempty"`
	FileType    string `json:"file_type,omitempty"`
	TotalChunks int    `json:"total_chunks,omitempty"`
}

// Bound reports whether the first chunk has fixed the session parameters.
func (c *UploadClaims) Bound() bool {
	return c.SessionId != ""
}

// DownloadClaims is the server-side state of a download token.
type DownloadClaims struct {
	FileId string `json:"file_id"`
	UserId int64  `json:"user_id"`
}

type Manager struct {
	store       ephemeral.Store
	uploadTTL   time.Duration
	downloadTTL time.Duration
}

func NewManager(store ephemeral.Store) *Manager {
	return &Manager{
		store:       store,
		uploadTTL:   time.Duration(config.GetUploadTokenTTLSecond()) * time.Second,
		downloadTTL: time.Duration(config.GetDownloadTokenTTLSecond()) * time.Second,
	}
}

// MintUpload issues a fresh upload token for the given claims.
func (m *Manager) MintUpload(ctx context.Context, claims UploadClaims) (string, error) {
	tok := stringutil.OpaqueToken()
	if err := m.store.SetEx(ctx, uploadKeyPrefix+tok, string(json.MarshalSilently(claims)), m.uploadTTL); err != nil {
		return "", err
	}
	metrics.TokensMinted.WithLabelValues("upload").Inc()
	return tok, nil
}

// GetUpload resolves an upload token to its claims. An unknown or expired
// token yields a transfer-token error.
func (m *Manager) GetUpload(ctx context.Context, tok string) (*UploadClaims, error) {
	payload, err := m.store.Get(ctx, uploadKeyPrefix+tok)
	if errors.Is(err, ephemeral.ErrNotFound) {
		return nil, hiveerrors.NewTransferTokenInvalid("upload token is unknown or expired")
	}
	if err != nil {
		return nil, err
	}
	var claims UploadClaims
	if err = json.Unmarshal([]byte(payload), &claims); err != nil {
		return nil, hiveerrors.NewInternalError(err.Error())
	}
	return &claims, nil
}

// BindUploadSession rewrites the token claims with the session binding and
// restarts the TTL, so a multi-chunk upload gets the full window again after
// its first chunk.
func (m *Manager) BindUploadSession(ctx context.Context, tok string, claims UploadClaims) error {
	return m.store.SetEx(ctx, uploadKeyPrefix+tok, string(json.MarshalSilently(claims)), m.uploadTTL)
}

// BurnUpload invalidates an upload token. Burning an already absent token is
// harmless.
func (m *Manager) BurnUpload(ctx context.Context, tok string) error {
	return m.store.Del(ctx, uploadKeyPrefix+tok)
}

// MintDownload issues a fresh download token for a stored artifact.
func (m *Manager) MintDownload(ctx context.Context, fileId string, userId int64) (string, error) {
	tok := stringutil.OpaqueToken()
	claims := DownloadClaims{FileId: fileId, UserId: userId}
	if err := m.store.SetEx(ctx, downloadKeyPrefix+tok, string(json.MarshalSilently(claims)), m.downloadTTL); err != nil {
		return "", err
	}
	metrics.TokensMinted.WithLabelValues("download").Inc()
	return tok, nil
}

// TakeDownload resolves a download token and burns it in the same step, so
// the first fetch is also the last.
func (m *Manager) TakeDownload(ctx context.Context, tok string) (*DownloadClaims, error) {
	payload, err := m.store.GetDel(ctx, downloadKeyPrefix+tok)
	if errors.Is(err, ephemeral.ErrNotFound) {
		return nil, hiveerrors.NewTransferTokenInvalid("download token is unknown or expired")
	}
	if err != nil {
		return nil, err
	}
	var claims DownloadClaims
	if err = json.Unmarshal([]byte(payload), &claims); err != nil {
		return nil, hiveerrors.NewInternalError(err.Error())
	}
	return &claims, nil
}
