/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package s3

import (
	"context"
	"io"
)

// Interface is the archival surface the rest of the server depends on.
// Artifacts stay on local disk as the source of truth; the bucket holds
// best-effort copies keyed under the configured prefix.
type Interface interface {
	EnsureBucket(ctx context.Context) error
	ArchiveFile(ctx context.Context, key, localPath string) error
	PutObject(ctx context.Context, key string, body io.ReadSeeker) error
	GetObjectStream(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, key string) error
	ObjectKey(fileId string) string
}
