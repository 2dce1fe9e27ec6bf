/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package uploader receives artifact chunks and assembles them into files.
//
// Every chunk presents a single-use upload token. The first chunk of a
// session binds the token to that session, the job, the artifact type and
// the chunk count; later chunks must agree with the binding. Once all parts
// are on disk the uploader concatenates them in index order, registers the
// file and burns the token. A failed chunk leaves the token alive so the
// worker can retry.
package uploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/Aschie4589/QuantumHiveServer/pkg/config"
	dbclient "github.com/Aschie4589/QuantumHiveServer/pkg/database/client"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
	"github.com/Aschie4589/QuantumHiveServer/pkg/metrics"
	"github.com/Aschie4589/QuantumHiveServer/pkg/storage/s3"
	"github.com/Aschie4589/QuantumHiveServer/pkg/token"
	"github.com/Aschie4589/QuantumHiveServer/pkg/utils/backoff"
	"github.com/Aschie4589/QuantumHiveServer/pkg/utils/stringutil"
)

const (
	maxTotalChunks = 65536

	fileIdRetries       = 3
	fileIdRetryInterval = 10 * time.Millisecond
)

// Session ids end up in part file names, so only give them one shape.
var sessionIdPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// Chunk is one piece of an artifact upload.
type Chunk struct {
	JobId       int64
	FileType    string
	SessionId   string
	Index       int
	TotalChunks int
	Data        io.Reader
}

// Result reports what happened to a chunk. FileId is set once the final
// chunk completed the file.
type Result struct {
	Assembled bool
	FileId    string
	Message   string
}

type Assembler struct {
	db       dbclient.Interface
	tokens   *token.Manager
	archiver s3.Interface
	savePath string
	tmpPath  string

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// NewAssembler prepares the storage directories and returns the assembler.
// The archiver may be nil, in which case finished files stay local only.
func NewAssembler(db dbclient.Interface, tokens *token.Manager, archiver s3.Interface) (*Assembler, error) {
	savePath := config.GetStorageSavePath()
	tmpPath := config.GetStorageTmpPath()
	if err := os.MkdirAll(savePath, 0o750); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(tmpPath, 0o750); err != nil {
		return nil, err
	}
	return &Assembler{
		db:       db,
		tokens:   tokens,
		archiver: archiver,
		savePath: savePath,
		tmpPath:  tmpPath,
		sessions: make(map[string]*sync.Mutex),
	}, nil
}

// Process handles one chunk presented with an upload token.
//
// The token survives every failure except two terminal ones: a session
// mismatch and a duplicate part, both of which burn it. Success on the last
// chunk burns it as well.
func (a *Assembler) Process(ctx context.Context, tok string, userId int64, chunk *Chunk) (*Result, error) {
	claims, err := a.tokens.GetUpload(ctx, tok)
	if err != nil {
		return nil, err
	}
	if claims.UserId != userId {
		return nil, hiveerrors.NewTokenUserMismatch("upload token belongs to another user")
	}
	if err = validateChunk(chunk); err != nil {
		return nil, err
	}

	if !claims.Bound() {
		claims.SessionId = chunk.SessionId
		claims.JobId = chunk.JobId
		claims.FileType = chunk.FileType
		claims.TotalChunks = chunk.TotalChunks
		claims.FilePath = filepath.Join(a.savePath, uuid.NewString()+".dat")
		if err = a.tokens.BindUploadSession(ctx, tok, *claims); err != nil {
			return nil, err
		}
	} else {
		if claims.SessionId != chunk.SessionId {
			a.burn(ctx, tok)
			return nil, hiveerrors.NewSessionMismatch("upload token is bound to another session")
		}
		if claims.JobId != chunk.JobId || claims.FileType != chunk.FileType || claims.TotalChunks != chunk.TotalChunks {
			return nil, hiveerrors.NewChunkConflict("chunk parameters disagree with the first chunk of this session")
		}
	}

	lock := a.sessionLock(claims.SessionId)
	lock.Lock()
	defer lock.Unlock()

	partPath := a.partPath(claims.SessionId, chunk.Index)
	if _, err = os.Stat(partPath); err == nil {
		a.burn(ctx, tok)
		return nil, hiveerrors.NewChunkConflict(fmt.Sprintf("chunk %d of session %s was already received", chunk.Index, claims.SessionId))
	} else if !os.IsNotExist(err) {
		return nil, hiveerrors.NewInternalError(err.Error())
	}
	if err = writePart(partPath, chunk.Data); err != nil {
		return nil, hiveerrors.NewInternalError(err.Error())
	}
	metrics.ChunksReceived.Inc()

	for i := 1; i <= claims.TotalChunks; i++ {
		if _, err = os.Stat(a.partPath(claims.SessionId, i)); err != nil {
			return &Result{Message: fmt.Sprintf("chunk %d of %d accepted", chunk.Index, claims.TotalChunks)}, nil
		}
	}
	return a.assemble(ctx, tok, claims)
}

// assemble concatenates the parts, registers the file, attaches it to the
// job and burns the token. Called with the session lock held.
func (a *Assembler) assemble(ctx context.Context, tok string, claims *token.UploadClaims) (*Result, error) {
	checksum, err := a.concatParts(claims)
	if err != nil {
		return nil, hiveerrors.NewInternalError(err.Error())
	}
	for i := 1; i <= claims.TotalChunks; i++ {
		if err = os.Remove(a.partPath(claims.SessionId, i)); err != nil {
			klog.ErrorS(err, "failed to remove part file", "session", claims.SessionId, "index", i)
		}
	}

	var fileId string
	err = backoff.ConflictRetry(func() error {
		fileId = stringutil.ShortID()
		return a.db.CreateFile(ctx, &dbclient.File{
			Id:       fileId,
			Type:     claims.FileType,
			FullPath: claims.FilePath,
			Checksum: checksum,
		})
	}, fileIdRetries, fileIdRetryInterval)
	if err != nil {
		return nil, err
	}
	if err = a.db.SetJobArtifact(ctx, claims.JobId, claims.FileType, fileId); err != nil {
		return nil, err
	}
	if err = a.tokens.BurnUpload(ctx, tok); err != nil {
		return nil, err
	}
	a.dropSessionLock(claims.SessionId)
	metrics.FilesAssembled.Inc()

	if a.archiver != nil {
		if err = a.archiver.ArchiveFile(ctx, a.archiver.ObjectKey(fileId), claims.FilePath); err != nil {
			klog.ErrorS(err, "failed to archive artifact", "file", fileId)
		}
	}
	klog.Infof("assembled file %s for job %d (%s, %d chunks)", fileId, claims.JobId, claims.FileType, claims.TotalChunks)
	return &Result{Assembled: true, FileId: fileId, Message: "file uploaded and assembled"}, nil
}

// concatParts writes the final file from the parts in index order and
// returns the xxhash checksum of the whole content. Truncating lets a
// session whose registration failed after assembly re-upload and try again.
func (a *Assembler) concatParts(claims *token.UploadClaims) (string, error) {
	out, err := os.OpenFile(claims.FilePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return "", err
	}
	hash := xxhash.New()
	w := io.MultiWriter(out, hash)
	for i := 1; i <= claims.TotalChunks; i++ {
		if err = appendPart(w, a.partPath(claims.SessionId, i)); err != nil {
			out.Close()
			os.Remove(claims.FilePath)
			return "", err
		}
	}
	if err = out.Close(); err != nil {
		os.Remove(claims.FilePath)
		return "", err
	}
	return fmt.Sprintf("%016x", hash.Sum64()), nil
}

func (a *Assembler) partPath(sessionId string, index int) string {
	return filepath.Join(a.tmpPath, fmt.Sprintf("%s_%d.tmp", sessionId, index))
}

func (a *Assembler) sessionLock(sessionId string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.sessions[sessionId]
	if !ok {
		lock = &sync.Mutex{}
		a.sessions[sessionId] = lock
	}
	return lock
}

func (a *Assembler) dropSessionLock(sessionId string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionId)
}

func (a *Assembler) burn(ctx context.Context, tok string) {
	if err := a.tokens.BurnUpload(ctx, tok); err != nil {
		klog.ErrorS(err, "failed to burn upload token")
	}
}

func validateChunk(chunk *Chunk) error {
	if chunk == nil || chunk.Data == nil {
		return hiveerrors.NewBadRequest("the chunk is empty")
	}
	if !sessionIdPattern.MatchString(chunk.SessionId) {
		return hiveerrors.NewBadRequest("session_id is missing or malformed")
	}
	if chunk.JobId <= 0 {
		return hiveerrors.NewBadRequest("job_id is required")
	}
	if chunk.FileType != dbclient.FileTypeKraus && chunk.FileType != dbclient.FileTypeVector {
		return hiveerrors.NewBadRequest(fmt.Sprintf("unknown file type %q", chunk.FileType))
	}
	if chunk.TotalChunks < 1 || chunk.TotalChunks > maxTotalChunks {
		return hiveerrors.NewBadRequest("total_chunks is out of range")
	}
	if chunk.Index < 1 || chunk.Index > chunk.TotalChunks {
		return hiveerrors.NewBadRequest("chunk_index is out of range")
	}
	return nil
}

func appendPart(w io.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(w, in)
	return err
}

func writePart(path string, data io.Reader) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, data); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	return out.Close()
}
