/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/Aschie4589/QuantumHiveServer/pkg/config"
	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
	"github.com/Aschie4589/QuantumHiveServer/pkg/token"
	"github.com/Aschie4589/QuantumHiveServer/pkg/uploader"
)

type uploadLinkResponse struct {
	UploadUrl string `json:"upload_url"`
}

type downloadLinkResponse struct {
	DownloadUrl string `json:"download_url"`
}

type uploadChunkResponse struct {
	Message string `json:"message"`
	FileId  string `json:"file_id,omitempty"`
}

// RequestUpload mints a single-use upload token bound to the caller.
func (h *Handler) RequestUpload(c *gin.Context) {
	handle(c, func(c *gin.Context) (*uploadLinkResponse, error) {
		user := currentUser(c)
		tok, err := h.tokens.MintUpload(c.Request.Context(), token.UploadClaims{UserId: user.Id})
		if err != nil {
			return nil, err
		}
		return &uploadLinkResponse{UploadUrl: "/files/upload/" + tok}, nil
	})
}

// UploadChunk receives one multipart chunk of an artifact upload. The chunk
// bytes land in a temp file before any database work happens, so no
// transaction is ever held across the client read.
func (h *Handler) UploadChunk(c *gin.Context) {
	handle(c, func(c *gin.Context) (*uploadChunkResponse, error) {
		tok := c.Param("token")
		jobId, err := formInt64(c, "job_id")
		if err != nil {
			return nil, err
		}
		chunkIndex, err := formInt(c, "chunk_index")
		if err != nil {
			return nil, err
		}
		totalChunks, err := formInt(c, "total_chunks")
		if err != nil {
			return nil, err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return nil, hiveerrors.NewBadRequest("the file part is missing")
		}
		maxChunk := int64(config.GetTransferMaxChunkMegabyte()) << 20
		if fileHeader.Size > maxChunk {
			return nil, hiveerrors.NewRequestEntityTooLargeError(
				fmt.Sprintf("chunk exceeds the %dMB limit", config.GetTransferMaxChunkMegabyte()))
		}
		src, err := fileHeader.Open()
		if err != nil {
			return nil, hiveerrors.NewInternalError(err.Error())
		}
		defer src.Close()

		user := currentUser(c)
		result, err := h.assembler.Process(c.Request.Context(), tok, user.Id, &uploader.Chunk{
			JobId:       jobId,
			FileType:    c.PostForm("file_type"),
			SessionId:   c.PostForm("session_id"),
			Index:       chunkIndex,
			TotalChunks: totalChunks,
			Data:        src,
		})
		if err != nil {
			return nil, err
		}
		return &uploadChunkResponse{Message: result.Message, FileId: result.FileId}, nil
	})
}

// RequestDownload mints a single-use download token for a stored artifact.
func (h *Handler) RequestDownload(c *gin.Context) {
	handle(c, func(c *gin.Context) (*downloadLinkResponse, error) {
		fileId := c.PostForm("file_id")
		if fileId == "" {
			return nil, hiveerrors.NewBadRequest("file_id is required")
		}
		if _, err := h.db.GetFile(c.Request.Context(), fileId); err != nil {
			return nil, err
		}
		user := currentUser(c)
		tok, err := h.tokens.MintDownload(c.Request.Context(), fileId, user.Id)
		if err != nil {
			return nil, err
		}
		return &downloadLinkResponse{DownloadUrl: "/files/download/" + tok}, nil
	})
}

// DownloadFile streams an artifact for a valid token. The token is burned
// before the first byte leaves, so the first fetch is also the last.
func (h *Handler) DownloadFile(c *gin.Context) {
	tok := c.Param("token")
	claims, err := h.tokens.TakeDownload(c.Request.Context(), tok)
	if err != nil {
		AbortWithApiError(c, err)
		return
	}
	user := currentUser(c)
	if claims.UserId != user.Id {
		AbortWithApiError(c, hiveerrors.NewTokenUserMismatch("download token belongs to another user"))
		return
	}
	file, err := h.db.GetFile(c.Request.Context(), claims.FileId)
	if err != nil {
		AbortWithApiError(c, err)
		return
	}
	if _, err = os.Stat(file.FullPath); err != nil {
		AbortWithApiError(c, hiveerrors.NewInternalError("the artifact is missing from storage"))
		return
	}
	c.FileAttachment(file.FullPath, filepath.Base(file.FullPath))
}
