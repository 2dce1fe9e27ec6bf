/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
)

// CreateFile inserts a file record. The id must be set by the caller. A
// colliding id yields an already-exist error so the caller can mint a fresh
// one and retry.
func (c *Client) CreateFile(ctx context.Context, file *File) error {
	if file == nil || file.Id == "" {
		return hiveerrors.NewBadRequest("the input is empty")
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	db := c.gorm.WithContext(ctx2)
	var count int64
	if err := db.Model(&File{}).Where("id = ?", file.Id).Count(&count).Error; err != nil {
		return hiveerrors.NewInternalError(err.Error())
	}
	if count > 0 {
		return hiveerrors.NewAlreadyExist(fmt.Sprintf("file %s already exists", file.Id))
	}
	if err := db.Create(file).Error; err != nil {
		return hiveerrors.NewInternalError(err.Error())
	}
	return nil
}

// GetFile retrieves a file record by id.
func (c *Client) GetFile(ctx context.Context, id string) (*File, error) {
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	var file File
	err := c.gorm.WithContext(ctx2).Where("id = ?", id).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, hiveerrors.NewNotFound(hiveerrors.FileKind, id)
	}
	if err != nil {
		return nil, hiveerrors.NewInternalError(err.Error())
	}
	return &file, nil
}
