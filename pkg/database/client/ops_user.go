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
	"k8s.io/klog/v2"

	hiveerrors "github.com/Aschie4589/QuantumHiveServer/pkg/errors"
)

// CreateUser inserts a new user row. Username and email must be free; the
// pre-checks surface a conflict before the unique constraints do.
func (c *Client) CreateUser(ctx context.Context, user *User) error {
	if user == nil {
		return hiveerrors.NewBadRequest("the input is empty")
	}
	db, err := c.GetGormDB()
	if err != nil {
		return err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	var count int64
	if err = db.WithContext(ctx2).Model(&User{}).
		Where("username = ? OR email = ?", user.Username, user.Email).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check user uniqueness: %v", err)
	}
	if count > 0 {
		return hiveerrors.NewBadRequest("username or email already registered")
	}
	if err = db.WithContext(ctx2).Create(user).Error; err != nil {
		klog.ErrorS(err, "failed to insert user", "username", user.Username)
		return hiveerrors.NewInternalError("failed to create user")
	}
	return nil
}

// GetUserByUsername retrieves a user row by its unique username.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	db, err := c.GetGormDB()
	if err != nil {
		return nil, err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	var user User
	err = db.WithContext(ctx2).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, hiveerrors.NewNotFound(hiveerrors.UserKind, username)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserById retrieves a user row by primary key.
func (c *Client) GetUserById(ctx context.Context, id int64) (*User, error) {
	db, err := c.GetGormDB()
	if err != nil {
		return nil, err
	}
	ctx2, cancel := c.requestCtx(ctx)
	defer cancel()

	var user User
	err = db.WithContext(ctx2).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, hiveerrors.NewNotFound(hiveerrors.UserKind, fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
