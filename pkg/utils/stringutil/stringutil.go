/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package stringutil

import (
	"strings"

	"github.com/google/uuid"
)

const shortIDLength = 8

// ShortID returns an 8-character opaque identifier derived from a random UUID.
func ShortID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:shortIDLength]
}

// OpaqueToken returns an unguessable token string backed by a full random UUID.
func OpaqueToken() string {
	return uuid.NewString()
}

// StrCaseEqual compares two strings case-insensitively
func StrCaseEqual(str1, str2 string) bool {
	return strings.EqualFold(str1, str2)
}
