/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"strings"
	"testing"

	"gotest.tools/assert"
)

func TestGenerateCommand(t *testing.T) {
	cmd := generateCommand(Channel{}, insertChannelFormat, "id")
	assert.Assert(t, strings.HasPrefix(cmd, "INSERT INTO "+TChannel+" ("))
	assert.Assert(t, strings.HasSuffix(cmd, "RETURNING id"))
	// The primary key column never appears in the insert.
	assert.Assert(t, !strings.Contains(cmd, "(id,"))
	assert.Assert(t, strings.Contains(cmd, "kraus_id"))
	assert.Assert(t, strings.Contains(cmd, ":kraus_id"))
	assert.Assert(t, strings.Contains(cmd, "minimization_attempts"))

	cmd = generateCommand(Job{}, insertJobFormat, "id")
	assert.Assert(t, strings.Contains(cmd, "INSERT INTO "+TJob))
	assert.Assert(t, strings.Contains(cmd, "job_type"))
	assert.Assert(t, strings.Contains(cmd, ":worker_id"))
	assert.Assert(t, !strings.Contains(cmd, "(id,"))
}
