/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package channel

// IsChannelClosed checks if an unbuffered channel is closed.
// This function should only be used with unbuffered channels, not buffered ones.
// It does not block; a nil channel is reported as closed.
func IsChannelClosed(ch chan struct{}) bool {
	if ch == nil {
		return true
	}
	select {
	case _, received := <-ch:
		if !received {
			return true
		}
	default:
	}
	return false
}
