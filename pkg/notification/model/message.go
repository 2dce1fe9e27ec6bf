/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package model

const (
	ChannelEmail = "email"
)

type Message struct {
	Email *EmailMessage
}

type EmailMessage struct {
	To      []string
	Title   string
	Content string
}
