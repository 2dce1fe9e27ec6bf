/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package main

import (
	"os"

	"k8s.io/klog/v2"

	"github.com/Aschie4589/QuantumHiveServer/pkg/server"
)

func main() {
	s, err := server.NewServer()
	if err != nil {
		klog.ErrorS(err, "failed to init the coordinator")
		os.Exit(1)
	}
	if err = s.Run(); err != nil {
		klog.ErrorS(err, "coordinator exited with error")
		os.Exit(1)
	}
}
