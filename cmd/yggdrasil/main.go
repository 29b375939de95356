// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command yggdrasil runs the gateway: the validated-answer pipeline, the
// knowledge ledger, and the watcher daemon behind one HTTP server.
package main

import (
	"log"

	"github.com/yggdrasillabs/yggdrasil/pkg/logging"
	"github.com/yggdrasillabs/yggdrasil/services/gateway"
)

func main() {
	logger, err := logging.New(logging.Config{Service: "gateway"})
	if err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	defer logger.Close()
	logger.SetGlobal()

	cfg, err := gateway.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	svc, err := gateway.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize gateway: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
