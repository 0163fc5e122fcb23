//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package main provides the prefixrouter service binary.
package main

import (
	"os"

	"trpc.group/trpc-go/trpc-prefixcache-go/app"
)

func main() {
	os.Exit(app.Main(os.Args[1:]))
}
