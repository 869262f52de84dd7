// Package loader registers cache drivers via blank imports.
// Import this package to ensure the default cache drivers are available.
//
// Usage in main.go:
//
//	import _ "github.com/sharemeal/sharemeal-go/internal/cache/loader"
package loader

import (
	// Register the memory cache driver
	_ "github.com/sharemeal/sharemeal-go/internal/cache/memory"
)
