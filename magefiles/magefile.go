//go:build mage

// Package main provides build targets for servicesim using Mage.
//
// Usage:
//
//	mage build   Compile servicesim binary to bin/
//	mage test    Run all tests
//	mage lint    Run go vet
//	mage clean   Remove build artifacts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "servicesim"
	binaryDir  = "bin"
	cmdDir     = "./cmd/servicesim"
)

// Build compiles the servicesim binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test runs all tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Lint runs go vet over the module.
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	return sh.Rm(binaryDir)
}

// All lints, tests and builds.
func All() {
	mg.SerialDeps(Lint, Test, Build)
}
