//go:build mage

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binary = "alerts-translate"

// Default target when mage is run without arguments.
var Default = Build

func ldflags() string {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	commit, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil {
		commit = "none"
	}
	return strings.Join([]string{
		"-s", "-w",
		"-X main.version=" + version,
		"-X main.commit=" + commit,
		"-X main.date=" + time.Now().UTC().Format(time.RFC3339),
	}, " ")
}

// Build compiles the alerts-translate binary.
func Build() error {
	mg.Deps(Vet)
	fmt.Println("Building", binary)
	return sh.RunWith(map[string]string{"CGO_ENABLED": "0"},
		"go", "build", "-trimpath", "-ldflags", ldflags(), "-o", binary, ".")
}

// Install installs the binary into GOBIN.
func Install() error {
	return sh.RunV("go", "install", "-trimpath", "-ldflags", ldflags(), ".")
}

// Vet runs go vet.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Race runs the unit tests with the race detector.
func Race() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	for _, f := range []string{binary, "report.yaml"} {
		if err := sh.Rm(f); err != nil {
			return err
		}
	}
	return nil
}
