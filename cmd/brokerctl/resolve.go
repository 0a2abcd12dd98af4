package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// defaultRunDir returns the base run directory brokerd writes its addr
// file into. Mirrors brokerd's own defaultRunDir logic without importing
// the daemon package.
func defaultRunDir() string {
	if dir := os.Getenv("BROKERD_RUN_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "brokerd")
	}
	return filepath.Join(home, ".brokerd")
}

// resolveDaemonAddr finds the control API address: BROKERD_ADDR wins if
// set, otherwise it reads the addr file brokerd wrote atomically at
// startup.
func resolveDaemonAddr() (string, error) {
	if addr := os.Getenv("BROKERD_ADDR"); addr != "" {
		return addr, nil
	}
	addrFile := filepath.Join(defaultRunDir(), "brokerd.addr")
	data, err := os.ReadFile(addrFile)
	if err != nil {
		return "", fmt.Errorf("no BROKERD_ADDR set and cannot read %s: %w (is brokerd running?)", addrFile, err)
	}
	return strings.TrimSpace(string(data)), nil
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func controlURL(path string) (string, error) {
	addr, err := resolveDaemonAddr()
	if err != nil {
		return "", err
	}
	return "http://" + addr + path, nil
}
