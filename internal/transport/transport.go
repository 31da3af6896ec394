// Package transport implements the Agent Transport contract: deploy the
// remote agent binary to a target host, run it, and collect its output.
// Two variants exist — SSH (ssh.go) and WinRM (winrm.go) — behind the
// single Transport interface so Phase 2 dispatch never branches on which
// one it's using.
package transport

import (
	"context"
	"errors"
	"time"
)

// RemoteOS is the classification Detect returns.
type RemoteOS string

const (
	OSLinux   RemoteOS = "linux"
	OSMacOS   RemoteOS = "macos"
	OSWindows RemoteOS = "windows"
)

// Sentinel errors for remote-extraction failures.
var (
	ErrRemoteOSUnknown = errors.New("transport: remote os unknown")
	ErrDeployFailed    = errors.New("transport: deploy failed")
)

// Transport is the four-operation (plus cleanup) contract both SSH and
// WinRM implement.
type Transport interface {
	// Detect classifies the remote OS with a short identifying command.
	Detect(ctx context.Context) (RemoteOS, error)
	// Deploy creates a remote working directory and uploads the
	// OS-appropriate agent binary, marking it executable.
	Deploy(ctx context.Context, remoteOS RemoteOS, localBinary string) (workDir string, err error)
	// Execute runs the agent synchronously with a hard timeout.
	Execute(ctx context.Context, workDir string, timeout time.Duration) error
	// Collect downloads output.json/output.yml to localDir.
	Collect(ctx context.Context, workDir, localDir string) error
	// Cleanup best-effort removes the remote working directory.
	Cleanup(ctx context.Context, workDir string) error
	// Close releases the underlying connection.
	Close() error
}

// Config carries the connection parameters common to both transports;
// each transport only consults the fields it needs.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	KeyPath  string
	Timeout  time.Duration
}
