package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SSHTransport deploys and runs the agent over SSH, with SFTP for file
// transfer. Host-key checking is disabled: an operator running this
// scanner has already accepted that it actively touches hosts on a
// network it controls.
type SSHTransport struct {
	cfg    Config
	client *ssh.Client
}

// NewSSHTransport dials host:port and authenticates with a private key if
// cfg.KeyPath is set, else a password.
func NewSSHTransport(ctx context.Context, cfg Config) (*SSHTransport, error) {
	auth, err := sshAuthMethod(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: ssh dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: ssh handshake %s: %w", addr, err)
	}

	return &SSHTransport{cfg: cfg, client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

func sshAuthMethod(cfg Config) (ssh.AuthMethod, error) {
	if cfg.KeyPath != "" {
		keyData, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("transport: read ssh key %s: %w", cfg.KeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("transport: parse ssh key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	}
	return ssh.Password(cfg.Password), nil
}

// Detect classifies the remote OS by trying a POSIX identifying command,
// then a Windows one.
func (t *SSHTransport) Detect(ctx context.Context) (RemoteOS, error) {
	if out, err := t.runCommand(ctx, "uname -s", 10*time.Second); err == nil {
		switch {
		case strings.Contains(out, "Linux"):
			return OSLinux, nil
		case strings.Contains(out, "Darwin"):
			return OSMacOS, nil
		}
	}
	if out, err := t.runCommand(ctx, "cmd /c ver", 10*time.Second); err == nil && strings.Contains(out, "Windows") {
		return OSWindows, nil
	}
	return "", ErrRemoteOSUnknown
}

// Deploy creates a remote working directory and uploads the agent binary
// for remoteOS, marking it executable.
func (t *SSHTransport) Deploy(ctx context.Context, remoteOS RemoteOS, localBinary string) (string, error) {
	sftpClient, err := sftp.NewClient(t.client)
	if err != nil {
		return "", fmt.Errorf("%w: sftp client: %v", ErrDeployFailed, err)
	}
	defer sftpClient.Close()

	workDir := remoteWorkDir(remoteOS)
	if err := sftpClient.MkdirAll(workDir); err != nil {
		return "", fmt.Errorf("%w: mkdir %s: %v", ErrDeployFailed, workDir, err)
	}

	remoteName := "provenance-agent"
	if remoteOS == OSWindows {
		remoteName = "provenance-agent.exe"
	}
	remotePath := path.Join(workDir, remoteName)

	src, err := os.Open(localBinary)
	if err != nil {
		return "", fmt.Errorf("%w: open local binary: %v", ErrDeployFailed, err)
	}
	defer src.Close()

	dst, err := sftpClient.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("%w: create remote binary: %v", ErrDeployFailed, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("%w: upload binary: %v", ErrDeployFailed, err)
	}
	dst.Close()

	if remoteOS != OSWindows {
		if err := sftpClient.Chmod(remotePath, 0755); err != nil {
			return "", fmt.Errorf("%w: chmod remote binary: %v", ErrDeployFailed, err)
		}
	}

	return workDir, nil
}

func remoteWorkDir(remoteOS RemoteOS) string {
	if remoteOS == OSWindows {
		return "C:/Windows/Temp/provenance-scan"
	}
	return "/tmp/provenance-scan"
}

// Execute runs the deployed agent synchronously with a hard timeout.
func (t *SSHTransport) Execute(ctx context.Context, workDir string, timeout time.Duration) error {
	cmd := fmt.Sprintf("cd %s && ./provenance-agent", workDir)
	if strings.HasPrefix(workDir, "C:") {
		cmd = fmt.Sprintf("cd /d %s && provenance-agent.exe", workDir)
	}
	_, err := t.runCommand(ctx, cmd, timeout)
	return err
}

// Collect downloads output.json and output.yml from workDir to localDir.
func (t *SSHTransport) Collect(ctx context.Context, workDir, localDir string) error {
	sftpClient, err := sftp.NewClient(t.client)
	if err != nil {
		return fmt.Errorf("transport: sftp client: %w", err)
	}
	defer sftpClient.Close()

	if err := os.MkdirAll(localDir, 0755); err != nil {
		return fmt.Errorf("transport: create local dir %s: %w", localDir, err)
	}

	for _, name := range []string{"output.json", "output.yml"} {
		remotePath := path.Join(workDir, name)
		remote, err := sftpClient.Open(remotePath)
		if err != nil {
			continue // an extractor set may legitimately omit one format
		}
		local, err := os.Create(filepath.Join(localDir, name))
		if err != nil {
			remote.Close()
			return fmt.Errorf("transport: create local file %s: %w", name, err)
		}
		_, copyErr := io.Copy(local, remote)
		remote.Close()
		local.Close()
		if copyErr != nil {
			return fmt.Errorf("transport: download %s: %w", name, copyErr)
		}
	}
	return nil
}

// Cleanup best-effort removes the remote working directory.
func (t *SSHTransport) Cleanup(ctx context.Context, workDir string) error {
	cmd := fmt.Sprintf("rm -rf %s", workDir)
	if strings.HasPrefix(workDir, "C:") {
		cmd = fmt.Sprintf("rmdir /s /q %s", workDir)
	}
	_, _ = t.runCommand(ctx, cmd, 10*time.Second)
	return nil
}

// Close closes the underlying SSH connection.
func (t *SSHTransport) Close() error {
	return t.client.Close()
}

func (t *SSHTransport) runCommand(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("transport: new session: %w", err)
	}
	defer session.Close()

	done := make(chan error, 1)
	var output []byte
	go func() {
		var runErr error
		output, runErr = session.CombinedOutput(cmd)
		done <- runErr
	}()

	select {
	case err := <-done:
		if err != nil {
			if _, ok := err.(*ssh.ExitError); ok {
				return string(output), fmt.Errorf("transport: command exited non-zero: %w", err)
			}
			return "", fmt.Errorf("transport: command failed: %w", err)
		}
		return string(output), nil
	case <-time.After(timeout):
		session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("transport: command timed out after %s", timeout)
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	}
}
