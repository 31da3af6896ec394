package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WinRMTransport speaks a minimal subset of WS-Management over HTTP(S)
// Basic auth: enough to create a command shell, run the agent, read its
// stdout, and delete the shell again. No WinRM client exists anywhere in
// the example pack's dependency surface (see DESIGN.md), so this is a
// hand-rolled SOAP envelope sender over net/http rather than a wrapped
// third-party client -- the one transport leg without a library to stand
// on.
type WinRMTransport struct {
	cfg       Config
	client    *http.Client
	endpoint  string
	shellID   string
}

// NewWinRMTransport builds a transport targeting cfg.Host:cfg.Port over
// HTTP, or HTTPS when useHTTPS is set. The port is used as given; no
// default is applied here.
func NewWinRMTransport(cfg Config, useHTTPS bool) *WinRMTransport {
	scheme := "http"
	if useHTTPS {
		scheme = "https"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &WinRMTransport{
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout},
		endpoint: fmt.Sprintf("%s://%s:%d/wsman", scheme, cfg.Host, cfg.Port),
	}
}

// Detect assumes Windows -- WinRM is a Windows-only remote management
// protocol, so a reachable endpoint already answers the OS question.
func (t *WinRMTransport) Detect(ctx context.Context) (RemoteOS, error) {
	if _, err := t.runCommand(ctx, "cmd.exe", []string{"/c", "ver"}, 10*time.Second); err != nil {
		return "", ErrRemoteOSUnknown
	}
	return OSWindows, nil
}

// Deploy has no SFTP-equivalent channel over WinRM; the agent binary is
// base64-encoded into a remote file write via successive command-shell
// writes, the standard WinRM file-transfer workaround.
func (t *WinRMTransport) Deploy(ctx context.Context, remoteOS RemoteOS, localBinary string) (string, error) {
	data, err := os.ReadFile(localBinary)
	if err != nil {
		return "", fmt.Errorf("%w: read local binary: %v", ErrDeployFailed, err)
	}

	workDir := `C:\Windows\Temp\provenance-scan`
	if _, err := t.runCommand(ctx, "cmd.exe", []string{"/c", "mkdir", workDir}, 10*time.Second); err != nil {
		// mkdir fails if the directory already exists; not fatal.
		_ = err
	}

	remotePath := workDir + `\provenance-agent.exe`
	encoded := base64.StdEncoding.EncodeToString(data)
	const chunkSize = 4000 // keep each command line under WinRM's envelope limits
	first := true
	for i := 0; i < len(encoded); i += chunkSize {
		end := i + chunkSize
		if end > len(encoded) {
			end = len(encoded)
		}
		chunk := encoded[i:end]
		op := ">"
		if !first {
			op = ">>"
		}
		first = false
		cmd := fmt.Sprintf(`echo %s %s %s.b64`, chunk, op, remotePath)
		if _, err := t.runCommand(ctx, "cmd.exe", []string{"/c", cmd}, 10*time.Second); err != nil {
			return "", fmt.Errorf("%w: write chunk: %v", ErrDeployFailed, err)
		}
	}

	decodeCmd := fmt.Sprintf(`certutil -decode %s.b64 %s`, remotePath, remotePath)
	if _, err := t.runCommand(ctx, "cmd.exe", []string{"/c", decodeCmd}, 30*time.Second); err != nil {
		return "", fmt.Errorf("%w: decode binary: %v", ErrDeployFailed, err)
	}

	return workDir, nil
}

// Execute runs the deployed agent synchronously.
func (t *WinRMTransport) Execute(ctx context.Context, workDir string, timeout time.Duration) error {
	_, err := t.runCommand(ctx, "cmd.exe", []string{"/c", "cd", "/d", workDir, "&&", "provenance-agent.exe"}, timeout)
	return err
}

// Collect reads output.json/output.yml back through the command shell,
// the same base64-round-trip channel Deploy uses in reverse.
func (t *WinRMTransport) Collect(ctx context.Context, workDir, localDir string) error {
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return fmt.Errorf("transport: create local dir %s: %w", localDir, err)
	}
	for _, name := range []string{"output.json", "output.yml"} {
		remotePath := workDir + `\` + name
		out, err := t.runCommand(ctx, "certutil.exe", []string{"-encode", remotePath, remotePath + ".b64"}, 10*time.Second)
		if err != nil {
			continue
		}
		_ = out
		encodedOut, err := t.runCommand(ctx, "cmd.exe", []string{"/c", "type", remotePath + ".b64"}, 10*time.Second)
		if err != nil {
			continue
		}
		decoded := decodeCertutilBase64(encodedOut)
		if err := os.WriteFile(filepath.Join(localDir, name), decoded, 0644); err != nil {
			return fmt.Errorf("transport: write local %s: %w", name, err)
		}
	}
	return nil
}

// decodeCertutilBase64 strips certutil's header/footer lines before
// decoding the base64 body.
func decodeCertutilBase64(s string) []byte {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		lines = append(lines, line)
	}
	decoded, _ := base64.StdEncoding.DecodeString(strings.Join(lines, ""))
	return decoded
}

// Cleanup best-effort removes the remote working directory.
func (t *WinRMTransport) Cleanup(ctx context.Context, workDir string) error {
	_, _ = t.runCommand(ctx, "cmd.exe", []string{"/c", "rmdir", "/s", "/q", workDir}, 10*time.Second)
	return nil
}

// Close is a no-op: WinRM is stateless HTTP, there is no persistent
// connection to release.
func (t *WinRMTransport) Close() error {
	return nil
}

// runCommand opens a shell, runs one command, reads stdout, and deletes
// the shell -- the minimal WS-Management command lifecycle.
func (t *WinRMTransport) runCommand(ctx context.Context, command string, args []string, timeout time.Duration) (string, error) {
	shellID, err := t.createShell(ctx)
	if err != nil {
		return "", err
	}
	defer t.deleteShell(context.Background(), shellID)

	full := command
	if len(args) > 0 {
		full = command + " " + strings.Join(args, " ")
	}
	commandID, err := t.runShellCommand(ctx, shellID, full)
	if err != nil {
		return "", err
	}
	return t.receiveOutput(ctx, shellID, commandID, timeout)
}

func (t *WinRMTransport) post(ctx context.Context, body string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `application/soap+xml;charset=UTF-8`)
	req.SetBasicAuth(t.cfg.User, t.cfg.Password)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("transport: winrm %s: %s", resp.Status, string(data))
	}
	return data, nil
}

func (t *WinRMTransport) createShell(ctx context.Context) (string, error) {
	msgID := uuid.NewString()
	envelope := fmt.Sprintf(winRMCreateShellEnvelope, msgID, t.endpoint)
	data, err := t.post(ctx, envelope)
	if err != nil {
		return "", fmt.Errorf("transport: winrm create shell: %w", err)
	}
	id := extractXMLValue(data, "Selector")
	if id == "" {
		return "", fmt.Errorf("transport: winrm create shell: no shell id in response")
	}
	return id, nil
}

func (t *WinRMTransport) runShellCommand(ctx context.Context, shellID, command string) (string, error) {
	msgID := uuid.NewString()
	envelope := fmt.Sprintf(winRMCommandEnvelope, msgID, t.endpoint, shellID, xmlEscape(command))
	data, err := t.post(ctx, envelope)
	if err != nil {
		return "", fmt.Errorf("transport: winrm run command: %w", err)
	}
	id := extractXMLValue(data, "CommandId")
	if id == "" {
		return "", fmt.Errorf("transport: winrm run command: no command id in response")
	}
	return id, nil
}

func (t *WinRMTransport) receiveOutput(ctx context.Context, shellID, commandID string, timeout time.Duration) (string, error) {
	msgID := uuid.NewString()
	envelope := fmt.Sprintf(winRMReceiveEnvelope, msgID, t.endpoint, shellID, commandID)

	receiveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := t.post(receiveCtx, envelope)
	if err != nil {
		return "", fmt.Errorf("transport: winrm receive: %w", err)
	}

	var stdout strings.Builder
	for _, b64 := range extractAllXMLValues(data, "Stream") {
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err == nil {
			stdout.Write(decoded)
		}
	}
	return stdout.String(), nil
}

func (t *WinRMTransport) deleteShell(ctx context.Context, shellID string) {
	msgID := uuid.NewString()
	envelope := fmt.Sprintf(winRMDeleteShellEnvelope, msgID, t.endpoint, shellID)
	_, _ = t.post(ctx, envelope)
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// extractXMLValue is a minimal, non-validating scan for the first
// occurrence of <AnyPrefix:Tag ...>value</AnyPrefix:Tag> or an attribute
// value named Tag. Full WS-Man responses are namespaced and irregular
// enough that a generic decoder earns its keep only for Detect/Deploy's
// narrow needs here.
func extractXMLValue(data []byte, tag string) string {
	vals := extractAllXMLValues(data, tag)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func extractAllXMLValues(data []byte, tag string) []string {
	s := string(data)
	var out []string
	search := ">"
	idx := 0
	for {
		open := strings.Index(s[idx:], "<"+tag)
		if open == -1 {
			openAttr := strings.Index(s[idx:], `Name="`+tag+`"`)
			if openAttr == -1 {
				break
			}
			rest := s[idx+openAttr:]
			gt := strings.Index(rest, search)
			if gt == -1 {
				break
			}
			closeIdx := strings.Index(rest[gt:], "<")
			if closeIdx == -1 {
				break
			}
			out = append(out, strings.TrimSpace(rest[gt+1:gt+closeIdx]))
			idx = idx + openAttr + gt + closeIdx
			continue
		}
		rest := s[idx+open:]
		gt := strings.Index(rest, search)
		if gt == -1 {
			break
		}
		closeIdx := strings.Index(rest[gt:], "<")
		if closeIdx == -1 {
			break
		}
		out = append(out, strings.TrimSpace(rest[gt+1:gt+closeIdx]))
		idx = idx + open + gt + closeIdx
	}
	return out
}

const winRMCreateShellEnvelope = `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"
  xmlns:a="http://schemas.xmlsoap.org/ws/2004/08/addressing"
  xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd"
  xmlns:rsp="http://schemas.microsoft.com/wbem/wsman/1/windows/shell">
<s:Header>
  <a:To>%[2]s</a:To>
  <a:Action>http://schemas.xmlsoap.org/ws/2004/09/transfer/Create</a:Action>
  <a:MessageID>uuid:%[1]s</a:MessageID>
  <w:ResourceURI>http://schemas.microsoft.com/wbem/wsman/1/windows/shell/cmd</w:ResourceURI>
</s:Header>
<s:Body>
  <rsp:Shell><rsp:InputStreams>stdin</rsp:InputStreams><rsp:OutputStreams>stdout stderr</rsp:OutputStreams></rsp:Shell>
</s:Body>
</s:Envelope>`

const winRMCommandEnvelope = `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"
  xmlns:a="http://schemas.xmlsoap.org/ws/2004/08/addressing"
  xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd"
  xmlns:rsp="http://schemas.microsoft.com/wbem/wsman/1/windows/shell">
<s:Header>
  <a:To>%[2]s</a:To>
  <a:Action>http://schemas.microsoft.com/wbem/wsman/1/windows/shell/Command</a:Action>
  <a:MessageID>uuid:%[1]s</a:MessageID>
  <w:ResourceURI>http://schemas.microsoft.com/wbem/wsman/1/windows/shell/cmd</w:ResourceURI>
  <w:SelectorSet><w:Selector Name="ShellId">%[3]s</w:Selector></w:SelectorSet>
</s:Header>
<s:Body>
  <rsp:CommandLine><rsp:Command>%[4]s</rsp:Command></rsp:CommandLine>
</s:Body>
</s:Envelope>`

const winRMReceiveEnvelope = `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"
  xmlns:a="http://schemas.xmlsoap.org/ws/2004/08/addressing"
  xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd"
  xmlns:rsp="http://schemas.microsoft.com/wbem/wsman/1/windows/shell">
<s:Header>
  <a:To>%[2]s</a:To>
  <a:Action>http://schemas.microsoft.com/wbem/wsman/1/windows/shell/Receive</a:Action>
  <a:MessageID>uuid:%[1]s</a:MessageID>
  <w:ResourceURI>http://schemas.microsoft.com/wbem/wsman/1/windows/shell/cmd</w:ResourceURI>
  <w:SelectorSet><w:Selector Name="ShellId">%[3]s</w:Selector></w:SelectorSet>
</s:Header>
<s:Body>
  <rsp:Receive><rsp:DesiredStream CommandId="%[4]s">stdout stderr</rsp:DesiredStream></rsp:Receive>
</s:Body>
</s:Envelope>`

const winRMDeleteShellEnvelope = `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope"
  xmlns:a="http://schemas.xmlsoap.org/ws/2004/08/addressing"
  xmlns:w="http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd">
<s:Header>
  <a:To>%[2]s</a:To>
  <a:Action>http://schemas.xmlsoap.org/ws/2004/09/transfer/Delete</a:Action>
  <a:MessageID>uuid:%[1]s</a:MessageID>
  <w:ResourceURI>http://schemas.microsoft.com/wbem/wsman/1/windows/shell/cmd</w:ResourceURI>
  <w:SelectorSet><w:Selector Name="ShellId">%[3]s</w:Selector></w:SelectorSet>
</s:Header>
<s:Body/>
</s:Envelope>`
