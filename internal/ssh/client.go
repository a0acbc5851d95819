// Package ssh runs portlease commands on a remote host.
package ssh

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Client is a connection to a remote host
type Client struct {
	Host   string
	User   string
	client *ssh.Client
}

var keyFiles = []string{"id_ed25519", "id_rsa"}

// NewClient connects to host as user with the first usable key in ~/.ssh
func NewClient(user, host string) (*Client, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	signer, err := loadSigner(filepath.Join(home, ".ssh"))
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
	}

	client, err := ssh.Dial("tcp", hostPort(host), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s@%s: %w", user, host, err)
	}

	return &Client{Host: host, User: user, client: client}, nil
}

func loadSigner(dir string) (ssh.Signer, error) {
	var lastErr error
	for _, name := range keyFiles {
		key, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			lastErr = err
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key %s: %w", name, err)
		}
		return signer, nil
	}
	return nil, fmt.Errorf("failed to read SSH key: %w", lastErr)
}

// hostPort appends the default SSH port unless host already names one
func hostPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, "22")
}

// Close closes the connection
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Run executes command remotely, streaming its output to stdout and stderr
func (c *Client) Run(command string, stdout, stderr io.Writer) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = session.Close() }()

	session.Stdout = stdout
	session.Stderr = stderr

	if err := session.Run(command); err != nil {
		return fmt.Errorf("remote command failed: %w", err)
	}
	return nil
}

// Output executes command remotely and returns its stdout
func (c *Client) Output(command string) (string, error) {
	var stdout, stderr bytes.Buffer
	if err := c.Run(command, &stdout, &stderr); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

// PortleaseCommand builds the shell command that runs portlease with args in baseDir
func PortleaseCommand(baseDir string, args ...string) string {
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, "portlease")
	for _, a := range args {
		quoted = append(quoted, Quote(a))
	}
	cmd := strings.Join(quoted, " ")
	if baseDir == "" {
		return cmd
	}
	// ~ stays unquoted so the remote shell expands it
	return "cd " + quoteDir(baseDir) + " && " + cmd
}

func quoteDir(dir string) string {
	if dir == "~" {
		return dir
	}
	if rest, ok := strings.CutPrefix(dir, "~/"); ok {
		return "~/" + Quote(rest)
	}
	return Quote(dir)
}

// Quote single-quotes s for a POSIX shell
func Quote(s string) string {
	if s != "" && strings.IndexFunc(s, unsafeShellRune) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func unsafeShellRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./=:,@+", r):
		return false
	}
	return true
}
