// Package util provides the device-facing SSH transport the pipeline
// builds on. The client drives an interactive PTY session the way network
// gear expects: start a shell, wait for the prompt, send a command, capture
// everything until the prompt returns.
package util

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"k8s.io/klog/v2"

	"github.com/susgrid/poweff-collector/pkg/models"
)

// ErrAuthFailed marks an authentication rejection by the device. Callers
// treat it as permanent and skip retries.
var ErrAuthFailed = errors.New("ssh authentication failed")

// promptPattern matches typical IOS/IOS-XE exec prompts ("hostname#",
// "hostname>") as well as generic shell prompts, with or without a trailing
// newline.
var promptPattern = regexp.MustCompile(`[\w.\-]+(?:\([\w\-]+\))?[#>$]\s*$`)

// SSHClient is an SSH connection to one device with an interactive PTY
// shell on top. Not safe for concurrent use; each collection job owns its
// own client.
type SSHClient struct {
	device   models.Device
	password string

	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	shellRunning bool
	closed       bool

	promptCh chan struct{}
	errCh    chan error

	mu        sync.Mutex
	capture   []string
	capturing bool
}

// NewSSHClient prepares a client for the given device. The password has
// already been resolved from the device's credential reference.
func NewSSHClient(device models.Device, password string) *SSHClient {
	return &SSHClient{
		device:   device,
		password: password,
		promptCh: make(chan struct{}, 1),
		errCh:    make(chan error, 1),
	}
}

// Connect dials the device and performs the SSH handshake. Authentication
// rejections are wrapped with ErrAuthFailed.
func (c *SSHClient) Connect(ctx context.Context) error {
	if c.closed {
		return fmt.Errorf("client is closed")
	}

	sshConfig, err := c.clientConfig()
	if err != nil {
		return err
	}

	conn := c.device.Connection
	address := fmt.Sprintf("%s:%d", conn.Address, conn.Port)
	dialer := net.Dialer{Timeout: time.Duration(conn.Timeout) * time.Second}

	netConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", address, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, address, sshConfig)
	if err != nil {
		netConn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		return fmt.Errorf("failed to establish SSH connection: %w", err)
	}

	c.client = ssh.NewClient(sshConn, chans, reqs)
	return nil
}

func (c *SSHClient) clientConfig() (*ssh.ClientConfig, error) {
	conn := c.device.Connection
	config := &ssh.ClientConfig{
		User:            conn.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // management network; host keys handled out of band
		Timeout:         time.Duration(conn.Timeout) * time.Second,
	}

	if conn.PrivateKeyPath != "" {
		key, err := os.ReadFile(conn.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		config.Auth = append(config.Auth, ssh.PublicKeys(signer))
	}
	if c.password != "" {
		config.Auth = append(config.Auth, ssh.Password(c.password))
	}
	if len(config.Auth) == 0 {
		return nil, fmt.Errorf("%w: no authentication method available", ErrAuthFailed)
	}
	return config, nil
}

// StartShell requests a PTY, starts the interactive shell and begins the
// reader goroutine that watches for the device prompt.
func (c *SSHClient) StartShell() error {
	if c.client == nil {
		return fmt.Errorf("not connected: call Connect() first")
	}
	if c.shellRunning {
		return nil
	}

	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	pty := c.device.Connection.PTYConfig
	if pty == nil {
		pty = models.DefaultPTYConfig()
	}
	modes := ssh.TerminalModes{ssh.ECHO: 0}
	if err := session.RequestPty(pty.Term, pty.Rows, pty.Columns, modes); err != nil {
		session.Close()
		return fmt.Errorf("failed to request PTY: %w", err)
	}

	if c.stdin, err = session.StdinPipe(); err != nil {
		session.Close()
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	if c.stdout, err = session.StdoutPipe(); err != nil {
		session.Close()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return fmt.Errorf("failed to start shell: %w", err)
	}

	c.session = session
	c.shellRunning = true
	go c.readLoop()
	return nil
}

// readLoop consumes the shell output byte-wise so prompts with no trailing
// newline are still detected, buffering complete lines for capture.
func (c *SSHClient) readLoop() {
	reader := bufio.NewReader(c.stdout)
	var lineBuffer []byte

	for {
		b, err := reader.ReadByte()
		if err != nil {
			if err == io.EOF {
				if promptPattern.Match(lineBuffer) {
					c.signalPrompt()
				}
				return
			}
			select {
			case c.errCh <- fmt.Errorf("stdout read error: %w", err):
			default:
			}
			return
		}

		lineBuffer = append(lineBuffer, b)

		// A prompt arrives without a newline; detect it on the partial line.
		if promptPattern.Match(lineBuffer) {
			klog.V(4).Infof("[ssh] %s prompt detected", c.device.Name)
			c.signalPrompt()
			lineBuffer = lineBuffer[:0]
			continue
		}

		if b == '\n' {
			line := strings.TrimRight(string(lineBuffer), "\r\n")
			c.mu.Lock()
			if c.capturing {
				c.capture = append(c.capture, line)
			}
			c.mu.Unlock()
			lineBuffer = lineBuffer[:0]
		}
	}
}

func (c *SSHClient) signalPrompt() {
	select {
	case c.promptCh <- struct{}{}:
	default:
	}
}

// Run sends one command over the shell and returns everything the device
// printed up to the next prompt. The shell is started on first use.
func (c *SSHClient) Run(ctx context.Context, command string) (string, error) {
	if err := c.StartShell(); err != nil {
		return "", err
	}

	timeout := time.Duration(c.device.Connection.Timeout) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Wait for the prompt left by the shell banner or previous command.
	if err := c.awaitPrompt(ctx); err != nil {
		return "", fmt.Errorf("waiting for prompt: %w", err)
	}

	c.mu.Lock()
	c.capture = nil
	c.capturing = true
	c.mu.Unlock()

	if _, err := fmt.Fprintf(c.stdin, "%s\r", command); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}
	klog.V(3).Infof("[ssh] %s sent command: %s", c.device.Name, command)

	if err := c.awaitPrompt(ctx); err != nil {
		return "", fmt.Errorf("waiting for command completion: %w", err)
	}

	c.mu.Lock()
	c.capturing = false
	output := strings.Join(c.capture, "\n")
	c.capture = nil
	c.mu.Unlock()

	// The prompt that completed this command also precedes the next one.
	c.signalPrompt()
	return output, nil
}

func (c *SSHClient) awaitPrompt(ctx context.Context) error {
	select {
	case <-c.promptCh:
		return nil
	case err := <-c.errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the shell session and the underlying connection.
func (c *SSHClient) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.shellRunning = false

	var errs []error
	if c.stdin != nil {
		if err := c.stdin.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.session != nil {
		if err := c.session.Close(); err != nil && err != io.EOF {
			errs = append(errs, err)
		}
	}
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
