// Package sshcli runs array management CLI commands over SSH.
package sshcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/security"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/utils"
)

const (
	defaultPort         = 22
	defaultTimeout      = 10 * time.Second
	defaultDialAttempts = 3
)

// Options configure how sessions are opened; they are shared by all array families
type Options struct {
	// Port is used when the management address has no explicit port (default: 22)
	Port int

	// Timeout bounds the TCP connect and SSH handshake (default: 10s)
	Timeout time.Duration

	// DialAttempts is the number of connection attempts for transient failures (default: 3)
	DialAttempts uint64

	// HostKeyCallback verifies the array host key. Nil accepts any key.
	HostKeyCallback ssh.HostKeyCallback
}

// Runner executes one CLI command and returns its standard output
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

// CommandError is returned when the array CLI exits non-zero
type CommandError struct {
	Command    string
	ExitStatus int
	Stdout     string
	Stderr     string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed (exit %d): %s", e.Command, e.ExitStatus, strings.TrimSpace(e.Output()))
}

// Output returns stderr followed by stdout; array CLIs disagree on where errors go
func (e *CommandError) Output() string {
	return strings.TrimSpace(e.Stderr + "\n" + e.Stdout)
}

// ErrAuthentication is returned when the array rejects the credentials
var ErrAuthentication = errors.New("array rejected credentials")

// Client is an open SSH connection to one array management endpoint
type Client struct {
	address string
	user    string
	conn    *ssh.Client
}

// Dial opens an SSH connection with password (and keyboard-interactive) authentication.
// Transient network failures are retried with exponential backoff; authentication and
// host key failures are not.
func Dial(ctx context.Context, address, user, password string, opts Options) (*Client, error) {
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if user == "" {
		return nil, fmt.Errorf("user is required")
	}

	if opts.Port == 0 {
		opts.Port = defaultPort
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.DialAttempts == 0 {
		opts.DialAttempts = defaultDialAttempts
	}

	hostKeyCallback := opts.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
		klog.V(4).Info("Using InsecureIgnoreHostKey (default) - configure --array-known-hosts for production security")
	}

	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.Timeout,
	}

	addr := withDefaultPort(address, opts.Port)
	klog.V(4).Infof("Connecting to array at %s as user %s", addr, user)

	var conn *ssh.Client
	operation := func() error {
		var err error
		conn, err = dialContext(ctx, addr, config, opts.Timeout)
		if err == nil {
			return nil
		}
		if isAuthFailure(err) {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrAuthentication, err))
		}
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) {
			return backoff.Permanent(err)
		}
		if !utils.IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		klog.V(4).Infof("Transient error connecting to %s: %v", addr, err)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 3 * opts.Timeout

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, opts.DialAttempts-1), ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	klog.V(4).Infof("Successfully connected to array at %s", addr)
	return &Client{address: addr, user: user, conn: conn}, nil
}

// dialContext performs the TCP connect and SSH handshake, honoring ctx cancellation
func dialContext(ctx context.Context, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = netConn.SetDeadline(deadline)

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		_ = netConn.Close()
		return nil, err
	}
	// Handshake done; commands carry their own cancellation
	_ = netConn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Address returns host:port of the connected endpoint
func (c *Client) Address() string {
	return c.address
}

// Run executes a command in a new session. Cancelling ctx aborts the session.
func (c *Client) Run(ctx context.Context, command string) (string, error) {
	if c.conn == nil {
		return "", fmt.Errorf("not connected to array")
	}

	klog.V(5).Infof("Executing array command: %s", command)

	session, err := c.conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return "", ctx.Err()
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), &CommandError{
				Command:    command,
				ExitStatus: exitErr.ExitStatus(),
				Stdout:     stdout.String(),
				Stderr:     stderr.String(),
			}
		}
		return "", fmt.Errorf("failed to run command: %w", err)
	}

	output := stdout.String()
	klog.V(5).Infof("Command output: %s", output)
	return output, nil
}

// RunReadOnly executes a command that does not change array state, retrying transport errors
func (c *Client) RunReadOnly(ctx context.Context, command string) (string, error) {
	var output string
	err := utils.RetryWithBackoff(ctx, utils.DefaultBackoffConfig(), func() error {
		var runErr error
		output, runErr = c.Run(ctx, command)
		return runErr
	})
	return output, err
}

// Close closes the SSH connection
func (c *Client) Close() error {
	if c.conn != nil {
		klog.V(4).Infof("Closing SSH connection to %s", c.address)
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// KnownHostsCallback builds a host key callback from an OpenSSH known_hosts file.
// Mismatches are reported as critical security events.
func KnownHostsCallback(path string) (ssh.HostKeyCallback, error) {
	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts: %w", err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) > 0 {
			security.GetLogger().LogSSHHostKeyMismatch(hostname, err)
		}
		return err
	}, nil
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

func withDefaultPort(address string, port int) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(strings.Trim(address, "[]"), strconv.Itoa(port))
}
