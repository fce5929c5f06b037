package sshcli

import (
	"context"
	"sync"
)

// FakeSession is a scripted Session for testing families without an SSH server
type FakeSession struct {
	mu sync.Mutex

	// Handler answers every command; nil answers with empty output
	Handler func(command string) (string, error)

	Commands []string
	Closed   int
}

var _ Session = (*FakeSession)(nil)

func (f *FakeSession) Run(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	f.Commands = append(f.Commands, command)
	handler := f.Handler
	f.mu.Unlock()

	if handler == nil {
		return "", nil
	}
	return handler(command)
}

func (f *FakeSession) RunReadOnly(ctx context.Context, command string) (string, error) {
	return f.Run(ctx, command)
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed++
	return nil
}

// Executed returns a copy of the commands run so far
func (f *FakeSession) Executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Commands...)
}

// Failure builds the error a CLI reports through stderr and a non-zero exit
func Failure(command, stderr string) *CommandError {
	return &CommandError{Command: command, ExitStatus: 1, Stderr: stderr}
}
