package sshcli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/security"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/utils"
)

// CodeTable maps CLI failure codes to array error kinds
type CodeTable map[string]array.ErrorKind

// Dialect knows how one family's CLI reports failures
type Dialect struct {
	Name string

	// Code extracts the failure code and message from the output of a failed command
	Code func(output string) (code, message string)

	// Common applies to every command, after the per-command table
	Common CodeTable
}

// Classify turns a command failure into an array error. Codes found in neither
// table fall back to fallback; a zero fallback keeps the error untyped.
// Failures without an exit status are transport failures.
func (d Dialect) Classify(err error, table CodeTable, fallback array.ErrorKind) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return array.NewError(array.KindConnectionFailed, "%s session failed", d.Name).Wrap(err)
	}

	code, message := d.Code(cmdErr.Output())
	if message == "" {
		message = strings.TrimSpace(cmdErr.Output())
	}

	if kind, ok := table[code]; ok {
		return array.NewError(kind, "%s", message).Wrap(err)
	}
	if kind, ok := d.Common[code]; ok {
		return array.NewError(kind, "%s", message).Wrap(err)
	}
	if fallback != 0 {
		return array.NewError(fallback, "%s", message).Wrap(err)
	}
	return fmt.Errorf("%s %s: %w", d.Name, code, err)
}

// Annotate records volume and host on an array error; other errors pass through
func Annotate(err error, volume, host string) error {
	var ae *array.Error
	if !errors.As(err, &ae) {
		return err
	}
	if volume != "" {
		ae.WithVolume(volume)
	}
	if host != "" {
		ae.WithHost(host)
	}
	return err
}

// CheckArgument rejects host and volume names that are unsafe to place in a CLI command
func CheckArgument(field, value string) error {
	if err := utils.ValidateCLIArgument(field, value); err != nil {
		security.GetLogger().LogCommandInjectionAttempt(field, value)
		return fmt.Errorf("refusing %s: %w", field, err)
	}
	return nil
}
