package sshcli

import (
	"context"
	"errors"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
)

// Session is what a family needs from an open management connection
type Session interface {
	Runner

	// RunReadOnly is Run with transport retries; only for commands that do not change array state
	RunReadOnly(ctx context.Context, command string) (string, error)

	Close() error
}

var _ Session = (*Client)(nil)

// Open dials target and reports failures as array errors: refused credentials
// become PermissionDenied, everything else ConnectionFailed.
func Open(ctx context.Context, target array.Target, opts Options) (*Client, error) {
	client, err := Dial(ctx, target.Address, target.Username, target.Password, opts)
	if err == nil {
		return client, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(err, ErrAuthentication) {
		return nil, array.NewError(array.KindPermissionDenied, "login as %s refused by %s", target.Username, target.Address).Wrap(err)
	}
	return nil, array.NewError(array.KindConnectionFailed, "cannot reach %s", target.Address).Wrap(err)
}
