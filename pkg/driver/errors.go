package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/utils"
)

// operation names the orchestration step an error came from
type operation string

const (
	opValidate        operation = "validate"
	opDecodePublish   operation = "decode_publish"
	opDecodeUnpublish operation = "decode_unpublish"
	opConnect         operation = "connect"
	opResolveHost     operation = "resolve_host"
	opListMappings    operation = "list_mappings"
	opMapVolume       operation = "map_volume"
	opUnmapVolume     operation = "unmap_volume"
	opListTargets     operation = "list_targets"
)

// mappingConflictError means the volume is mapped to some other host
type mappingConflictError struct {
	volume string
	hosts  []string
}

func newMappingConflictError(volume string, mappings map[string]int) *mappingConflictError {
	hosts := make([]string, 0, len(mappings))
	for h := range mappings {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return &mappingConflictError{volume: volume, hosts: hosts}
}

func (e *mappingConflictError) Error() string {
	return fmt.Sprintf("Volume is already mapped to host(s) %s", strings.Join(e.hosts, ", "))
}

// lunExhaustedError means every MapVolume attempt collided with a LUN in use
type lunExhaustedError struct {
	volume   string
	host     string
	attempts int
}

func (e *lunExhaustedError) Error() string {
	return fmt.Sprintf("no free LUN for volume %s on host %s after %d attempts", e.volume, e.host, e.attempts)
}

// stepError carries the step a failure happened in through WithMediator
type stepError struct {
	op  operation
	err error
}

func (e *stepError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *stepError) Unwrap() error {
	return e.err
}

func failedAt(op operation, err error) error {
	if err == nil {
		return nil
	}
	return &stepError{op: op, err: err}
}

// toStatus translates an orchestration error; errors without a step come from acquiring the session.
// The request's management addresses never reach the CO.
func toStatus(err error, addresses []string) error {
	op := opConnect
	var se *stepError
	if errors.As(err, &se) {
		op, err = se.op, se.err
	}

	serr := translateError(op, err)
	if serr == nil || len(addresses) == 0 {
		return serr
	}
	st := status.Convert(serr)
	return status.Error(st.Code(), utils.RedactAddresses(st.Message(), addresses))
}

// translateError maps an error from one step to the gRPC status returned to the CO.
// A nil result means the step's failure is a success for the caller.
func translateError(op operation, err error) error {
	if err == nil {
		return nil
	}

	code := classify(op, err)
	if code == codes.OK {
		klog.V(4).Infof("Treating %s failure as success: %v", op, err)
		return nil
	}

	return status.Error(code, fmt.Sprintf("%s: %s", op, utils.GetSanitizedMessage(err)))
}

func classify(op operation, err error) codes.Code {
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return s.Code()
	}

	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, array.ErrUnsupportedArrayType):
		return codes.InvalidArgument
	case errors.Is(err, array.ErrArrayUnavailable):
		return codes.Unavailable
	case utils.IsValidationError(err):
		return codes.InvalidArgument
	}

	var idErr *utils.IdentifierFormatError
	if errors.As(err, &idErr) {
		if idErr.Kind == utils.IdentifierVolume && op == opDecodeUnpublish {
			return codes.InvalidArgument
		}
		return codes.NotFound
	}

	var conflict *mappingConflictError
	if errors.As(err, &conflict) {
		return codes.FailedPrecondition
	}

	var exhausted *lunExhaustedError
	if errors.As(err, &exhausted) {
		return codes.ResourceExhausted
	}

	kind, ok := array.KindOf(err)
	if !ok {
		return codes.Internal
	}

	switch kind {
	case array.KindHostNotFound, array.KindVolumeNotFound:
		return codes.NotFound
	case array.KindPermissionDenied:
		return codes.PermissionDenied
	case array.KindLunAlreadyInUse:
		return codes.ResourceExhausted
	case array.KindVolumeAlreadyUnmapped:
		return codes.OK
	case array.KindConnectionFailed:
		return codes.Unavailable
	default:
		// MultipleHostsFound, MappingFailed, UnmappingFailed
		return codes.Internal
	}
}
