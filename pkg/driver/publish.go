package driver

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/security"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/utils"
)

const eventTimeout = 5 * time.Second

// publishResult is what the orchestrator learned, kept for audit and events
type publishResult struct {
	host         string
	lun          int
	connectivity array.ConnectivityType
	context      map[string]string
}

// ControllerPublishVolume maps the volume to the node's array host and returns what
// the node needs to attach it
func (cs *ControllerServer) ControllerPublishVolume(ctx context.Context, req *csi.ControllerPublishVolumeRequest) (*csi.ControllerPublishVolumeResponse, error) {
	startTime := time.Now()
	volumeID := req.GetVolumeId()
	nodeID := req.GetNodeId()
	logger := klog.FromContext(ctx)

	logger.V(2).Info("ControllerPublishVolume called", "volumeID", volumeID, "nodeID", nodeID)

	result, err := cs.publish(ctx, req)
	duration := time.Since(startTime)

	if cs.driver.metrics != nil {
		cs.driver.metrics.RecordVolumeOp("publish", status.Code(err).String(), duration)
	}

	if err != nil {
		security.GetLogger().LogVolumeAttach(RequestIDFromContext(ctx), volumeID, nodeID, "", "", "", security.OutcomeFailure, err, duration)
		cs.postEvent(ctx, func(ctx context.Context, ep *EventPoster) {
			ep.PostAttachFailed(ctx, req.GetVolumeContext(), volumeID, nodeID, err)
		})
		return nil, err
	}

	lun := strconv.Itoa(result.lun)
	security.GetLogger().LogVolumeAttach(RequestIDFromContext(ctx), volumeID, nodeID, result.host, lun, string(result.connectivity), security.OutcomeSuccess, nil, duration)
	cs.postEvent(ctx, func(ctx context.Context, ep *EventPoster) {
		ep.PostVolumeAttached(ctx, req.GetVolumeContext(), volumeID, result.host, result.lun, string(result.connectivity))
	})

	logger.V(2).Info("Published volume", "volumeID", volumeID, "host", result.host, "lun", result.lun,
		"connectivity", result.connectivity, "duration", duration)

	return &csi.ControllerPublishVolumeResponse{
		PublishContext: result.context,
	}, nil
}

func (cs *ControllerServer) publish(ctx context.Context, req *csi.ControllerPublishVolumeRequest) (*publishResult, error) {
	if err := validatePublishRequest(req, cs.driver.vcaps); err != nil {
		return nil, translateError(opValidate, err)
	}

	vol, err := utils.DecodeVolumeID(req.GetVolumeId())
	if err != nil {
		return nil, translateError(opDecodePublish, err)
	}
	node, err := utils.DecodeNodeID(req.GetNodeId())
	if err != nil {
		return nil, translateError(opDecodePublish, err)
	}
	warnMalformedInitiators(ctx, node)

	creds, err := array.CredentialsFromSecrets(req.GetSecrets())
	if err != nil {
		return nil, translateError(opValidate, utils.NewValidationError("secrets", err.Error()))
	}

	var result *publishResult
	err = cs.driver.connections.WithMediator(ctx, vol.ArrayType, creds, func(m array.Mediator) error {
		var perr error
		result, perr = cs.publishWith(ctx, m, vol, node)
		return perr
	})
	if err != nil {
		if serr := toStatus(err, creds.ManagementAddresses); serr != nil {
			return nil, serr
		}
		return nil, status.Errorf(codes.Internal, "publish of %s did not complete: %v", vol, err)
	}
	return result, nil
}

// publishWith runs the publish steps against an open session
func (cs *ControllerServer) publishWith(ctx context.Context, m array.Mediator, vol utils.VolumeIdentifier, node utils.NodeIdentifier) (*publishResult, error) {
	logger := klog.FromContext(ctx)

	host, supported, err := m.ResolveHost(ctx, node.IQNs, node.WWNs)
	if err != nil {
		return nil, failedAt(opResolveHost, err)
	}
	connectivity := array.PreferredConnectivity(supported)
	logger.V(4).Info("Resolved host", "host", host, "supported", supported, "connectivity", connectivity)

	mappings, err := m.ListVolumeMappings(ctx, vol.VolumeID)
	if err != nil {
		return nil, failedAt(opListMappings, err)
	}

	var lun int
	switch {
	case len(mappings) == 0:
		lun, err = cs.allocateLUN(ctx, m, vol, host, connectivity)
		if err != nil {
			return nil, failedAt(opMapVolume, err)
		}
	case isMappedOnlyTo(mappings, host):
		lun = mappings[host]
		logger.V(2).Info("Volume already mapped to host", "volumeID", vol.VolumeID, "host", host, "lun", lun)
	default:
		return nil, failedAt(opListMappings, newMappingConflictError(vol.VolumeID, mappings))
	}

	publishContext, err := buildPublishContext(ctx, m, lun, connectivity)
	if err != nil {
		return nil, failedAt(opListTargets, err)
	}

	return &publishResult{
		host:         host,
		lun:          lun,
		connectivity: connectivity,
		context:      publishContext,
	}, nil
}

// allocateLUN maps the volume, retrying while the array reports the chosen LUN as taken
func (cs *ControllerServer) allocateLUN(ctx context.Context, m array.Mediator, vol utils.VolumeIdentifier, host string, connectivity array.ConnectivityType) (int, error) {
	logger := klog.FromContext(ctx)
	attempts := m.MaxLUNRetries() + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		lun, err := m.MapVolume(ctx, vol.VolumeID, host, connectivity)
		if err == nil {
			cs.recordLUNAllocation(vol.ArrayType, "mapped")
			return lun, nil
		}
		if !array.IsKind(err, array.KindLunAlreadyInUse) {
			cs.recordLUNAllocation(vol.ArrayType, "failed")
			return 0, err
		}

		cs.recordLUNAllocation(vol.ArrayType, "collision")
		logger.V(4).Info("LUN collision, retrying", "volumeID", vol.VolumeID, "host", host, "attempt", attempt, "of", attempts)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
	}

	cs.recordLUNAllocation(vol.ArrayType, "exhausted")
	return 0, &lunExhaustedError{volume: vol.VolumeID, host: host, attempts: attempts}
}

func (cs *ControllerServer) recordLUNAllocation(arrayType, result string) {
	if cs.driver.metrics != nil {
		cs.driver.metrics.RecordLUNAllocation(arrayType, result)
	}
}

// isMappedOnlyTo reports whether host holds the only mapping of the volume
func isMappedOnlyTo(mappings map[string]int, host string) bool {
	if len(mappings) != 1 {
		return false
	}
	_, ok := mappings[host]
	return ok
}

// buildPublishContext lists the array targets for the chosen transport
func buildPublishContext(ctx context.Context, m array.Mediator, lun int, connectivity array.ConnectivityType) (map[string]string, error) {
	publishContext := map[string]string{
		PublishContextLUN:          strconv.Itoa(lun),
		PublishContextConnectivity: string(connectivity),
	}

	if connectivity == array.ConnectivityFC {
		targets, err := m.ArrayFCTargets(ctx)
		if err != nil {
			return nil, err
		}
		publishContext[PublishContextArrayFCInitiators] = strings.Join(targets, ",")
		return publishContext, nil
	}

	targets, err := m.ArrayISCSITargets(ctx)
	if err != nil {
		return nil, err
	}
	publishContext[PublishContextArrayIQN] = strings.Join(targets, ",")
	return publishContext, nil
}

// postEvent runs post with a context that survives the RPC's cancellation
func (cs *ControllerServer) postEvent(ctx context.Context, post func(context.Context, *EventPoster)) {
	if cs.driver.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()
	post(ctx, cs.driver.events)
}
