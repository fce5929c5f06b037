package driver

import (
	"context"
	"time"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/security"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/utils"
)

// ControllerUnpublishVolume removes the mapping between the volume and the node's array host.
// A volume that is no longer mapped is reported as success.
func (cs *ControllerServer) ControllerUnpublishVolume(ctx context.Context, req *csi.ControllerUnpublishVolumeRequest) (*csi.ControllerUnpublishVolumeResponse, error) {
	startTime := time.Now()
	volumeID := req.GetVolumeId()
	nodeID := req.GetNodeId()
	logger := klog.FromContext(ctx)

	logger.V(2).Info("ControllerUnpublishVolume called", "volumeID", volumeID, "nodeID", nodeID)

	host, nodeName, err := cs.unpublish(ctx, req)
	duration := time.Since(startTime)

	if cs.driver.metrics != nil {
		cs.driver.metrics.RecordVolumeOp("unpublish", status.Code(err).String(), duration)
	}

	if err != nil {
		security.GetLogger().LogVolumeDetach(RequestIDFromContext(ctx), volumeID, nodeID, host, security.OutcomeFailure, err, duration)
		cs.postEvent(ctx, func(ctx context.Context, ep *EventPoster) {
			ep.PostDetachFailed(ctx, nodeName, volumeID, err)
		})
		return nil, err
	}

	security.GetLogger().LogVolumeDetach(RequestIDFromContext(ctx), volumeID, nodeID, host, security.OutcomeSuccess, nil, duration)
	cs.postEvent(ctx, func(ctx context.Context, ep *EventPoster) {
		ep.PostVolumeDetached(ctx, nodeName, volumeID, host)
	})

	logger.V(2).Info("Unpublished volume", "volumeID", volumeID, "host", host, "duration", duration)
	return &csi.ControllerUnpublishVolumeResponse{}, nil
}

// unpublish returns the array host and the Kubernetes node name for audit and events,
// as far as they were learned before any failure
func (cs *ControllerServer) unpublish(ctx context.Context, req *csi.ControllerUnpublishVolumeRequest) (string, string, error) {
	if err := validateUnpublishRequest(req); err != nil {
		return "", "", translateError(opValidate, err)
	}

	vol, err := utils.DecodeVolumeID(req.GetVolumeId())
	if err != nil {
		return "", "", translateError(opDecodeUnpublish, err)
	}
	node, err := utils.DecodeNodeID(req.GetNodeId())
	if err != nil {
		return "", "", translateError(opDecodeUnpublish, err)
	}
	warnMalformedInitiators(ctx, node)

	creds, err := array.CredentialsFromSecrets(req.GetSecrets())
	if err != nil {
		return "", node.Hostname, translateError(opValidate, utils.NewValidationError("secrets", err.Error()))
	}

	var host string
	err = cs.driver.connections.WithMediator(ctx, vol.ArrayType, creds, func(m array.Mediator) error {
		resolved, _, err := m.ResolveHost(ctx, node.IQNs, node.WWNs)
		if err != nil {
			return failedAt(opResolveHost, err)
		}
		host = resolved

		if err := m.UnmapVolume(ctx, vol.VolumeID, host); err != nil {
			if array.IsKind(err, array.KindVolumeAlreadyUnmapped) {
				klog.FromContext(ctx).V(2).Info("Volume already unmapped", "volumeID", vol.VolumeID, "host", host)
				return nil
			}
			return failedAt(opUnmapVolume, err)
		}
		return nil
	})
	if err != nil {
		return host, node.Hostname, toStatus(err, creds.ManagementAddresses)
	}
	return host, node.Hostname, nil
}
