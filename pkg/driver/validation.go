package driver

import (
	"context"
	"errors"
	"strings"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/security"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/utils"
)

var requiredSecrets = []string{array.SecretUsername, array.SecretPassword, array.SecretManagementAddress}

// validatePublishRequest checks the request shape before anything is decoded
func validatePublishRequest(req *csi.ControllerPublishVolumeRequest, modes []*csi.VolumeCapability_AccessMode) error {
	if req.GetVolumeId() == "" {
		return rejected("ControllerPublishVolume", utils.NewMissingParameterError("volume_id"))
	}
	if req.GetNodeId() == "" {
		return rejected("ControllerPublishVolume", utils.NewMissingParameterError("node_id"))
	}
	if err := validateVolumeCapability(req.GetVolumeCapability(), modes); err != nil {
		return rejected("ControllerPublishVolume", err)
	}
	if req.GetReadonly() {
		return rejected("ControllerPublishVolume", utils.NewValidationError("readonly", "read-only publish is not supported"))
	}
	if err := validateSecrets(req.GetSecrets()); err != nil {
		return rejected("ControllerPublishVolume", err)
	}
	return nil
}

func validateUnpublishRequest(req *csi.ControllerUnpublishVolumeRequest) error {
	if req.GetVolumeId() == "" {
		return rejected("ControllerUnpublishVolume", utils.NewMissingParameterError("volume_id"))
	}
	if req.GetNodeId() == "" {
		return rejected("ControllerUnpublishVolume", utils.NewMissingParameterError("node_id"))
	}
	if err := validateSecrets(req.GetSecrets()); err != nil {
		return rejected("ControllerUnpublishVolume", err)
	}
	return nil
}

// validateVolumeCapability accepts block or mount access in one of the driver's access modes
func validateVolumeCapability(vc *csi.VolumeCapability, modes []*csi.VolumeCapability_AccessMode) error {
	if vc == nil {
		return utils.NewMissingParameterError("volume_capability")
	}
	if vc.GetAccessMode() == nil {
		return utils.NewMissingParameterError("volume_capability.access_mode")
	}
	if mode := vc.GetAccessMode().GetMode(); !supportsAccessMode(modes, mode) {
		return utils.NewValidationError("volume_capability.access_mode", "unsupported access mode "+mode.String())
	}
	if vc.GetBlock() == nil && vc.GetMount() == nil {
		return utils.NewValidationError("volume_capability.access_type", "block or mount access type is required")
	}
	return nil
}

func supportsAccessMode(modes []*csi.VolumeCapability_AccessMode, mode csi.VolumeCapability_AccessMode_Mode) bool {
	for _, m := range modes {
		if m.GetMode() == mode {
			return true
		}
	}
	return false
}

func validateSecrets(secrets map[string]string) error {
	for _, key := range requiredSecrets {
		if secrets[key] == "" {
			return utils.NewMissingParameterError("secrets." + key)
		}
	}
	return nil
}

// rejected records the validation failure in the audit log and passes it on
func rejected(operation string, err error) error {
	field, reason := "", err.Error()
	var se *utils.SanitizedError
	if errors.As(err, &se) {
		field = se.Field()
	}
	security.GetLogger().LogValidationFailure(operation, field, reason)
	return err
}

// warnMalformedInitiators logs initiators the array will never match. The node id is
// still used as given; an unmatched node surfaces as HostNotFound.
func warnMalformedInitiators(ctx context.Context, node utils.NodeIdentifier) {
	logger := klog.FromContext(ctx)
	for _, iqn := range node.IQNs {
		if err := utils.ValidateIQN(iqn); err != nil {
			logger.Info("Node reports a malformed iSCSI initiator", "node", node.Hostname, "err", err)
		}
	}
	for _, wwn := range node.WWNs {
		if err := utils.ValidateWWN(strings.ReplaceAll(wwn, ":", "")); err != nil {
			logger.Info("Node reports a malformed FC port name", "node", node.Hostname, "err", err)
		}
	}
}
