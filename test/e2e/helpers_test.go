package e2e

import (
	"fmt"

	"github.com/container-storage-interface/spec/lib/go/csi"
	. "github.com/onsi/gomega"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/array/a9k"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/utils"
)

// testVolume creates a volume on the mock array and returns its CSI volume id.
// The test run ID keeps names unique across runs.
func testVolume(name string) string {
	volume := fmt.Sprintf("%s-%s", testRunID, name)
	mockArray.AddVolume(volume)
	return utils.EncodeVolumeID(a9k.ArrayType, volume)
}

// arrayVolumeName strips the array type from a CSI volume id
func arrayVolumeName(volumeID string) string {
	vol, err := utils.DecodeVolumeID(volumeID)
	Expect(err).NotTo(HaveOccurred())
	return vol.VolumeID
}

func arraySecrets(addresses string) map[string]string {
	user, password := mockArray.Credentials()
	return map[string]string{
		array.SecretUsername:          user,
		array.SecretPassword:          password,
		array.SecretManagementAddress: addresses,
	}
}

// blockVolumeCapability returns a block volume capability with SINGLE_NODE_WRITER access mode
func blockVolumeCapability() *csi.VolumeCapability {
	return &csi.VolumeCapability{
		AccessMode: &csi.VolumeCapability_AccessMode{
			Mode: csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER,
		},
		AccessType: &csi.VolumeCapability_Block{
			Block: &csi.VolumeCapability_BlockVolume{},
		},
	}
}

// mountVolumeCapability returns a mount volume capability with SINGLE_NODE_WRITER access mode
func mountVolumeCapability(fsType string) *csi.VolumeCapability {
	return &csi.VolumeCapability{
		AccessMode: &csi.VolumeCapability_AccessMode{
			Mode: csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER,
		},
		AccessType: &csi.VolumeCapability_Mount{
			Mount: &csi.VolumeCapability_MountVolume{FsType: fsType},
		},
	}
}

func publishRequest(volumeID string, node testNode) *csi.ControllerPublishVolumeRequest {
	return &csi.ControllerPublishVolumeRequest{
		VolumeId:         volumeID,
		NodeId:           node.nodeID(),
		VolumeCapability: blockVolumeCapability(),
		Secrets:          arraySecrets(mockArray.ManagementAddress()),
	}
}

func unpublishRequest(volumeID string, node testNode) *csi.ControllerUnpublishVolumeRequest {
	return &csi.ControllerUnpublishVolumeRequest{
		VolumeId: volumeID,
		NodeId:   node.nodeID(),
		Secrets:  arraySecrets(mockArray.ManagementAddress()),
	}
}
