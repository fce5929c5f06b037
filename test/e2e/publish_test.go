package e2e

import (
	"strconv"

	"github.com/container-storage-interface/spec/lib/go/csi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/driver"
)

var _ = Describe("ControllerPublishVolume", func() {
	It("should map a volume over FC and return the array FC targets", func() {
		volumeID := testVolume("publish-fc")
		DeferCleanup(func() {
			_, _ = controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(volumeID, fcNode))
		})

		resp, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, fcNode))
		Expect(err).NotTo(HaveOccurred())

		pc := resp.PublishContext
		Expect(pc).To(HaveKeyWithValue(driver.PublishContextConnectivity, "fc"))
		Expect(pc).To(HaveKeyWithValue(driver.PublishContextArrayFCInitiators, "500143802426baf4,500143806626bae2"))
		Expect(pc).NotTo(HaveKey(driver.PublishContextArrayIQN))

		lun, err := strconv.Atoi(pc[driver.PublishContextLUN])
		Expect(err).NotTo(HaveOccurred())
		Expect(mockArray.GetMappings(arrayVolumeName(volumeID))).To(Equal(map[string]int{fcNode.host: lun}))
	})

	It("should map a volume over iSCSI and return the array IQN", func() {
		volumeID := testVolume("publish-iscsi")
		DeferCleanup(func() {
			_, _ = controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(volumeID, iscsiNode))
		})

		req := publishRequest(volumeID, iscsiNode)
		req.VolumeCapability = mountVolumeCapability("xfs")
		resp, err := controllerClient.ControllerPublishVolume(ctx, req)
		Expect(err).NotTo(HaveOccurred())

		Expect(resp.PublishContext).To(HaveKeyWithValue(driver.PublishContextConnectivity, "iscsi"))
		Expect(resp.PublishContext).To(HaveKeyWithValue(driver.PublishContextArrayIQN, "iqn.2005-10.com.xivstorage:000001"))
		Expect(resp.PublishContext).NotTo(HaveKey(driver.PublishContextArrayFCInitiators))
	})

	It("should be idempotent for the same node", func() {
		volumeID := testVolume("publish-idempotent")
		DeferCleanup(func() {
			_, _ = controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(volumeID, iscsiNode))
		})

		first, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, iscsiNode))
		Expect(err).NotTo(HaveOccurred())

		mapsBefore := mockArray.CountCommands("map_vol")
		second, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, iscsiNode))
		Expect(err).NotTo(HaveOccurred())

		Expect(second.PublishContext).To(Equal(first.PublishContext))
		Expect(mockArray.CountCommands("map_vol")).To(Equal(mapsBefore), "second publish must not map again")
	})

	It("should refuse a volume mapped to another node", func() {
		volumeID := testVolume("publish-conflict")
		mockArray.SetMapping(arrayVolumeName(volumeID), otherNode.host, 9)

		_, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, iscsiNode))
		Expect(status.Code(err)).To(Equal(codes.FailedPrecondition))
		Expect(status.Convert(err).Message()).To(ContainSubstring("Volume is already mapped"))
		Expect(mockArray.GetMappings(arrayVolumeName(volumeID))).To(Equal(map[string]int{otherNode.host: 9}))
	})

	It("should report unknown nodes and volumes as not found", func() {
		volumeID := testVolume("publish-unknown")

		_, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, unknownNode))
		Expect(status.Code(err)).To(Equal(codes.NotFound))

		_, err = controllerClient.ControllerPublishVolume(ctx, publishRequest("a9k:"+testRunID+"-missing", iscsiNode))
		Expect(status.Code(err)).To(Equal(codes.NotFound))

		_, err = controllerClient.ControllerPublishVolume(ctx, publishRequest("not-a-volume-id", iscsiNode))
		Expect(status.Code(err)).To(Equal(codes.NotFound))
	})

	It("should fail when two hosts own the node's initiators", func() {
		shared := testNode{host: "shared-worker", iqns: []string{"iqn.1994-05.com.redhat:shared"}}
		mockArray.AddHost("shared-a", shared.iqns, nil)
		mockArray.AddHost("shared-b", shared.iqns, nil)

		_, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(testVolume("publish-shared"), shared))
		Expect(status.Code(err)).To(Equal(codes.Internal))
		Expect(status.Convert(err).Message()).To(ContainSubstring("Multiple hosts"))
	})

	It("should reject invalid requests before contacting the array", func() {
		volumeID := testVolume("publish-invalid")
		before := len(mockArray.GetCommandHistory())

		req := publishRequest(volumeID, iscsiNode)
		req.Readonly = true
		_, err := controllerClient.ControllerPublishVolume(ctx, req)
		Expect(status.Code(err)).To(Equal(codes.InvalidArgument))

		req = publishRequest(volumeID, iscsiNode)
		req.VolumeCapability.AccessMode.Mode = csi.VolumeCapability_AccessMode_MULTI_NODE_MULTI_WRITER
		_, err = controllerClient.ControllerPublishVolume(ctx, req)
		Expect(status.Code(err)).To(Equal(codes.InvalidArgument))

		Expect(mockArray.GetCommandHistory()).To(HaveLen(before))
	})
})
