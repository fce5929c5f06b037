package e2e

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ = Describe("ControllerUnpublishVolume", func() {
	It("should remove the mapping created by publish", func() {
		volumeID := testVolume("unpublish")

		_, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, fcNode))
		Expect(err).NotTo(HaveOccurred())
		Expect(mockArray.GetMappings(arrayVolumeName(volumeID))).To(HaveKey(fcNode.host))

		_, err = controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(volumeID, fcNode))
		Expect(err).NotTo(HaveOccurred())
		Expect(mockArray.GetMappings(arrayVolumeName(volumeID))).To(BeEmpty())
	})

	It("should succeed for a volume that is not mapped", func() {
		volumeID := testVolume("unpublish-unmapped")

		_, err := controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(volumeID, iscsiNode))
		Expect(err).NotTo(HaveOccurred())

		_, err = controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(volumeID, iscsiNode))
		Expect(err).NotTo(HaveOccurred(), "repeated unpublish stays successful")
	})

	It("should leave other hosts' mappings alone", func() {
		volumeID := testVolume("unpublish-other")
		mockArray.SetMapping(arrayVolumeName(volumeID), otherNode.host, 4)

		_, err := controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(volumeID, iscsiNode))
		Expect(err).NotTo(HaveOccurred())
		Expect(mockArray.GetMappings(arrayVolumeName(volumeID))).To(Equal(map[string]int{otherNode.host: 4}))
	})

	It("should map malformed ids to the documented codes", func() {
		_, err := controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest("not-a-volume-id", iscsiNode))
		Expect(status.Code(err)).To(Equal(codes.InvalidArgument))

		req := unpublishRequest(testVolume("unpublish-bad-node"), iscsiNode)
		req.NodeId = "just-a-hostname"
		_, err = controllerClient.ControllerUnpublishVolume(ctx, req)
		Expect(status.Code(err)).To(Equal(codes.NotFound))
	})

	It("should report a missing volume as not found", func() {
		_, err := controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest("a9k:"+testRunID+"-missing", iscsiNode))
		Expect(status.Code(err)).To(Equal(codes.NotFound))
	})
})
