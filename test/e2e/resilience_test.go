package e2e

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/test/mock"
)

var _ = Describe("Array failures", func() {
	BeforeEach(func() {
		DeferCleanup(mockArray.ResetErrorInjector)
	})

	Context("LUN collisions", func() {
		It("should retry with another LUN", func() {
			volumeID := testVolume("collision-retry")
			DeferCleanup(func() {
				_, _ = controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(volumeID, iscsiNode))
			})

			mockArray.InjectErrors(mock.ErrorModeLunCollision, 0, 3)
			before := mockArray.CountCommands("map_vol")

			_, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, iscsiNode))
			Expect(err).NotTo(HaveOccurred())
			Expect(mockArray.CountCommands("map_vol") - before).To(Equal(4))
			Expect(mockArray.GetMappings(arrayVolumeName(volumeID))).To(HaveKey(iscsiNode.host))
		})

		It("should give up after the retry budget", func() {
			volumeID := testVolume("collision-exhausted")

			mockArray.InjectErrors(mock.ErrorModeLunCollision, 0, 0)
			before := mockArray.CountCommands("map_vol")

			_, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, iscsiNode))
			Expect(status.Code(err)).To(Equal(codes.ResourceExhausted))
			Expect(mockArray.CountCommands("map_vol") - before).To(Equal(11))
			Expect(mockArray.GetMappings(arrayVolumeName(volumeID))).To(BeEmpty())
		})
	})

	It("should report refused commands as permission denied", func() {
		volumeID := testVolume("access-denied")
		mockArray.InjectErrors(mock.ErrorModeAccessDenied, 0, 0)

		_, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, iscsiNode))
		Expect(status.Code(err)).To(Equal(codes.PermissionDenied))

		mockArray.SetMapping(arrayVolumeName(volumeID), iscsiNode.host, 17)
		_, err = controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(volumeID, iscsiNode))
		Expect(status.Code(err)).To(Equal(codes.PermissionDenied))
		Expect(mockArray.GetMappings(arrayVolumeName(volumeID))).To(HaveKey(iscsiNode.host))
	})

	It("should report a generic command failure as internal", func() {
		volumeID := testVolume("command-fail")
		mockArray.InjectErrors(mock.ErrorModeCommandFail, 0, 1)

		_, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, iscsiNode))
		Expect(status.Code(err)).To(Equal(codes.Internal))
	})

	It("should refuse a bad password", func() {
		req := publishRequest(testVolume("bad-password"), iscsiNode)
		req.Secrets[array.SecretPassword] = "wrong"

		_, err := controllerClient.ControllerPublishVolume(ctx, req)
		Expect(status.Code(err)).To(Equal(codes.PermissionDenied))
	})

	It("should report a session timeout as unavailable", func() {
		mockArray.InjectErrors(mock.ErrorModeSSHTimeout, 0, 1)

		_, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(testVolume("ssh-timeout"), iscsiNode))
		Expect(status.Code(err)).To(Equal(codes.Unavailable))

		// the next session goes through and resets the breaker's failure count
		_, err = controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(testVolume("after-timeout"), iscsiNode))
		Expect(err).NotTo(HaveOccurred())
	})

	Context("management addresses", func() {
		It("should fall back to the next address", func() {
			volumeID := testVolume("fallback")
			DeferCleanup(func() {
				_, _ = controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(volumeID, iscsiNode))
			})

			req := publishRequest(volumeID, iscsiNode)
			req.Secrets = arraySecrets(unreachableAddress + "," + mockArray.ManagementAddress())

			_, err := controllerClient.ControllerPublishVolume(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(mockArray.GetMappings(arrayVolumeName(volumeID))).To(HaveKey(iscsiNode.host))
		})

		It("should be unavailable when no address answers", func() {
			req := publishRequest(testVolume("unreachable"), iscsiNode)
			req.Secrets = arraySecrets(unreachableAddress)

			// the breaker opens after breakerFailures; the code stays the same
			for i := 0; i < breakerFailures+1; i++ {
				_, err := controllerClient.ControllerPublishVolume(ctx, req)
				Expect(status.Code(err)).To(Equal(codes.Unavailable), "attempt %d", i+1)
				Expect(status.Convert(err).Message()).NotTo(ContainSubstring("127.0.0.1"))
			}
		})
	})
})
