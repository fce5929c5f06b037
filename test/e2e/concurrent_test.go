package e2e

import (
	"fmt"
	"strconv"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/driver"
)

var _ = Describe("Concurrent publishing", func() {
	It("should give every volume on one host its own LUN", func() {
		const numVolumes = 12

		volumeIDs := make([]string, numVolumes)
		for i := range volumeIDs {
			volumeIDs[i] = testVolume(fmt.Sprintf("concurrent-%d", i))
		}
		DeferCleanup(func() {
			for _, id := range volumeIDs {
				_, _ = controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(id, iscsiNode))
			}
		})

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
			luns = map[string]string{}
		)
		for _, id := range volumeIDs {
			wg.Add(1)
			go func(volumeID string) {
				defer GinkgoRecover()
				defer wg.Done()

				resp, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, iscsiNode))
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", volumeID, err))
					return
				}
				luns[volumeID] = resp.PublishContext[driver.PublishContextLUN]
			}(id)
		}
		wg.Wait()

		Expect(errs).To(BeEmpty())
		Expect(luns).To(HaveLen(numVolumes))

		seen := map[string]string{}
		for volumeID, lun := range luns {
			Expect(seen).NotTo(HaveKey(lun), "LUN %s given to %s and %s", lun, seen[lun], volumeID)
			seen[lun] = volumeID

			onArray := mockArray.GetMappings(arrayVolumeName(volumeID))
			Expect(strconv.Itoa(onArray[iscsiNode.host])).To(Equal(lun))
		}
	})

	It("should hand a volume to another node only after unpublish", func() {
		volumeID := testVolume("handover")

		_, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, fcNode))
		Expect(err).NotTo(HaveOccurred())

		_, err = controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, iscsiNode))
		Expect(err).To(HaveOccurred(), "second node must wait for the first to unpublish")

		_, err = controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(volumeID, fcNode))
		Expect(err).NotTo(HaveOccurred())

		resp, err := controllerClient.ControllerPublishVolume(ctx, publishRequest(volumeID, iscsiNode))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.PublishContext).To(HaveKeyWithValue(driver.PublishContextConnectivity, "iscsi"))

		_, err = controllerClient.ControllerUnpublishVolume(ctx, unpublishRequest(volumeID, iscsiNode))
		Expect(err).NotTo(HaveOccurred())
	})
})
