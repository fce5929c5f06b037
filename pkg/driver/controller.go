package driver

import (
	"context"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"k8s.io/klog/v2"
)

// Publish context keys handed to the node plugin
const (
	PublishContextLUN               = "PUBLISH_CONTEXT_LUN"
	PublishContextConnectivity      = "PUBLISH_CONTEXT_CONNECTIVITY"
	PublishContextArrayIQN          = "PUBLISH_CONTEXT_ARRAY_IQN"
	PublishContextArrayFCInitiators = "PUBLISH_CONTEXT_ARRAY_FC_INITIATORS"
)

// ControllerServer implements the CSI Controller service.
// Only publish and unpublish are served; the embedded type answers
// every other RPC with Unimplemented.
type ControllerServer struct {
	csi.UnimplementedControllerServer
	driver *Driver
}

// NewControllerServer creates a new Controller service
func NewControllerServer(driver *Driver) *ControllerServer {
	return &ControllerServer{
		driver: driver,
	}
}

// ControllerGetCapabilities returns the capabilities of the controller service
func (cs *ControllerServer) ControllerGetCapabilities(ctx context.Context, req *csi.ControllerGetCapabilitiesRequest) (*csi.ControllerGetCapabilitiesResponse, error) {
	klog.V(5).Info("ControllerGetCapabilities called")

	return &csi.ControllerGetCapabilitiesResponse{
		Capabilities: cs.driver.cscaps,
	}, nil
}
