package driver

import (
	"context"
	"testing"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
)

func TestGetPluginInfo(t *testing.T) {
	d := newTestDriver(t, array.NewMockMediator())
	ids := NewIdentityServer(d)

	resp, err := ids.GetPluginInfo(context.Background(), &csi.GetPluginInfoRequest{})
	if err != nil {
		t.Fatalf("GetPluginInfo failed: %v", err)
	}
	if resp.Name != DriverName {
		t.Errorf("expected name %s, got %s", DriverName, resp.Name)
	}
	if resp.VendorVersion == "" {
		t.Error("expected a vendor version")
	}
}

func TestGetPluginInfo_NoName(t *testing.T) {
	ids := NewIdentityServer(&Driver{})

	_, err := ids.GetPluginInfo(context.Background(), &csi.GetPluginInfoRequest{})
	if status.Code(err) != codes.Unavailable {
		t.Errorf("expected Unavailable, got %v", err)
	}
}

func TestGetPluginCapabilities(t *testing.T) {
	ids := NewIdentityServer(newTestDriver(t, array.NewMockMediator()))

	resp, err := ids.GetPluginCapabilities(context.Background(), &csi.GetPluginCapabilitiesRequest{})
	if err != nil {
		t.Fatalf("GetPluginCapabilities failed: %v", err)
	}
	if len(resp.Capabilities) != 1 {
		t.Fatalf("expected 1 capability, got %d", len(resp.Capabilities))
	}
	if got := resp.Capabilities[0].GetService().GetType(); got != csi.PluginCapability_Service_CONTROLLER_SERVICE {
		t.Errorf("expected CONTROLLER_SERVICE, got %v", got)
	}
}

func TestProbe(t *testing.T) {
	ids := NewIdentityServer(newTestDriver(t, array.NewMockMediator()))

	resp, err := ids.Probe(context.Background(), &csi.ProbeRequest{})
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if !resp.GetReady().GetValue() {
		t.Error("expected driver to be ready")
	}

	resp, _ = NewIdentityServer(&Driver{}).Probe(context.Background(), &csi.ProbeRequest{})
	if resp.GetReady().GetValue() {
		t.Error("expected driver without connections to be not ready")
	}
}
