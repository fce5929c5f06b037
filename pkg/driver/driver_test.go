package driver

import (
	"testing"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"k8s.io/client-go/kubernetes/fake"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
)

func TestNewDriver_RequiresConnections(t *testing.T) {
	if _, err := NewDriver(DriverConfig{}); err == nil {
		t.Fatal("expected error without Connections")
	}
}

func TestNewDriver_Defaults(t *testing.T) {
	d := newTestDriver(t, array.NewMockMediator())

	if d.name != DriverName {
		t.Errorf("expected default name %s, got %s", DriverName, d.name)
	}
	if d.version != version {
		t.Errorf("expected version %s, got %s", version, d.version)
	}
	if d.events != nil {
		t.Error("events should be disabled by default")
	}
	if d.GetMetrics() == nil {
		t.Error("expected metrics to be kept")
	}
	if len(d.vcaps) != 1 || d.vcaps[0].Mode != csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER {
		t.Errorf("unexpected volume capabilities %v", d.vcaps)
	}
}

func TestNewDriver_Events(t *testing.T) {
	cm := newTestDriver(t, array.NewMockMediator()).connections

	if _, err := NewDriver(DriverConfig{Connections: cm, EnableEvents: true}); err == nil {
		t.Error("expected error when events are enabled without a Kubernetes client")
	}

	d, err := NewDriver(DriverConfig{
		DriverName:   "custom.csi.example.com",
		Connections:  cm,
		K8sClient:    fake.NewSimpleClientset(),
		EnableEvents: true,
	})
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	defer d.Stop()

	if d.name != "custom.csi.example.com" {
		t.Errorf("expected custom name, got %s", d.name)
	}
	if d.events == nil {
		t.Error("expected event poster")
	}
}
