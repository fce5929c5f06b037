package driver

import (
	"context"
	"fmt"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/observability"
)

const (
	// DriverName is the official name of this CSI driver
	DriverName = "block.csi.srvlab.io"

	// These will be set via ldflags during build
	defaultVersion = "dev"
)

var (
	version   = defaultVersion
	gitCommit = "unknown"
	buildDate = "unknown"
)

// MediatorProvider hands out array sessions scoped to a single call
type MediatorProvider interface {
	WithMediator(ctx context.Context, arrayType string, creds array.Credentials, fn func(array.Mediator) error) error
}

// Driver implements the CSI Controller and Identity services
type Driver struct {
	name    string
	version string

	// CSI services
	ids csi.IdentityServer
	cs  csi.ControllerServer

	// Array sessions, one per request
	connections MediatorProvider

	// Event poster (nil when events are disabled)
	events *EventPoster

	// Prometheus metrics (may be nil if disabled)
	metrics *observability.Metrics

	server *NonBlockingGRPCServer

	// Capabilities
	vcaps  []*csi.VolumeCapability_AccessMode
	cscaps []*csi.ControllerServiceCapability
}

// DriverConfig contains configuration for creating a driver instance
type DriverConfig struct {
	DriverName string
	Version    string

	// Connections opens array sessions (required)
	Connections MediatorProvider

	// Kubernetes client (required for events)
	K8sClient kubernetes.Interface

	// EnableEvents posts attach/detach events to PVCs and Nodes
	EnableEvents bool

	// Prometheus metrics (optional, nil to disable)
	Metrics *observability.Metrics
}

// NewDriver creates a new block CSI controller driver
func NewDriver(config DriverConfig) (*Driver, error) {
	if config.DriverName == "" {
		config.DriverName = DriverName
	}
	if config.Version == "" {
		config.Version = version
	}
	if config.Connections == nil {
		return nil, fmt.Errorf("Connections is required")
	}

	klog.Infof("Driver: %s Version: %s GitCommit: %s BuildDate: %s", config.DriverName, config.Version, gitCommit, buildDate)

	driver := &Driver{
		name:        config.DriverName,
		version:     config.Version,
		connections: config.Connections,
		metrics:     config.Metrics,
	}

	if config.EnableEvents {
		if config.K8sClient == nil {
			return nil, fmt.Errorf("events require a Kubernetes client")
		}
		driver.events = NewEventPoster(config.K8sClient, config.Metrics)
		klog.Info("Kubernetes event posting enabled")
	}

	driver.addVolumeCapabilities()
	driver.addControllerServiceCapabilities()

	driver.ids = NewIdentityServer(driver)
	driver.cs = NewControllerServer(driver)

	return driver, nil
}

// addVolumeCapabilities adds supported volume access modes
func (d *Driver) addVolumeCapabilities() {
	d.vcaps = []*csi.VolumeCapability_AccessMode{
		{
			Mode: csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER,
		},
	}
}

// addControllerServiceCapabilities adds controller service capabilities
func (d *Driver) addControllerServiceCapabilities() {
	d.cscaps = []*csi.ControllerServiceCapability{
		{
			Type: &csi.ControllerServiceCapability_Rpc{
				Rpc: &csi.ControllerServiceCapability_RPC{
					Type: csi.ControllerServiceCapability_RPC_PUBLISH_UNPUBLISH_VOLUME,
				},
			},
		},
	}
}

// Start serves the CSI services on endpoint without blocking
func (d *Driver) Start(endpoint string) error {
	klog.Infof("Starting block CSI controller at endpoint %s", endpoint)

	d.server = NewNonBlockingGRPCServer(endpoint)
	if err := d.server.Start(d.ids, d.cs); err != nil {
		return fmt.Errorf("failed to start gRPC server: %w", err)
	}

	klog.Info("Driver initialization complete, server running")
	return nil
}

// Run starts the driver and blocks until it is stopped
func (d *Driver) Run(endpoint string) error {
	if err := d.Start(endpoint); err != nil {
		return err
	}
	d.server.Wait()
	return nil
}

// Stop stops the gRPC server and the event broadcaster
func (d *Driver) Stop() {
	klog.Info("Stopping block CSI controller")

	if d.server != nil {
		d.server.Stop()
	}
	if d.events != nil {
		d.events.Shutdown()
	}
}

// GetMetrics returns the Prometheus metrics instance (may be nil if disabled)
func (d *Driver) GetMetrics() *observability.Metrics {
	return d.metrics
}

// VersionInfo describes the build for --version
func VersionInfo() string {
	return fmt.Sprintf("%s version %s (commit %s, built %s)", DriverName, version, gitCommit, buildDate)
}
