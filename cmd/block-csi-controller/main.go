package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/time/rate"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/array/a9k"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/array/sshcli"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/array/svc"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/driver"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/observability"
)

var (
	// Driver configuration
	endpoint   = flag.String("endpoint", "unix:///var/lib/csi/sockets/pluginproxy/csi.sock", "CSI endpoint")
	driverName = flag.String("driver-name", driver.DriverName, "Name of the CSI driver")

	// Observability
	metricsAddress = flag.String("metrics-address", ":9809", "Address for the Prometheus metrics endpoint (empty to disable)")
	kubeconfig     = flag.String("kubeconfig", "", "Path to kubeconfig (in-cluster config when empty)")
	enableEvents   = flag.Bool("enable-events", true, "Post attach and detach events to PVCs and Nodes")

	// Array sessions
	sshPort         = flag.Int("ssh-port", 22, "Array management SSH port when the address has none")
	sshTimeout      = flag.Duration("ssh-timeout", 10*time.Second, "Timeout for connecting to an array")
	arrayKnownHosts = flag.String("array-known-hosts", "", "known_hosts file used to verify array host keys (empty accepts any key)")
	connectRate     = flag.Float64("connect-rate", 10, "New array sessions per second")
	connectBurst    = flag.Int("connect-burst", 20, "Burst size for new array sessions")
	breakerFailures = flag.Uint("breaker-failures", 3, "Consecutive failed connections before an endpoint is skipped")
	breakerTimeout  = flag.Duration("breaker-timeout", 30*time.Second, "How long a failing endpoint is skipped")

	// Version flag
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *showVersion {
		fmt.Println(driver.VersionInfo())
		os.Exit(0)
	}

	opts := sshcli.Options{
		Port:    *sshPort,
		Timeout: *sshTimeout,
	}
	if *arrayKnownHosts != "" {
		callback, err := sshcli.KnownHostsCallback(*arrayKnownHosts)
		if err != nil {
			klog.Fatalf("Failed to load %s: %v", *arrayKnownHosts, err)
		}
		opts.HostKeyCallback = callback
	} else {
		klog.Warning("No --array-known-hosts given, array host keys are not verified")
		opts.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	registry := array.NewRegistry()
	for arrayType, factory := range map[string]array.Factory{
		a9k.ArrayType: a9k.NewFactory(opts),
		svc.ArrayType: svc.NewFactory(opts),
	} {
		if err := registry.Register(arrayType, factory); err != nil {
			klog.Fatalf("Failed to register %s: %v", arrayType, err)
		}
	}

	var metrics *observability.Metrics
	if *metricsAddress != "" {
		metrics = observability.NewMetrics()
	}

	connections, err := array.NewConnectionManager(array.ConnectionManagerConfig{
		Registry:        registry,
		RateLimit:       rate.Limit(*connectRate),
		Burst:           *connectBurst,
		BreakerFailures: uint32(*breakerFailures),
		BreakerTimeout:  *breakerTimeout,
		Metrics:         metrics,
	})
	if err != nil {
		klog.Fatalf("Failed to create connection manager: %v", err)
	}

	config := driver.DriverConfig{
		DriverName:   *driverName,
		Connections:  connections,
		EnableEvents: *enableEvents,
		Metrics:      metrics,
	}
	if *enableEvents {
		client, err := kubernetesClient(*kubeconfig)
		if err != nil {
			klog.Fatalf("Failed to create Kubernetes client: %v", err)
		}
		config.K8sClient = client
	}

	klog.Infof("Creating block CSI controller for array types %v", connections.SupportedArrayTypes())
	drv, err := driver.NewDriver(config)
	if err != nil {
		klog.Fatalf("Failed to create driver: %v", err)
	}

	var metricsServer *http.Server
	if metrics != nil {
		metricsServer = &http.Server{
			Addr:              *metricsAddress,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			klog.Infof("Serving metrics on %s", *metricsAddress)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				klog.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		klog.Infof("Received signal %s, shutting down", sig)
		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(ctx)
		}
		drv.Stop()
	}()

	if err := drv.Run(*endpoint); err != nil {
		klog.Fatalf("Failed to run driver: %v", err)
	}
	klog.Info("Driver stopped")
}

func kubernetesClient(kubeconfig string) (kubernetes.Interface, error) {
	var cfg *rest.Config
	var err error
	if kubeconfig != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		cfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(cfg)
}
