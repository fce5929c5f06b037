package driver

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/tools/record"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/observability"
)

// Event reasons - use consistent naming for filtering
const (
	EventReasonVolumeAttached = "VolumeAttached"
	EventReasonAttachFailed   = "AttachFailed"
	EventReasonVolumeDetached = "VolumeDetached"
	EventReasonDetachFailed   = "DetachFailed"
)

// Volume context keys set by the external-provisioner when --extra-create-metadata is on
const (
	pvcNamespaceKey = "csi.storage.k8s.io/pvc/namespace"
	pvcNameKey      = "csi.storage.k8s.io/pvc/name"
)

// EventPoster posts Kubernetes events for publish and unpublish outcomes.
// Posting is best effort: failures are logged and never returned to the RPC.
type EventPoster struct {
	broadcaster record.EventBroadcaster
	recorder    record.EventRecorder
	clientset   kubernetes.Interface
	metrics     *observability.Metrics
}

// eventSinkAdapter adapts the EventInterface to record.EventSink
// record.EventSink has methods without context, but EventInterface requires context
type eventSinkAdapter struct {
	eventInterface typedcorev1.EventInterface
}

func (a *eventSinkAdapter) Create(event *corev1.Event) (*corev1.Event, error) {
	return a.eventInterface.Create(context.Background(), event, metav1.CreateOptions{})
}

func (a *eventSinkAdapter) Update(event *corev1.Event) (*corev1.Event, error) {
	return a.eventInterface.Update(context.Background(), event, metav1.UpdateOptions{})
}

func (a *eventSinkAdapter) Patch(event *corev1.Event, data []byte) (*corev1.Event, error) {
	return a.eventInterface.Patch(context.Background(), event.Name, types.JSONPatchType, data, metav1.PatchOptions{})
}

// NewEventPoster creates an EventPoster that records to the API server and klog
func NewEventPoster(clientset kubernetes.Interface, metrics *observability.Metrics) *EventPoster {
	broadcaster := record.NewBroadcaster()
	broadcaster.StartLogging(klog.Infof)
	broadcaster.StartRecordingToSink(&eventSinkAdapter{
		eventInterface: clientset.CoreV1().Events(""),
	})

	return newEventPoster(clientset, broadcaster.NewRecorder(scheme.Scheme, corev1.EventSource{
		Component: "block-csi-controller",
	}), broadcaster, metrics)
}

func newEventPoster(clientset kubernetes.Interface, recorder record.EventRecorder, broadcaster record.EventBroadcaster, metrics *observability.Metrics) *EventPoster {
	return &EventPoster{
		broadcaster: broadcaster,
		recorder:    recorder,
		clientset:   clientset,
		metrics:     metrics,
	}
}

// Shutdown stops the broadcaster
func (ep *EventPoster) Shutdown() {
	if ep.broadcaster != nil {
		ep.broadcaster.Shutdown()
	}
}

// PostVolumeAttached posts a Normal event to the PVC named in the volume context
func (ep *EventPoster) PostVolumeAttached(ctx context.Context, volumeContext map[string]string, volumeID, host string, lun int, connectivity string) {
	msg := fmt.Sprintf("[%s] mapped to host %s at LUN %d over %s", volumeID, host, lun, connectivity)
	ep.postToPVC(ctx, volumeContext, corev1.EventTypeNormal, EventReasonVolumeAttached, msg)
}

// PostAttachFailed posts a Warning event to the PVC named in the volume context
func (ep *EventPoster) PostAttachFailed(ctx context.Context, volumeContext map[string]string, volumeID, nodeID string, err error) {
	msg := fmt.Sprintf("[%s] on [%s]: %v", volumeID, nodeID, err)
	ep.postToPVC(ctx, volumeContext, corev1.EventTypeWarning, EventReasonAttachFailed, msg)
}

// PostVolumeDetached posts a Normal event to the Node object; host is the array host the volume was unmapped from
func (ep *EventPoster) PostVolumeDetached(ctx context.Context, nodeName, volumeID, host string) {
	msg := fmt.Sprintf("[%s] unmapped from host %s", volumeID, host)
	ep.postToNode(ctx, nodeName, corev1.EventTypeNormal, EventReasonVolumeDetached, msg)
}

// PostDetachFailed posts a Warning event to the Node object
func (ep *EventPoster) PostDetachFailed(ctx context.Context, nodeName, volumeID string, err error) {
	msg := fmt.Sprintf("[%s] on [%s]: %v", volumeID, nodeName, err)
	ep.postToNode(ctx, nodeName, corev1.EventTypeWarning, EventReasonDetachFailed, msg)
}

func (ep *EventPoster) postToPVC(ctx context.Context, volumeContext map[string]string, eventType, reason, msg string) {
	namespace, name := volumeContext[pvcNamespaceKey], volumeContext[pvcNameKey]
	if namespace == "" || name == "" {
		klog.V(4).Infof("No PVC in volume context, skipping %s event", reason)
		return
	}

	// Don't fail the operation just because event couldn't be posted
	// PVC might be deleted, terminating, or temporarily unavailable
	pvc, err := ep.clientset.CoreV1().PersistentVolumeClaims(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		klog.Warningf("Failed to get PVC %s/%s for %s event: %v", namespace, name, reason, err)
		return
	}

	ep.recorder.Event(pvc, eventType, reason, msg)
	ep.recordPosted(reason)
	klog.V(2).Infof("Posted %s event to PVC %s/%s: %s", reason, namespace, name, msg)
}

func (ep *EventPoster) postToNode(ctx context.Context, nodeName, eventType, reason, msg string) {
	if nodeName == "" {
		return
	}

	node, err := ep.clientset.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
	if err != nil {
		klog.Warningf("Failed to get Node %s for %s event: %v", nodeName, reason, err)
		return
	}

	ep.recorder.Event(node, eventType, reason, msg)
	ep.recordPosted(reason)
	klog.V(2).Infof("Posted %s event to Node %s: %s", reason, nodeName, msg)
}

func (ep *EventPoster) recordPosted(reason string) {
	if ep.metrics != nil {
		ep.metrics.RecordEventPosted(reason)
	}
}
