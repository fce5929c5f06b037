package driver

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

const (
	// Maximum message size for gRPC
	maxMsgSize = 16 * 1024 * 1024 // 16 MiB
)

// NonBlockingGRPCServer is a non-blocking gRPC server
type NonBlockingGRPCServer struct {
	server   *grpc.Server
	listener net.Listener
	endpoint string
	done     chan struct{}
}

// NewNonBlockingGRPCServer creates a new non-blocking gRPC server
func NewNonBlockingGRPCServer(endpoint string) *NonBlockingGRPCServer {
	return &NonBlockingGRPCServer{
		endpoint: endpoint,
		done:     make(chan struct{}),
	}
}

// Start starts the gRPC server
func (s *NonBlockingGRPCServer) Start(ids csi.IdentityServer, cs csi.ControllerServer) error {
	proto, addr, err := parseEndpoint(s.endpoint)
	if err != nil {
		return fmt.Errorf("failed to parse endpoint: %w", err)
	}

	klog.V(4).Infof("Starting gRPC server on %s://%s", proto, addr)

	// Remove existing socket file if it exists (unix sockets only)
	if proto == "unix" {
		if err := os.Remove(addr); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove existing socket: %w", err)
		}
	}

	listener, err := net.Listen(proto, addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s://%s: %w", proto, addr, err)
	}
	s.listener = listener

	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
		grpc.ChainUnaryInterceptor(recoverInterceptor, requestIDInterceptor),
	}

	s.server = grpc.NewServer(opts...)

	if ids != nil {
		csi.RegisterIdentityServer(s.server, ids)
		klog.V(4).Info("Registered Identity service")
	}

	if cs != nil {
		csi.RegisterControllerServer(s.server, cs)
		klog.V(4).Info("Registered Controller service")
	}

	klog.Infof("gRPC server listening on %s://%s", proto, addr)
	go func() {
		defer close(s.done)
		if err := s.server.Serve(listener); err != nil {
			klog.Errorf("gRPC server stopped: %v", err)
		}
	}()

	return nil
}

// Stop stops the gRPC server
func (s *NonBlockingGRPCServer) Stop() {
	klog.Info("Stopping gRPC server")
	if s.server != nil {
		s.server.GracefulStop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// Wait blocks until the server stops serving
func (s *NonBlockingGRPCServer) Wait() {
	<-s.done
}

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned to the current RPC, or ""
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestIDInterceptor tags each RPC with a request id and logs its outcome
func requestIDInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	id := uuid.NewString()
	logger := klog.FromContext(ctx).WithValues("requestID", id, "method", info.FullMethod)
	ctx = klog.NewContext(context.WithValue(ctx, requestIDKey{}, id), logger)

	start := time.Now()
	logger.V(5).Info("Request received")

	resp, err := handler(ctx, req)
	if err != nil {
		logger.Error(err, "Request failed", "code", status.Code(err).String(), "duration", time.Since(start))
	} else {
		logger.V(4).Info("Request completed", "duration", time.Since(start))
	}
	return resp, err
}

// recoverInterceptor turns a handler panic into an Internal error
func recoverInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Panic in %s: %v", info.FullMethod, r)
			resp = nil
			err = status.Errorf(codes.Internal, "internal error in %s", info.FullMethod)
		}
	}()
	return handler(ctx, req)
}

// parseEndpoint parses the endpoint into protocol and address
func parseEndpoint(endpoint string) (string, string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse endpoint: %w", err)
	}

	var proto, addr string

	switch u.Scheme {
	case "unix":
		proto = "unix"
		addr = u.Path
		if addr == "" {
			addr = u.Host
		}
	case "tcp":
		proto = "tcp"
		addr = u.Host
		if addr == "" {
			return "", "", fmt.Errorf("tcp endpoint must specify host")
		}
	case "":
		// If no scheme, assume unix socket
		proto = "unix"
		addr = strings.TrimPrefix(endpoint, "unix://")
	default:
		return "", "", fmt.Errorf("unsupported endpoint scheme: %s", u.Scheme)
	}

	if addr == "" {
		return "", "", fmt.Errorf("endpoint address cannot be empty")
	}

	return proto, addr, nil
}
