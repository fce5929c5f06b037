package array

import (
	"context"
	"sync"
)

// MapResult is one scripted answer for MockMediator.MapVolume
type MapResult struct {
	LUN int
	Err error
}

// MapCall records the arguments of one MapVolume call
type MapCall struct {
	VolumeID     string
	Hostname     string
	Connectivity ConnectivityType
}

// MockMediator is a scripted Mediator for testing
type MockMediator struct {
	mu sync.Mutex

	Type             string
	Hostname         string
	HostConnectivity []ConnectivityType
	ResolveErr       error

	Mappings map[string]int
	ListErr  error

	// MapResults are consumed in order; once exhausted MapVolume returns DefaultLUN
	MapResults []MapResult
	DefaultLUN int

	UnmapErr error

	ISCSITargets []string
	FCTargets    []string
	TargetsErr   error

	MaxRetries int
	MinLUN     int
	MaxLUN     int

	ResolveCalls int
	ListCalls    int
	MapCalls     []MapCall
	UnmapCalls   int
	CloseCalls   int
}

// NewMockMediator creates a mock for an FC+iSCSI host with no mappings
func NewMockMediator() *MockMediator {
	return &MockMediator{
		Type:             "a9k",
		Hostname:         "test-host",
		HostConnectivity: []ConnectivityType{ConnectivityISCSI, ConnectivityFC},
		Mappings:         map[string]int{},
		DefaultLUN:       1,
		ISCSITargets:     []string{"iqn.2005-10.com.xivstorage:000001"},
		FCTargets:        []string{"500143802426baf4"},
		MaxRetries:       10,
		MinLUN:           1,
		MaxLUN:           250,
	}
}

// Factory returns a Factory that always hands out this mock
func (m *MockMediator) Factory() Factory {
	return func(ctx context.Context, target Target) (Mediator, error) {
		return m, nil
	}
}

func (m *MockMediator) ArrayType() string {
	return m.Type
}

func (m *MockMediator) ResolveHost(ctx context.Context, iqns, wwns []string) (string, []ConnectivityType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResolveCalls++
	if m.ResolveErr != nil {
		return "", nil, m.ResolveErr
	}
	return m.Hostname, m.HostConnectivity, nil
}

func (m *MockMediator) ListVolumeMappings(ctx context.Context, volumeID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make(map[string]int, len(m.Mappings))
	for k, v := range m.Mappings {
		out[k] = v
	}
	return out, nil
}

func (m *MockMediator) MapVolume(ctx context.Context, volumeID, hostname string, connectivity ConnectivityType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MapCalls = append(m.MapCalls, MapCall{VolumeID: volumeID, Hostname: hostname, Connectivity: connectivity})
	if len(m.MapResults) > 0 {
		r := m.MapResults[0]
		m.MapResults = m.MapResults[1:]
		return r.LUN, r.Err
	}
	return m.DefaultLUN, nil
}

func (m *MockMediator) UnmapVolume(ctx context.Context, volumeID, hostname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UnmapCalls++
	return m.UnmapErr
}

func (m *MockMediator) ArrayISCSITargets(ctx context.Context) ([]string, error) {
	if m.TargetsErr != nil {
		return nil, m.TargetsErr
	}
	return m.ISCSITargets, nil
}

func (m *MockMediator) ArrayFCTargets(ctx context.Context) ([]string, error) {
	if m.TargetsErr != nil {
		return nil, m.TargetsErr
	}
	return m.FCTargets, nil
}

func (m *MockMediator) MaxLUNRetries() int {
	return m.MaxRetries
}

func (m *MockMediator) LUNRange() (int, int) {
	return m.MinLUN, m.MaxLUN
}

func (m *MockMediator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return nil
}

// MapCallCount returns how many times MapVolume was called
func (m *MockMediator) MapCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.MapCalls)
}

// CloseCount returns how many times Close was called
func (m *MockMediator) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCalls
}
