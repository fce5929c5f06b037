package mock

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array/sshcli"
)

// MockArrayServer simulates the XCLI management interface of an a9k array
type MockArrayServer struct {
	address        string
	port           int
	listener       net.Listener
	sshConfig      *ssh.ServerConfig
	config         MockArrayConfig
	timing         *TimingSimulator
	errorInjector  *ErrorInjector
	hosts          map[string]*MockHost      // Hosts indexed by name
	volumes        map[string]struct{}       // Volume names
	mappings       map[string]map[string]int // volume -> host -> LUN
	iscsiName      string
	fcPorts        []MockFCPort
	commandHistory []CommandLog // Command execution history for debugging
	mu             sync.RWMutex
	shutdown       chan struct{}
}

// CommandLog represents a single command execution record
type CommandLog struct {
	Timestamp time.Time
	Command   string
	Response  string
	ExitCode  int
}

// MockHost is a host definition with its initiator ports
type MockHost struct {
	Name string
	IQNs []string
	WWNs []string
}

// MockFCPort is one array FC port as listed by fc_port_list
type MockFCPort struct {
	WWPN  string
	Role  string
	State string
}

const (
	minLUN = 1
	maxLUN = 250
)

// NewMockArrayServer creates a new mock array for testing. Port 0 picks a free port.
func NewMockArrayServer(port int) (*MockArrayServer, error) {
	config := LoadConfigFromEnv()

	server := &MockArrayServer{
		address:        "127.0.0.1",
		port:           port,
		config:         config,
		timing:         NewTimingSimulator(config),
		errorInjector:  NewErrorInjector(config),
		hosts:          make(map[string]*MockHost),
		volumes:        make(map[string]struct{}),
		mappings:       make(map[string]map[string]int),
		iscsiName:      "iqn.2005-10.com.xivstorage:000001",
		commandHistory: make([]CommandLog, 0),
		shutdown:       make(chan struct{}),
	}

	server.sshConfig = &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if meta.User() == server.config.Username && string(password) == server.config.Password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %s", meta.User())
		},
	}

	hostKey, err := generateHostKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	server.sshConfig.AddHostKey(hostKey)

	return server, nil
}

// Start starts the mock array SSH server
func (s *MockArrayServer) Start() error {
	addr := net.JoinHostPort(s.address, strconv.Itoa(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener

	// Update port if it was 0 (random port assignment)
	if s.port == 0 {
		if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
			s.port = tcpAddr.Port
		}
	}

	klog.Infof("Mock array listening on %s", s.ManagementAddress())

	go s.acceptConnections()

	return nil
}

// Stop stops the mock array
func (s *MockArrayServer) Stop() error {
	close(s.shutdown)
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Address returns the server address
func (s *MockArrayServer) Address() string {
	return s.address
}

// Port returns the server port
func (s *MockArrayServer) Port() int {
	return s.port
}

// ManagementAddress returns host:port as used in the management_address secret
func (s *MockArrayServer) ManagementAddress() string {
	return net.JoinHostPort(s.address, strconv.Itoa(s.port))
}

// Credentials returns the accepted user and password
func (s *MockArrayServer) Credentials() (string, string) {
	return s.config.Username, s.config.Password
}

// AddHost defines a host with its iSCSI and FC initiators
func (s *MockArrayServer) AddHost(name string, iqns, wwns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hosts[name] = &MockHost{Name: name, IQNs: iqns, WWNs: wwns}
}

// AddVolume creates a volume
func (s *MockArrayServer) AddVolume(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes[name] = struct{}{}
}

// SetFCPorts replaces the array FC port list
func (s *MockArrayServer) SetFCPorts(ports ...MockFCPort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fcPorts = ports
}

// SetMapping maps a volume directly, bypassing the CLI
func (s *MockArrayServer) SetMapping(volume, host string, lun int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mappings[volume] == nil {
		s.mappings[volume] = map[string]int{}
	}
	s.mappings[volume][host] = lun
}

// GetMappings returns a copy of the mappings of one volume
func (s *MockArrayServer) GetMappings(volume string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.mappings[volume]))
	for h, lun := range s.mappings[volume] {
		out[h] = lun
	}
	return out
}

// InjectErrors switches error injection; limit caps the number of injected failures (0 = no cap)
func (s *MockArrayServer) InjectErrors(mode ErrorMode, afterN, limit int) {
	s.errorInjector.SetMode(mode, afterN, limit)
}

// GetCommandHistory returns a copy of the command history
func (s *MockArrayServer) GetCommandHistory() []CommandLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]CommandLog, len(s.commandHistory))
	copy(history, s.commandHistory)
	return history
}

// CountCommands returns how many recorded commands start with prefix
func (s *MockArrayServer) CountCommands(prefix string) int {
	n := 0
	for _, c := range s.GetCommandHistory() {
		if strings.HasPrefix(c.Command, prefix) {
			n++
		}
	}
	return n
}

// ClearCommandHistory clears the command history
func (s *MockArrayServer) ClearCommandHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandHistory = make([]CommandLog, 0)
}

// ResetErrorInjector disables error injection
func (s *MockArrayServer) ResetErrorInjector() {
	s.errorInjector.SetMode(ErrorModeNone, 0, 0)
}

func (s *MockArrayServer) acceptConnections() {
	for {
		select {
		case <-s.shutdown:
			return
		default:
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.shutdown:
					return
				default:
					klog.Errorf("Failed to accept connection: %v", err)
					continue
				}
			}

			go s.handleConnection(conn)
		}
	}
}

func (s *MockArrayServer) handleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	// Hang without a handshake so the client times out
	if s.errorInjector.ShouldFailSSHConnect() {
		klog.V(4).Infof("Mock array dropping connection from %s", conn.RemoteAddr())
		<-s.shutdown
		return
	}

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, s.sshConfig)
	if err != nil {
		klog.V(4).Infof("Mock array handshake failed: %v", err)
		return
	}
	defer func() { _ = sshConn.Close() }()

	klog.V(4).Infof("New SSH connection from %s as %s", sshConn.RemoteAddr(), sshConn.User())

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			klog.Errorf("Could not accept channel: %v", err)
			continue
		}

		go s.handleSession(channel, requests)
	}
}

func (s *MockArrayServer) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer func() { _ = channel.Close() }()

	s.timing.SimulateSSHLatency()

	for req := range requests {
		if req.Type != "exec" {
			_ = req.Reply(false, nil)
			continue
		}

		if len(req.Payload) < 4 {
			_ = req.Reply(false, nil)
			continue
		}
		cmdLen := binary.BigEndian.Uint32(req.Payload[:4])
		if len(req.Payload) < 4+int(cmdLen) {
			klog.Warning("Mock array: invalid exec payload")
			_ = req.Reply(false, nil)
			continue
		}
		command := string(req.Payload[4 : 4+cmdLen])

		stdout, stderr, exitStatus := s.executeCommand(command)

		_ = req.Reply(true, nil)
		if stdout != "" {
			_, _ = channel.Write([]byte(stdout))
		}
		if stderr != "" {
			_, _ = channel.Stderr().Write([]byte(stderr))
		}
		_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{Status: uint32(exitStatus)}))
		return
	}
}

// executeCommand runs one XCLI command against the in-memory state
func (s *MockArrayServer) executeCommand(command string) (string, string, int) {
	command = strings.TrimSpace(command)
	klog.V(3).Infof("Mock array executing command: %s", command)

	name, args := parseCommand(command)

	var stdout, stderr string
	switch name {
	case "host_list":
		stdout = s.handleHostList()
	case "vol_mapping_list":
		stdout, stderr = s.handleVolMappingList(args)
	case "mapping_list":
		stdout, stderr = s.handleMappingList(args)
	case "map_vol":
		stdout, stderr = s.handleMapVol(args)
	case "unmap_vol":
		stdout, stderr = s.handleUnmapVol(args)
	case "config_get":
		stdout, stderr = s.handleConfigGet(args)
	case "fc_port_list":
		stdout = s.handleFCPortList()
	default:
		stderr = xcliError("UNRECOGNIZED_COMMAND", fmt.Sprintf("unknown command %s", name))
	}

	exitCode := 0
	if stderr != "" {
		exitCode = 1
	}

	s.recordCommand(command, stdout+stderr, exitCode)
	return stdout, stderr, exitCode
}

// recordCommand adds a command execution to the history log
func (s *MockArrayServer) recordCommand(command, response string, exitCode int) {
	if !s.config.EnableHistory {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.commandHistory) >= s.config.HistoryDepth {
		s.commandHistory = s.commandHistory[1:]
	}

	s.commandHistory = append(s.commandHistory, CommandLog{
		Timestamp: time.Now(),
		Command:   command,
		Response:  response,
		ExitCode:  exitCode,
	})
}

func (s *MockArrayServer) handleHostList() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	for _, name := range sortedKeys(s.hosts) {
		h := s.hosts[name]
		fmt.Fprintf(&b, "name=%q iscsi_ports=%q fc_ports=%q\n", h.Name, strings.Join(h.IQNs, ","), strings.Join(h.WWNs, ","))
	}
	return b.String()
}

func (s *MockArrayServer) handleVolMappingList(args sshcli.Record) (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vol := args["vol"]
	if _, ok := s.volumes[vol]; !ok {
		return "", xcliError("VOLUME_BAD_NAME", "Volume name does not exist")
	}

	var b strings.Builder
	for _, host := range sortedKeys(s.mappings[vol]) {
		fmt.Fprintf(&b, "host=%q lun=\"%d\"\n", host, s.mappings[vol][host])
	}
	return b.String(), ""
}

func (s *MockArrayServer) handleMappingList(args sshcli.Record) (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	host := args["host"]
	if _, ok := s.hosts[host]; !ok {
		return "", xcliError("HOST_BAD_NAME", "Host name does not exist")
	}

	var b strings.Builder
	for _, vol := range sortedKeys(s.mappings) {
		if lun, ok := s.mappings[vol][host]; ok {
			fmt.Fprintf(&b, "volume=%q lun=\"%d\"\n", vol, lun)
		}
	}
	return b.String(), ""
}

func (s *MockArrayServer) handleMapVol(args sshcli.Record) (string, string) {
	s.timing.SimulateMappingOperation("map")

	if fail, code := s.errorInjector.ShouldFailMap(); fail {
		return "", xcliError(code, "injected failure")
	}

	host, vol := args["host"], args["vol"]
	lun, err := strconv.Atoi(args["lun"])
	if err != nil || lun < minLUN || lun > maxLUN {
		return "", xcliError("LUN_ILLEGAL", fmt.Sprintf("LUN %q is out of range", args["lun"]))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.volumes[vol]; !ok {
		return "", xcliError("VOLUME_BAD_NAME", "Volume name does not exist")
	}
	if _, ok := s.hosts[host]; !ok {
		return "", xcliError("HOST_BAD_NAME", "Host name does not exist")
	}
	if _, ok := s.mappings[vol][host]; ok {
		return "", xcliError("VOLUME_ALREADY_MAPPED", "Volume is already mapped to this host")
	}
	for _, hosts := range s.mappings {
		if used, ok := hosts[host]; ok && used == lun {
			return "", xcliError("LUN_ALREADY_IN_USE", "LUN is already in use")
		}
	}

	if s.mappings[vol] == nil {
		s.mappings[vol] = map[string]int{}
	}
	s.mappings[vol][host] = lun
	klog.V(4).Infof("Mock array mapped %s to %s at LUN %d", vol, host, lun)
	return xcliSuccess(), ""
}

func (s *MockArrayServer) handleUnmapVol(args sshcli.Record) (string, string) {
	s.timing.SimulateMappingOperation("unmap")

	if fail, code := s.errorInjector.ShouldFailUnmap(); fail {
		return "", xcliError(code, "injected failure")
	}

	host, vol := args["host"], args["vol"]

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.volumes[vol]; !ok {
		return "", xcliError("VOLUME_BAD_NAME", "Volume name does not exist")
	}
	if _, ok := s.hosts[host]; !ok {
		return "", xcliError("HOST_BAD_NAME", "Host name does not exist")
	}
	if _, ok := s.mappings[vol][host]; !ok {
		return "", xcliError("VOLUME_NOT_MAPPED_TO_HOST", "The volume is not mapped to this host")
	}

	delete(s.mappings[vol], host)
	klog.V(4).Infof("Mock array unmapped %s from %s", vol, host)
	return xcliSuccess(), ""
}

func (s *MockArrayServer) handleConfigGet(args sshcli.Record) (string, string) {
	if args["name"] != "iscsi_name" {
		return "", xcliError("BAD_PARAMS", fmt.Sprintf("unknown config name %q", args["name"]))
	}
	return fmt.Sprintf("name=\"iscsi_name\" value=%q\n", s.iscsiName), ""
}

func (s *MockArrayServer) handleFCPortList() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	for i, p := range s.fcPorts {
		fmt.Fprintf(&b, "component_id=\"1:FC_Port:%d\" port_state=%q role=%q wwpn=%q\n", i+1, p.State, p.Role, p.WWPN)
	}
	return b.String()
}

// parseCommand splits "name key=value ..." into the command name and its arguments
func parseCommand(command string) (string, sshcli.Record) {
	name, rest, _ := strings.Cut(command, " ")
	args := sshcli.ParseRecord(rest)
	if args == nil {
		args = sshcli.Record{}
	}
	return name, args
}

func xcliSuccess() string {
	return "command code=\"SUCCESS\"\n"
}

func xcliError(code, message string) string {
	return fmt.Sprintf("error code=%q message=%q\n", code, message)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// generateHostKey generates a temporary SSH host key
func generateHostKey() (ssh.Signer, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return ssh.NewSignerFromKey(key)
}
