// Package a9k implements the Mediator for arrays managed through an XCLI-style
// command set over SSH.
package a9k

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/array/sshcli"
)

// ArrayType is the family name used in volume ids
const ArrayType = "a9k"

const (
	minLUN        = 1
	maxLUN        = 250
	maxLUNRetries = 10
)

// Mediator talks XCLI over one SSH session
type Mediator struct {
	session sshcli.Session
	rand    *rand.Rand
}

var _ array.Mediator = (*Mediator)(nil)

// New wraps an open session
func New(session sshcli.Session) *Mediator {
	return &Mediator{
		session: session,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewFactory returns a factory that opens SSH sessions with opts
func NewFactory(opts sshcli.Options) array.Factory {
	return func(ctx context.Context, target array.Target) (array.Mediator, error) {
		client, err := sshcli.Open(ctx, target, opts)
		if err != nil {
			return nil, err
		}
		return New(client), nil
	}
}

func (m *Mediator) ArrayType() string {
	return ArrayType
}

func (m *Mediator) MaxLUNRetries() int {
	return maxLUNRetries
}

func (m *Mediator) LUNRange() (int, int) {
	return minLUN, maxLUN
}

func (m *Mediator) Close() error {
	return m.session.Close()
}

// ResolveHost matches the initiators against every defined host. Exactly one host may own them.
func (m *Mediator) ResolveHost(ctx context.Context, iqns, wwns []string) (string, []array.ConnectivityType, error) {
	klog.V(4).Infof("Resolving host for iqns=%v wwns=%v", iqns, wwns)

	output, err := m.session.RunReadOnly(ctx, cmdHostList())
	if err != nil {
		return "", nil, xcli.Classify(err, nil, 0)
	}

	wanted := make(map[string]struct{}, len(wwns))
	for _, w := range wwns {
		wanted[normalizeWWN(w)] = struct{}{}
	}

	type match struct {
		iscsi, fc bool
	}
	matches := map[string]*match{}

	for _, rec := range sshcli.ParseRecords(output) {
		name := rec["name"]
		if name == "" {
			continue
		}
		for _, port := range rec.List("iscsi_ports") {
			if containsFold(iqns, port) {
				if matches[name] == nil {
					matches[name] = &match{}
				}
				matches[name].iscsi = true
			}
		}
		for _, port := range rec.List("fc_ports") {
			if _, ok := wanted[normalizeWWN(port)]; ok {
				if matches[name] == nil {
					matches[name] = &match{}
				}
				matches[name].fc = true
			}
		}
	}

	switch len(matches) {
	case 0:
		return "", nil, array.NewError(array.KindHostNotFound, "no host defined for iqns=%v wwns=%v", iqns, wwns)
	case 1:
	default:
		names := make([]string, 0, len(matches))
		for name := range matches {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", nil, array.NewError(array.KindMultipleHostsFound, "Multiple hosts found for initiators: %s", strings.Join(names, ", "))
	}

	for name, mt := range matches {
		var conn []array.ConnectivityType
		if mt.iscsi {
			conn = append(conn, array.ConnectivityISCSI)
		}
		if mt.fc {
			conn = append(conn, array.ConnectivityFC)
		}
		klog.V(4).Infof("Initiators belong to host %s (connectivity: %v)", name, conn)
		return name, conn, nil
	}
	return "", nil, nil
}

func (m *Mediator) ListVolumeMappings(ctx context.Context, volumeID string) (map[string]int, error) {
	if err := sshcli.CheckArgument("volume", volumeID); err != nil {
		return nil, array.NewError(array.KindVolumeNotFound, "volume %s does not exist", volumeID).WithVolume(volumeID).Wrap(err)
	}

	output, err := m.session.RunReadOnly(ctx, cmdVolMappingList(volumeID))
	if err != nil {
		return nil, sshcli.Annotate(xcli.Classify(err, listCodes, 0), volumeID, "")
	}

	mappings := map[string]int{}
	for _, rec := range sshcli.ParseRecords(output) {
		lun, err := strconv.Atoi(rec["lun"])
		if err != nil || rec["host"] == "" {
			klog.V(4).Infof("Ignoring malformed mapping record %v", rec)
			continue
		}
		mappings[rec["host"]] = lun
	}
	klog.V(5).Infof("Volume %s mappings: %v", volumeID, mappings)
	return mappings, nil
}

// MapVolume maps with a random LUN that is free on the host. A concurrent map may
// claim the same LUN first; the array then answers LUN_ALREADY_IN_USE and the
// caller retries, which draws a new candidate.
func (m *Mediator) MapVolume(ctx context.Context, volumeID, hostname string, connectivity array.ConnectivityType) (int, error) {
	if err := sshcli.CheckArgument("volume", volumeID); err != nil {
		return 0, array.NewError(array.KindVolumeNotFound, "volume %s does not exist", volumeID).WithVolume(volumeID).Wrap(err)
	}
	if err := sshcli.CheckArgument("host", hostname); err != nil {
		return 0, array.NewError(array.KindHostNotFound, "host %s does not exist", hostname).WithHost(hostname).Wrap(err)
	}

	used, err := m.usedLUNs(ctx, hostname)
	if err != nil {
		return 0, err
	}

	var free []int
	for lun := minLUN; lun <= maxLUN; lun++ {
		if _, taken := used[lun]; !taken {
			free = append(free, lun)
		}
	}
	if len(free) == 0 {
		return 0, array.NewError(array.KindLunAlreadyInUse, "no free LUN on host %s", hostname).WithHost(hostname)
	}
	lun := free[m.rand.Intn(len(free))]

	klog.V(2).Infof("Mapping volume %s to host %s at LUN %d over %s", volumeID, hostname, lun, connectivity)
	if _, err := m.session.Run(ctx, cmdMapVol(hostname, volumeID, lun)); err != nil {
		return 0, sshcli.Annotate(xcli.Classify(err, mapCodes, array.KindMappingFailed), volumeID, hostname)
	}
	return lun, nil
}

func (m *Mediator) UnmapVolume(ctx context.Context, volumeID, hostname string) error {
	if err := sshcli.CheckArgument("volume", volumeID); err != nil {
		return array.NewError(array.KindVolumeNotFound, "volume %s does not exist", volumeID).WithVolume(volumeID).Wrap(err)
	}
	if err := sshcli.CheckArgument("host", hostname); err != nil {
		return array.NewError(array.KindHostNotFound, "host %s does not exist", hostname).WithHost(hostname).Wrap(err)
	}

	klog.V(2).Infof("Unmapping volume %s from host %s", volumeID, hostname)
	if _, err := m.session.Run(ctx, cmdUnmapVol(hostname, volumeID)); err != nil {
		return sshcli.Annotate(xcli.Classify(err, unmapCodes, array.KindUnmappingFailed), volumeID, hostname)
	}
	return nil
}

func (m *Mediator) ArrayISCSITargets(ctx context.Context) ([]string, error) {
	output, err := m.session.RunReadOnly(ctx, cmdISCSIName())
	if err != nil {
		return nil, xcli.Classify(err, nil, 0)
	}

	var targets []string
	for _, rec := range sshcli.ParseRecords(output) {
		if v := rec["value"]; v != "" {
			targets = append(targets, v)
		}
	}
	return targets, nil
}

// ArrayFCTargets lists online target ports
func (m *Mediator) ArrayFCTargets(ctx context.Context) ([]string, error) {
	output, err := m.session.RunReadOnly(ctx, cmdFCPortList())
	if err != nil {
		return nil, xcli.Classify(err, nil, 0)
	}

	var targets []string
	for _, rec := range sshcli.ParseRecords(output) {
		if !strings.EqualFold(rec["role"], "Target") || !strings.EqualFold(rec["port_state"], "Online") {
			continue
		}
		if wwpn := normalizeWWN(rec["wwpn"]); wwpn != "" {
			targets = append(targets, wwpn)
		}
	}
	return targets, nil
}

func (m *Mediator) usedLUNs(ctx context.Context, hostname string) (map[int]struct{}, error) {
	output, err := m.session.RunReadOnly(ctx, cmdMappingList(hostname))
	if err != nil {
		return nil, sshcli.Annotate(xcli.Classify(err, mapCodes, array.KindMappingFailed), "", hostname)
	}

	used := map[int]struct{}{}
	for _, rec := range sshcli.ParseRecords(output) {
		if lun, err := strconv.Atoi(rec["lun"]); err == nil {
			used[lun] = struct{}{}
		}
	}
	return used, nil
}

func normalizeWWN(wwn string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(wwn), ":", ""))
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
