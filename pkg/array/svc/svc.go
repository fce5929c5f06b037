// Package svc implements the Mediator for arrays managed through a
// Spectrum-Virtualize-style command set over SSH.
package svc

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/array/sshcli"
)

// ArrayType is the family name used in volume ids
const ArrayType = "svc"

const (
	minLUN        = 0
	maxLUN        = 511
	maxLUNRetries = 10
)

type Mediator struct {
	session sshcli.Session
}

var _ array.Mediator = (*Mediator)(nil)

func New(session sshcli.Session) *Mediator {
	return &Mediator{session: session}
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

func (m *Mediator) ArrayType() string { return ArrayType }
func (m *Mediator) MaxLUNRetries() int { return maxLUNRetries }
func (m *Mediator) LUNRange() (int, int) { return minLUN, maxLUN }
func (m *Mediator) Close() error { return m.session.Close() }

func (m *Mediator) ResolveHost(ctx context.Context, iqns, wwns []string) (string, []array.ConnectivityType, error) {
	output, err := m.session.RunReadOnly(ctx, cmdListHosts())
	if err != nil {
		return "", nil, svcCLI.Classify(err, nil, 0)
	}

	iqnSet := make(map[string]struct{}, len(iqns))
	for _, iqn := range iqns {
		iqnSet[strings.ToLower(iqn)] = struct{}{}
	}
	wwnSet := make(map[string]struct{}, len(wwns))
	for _, wwn := range wwns {
		wwnSet[normalizeWWN(wwn)] = struct{}{}
	}

	found := map[string][]array.ConnectivityType{}
	for _, rec := range sshcli.ParseRecords(output) {
		name := rec["name"]
		if name == "" {
			continue
		}
		var conn []array.ConnectivityType
		if anyIn(rec.List("iscsi_name"), iqnSet, strings.ToLower) {
			conn = append(conn, array.ConnectivityISCSI)
		}
		if anyIn(rec.List("WWPN"), wwnSet, normalizeWWN) {
			conn = append(conn, array.ConnectivityFC)
		}
		if len(conn) > 0 {
			found[name] = conn
		}
	}

	if len(found) == 0 {
		return "", nil, array.NewError(array.KindHostNotFound, "no host defined for iqns=%v wwns=%v", iqns, wwns)
	}
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 1 {
		return "", nil, array.NewError(array.KindMultipleHostsFound, "Multiple hosts found for initiators: %s", strings.Join(names, ", "))
	}
	return names[0], found[names[0]], nil
}

func (m *Mediator) ListVolumeMappings(ctx context.Context, volumeID string) (map[string]int, error) {
	if err := sshcli.CheckArgument("volume", volumeID); err != nil {
		return nil, array.NewError(array.KindVolumeNotFound, "vdisk %s does not exist", volumeID).WithVolume(volumeID).Wrap(err)
	}

	output, err := m.session.RunReadOnly(ctx, cmdListVolumeMappings(volumeID))
	if err != nil {
		return nil, sshcli.Annotate(svcCLI.Classify(err, listCodes, 0), volumeID, "")
	}

	mappings := map[string]int{}
	for _, rec := range sshcli.ParseRecords(output) {
		lun, err := strconv.Atoi(rec["SCSI_id"])
		if err != nil || rec["host_name"] == "" {
			continue
		}
		mappings[rec["host_name"]] = lun
	}
	return mappings, nil
}

// MapVolume takes the lowest SCSI id not yet used on the host
func (m *Mediator) MapVolume(ctx context.Context, volumeID, hostname string, connectivity array.ConnectivityType) (int, error) {
	if err := sshcli.CheckArgument("volume", volumeID); err != nil {
		return 0, array.NewError(array.KindVolumeNotFound, "vdisk %s does not exist", volumeID).WithVolume(volumeID).Wrap(err)
	}
	if err := sshcli.CheckArgument("host", hostname); err != nil {
		return 0, array.NewError(array.KindHostNotFound, "host %s does not exist", hostname).WithHost(hostname).Wrap(err)
	}

	output, err := m.session.RunReadOnly(ctx, cmdListHostMappings(hostname))
	if err != nil {
		return 0, sshcli.Annotate(svcCLI.Classify(err, hostMapCodes, array.KindMappingFailed), volumeID, hostname)
	}
	used := map[int]bool{}
	for _, rec := range sshcli.ParseRecords(output) {
		if lun, err := strconv.Atoi(rec["SCSI_id"]); err == nil {
			used[lun] = true
		}
	}

	lun := -1
	for candidate := minLUN; candidate <= maxLUN; candidate++ {
		if !used[candidate] {
			lun = candidate
			break
		}
	}
	if lun < 0 {
		return 0, array.NewError(array.KindLunAlreadyInUse, "no free SCSI id on host %s", hostname).WithHost(hostname)
	}

	klog.V(2).Infof("Mapping vdisk %s to host %s with SCSI id %d over %s", volumeID, hostname, lun, connectivity)
	if _, err := m.session.Run(ctx, cmdMap(hostname, volumeID, lun)); err != nil {
		return 0, sshcli.Annotate(svcCLI.Classify(err, mapCodes, array.KindMappingFailed), volumeID, hostname)
	}
	return lun, nil
}

func (m *Mediator) UnmapVolume(ctx context.Context, volumeID, hostname string) error {
	if err := sshcli.CheckArgument("volume", volumeID); err != nil {
		return array.NewError(array.KindVolumeNotFound, "vdisk %s does not exist", volumeID).WithVolume(volumeID).Wrap(err)
	}
	if err := sshcli.CheckArgument("host", hostname); err != nil {
		return array.NewError(array.KindHostNotFound, "host %s does not exist", hostname).WithHost(hostname).Wrap(err)
	}

	klog.V(2).Infof("Unmapping vdisk %s from host %s", volumeID, hostname)
	if _, err := m.session.Run(ctx, cmdUnmap(hostname, volumeID)); err != nil {
		return sshcli.Annotate(svcCLI.Classify(err, unmapCodes, array.KindUnmappingFailed), volumeID, hostname)
	}
	return nil
}

// ArrayISCSITargets returns the iSCSI names of online nodes
func (m *Mediator) ArrayISCSITargets(ctx context.Context) ([]string, error) {
	output, err := m.session.RunReadOnly(ctx, cmdListNodes())
	if err != nil {
		return nil, svcCLI.Classify(err, nil, 0)
	}

	var targets []string
	for _, rec := range sshcli.ParseRecords(output) {
		if strings.EqualFold(rec["status"], "online") && rec["iscsi_name"] != "" {
			targets = append(targets, rec["iscsi_name"])
		}
	}
	return targets, nil
}

// ArrayFCTargets returns the WWPNs of active FC ports
func (m *Mediator) ArrayFCTargets(ctx context.Context) ([]string, error) {
	output, err := m.session.RunReadOnly(ctx, cmdListFCPorts())
	if err != nil {
		return nil, svcCLI.Classify(err, nil, 0)
	}

	seen := map[string]bool{}
	var targets []string
	for _, rec := range sshcli.ParseRecords(output) {
		if !strings.EqualFold(rec["type"], "fc") || !strings.EqualFold(rec["status"], "active") {
			continue
		}
		wwpn := normalizeWWN(rec["WWPN"])
		if wwpn != "" && !seen[wwpn] {
			seen[wwpn] = true
			targets = append(targets, wwpn)
		}
	}
	return targets, nil
}

func anyIn(values []string, set map[string]struct{}, normalize func(string) string) bool {
	for _, v := range values {
		if _, ok := set[normalize(v)]; ok {
			return true
		}
	}
	return false
}

func normalizeWWN(wwn string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(wwn), ":", ""))
}
