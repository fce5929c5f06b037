package svc

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/array/sshcli"
)

func newTestMediator(handler func(string) (string, error)) (*Mediator, *sshcli.FakeSession) {
	session := &sshcli.FakeSession{Handler: handler}
	return New(session), session
}

func TestResolveHost(t *testing.T) {
	m, _ := newTestMediator(func(command string) (string, error) {
		return strings.Join([]string{
			`id="0" name="worker-1" iscsi_name="iqn.1994-05.com.redhat:worker-1" WWPN=""`,
			`id="1" name="worker-2" iscsi_name="" WWPN="2100000E1E30ABCD,2100000E1E30ABCE"`,
		}, "\n"), nil
	})

	host, conn, err := m.ResolveHost(context.Background(), []string{"IQN.1994-05.com.redhat:worker-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", host)
	assert.Equal(t, []array.ConnectivityType{array.ConnectivityISCSI}, conn)

	host, conn, err = m.ResolveHost(context.Background(), nil, []string{"21:00:00:0e:1e:30:ab:ce"})
	require.NoError(t, err)
	assert.Equal(t, "worker-2", host)
	assert.Equal(t, []array.ConnectivityType{array.ConnectivityFC}, conn)

	_, _, err = m.ResolveHost(context.Background(), []string{"iqn.1994-05.com.redhat:worker-1"}, []string{"2100000e1e30abcd"})
	assert.True(t, array.IsKind(err, array.KindMultipleHostsFound), "got %v", err)
	assert.Contains(t, err.Error(), "Multiple hosts")

	_, _, err = m.ResolveHost(context.Background(), []string{"iqn.1994-05.com.redhat:other"}, nil)
	assert.True(t, array.IsKind(err, array.KindHostNotFound), "got %v", err)
}

func TestListVolumeMappings(t *testing.T) {
	m, session := newTestMediator(func(command string) (string, error) {
		return `id="4" name="vd1" SCSI_id="0" host_id="0" host_name="worker-1"` + "\n", nil
	})

	mappings, err := m.ListVolumeMappings(context.Background(), "vd1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"worker-1": 0}, mappings)
	assert.Equal(t, []string{"lsvdiskhostmap vd1"}, session.Executed())
}

func TestListVolumeMappings_VolumeNotFound(t *testing.T) {
	m, _ := newTestMediator(func(command string) (string, error) {
		return "", sshcli.Failure(command, "CMMVC5753E The specified object does not exist or is not a suitable candidate.")
	})

	_, err := m.ListVolumeMappings(context.Background(), "vd1")
	assert.True(t, array.IsKind(err, array.KindVolumeNotFound), "got %v", err)
}

func TestMapVolume_LowestFreeSCSIID(t *testing.T) {
	m, session := newTestMediator(func(command string) (string, error) {
		if strings.HasPrefix(command, "lshostvdiskmap") {
			return "SCSI_id=\"0\" vdisk_name=\"a\"\nSCSI_id=\"1\" vdisk_name=\"b\"\nSCSI_id=\"3\" vdisk_name=\"c\"\n", nil
		}
		return `Virtual Disk to Host map, id [2], successfully created`, nil
	})

	lun, err := m.MapVolume(context.Background(), "vd1", "worker-1", array.ConnectivityFC)
	require.NoError(t, err)
	assert.Equal(t, 2, lun)
	assert.Equal(t, []string{
		"lshostvdiskmap worker-1",
		"mkvdiskhostmap -force -host worker-1 -scsi 2 vd1",
	}, session.Executed())
}

func TestMapVolume_Errors(t *testing.T) {
	tests := []struct {
		code     string
		wantKind array.ErrorKind
	}{
		{"CMMVC5879E", array.KindLunAlreadyInUse},
		{"CMMVC5753E", array.KindVolumeNotFound},
		{"CMMVC5754E", array.KindHostNotFound},
		{"CMMVC6253E", array.KindPermissionDenied},
		{"CMMVC5878E", array.KindMappingFailed},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			m, _ := newTestMediator(func(command string) (string, error) {
				if strings.HasPrefix(command, "mkvdiskhostmap") {
					return "", sshcli.Failure(command, fmt.Sprintf("%s The command failed.", tt.code))
				}
				return "", nil
			})

			_, err := m.MapVolume(context.Background(), "vd1", "worker-1", array.ConnectivityISCSI)
			assert.True(t, array.IsKind(err, tt.wantKind), "expected %s, got %v", tt.wantKind, err)
		})
	}
}

func TestMapVolume_HostFull(t *testing.T) {
	var b strings.Builder
	for lun := minLUN; lun <= maxLUN; lun++ {
		fmt.Fprintf(&b, "SCSI_id=\"%d\"\n", lun)
	}
	m, session := newTestMediator(func(command string) (string, error) {
		return b.String(), nil
	})

	_, err := m.MapVolume(context.Background(), "vd1", "worker-1", array.ConnectivityISCSI)
	assert.True(t, array.IsKind(err, array.KindLunAlreadyInUse), "got %v", err)
	assert.Len(t, session.Executed(), 1)
}

func TestUnmapVolume(t *testing.T) {
	m, session := newTestMediator(nil)
	require.NoError(t, m.UnmapVolume(context.Background(), "vd1", "worker-1"))
	assert.Equal(t, []string{"rmvdiskhostmap -host worker-1 vd1"}, session.Executed())

	m, _ = newTestMediator(func(command string) (string, error) {
		return "", sshcli.Failure(command, "CMMVC5842E The action failed because an object that was specified in the command does not exist.")
	})
	err := m.UnmapVolume(context.Background(), "vd1", "worker-1")
	assert.True(t, array.IsKind(err, array.KindVolumeAlreadyUnmapped), "got %v", err)

	m, _ = newTestMediator(func(command string) (string, error) {
		return "", sshcli.Failure(command, "CMMVC6581E The command has failed because the maximum number of allowed iSCSI qualified names (IQNs) has been reached.")
	})
	err = m.UnmapVolume(context.Background(), "vd1", "worker-1")
	assert.True(t, array.IsKind(err, array.KindUnmappingFailed), "got %v", err)
}

func TestUnmapVolume_UnsafeHost(t *testing.T) {
	m, session := newTestMediator(nil)

	err := m.UnmapVolume(context.Background(), "vd1", "worker-1 && rmvdisk")
	assert.True(t, array.IsKind(err, array.KindHostNotFound), "got %v", err)
	assert.Empty(t, session.Executed())
}

func TestArrayTargets(t *testing.T) {
	m, _ := newTestMediator(func(command string) (string, error) {
		switch command {
		case "lsnode":
			return strings.Join([]string{
				`id="1" name="node1" iscsi_name="iqn.1986-03.com.ibm:2145.cluster.node1" status="online"`,
				`id="2" name="node2" iscsi_name="iqn.1986-03.com.ibm:2145.cluster.node2" status="offline"`,
			}, "\n"), nil
		case "lsportfc":
			return strings.Join([]string{
				`id="0" WWPN="500507680B2155AA" type="fc" status="active"`,
				`id="1" WWPN="500507680B2155AB" type="fc" status="inactive_configured"`,
				`id="2" WWPN="500507680B2155AC" type="ethernet" status="active"`,
				`id="3" WWPN="500507680B2155AA" type="fc" status="active"`,
			}, "\n"), nil
		}
		return "", fmt.Errorf("unexpected command %q", command)
	})

	iscsi, err := m.ArrayISCSITargets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"iqn.1986-03.com.ibm:2145.cluster.node1"}, iscsi)

	fc, err := m.ArrayFCTargets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"500507680b2155aa"}, fc)
}

func TestMediatorBasics(t *testing.T) {
	m, session := newTestMediator(nil)

	assert.Equal(t, ArrayType, m.ArrayType())
	assert.Equal(t, maxLUNRetries, m.MaxLUNRetries())
	lo, hi := m.LUNRange()
	assert.Equal(t, 0, lo)
	assert.Equal(t, 511, hi)

	require.NoError(t, m.Close())
	assert.Equal(t, 1, session.Closed)
}

func TestFailureCode(t *testing.T) {
	code, msg := failureCode("\nCMMVC5879E The SCSI LUN ID is already in use.\n")
	assert.Equal(t, "CMMVC5879E", code)
	assert.Equal(t, "CMMVC5879E The SCSI LUN ID is already in use.", msg)

	code, _ = failureCode("unexpected failure")
	assert.Empty(t, code)
}
