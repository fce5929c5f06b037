package e2e

import (
	"time"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/utils"
)

const (
	defaultTimeout  = 2 * time.Minute
	pollInterval    = 200 * time.Millisecond
	breakerFailures = 2
	breakerTimeout  = 2 * time.Second
)

// testNode is a Kubernetes node and the array host that owns its initiators
type testNode struct {
	host string
	iqns []string
	wwns []string
}

func (n testNode) nodeID() string {
	return utils.EncodeNodeID(n.host, n.iqns, n.wwns)
}

var (
	fcNode = testNode{
		host: "fc-worker",
		wwns: []string{"10000000c9a1b2c3", "10000000c9a1b2c4"},
	}
	iscsiNode = testNode{
		host: "iscsi-worker",
		iqns: []string{"iqn.1994-05.com.redhat:iscsi-worker"},
	}
	otherNode = testNode{
		host: "other-worker",
		iqns: []string{"iqn.1994-05.com.redhat:other-worker"},
	}
	unknownNode = testNode{
		host: "unknown-worker",
		iqns: []string{"iqn.1994-05.com.redhat:unknown-worker"},
	}
)

// unreachableAddress refuses connections; nothing listens on port 1 in the test environment
const unreachableAddress = "127.0.0.1:1"
