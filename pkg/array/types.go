package array

import (
	"fmt"
	"strings"
)

// ConnectivityType is the transport a host uses to reach the array
type ConnectivityType string

const (
	ConnectivityISCSI ConnectivityType = "iscsi"
	ConnectivityFC    ConnectivityType = "fc"
)

// PreferredConnectivity picks FC whenever the host supports it, iSCSI otherwise
func PreferredConnectivity(supported []ConnectivityType) ConnectivityType {
	for _, c := range supported {
		if c == ConnectivityFC {
			return ConnectivityFC
		}
	}
	return ConnectivityISCSI
}

// Secret keys carried in CSI request secrets
const (
	SecretUsername          = "username"
	SecretPassword          = "password"
	SecretManagementAddress = "management_address"
)

// Credentials identify and authenticate against one array.
// ManagementAddresses are tried in order until one accepts a session.
type Credentials struct {
	Username            string
	Password            string
	ManagementAddresses []string
}

// CredentialsFromSecrets builds Credentials from CSI request secrets
func CredentialsFromSecrets(secrets map[string]string) (Credentials, error) {
	for _, key := range []string{SecretUsername, SecretPassword, SecretManagementAddress} {
		if secrets[key] == "" {
			return Credentials{}, fmt.Errorf("secret %q is missing", key)
		}
	}

	var addrs []string
	for _, addr := range strings.Split(secrets[SecretManagementAddress], ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	if len(addrs) == 0 {
		return Credentials{}, fmt.Errorf("secret %q has no usable address", SecretManagementAddress)
	}

	return Credentials{
		Username:            secrets[SecretUsername],
		Password:            secrets[SecretPassword],
		ManagementAddresses: addrs,
	}, nil
}

// String never prints the password
func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s", c.Username, strings.Join(c.ManagementAddresses, ","))
}
