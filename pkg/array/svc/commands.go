package svc

import (
	"fmt"
	"regexp"
	"strings"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/array/sshcli"
)

// CLI message codes
const (
	codeObjectNotFound     = "CMMVC5753E"
	codeHostNotFound       = "CMMVC5754E"
	codeMappingNotFound    = "CMMVC5842E"
	codeLunAlreadyInUse    = "CMMVC5879E"
	codeRoleNotAuthorized  = "CMMVC6253E"
	codeAuthenticationFail = "CMMVC7205E"
)

var messageCode = regexp.MustCompile(`CMMVC[0-9]{4}[EW]`)

var (
	svcCLI = sshcli.Dialect{
		Name: "svc",
		Code: failureCode,
		Common: sshcli.CodeTable{
			codeRoleNotAuthorized:  array.KindPermissionDenied,
			codeAuthenticationFail: array.KindPermissionDenied,
		},
	}

	listCodes = sshcli.CodeTable{
		codeObjectNotFound: array.KindVolumeNotFound,
	}

	hostMapCodes = sshcli.CodeTable{
		codeObjectNotFound: array.KindHostNotFound,
	}

	mapCodes = sshcli.CodeTable{
		codeObjectNotFound:  array.KindVolumeNotFound,
		codeHostNotFound:    array.KindHostNotFound,
		codeLunAlreadyInUse: array.KindLunAlreadyInUse,
	}

	unmapCodes = sshcli.CodeTable{
		codeObjectNotFound:  array.KindVolumeNotFound,
		codeHostNotFound:    array.KindHostNotFound,
		codeMappingNotFound: array.KindVolumeAlreadyUnmapped,
	}
)

func cmdListHosts() string {
	return "lshost"
}

func cmdListHostMappings(host string) string {
	return fmt.Sprintf("lshostvdiskmap %s", host)
}

func cmdListVolumeMappings(volume string) string {
	return fmt.Sprintf("lsvdiskhostmap %s", volume)
}

func cmdMap(host, volume string, lun int) string {
	return fmt.Sprintf("mkvdiskhostmap -force -host %s -scsi %d %s", host, lun, volume)
}

func cmdUnmap(host, volume string) string {
	return fmt.Sprintf("rmvdiskhostmap -host %s %s", host, volume)
}

func cmdListFCPorts() string {
	return "lsportfc"
}

func cmdListNodes() string {
	return "lsnode"
}

// failureCode finds the first CMMVC message in the output
func failureCode(output string) (code, message string) {
	for _, line := range strings.Split(output, "\n") {
		if code := messageCode.FindString(line); code != "" {
			return code, strings.TrimSpace(line)
		}
	}
	return "", ""
}
