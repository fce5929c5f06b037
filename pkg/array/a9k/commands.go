package a9k

import (
	"fmt"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
	"git.srvlab.io/whiskey/block-csi-driver/pkg/array/sshcli"
)

// XCLI completion codes the mediator understands
const (
	codeVolumeBadName     = "VOLUME_BAD_NAME"
	codeHostBadName       = "HOST_BAD_NAME"
	codeLunAlreadyInUse   = "LUN_ALREADY_IN_USE"
	codeVolumeNotMapped   = "VOLUME_NOT_MAPPED_TO_HOST"
	codeAccessDenied      = "ACCESS_DENIED"
	codeUserNotAuthorized = "USER_NOT_AUTHORIZED_FOR_COMMAND"
)

var (
	commonCodes = sshcli.CodeTable{
		codeAccessDenied:      array.KindPermissionDenied,
		codeUserNotAuthorized: array.KindPermissionDenied,
	}

	listCodes = sshcli.CodeTable{
		codeVolumeBadName: array.KindVolumeNotFound,
	}

	mapCodes = sshcli.CodeTable{
		codeVolumeBadName:   array.KindVolumeNotFound,
		codeHostBadName:     array.KindHostNotFound,
		codeLunAlreadyInUse: array.KindLunAlreadyInUse,
	}

	unmapCodes = sshcli.CodeTable{
		codeVolumeBadName:   array.KindVolumeNotFound,
		codeHostBadName:     array.KindHostNotFound,
		codeVolumeNotMapped: array.KindVolumeAlreadyUnmapped,
	}
)

func cmdHostList() string {
	return "host_list"
}

func cmdVolMappingList(volume string) string {
	return fmt.Sprintf("vol_mapping_list vol=%s", volume)
}

func cmdMappingList(host string) string {
	return fmt.Sprintf("mapping_list host=%s", host)
}

func cmdMapVol(host, volume string, lun int) string {
	return fmt.Sprintf("map_vol host=%s vol=%s lun=%d", host, volume, lun)
}

func cmdUnmapVol(host, volume string) string {
	return fmt.Sprintf("unmap_vol host=%s vol=%s", host, volume)
}

func cmdISCSIName() string {
	return "config_get name=iscsi_name"
}

func cmdFCPortList() string {
	return "fc_port_list"
}

var xcli = sshcli.Dialect{
	Name:   "xcli",
	Code:   failureCode,
	Common: commonCodes,
}

// failureCode extracts the completion code of a failed XCLI command
func failureCode(output string) (code, message string) {
	for _, rec := range sshcli.ParseRecords(output) {
		if c, ok := rec["code"]; ok {
			return c, rec["message"]
		}
	}
	return "", ""
}
