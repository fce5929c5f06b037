package array

import "context"

// Mediator is one authenticated session against a storage array.
// A Mediator is owned by a single request and must be closed by its owner.
type Mediator interface {
	// ArrayType returns the family name used in volume ids
	ArrayType() string

	// ResolveHost finds the array host owning any of the given initiators and
	// reports which transports it is defined for
	ResolveHost(ctx context.Context, iqns, wwns []string) (string, []ConnectivityType, error)

	// ListVolumeMappings returns hostname to LUN for every host the volume is mapped to
	ListVolumeMappings(ctx context.Context, volumeID string) (map[string]int, error)

	// MapVolume maps the volume to the host and returns the LUN the array assigned
	MapVolume(ctx context.Context, volumeID, hostname string, connectivity ConnectivityType) (int, error)

	// UnmapVolume removes the host to volume mapping
	UnmapVolume(ctx context.Context, volumeID, hostname string) error

	// ArrayISCSITargets returns the array's iSCSI target names
	ArrayISCSITargets(ctx context.Context) ([]string, error)

	// ArrayFCTargets returns the array's FC target port names
	ArrayFCTargets(ctx context.Context) ([]string, error)

	// MaxLUNRetries bounds how often MapVolume is retried on LUN collisions
	MaxLUNRetries() int

	// LUNRange returns the inclusive LUN bounds of this family
	LUNRange() (int, int)

	Close() error
}
