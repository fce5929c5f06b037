package mock

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"git.srvlab.io/whiskey/block-csi-driver/pkg/array"
)

// mapWithRetry mirrors the controller's allocation loop: collisions draw a new LUN
func mapWithRetry(ctx context.Context, m array.Mediator, volume, host string) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= m.MaxLUNRetries(); attempt++ {
		lun, err := m.MapVolume(ctx, volume, host, array.ConnectivityISCSI)
		if err == nil {
			return lun, nil
		}
		if !array.IsKind(err, array.KindLunAlreadyInUse) {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}

// TestConcurrentMappings maps many volumes to one host from separate sessions.
// Every volume must end up on its own LUN.
func TestConcurrentMappings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	server := startTestArray(t)

	const numVolumes = 20
	for i := 0; i < numVolumes; i++ {
		server.AddVolume(fmt.Sprintf("stress-%02d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, numVolumes)
	for i := 0; i < numVolumes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := dialMediator(server)
			if err != nil {
				errs <- err
				return
			}
			defer m.Close()
			if _, err := mapWithRetry(context.Background(), m, fmt.Sprintf("stress-%02d", i), "host-1"); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("mapping failed: %v", err)
	}

	seen := map[int]string{}
	for i := 0; i < numVolumes; i++ {
		vol := fmt.Sprintf("stress-%02d", i)
		lun, ok := server.GetMappings(vol)["host-1"]
		if !ok {
			t.Errorf("%s is not mapped", vol)
			continue
		}
		if other, dup := seen[lun]; dup {
			t.Errorf("%s and %s share LUN %d", vol, other, lun)
		}
		seen[lun] = vol
	}
}

// TestConcurrentCollisionsAreRetried injects collisions under concurrency; all maps still succeed
func TestConcurrentCollisionsAreRetried(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	server := startTestArray(t)
	server.InjectErrors(ErrorModeLunCollision, 0, 5)

	const numVolumes = 5
	for i := 0; i < numVolumes; i++ {
		server.AddVolume(fmt.Sprintf("retry-%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < numVolumes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := dialMediator(server)
			if err != nil {
				t.Errorf("retry-%d: %v", i, err)
				return
			}
			defer m.Close()
			if _, err := mapWithRetry(context.Background(), m, fmt.Sprintf("retry-%d", i), "host-1"); err != nil {
				t.Errorf("retry-%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got := server.CountCommands("map_vol"); got != numVolumes+5 {
		t.Errorf("expected %d map_vol commands, got %d", numVolumes+5, got)
	}
}
