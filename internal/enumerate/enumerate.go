// Package enumerate provides the friendly device listing used by the
// CLI and settings layer, grounded on original_source's
// DeviceEnumerator::enumerate (which surfaces both an opaque id and a
// human-readable name for each endpoint).
package enumerate

import (
	"sort"

	"github.com/lowlatency/audiobridge/internal/device"
)

// List returns capture or render endpoints from enum, sorted by
// friendly name for stable CLI/settings output.
func List(enum device.Enumerator, flow device.Flow) ([]device.Info, error) {
	infos, err := enum.Devices(flow)
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].FriendlyName < infos[j].FriendlyName
	})
	return infos, nil
}

// FindByID returns the first device in flow whose ID matches id, or
// ok=false if none does.
func FindByID(enum device.Enumerator, flow device.Flow, id string) (device.Info, bool, error) {
	infos, err := enum.Devices(flow)
	if err != nil {
		return device.Info{}, false, err
	}
	for _, info := range infos {
		if info.ID == id {
			return info, true, nil
		}
	}
	return device.Info{}, false, nil
}
