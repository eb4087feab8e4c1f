package capture

import (
	"errors"

	"github.com/magnumstream/studio-agent/internal/media"
)

var ErrNoCameras = errors.New("no working camera available")

const maxCameras = 2

// SelectCameras picks the cameras to record with. Wanted ids that are not
// connected are skipped; with nothing wanted the first two devices are
// used. One working camera is enough to proceed.
func SelectCameras(available []media.Device, wanted []string) ([]media.Device, error) {
	var selected []media.Device
	if len(wanted) == 0 {
		selected = available
	} else {
		byID := make(map[string]media.Device, len(available))
		for _, d := range available {
			byID[d.ID] = d
		}
		for _, id := range wanted {
			if d, ok := byID[id]; ok {
				selected = append(selected, d)
			}
		}
	}

	if len(selected) == 0 {
		return nil, ErrNoCameras
	}
	if len(selected) > maxCameras {
		selected = selected[:maxCameras]
	}
	return selected, nil
}
