package device

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/instafs-io/instafs/utils/log"
)

/*
# nvme list -o json
{
  "Devices" : [
    {
      "NameSpace" : 1,
      "DevicePath" : "/dev/nvme0n1",
      "Firmware" : "1.0",
      "Index" : 0,
      "ModelNumber" : "Amazon Elastic Block Store",
      "SerialNumber" : "vol0123456789abcdef0",
      "UsedBytes" : 0,
      "MaximumLBA" : 209715200,
      "PhysicalSize" : 107374182400,
      "SectorSize" : 512
    },
    {
      "NameSpace" : 1,
      "DevicePath" : "/dev/nvme1n1",
      "Firmware" : "0",
      "Index" : 1,
      "ModelNumber" : "Amazon EC2 NVMe Instance Storage",
      "SerialNumber" : "AWS16AAAC7092B6C4081",
      "UsedBytes" : 0,
      "MaximumLBA" : 1464859648,
      "PhysicalSize" : 750000000000,
      "SectorSize" : 512
    }
  ]
}
*/

// nvmeController is one device row of nvme list output.
type nvmeController struct {
	DevicePath   string `json:"DevicePath"`
	ModelNumber  string `json:"ModelNumber"`
	SerialNumber string `json:"SerialNumber"`
	PhysicalSize uint64 `json:"PhysicalSize"`
}

type nvmeListOutput struct {
	Devices []nvmeController `json:"Devices"`
}

func parseNVMeList(raw string) ([]nvmeController, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out nvmeListOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal nvme list output")
	}
	return out.Devices, nil
}

// nvmeListCandidates asks the nvme tool for controllers whose model number
// contains the configured filter. It runs only when no stable link
// matched, and any failure degrades to an empty result.
func (ld *LocalDeviceImplement) nvmeListCandidates() []string {
	if ld.ModelFilter == "" {
		return nil
	}

	raw, err := ld.Executor.ExecuteCommandWithOutput("nvme", "list", "-o", "json")
	if err != nil {
		log.Warnf("nvme list failed: %v", err)
		return nil
	}
	controllers, err := parseNVMeList(raw)
	if err != nil {
		log.Warnf("%v", err)
		return nil
	}

	var found []string
	for _, c := range controllers {
		if !strings.Contains(c.ModelNumber, ld.ModelFilter) {
			log.Debugf("ignoring %s, model %q", c.DevicePath, strings.TrimSpace(c.ModelNumber))
			continue
		}
		log.Infof("nvme list matched %s (%s, serial %s)", c.DevicePath, strings.TrimSpace(c.ModelNumber), c.SerialNumber)
		found = append(found, c.DevicePath)
	}
	return found
}
