package device

import (
	"path/filepath"

	"github.com/anuvu/disko/linux"
	"github.com/dustin/go-humanize"

	"github.com/instafs-io/instafs/pkg/configuration"
	"github.com/instafs-io/instafs/pkg/devicemanager/types"
	"github.com/instafs-io/instafs/utils/exec"
	"github.com/instafs-io/instafs/utils/log"
)

var mysys = linux.System()

// LocalDevice discovers the instance-store NVMe devices of this machine.
type LocalDevice interface {
	// Discover returns the eligible devices. An empty set is a normal
	// result on hosts without instance storage. Problems while probing
	// individual devices are logged and the device skipped, discovery
	// itself never fails the run.
	Discover() (types.DeviceSet, error)
}

type LocalDeviceImplement struct {
	Executor    exec.Executor
	Patterns    []string
	ModelFilter string

	// scanDisk reports the partition count and size of a block device. It
	// is a field so tests can run without real block devices.
	scanDisk func(path string) (partitions int, size uint64, err error)
}

func NewLocalDevice(executor exec.Executor, cfg configuration.Config) *LocalDeviceImplement {
	return &LocalDeviceImplement{
		Executor:    executor,
		Patterns:    cfg.DevicePatterns,
		ModelFilter: cfg.ModelFilter,
		scanDisk:    diskoScanDisk,
	}
}

func diskoScanDisk(path string) (int, uint64, error) {
	disk, err := mysys.ScanDisk(path)
	if err != nil {
		return 0, 0, err
	}
	return len(disk.Partitions), disk.Size, nil
}

func (ld *LocalDeviceImplement) Discover() (types.DeviceSet, error) {
	candidates := ld.stableLinkCandidates()
	if len(candidates) == 0 {
		candidates = ld.nvmeListCandidates()
	}

	resolved := make([]string, 0, len(candidates))
	for _, c := range candidates {
		real, err := filepath.EvalSymlinks(c)
		if err != nil {
			log.Warnf("skipping %s: %v", c, err)
			continue
		}
		resolved = append(resolved, real)
	}

	var eligible []string
	for _, path := range types.NewDeviceSet(resolved...).Paths() {
		partitions, size, err := ld.scanDisk(path)
		if err != nil {
			log.Warnf("skipping %s: unable to scan: %v", path, err)
			continue
		}
		if partitions > 0 {
			log.Warnf("skipping %s: device carries %d partitions", path, partitions)
			continue
		}
		log.Infof("discovered %s (%s)", path, humanize.IBytes(size))
		eligible = append(eligible, path)
	}

	set := types.NewDeviceSet(eligible...)
	if set.Empty() {
		log.Info("no instance-store devices present")
	}
	return set, nil
}

// stableLinkCandidates expands the configured by-id globs. The links
// themselves are returned, the caller resolves them to device paths.
func (ld *LocalDeviceImplement) stableLinkCandidates() []string {
	var found []string
	for _, pattern := range ld.Patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			log.Warnf("bad device pattern %s: %v", pattern, err)
			continue
		}
		log.Debugf("pattern %s matched %d links", pattern, len(matches))
		found = append(found, matches...)
	}
	return found
}
