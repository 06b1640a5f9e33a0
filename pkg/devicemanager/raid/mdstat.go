package raid

import (
	"path/filepath"
	"time"

	"github.com/prometheus/procfs"

	"github.com/instafs-io/instafs/utils"
	"github.com/instafs-io/instafs/utils/log"
	"github.com/instafs-io/instafs/utils/wait"
)

const (
	stableInterval = time.Second
	stableTimeout  = time.Minute
)

// busyStates are the mdstat activity states during which member disks are
// being written by the kernel.
var busyStates = []string{"resyncing", "recovering", "checking"}

// waitStable polls mdstat until the array settles. The named link under
// /dev/md points at the kernel device, md127 and friends, which is the
// name mdstat reports.
func (ld *LocalRaidImplement) waitStable(path string) error {
	kernelPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return err
	}
	name := filepath.Base(kernelPath)

	fs, err := procfs.NewFS(ld.ProcPath)
	if err != nil {
		return err
	}

	poller := wait.Poller{Clock: ld.Clock, Interval: stableInterval, Timeout: stableTimeout}
	return poller.Wait(func() (bool, error) {
		stats, err := fs.MDStat()
		if err != nil {
			return false, err
		}
		for _, md := range stats {
			if md.Name != name {
				continue
			}
			if utils.ContainsString(busyStates, md.ActivityState) {
				log.Debugf("array %s is %s, %d of %d blocks", name, md.ActivityState, md.BlocksSynced, md.BlocksTotal)
				return false, nil
			}
			log.Debugf("array %s is %s", name, md.ActivityState)
			return true, nil
		}
		// mdstat may lag right after creation
		return false, nil
	})
}
