package filesystem

import (
	"github.com/pkg/errors"

	"github.com/instafs-io/instafs/utils/exec"
	"github.com/instafs-io/instafs/utils/log"
)

const cmdMkfsXfs = "/sbin/mkfs.xfs"

// xfs caps the log stripe unit at 256KiB while md defaults to a 512KiB
// chunk. 8 blocks (32KiB) stays under the ceiling for any chunk size.
const xfsLogStripeUnit = "su=8b"

type Formatter interface {
	// Format applies an xfs filesystem to device unless one already
	// exists. It reports whether this call created the filesystem.
	Format(device string) (bool, error)
}

type XfsImplement struct {
	Executor exec.Executor
}

func NewXfs(executor exec.Executor) *XfsImplement {
	return &XfsImplement{Executor: executor}
}

func (fs *XfsImplement) Format(device string) (bool, error) {
	fsType, err := DetectFilesystem(fs.Executor, device)
	if err != nil {
		return false, err
	}
	if fsType == "xfs" {
		log.Infof("device %s already formatted xfs, skip mkfs", device)
		return false, nil
	}
	if fsType != "" {
		log.Warnf("device %s carries a %s filesystem, refusing to reformat", device, fsType)
		return false, nil
	}

	// #nosec G204
	out, err := fs.Executor.ExecuteCommandWithCombinedOutput(cmdMkfsXfs, "-l", xfsLogStripeUnit, device)
	if err != nil {
		return false, errors.Wrapf(err, "mkfs.xfs failed on %s: %s", device, out)
	}
	log.Infof("created xfs filesystem on device %s", device)
	return true, nil
}
