package filesystem

import (
	"os"

	"github.com/pkg/errors"
	mount "k8s.io/mount-utils"

	"github.com/instafs-io/instafs/utils/exec"
	"github.com/instafs-io/instafs/utils/log"
)

const defaultFstabPath = "/etc/fstab"

// Mounter publishes a formatted device at its target path and records
// the binding so it survives reboots.
type Mounter interface {
	// Mount mounts device at mountPath and ensures a mount-table entry
	// for it keyed by filesystem UUID. It reports whether this call
	// performed the mount.
	Mount(device, mountPath string) (bool, error)
}

type MountImplement struct {
	Executor  exec.Executor
	Interface mount.Interface
	FstabPath string
}

func NewMounter(executor exec.Executor) *MountImplement {
	return &MountImplement{
		Executor:  executor,
		Interface: mount.New(""),
		FstabPath: defaultFstabPath,
	}
}

func (m *MountImplement) Mount(device, mountPath string) (bool, error) {
	if err := os.MkdirAll(mountPath, 0755); err != nil {
		return false, errors.Wrapf(err, "failed to create mount path %s", mountPath)
	}

	notMnt, err := mount.IsNotMountPoint(m.Interface, mountPath)
	if err != nil {
		return false, errors.Wrapf(err, "failed to inspect mount path %s", mountPath)
	}

	mounted := false
	if notMnt {
		elsewhere, err := m.mountedElsewhere(device, mountPath)
		if err != nil {
			return false, err
		}
		if elsewhere != "" {
			log.Warnf("device %s is already mounted at %s, leaving it there", device, elsewhere)
			return false, nil
		}
		if err := m.Interface.Mount(device, mountPath, "xfs", []string{"noatime"}); err != nil {
			return false, errors.Wrapf(err, "failed to mount %s at %s", device, mountPath)
		}
		log.Infof("mounted %s at %s", device, mountPath)
		mounted = true
	} else {
		ours, err := m.occupiedByDevice(device, mountPath)
		if err != nil {
			return false, err
		}
		if !ours {
			log.Warnf("%s is already mounted by another device, not recording %s for it", mountPath, device)
			return false, nil
		}
		log.Infof("%s is already a mount point", mountPath)
	}

	if err := m.persistFstab(device, mountPath); err != nil {
		return false, errors.Wrapf(err, "failed to record mount of %s in %s", device, m.FstabPath)
	}
	return mounted, nil
}

// occupiedByDevice reports whether the mount at target is backed by
// device. A foreign occupant must not gain a mount-table entry for our
// filesystem, that would bind two devices to one path at boot.
func (m *MountImplement) occupiedByDevice(device, target string) (bool, error) {
	mounts, err := m.Interface.List()
	if err != nil {
		return false, errors.Wrap(err, "failed to list mount points")
	}
	for _, mp := range mounts {
		if mp.Path != target {
			continue
		}
		same, err := isSameDevice(device, mp.Device)
		if err != nil {
			return false, err
		}
		return same, nil
	}
	return false, nil
}

// mountedElsewhere returns the path device is currently mounted at when
// that path differs from target.
func (m *MountImplement) mountedElsewhere(device, target string) (string, error) {
	mounts, err := m.Interface.List()
	if err != nil {
		return "", errors.Wrap(err, "failed to list mount points")
	}
	for _, mp := range mounts {
		if mp.Path == target {
			continue
		}
		same, err := isSameDevice(device, mp.Device)
		if err != nil {
			return "", err
		}
		if same {
			return mp.Path, nil
		}
	}
	return "", nil
}

// persistFstab ensures one mount-table entry binding the filesystem on
// device to target. The entry is keyed by filesystem UUID, device paths
// are not stable across reboots, and carries nofail so a missing device
// never blocks boot. An entry whose UUID is already recorded is left
// alone even when it names a different path.
func (m *MountImplement) persistFstab(device, target string) error {
	id, err := DetectUUID(m.Executor, device)
	if err != nil {
		return err
	}
	entry := FstabEntry{
		Spec:    "UUID=" + id,
		File:    target,
		VfsType: "xfs",
		MntOps:  "defaults,noatime,nofail",
		Freq:    0,
		PassNo:  2,
	}

	existing, err := os.ReadFile(m.FstabPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, cur := range parseFstab(string(existing)) {
		if cur.Spec != entry.Spec {
			continue
		}
		if cur.File != entry.File {
			log.Warnf("%s already binds %s to %s, not %s", m.FstabPath, entry.Spec, cur.File, entry.File)
		} else {
			log.Debugf("%s already records %s", m.FstabPath, entry.Spec)
		}
		return nil
	}

	f, err := os.OpenFile(m.FstabPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(entry.Line() + "\n"); err != nil {
		return err
	}
	log.Infof("recorded %s at %s in %s", entry.Spec, target, m.FstabPath)
	return nil
}
