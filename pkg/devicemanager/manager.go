package deviceManager

import (
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/instafs-io/instafs/pkg/configuration"
	"github.com/instafs-io/instafs/pkg/devicemanager/device"
	"github.com/instafs-io/instafs/pkg/devicemanager/raid"
	"github.com/instafs-io/instafs/pkg/devicemanager/types"
	"github.com/instafs-io/instafs/pkg/filesystem"
	"github.com/instafs-io/instafs/utils/exec"
	"github.com/instafs-io/instafs/utils/log"
)

// Outcome classifies how a provisioning run ended.
type Outcome string

const (
	// OutcomeProvisioned means the mount path carries the instance-store
	// filesystem, whether this run built it or found it already in place.
	OutcomeProvisioned Outcome = "provisioned"
	// OutcomeNoDevices means no eligible devices exist and nothing was done.
	OutcomeNoDevices Outcome = "no-devices"
)

// Result reports what one provisioning run observed and did.
type Result struct {
	Outcome      Outcome
	Devices      types.DeviceSet
	TargetDevice string
	// Mutations counts the actions that changed system state, array
	// creation, mkfs and mount. A converged system reports 0.
	Mutations int
}

type DeviceManager struct {
	// instance-store device discovery
	DiskManager device.LocalDevice
	// md array assembly
	RaidManager raid.LocalRaid
	// xfs formatting
	Formatter filesystem.Formatter
	// mount and mount-table upkeep
	Mounter filesystem.Mounter

	config configuration.Config
}

func NewDeviceManager(cfg configuration.Config) *DeviceManager {
	executor := &exec.CommandExecutor{}
	return &DeviceManager{
		DiskManager: device.NewLocalDevice(executor, cfg),
		RaidManager: raid.NewLocalRaid(executor),
		Formatter:   filesystem.NewXfs(executor),
		Mounter:     filesystem.NewMounter(executor),
		config:      cfg,
	}
}

// Provision converges the host: discover devices, assemble an array
// when more than one exists, format the target and mount it. Every step
// checks system state before acting, so a rerun only fills in whatever
// is still missing and a converged host reports zero mutations.
func (dm *DeviceManager) Provision() (Result, error) {
	res := Result{}

	devices, err := dm.DiskManager.Discover()
	if err != nil {
		return res, errors.Wrap(err, "discovery failed")
	}
	res.Devices = devices

	if devices.Empty() {
		log.Info("no eligible instance-store devices found, nothing to do")
		res.Outcome = OutcomeNoDevices
		return res, nil
	}

	target := devices.First()
	if devices.Len() > 1 {
		path, created, err := dm.RaidManager.Assemble(devices, dm.config.ArrayName)
		if err != nil {
			return res, errors.Wrap(err, "array assembly failed")
		}
		if created {
			res.Mutations++
		}
		target = path
	} else {
		log.Infof("single device %s, skipping array assembly", target)
	}
	res.TargetDevice = target

	formatted, err := dm.Formatter.Format(target)
	if err != nil {
		return res, errors.Wrap(err, "formatting failed")
	}
	if formatted {
		res.Mutations++
	}

	mounted, err := dm.Mounter.Mount(target, dm.config.MountPath)
	if err != nil {
		return res, errors.Wrap(err, "mounting failed")
	}
	if mounted {
		res.Mutations++
	}

	res.Outcome = OutcomeProvisioned
	dm.logSummary(target)
	return res, nil
}

func (dm *DeviceManager) logSummary(target string) {
	var st unix.Statfs_t
	if err := filesystem.Statfs(dm.config.MountPath, &st); err != nil {
		log.Warnf("statfs %s: %v", dm.config.MountPath, err)
		return
	}
	total := st.Blocks * uint64(st.Bsize)
	free := st.Bavail * uint64(st.Bsize)
	log.Infof("%s mounted at %s, size %s, free %s",
		target, dm.config.MountPath, humanize.IBytes(total), humanize.IBytes(free))
}
