/*
   Copyright @ 2026 instafs authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/
package raid

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	"k8s.io/utils/clock"

	"github.com/instafs-io/instafs/pkg/devicemanager/types"
	"github.com/instafs-io/instafs/utils"
	"github.com/instafs-io/instafs/utils/exec"
	"github.com/instafs-io/instafs/utils/log"
	"github.com/instafs-io/instafs/utils/wait"
)

const cmdMdadm = "/sbin/mdadm"

// LocalRaid assembles striped md arrays from instance-store devices.
type LocalRaid interface {
	// Assemble converges devices into one striped array published as
	// /dev/md/<name>. It returns the array path and whether this call
	// created the array. An array that already exists, under the exact
	// name or a homehost-suffixed variant of it, is adopted as is.
	Assemble(devices types.DeviceSet, name string) (path string, created bool, err error)
}

type LocalRaidImplement struct {
	Executor exec.Executor
	Clock    wait.Clock
	// MdDir is where mdadm publishes named array links.
	MdDir string
	// ConfPath is the mdadm descriptor file consulted at boot.
	ConfPath string
	// ProcPath is the proc mount to read mdstat from.
	ProcPath string
}

func NewLocalRaid(executor exec.Executor) *LocalRaidImplement {
	return &LocalRaidImplement{
		Executor: executor,
		Clock:    clock.RealClock{},
		MdDir:    "/dev/md",
		ConfPath: "/etc/mdadm.conf",
		ProcPath: procfs.DefaultMountPoint,
	}
}

func (ld *LocalRaidImplement) Assemble(devices types.DeviceSet, name string) (string, bool, error) {
	if devices.Len() < 2 {
		return "", false, errors.Errorf("assembling %s needs at least 2 devices, got %d", name, devices.Len())
	}

	path, created, err := ld.ensureArray(devices, name)
	if err != nil {
		return "", false, err
	}

	if err := ld.waitStable(path); err != nil {
		if errors.Is(err, wait.ErrTimeout) {
			log.Warnf("array %s is still syncing after %s, continuing", path, stableTimeout)
		} else {
			log.Warnf("unable to watch state of array %s: %v", path, err)
		}
	}

	if appended, err := ld.persistConf(name, path); err != nil {
		log.Warnf("failed to record array %s in %s: %v", path, ld.ConfPath, err)
	} else if appended {
		log.Infof("recorded array %s in %s", path, ld.ConfPath)
	}

	return path, created, nil
}

func (ld *LocalRaidImplement) ensureArray(devices types.DeviceSet, name string) (string, bool, error) {
	path := filepath.Join(ld.MdDir, name)
	if utils.FileExists(path) {
		log.Infof("array %s already exists", path)
		return path, false, nil
	}
	if existing := ld.lookupSuffixed(name); existing != "" {
		log.Warnf("adopting array %s for name %s", existing, name)
		return existing, false, nil
	}

	args := []string{
		"--create", "--verbose", path,
		"--level=0",
		fmt.Sprintf("--raid-devices=%d", devices.Len()),
		fmt.Sprintf("--name=%s", name),
	}
	args = append(args, devices.Paths()...)
	out, err := ld.Executor.ExecuteCommandWithCombinedOutput(cmdMdadm, args...)
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to create array %s: %s", path, out)
	}
	log.Infof("created array %s from %d devices", path, devices.Len())

	if err := ld.udevSettle(); err != nil {
		log.Warnf("udevadm settle: %v", err)
	}
	return path, true, nil
}

// lookupSuffixed finds the array under a suffixed link, which mdadm
// creates when the array's recorded homehost does not match at assembly
// time, e.g. /dev/md/data0_0. The newest link wins.
func (ld *LocalRaidImplement) lookupSuffixed(name string) string {
	matches, err := filepath.Glob(filepath.Join(ld.MdDir, name+"*"))
	if err != nil || len(matches) == 0 {
		return ""
	}

	newest := ""
	var newestTime time.Time
	for _, m := range matches {
		info, err := os.Lstat(m)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = m
			newestTime = info.ModTime()
		}
	}
	return newest
}

// persistConf appends this array's scan line to mdadm.conf so boot-time
// assembly keeps the name stable. Arrays the file already records, by
// UUID when the scan line carries one and by device path otherwise, are
// left alone.
func (ld *LocalRaidImplement) persistConf(name, path string) (bool, error) {
	out, err := ld.Executor.ExecuteCommandWithOutput(cmdMdadm, "--detail", "--scan")
	if err != nil {
		return false, errors.Wrapf(err, "mdadm --detail --scan failed: %s", out)
	}
	details, err := parseDetailScan(out)
	if err != nil {
		return false, err
	}
	detail, ok := findArray(details, name, path)
	if !ok {
		return false, errors.Errorf("array %s is missing from mdadm --detail --scan", path)
	}

	existing, err := os.ReadFile(ld.ConfPath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}
	if confRecords(string(existing), detail) {
		log.Debugf("%s already records array %s", ld.ConfPath, detail.Device)
		return false, nil
	}

	f, err := os.OpenFile(ld.ConfPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()
	if _, err := f.WriteString(detail.Line() + "\n"); err != nil {
		return false, err
	}
	return true, nil
}

func confRecords(conf string, detail ArrayDetail) bool {
	for _, line := range strings.Split(conf, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if detail.UUID != "" {
			if strings.Contains(trimmed, "UUID="+detail.UUID) {
				return true
			}
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) >= 2 && fields[0] == "ARRAY" && fields[1] == detail.Device {
			return true
		}
	}
	return false
}

func (ld *LocalRaidImplement) udevSettle() error {
	_, err := ld.Executor.ExecuteCommandWithOutput("udevadm", "settle")
	if err != nil {
		return err
	}
	return err
}
