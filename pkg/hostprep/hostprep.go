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
package hostprep

import (
	"os"
	osexec "os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/instafs-io/instafs/utils/exec"
	"github.com/instafs-io/instafs/utils/log"
)

// Tools the provisioner shells out to. nvme is optional, without it
// only the nvme list discovery fallback is disabled.
var (
	requiredTools = []string{"mdadm", "mkfs.xfs", "blkid"}
	optionalTools = []string{"nvme"}

	packages = []string{"mdadm", "xfsprogs", "nvme-cli"}
)

type packageManager struct {
	command string
	args    []string
	env     []string
}

var packageManagers = []packageManager{
	{command: "apt-get", args: []string{"install", "-y"}, env: []string{"DEBIAN_FRONTEND=noninteractive"}},
	{command: "dnf", args: []string{"install", "-y"}},
	{command: "yum", args: []string{"install", "-y"}},
}

// HostPrep verifies the host can run a provisioning pass, every later
// step mutates devices and system files and needs root plus the
// storage tools.
type HostPrep struct {
	Executor exec.Executor
	LookPath func(file string) (string, error)
	Euid     func() int
}

func New(executor exec.Executor) *HostPrep {
	return &HostPrep{
		Executor: executor,
		LookPath: osexec.LookPath,
		Euid:     os.Geteuid,
	}
}

func (h *HostPrep) EnsureRoot() error {
	if euid := h.Euid(); euid != 0 {
		return errors.Errorf("must run as root, running with effective uid %d", euid)
	}
	return nil
}

// EnsureTools verifies the storage tools are present, optionally
// installing them first through the host's package manager.
func (h *HostPrep) EnsureTools(install bool) error {
	if install {
		if err := h.installPackages(); err != nil {
			return err
		}
	}

	for _, tool := range requiredTools {
		if _, err := h.LookPath(tool); err != nil {
			return errors.Errorf("required tool %s not found in PATH", tool)
		}
	}
	for _, tool := range optionalTools {
		if _, err := h.LookPath(tool); err != nil {
			log.Warnf("%s not found in PATH, the nvme list discovery fallback is disabled", tool)
		}
	}
	return nil
}

func (h *HostPrep) installPackages() error {
	for _, pm := range packageManagers {
		if _, err := h.LookPath(pm.command); err != nil {
			continue
		}
		log.Infof("installing %s via %s", strings.Join(packages, " "), pm.command)
		args := append(append([]string{}, pm.args...), packages...)
		if err := h.Executor.ExecuteCommandWithEnv(pm.env, pm.command, args...); err != nil {
			return errors.Wrapf(err, "%s install failed", pm.command)
		}
		return nil
	}
	return errors.Errorf("no supported package manager found, install %s manually", strings.Join(packages, " "))
}
