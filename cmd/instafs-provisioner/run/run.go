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

package run

import (
	"time"

	"github.com/instafs-io/instafs/pkg/configuration"
	deviceManager "github.com/instafs-io/instafs/pkg/devicemanager"
	"github.com/instafs-io/instafs/pkg/hostprep"
	"github.com/instafs-io/instafs/pkg/metrics"
	"github.com/instafs-io/instafs/utils/exec"
	"github.com/instafs-io/instafs/utils/log"
)

func subMain() error {
	cfg, err := configuration.Load(config.configFile, func(c *configuration.Config) {
		if config.mountPath != "" {
			c.MountPath = config.mountPath
		}
		if config.arrayName != "" {
			c.ArrayName = config.arrayName
		}
		if config.metricsTextfileDir != "" {
			c.MetricsTextfileDir = config.metricsTextfileDir
		}
		if config.installTools {
			c.InstallTools = true
		}
	})
	if err != nil {
		return err
	}

	prep := hostprep.New(&exec.CommandExecutor{})
	if err := prep.EnsureRoot(); err != nil {
		return err
	}
	if err := prep.EnsureTools(cfg.InstallTools); err != nil {
		return err
	}

	begin := time.Now()
	res, err := deviceManager.NewDeviceManager(cfg).Provision()
	publishMetrics(cfg, res, time.Since(begin), err)
	if err != nil {
		return err
	}

	log.Infof("provisioning finished: outcome %s, %d devices, %d mutating actions, took %s",
		res.Outcome, res.Devices.Len(), res.Mutations, time.Since(begin).Round(time.Millisecond))
	return nil
}

func publishMetrics(cfg configuration.Config, res deviceManager.Result, took time.Duration, runErr error) {
	if cfg.MetricsTextfileDir == "" {
		return
	}

	snap := metrics.Snapshot{
		Outcome:           string(res.Outcome),
		DevicesDiscovered: res.Devices.Len(),
		Mutations:         res.Mutations,
		Duration:          took,
		Success:           runErr == nil,
	}
	if res.Devices.Len() > 1 {
		snap.ArrayMembers = res.Devices.Len()
	}
	if runErr != nil {
		snap.Outcome = "failed"
	}

	recorder := metrics.NewRecorder()
	recorder.Record(snap)
	if err := recorder.WriteTextfile(cfg.MetricsTextfileDir); err != nil {
		log.Warnf("failed to write metrics textfile: %v", err)
	}
}
