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

package configuration

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/instafs-io/instafs/utils/log"
)

const (
	configPath = "/etc/instafs/"

	DefaultMountPath   = "/data"
	DefaultArrayName   = "data0"
	DefaultModelFilter = "Instance Storage"
)

// DefaultDevicePatterns matches the stable links EC2 creates for NVMe
// instance-store volumes.
var DefaultDevicePatterns = []string{
	"/dev/disk/by-id/nvme-Amazon_EC2_NVMe_Instance_Storage-*",
}

var opt = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
))

// Config is the effective runtime configuration. Load builds it once at
// startup and every component receives it by value, nothing reads
// configuration state globally.
type Config struct {
	// MountPath is the directory the provisioned filesystem is mounted on.
	MountPath string `json:"mountPath"`
	// ArrayName names the md array, surfacing as /dev/md/<ArrayName>.
	ArrayName string `json:"arrayName"`
	// DevicePatterns are the stable-path globs probed first during
	// discovery.
	DevicePatterns []string `json:"devicePatterns"`
	// ModelFilter keeps an NVMe controller during fallback discovery when
	// its reported model number contains this substring.
	ModelFilter string `json:"modelFilter"`
	// MetricsTextfileDir, when set, receives the run summary in
	// node_exporter textfile format.
	MetricsTextfileDir string `json:"metricsTextfileDir"`
	// InstallTools allows installing missing userspace tools with the
	// host package manager before provisioning.
	InstallTools bool `json:"installTools"`
}

// Load builds the effective configuration: defaults first, then the
// config file when one exists, then INSTAFS_* environment variables. The
// optional override runs last, before validation, so command line flags
// can take precedence over everything else.
//
// configFile selects an explicit file, which then must exist. When empty,
// /etc/instafs/config.yaml is used if present and silently skipped
// otherwise.
func Load(configFile string, override func(*Config)) (Config, error) {
	v := viper.New()
	v.SetDefault("mountPath", DefaultMountPath)
	v.SetDefault("arrayName", DefaultArrayName)
	v.SetDefault("devicePatterns", DefaultDevicePatterns)
	v.SetDefault("modelFilter", DefaultModelFilter)
	v.SetDefault("metricsTextfileDir", "")
	v.SetDefault("installTools", false)

	v.SetEnvPrefix("instafs")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read the configuration %s: %w", configFile, err)
		}
	} else {
		v.AddConfigPath(configPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read the configuration: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, opt); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal the configuration: %w", err)
	}

	if override != nil {
		override(&cfg)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	var arrayNameRegexp = regexp.MustCompile("^[A-Za-z0-9][-A-Za-z0-9_]*$")

	if !arrayNameRegexp.MatchString(cfg.ArrayName) {
		return fmt.Errorf("array name should consist of alphanumeric characters, '-' or '_', and should start with an alphanumeric character: %s", cfg.ArrayName)
	}
	if !filepath.IsAbs(cfg.MountPath) || cfg.MountPath == "/" {
		return fmt.Errorf("mount path must be an absolute path other than /: %s", cfg.MountPath)
	}
	for _, p := range cfg.DevicePatterns {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("device pattern must be an absolute path: %s", p)
		}
		if _, err := filepath.Match(p, "/dev/null"); err != nil {
			return fmt.Errorf("device pattern is not a valid glob: %s", p)
		}
	}
	if cfg.MetricsTextfileDir != "" && !filepath.IsAbs(cfg.MetricsTextfileDir) {
		return fmt.Errorf("metrics textfile directory must be an absolute path: %s", cfg.MetricsTextfileDir)
	}
	if len(cfg.DevicePatterns) == 0 && cfg.ModelFilter == "" {
		return errors.New("no device patterns and no model filter, nothing could ever be discovered")
	}
	if len(cfg.DevicePatterns) == 0 {
		log.Warnf("no device patterns configured, relying on nvme list discovery only")
	}
	return nil
}
