package run

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	instafs "github.com/instafs-io/instafs"
)

var config struct {
	configFile         string
	mountPath          string
	arrayName          string
	metricsTextfileDir string
	installTools       bool
}

var rootCmd = &cobra.Command{
	Use:     "instafs-provisioner",
	Version: instafs.Version,
	Short:   "Ephemeral NVMe instance-store provisioner",
	Long: `instafs-provisioner turns the ephemeral NVMe instance-store devices of a
cloud compute node into one mounted xfs filesystem. Multiple devices are
striped into an md raid0 array first, a single device is used directly.

Runs are idempotent: every step checks system state before acting, so
rerunning after a failure, or on every boot, converges without touching
completed work.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return subMain()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	fs := rootCmd.Flags()
	fs.StringVar(&config.configFile, "config", "", "Config file, /etc/instafs/config.yaml is used when present and this is unset")
	fs.StringVar(&config.mountPath, "mount-path", "", "Mount the provisioned filesystem here, overrides the configured value")
	fs.StringVar(&config.arrayName, "array-name", "", "Name of the md array, overrides the configured value")
	fs.StringVar(&config.metricsTextfileDir, "metrics-textfile-dir", "", "Write node_exporter textfile metrics into this directory")
	fs.BoolVar(&config.installTools, "install-tools", false, "Install missing storage tools with the host package manager first")
}
