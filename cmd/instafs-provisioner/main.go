package main

import (
	"os"

	"github.com/instafs-io/instafs/cmd/instafs-provisioner/run"
	"github.com/instafs-io/instafs/utils/log"
)

var gitCommitID = "dev"

func main() {
	printWelcome()
	run.Execute()
}

func printWelcome() {
	if gitCommitID == "" {
		gitCommitID = "dev"
	}
	hostname, _ := os.Hostname()
	log.Info("-------- Welcome to use Instafs Provisioner --------")
	log.Infof("Git Commit ID : %s", gitCommitID)
	log.Infof("host name : %s", hostname)
	log.Info("------------------------------------")
}
