package filesystem

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/instafs-io/instafs/utils/exec"
)

const blkidCmd = "/sbin/blkid"

/*
# blkid -c /dev/null -o export /dev/md127
DEVNAME=/dev/md127
UUID=3813a813-3b66-4c24-a5b3-53b7fed5aa94
BLOCK_SIZE=512
TYPE=xfs
*/

// probeBlkid returns the key/value pairs blkid reports for device. A
// device without any recognizable signature yields an empty map, blkid
// signals that case with exit status 2.
func probeBlkid(executor exec.Executor, device string) (map[string]string, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, err
	}
	// synchronizes dirty data
	f.Sync()
	f.Close()

	out, err := executor.ExecuteCommandWithCombinedOutput(blkidCmd, "-c", "/dev/null", "-o", "export", device)
	if err != nil {
		if code, ok := exec.ExitStatus(err); ok && code == 2 {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("blkid failed: output=%s, device=%s, error=%v", out, device, err)
	}

	kv := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), "=", 2)
		if len(parts) != 2 {
			continue
		}
		kv[parts[0]] = parts[1]
	}
	return kv, nil
}

// DetectFilesystem returns filesystem type if device has a filesystem.
// This returns an empty string if no filesystem exists.
func DetectFilesystem(executor exec.Executor, device string) (string, error) {
	kv, err := probeBlkid(executor, device)
	if err != nil {
		return "", err
	}
	return kv["TYPE"], nil
}

// DetectUUID returns the filesystem UUID of device, validated so that a
// garbled probe can never reach the mount table.
func DetectUUID(executor exec.Executor, device string) (string, error) {
	kv, err := probeBlkid(executor, device)
	if err != nil {
		return "", err
	}
	raw := kv["UUID"]
	if raw == "" {
		return "", errors.Errorf("device %s reports no filesystem UUID", device)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", errors.Wrapf(err, "device %s reports unusable filesystem UUID %q", device, raw)
	}
	return id.String(), nil
}
