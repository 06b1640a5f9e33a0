package device

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/instafs-io/instafs/utils/exec/exectest"
)

// fakeHost lays out a fake /dev tree with by-id links pointing at plain
// files, which is all glob expansion and symlink resolution need.
type fakeHost struct {
	dev  string
	byID string
}

func newFakeHost(t *testing.T) fakeHost {
	t.Helper()
	root := t.TempDir()
	h := fakeHost{
		dev:  filepath.Join(root, "dev"),
		byID: filepath.Join(root, "dev", "disk", "by-id"),
	}
	if err := os.MkdirAll(h.byID, 0755); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h fakeHost) addDevice(t *testing.T, name string, links ...string) string {
	t.Helper()
	path := filepath.Join(h.dev, name)
	if err := os.WriteFile(path, []byte{}, 0600); err != nil {
		t.Fatal(err)
	}
	for _, l := range links {
		if err := os.Symlink(path, filepath.Join(h.byID, l)); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func (h fakeHost) pattern() string {
	return filepath.Join(h.byID, "nvme-Amazon_EC2_NVMe_Instance_Storage-*")
}

func blankDisk(path string) (int, uint64, error) {
	return 0, 500 << 30, nil
}

func TestDiscoverStableLinks(t *testing.T) {
	a := assert.New(t)
	h := newFakeHost(t)
	nvme2 := h.addDevice(t, "nvme2n1", "nvme-Amazon_EC2_NVMe_Instance_Storage-AWS111")
	nvme1 := h.addDevice(t, "nvme1n1", "nvme-Amazon_EC2_NVMe_Instance_Storage-AWS222")
	h.addDevice(t, "nvme0n1", "nvme-Amazon_Elastic_Block_Store-vol0abc")

	ld := &LocalDeviceImplement{
		Executor: &exectest.FakeExecutor{},
		Patterns: []string{h.pattern()},
		scanDisk: blankDisk,
	}

	set, err := ld.Discover()
	a.NoError(err)
	a.Equal([]string{nvme1, nvme2}, set.Paths())
}

func TestDiscoverSkipsPartitioned(t *testing.T) {
	a := assert.New(t)
	h := newFakeHost(t)
	h.addDevice(t, "nvme1n1", "nvme-Amazon_EC2_NVMe_Instance_Storage-AWS111")
	nvme2 := h.addDevice(t, "nvme2n1", "nvme-Amazon_EC2_NVMe_Instance_Storage-AWS222")

	ld := &LocalDeviceImplement{
		Executor: &exectest.FakeExecutor{},
		Patterns: []string{h.pattern()},
		scanDisk: func(path string) (int, uint64, error) {
			if filepath.Base(path) == "nvme1n1" {
				return 2, 500 << 30, nil
			}
			return 0, 500 << 30, nil
		},
	}

	set, err := ld.Discover()
	a.NoError(err)
	a.Equal([]string{nvme2}, set.Paths())
}

func TestDiscoverSkipsUnscannable(t *testing.T) {
	a := assert.New(t)
	h := newFakeHost(t)
	h.addDevice(t, "nvme1n1", "nvme-Amazon_EC2_NVMe_Instance_Storage-AWS111")
	nvme2 := h.addDevice(t, "nvme2n1", "nvme-Amazon_EC2_NVMe_Instance_Storage-AWS222")

	// a dangling link on top of the unscannable device
	if err := os.Symlink(filepath.Join(h.dev, "gone"), filepath.Join(h.byID, "nvme-Amazon_EC2_NVMe_Instance_Storage-AWS333")); err != nil {
		t.Fatal(err)
	}

	ld := &LocalDeviceImplement{
		Executor: &exectest.FakeExecutor{},
		Patterns: []string{h.pattern()},
		scanDisk: func(path string) (int, uint64, error) {
			if filepath.Base(path) == "nvme1n1" {
				return 0, 0, fmt.Errorf("open %s: permission denied", path)
			}
			return 0, 500 << 30, nil
		},
	}

	set, err := ld.Discover()
	a.NoError(err)
	a.Equal([]string{nvme2}, set.Paths())
}

func TestDiscoverCollapsesDuplicateLinks(t *testing.T) {
	a := assert.New(t)
	h := newFakeHost(t)
	nvme1 := h.addDevice(t, "nvme1n1",
		"nvme-Amazon_EC2_NVMe_Instance_Storage-AWS111",
		"nvme-Amazon_EC2_NVMe_Instance_Storage-AWS111-ns-1",
	)

	scans := 0
	ld := &LocalDeviceImplement{
		Executor: &exectest.FakeExecutor{},
		Patterns: []string{h.pattern()},
		scanDisk: func(path string) (int, uint64, error) {
			scans++
			return 0, 500 << 30, nil
		},
	}

	set, err := ld.Discover()
	a.NoError(err)
	a.Equal([]string{nvme1}, set.Paths())
	a.Equal(1, scans)
}

func TestDiscoverFallbackNVMeList(t *testing.T) {
	a := assert.New(t)
	h := newFakeHost(t)
	ebs := h.addDevice(t, "nvme0n1")
	nvme1 := h.addDevice(t, "nvme1n1")
	nvme2 := h.addDevice(t, "nvme2n1")

	out := fmt.Sprintf(`{"Devices":[
{"DevicePath":%q,"ModelNumber":"Amazon Elastic Block Store","SerialNumber":"vol0abc","PhysicalSize":107374182400},
{"DevicePath":%q,"ModelNumber":"Amazon EC2 NVMe Instance Storage","SerialNumber":"AWS222","PhysicalSize":750000000000},
{"DevicePath":%q,"ModelNumber":"Amazon EC2 NVMe Instance Storage","SerialNumber":"AWS111","PhysicalSize":750000000000}
]}`, ebs, nvme2, nvme1)

	executor := &exectest.FakeExecutor{Results: map[string]exectest.Result{
		"nvme list -o json": {Output: out},
	}}
	ld := &LocalDeviceImplement{
		Executor:    executor,
		Patterns:    []string{h.pattern()},
		ModelFilter: "Instance Storage",
		scanDisk:    blankDisk,
	}

	set, err := ld.Discover()
	a.NoError(err)
	a.Equal([]string{nvme1, nvme2}, set.Paths())
}

func TestDiscoverFallbackToolFailure(t *testing.T) {
	a := assert.New(t)
	h := newFakeHost(t)

	ld := &LocalDeviceImplement{
		Executor:    &exectest.FakeExecutor{},
		Patterns:    []string{h.pattern()},
		ModelFilter: "Instance Storage",
		scanDisk:    blankDisk,
	}

	set, err := ld.Discover()
	a.NoError(err)
	a.True(set.Empty())
}

func TestDiscoverFallbackSkippedWhenLinksMatch(t *testing.T) {
	a := assert.New(t)
	h := newFakeHost(t)
	h.addDevice(t, "nvme1n1", "nvme-Amazon_EC2_NVMe_Instance_Storage-AWS111")

	executor := &exectest.FakeExecutor{}
	ld := &LocalDeviceImplement{
		Executor:    executor,
		Patterns:    []string{h.pattern()},
		ModelFilter: "Instance Storage",
		scanDisk:    blankDisk,
	}

	_, err := ld.Discover()
	a.NoError(err)
	a.Empty(executor.Commands)
}

func TestParseNVMeList(t *testing.T) {
	a := assert.New(t)

	controllers, err := parseNVMeList(`{"Devices":[{"DevicePath":"/dev/nvme1n1","ModelNumber":"Amazon EC2 NVMe Instance Storage","SerialNumber":"AWS111","PhysicalSize":750000000000}]}`)
	a.NoError(err)
	a.Len(controllers, 1)
	a.Equal("/dev/nvme1n1", controllers[0].DevicePath)
	a.Equal(uint64(750000000000), controllers[0].PhysicalSize)

	controllers, err = parseNVMeList("")
	a.NoError(err)
	a.Len(controllers, 0)

	_, err = parseNVMeList("not json")
	a.Error(err)
}
