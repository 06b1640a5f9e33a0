package raid

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/instafs-io/instafs/pkg/devicemanager/types"
	"github.com/instafs-io/instafs/utils/exec/exectest"
	"github.com/instafs-io/instafs/utils/wait"
)

const scanLine = "ARRAY /dev/md/data0 metadata=1.2 name=ip-10-0-0-17:data0 UUID=47a91c62:1f1bbd95:9cb17b33:49f5ec3a"

const mdstatActive = `Personalities : [raid0]
md127 : active raid0 nvme2n1[1] nvme1n1[0]
      1464727552 blocks super 1.2 512k chunks

unused devices: <none>
`

const mdstatResyncing = `Personalities : [raid1]
md127 : active raid1 nvme2n1[1] nvme1n1[0]
      732363776 blocks super 1.2 [2/2] [UU]
      [=>...................]  resync =  8.5% (62425216/732363776) finish=54.9min speed=203225K/sec

unused devices: <none>
`

// testClock advances on Sleep and can run a hook per tick, which lets a
// test flip the world mid-poll.
type testClock struct {
	now     time.Time
	sleeps  int
	onSleep func(sleeps int)
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	c.sleeps++
	if c.onSleep != nil {
		c.onSleep(c.sleeps)
	}
}

// testRaid builds an implement wired to temp dirs standing in for
// /dev/md, /etc/mdadm.conf and /proc.
func testRaid(t *testing.T, executor *exectest.FakeExecutor, clk wait.Clock) *LocalRaidImplement {
	t.Helper()
	root := t.TempDir()
	mdDir := filepath.Join(root, "md")
	if err := os.MkdirAll(mdDir, 0755); err != nil {
		t.Fatal(err)
	}
	procDir := filepath.Join(root, "proc")
	if err := os.MkdirAll(procDir, 0755); err != nil {
		t.Fatal(err)
	}
	return &LocalRaidImplement{
		Executor: executor,
		Clock:    clk,
		MdDir:    mdDir,
		ConfPath: filepath.Join(root, "mdadm.conf"),
		ProcPath: procDir,
	}
}

func writeMdstat(t *testing.T, ld *LocalRaidImplement, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(ld.ProcPath, "mdstat"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// addArrayLink publishes a named link pointing at a fake kernel device,
// the way mdadm does under /dev/md.
func addArrayLink(t *testing.T, ld *LocalRaidImplement, name, kernel string) string {
	t.Helper()
	dev := filepath.Join(ld.MdDir, kernel)
	if err := os.WriteFile(dev, []byte{}, 0600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(ld.MdDir, name)
	if err := os.Symlink(dev, link); err != nil {
		t.Fatal(err)
	}
	return link
}

func TestAssembleCreates(t *testing.T) {
	a := assert.New(t)
	devices := types.NewDeviceSet("/dev/nvme2n1", "/dev/nvme1n1")

	executor := &exectest.FakeExecutor{Results: map[string]exectest.Result{}}
	clk := &testClock{now: time.Unix(0, 0)}
	ld := testRaid(t, executor, clk)

	createLine := fmt.Sprintf("/sbin/mdadm --create --verbose %s --level=0 --raid-devices=2 --name=data0 /dev/nvme1n1 /dev/nvme2n1", filepath.Join(ld.MdDir, "data0"))
	executor.Results[createLine] = exectest.Result{Output: "mdadm: array /dev/md/data0 started."}
	executor.Results["udevadm settle"] = exectest.Result{}
	executor.Results["/sbin/mdadm --detail --scan"] = exectest.Result{Output: scanLine}

	path, created, err := ld.Assemble(devices, "data0")
	a.NoError(err)
	a.True(created)
	a.Equal(filepath.Join(ld.MdDir, "data0"), path)
	a.Equal(createLine, executor.Commands[0])

	conf, err := os.ReadFile(ld.ConfPath)
	a.NoError(err)
	a.Equal(scanLine+"\n", string(conf))
}

func TestAssembleMemberOrderIsStable(t *testing.T) {
	a := assert.New(t)

	for _, in := range [][]string{
		{"/dev/nvme1n1", "/dev/nvme2n1", "/dev/nvme3n1"},
		{"/dev/nvme3n1", "/dev/nvme2n1", "/dev/nvme1n1"},
	} {
		executor := &exectest.FakeExecutor{Results: map[string]exectest.Result{}}
		ld := testRaid(t, executor, &testClock{now: time.Unix(0, 0)})

		createLine := fmt.Sprintf("/sbin/mdadm --create --verbose %s --level=0 --raid-devices=3 --name=data0 /dev/nvme1n1 /dev/nvme2n1 /dev/nvme3n1", filepath.Join(ld.MdDir, "data0"))
		executor.Results[createLine] = exectest.Result{}
		executor.Results["udevadm settle"] = exectest.Result{}
		executor.Results["/sbin/mdadm --detail --scan"] = exectest.Result{Output: scanLine}

		_, created, err := ld.Assemble(types.NewDeviceSet(in...), "data0")
		a.NoError(err)
		a.True(created)
		a.Equal(createLine, executor.Commands[0])
	}
}

func TestAssembleAdoptsExactName(t *testing.T) {
	a := assert.New(t)
	devices := types.NewDeviceSet("/dev/nvme1n1", "/dev/nvme2n1")

	executor := &exectest.FakeExecutor{Results: map[string]exectest.Result{
		"/sbin/mdadm --detail --scan": {Output: scanLine},
	}}
	clk := &testClock{now: time.Unix(0, 0)}
	ld := testRaid(t, executor, clk)
	link := addArrayLink(t, ld, "data0", "md127")
	writeMdstat(t, ld, mdstatActive)

	path, created, err := ld.Assemble(devices, "data0")
	a.NoError(err)
	a.False(created)
	a.Equal(link, path)
	a.Equal(0, clk.sleeps)
	for _, cmd := range executor.Commands {
		a.NotContains(cmd, "--create")
	}
}

func TestAssembleAdoptsSuffixedName(t *testing.T) {
	a := assert.New(t)
	devices := types.NewDeviceSet("/dev/nvme1n1", "/dev/nvme2n1")

	executor := &exectest.FakeExecutor{Results: map[string]exectest.Result{
		"/sbin/mdadm --detail --scan": {Output: scanLine},
	}}
	ld := testRaid(t, executor, &testClock{now: time.Unix(0, 0)})
	link := addArrayLink(t, ld, "data0_0", "md127")
	writeMdstat(t, ld, mdstatActive)

	path, created, err := ld.Assemble(devices, "data0")
	a.NoError(err)
	a.False(created)
	a.Equal(link, path)
}

func TestAssembleTooFewDevices(t *testing.T) {
	a := assert.New(t)
	ld := testRaid(t, &exectest.FakeExecutor{}, &testClock{now: time.Unix(0, 0)})

	_, _, err := ld.Assemble(types.NewDeviceSet("/dev/nvme1n1"), "data0")
	a.Error(err)
}

func TestAssembleCreateFailure(t *testing.T) {
	a := assert.New(t)
	devices := types.NewDeviceSet("/dev/nvme1n1", "/dev/nvme2n1")

	executor := &exectest.FakeExecutor{Results: map[string]exectest.Result{}}
	ld := testRaid(t, executor, &testClock{now: time.Unix(0, 0)})

	createLine := fmt.Sprintf("/sbin/mdadm --create --verbose %s --level=0 --raid-devices=2 --name=data0 /dev/nvme1n1 /dev/nvme2n1", filepath.Join(ld.MdDir, "data0"))
	executor.Results[createLine] = exectest.Result{
		Output: "mdadm: cannot open /dev/nvme1n1: Device or resource busy",
		Err:    &exectest.ExitError{Code: 1},
	}

	_, _, err := ld.Assemble(devices, "data0")
	a.Error(err)
	a.Contains(err.Error(), "Device or resource busy")
}

func TestWaitStableResyncCompletes(t *testing.T) {
	a := assert.New(t)

	executor := &exectest.FakeExecutor{}
	clk := &testClock{now: time.Unix(0, 0)}
	ld := testRaid(t, executor, clk)
	link := addArrayLink(t, ld, "data0", "md127")
	writeMdstat(t, ld, mdstatResyncing)

	clk.onSleep = func(sleeps int) {
		if sleeps == 3 {
			writeMdstat(t, ld, mdstatActive)
		}
	}

	err := ld.waitStable(link)
	a.NoError(err)
	a.Equal(3, clk.sleeps)
}

func TestWaitStableTimeout(t *testing.T) {
	a := assert.New(t)

	executor := &exectest.FakeExecutor{}
	clk := &testClock{now: time.Unix(0, 0)}
	ld := testRaid(t, executor, clk)
	link := addArrayLink(t, ld, "data0", "md127")
	writeMdstat(t, ld, mdstatResyncing)

	err := ld.waitStable(link)
	a.True(errors.Is(err, wait.ErrTimeout))
	a.Equal(60, clk.sleeps)
}

func TestPersistConfIdempotent(t *testing.T) {
	a := assert.New(t)

	executor := &exectest.FakeExecutor{Results: map[string]exectest.Result{
		"/sbin/mdadm --detail --scan": {Output: scanLine},
	}}
	ld := testRaid(t, executor, &testClock{now: time.Unix(0, 0)})

	appended, err := ld.persistConf("data0", "/dev/md/data0")
	a.NoError(err)
	a.True(appended)

	appended, err = ld.persistConf("data0", "/dev/md/data0")
	a.NoError(err)
	a.False(appended)

	conf, err := os.ReadFile(ld.ConfPath)
	a.NoError(err)
	a.Equal(1, strings.Count(string(conf), "ARRAY"))
}

func TestPersistConfKeepsForeignEntries(t *testing.T) {
	a := assert.New(t)

	executor := &exectest.FakeExecutor{Results: map[string]exectest.Result{
		"/sbin/mdadm --detail --scan": {Output: scanLine},
	}}
	ld := testRaid(t, executor, &testClock{now: time.Unix(0, 0)})

	foreign := "# boot arrays\nARRAY /dev/md0 UUID=00000000:11111111:22222222:33333333\n"
	if err := os.WriteFile(ld.ConfPath, []byte(foreign), 0644); err != nil {
		t.Fatal(err)
	}

	appended, err := ld.persistConf("data0", "/dev/md/data0")
	a.NoError(err)
	a.True(appended)

	conf, err := os.ReadFile(ld.ConfPath)
	a.NoError(err)
	a.Equal(foreign+scanLine+"\n", string(conf))
}

func TestPersistConfArrayMissingFromScan(t *testing.T) {
	a := assert.New(t)

	executor := &exectest.FakeExecutor{Results: map[string]exectest.Result{
		"/sbin/mdadm --detail --scan": {Output: ""},
	}}
	ld := testRaid(t, executor, &testClock{now: time.Unix(0, 0)})

	_, err := ld.persistConf("data0", "/dev/md/data0")
	a.Error(err)
}
