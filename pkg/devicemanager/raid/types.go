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
	"strings"

	"github.com/pkg/errors"
)

/*
# mdadm --detail --scan
ARRAY /dev/md/data0 metadata=1.2 name=ip-10-0-0-17:data0 UUID=47a91c62:1f1bbd95:9cb17b33:49f5ec3a
*/

// ArrayDetail is one ARRAY line of mdadm --detail --scan output.
type ArrayDetail struct {
	Device   string
	Metadata string
	Name     string
	UUID     string

	raw string
}

// Line returns the scan line verbatim, the exact form mdadm.conf expects.
func (d ArrayDetail) Line() string {
	return d.raw
}

func parseDetailScan(raw string) ([]ArrayDetail, error) {
	var details []ArrayDetail
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "ARRAY" {
			continue
		}
		if len(fields) < 2 {
			return nil, errors.Errorf("unexpected line in mdadm scan output: %q", line)
		}
		d := ArrayDetail{Device: fields[1], raw: strings.TrimSpace(line)}
		for _, kv := range fields[2:] {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				continue
			}
			switch parts[0] {
			case "metadata":
				d.Metadata = parts[1]
			case "name":
				d.Name = parts[1]
			case "UUID":
				d.UUID = parts[1]
			}
		}
		details = append(details, d)
	}
	return details, nil
}

// findArray picks the scan entry for the array at path. mdadm writes the
// name as homehost:name, so a bare name also matches its suffix.
func findArray(details []ArrayDetail, name, path string) (ArrayDetail, bool) {
	for _, d := range details {
		if d.Device == path {
			return d, true
		}
	}
	for _, d := range details {
		if d.Name == name || strings.HasSuffix(d.Name, ":"+name) {
			return d, true
		}
	}
	return ArrayDetail{}, false
}
