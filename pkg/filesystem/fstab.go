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
package filesystem

import (
	"fmt"
	"strings"
)

// FstabEntry is one mount-table line, see fstab(5). Spec identifies the
// device, for managed entries always by filesystem UUID since device
// paths are not stable across reboots.
type FstabEntry struct {
	Spec    string
	File    string
	VfsType string
	MntOps  string
	Freq    int
	PassNo  int
}

func (e FstabEntry) Line() string {
	return fmt.Sprintf("%s %s %s %s %d %d", e.Spec, e.File, e.VfsType, e.MntOps, e.Freq, e.PassNo)
}

// parseFstab extracts the usable entries from mount-table content.
// Comments, blank lines and lines too short to name a device and a
// mount point are skipped, never an error, the table belongs to the
// host and foreign damage must not block provisioning.
func parseFstab(content string) []FstabEntry {
	entries := []FstabEntry{}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		entry := FstabEntry{Spec: fields[0], File: fields[1]}
		if len(fields) > 2 {
			entry.VfsType = fields[2]
		}
		if len(fields) > 3 {
			entry.MntOps = fields[3]
		}
		if len(fields) > 4 {
			fmt.Sscanf(fields[4], "%d", &entry.Freq)
		}
		if len(fields) > 5 {
			fmt.Sscanf(fields[5], "%d", &entry.PassNo)
		}
		entries = append(entries, entry)
	}
	return entries
}
