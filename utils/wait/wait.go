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

package wait

import (
	"errors"
	"time"
)

// ErrTimeout reports that the condition did not hold before the ceiling.
var ErrTimeout = errors.New("timed out waiting for the condition")

// Clock supplies time to a Poller. k8s.io/utils/clock.RealClock satisfies
// it in production; tests substitute a scripted clock so no test ever
// sleeps for real.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Poller re-evaluates a condition at a fixed interval until it holds, it
// returns an error, or the timeout ceiling passes.
type Poller struct {
	Clock    Clock
	Interval time.Duration
	Timeout  time.Duration
}

// Wait runs cond until it reports done or an error. The condition runs at
// least once; with Interval i and Timeout t it runs at most t/i times.
// Reaching the ceiling returns ErrTimeout, the caller decides whether that
// is fatal.
func (p Poller) Wait(cond func() (bool, error)) error {
	deadline := p.Clock.Now().Add(p.Timeout)
	for {
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		p.Clock.Sleep(p.Interval)
		if !p.Clock.Now().Before(deadline) {
			return ErrTimeout
		}
	}
}
