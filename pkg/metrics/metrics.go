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

package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace          string = "instafs"
	provisionSubSystem string = "provision"

	// TextfileName is the file written under the textfile collector
	// directory for node_exporter to pick up.
	TextfileName = "instafs.prom"
)

var (
	nodeName    = os.Getenv("NODE_NAME")
	constLabels = prometheus.Labels{"nodename": nodeName}

	// knownOutcomes are pre-published with value 0 so dashboards see
	// every series from the first run on.
	knownOutcomes = []string{"provisioned", "no-devices", "failed"}
)

// Snapshot captures the observable result of one provisioning run.
type Snapshot struct {
	Outcome           string
	DevicesDiscovered int
	ArrayMembers      int
	Mutations         int
	Duration          time.Duration
	Success           bool
}

// Recorder turns run snapshots into prometheus series. The process is
// one-shot, so series are published through the node_exporter textfile
// collector instead of a scrape endpoint.
type Recorder struct {
	registry *prometheus.Registry

	devicesDiscovered prometheus.Gauge
	arrayMembers      prometheus.Gauge
	mutations         prometheus.Counter
	duration          prometheus.Gauge
	successTimestamp  prometheus.Gauge
	outcome           *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		devicesDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "devices_discovered",
			Help:        "The number of eligible instance-store devices found.",
			ConstLabels: constLabels,
		}),
		arrayMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "array_members",
			Help:        "The number of devices striped into the array, 0 when no array was needed.",
			ConstLabels: constLabels,
		}),
		mutations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "mutations_total",
			Help:        "The number of mutating actions the run performed.",
			ConstLabels: constLabels,
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   provisionSubSystem,
			Name:        "duration_seconds",
			Help:        "Duration of the provisioning run.",
			ConstLabels: constLabels,
		}),
		successTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   provisionSubSystem,
			Name:        "success_timestamp_seconds",
			Help:        "Unix time of the last successful provisioning run.",
			ConstLabels: constLabels,
		}),
		outcome: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   provisionSubSystem,
			Name:        "outcome",
			Help:        "1 for the outcome the run ended with, 0 for the others.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
	}

	r.registry.MustRegister(
		r.devicesDiscovered,
		r.arrayMembers,
		r.mutations,
		r.duration,
		r.successTimestamp,
		r.outcome,
	)
	return r
}

func (r *Recorder) Record(snap Snapshot) {
	r.devicesDiscovered.Set(float64(snap.DevicesDiscovered))
	r.arrayMembers.Set(float64(snap.ArrayMembers))
	r.mutations.Add(float64(snap.Mutations))
	r.duration.Set(snap.Duration.Seconds())

	for _, o := range knownOutcomes {
		r.outcome.WithLabelValues(o).Set(0)
	}
	if snap.Outcome != "" {
		r.outcome.WithLabelValues(snap.Outcome).Set(1)
	}
	if snap.Success {
		r.successTimestamp.SetToCurrentTime()
	}
}

// WriteTextfile publishes the recorded series under dir. Metrics are
// best effort, callers log failures and keep going.
func (r *Recorder) WriteTextfile(dir string) error {
	return prometheus.WriteToTextfile(filepath.Join(dir, TextfileName), r.registry)
}
