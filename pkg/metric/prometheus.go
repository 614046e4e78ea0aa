// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metric

import (
	"fmt"
	"io"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// prometheusPrefix is prepended to every exported metric name.
const prometheusPrefix = "vmsim"

// PrometheusName converts a "/path/like" metric name into a Prometheus metric
// name, e.g. "/vm/faults" becomes "vmsim_vm_faults".
func PrometheusName(name string) string {
	return prometheusPrefix + strings.ReplaceAll(name, "/", "_")
}

// toFamily converts a snapshot into a Prometheus counter family.
func (s snapshot) toFamily() *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(PrometheusName(s.metric.name)),
		Help: proto.String(s.metric.description),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, smp := range s.samples {
		m := &dto.Metric{
			Counter: &dto.Counter{Value: proto.Float64(float64(smp.value))},
		}
		for i, v := range smp.fields {
			m.Label = append(m.Label, &dto.LabelPair{
				Name:  proto.String(s.metric.fieldMapper.fields[i].name),
				Value: proto.String(v),
			})
		}
		mf.Metric = append(mf.Metric, m)
	}
	return mf
}

// WritePrometheus writes every registered metric to w in the Prometheus text
// exposition format, sorted by name.
func WritePrometheus(w io.Writer) error {
	for _, snap := range allMetrics.Values() {
		if _, err := expfmt.MetricFamilyToText(w, snap.toFamily()); err != nil {
			return fmt.Errorf("writing metric %q: %w", snap.metric.name, err)
		}
	}
	return nil
}
