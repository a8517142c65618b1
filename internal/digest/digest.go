// Package digest builds the compact dataset summary handed to the code
// generator: shape, a few sample rows, and per-column profiles.
package digest

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"cleansynth/internal/logging"
	"cleansynth/internal/table"
)

// DefaultSampleRows is the number of leading rows copied into a digest.
const DefaultSampleRows = 3

// Digest summarizes a dataset.
type Digest struct {
	FileName     string           `yaml:"file_name" json:"file_name"`
	TotalRows    int              `yaml:"total_rows" json:"total_rows"`
	TotalColumns int              `yaml:"total_columns" json:"total_columns"`
	SampleRows   []map[string]any `yaml:"sample_rows" json:"sample_rows"`
	Columns      []ColumnProfile  `yaml:"columns" json:"columns"`
}

// ColumnProfile describes one column.
type ColumnProfile struct {
	Name           string  `yaml:"name" json:"name"`
	DataType       string  `yaml:"data_type" json:"data_type"`
	NonNullCount   int     `yaml:"non_null_count" json:"non_null_count"`
	NullCount      int     `yaml:"null_count" json:"null_count"`
	NullPercentage float64 `yaml:"null_percentage" json:"null_percentage"`
	UniqueCount    int     `yaml:"unique_values_count" json:"unique_values_count"`
	Stats          Stats   `yaml:"descriptive_stats" json:"descriptive_stats"`
}

// Stats holds numeric statistics for numeric columns and frequency
// statistics for everything else.
type Stats struct {
	Count  int      `yaml:"count" json:"count"`
	Mean   *float64 `yaml:"mean,omitempty" json:"mean,omitempty"`
	Std    *float64 `yaml:"std,omitempty" json:"std,omitempty"`
	Min    *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	P25    *float64 `yaml:"25%,omitempty" json:"25%,omitempty"`
	Median *float64 `yaml:"50%,omitempty" json:"50%,omitempty"`
	P75    *float64 `yaml:"75%,omitempty" json:"75%,omitempty"`
	Max    *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Unique *int     `yaml:"unique,omitempty" json:"unique,omitempty"`
	Top    *string  `yaml:"top,omitempty" json:"top,omitempty"`
	Freq   *int     `yaml:"freq,omitempty" json:"freq,omitempty"`
}

// Profiler builds digests.
type Profiler struct {
	SampleRows  int
	Parallelism int
}

// NewProfiler returns a profiler copying sampleRows leading rows.
func NewProfiler(sampleRows int) *Profiler {
	if sampleRows < 0 {
		sampleRows = DefaultSampleRows
	}
	return &Profiler{SampleRows: sampleRows, Parallelism: runtime.NumCPU()}
}

// Profile summarizes f. Columns are profiled concurrently; f must not be
// mutated until Profile returns.
func (p *Profiler) Profile(ctx context.Context, f *table.Frame, fileName string) (*Digest, error) {
	timer := logging.StartTimer(logging.CategoryDigest, "Profile")
	defer timer.Stop()

	d := &Digest{
		FileName:     fileName,
		TotalRows:    f.Len(),
		TotalColumns: f.Width(),
		SampleRows:   sampleRows(f, p.SampleRows),
		Columns:      make([]ColumnProfile, f.Width()),
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.Parallelism > 0 {
		g.SetLimit(p.Parallelism)
	}
	for i, col := range f.Schema() {
		i, col := i, col
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d.Columns[i] = profileColumn(f, col)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", fileName, err)
	}

	logging.DigestDebug("profiled %s: %d rows x %d columns", fileName, d.TotalRows, d.TotalColumns)
	return d, nil
}

// YAML renders the digest for inclusion in a prompt.
func (d *Digest) YAML() (string, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to render digest: %w", err)
	}
	return string(out), nil
}

// Column returns the profile for name, if present.
func (d *Digest) Column(name string) (ColumnProfile, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnProfile{}, false
}

func sampleRows(f *table.Frame, n int) []map[string]any {
	if n > f.Len() {
		n = f.Len()
	}
	rows := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		row := make(map[string]any, f.Width())
		for _, col := range f.Columns() {
			v := f.Get(i, col)
			if table.IsNull(v) {
				row[col] = nil
				continue
			}
			row[col] = table.ToString(v)
		}
		rows = append(rows, row)
	}
	return rows
}

func profileColumn(f *table.Frame, col table.Column) ColumnProfile {
	values := f.Values(col.Name)
	nulls := 0
	counts := make(map[string]int)
	var numbers []float64
	for _, v := range values {
		if table.IsNull(v) {
			nulls++
			continue
		}
		counts[table.ToString(v)]++
		if col.Kind.IsNumeric() {
			if x, ok := table.ToFloat(v); ok {
				numbers = append(numbers, x)
			}
		}
	}

	total := len(values)
	p := ColumnProfile{
		Name:         col.Name,
		DataType:     col.Kind.String(),
		NonNullCount: total - nulls,
		NullCount:    nulls,
		UniqueCount:  len(counts),
	}
	if total > 0 {
		p.NullPercentage = round(float64(nulls)/float64(total)*100, 2)
	}

	if col.Kind.IsNumeric() && len(numbers) > 0 {
		p.Stats = numericStats(numbers)
	} else {
		p.Stats = frequencyStats(counts, total-nulls)
	}
	return p
}

func numericStats(data stats.Float64Data) Stats {
	s := Stats{Count: len(data)}
	s.Mean = statOf(stats.Mean(data))
	if len(data) > 1 {
		s.Std = statOf(stats.StandardDeviationSample(data))
	}
	s.Min = statOf(stats.Min(data))
	s.P25 = statOf(stats.Percentile(data, 25))
	s.Median = statOf(stats.Median(data))
	s.P75 = statOf(stats.Percentile(data, 75))
	s.Max = statOf(stats.Max(data))
	return s
}

func frequencyStats(counts map[string]int, nonNull int) Stats {
	s := Stats{Count: nonNull}
	unique := len(counts)
	s.Unique = &unique
	if unique == 0 {
		return s
	}
	keys := make([]string, 0, unique)
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	top := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[top] {
			top = k
		}
	}
	freq := counts[top]
	s.Top = &top
	s.Freq = &freq
	return s
}

func statOf(v float64, err error) *float64 {
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := round(v, 4)
	return &r
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
