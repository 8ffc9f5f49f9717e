// Package results defines the immutable record of one completed simulation run.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/felixgeelhaar/watts/internal/exec"
	"github.com/felixgeelhaar/watts/internal/params"
)

// RecordFile is the name of the serialized record inside a run directory.
const RecordFile = "result.json"

// ExecInfo captures how the external tool was invoked and how it exited.
type ExecInfo struct {
	Command   []string      `json:"command"`
	Workdir   string        `json:"workdir,omitempty"`
	ExitCode  int           `json:"exit_code"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Stdout    string        `json:"stdout,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
}

// NewExecInfo records the outcome of step. Captured output is kept only when
// capture is set.
func NewExecInfo(step exec.Step, res *exec.Result, capture bool) *ExecInfo {
	info := &ExecInfo{
		Command:   append([]string(nil), step.Cmd...),
		Workdir:   step.Workdir,
		ExitCode:  res.ExitCode,
		StartTime: res.StartTime,
		EndTime:   res.EndTime,
		Duration:  res.Duration,
	}
	if capture {
		info.Stdout = res.Stdout
		info.Stderr = res.Stderr
	}
	return info
}

// Payload is the tool-specific data parsed from a run's outputs.
type Payload interface {
	Kind() string
}

// RawPayload holds a payload whose kind has no registered decoder.
type RawPayload struct {
	kind string
	Data json.RawMessage
}

// Kind implements Payload.
func (r *RawPayload) Kind() string { return r.kind }

var (
	payloadMu sync.RWMutex
	payloads  = map[string]func() Payload{}
)

// RegisterPayload makes a payload kind decodable from stored records.
// Plugins call it from init.
func RegisterPayload(kind string, factory func() Payload) {
	payloadMu.Lock()
	defer payloadMu.Unlock()
	payloads[kind] = factory
}

// Spec carries the fields of a new Results.
type Spec struct {
	Plugin     string
	Name       string
	Time       time.Time
	Parameters *params.Parameters
	ExecInfo   *ExecInfo
	BasePath   string
	Inputs     []string
	Outputs    []string
	Payload    Payload
}

// Results is the record of one completed run. Inputs and outputs are file
// names relative to BasePath. A Results is never modified after New returns.
type Results struct {
	id       string
	plugin   string
	name     string
	time     time.Time
	params   *params.Parameters
	execInfo ExecInfo
	basePath string
	inputs   []string
	outputs  []string
	payload  Payload
}

// New builds a Results from spec, taking a deep copy of the parameters.
func New(spec Spec) (*Results, error) {
	if spec.Plugin == "" {
		return nil, fmt.Errorf("results need a plugin name")
	}
	if spec.Parameters == nil {
		return nil, fmt.Errorf("results need parameters")
	}
	r := &Results{
		plugin:   spec.Plugin,
		name:     spec.Name,
		time:     spec.Time,
		params:   spec.Parameters.Clone(),
		basePath: spec.BasePath,
		inputs:   append([]string(nil), spec.Inputs...),
		outputs:  append([]string(nil), spec.Outputs...),
		payload:  spec.Payload,
	}
	if r.time.IsZero() {
		r.time = time.Now()
	}
	if spec.ExecInfo != nil {
		r.execInfo = *spec.ExecInfo
		r.execInfo.Command = append([]string(nil), spec.ExecInfo.Command...)
	}
	return r, nil
}

// ID is empty until the record is stored in a database.
func (r *Results) ID() string { return r.id }

// Plugin names the tool that produced the run.
func (r *Results) Plugin() string { return r.plugin }

// Name is the workflow name given by the caller.
func (r *Results) Name() string { return r.name }

// Time is when the run started.
func (r *Results) Time() time.Time { return r.time }

// Parameters returns a copy of the parameters used for the run.
func (r *Results) Parameters() *params.Parameters { return r.params.Clone() }

// ExecInfo returns how the tool was executed.
func (r *Results) ExecInfo() ExecInfo { return r.execInfo }

// BasePath is the directory inputs and outputs are relative to.
func (r *Results) BasePath() string { return r.basePath }

// Inputs returns the input file names.
func (r *Results) Inputs() []string { return append([]string(nil), r.inputs...) }

// Outputs returns the output file names.
func (r *Results) Outputs() []string { return append([]string(nil), r.outputs...) }

// InputPaths returns the inputs resolved against BasePath.
func (r *Results) InputPaths() []string { return r.resolve(r.inputs) }

// OutputPaths returns the outputs resolved against BasePath.
func (r *Results) OutputPaths() []string { return r.resolve(r.outputs) }

// Payload returns the tool-specific data.
func (r *Results) Payload() Payload { return r.payload }

// Stdout returns the tool's standard output, read from the tool log when one
// was written and from the captured output otherwise.
func (r *Results) Stdout() (string, error) {
	logName := r.plugin + "_log.txt"
	for _, o := range r.outputs {
		if o == logName {
			data, err := os.ReadFile(filepath.Join(r.basePath, o))
			if err != nil {
				return "", err
			}
			return string(data), nil
		}
	}
	return r.execInfo.Stdout, nil
}

// Stored returns a copy of r that belongs to the run directory basePath under id.
func (r *Results) Stored(id, basePath string) *Results {
	c := *r
	c.id = id
	c.basePath = basePath
	c.params = r.params.Clone()
	c.inputs = r.Inputs()
	c.outputs = r.Outputs()
	return &c
}

func (r *Results) resolve(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(r.basePath, n)
	}
	return out
}

// PayloadAs returns the payload of r as T.
func PayloadAs[T Payload](r *Results) (T, bool) {
	p, ok := r.payload.(T)
	return p, ok
}
