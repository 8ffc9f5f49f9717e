package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/watts/internal/params"
)

type payloadEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type record struct {
	ID         string             `json:"id"`
	Plugin     string             `json:"plugin"`
	Name       string             `json:"name,omitempty"`
	Time       time.Time          `json:"time"`
	Parameters *params.Parameters `json:"parameters"`
	ExecInfo   ExecInfo           `json:"exec_info"`
	Inputs     []string           `json:"inputs"`
	Outputs    []string           `json:"outputs"`
	Payload    *payloadEnvelope   `json:"payload,omitempty"`
}

// MarshalJSON encodes the record. The base path is not stored; it is the
// directory the record is read from.
func (r *Results) MarshalJSON() ([]byte, error) {
	rec := record{
		ID:         r.id,
		Plugin:     r.plugin,
		Name:       r.name,
		Time:       r.time,
		Parameters: r.params,
		ExecInfo:   r.execInfo,
		Inputs:     r.inputs,
		Outputs:    r.outputs,
	}
	if r.payload != nil {
		var data []byte
		var err error
		if raw, ok := r.payload.(*RawPayload); ok {
			data = raw.Data
		} else if data, err = json.Marshal(r.payload); err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", r.payload.Kind(), err)
		}
		rec.Payload = &payloadEnvelope{Kind: r.payload.Kind(), Data: data}
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes a record, restoring the payload through the decoder
// registered for its kind.
func (r *Results) UnmarshalJSON(data []byte) error {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.Parameters == nil {
		rec.Parameters = params.New()
	}

	*r = Results{
		id:       rec.ID,
		plugin:   rec.Plugin,
		name:     rec.Name,
		time:     rec.Time,
		params:   rec.Parameters,
		execInfo: rec.ExecInfo,
		inputs:   rec.Inputs,
		outputs:  rec.Outputs,
	}

	if rec.Payload != nil {
		payloadMu.RLock()
		factory, ok := payloads[rec.Payload.Kind]
		payloadMu.RUnlock()

		if !ok {
			r.payload = &RawPayload{kind: rec.Payload.Kind, Data: rec.Payload.Data}
			return nil
		}
		p := factory()
		if err := json.Unmarshal(rec.Payload.Data, p); err != nil {
			return fmt.Errorf("decode %s payload: %w", rec.Payload.Kind, err)
		}
		r.payload = p
	}
	return nil
}

// Save writes the record into dir as RecordFile.
func (r *Results) Save(dir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, RecordFile), data, 0644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// Load reads the record stored in dir and binds it to that directory.
func Load(dir string) (*Results, error) {
	data, err := os.ReadFile(filepath.Join(dir, RecordFile))
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var r Results
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse results in %s: %w", dir, err)
	}
	r.basePath = dir
	return &r, nil
}
