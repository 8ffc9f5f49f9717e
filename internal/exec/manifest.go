package exec

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

// ManifestFile is the name of the manifest inside a run directory
const ManifestFile = "manifest.json"

// CreateManifest creates a run manifest for audit purposes
func CreateManifest(runID, plugin string, command []string, exitCode int, duration time.Duration) *RunManifest {
	return &RunManifest{
		Timestamp:    time.Now(),
		RunID:        runID,
		Plugin:       plugin,
		Command:      command,
		ExitCode:     exitCode,
		Duration:     duration.String(),
		InputHashes:  make(map[string]string),
		OutputHashes: make(map[string]string),
	}
}

// SaveManifest writes a run manifest into dir
func SaveManifest(manifest *RunManifest, dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}

// LoadManifest reads the manifest stored in dir
func LoadManifest(dir string) (*RunManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}

// HashFile computes the blake3 hash of a file
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// AddInputHash adds an input file hash to the manifest
func (m *RunManifest) AddInputHash(name, path string) error {
	hash, err := HashFile(path)
	if err != nil {
		return err
	}
	m.InputHashes[name] = hash
	return nil
}

// AddOutputHash adds an output file hash to the manifest
func (m *RunManifest) AddOutputHash(name, path string) error {
	hash, err := HashFile(path)
	if err != nil {
		return err
	}
	m.OutputHashes[name] = hash
	return nil
}

// Verify re-hashes the files named in the manifest, resolved against dir, and
// returns the names whose contents changed or disappeared.
func (m *RunManifest) Verify(dir string) []string {
	var changed []string
	for _, hashes := range []map[string]string{m.InputHashes, m.OutputHashes} {
		for name, want := range hashes {
			got, err := HashFile(filepath.Join(dir, name))
			if err != nil || got != want {
				changed = append(changed, name)
			}
		}
	}
	return changed
}
