package openmc

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Input files every OpenMC model consists of.
const (
	GeometryFile  = "geometry.xml"
	MaterialsFile = "materials.xml"
	SettingsFile  = "settings.xml"
)

// InputFiles lists the model files in the order they are recorded as inputs.
var InputFiles = []string{GeometryFile, MaterialsFile, SettingsFile}

// Model is the subset of the OpenMC XML input format needed for simple
// eigenvalue problems.
type Model struct {
	Materials Materials
	Geometry  Geometry
	Settings  Settings
}

type Materials struct {
	XMLName   xml.Name   `xml:"materials"`
	Materials []Material `xml:"material"`
}

type Material struct {
	ID       int       `xml:"id,attr"`
	Name     string    `xml:"name,attr,omitempty"`
	Density  Density   `xml:"density"`
	Nuclides []Nuclide `xml:"nuclide"`
}

// Density of a material. Units "sum" derives it from the nuclide densities.
type Density struct {
	Units string  `xml:"units,attr"`
	Value float64 `xml:"value,attr,omitempty"`
}

// Nuclide is given either as an atom density/fraction (AO) or a weight
// fraction (WO).
type Nuclide struct {
	Name string  `xml:"name,attr"`
	AO   float64 `xml:"ao,attr,omitempty"`
	WO   float64 `xml:"wo,attr,omitempty"`
}

type Geometry struct {
	XMLName  xml.Name  `xml:"geometry"`
	Cells    []Cell    `xml:"cell"`
	Surfaces []Surface `xml:"surface"`
}

type Cell struct {
	ID       int    `xml:"id,attr"`
	Material string `xml:"material,attr,omitempty"`
	Region   string `xml:"region,attr,omitempty"`
	Universe int    `xml:"universe,attr"`
}

type Surface struct {
	ID       int    `xml:"id,attr"`
	Type     string `xml:"type,attr"`
	Coeffs   string `xml:"coeffs,attr"`
	Boundary string `xml:"boundary,attr,omitempty"`
}

type Settings struct {
	XMLName    xml.Name    `xml:"settings"`
	RunMode    string      `xml:"run_mode"`
	Particles  int         `xml:"particles"`
	Batches    int         `xml:"batches"`
	Inactive   int         `xml:"inactive,omitempty"`
	StatePoint *StatePoint `xml:"state_point,omitempty"`
}

// StatePoint lists the batches after which a statepoint file is written.
type StatePoint struct {
	Batches string `xml:"batches,attr"`
}

// Sphere returns a sphere surface centred at the origin.
func Sphere(id int, r float64, boundary string) Surface {
	return Surface{
		ID:       id,
		Type:     "sphere",
		Coeffs:   joinFloats(0, 0, 0, r),
		Boundary: boundary,
	}
}

// Eigenvalue returns eigenvalue settings writing a statepoint after each
// of the given batches.
func Eigenvalue(particles, batches, inactive int, statepoints ...int) Settings {
	s := Settings{RunMode: "eigenvalue", Particles: particles, Batches: batches, Inactive: inactive}
	if len(statepoints) > 0 {
		parts := make([]string, len(statepoints))
		for i, b := range statepoints {
			parts[i] = strconv.Itoa(b)
		}
		s.StatePoint = &StatePoint{Batches: strings.Join(parts, " ")}
	}
	return s
}

// Export writes the model's XML files into dir.
func (m *Model) Export(dir string) error {
	files := []struct {
		name string
		v    any
	}{
		{GeometryFile, m.Geometry},
		{MaterialsFile, m.Materials},
		{SettingsFile, m.Settings},
	}
	for _, f := range files {
		data, err := xml.MarshalIndent(f.v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", f.name, err)
		}
		data = append([]byte(xml.Header), data...)
		data = append(data, '\n')
		if err := os.WriteFile(filepath.Join(dir, f.name), data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

func joinFloats(vs ...float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
