package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/watts/internal/config"
	"github.com/felixgeelhaar/watts/internal/exec"
	"github.com/felixgeelhaar/watts/internal/plugin/aleaf"
	"github.com/felixgeelhaar/watts/internal/plugin/openmc"
	"github.com/felixgeelhaar/watts/internal/plugin/pyarc"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the simulation codes and the results database",
	Long: `Check that the simulation codes can be found and that the results
database is writable.

Checks include:
  • ALEAF_DIR, the master workbook and julia
  • PyARC_DIR and python3
  • the OpenMC executable
  • the configuration file and the results database

A missing code is a warning; an unusable database is an issue.

Examples:
  watts doctor
  watts doctor --json`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var doctorJSON bool

// DoctorReport represents the complete health check report
type DoctorReport struct {
	Config   *DoctorCheck   `json:"config"`
	Database *DoctorCheck   `json:"database"`
	Plugins  []*DoctorCheck `json:"plugins"`
	Issues   []string       `json:"issues"`
	Warnings []string       `json:"warnings"`
	Healthy  bool           `json:"healthy"`
}

// DoctorCheck represents a single health check result
type DoctorCheck struct {
	Name    string         `json:"name"`
	Status  string         `json:"status"` // "ok", "warning", "error", "missing"
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	report := &DoctorReport{Issues: []string{}, Warnings: []string{}}

	report.Config = checkConfigFile()
	report.Database = checkDatabase(report, cfg.Database.Path)
	report.Plugins = []*DoctorCheck{
		checkALEAF(report),
		checkPyARC(report),
		checkOpenMC(report),
	}
	report.Healthy = len(report.Issues) == 0

	out := cmd.OutOrStdout()
	if doctorJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		printReport(out, report)
	}
	if !report.Healthy {
		return fmt.Errorf("health check failed")
	}
	return nil
}

func checkConfigFile() *DoctorCheck {
	path := config.Path(cfgFile)
	if _, err := os.Stat(path); err != nil {
		return &DoctorCheck{Name: "Config", Status: "missing", Message: path + " not found, using defaults"}
	}
	return &DoctorCheck{Name: "Config", Status: "ok", Message: path}
}

func checkDatabase(report *DoctorReport, path string) *DoctorCheck {
	check := &DoctorCheck{Name: "Database", Details: map[string]any{"path": path}}
	db, err := openDatabase(path)
	if err != nil {
		check.Status = "error"
		check.Message = err.Error()
		report.Issues = append(report.Issues, fmt.Sprintf("Results database at %s is not usable", path))
		return check
	}
	defer db.Close()

	n, err := db.Len()
	if err != nil {
		check.Status = "error"
		check.Message = err.Error()
		report.Issues = append(report.Issues, "Results index cannot be read")
		return check
	}
	check.Status = "ok"
	check.Message = fmt.Sprintf("%d runs in %s", n, db.Path())
	check.Details["runs"] = n
	return check
}

func checkALEAF(report *DoctorReport) *DoctorCheck {
	check := &DoctorCheck{Name: aleaf.Name, Details: map[string]any{}}
	dir := os.Getenv(aleaf.EnvDir)
	if dir == "" {
		return missingPlugin(report, check, aleaf.EnvDir+" is not set")
	}
	check.Details["dir"] = dir
	for _, p := range []string{
		filepath.Join(dir, "setting", aleaf.MasterWorkbook),
		filepath.Join(dir, aleaf.DriverScript),
	} {
		if _, err := os.Stat(p); err != nil {
			check.Status = "error"
			check.Message = p + " not found"
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s points at an incomplete installation", aleaf.EnvDir))
			return check
		}
	}
	return executableCheck(report, check, aleaf.Executable)
}

func checkPyARC(report *DoctorReport) *DoctorCheck {
	check := &DoctorCheck{Name: pyarc.Name, Details: map[string]any{}}
	dir := os.Getenv(pyarc.EnvDir)
	if dir == "" {
		return missingPlugin(report, check, pyarc.EnvDir+" is not set")
	}
	check.Details["dir"] = dir
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		check.Status = "error"
		check.Message = dir + " is not a directory"
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s does not name a directory", pyarc.EnvDir))
		return check
	}
	return executableCheck(report, check, pyarc.Python)
}

func checkOpenMC(report *DoctorReport) *DoctorCheck {
	check := &DoctorCheck{Name: openmc.Name, Details: map[string]any{}}
	return executableCheck(report, check, openmc.ExecutableName())
}

func executableCheck(report *DoctorReport, check *DoctorCheck, name string) *DoctorCheck {
	path, err := exec.LookPath(name)
	if err != nil {
		return missingPlugin(report, check, name+" not found")
	}
	check.Status = "ok"
	check.Message = path
	check.Details["executable"] = path
	return check
}

func missingPlugin(report *DoctorReport, check *DoctorCheck, msg string) *DoctorCheck {
	check.Status = "missing"
	check.Message = msg
	report.Warnings = append(report.Warnings, fmt.Sprintf("%s runs are unavailable: %s", check.Name, msg))
	return check
}

func printReport(w io.Writer, report *DoctorReport) {
	fmt.Fprintln(w, "Environment:")
	printCheck(w, report.Config)
	printCheck(w, report.Database)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Simulation Codes:")
	for _, c := range report.Plugins {
		printCheck(w, c)
	}
	fmt.Fprintln(w)

	if len(report.Issues) > 0 {
		fmt.Fprintln(w, "Issues:")
		for _, issue := range report.Issues {
			fmt.Fprintf(w, "   • %s\n", issue)
		}
		fmt.Fprintln(w)
	}
	if len(report.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warning := range report.Warnings {
			fmt.Fprintf(w, "   • %s\n", warning)
		}
		fmt.Fprintln(w)
	}

	if report.Healthy {
		fmt.Fprintln(w, "✓ WATTS is ready to use")
		return
	}
	fmt.Fprintln(w, "✗ WATTS has issues that need attention")
}

func printCheck(w io.Writer, check *DoctorCheck) {
	icon := " "
	switch check.Status {
	case "ok":
		icon = "✓"
	case "warning":
		icon = "⚠"
	case "error":
		icon = "✗"
	case "missing":
		icon = "○"
	}

	fmt.Fprintf(w, "  %s %s: %s\n", icon, check.Name, check.Message)
}
