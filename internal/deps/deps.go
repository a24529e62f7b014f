// Package deps reports whether the external programs livescribe drives are installed.
package deps

import (
	"os/exec"
	"strings"
)

// Status represents the installation status of a dependency
type Status struct {
	Name      string
	Installed bool
	Path      string
	Version   string
	Required  bool
	Purpose   string
}

// Check looks name up in PATH and records the first line printed by
// versionArgs as its version.
func Check(name string, versionArgs ...string) Status {
	path, err := exec.LookPath(name)
	if err != nil {
		return Status{Name: name, Installed: false}
	}

	status := Status{
		Name:      name,
		Installed: true,
		Path:      path,
	}

	if len(versionArgs) == 0 {
		return status
	}
	output, err := exec.Command(path, versionArgs...).Output()
	if err == nil {
		lines := strings.Split(string(output), "\n")
		if len(lines) > 0 {
			status.Version = strings.TrimSpace(lines[0])
		}
	}

	return status
}

// CheckPwRecord checks for the PipeWire capture tool used for the microphone.
func CheckPwRecord() Status {
	s := Check("pw-record", "--version")
	s.Required = true
	s.Purpose = "microphone capture"
	return s
}

// CheckNotifySend checks for the desktop notification tool.
func CheckNotifySend() Status {
	s := Check("notify-send", "--version")
	s.Purpose = "desktop notifications"
	return s
}

// CheckAll returns the status of every external program.
func CheckAll() []Status {
	return []Status{CheckPwRecord(), CheckNotifySend()}
}

// Missing returns the required programs that are not installed.
func Missing(statuses []Status) []string {
	var missing []string
	for _, s := range statuses {
		if s.Required && !s.Installed {
			missing = append(missing, s.Name)
		}
	}
	return missing
}
