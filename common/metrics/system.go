package metrics

import (
	"os"
	"runtime"
	"strings"
)

// SystemInfo is a snapshot of the runtime environment, logged once at service
// startup so incident logs identify where a process ran
type SystemInfo struct {
	Hostname         string
	OS               string
	Arch             string
	CPULogical       int
	GoVersion        string
	InContainer      bool
	ContainerRuntime string
}

// Capture gathers the runtime environment snapshot
func Capture() *SystemInfo {
	info := &SystemInfo{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPULogical: runtime.NumCPU(),
		GoVersion:  runtime.Version(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	} else {
		info.Hostname = "unknown"
	}

	info.InContainer, info.ContainerRuntime = detectContainer()

	return info
}

// LogFields returns the snapshot as logger key/value pairs
func (s *SystemInfo) LogFields() []interface{} {
	return []interface{}{
		"hostname", s.Hostname,
		"os", s.OS,
		"arch", s.Arch,
		"cpus", s.CPULogical,
		"go_version", s.GoVersion,
		"in_container", s.InContainer,
		"container_runtime", s.ContainerRuntime,
	}
}

// detectContainer checks if running in a container
func detectContainer() (bool, string) {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true, "docker"
	}

	if _, err := os.Stat("/var/run/secrets/kubernetes.io"); err == nil {
		return true, "kubernetes"
	}

	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		content := string(data)
		switch {
		case strings.Contains(content, "docker"):
			return true, "docker"
		case strings.Contains(content, "kubepods"):
			return true, "kubernetes"
		case strings.Contains(content, "containerd"):
			return true, "containerd"
		}
	}

	return false, ""
}
