package metrics

import (
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// captureSystemInfo collects the static host facts logged at startup.
// The service runs on Linux in production and macOS in development;
// anything else falls back to what the Go runtime alone can report.
func captureSystemInfo() *SystemInfo {
	info := &SystemInfo{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPULogical: runtime.NumCPU(),
		CPUCores:   runtime.NumCPU(),
		GoVersion:  runtime.Version(),
		Hostname:   "unknown",
		OSVersion:  runtime.GOOS,
	}
	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}

	info.InContainer, info.ContainerRuntime = detectContainer()

	switch runtime.GOOS {
	case "linux":
		if v := linuxRelease(); v != "" {
			info.OSVersion = v
		}
		if n := linuxPhysicalCores(); n > 0 {
			info.CPUCores = n
		}
		info.TotalMemoryMB = linuxMemTotalMB()
	case "darwin":
		if v := darwinRelease(); v != "" {
			info.OSVersion = v
		}
		if n := sysctlUint("hw.physicalcpu"); n > 0 {
			info.CPUCores = int(n)
		}
		info.TotalMemoryMB = sysctlUint("hw.memsize") / 1024 / 1024
	}

	return info
}

// detectContainer reports whether the process is containerized and
// under which runtime, based on the marker files the major runtimes
// leave behind.
func detectContainer() (bool, string) {
	markers := []struct {
		path    string
		runtime string
	}{
		{"/.dockerenv", "docker"},
		{"/run/.containerenv", "podman"},
		{"/var/run/secrets/kubernetes.io", "kubernetes"},
	}
	for _, m := range markers {
		if _, err := os.Stat(m.path); err == nil {
			return true, m.runtime
		}
	}

	// Older runtimes leave no marker file but still show up in the
	// init process's cgroup path.
	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		cgroup := string(data)
		switch {
		case strings.Contains(cgroup, "kubepods"):
			return true, "kubernetes"
		case strings.Contains(cgroup, "docker"):
			return true, "docker"
		case strings.Contains(cgroup, "containerd"):
			return true, "containerd"
		}
	}

	return false, ""
}

// linuxRelease reads the distribution name from /etc/os-release.
func linuxRelease() string {
	fields := parseOSRelease("/etc/os-release")
	if pretty := fields["PRETTY_NAME"]; pretty != "" {
		return pretty
	}
	if name := fields["NAME"]; name != "" {
		if version := fields["VERSION"]; version != "" {
			return name + " " + version
		}
		return name
	}
	if kernel := readTrimmed("/proc/sys/kernel/osrelease"); kernel != "" {
		return "Linux " + kernel
	}
	return ""
}

// parseOSRelease parses the KEY=value lines of an os-release file.
func parseOSRelease(path string) map[string]string {
	fields := map[string]string{}
	data, err := os.ReadFile(path)
	if err != nil {
		return fields
	}
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[key] = strings.Trim(value, `"`)
	}
	return fields
}

// linuxPhysicalCores counts distinct (physical id, core id) pairs in
// /proc/cpuinfo. Counting core ids alone would collapse identical
// cores on different sockets into one.
func linuxPhysicalCores() int {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return 0
	}

	cores := map[string]bool{}
	var socket string
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "physical id":
			socket = value
		case "core id":
			cores[socket+"/"+value] = true
		}
	}
	return len(cores)
}

// linuxMemTotalMB reads MemTotal from /proc/meminfo.
func linuxMemTotalMB() uint64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb / 1024
	}
	return 0
}

func darwinRelease() string {
	version := commandOutput("sw_vers", "-productVersion")
	if version == "" {
		return ""
	}
	if name := commandOutput("sw_vers", "-productName"); name != "" {
		return name + " " + version
	}
	return "macOS " + version
}

// sysctlUint reads one numeric sysctl key, returning 0 on any failure.
func sysctlUint(key string) uint64 {
	out := commandOutput("sysctl", "-n", key)
	if out == "" {
		return 0
	}
	n, err := strconv.ParseUint(out, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func commandOutput(name string, args ...string) string {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
