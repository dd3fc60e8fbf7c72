package security

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// HardwareSource supplies the raw hardware identifiers the machine code
// is derived from. Each accessor is independently fallible; callers
// substitute a sentinel on failure so fingerprinting stays total.
type HardwareSource interface {
	BoardSerial() (string, error)
	CPUID() (string, error)
	PrimaryMAC() (string, error)
	DiskSerial() (string, error)
}

// NewHardwareSource returns the source for the current platform family.
func NewHardwareSource() HardwareSource {
	switch runtime.GOOS {
	case "windows":
		return &windowsSource{}
	case "darwin":
		return &darwinSource{}
	default:
		return &linuxSource{}
	}
}

// primaryMAC picks the first up, non-loopback interface with a real
// hardware address; any interface with a MAC is the fallback.
func primaryMAC() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return strings.ToUpper(mac), nil
		}
	}

	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return strings.ToUpper(mac), nil
		}
	}

	return "", fmt.Errorf("no valid MAC address found")
}

// runCommand executes a probe command and returns its trimmed output.
func runCommand(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// secondLine returns the trimmed second line of command output, the
// shape wmic uses (header line followed by the value).
func secondLine(output string) (string, error) {
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")
	for _, line := range lines[1:] {
		if v := strings.TrimSpace(line); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("no value in command output")
}

// windowsSource reads identifiers via wmic and environment probes.
type windowsSource struct{}

func (s *windowsSource) BoardSerial() (string, error) {
	out, err := runCommand("wmic", "baseboard", "get", "serialnumber")
	if err != nil {
		return "", err
	}
	return secondLine(out)
}

func (s *windowsSource) CPUID() (string, error) {
	if procID := os.Getenv("PROCESSOR_IDENTIFIER"); procID != "" {
		return procID, nil
	}
	out, err := runCommand("wmic", "cpu", "get", "processorid")
	if err != nil {
		return "", err
	}
	return secondLine(out)
}

func (s *windowsSource) PrimaryMAC() (string, error) {
	return primaryMAC()
}

func (s *windowsSource) DiskSerial() (string, error) {
	out, err := runCommand("wmic", "diskdrive", "get", "serialnumber")
	if err != nil {
		return "", err
	}
	return secondLine(out)
}

// linuxSource reads identifiers from sysfs and procfs; DMI values need
// no elevated privileges when exposed under /sys/class/dmi.
type linuxSource struct{}

func (s *linuxSource) BoardSerial() (string, error) {
	for _, path := range []string{
		"/sys/class/dmi/id/board_serial",
		"/sys/class/dmi/id/product_serial",
	} {
		if data, err := os.ReadFile(path); err == nil {
			if serial := strings.TrimSpace(string(data)); serial != "" {
				return serial, nil
			}
		}
	}
	return "", fmt.Errorf("no board serial available")
}

func (s *linuxSource) CPUID() (string, error) {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return "", fmt.Errorf("failed to read /proc/cpuinfo: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "model name") || strings.HasPrefix(line, "Hardware") {
			if _, value, found := strings.Cut(line, ":"); found {
				return strings.TrimSpace(value), nil
			}
		}
	}
	return "", fmt.Errorf("no processor identifier in /proc/cpuinfo")
}

func (s *linuxSource) PrimaryMAC() (string, error) {
	return primaryMAC()
}

func (s *linuxSource) DiskSerial() (string, error) {
	// Stable device identity without root: the first disk's serial from
	// sysfs, else the root filesystem device id.
	entries, err := os.ReadDir("/sys/block")
	if err == nil {
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") {
				continue
			}
			if data, err := os.ReadFile("/sys/block/" + name + "/device/serial"); err == nil {
				if serial := strings.TrimSpace(string(data)); serial != "" {
					return serial, nil
				}
			}
		}
	}

	if data, err := os.ReadFile("/etc/machine-id"); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	return "", fmt.Errorf("no disk serial available")
}

// darwinSource shells out to system_profiler the way the platform
// tooling expects.
type darwinSource struct{}

func (s *darwinSource) BoardSerial() (string, error) {
	out, err := runCommand("system_profiler", "SPHardwareDataType")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Serial Number") {
			if _, value, found := strings.Cut(line, ":"); found {
				return strings.TrimSpace(value), nil
			}
		}
	}
	return "", fmt.Errorf("no serial number in system_profiler output")
}

func (s *darwinSource) CPUID() (string, error) {
	out, err := runCommand("sysctl", "-n", "machdep.cpu.brand_string")
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("empty cpu brand string")
	}
	return out, nil
}

func (s *darwinSource) PrimaryMAC() (string, error) {
	return primaryMAC()
}

func (s *darwinSource) DiskSerial() (string, error) {
	out, err := runCommand("system_profiler", "SPStorageDataType")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Volume UUID") {
			if _, value, found := strings.Cut(line, ":"); found {
				return strings.TrimSpace(value), nil
			}
		}
	}
	return "", fmt.Errorf("no volume UUID in system_profiler output")
}
