package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SysfsPCIPath is where Linux exposes PCI devices.
const SysfsPCIPath = "/sys/bus/pci/devices"

// NVIDIAVendorID is the PCI vendor ID of NVIDIA Corporation.
const NVIDIAVendorID = "0x10de"

// PCIDevice represents a PCI device with its identifiers
type PCIDevice struct {
	// VendorID is the PCI vendor ID (e.g., "0x10de")
	VendorID string

	// DeviceID is the PCI device ID
	DeviceID string

	// BusAddress is the PCI bus address (e.g., "0000:01:00.0")
	BusAddress string

	// Class is the PCI device class (e.g., "0x030000" for a VGA controller)
	Class string

	// Driver is the bound kernel driver, empty when none is bound
	Driver string
}

// IsDisplayController reports whether the device class is 0x03xxxx (VGA,
// 3D or other display controller), which is how GPUs enumerate.
func (d PCIDevice) IsDisplayController() bool {
	return strings.HasPrefix(d.Class, "0x03")
}

// ScanPCIDevices scans root (normally SysfsPCIPath) for PCI devices.
//
// Unreadable individual entries are skipped.
//
// Returns:
//   - Slice of PCIDevice found on the system
//   - Error if root cannot be read
func ScanPCIDevices(root string) ([]PCIDevice, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCI devices: %w", err)
	}

	var devices []PCIDevice
	for _, entry := range entries {
		dev, err := readPCIDevice(filepath.Join(root, entry.Name()), entry.Name())
		if err != nil {
			continue
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

func readPCIDevice(devicePath, busAddress string) (PCIDevice, error) {
	dev := PCIDevice{BusAddress: busAddress}

	vendorID, err := readPCIFile(filepath.Join(devicePath, "vendor"))
	if err != nil {
		return dev, err
	}
	dev.VendorID = vendorID

	deviceID, err := readPCIFile(filepath.Join(devicePath, "device"))
	if err != nil {
		return dev, err
	}
	dev.DeviceID = deviceID

	if class, err := readPCIFile(filepath.Join(devicePath, "class")); err == nil {
		dev.Class = class
	}

	// driver is a symlink to the bound driver's directory.
	if target, err := os.Readlink(filepath.Join(devicePath, "driver")); err == nil {
		dev.Driver = filepath.Base(target)
	}

	return dev, nil
}

func readPCIFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(string(data))), nil
}

// NVIDIAGPUs returns the NVIDIA display controllers among devices.
func NVIDIAGPUs(devices []PCIDevice) []PCIDevice {
	var gpus []PCIDevice
	for _, d := range devices {
		if d.VendorID == NVIDIAVendorID && d.IsDisplayController() {
			gpus = append(gpus, d)
		}
	}
	return gpus
}

// DescribeNVIDIAHardware explains, for a host where the driver query
// failed, whether NVIDIA hardware is present on the PCI bus. It returns an
// empty string when the bus cannot be read (e.g. under WSL, where the GPU is
// not exposed over PCI).
func DescribeNVIDIAHardware(root string) string {
	devices, err := ScanPCIDevices(root)
	if err != nil {
		return ""
	}

	gpus := NVIDIAGPUs(devices)
	if len(gpus) == 0 {
		return "no NVIDIA GPU found on the PCI bus"
	}

	var drivers []string
	for _, g := range gpus {
		if g.Driver != "" && g.Driver != "nvidia" {
			drivers = append(drivers, g.Driver)
		}
	}
	msg := fmt.Sprintf("%d NVIDIA GPU(s) found on the PCI bus but the driver is not usable", len(gpus))
	if len(drivers) > 0 {
		msg += fmt.Sprintf(" (bound to %s instead of nvidia)", strings.Join(drivers, ", "))
	}
	return msg
}
