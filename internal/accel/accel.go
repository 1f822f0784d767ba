// Package accel selects the execution device for OCR inference. Selection
// happens once at startup; the resulting Device is passed to the converter
// and never reassigned.
package accel

import (
	"os"
	"os/exec"
	"runtime"
	"runtime/debug"
	"strings"
)

type Kind string

const (
	CPU  Kind = "cpu"
	CUDA Kind = "cuda"
	MPS  Kind = "mps"
)

// Preference is what a preset asks for.
type Preference string

const (
	PreferNone  Preference = "none"
	PreferGPU   Preference = "gpu"
	PreferMetal Preference = "metal"
)

func ParsePreference(s string) Preference {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gpu", "cuda":
		return PreferGPU
	case "metal", "mps":
		return PreferMetal
	default:
		return PreferNone
	}
}

// Probe is a snapshot of what the host offers.
type Probe struct {
	CUDABuilt      bool
	CUDAAvailable  bool
	MetalBuilt     bool
	MetalAvailable bool
}

// Prober takes a fresh Probe. Tests swap it for a fixed value.
type Prober func() Probe

var nvidiaDevices = []string{"/dev/nvidiactl", "/dev/nvidia0"}

var freeOSMemory = debug.FreeOSMemory

// HostProbe inspects the running host: NVIDIA device nodes or nvidia-smi for
// CUDA, Apple Silicon for Metal.
func HostProbe() Probe {
	p := Probe{
		CUDABuilt:  runtime.GOOS == "linux" || runtime.GOOS == "windows",
		MetalBuilt: runtime.GOOS == "darwin",
	}
	if p.CUDABuilt {
		p.CUDAAvailable = cudaPresent()
	}
	if p.MetalBuilt {
		p.MetalAvailable = runtime.GOARCH == "arm64"
	}
	return p
}

func cudaPresent() bool {
	if v := strings.TrimSpace(os.Getenv("NVIDIA_VISIBLE_DEVICES")); v == "none" || v == "void" {
		return false
	}
	for _, dev := range nvidiaDevices {
		if _, err := os.Stat(dev); err == nil {
			return true
		}
	}
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}

// Device is the selected execution path.
type Device struct {
	Kind       Kind
	Preference Preference
}

// Select resolves a preference against the probe. An unavailable
// accelerator falls back to CPU.
func Select(pref Preference, p Probe) Device {
	d := Device{Kind: CPU, Preference: pref}
	switch pref {
	case PreferGPU:
		if p.CUDAAvailable {
			d.Kind = CUDA
		}
	case PreferMetal:
		if p.MetalAvailable {
			d.Kind = MPS
		}
	}
	return d
}

// Detect picks the best device the host offers, CUDA first.
func Detect(p Probe) Device {
	switch {
	case p.CUDAAvailable:
		return Device{Kind: CUDA, Preference: PreferGPU}
	case p.MetalAvailable:
		return Device{Kind: MPS, Preference: PreferMetal}
	default:
		return Device{Kind: CPU, Preference: PreferNone}
	}
}

func (d Device) IsAccelerator() bool { return d.Kind == CUDA || d.Kind == MPS }

func (d Device) String() string { return string(d.Kind) }

// Reclaim returns freed heap to the OS before a conversion on an
// accelerator-backed device. Best effort.
func (d Device) Reclaim() {
	if d.IsAccelerator() {
		freeOSMemory()
	}
}

// Available reports whether the probe still sees the device's hardware.
func (d Device) Available(p Probe) bool {
	switch d.Kind {
	case CUDA:
		return p.CUDAAvailable
	case MPS:
		return p.MetalAvailable
	default:
		return p.CUDAAvailable || p.MetalAvailable
	}
}

// Built reports whether this build can drive the device's accelerator.
func (d Device) Built(p Probe) bool {
	switch d.Kind {
	case CUDA:
		return p.CUDABuilt
	case MPS:
		return p.MetalBuilt
	default:
		return p.CUDABuilt || p.MetalBuilt
	}
}
