package codegen

import (
	"fmt"
	"runtime"
)

// ---------------------------------------------------------------------------
// OS / Architecture enums
// ---------------------------------------------------------------------------

// OS represents an operating system.
type OS int

const (
	OS_Linux  OS = iota
	OS_Darwin    // macOS
	OS_Windows
	OS_FreeBSD
)

func (o OS) String() string {
	switch o {
	case OS_Linux:
		return "linux"
	case OS_Darwin:
		return "darwin"
	case OS_Windows:
		return "windows"
	case OS_FreeBSD:
		return "freebsd"
	default:
		return "unknown"
	}
}

// Arch represents a CPU architecture.
type Arch int

const (
	Arch_x86_64 Arch = iota
	Arch_x86         // 32-bit x86
	Arch_ARM64       // AArch64
)

func (a Arch) String() string {
	switch a {
	case Arch_x86_64:
		return "x86_64"
	case Arch_x86:
		return "x86"
	case Arch_ARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// ---------------------------------------------------------------------------
// Target
// ---------------------------------------------------------------------------

// Target is an OS/architecture pair.
type Target struct {
	OS   OS
	Arch Arch
}

// ELF64 is the platform every generated listing targets: the prelude is
// always "format ELF64 executable" and the code is x86-64 with Linux
// system calls.
var ELF64 = Target{OS: OS_Linux, Arch: Arch_x86_64}

// HostTarget returns a Target matching the current Go runtime (GOOS/GOARCH).
func HostTarget() (Target, error) {
	return ResolveTarget(runtime.GOOS, runtime.GOARCH)
}

// ResolveTarget builds a Target from OS/Arch name strings (same names Go uses).
func ResolveTarget(osName, archName string) (Target, error) {
	var t Target

	switch osName {
	case "linux":
		t.OS = OS_Linux
	case "darwin":
		t.OS = OS_Darwin
	case "windows":
		t.OS = OS_Windows
	case "freebsd":
		t.OS = OS_FreeBSD
	default:
		return Target{}, fmt.Errorf("unsupported OS: %s", osName)
	}

	switch archName {
	case "amd64", "x86_64":
		t.Arch = Arch_x86_64
	case "386", "x86":
		t.Arch = Arch_x86
	case "arm64", "aarch64":
		t.Arch = Arch_ARM64
	default:
		return Target{}, fmt.Errorf("unsupported architecture: %s", archName)
	}
	return t, nil
}

func (t Target) String() string {
	return t.OS.String() + "/" + t.Arch.String()
}

// Dir is the build subdirectory for artifacts of this target.
func (t Target) Dir() string {
	return fmt.Sprintf("%s_%s", t.OS, t.Arch)
}

// Runs reports whether an executable built for t runs natively on host.
func (t Target) Runs(host Target) bool {
	return t == host
}

// FileExtAsm returns the listing file extension.
func (t Target) FileExtAsm() string {
	return ".asm"
}

// FileExtExe returns the platform executable extension ("" or ".exe").
func (t Target) FileExtExe() string {
	if t.OS == OS_Windows {
		return ".exe"
	}
	return ""
}
