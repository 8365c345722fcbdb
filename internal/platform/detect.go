// Package platform handles detection of the operating system and display server.
//
// This decides how we reach the clipboard:
// - Wayland: wl-paste / wl-copy (wl-clipboard)
// - X11: xclip
// - macOS: pbpaste / pbcopy
package platform

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// DisplayServer represents the display server type.
type DisplayServer string

const (
	DisplayServerHyprland DisplayServer = "hyprland"
	DisplayServerSway     DisplayServer = "sway"
	DisplayServerWayland  DisplayServer = "wayland" // Generic Wayland (GNOME, KDE)
	DisplayServerX11      DisplayServer = "x11"
	DisplayServerMacOS    DisplayServer = "macos"
	DisplayServerWindows  DisplayServer = "windows"
	DisplayServerUnknown  DisplayServer = "unknown"
)

// Platform holds information about the detected platform.
type Platform struct {
	// OS is the operating system: "linux", "darwin" (macOS), "windows"
	OS string

	// DisplayServer is the specific display server being used
	DisplayServer DisplayServer

	// Available clipboard tools
	HasWlPaste bool // Wayland clipboard read
	HasWlCopy  bool // Wayland clipboard write
	HasXclip   bool // X11 clipboard read/write
	HasPbpaste bool // macOS clipboard read
	HasPbcopy  bool // macOS clipboard write
}

// String returns a human-readable description of the platform.
func (p *Platform) String() string {
	return fmt.Sprintf("%s/%s", p.OS, p.DisplayServer)
}

// Detect figures out what platform we're running on.
func Detect() (*Platform, error) {
	p := &Platform{
		OS: runtime.GOOS,
	}

	p.DisplayServer = detectDisplayServer()

	p.HasWlPaste = commandExists("wl-paste")
	p.HasWlCopy = commandExists("wl-copy")
	p.HasXclip = commandExists("xclip")
	p.HasPbpaste = commandExists("pbpaste")
	p.HasPbcopy = commandExists("pbcopy")

	return p, nil
}

// detectDisplayServer figures out which display server is running.
func detectDisplayServer() DisplayServer {
	switch runtime.GOOS {
	case "darwin":
		return DisplayServerMacOS
	case "windows":
		return DisplayServerWindows
	}

	// Hyprland sets HYPRLAND_INSTANCE_SIGNATURE
	if os.Getenv("HYPRLAND_INSTANCE_SIGNATURE") != "" {
		return DisplayServerHyprland
	}

	if os.Getenv("SWAYSOCK") != "" {
		return DisplayServerSway
	}

	// XDG_SESSION_TYPE is set by systemd/login managers
	sessionType := os.Getenv("XDG_SESSION_TYPE")
	if sessionType == "wayland" || os.Getenv("WAYLAND_DISPLAY") != "" {
		return DisplayServerWayland
	}

	if sessionType == "x11" || os.Getenv("DISPLAY") != "" {
		return DisplayServerX11
	}

	return DisplayServerUnknown
}

// commandExists checks if a command is available in PATH.
func commandExists(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

// IsWayland returns true if we're on any Wayland compositor.
func (p *Platform) IsWayland() bool {
	switch p.DisplayServer {
	case DisplayServerHyprland, DisplayServerSway, DisplayServerWayland:
		return true
	default:
		return false
	}
}

// HasDisplay reports whether a graphical session was found at all.
func (p *Platform) HasDisplay() bool {
	return p.DisplayServer != DisplayServerUnknown
}

// CanExecClipboard returns true if the command-line clipboard tools for
// this display server are installed (both directions).
func (p *Platform) CanExecClipboard() bool {
	switch {
	case p.IsWayland():
		return p.HasWlPaste && p.HasWlCopy
	case p.DisplayServer == DisplayServerX11:
		return p.HasXclip
	case p.DisplayServer == DisplayServerMacOS:
		return p.HasPbpaste && p.HasPbcopy
	default:
		return false
	}
}

// CheckRequirements lists missing clipboard tools with install hints.
func (p *Platform) CheckRequirements() []string {
	var missing []string

	switch {
	case p.IsWayland():
		if !p.HasWlPaste || !p.HasWlCopy {
			missing = append(missing, "wl-clipboard (install: sudo pacman -S wl-clipboard)")
		}
	case p.DisplayServer == DisplayServerX11:
		if !p.HasXclip {
			missing = append(missing, "xclip (install: sudo pacman -S xclip)")
		}
	}

	return missing
}
