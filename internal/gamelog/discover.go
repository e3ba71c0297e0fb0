package gamelog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// LogFileName is the only file name the tracker will tail. Restricting the
// name keeps the HTTP surface from being pointed at arbitrary files.
const LogFileName = "UE_game.log"

// activeWindow is how recently the log must have been written for the game
// to count as running.
const activeWindow = 60 * time.Second

// Status describes the configured log file for the UI indicator.
type Status struct {
	Exists              bool   `json:"exists"`
	IsActive            bool   `json:"isActive"`
	LastModifiedSecsAgo *int64 `json:"lastModifiedSecsAgo,omitempty"`
	SizeBytes           *int64 `json:"sizeBytes,omitempty"`
}

// CheckStatus stats the log file. A missing or unset path is not an error,
// just a log that does not exist yet.
func CheckStatus(path string) Status {
	if path == "" {
		return Status{}
	}
	info, err := os.Stat(path)
	if err != nil {
		return Status{}
	}
	size := info.Size()
	ago := int64(time.Since(info.ModTime()).Seconds())
	if ago < 0 {
		ago = 0
	}
	return Status{
		Exists:              true,
		IsActive:            time.Duration(ago)*time.Second < activeWindow,
		LastModifiedSecsAgo: &ago,
		SizeBytes:           &size,
	}
}

// ValidatePath accepts only an existing file named UE_game.log.
func ValidatePath(path string) error {
	if !strings.EqualFold(filepath.Base(path), LogFileName) {
		return fmt.Errorf("only %s is supported", LogFileName)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("log file not accessible: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("log path is a directory")
	}
	return nil
}

// Discover tries to locate the game log without user help: first by
// finding a running game process and probing near its executable, then by
// checking known install locations.
func Discover() (string, bool) {
	if p, ok := discoverFromProcess(); ok {
		return p, true
	}
	for _, c := range candidatePaths() {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

func discoverFromProcess() (string, bool) {
	procs, err := process.Processes()
	if err != nil {
		return "", false
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		lower := strings.ToLower(name)
		if !strings.Contains(lower, "torchlight") && !strings.HasPrefix(lower, "ue_game") {
			continue
		}
		exe, err := p.Exe()
		if err != nil || exe == "" {
			continue
		}
		// The log sits next to the game data, a few levels up from the
		// shipped binary. Probe upward from the executable.
		dir := filepath.Dir(exe)
		for i := 0; i < 4; i++ {
			candidate := filepath.Join(dir, LogFileName)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
			dir = filepath.Dir(dir)
		}
	}
	return "", false
}

func candidatePaths() []string {
	var roots []string
	switch runtime.GOOS {
	case "windows":
		for _, drive := range []string{`C:\`, `D:\`, `E:\`} {
			roots = append(roots,
				filepath.Join(drive, "torchlight"),
				filepath.Join(drive, "Program Files (x86)", "Steam", "steamapps", "common", "Torchlight Infinite"),
				filepath.Join(drive, "Torchlight Infinite"),
			)
		}
	default:
		if home, err := os.UserHomeDir(); err == nil {
			roots = append(roots,
				filepath.Join(home, ".steam", "steam", "steamapps", "common", "Torchlight Infinite"),
				filepath.Join(home, ".local", "share", "Steam", "steamapps", "common", "Torchlight Infinite"),
			)
		}
	}
	var out []string
	for _, r := range roots {
		out = append(out,
			filepath.Join(r, LogFileName),
			filepath.Join(r, "UE_game", "Saved", "Logs", LogFileName),
		)
	}
	return out
}
