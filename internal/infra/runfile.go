package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const runFileName = "webmon.run"

// RunInfo is the state of the background daemon, persisted for discovery
// by the CLI (single-instance start, status command).
type RunInfo struct {
	PID        int    `json:"pid"`
	ListenAddr string `json:"listen_addr"`
	StartedAt  int64  `json:"started_at"`
	AppVersion string `json:"app_version,omitempty"`
}

// RunFile records the daemon's PID and listen address in the data
// directory.
type RunFile struct {
	path string
}

// NewRunFile creates a run file handle inside dataDir.
func NewRunFile(dataDir string) *RunFile {
	return &RunFile{path: filepath.Join(dataDir, runFileName)}
}

// Path returns the run file path.
func (r *RunFile) Path() string {
	return r.path
}

// Write records the daemon state atomically (write + rename).
func (r *RunFile) Write(info RunInfo) error {
	if info.StartedAt == 0 {
		info.StartedAt = time.Now().Unix()
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return err
	}
	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Read returns the recorded daemon state, or (nil, nil) when no run file
// exists.
func (r *RunFile) Read() (*RunInfo, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var info RunInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Clear removes the run file.
func (r *RunFile) Clear() error {
	err := os.Remove(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsRunning reports whether the recorded PID is alive.
func (r *RunFile) IsRunning() (bool, *RunInfo) {
	info, err := r.Read()
	if err != nil || info == nil || info.PID == 0 {
		return false, nil
	}
	alive, err := process.PidExists(int32(info.PID))
	if err != nil || !alive {
		return false, info
	}
	return true, info
}
