package jobmonitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CachedJob is the on-disk record of a job's last observed state, written
// to "<job-id>.json" in the job cache directory (spec.md §6) so the CLI
// can resume after a restart without re-submitting work.
type CachedJob struct {
	ID           string `json:"id"`
	Kind         Kind   `json:"kind"`
	Device       string `json:"device"`
	DashboardURL string `json:"dashboard_url"`
	State        State  `json:"state"`
	Progress     int    `json:"progress"`
	Reason       string `json:"reason,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
}

// WriteCache persists job's current observed state to dir/<id>.json.
func WriteCache(dir string, job CachedJob) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("jobmonitor: create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("jobmonitor: marshal cached job %s: %w", job.ID, err)
	}
	path := filepath.Join(dir, job.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("jobmonitor: write cache %s: %w", path, err)
	}
	return nil
}

// ReadCacheDir loads every "<job-id>.json" file in dir. Files that cannot
// be read or parsed are skipped silently; the returned error only reports a
// failure to read dir itself.
func ReadCacheDir(dir string) ([]CachedJob, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("jobmonitor: read cache dir: %w", err)
	}

	var jobs []CachedJob
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var job CachedJob
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
