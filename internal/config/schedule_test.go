package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmapi/internal/config"
	"crmapi/internal/scheduler"
)

func TestLoadSchedule_DisableOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	body := `
entries:
  - name: crm-heartbeat
    disabled: true
  - name: nightly-digest
    spec: "0 23 * * *"
    kind: enqueue
    task: generate_crm_report
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	overrides, err := config.LoadSchedule(path)
	require.NoError(t, err)
	require.Len(t, overrides, 2)
	assert.Equal(t, config.ScheduleEntry{Name: "crm-heartbeat", Disabled: true}, overrides[0])

	merged := scheduler.Merge(scheduler.DefaultEntries(), overrides)

	names := make([]string, 0, len(merged))
	for _, e := range merged {
		names = append(names, e.Name)
	}
	assert.NotContains(t, names, "crm-heartbeat")
	assert.Contains(t, names, "nightly-digest")
	assert.Len(t, merged, len(scheduler.DefaultEntries()))
}

func TestLoadSchedule_EnabledEntryStillNeedsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entries:\n  - name: crm-heartbeat\n    disabled: false\n"), 0o644))

	_, err := config.LoadSchedule(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule validation failed")
}
