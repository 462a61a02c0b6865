package scheduler

import "crmapi/internal/config"

// DefaultEntries is the built-in schedule: report tasks go through the
// worker, housekeeping jobs run in the scheduler process.
func DefaultEntries() []config.ScheduleEntry {
	return []config.ScheduleEntry{
		{Name: "generate-crm-report", Spec: "0 6 * * 1", Kind: KindEnqueue, Task: "generate_crm_report"},
		{Name: "cleanup-old-reports", Spec: "30 6 * * 1", Kind: KindEnqueue, Task: "cleanup_old_reports"},
		{Name: "crm-heartbeat", Spec: "*/5 * * * *", Kind: KindInline, Task: "log_crm_heartbeat"},
		{Name: "update-low-stock", Spec: "0 */12 * * *", Kind: KindInline, Task: "update_low_stock"},
		{Name: "send-order-reminders", Spec: "0 8 * * *", Kind: KindInline, Task: "send_order_reminders"},
		{Name: "clean-inactive-customers", Spec: "0 2 * * 0", Kind: KindInline, Task: "clean_inactive_customers"},
		{Name: "cleanup-old-logs", Spec: "0 0 * * *", Kind: KindInline, Task: "cleanup_old_logs"},
	}
}

// Merge applies overrides to base by entry name. Unknown names are appended;
// a disabled override removes the entry.
func Merge(base, overrides []config.ScheduleEntry) []config.ScheduleEntry {
	out := make([]config.ScheduleEntry, 0, len(base)+len(overrides))
	idx := make(map[string]int, len(base))
	for _, e := range base {
		idx[e.Name] = len(out)
		out = append(out, e)
	}
	for _, o := range overrides {
		if i, ok := idx[o.Name]; ok {
			out[i] = o
			continue
		}
		idx[o.Name] = len(out)
		out = append(out, o)
	}

	kept := out[:0]
	for _, e := range out {
		if !e.Disabled {
			kept = append(kept, e)
		}
	}
	return kept
}
