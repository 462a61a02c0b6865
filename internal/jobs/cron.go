package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crmapi/internal/gql"
)

// Crontab job names.
const (
	JobHeartbeat      = "log_crm_heartbeat"
	JobLowStock       = "update_low_stock"
	JobOrderReminders = "send_order_reminders"
	JobCleanInactive  = "clean_inactive_customers"
	JobCleanupLogs    = "cleanup_old_logs"
)

const (
	heartbeatTimeout = 10 * time.Second
	reminderWindow   = 7 * 24 * time.Hour
	inactiveAfter    = 365 * 24 * time.Hour
	cronLogKeep      = 1000
)

// Inline returns the crontab jobs keyed by name.
func (j *Jobs) Inline() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		JobHeartbeat:      j.Heartbeat,
		JobLowStock:       j.UpdateLowStock,
		JobOrderReminders: j.SendOrderReminders,
		JobCleanInactive:  j.CleanInactiveCustomers,
		JobCleanupLogs:    j.CleanupOldLogs,
	}
}

// Heartbeat records that the CRM is alive and whether GraphQL answers.
func (j *Jobs) Heartbeat(ctx context.Context) error {
	msg := j.clock().Format(heartbeatStamp) + " CRM is alive"

	pctx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	defer cancel()
	err := j.gql.Do(pctx, `query { hello }`, nil, nil)

	var respErr *gql.ResponseError
	var statusErr *gql.HTTPStatusError
	switch {
	case err == nil:
		msg += " - GraphQL endpoint responsive"
	case errors.As(err, &respErr):
		msg += " - GraphQL endpoint has errors"
	case errors.As(err, &statusErr):
		msg += " - GraphQL endpoint not responding"
	default:
		msg += " - GraphQL check failed: " + err.Error()
	}

	if err := j.logs.Append(HeartbeatLog, msg+"\n"); err != nil {
		return err
	}
	j.logger.Info("heartbeat_logged")
	return nil
}

const lowStockMutation = `mutation {
  updateLowStockProducts {
    updatedProducts { id name stock }
    message
    success
    count
  }
}`

type lowStockResult struct {
	UpdatedProducts []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Stock int    `json:"stock"`
	} `json:"updatedProducts"`
	Message string `json:"message"`
	Success bool   `json:"success"`
	Count   int    `json:"count"`
}

// UpdateLowStock restocks low products through the GraphQL mutation and
// logs which products changed.
func (j *Jobs) UpdateLowStock(ctx context.Context) error {
	var out struct {
		Result *lowStockResult `json:"updateLowStockProducts"`
	}
	err := j.gql.Do(ctx, lowStockMutation, nil, &out)
	if err == nil && out.Result == nil {
		err = errors.New("no mutation result returned")
	}
	ts := j.clock().Format(heartbeatStamp)
	if err != nil {
		kind := "Unexpected error during low stock update"
		switch {
		case errors.Is(err, gql.ErrTransport):
			kind = "Network error during low stock update"
		case errors.Is(err, gql.ErrDecode):
			kind = "Invalid JSON response during low stock update"
		}
		j.append(LowStockLog, fmt.Sprintf("%s ERROR - %s: %v\n%s", ts, kind, err, rule))
		j.logger.Error("low_stock_update_failed", "error", err.Error())
		return err
	}

	r := out.Result
	var b strings.Builder
	fmt.Fprintf(&b, "%s Low Stock Update Results:\n", ts)
	fmt.Fprintf(&b, "Success: %t\n", r.Success)
	fmt.Fprintf(&b, "Message: %s\n", r.Message)
	fmt.Fprintf(&b, "Products Updated: %d\n", r.Count)
	if len(r.UpdatedProducts) > 0 {
		b.WriteString("Updated Products:\n")
		for _, p := range r.UpdatedProducts {
			fmt.Fprintf(&b, "  - ID: %s, Name: %s, New Stock: %d\n", p.ID, p.Name, p.Stock)
		}
	} else {
		b.WriteString("No products were updated.\n")
	}
	b.WriteString(rule)

	if err := j.logs.Append(LowStockLog, b.String()); err != nil {
		return err
	}
	j.logger.Info("low_stock_update_completed", "count", r.Count)
	return nil
}

const remindersQuery = `query($since: DateTime) {
  filterOrders(filter: {orderDateGte: $since}, orderBy: "order_date") {
    id
    customer { email }
  }
}`

// SendOrderReminders logs one reminder line per order placed in the last week.
func (j *Jobs) SendOrderReminders(ctx context.Context) error {
	now := j.clock()
	since := now.Add(-reminderWindow).UTC().Format(time.RFC3339)

	var out struct {
		Orders []struct {
			ID       string `json:"id"`
			Customer *struct {
				Email string `json:"email"`
			} `json:"customer"`
		} `json:"filterOrders"`
	}
	ts := now.Format(reportStamp)
	if err := j.gql.Do(ctx, remindersQuery, map[string]interface{}{"since": since}, &out); err != nil {
		j.append(OrderRemindersLog, fmt.Sprintf("%s ERROR - Order reminder query failed: %v\n", ts, err))
		return err
	}

	var b strings.Builder
	for _, o := range out.Orders {
		email := ""
		if o.Customer != nil {
			email = o.Customer.Email
		}
		fmt.Fprintf(&b, "%s Order ID: %s, Customer Email: %s\n", ts, o.ID, email)
	}
	if b.Len() > 0 {
		if err := j.logs.Append(OrderRemindersLog, b.String()); err != nil {
			return err
		}
	}
	j.logger.Info("order_reminders_processed", "orders", len(out.Orders))
	return nil
}

// CleanInactiveCustomers deletes customers without an order in the last year.
func (j *Jobs) CleanInactiveCustomers(ctx context.Context) error {
	now := j.clock()
	ts := now.Format(reportStamp)
	n, err := j.customers.PurgeInactive(ctx, now.Add(-inactiveAfter))
	if err != nil {
		j.append(CustomerCleanupLog, fmt.Sprintf("%s ERROR - Customer cleanup failed: %v\n", ts, err))
		return err
	}
	if err := j.logs.Append(CustomerCleanupLog, fmt.Sprintf("%s Deleted %d inactive customers\n", ts, n)); err != nil {
		return err
	}
	j.logger.Info("inactive_customers_deleted", "count", n)
	return nil
}

// CleanupOldLogs keeps the last 1000 lines of each crontab log.
func (j *Jobs) CleanupOldLogs(ctx context.Context) error {
	var errs []error
	for _, name := range []string{HeartbeatLog, LowStockLog, OrderRemindersLog, CustomerCleanupLog} {
		before, after, err := j.logs.Trim(name, cronLogKeep)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if before > after {
			j.logger.Info("job_log_trimmed", "file", name, "kept", after, "removed", before-after)
		}
	}
	return errors.Join(errs...)
}
