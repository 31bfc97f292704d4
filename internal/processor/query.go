package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BolKhata/BolKhata/internal/models"
)

// Query answers a read-only question from committed records. The month the
// question refers to defaults to the current one.
func (r *Router) Query(ctx context.Context, userID string, intent models.ClassifiedIntent) (*models.EngineResult, error) {
	from, to := r.monthWindow(intent.Slots.Date)
	lower := strings.ToLower(intent.Slots.Description)

	switch {
	case strings.Contains(lower, "reminder"):
		return r.queryReminders(ctx, userID)
	case intent.Slots.ProviderType != "" && mentionsAttendance(lower):
		return r.queryAttendance(ctx, userID, intent.Slots.ProviderType, from, to)
	case intent.Slots.ProviderType != "":
		return r.queryProviderSpend(ctx, userID, intent.Slots.ProviderType, from, to)
	case hasSpecificCategory(intent.Slots.Categories):
		return r.queryCategorySpend(ctx, userID, intent.Slots.Categories, from, to)
	default:
		return r.queryTotalSpend(ctx, userID, from, to)
	}
}

func (r *Router) queryReminders(ctx context.Context, userID string) (*models.EngineResult, error) {
	reminders, err := r.store.ListReminders(ctx, userID)
	if err != nil {
		return nil, err
	}
	var pending []models.Reminder
	for _, rem := range reminders {
		if !rem.Delivered {
			pending = append(pending, rem)
		}
	}
	if len(pending) == 0 {
		return &models.EngineResult{ResponseText: "You have no pending reminders."}, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d pending reminder%s:", len(pending), plural(len(pending)))
	for _, rem := range pending {
		b.WriteString("\n- " + rem.Title)
		if !rem.DueDate.IsZero() {
			fmt.Fprintf(&b, " (%s)", rem.DueDate.Format("2 January"))
		}
	}
	return &models.EngineResult{ResponseText: b.String()}, nil
}

func (r *Router) queryAttendance(ctx context.Context, userID, providerType string, from, to time.Time) (*models.EngineResult, error) {
	logs, err := r.store.AttendanceBetween(ctx, userID, providerType, from, to)
	if err != nil {
		return nil, err
	}
	present, absent := 0, 0
	for _, l := range logs {
		if l.Status == models.AttendanceAbsent {
			absent++
		} else {
			present++
		}
	}
	slog.Debug("Router.queryAttendance: answered", "userID", userID, "provider", providerType, "present", present, "absent", absent)
	if present+absent == 0 {
		return &models.EngineResult{
			ResponseText: fmt.Sprintf("I have no attendance marked for the %s in %s.", providerType, from.Format("January")),
		}, nil
	}
	return &models.EngineResult{
		ResponseText: fmt.Sprintf("The %s came %d time%s in %s and was absent %d time%s.",
			providerType, present, plural(present), from.Format("January"), absent, plural(absent)),
	}, nil
}

func (r *Router) queryProviderSpend(ctx context.Context, userID, providerType string, from, to time.Time) (*models.EngineResult, error) {
	txns, err := r.store.TransactionsBetween(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	var total float64
	count := 0
	for _, t := range txns {
		if t.ProviderType == providerType && t.Type == models.TransactionExpense {
			total += t.Amount
			count++
		}
	}
	if count == 0 {
		return &models.EngineResult{
			ResponseText: fmt.Sprintf("No payments to the %s recorded in %s.", providerType, from.Format("January")),
		}, nil
	}
	return &models.EngineResult{
		ResponseText: fmt.Sprintf("You paid the %s %s in %s across %d payment%s.",
			providerType, FormatINR(total), from.Format("January"), count, plural(count)),
	}, nil
}

func (r *Router) queryCategorySpend(ctx context.Context, userID string, categories []string, from, to time.Time) (*models.EngineResult, error) {
	txns, err := r.store.TransactionsBetween(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}
	var total float64
	for _, t := range txns {
		if t.Type != models.TransactionExpense {
			continue
		}
		for _, c := range t.Categories {
			if wanted[c] {
				total += t.Amount
				break
			}
		}
	}
	label := strings.Join(categories, " and ")
	if total == 0 {
		return &models.EngineResult{
			ResponseText: fmt.Sprintf("No %s spending recorded in %s.", label, from.Format("January")),
		}, nil
	}
	return &models.EngineResult{
		ResponseText: fmt.Sprintf("You spent %s on %s in %s.", FormatINR(total), label, from.Format("January")),
	}, nil
}

func (r *Router) queryTotalSpend(ctx context.Context, userID string, from, to time.Time) (*models.EngineResult, error) {
	txns, err := r.store.TransactionsBetween(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	var spent, received float64
	for _, t := range txns {
		if t.Type == models.TransactionIncome {
			received += t.Amount
		} else {
			spent += t.Amount
		}
	}
	msg := fmt.Sprintf("In %s you spent %s", from.Format("January"), FormatINR(spent))
	if received > 0 {
		msg += fmt.Sprintf(" and received %s", FormatINR(received))
	}
	return &models.EngineResult{ResponseText: msg + "."}, nil
}

// monthWindow returns the [start, end) of the month containing ref, or the
// current month when ref is nil.
func (r *Router) monthWindow(ref *time.Time) (time.Time, time.Time) {
	now := r.clock()
	if ref != nil {
		now = *ref
	}
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return from, from.AddDate(0, 1, 0)
}

func mentionsAttendance(lower string) bool {
	for _, k := range []string{"come", "came", "absent", "present", "attendance", "leave"} {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func hasSpecificCategory(categories []string) bool {
	for _, c := range categories {
		if c != "miscellaneous" && c != "logbook" {
			return true
		}
	}
	return false
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
