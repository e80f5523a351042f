package telemetry

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

type dbContextKey string

// dbHook names one GORM processor and the operation it performs.
// Raw and row statements leave operation empty and are classified from their SQL text.
type dbHook struct {
	name      string
	operation string
}

var dbHooks = []dbHook{
	{"create", "INSERT"},
	{"query", "SELECT"},
	{"update", "UPDATE"},
	{"delete", "DELETE"},
	{"row", ""},
	{"raw", ""},
}

// registerHook attaches before and after around gorm's own callback for hook
func registerHook(db *gorm.DB, hook, prefix string, before, after func(*gorm.DB)) error {
	cb := db.Callback()
	target := "gorm:" + hook
	beforeName, afterName := prefix+":before_"+hook, prefix+":after_"+hook

	var err error
	switch hook {
	case "create":
		if err = cb.Create().Before(target).Register(beforeName, before); err == nil {
			err = cb.Create().After(target).Register(afterName, after)
		}
	case "query":
		if err = cb.Query().Before(target).Register(beforeName, before); err == nil {
			err = cb.Query().After(target).Register(afterName, after)
		}
	case "update":
		if err = cb.Update().Before(target).Register(beforeName, before); err == nil {
			err = cb.Update().After(target).Register(afterName, after)
		}
	case "delete":
		if err = cb.Delete().Before(target).Register(beforeName, before); err == nil {
			err = cb.Delete().After(target).Register(afterName, after)
		}
	case "row":
		if err = cb.Row().Before(target).Register(beforeName, before); err == nil {
			err = cb.Row().After(target).Register(afterName, after)
		}
	case "raw":
		if err = cb.Raw().Before(target).Register(beforeName, before); err == nil {
			err = cb.Raw().After(target).Register(afterName, after)
		}
	}
	return err
}

// registerTimedCallbacks stamps a start time before every GORM operation under key
// and calls after with the operation name and elapsed time.
func registerTimedCallbacks(db *gorm.DB, prefix string, key dbContextKey, after func(tx *gorm.DB, operation string, elapsed time.Duration)) error {
	before := func(tx *gorm.DB) {
		ctx := tx.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		tx.Statement.Context = context.WithValue(ctx, key, time.Now())
	}

	for _, hook := range dbHooks {
		hook := hook
		afterFn := func(tx *gorm.DB) {
			var elapsed time.Duration
			if tx.Statement.Context != nil {
				if start, ok := tx.Statement.Context.Value(key).(time.Time); ok {
					elapsed = time.Since(start)
				}
			}
			op := hook.operation
			if op == "" {
				op = detectOperationType(tx.Statement.SQL.String())
			}
			after(tx, op, elapsed)
		}
		if err := registerHook(db, hook.name, prefix, before, afterFn); err != nil {
			return err
		}
	}
	return nil
}

// detectOperationType classifies a raw statement by its leading keyword
func detectOperationType(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))

	switch {
	case strings.HasPrefix(sql, "SELECT"):
		return "SELECT"
	case strings.HasPrefix(sql, "INSERT"):
		return "INSERT"
	case strings.HasPrefix(sql, "UPDATE"):
		return "UPDATE"
	case strings.HasPrefix(sql, "DELETE"):
		return "DELETE"
	default:
		return "OTHER"
	}
}
