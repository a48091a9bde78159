package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/statements_backend/config"
	"bitbucket.org/mmdatafocus/statements_backend/models"
	"bitbucket.org/mmdatafocus/statements_backend/workflow"
)

// Ops tool: requeue failed statements without waiting out the retry backoff.
// Either a single -id, or -all-failed-before to requeue everything that failed
// before the given cutoff (useful after fixing a bad extraction deploy).
func main() {
	id := flag.Int("id", 0, "Requeue a single statement by id")
	allFailedBefore := flag.String("all-failed-before", "", "Requeue every Failed statement whose failed_at is before this time (RFC3339)")
	flag.Parse()

	if *id == 0 && *allFailedBefore == "" {
		fmt.Fprintln(os.Stderr, "usage: statement-requeue -id N | -all-failed-before 2026-01-02T15:04:05Z")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	if *id != 0 {
		if err := workflow.RequeueStatement(ctx, db, *id); err != nil {
			fmt.Fprintf(os.Stderr, "requeue %d failed: %v\n", *id, err)
			os.Exit(1)
		}
		fmt.Printf("requeued statement %d\n", *id)
		return
	}

	cutoff, err := time.Parse(time.RFC3339, *allFailedBefore)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid cutoff %q: %v\n", *allFailedBefore, err)
		os.Exit(1)
	}

	var ids []int
	err = db.WithContext(ctx).Model(&models.Statement{}).
		Where("status = ? AND failed_at < ?", models.StatementStatusFailed, cutoff).
		Order("failed_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list statements: %v\n", err)
		os.Exit(1)
	}
	if len(ids) == 0 {
		fmt.Println("nothing to requeue")
		return
	}

	requeued := 0
	for _, sid := range ids {
		if err := workflow.RequeueStatement(ctx, db, sid); err != nil {
			fmt.Fprintf(os.Stderr, "skipping "+strconv.Itoa(sid)+": %v\n", err)
			continue
		}
		requeued++
	}
	fmt.Printf("requeued %d of %d statements\n", requeued, len(ids))
}
