package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anpr/compliance-core/pb/anpradmin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	addr := os.Getenv("ANPR_ADMIN_ADDR")
	if addr == "" {
		addr = "localhost:9090"
	}

	switch os.Args[1] {
	case "suspend":
		cmdSuspend(addr)
	case "reconcile":
		cmdReconcile(addr)
	case "review":
		cmdReview(addr)
	case "version":
		fmt.Printf("anprctl v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`anprctl v` + version + `

Usage: anprctl <command> [flags]

Commands:
  suspend create    Open an enforcement suspension window for a site
  suspend end       Close an open suspension early
  reconcile site    Re-run the rule engine over a site's sessions
  review discard    Bulk-discard pending plate reviews by reason tag
  version           Print version
  help              Show this help

Environment:
  ANPR_ADMIN_ADDR   Admin surface address (default: localhost:9090)

Examples:
  anprctl suspend create --site site-1 --reason "resurfacing works" --by ops1
  anprctl suspend end --id <suspension-id> --reason "works finished" --by ops1
  anprctl reconcile site --site site-1 --limit 500
  anprctl review discard --reason low_confidence_read --limit 100`)
}

func dial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		anpradmin.DialOption(),
	)
}

func client(addr string) (anpradmin.AdminServiceClient, func()) {
	conn, err := dial(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to dial admin surface at %s: %v\n", addr, err)
		os.Exit(1)
	}
	return anpradmin.NewAdminServiceClient(conn), func() { conn.Close() }
}

// ----------------------------------------------------------------
// suspend command
// ----------------------------------------------------------------

func cmdSuspend(addr string) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: anprctl suspend <create|end>")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "create":
		cmdSuspendCreate(addr)
	case "end":
		cmdSuspendEnd(addr)
	default:
		fmt.Fprintf(os.Stderr, "Unknown suspend subcommand: %s\n", os.Args[2])
		os.Exit(1)
	}
}

func cmdSuspendCreate(addr string) {
	var siteID, reason, createdBy, endDate string

	args := os.Args[3:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--site":
			i++
			if i < len(args) {
				siteID = args[i]
			}
		case "--reason":
			i++
			if i < len(args) {
				reason = args[i]
			}
		case "--by":
			i++
			if i < len(args) {
				createdBy = args[i]
			}
		case "--end":
			i++
			if i < len(args) {
				endDate = args[i]
			}
		}
	}

	if siteID == "" || reason == "" {
		fmt.Fprintln(os.Stderr, "Usage: anprctl suspend create --site <site-id> --reason <reason> [--by <operator>] [--end <RFC3339>]")
		os.Exit(1)
	}

	req := &anpradmin.CreateSuspensionRequest{
		SiteID:    siteID,
		StartDate: time.Now(),
		Reason:    reason,
		CreatedBy: createdBy,
	}
	if endDate != "" {
		parsed, err := time.Parse(time.RFC3339, endDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --end, expected RFC3339: %v\n", err)
			os.Exit(1)
		}
		req.EndDate = &parsed
	}

	c, closeConn := client(addr)
	defer closeConn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := c.CreateSuspension(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("suspension opened: %s\n", resp.SuspensionID)
}

func cmdSuspendEnd(addr string) {
	var suspensionID, reason, endedBy string

	args := os.Args[3:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--id":
			i++
			if i < len(args) {
				suspensionID = args[i]
			}
		case "--reason":
			i++
			if i < len(args) {
				reason = args[i]
			}
		case "--by":
			i++
			if i < len(args) {
				endedBy = args[i]
			}
		}
	}

	if suspensionID == "" {
		fmt.Fprintln(os.Stderr, "Usage: anprctl suspend end --id <suspension-id> [--reason <reason>] [--by <operator>]")
		os.Exit(1)
	}

	c, closeConn := client(addr)
	defer closeConn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := c.EndSuspension(ctx, &anpradmin.EndSuspensionRequest{
		SuspensionID: suspensionID,
		Reason:       reason,
		EndedBy:      endedBy,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("suspension ended: %s\n", resp.SuspensionID)
}

// ----------------------------------------------------------------
// reconcile command
// ----------------------------------------------------------------

func cmdReconcile(addr string) {
	if len(os.Args) < 3 || os.Args[2] != "site" {
		fmt.Fprintln(os.Stderr, "Usage: anprctl reconcile site --site <site-id> [--limit 500]")
		os.Exit(1)
	}

	var siteID string
	limit := 500

	args := os.Args[3:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--site":
			i++
			if i < len(args) {
				siteID = args[i]
			}
		case "--limit":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &limit)
			}
		}
	}

	if siteID == "" {
		fmt.Fprintln(os.Stderr, "Usage: anprctl reconcile site --site <site-id> [--limit 500]")
		os.Exit(1)
	}

	c, closeConn := client(addr)
	defer closeConn()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resp, err := c.TriggerSiteReconciliation(ctx, &anpradmin.TriggerSiteReconciliationRequest{
		SiteID: siteID,
		Limit:  int32(limit),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("reconciled site %s: %d sessions re-evaluated, %d decisions updated\n",
		siteID, resp.SessionsReevaluated, resp.DecisionsUpdated)
}

// ----------------------------------------------------------------
// review command
// ----------------------------------------------------------------

func cmdReview(addr string) {
	if len(os.Args) < 3 || os.Args[2] != "discard" {
		fmt.Fprintln(os.Stderr, "Usage: anprctl review discard --reason <reason-tag> [--limit 100]")
		os.Exit(1)
	}

	var reasonTag string
	limit := 100

	args := os.Args[3:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--reason":
			i++
			if i < len(args) {
				reasonTag = args[i]
			}
		case "--limit":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &limit)
			}
		}
	}

	if reasonTag == "" {
		fmt.Fprintln(os.Stderr, "Usage: anprctl review discard --reason <reason-tag> [--limit 100]")
		os.Exit(1)
	}

	c, closeConn := client(addr)
	defer closeConn()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resp, err := c.BulkDiscardReviews(ctx, &anpradmin.BulkDiscardReviewsRequest{
		ReasonTag: reasonTag,
		Limit:     int32(limit),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("discarded %d reviews, %d failed\n", resp.Discarded, resp.Failed)
}
