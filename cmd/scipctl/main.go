// Command scipctl submits content to a SCIP server and inspects the caller's
// audit trail.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"scip/internal/client"
	"scip/internal/fingerprint"
	"scip/internal/models"
)

const usage = `Usage: scipctl [-api URL] [-v] <command> [flags]

Commands:
  register -email E -username U -password P
  login    -email E -password P
  logout
  analyze  <file>        (use - for stdin)
  logs     [-limit N]
  verify
`

func main() {
	global := flag.NewFlagSet("scipctl", flag.ExitOnError)
	api := global.String("api", envOr("SCIP_API_URL", "http://localhost:8080"), "SCIP server URL")
	verbose := global.Bool("v", false, "enable debug logging")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	global.Parse(os.Args[1:])

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stderr)
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	args := global.Args()
	if len(args) == 0 {
		global.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx, *api, args[0], args[1:]); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			logrus.WithFields(logrus.Fields{"status": apiErr.Status, "request_id": apiErr.RequestID}).Debug("Request failed")
		}
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, api, command string, args []string) error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"api": api, "command": command}).Debug("Running command")

	switch command {
	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		email := fs.String("email", "", "email address")
		username := fs.String("username", "", "display name")
		password := fs.String("password", os.Getenv("SCIP_PASSWORD"), "password (or SCIP_PASSWORD)")
		fs.Parse(args)
		if err := client.NewClient(api, "").Register(ctx, *email, *username, *password); err != nil {
			return err
		}
		color.Green("✓ Registered %s", *email)
		return nil

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "email address")
		password := fs.String("password", os.Getenv("SCIP_PASSWORD"), "password (or SCIP_PASSWORD)")
		fs.Parse(args)
		resp, err := client.NewClient(api, "").Login(ctx, *email, *password)
		if err != nil {
			return err
		}
		if err := saveSession(path, session{
			API:       api,
			Token:     resp.AccessToken,
			UserID:    resp.UserID,
			Email:     resp.Email,
			ExpiresAt: resp.ExpiresAt,
		}); err != nil {
			return err
		}
		logrus.WithField("path", path).Debug("Session saved")
		color.Green("✓ Logged in as %s (%s)", resp.Username, resp.Email)
		return nil

	case "logout":
		s, err := loadSession(path, time.Now())
		if err == nil {
			if err := client.NewClient(s.API, s.Token).Logout(ctx); err != nil {
				logrus.WithError(err).Warn("Server-side logout failed")
			}
		}
		if err := clearSession(path); err != nil {
			return err
		}
		color.Green("✓ Logged out")
		return nil
	}

	s, err := loadSession(path, time.Now())
	if err != nil {
		return err
	}
	c := client.NewClient(s.API, s.Token)

	switch command {
	case "analyze":
		if len(args) != 1 {
			return errors.New("analyze expects exactly one file argument")
		}
		content, err := readInput(args[0])
		if err != nil {
			return err
		}
		logrus.WithField("fingerprint", fingerprint.Short(fingerprint.Of(content))).Debug("Submitting content")
		resp, err := c.Analyze(ctx, string(content))
		if err != nil {
			return err
		}
		printEvaluation(resp)
		return nil

	case "logs":
		fs := flag.NewFlagSet("logs", flag.ExitOnError)
		limit := fs.Int("limit", 0, "maximum number of records (server default when 0)")
		fs.Parse(args)
		records, err := c.Logs(ctx, *limit)
		if err != nil {
			return err
		}
		return printLogs(records)

	case "verify":
		report, err := c.Verify(ctx)
		if err != nil {
			return err
		}
		if report.Valid {
			color.Green("✓ Audit chain intact: %d records, head %s", report.Records, fingerprint.Short(report.Head))
			return nil
		}
		color.Red("✗ Audit chain broken at record %s: %s", report.BrokenAt, report.Reason)
		return errors.New("audit chain verification failed")

	default:
		return fmt.Errorf("unknown command %q\n\n%s", command, usage)
	}
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func decisionColor(d models.Decision) *color.Color {
	if d == models.DecisionAccepted {
		return color.New(color.FgHiGreen, color.Bold)
	}
	return color.New(color.FgHiRed, color.Bold)
}

func printEvaluation(resp *client.EvaluationResponse) {
	decisionColor(resp.Decision).Printf("%s", resp.Decision)
	fmt.Printf("  risk %s  commit %s\n", strconv.FormatFloat(resp.RiskScore, 'f', -1, 64), resp.CommitHash)
	fmt.Printf("record  %s\n", resp.ID)
	if resp.Anchored() {
		fmt.Printf("anchor  %s\n", resp.AnchorToken)
	} else {
		color.Yellow("anchor  %s (ledger unavailable, record kept)", resp.AnchorToken)
	}
	if len(resp.Indicators) > 0 {
		fmt.Printf("matched %v\n", resp.Indicators)
	}
}

func printLogs(records []models.EvaluationRecord) error {
	if len(records) == 0 {
		color.Yellow("No evaluations yet.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	if err := table.Append([]string{"Time", "Commit", "Risk", "Decision", "Anchor"}); err != nil {
		return fmt.Errorf("failed to append header row: %w", err)
	}
	for _, r := range records {
		anchorToken := r.AnchorToken
		if len(anchorToken) > 20 {
			anchorToken = anchorToken[:20] + "…"
		}
		row := []string{
			r.CreatedAt.Local().Format(time.DateTime),
			fingerprint.Short(r.Fingerprint),
			strconv.FormatFloat(r.RiskScore, 'f', -1, 64),
			decisionColor(r.Decision).Sprint(r.Decision),
			anchorToken,
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	return table.Render()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
