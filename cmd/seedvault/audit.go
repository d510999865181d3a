package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// Audit flags
var (
	auditLimit int
	auditSince string
	auditJSON  bool
)

// Audit export flags
var (
	auditExportFormat string
	auditExportSince  string
	auditExportUntil  string
	auditExportOutput string
)

// Audit prune flags
var (
	auditPruneOlderThan string
	auditPruneDryRun    bool
	auditPruneForce     bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditPruneCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h, 7d)")
	auditListCmd.Flags().BoolVar(&auditJSON, "json", false, "Print events as JSON")

	auditExportCmd.Flags().StringVar(&auditExportFormat, "format", "json", "Output format: json, csv")
	auditExportCmd.Flags().StringVar(&auditExportSince, "since", "", "Export events since duration (e.g., 30d)")
	auditExportCmd.Flags().StringVar(&auditExportUntil, "until", "", "Export events until date (RFC 3339)")
	auditExportCmd.Flags().StringVarP(&auditExportOutput, "output", "o", "", "Output file (default stdout)")

	auditPruneCmd.Flags().StringVar(&auditPruneOlderThan, "older-than", "", "Delete events older than duration (e.g., 12m, 1y)")
	auditPruneCmd.Flags().BoolVar(&auditPruneDryRun, "dry-run", false, "Show how many events would be deleted")
	auditPruneCmd.Flags().BoolVarP(&auditPruneForce, "force", "f", false, "Skip the confirmation prompt")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the tamper-evident audit log",
	Long: `Inspect the audit log kept beside the vault.

Each event is chained to the previous one with an HMAC keyed from the
recovery phrase, so verifying the chain requires the vault password.
Events never contain the phrase or passwords.`,
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := sinceTime(auditSince)
		if err != nil {
			return err
		}
		events, err := v.AuditLog(cfg.VaultDir).List(auditLimit, since)
		if err != nil {
			return fmt.Errorf("failed to read audit log: %w", err)
		}

		out := cmd.OutOrStdout()
		if auditJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		}
		if len(events) == 0 {
			fmt.Fprintln(out, "No audit events")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tOPERATION\tSOURCE\tRESULT")
		for _, e := range events {
			ts := e.Timestamp
			if t, err := e.Time(); err == nil {
				ts = t.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ts, e.Operation, e.Actor.Source, e.Result)
		}
		return w.Flush()
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := unlock(cmd); err != nil {
			return err
		}
		defer v.Lock()

		result, err := v.VerifyAudit()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		out := cmd.OutOrStdout()
		if result.FirstSequence > 1 {
			fmt.Fprintf(out, "Chain starts at record %d (older records pruned)\n", result.FirstSequence)
		}
		if !result.Valid {
			fmt.Fprintf(out, "Audit log verification FAILED (%d of %d records verified)\n",
				result.RecordsVerified, result.RecordsTotal)
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  - %s\n", e)
			}
			return fmt.Errorf("audit log integrity check failed")
		}
		fmt.Fprintf(out, "Audit log verified: %d records\n", result.RecordsTotal)
		return nil
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export audit events as JSON or CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := sinceTime(auditExportSince)
		if err != nil {
			return err
		}
		var until time.Time
		if auditExportUntil != "" {
			if until, err = time.Parse(time.RFC3339, auditExportUntil); err != nil {
				return fmt.Errorf("invalid --until %q: want RFC 3339", auditExportUntil)
			}
		}

		w := cmd.OutOrStdout()
		if auditExportOutput != "" {
			f, err := os.OpenFile(auditExportOutput, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := v.AuditLog(cfg.VaultDir).Export(w, auditExportFormat, since, until); err != nil {
			return err
		}
		if auditExportOutput != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Audit log exported to %s\n", auditExportOutput)
		}
		return nil
	},
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old audit log entries",
	Long: `Delete audit events older than a duration.

The chain stays verifiable from the oldest remaining record onwards.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditPruneOlderThan == "" {
			return fmt.Errorf("--older-than flag is required")
		}
		duration, err := parseDuration(auditPruneOlderThan)
		if err != nil {
			return fmt.Errorf("invalid older-than format: %w", err)
		}

		// Only someone who can unlock may shorten the log
		if err := unlock(cmd); err != nil {
			return err
		}
		defer v.Lock()

		out := cmd.OutOrStdout()
		log := v.AuditLog(cfg.VaultDir)
		count, err := log.PrunePreview(duration)
		if err != nil {
			return fmt.Errorf("failed to preview prune: %w", err)
		}
		if auditPruneDryRun {
			fmt.Fprintf(out, "Would delete %d audit log entries older than %s\n", count, auditPruneOlderThan)
			return nil
		}
		if count == 0 {
			fmt.Fprintln(out, "No audit log entries to delete")
			return nil
		}

		if !auditPruneForce {
			ok, err := confirm(cmd, fmt.Sprintf("This will delete %d audit log entries older than %s. Are you sure?",
				count, auditPruneOlderThan))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Aborted")
				return nil
			}
		}

		deleted, err := log.Prune(duration)
		if err != nil {
			return fmt.Errorf("failed to prune audit logs: %w", err)
		}
		fmt.Fprintf(out, "Deleted %d audit log entries\n", deleted)
		return nil
	},
}

func sinceTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := parseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since format: %w", err)
	}
	return time.Now().Add(-d), nil
}

// parseDuration parses a duration string like "30d", "1y", "24h".
// "m" means months here; Go durations such as "90m0s" still work.
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return time.ParseDuration(s)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative duration: %s", s)
	}

	day := 24 * time.Hour
	switch unit {
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * day, nil
	case 'w':
		return time.Duration(value) * 7 * day, nil
	case 'm':
		return time.Duration(value) * 30 * day, nil
	case 'y':
		return time.Duration(value) * 365 * day, nil
	default:
		return time.ParseDuration(s)
	}
}
