package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"factcheck/api/internal/archive"
	"factcheck/api/internal/ledger"
	"factcheck/api/internal/search"
)

var (
	archiveForce bool
	errChain     = errors.New("revision chain does not verify")
)

var verifyCmd = &cobra.Command{
	Use:   "verify <dossier>",
	Short: "Replay a dossier's revisions and check every hash link against the head",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			d, err := rt.service.FindByAnyID(ctx, args[0])
			if err != nil {
				return err
			}
			report, err := rt.service.VerifyChain(ctx, d.DossierID)
			if err != nil {
				return err
			}
			if asJSON {
				if err := printJSON(cmd.OutOrStdout(), map[string]any{"dossierId": d.DossierID, "chain": report}); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), describeReport(d.DossierID, report))
			}
			if !report.Valid {
				return fmt.Errorf("%s: %w", d.DossierID, errChain)
			}
			return nil
		})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <dossier>",
	Short: "Upload a verified chain snapshot to object storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			if strings.TrimSpace(rt.cfg.ArchiveEndpoint) == "" {
				return errors.New("ARCHIVE_ENDPOINT is not set")
			}
			d, err := rt.service.FindByAnyID(ctx, args[0])
			if err != nil {
				return err
			}
			snap, err := rt.service.ChainSnapshot(ctx, d.DossierID)
			if err != nil {
				return err
			}
			if !snap.Report.Valid && !archiveForce {
				return fmt.Errorf("%s: %w (use --force to archive anyway)", describeReport(d.DossierID, snap.Report), errChain)
			}

			archiver, err := archive.NewMinioArchiver(rt.cfg.ArchiveEndpoint, rt.cfg.ArchiveAccessKey, rt.cfg.ArchiveSecretKey,
				rt.cfg.ArchiveBucket, rt.cfg.ArchiveUseSSL)
			if err != nil {
				return err
			}
			if err := archiver.EnsureBucket(ctx); err != nil {
				return err
			}
			key, err := archive.Upload(ctx, archiver, snap, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived %d revision(s) to %s/%s\n", len(snap.Revisions), rt.cfg.ArchiveBucket, key)
			return nil
		})
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex <dossier>",
	Short: "Push a dossier's claims, open questions and sources to Meilisearch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			if strings.TrimSpace(rt.cfg.MeiliURL) == "" {
				return errors.New("MEILI_URL is not set")
			}
			d, err := rt.service.FindByAnyID(ctx, args[0])
			if err != nil {
				return err
			}
			meili := search.NewMeili(rt.cfg.MeiliURL, rt.cfg.MeiliMasterKey)
			defer meili.Close()
			if err := search.NewService(meili, nil).ReindexDossier(ctx, rt.store, d.DossierID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reindexed %s\n", d.DossierID)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd, archiveCmd, reindexCmd)
	archiveCmd.Flags().BoolVar(&archiveForce, "force", false, "archive even when the chain does not verify")
}

func describeReport(dossierID string, report ledger.ChainReport) string {
	if report.Valid {
		return fmt.Sprintf("%s: chain valid (%d chained, %d unchained)", dossierID, report.Checked, report.Unchained)
	}
	if report.BreakIndex >= 0 {
		return fmt.Sprintf("%s: chain broken at revision %d: %s", dossierID, report.BreakIndex, report.Reason)
	}
	return fmt.Sprintf("%s: %s", dossierID, report.Reason)
}
