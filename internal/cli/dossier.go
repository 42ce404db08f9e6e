package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"factcheck/api/internal/schema"
	"factcheck/api/internal/store"
)

var (
	ensureTitle   string
	ensureAliases []string
	recountReason string
	seedFile      string
)

var ensureCmd = &cobra.Command{
	Use:   "ensure <statement-id>",
	Short: "Get or create the dossier for a statement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			d, err := rt.service.EnsureForStatement(ctx, args[0], ensureTitle, ensureAliases)
			if err != nil {
				return err
			}
			return printDossier(cmd.OutOrStdout(), d)
		})
	},
}

var recountCmd = &cobra.Command{
	Use:   "recount <dossier>",
	Short: "Recompute denormalized counts, recording a revision only when they change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			d, err := rt.service.FindByAnyID(ctx, args[0])
			if err != nil {
				return err
			}
			counts, err := rt.service.UpdateCounts(ctx, d.DossierID, recountReason)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"dossierId": d.DossierID, "counts": counts, "changed": counts != d.Counts})
			}
			state := "unchanged"
			if counts != d.Counts {
				state = "updated"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: claims=%d sources=%d findings=%d edges=%d openQuestions=%d\n",
				d.DossierID, state, counts.Claims, counts.Sources, counts.Findings, counts.Edges, counts.OpenQuestions)
			return nil
		})
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "sync-status <dossier>",
	Short: "Derive claim statuses from effective findings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			d, err := rt.service.FindByAnyID(ctx, args[0])
			if err != nil {
				return err
			}
			changed, err := rt.service.SyncClaimStatuses(ctx, d.DossierID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d claim status(es) changed\n", d.DossierID, changed)
			return nil
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <dossier>",
	Short: "Upsert claims and open questions from an analysis JSON document",
	Long: `Seed reads an analysis document ({"claims": [...], "openQuestions": [...],
"createdByRole": "pipeline"}) from --file, or stdin when --file is "-", and
upserts it into the dossier. Rerunning the same document is idempotent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		analysis, err := readAnalysis(cmd.InOrStdin(), seedFile)
		if err != nil {
			return err
		}
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			d, err := rt.service.FindByAnyID(ctx, args[0])
			if err != nil {
				return err
			}
			result, err := rt.service.SeedFromAnalysis(ctx, d.DossierID, analysis)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: claims +%d ~%d, questions +%d ~%d\n", d.DossierID,
				result.ClaimsInserted, result.ClaimsUpdated, result.QuestionsInserted, result.QuestionsUpdated)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(ensureCmd, recountCmd, syncStatusCmd, seedCmd)

	ensureCmd.Flags().StringVar(&ensureTitle, "title", "", "title for a newly created dossier")
	ensureCmd.Flags().StringSliceVar(&ensureAliases, "alias", nil, "alternative statement ids (repeatable)")
	recountCmd.Flags().StringVar(&recountReason, "reason", "counts recomputed by operator", "reason recorded on the revision")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "-", `analysis JSON file, "-" for stdin`)
}

func readAnalysis(stdin io.Reader, path string) (schema.Analysis, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return schema.Analysis{}, fmt.Errorf("open analysis: %w", err)
		}
		defer f.Close()
		r = f
	}
	var analysis schema.Analysis
	if err := json.NewDecoder(r).Decode(&analysis); err != nil {
		return schema.Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	if strings.TrimSpace(analysis.CreatedByRole) == "" {
		analysis.CreatedByRole = store.RolePipeline
	}
	return analysis, nil
}

func printDossier(w io.Writer, d store.Dossier) error {
	if asJSON {
		return printJSON(w, map[string]any{
			"dossierId":        d.DossierID,
			"statementId":      d.StatementID,
			"statementAliases": d.StatementAliases,
			"title":            d.Title,
			"status":           d.Status,
			"counts":           d.Counts,
			"lastRevisionHash": d.LastRevisionHash,
			"revisionSeq":      d.RevisionSeq,
		})
	}
	head := "-"
	if d.LastRevisionHash != nil {
		head = *d.LastRevisionHash
	}
	fmt.Fprintf(w, "%s (statement %s) status=%s seq=%d head=%s\n", d.DossierID, d.StatementID, d.Status, d.RevisionSeq, head)
	return nil
}
