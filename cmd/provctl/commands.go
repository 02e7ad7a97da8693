package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/docprov-backend/internal/data/db"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update every table and index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()
			store, err := db.NewService(cfg.Database, log)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.AutoMigrateAll(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <document-id>",
		Short: "Print the PROV-O graph of a document's family as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			g, err := a.Documents.ExportProvenance(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(g)
		},
	}
}

func newPurgeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge <root-document-id>",
		Short: "Delete a document family and everything derived from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to purge %s without --yes", id)
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			report, err := a.Documents.PurgeFamily(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}

func newBackfillCmd() *cobra.Command {
	var (
		documentID   string
		artifactType string
		dryRun       bool
	)
	cmd := &cobra.Command{
		Use:   "backfill-groups",
		Short: "Attach artifacts written before groups existed to a group per (document, type, method)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var docID uuid.UUID
			if strings.TrimSpace(documentID) != "" {
				id, err := parseID(documentID)
				if err != nil {
					return err
				}
				docID = id
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			dbc := dbctx.Context{Ctx: cmd.Context()}
			rows, err := a.Repos.Artifacts.ListUngrouped(dbc, docID, strings.TrimSpace(artifactType))
			if err != nil {
				return err
			}
			seen := map[string]bool{}
			groups := 0
			for _, art := range rows {
				key := art.DocumentID.String() + "|" + art.ArtifactType + "|" + strings.TrimSpace(art.MethodKey)
				if seen[key] {
					continue
				}
				seen[key] = true
				groups++
				if dryRun {
					fmt.Fprintf(cmd.OutOrStdout(), "would backfill %s\n", key)
					continue
				}
				g, err := a.Aggregates.Registry.BackfillLegacyGroup(dbc, art)
				if err != nil {
					return fmt.Errorf("backfill %s: %w", key, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> group %s\n", key, g.ID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d ungrouped artifacts, %d groups\n", len(rows), groups)
			return nil
		},
	}
	cmd.Flags().StringVar(&documentID, "document", "", "only this document version")
	cmd.Flags().StringVar(&artifactType, "type", "", "only this artifact type")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be grouped")
	return cmd
}

func newRecommendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <document-id>",
		Short: "List suggested next actions for a document's family",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			recs, err := a.Documents.Recommend(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(recs)
		},
	}
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
