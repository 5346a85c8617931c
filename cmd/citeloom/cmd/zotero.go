package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sims2k/citeloom-sub000/internal/errs"
)

func newZoteroCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "zotero",
		Short: "Inspect the configured Zotero library directly, without ingesting",
	}

	root.AddCommand(newZoteroListCollectionsCmd())
	root.AddCommand(newZoteroBrowseCollectionCmd())
	root.AddCommand(newZoteroRecentItemsCmd())
	root.AddCommand(newZoteroListTagsCmd())

	return root
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func newZoteroListCollectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-collections",
		Short: "List every collection visible to the configured Zotero source(s)",
		RunE: func(cmd *cobra.Command, args []string) error {
			correlationID := newCorrelationID()
			defer fmt.Println(correlationID)

			log := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			router, err := buildRouter(cfg, log)
			if err != nil {
				return err
			}
			collections, err := router.ListCollections(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(collections)
		},
	}
}

func newZoteroBrowseCollectionCmd() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "browse-collection <name>",
		Short: "List every item in a named Zotero collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			correlationID := newCorrelationID()
			defer fmt.Println(correlationID)

			log := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			router, err := buildRouter(cfg, log)
			if err != nil {
				return err
			}

			coll, found, err := router.FindCollectionByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return errs.New(errs.KindInvalidInput, fmt.Sprintf("no zotero collection named %q", args[0]))
			}

			items, err := router.GetCollectionItems(cmd.Context(), coll.Key, recursive)
			if err != nil {
				return err
			}
			return printJSON(items)
		},
	}

	cmd.Flags().BoolVar(&recursive, "recursive", false, "include items from subcollections")
	return cmd
}

func newZoteroRecentItemsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent-items",
		Short: "List the most recently added/modified items in the library",
		RunE: func(cmd *cobra.Command, args []string) error {
			correlationID := newCorrelationID()
			defer fmt.Println(correlationID)

			log := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			router, err := buildRouter(cfg, log)
			if err != nil {
				return err
			}

			items, err := router.GetRecentItems(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(items)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of items to return")
	return cmd
}

func newZoteroListTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-tags",
		Short: "List every tag in the configured Zotero library",
		RunE: func(cmd *cobra.Command, args []string) error {
			correlationID := newCorrelationID()
			defer fmt.Println(correlationID)

			log := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			router, err := buildRouter(cfg, log)
			if err != nil {
				return err
			}

			tags, err := router.ListTags(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(tags)
		},
	}
}
