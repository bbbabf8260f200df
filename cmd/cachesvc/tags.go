package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oriys/cachesvc/internal/cache"
)

func tagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Work with tag groups",
	}
	cmd.AddCommand(tagGetCmd(), tagRmCmd(), tagListCmd())
	return cmd
}

func tagGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <tag>",
		Short: "Print the live entries of a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *cache.Cache) error {
				return printJSON(c.GetTagData(ctx, args[0]))
			})
		},
	}
}

func tagRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <tag>",
		Short: "Remove every entry of a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *cache.Cache) error {
				return c.RemoveTag(ctx, args[0])
			})
		},
	}
}

func tagListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tag names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *cache.Cache) error {
				for _, t := range c.Tags(ctx) {
					fmt.Println(t)
				}
				return nil
			})
		},
	}
}
