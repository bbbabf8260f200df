package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/cachesvc/internal/cache"
)

// parseValue reads a command-line value as JSON, falling back to a plain
// string when it is not valid JSON.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setCmd() *cobra.Command {
	var (
		maxAge  time.Duration
		expires string
		tag     string
	)

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value",
		Long:  "Store a value. VALUE is parsed as JSON and stored as a string when it is not valid JSON.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []cache.SetOption
			if expires != "" {
				t, err := time.Parse(time.RFC3339, expires)
				if err != nil {
					return fmt.Errorf("invalid --expires: %w", err)
				}
				opts = append(opts, cache.Expires(t))
			}
			if cmd.Flags().Changed("max-age") {
				opts = append(opts, cache.MaxAge(maxAge))
			}
			if tag != "" {
				opts = append(opts, cache.Tag(tag))
			}

			return withCache(func(ctx context.Context, c *cache.Cache) error {
				return c.Set(ctx, args[0], parseValue(args[1]), opts...)
			})
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Lifetime relative to now (e.g. 90s, 1h)")
	cmd.Flags().StringVar(&expires, "expires", "", "Absolute expiration time (RFC3339)")
	cmd.Flags().StringVar(&tag, "tag", "", "Tag to group the entry under")

	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *cache.Cache) error {
				v, ok := c.Get(ctx, args[0])
				if !ok {
					return fmt.Errorf("key not found: %s", args[0])
				}
				return printJSON(v)
			})
		},
	}
}

func existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <key>",
		Short: "Report whether a key holds a truthy value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *cache.Cache) error {
				fmt.Println(c.Exists(ctx, args[0]))
				return nil
			})
		},
	}
}

func ttlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ttl <key>",
		Short: "Show the remaining lifetime of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *cache.Cache) error {
				ttl, state := c.TTL(ctx, args[0])
				switch {
				case state != cache.StatePresent:
					fmt.Printf("%s\n", state)
				case ttl < 0:
					fmt.Println("never")
				default:
					fmt.Println(ttl.Round(time.Millisecond))
				}
				return nil
			})
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>...",
		Short: "Remove keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *cache.Cache) error {
				for _, key := range args {
					if err := c.Remove(ctx, key); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry and the tag index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *cache.Cache) error {
				return c.RemoveAll(ctx)
			})
		},
	}
}

func keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *cache.Cache) error {
				keys, err := c.Keys(ctx)
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Println(k)
				}
				return nil
			})
		},
	}
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove expired entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *cache.Cache) error {
				n, err := c.PurgeExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("purged %d expired entries\n", n)
				return nil
			})
		},
	}
}
