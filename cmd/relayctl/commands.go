// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/aiku/relaybot/pkg/adminapi"
	"github.com/aiku/relaybot/pkg/config"
	"github.com/aiku/relaybot/pkg/opslog"
	"github.com/aiku/relaybot/pkg/prefstore"
	"github.com/aiku/relaybot/pkg/relay"
)

// env is what every command needs after the config is loaded.
type env struct {
	cfg   *config.Config
	log   *zerolog.Logger
	store *prefstore.Store
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"), !c.Bool("no-update"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 10)
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to initialize logger: %v", err), 12)
	}
	store, err := prefstore.Open(cfg.Store.Path, *log)
	if err != nil {
		return nil, cli.Exit(err.Error(), 13)
	}
	return &env{cfg: cfg, log: log, store: store}, nil
}

// withEnv wraps a command action with config loading and store cleanup.
func withEnv(fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := setup(c)
		if err != nil {
			return err
		}
		defer func() {
			if err := e.store.Close(); err != nil {
				e.log.Warn().Err(err).Msg("Failed to close store")
			}
		}()
		return fn(c, e)
	}
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, cli.Exit(fmt.Sprintf("invalid user id %q", raw), 2)
	}
	return id, nil
}

func requireArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return cli.Exit(fmt.Sprintf("usage: %s %s", c.Command.HelpName, c.Command.ArgsUsage), 2)
	}
	return nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the admin API",
		Action: withEnv(func(c *cli.Context, e *env) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = e.log.WithContext(ctx)

			reporter := opsReporter(ctx, e)
			_ = reporter.Report(ctx, fmt.Sprintf("relayctl %s started", Tag))

			server := adminapi.New(e.store, nil, *e.log)
			return server.ListenAndServe(ctx, e.cfg.AdminAPIAddr)
		}),
	}
}

// opsReporter always logs reports and also posts them to Mattermost when
// configured and reachable.
func opsReporter(ctx context.Context, e *env) relay.OpsReporter {
	reporters := opslog.Multi{opslog.Log{Logger: e.log.With().Str("component", "ops").Logger()}}
	if !e.cfg.Ops.Enabled() {
		return reporters
	}
	mm := opslog.NewMattermost(e.cfg.Ops.MattermostURL, e.cfg.Ops.MattermostToken, e.cfg.Ops.MattermostChannelID)
	name, err := mm.Check(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("Mattermost ops channel unavailable, reports will only be logged")
		return reporters
	}
	e.log.Info().Str("username", name).Msg("Reporting to Mattermost ops channel")
	return append(reporters, mm)
}

func lockCommand() *cli.Command {
	return &cli.Command{
		Name:      "lock",
		Usage:     "Protect a source channel from relaying",
		ArgsUsage: "<channel link or id>",
		Action: withEnv(func(c *cli.Context, e *env) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			id, err := relay.ChannelFromLink(c.Args().First())
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			if err = e.store.LockSource(c.Context, id); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Locked %d\n", id)
			return nil
		}),
	}
}

func protectedCommand() *cli.Command {
	return &cli.Command{
		Name:  "protected",
		Usage: "List protected source channels",
		Action: withEnv(func(c *cli.Context, e *env) error {
			protected, err := e.store.ListProtectedSources(c.Context)
			if err != nil {
				return err
			}
			renderProtected(c.App.Writer, protected)
			return nil
		}),
	}
}

func renderProtected(w io.Writer, protected map[int64]struct{}) {
	ids := lo.Keys(protected)
	slices.Sort(ids)
	table := newTable(w, "Source ID", "Link ID")
	for _, id := range ids {
		table.Append([]string{strconv.FormatInt(id, 10), relay.ParseChannelID(id)})
	}
	table.Render()
}

func destCommand() *cli.Command {
	return &cli.Command{
		Name:  "dest",
		Usage: "Manage per-user delivery destinations",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a destination",
				ArgsUsage: "<user id> <chat[/topic] or channel link>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Display name of the destination"},
				},
				Action: withEnv(func(c *cli.Context, e *env) error {
					if err := requireArgs(c, 2); err != nil {
						return err
					}
					userID, err := parseUserID(c.Args().Get(0))
					if err != nil {
						return err
					}
					dest, err := adminapi.ParseDestinationArg(c.Args().Get(1))
					if err != nil {
						return cli.Exit(err.Error(), 2)
					}
					dest.Name = c.String("name")
					added, err := e.store.AddDestination(c.Context, userID, dest)
					if err != nil {
						return err
					}
					if !added {
						fmt.Fprintf(c.App.Writer, "%d is already a destination\n", dest.ChatID)
						return nil
					}
					fmt.Fprintf(c.App.Writer, "Added %d\n", dest.ChatID)
					return nil
				}),
			},
			{
				Name:      "rm",
				Usage:     "Remove a destination",
				ArgsUsage: "<user id> <chat id>",
				Action: withEnv(func(c *cli.Context, e *env) error {
					if err := requireArgs(c, 2); err != nil {
						return err
					}
					userID, err := parseUserID(c.Args().Get(0))
					if err != nil {
						return err
					}
					chatID, err := relay.ChannelFromLink(c.Args().Get(1))
					if err != nil {
						return cli.Exit(err.Error(), 2)
					}
					removed, err := e.store.RemoveDestination(c.Context, userID, chatID)
					if err != nil {
						return err
					}
					if !removed {
						return cli.Exit(fmt.Sprintf("%d is not a destination", chatID), 1)
					}
					fmt.Fprintf(c.App.Writer, "Removed %d\n", chatID)
					return nil
				}),
			},
			{
				Name:      "ls",
				Usage:     "List destinations",
				ArgsUsage: "<user id>",
				Action: withEnv(func(c *cli.Context, e *env) error {
					if err := requireArgs(c, 1); err != nil {
						return err
					}
					userID, err := parseUserID(c.Args().First())
					if err != nil {
						return err
					}
					dests, err := e.store.GetDestinations(c.Context, userID)
					if err != nil {
						return err
					}
					renderDestinations(c.App.Writer, dests)
					return nil
				}),
			},
		},
	}
}

func renderDestinations(w io.Writer, dests []relay.Destination) {
	table := newTable(w, "Chat ID", "Topic", "Name")
	for _, dest := range dests {
		topic := "-"
		if dest.TopicID != 0 {
			topic = strconv.Itoa(dest.TopicID)
		}
		table.Append([]string{strconv.FormatInt(dest.ChatID, 10), topic, dest.Name})
	}
	table.Render()
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:      "reset",
		Usage:     "Reset a user's caption preferences",
		ArgsUsage: "<user id>",
		Action: withEnv(func(c *cli.Context, e *env) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			userID, err := parseUserID(c.Args().First())
			if err != nil {
				return err
			}
			if err = e.store.ResetUserPreferences(c.Context, userID); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Reset preferences of %d\n", userID)
			return nil
		}),
	}
}

// parsePreference validates a preference given on the command line and
// converts it to its stored form.
func parsePreference(key, raw string) (any, error) {
	switch key {
	case relay.PrefUploadType:
		if raw != relay.UploadTypeMedia && raw != relay.UploadTypeDocument {
			return nil, fmt.Errorf("upload_type must be %q or %q", relay.UploadTypeMedia, relay.UploadTypeDocument)
		}
		return raw, nil
	case relay.PrefUploadMethod:
		if raw != relay.UploadMethodStandard && raw != relay.UploadMethodStream {
			return nil, fmt.Errorf("upload_method must be %q or %q", relay.UploadMethodStandard, relay.UploadMethodStream)
		}
		return raw, nil
	case relay.PrefCustomCaption:
		return raw, nil
	case relay.PrefDeleteWords:
		words := lo.Compact(lo.Map(strings.Split(raw, ","), func(w string, _ int) string {
			return strings.TrimSpace(w)
		}))
		return lo.Uniq(words), nil
	case relay.PrefReplacements:
		replacements := make(map[string]string)
		for _, pair := range strings.Split(raw, ",") {
			from, to, ok := strings.Cut(pair, "=")
			from = strings.TrimSpace(from)
			if !ok || from == "" {
				return nil, fmt.Errorf("invalid replacement %q, want from=to", pair)
			}
			replacements[from] = strings.TrimSpace(to)
		}
		return replacements, nil
	default:
		return nil, fmt.Errorf("unknown preference %q", key)
	}
}

func prefCommand() *cli.Command {
	return &cli.Command{
		Name:  "pref",
		Usage: "Inspect and edit user preferences",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Set a preference",
				ArgsUsage: "<user id> <key> <value>",
				Description: "Keys: upload_type (media|document), upload_method (standard|stream), " +
					"custom_caption, delete_words (comma separated), replacement_words (from=to,...)",
				Action: withEnv(func(c *cli.Context, e *env) error {
					if err := requireArgs(c, 3); err != nil {
						return err
					}
					userID, err := parseUserID(c.Args().Get(0))
					if err != nil {
						return err
					}
					key := c.Args().Get(1)
					value, err := parsePreference(key, c.Args().Get(2))
					if err != nil {
						return cli.Exit(err.Error(), 2)
					}
					return e.store.SetUserValue(c.Context, userID, key, value)
				}),
			},
			{
				Name:      "show",
				Usage:     "Show a user's preferences",
				ArgsUsage: "<user id>",
				Action: withEnv(func(c *cli.Context, e *env) error {
					if err := requireArgs(c, 1); err != nil {
						return err
					}
					userID, err := parseUserID(c.Args().First())
					if err != nil {
						return err
					}
					prefs, err := loadPreferences(c.Context, e.store, userID)
					if err != nil {
						return err
					}
					renderPreferences(c.App.Writer, prefs)
					return nil
				}),
			},
		},
	}
}

// loadPreferences reads every editable preference of a user, formatted for
// display. Missing preferences are omitted.
func loadPreferences(ctx context.Context, store relay.PreferenceStore, userID int64) (map[string]string, error) {
	prefs := make(map[string]string)
	for _, key := range []string{relay.PrefUploadType, relay.PrefUploadMethod, relay.PrefCustomCaption} {
		var value string
		if found, err := store.GetUserValue(ctx, userID, key, &value); err != nil {
			return nil, err
		} else if found {
			prefs[key] = value
		}
	}
	var words []string
	if found, err := store.GetUserValue(ctx, userID, relay.PrefDeleteWords, &words); err != nil {
		return nil, err
	} else if found {
		prefs[relay.PrefDeleteWords] = strings.Join(words, ",")
	}
	var replacements map[string]string
	if found, err := store.GetUserValue(ctx, userID, relay.PrefReplacements, &replacements); err != nil {
		return nil, err
	} else if found {
		pairs := lo.MapToSlice(replacements, func(from, to string) string { return from + "=" + to })
		slices.Sort(pairs)
		prefs[relay.PrefReplacements] = strings.Join(pairs, ",")
	}
	return prefs, nil
}

func renderPreferences(w io.Writer, prefs map[string]string) {
	keys := lo.Keys(prefs)
	slices.Sort(keys)
	table := newTable(w, "Key", "Value")
	for _, key := range keys {
		table.Append([]string{key, prefs[key]})
	}
	table.Render()
}
