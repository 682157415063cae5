package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/devrev/securegpx/internal/errors"
	"github.com/devrev/securegpx/internal/server"
	"github.com/devrev/securegpx/internal/watch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "securegpx",
		Short:         "Record, edit and verify hash-chained GPX tracks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default $"+configEnv+", built-in defaults when unset)")

	cmd.AddCommand(
		newValidateCmd(opts),
		newRepairCmd(opts),
		newInfoCmd(opts),
		newMoveCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}

// withApp loads the config and the gpx file, runs fn and tears down
func withApp(cmd *cobra.Command, opts *rootOptions, path string, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, cfg.Queue.Name)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.load(ctx, path); err != nil {
		return err
	}
	return fn(ctx, a)
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check the hash chain of a GPX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, args[0], func(ctx context.Context, a *app) error {
				valid, err := a.validate(ctx)
				if err != nil {
					return err
				}
				size := a.handler.Store().Size()
				if !valid {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: invalid (%d points)\n", args[0], size)
					return errors.ChainBroken(size)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d points)\n", args[0], size)
				return nil
			})
		},
	}
}

func newRepairCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "repair FILE",
		Short: "Rewrite every hash of a GPX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = args[0]
			}
			return withApp(cmd, opts, args[0], func(ctx context.Context, a *app) error {
				var valid bool
				if err := a.handler.Repair(func(v bool) { valid = v }); err != nil {
					return err
				}
				if err := a.save(ctx, output); err != nil {
					return err
				}
				if !valid && a.handler.Store().Size() > 0 {
					return errors.DigestUnavailable(a.cfg.Chain.Algorithm)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "repaired %d points into %s\n", a.handler.Store().Size(), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the repaired document here instead of in place")
	return cmd
}

func newInfoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "List the waypoints and track segments of a GPX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, args[0], func(ctx context.Context, a *app) error {
				valid, err := a.validate(ctx)
				if err != nil {
					return err
				}
				s := a.handler.Store()
				fmt.Fprintf(cmd.OutOrStdout(), "name: %s\npoints: %d\ntracks: %d\nvalid: %t\n\n",
					s.Name(), s.Size(), len(s.Tracks()), valid)

				r := newTableRenderer(cmd.OutOrStdout())
				for _, e := range s.Elements() {
					if err := r.RenderElement(e); err != nil {
						return err
					}
				}
				return r.Flush()
			})
		},
	}
}

func newMoveCmd(opts *rootOptions) *cobra.Command {
	var (
		track  string
		index  int
		dest   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "move FILE",
		Short: "Move a point, the rest of its segment and all later segments into another track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = args[0]
			}
			return withApp(cmd, opts, args[0], func(ctx context.Context, a *app) error {
				points := a.handler.TrackLocations(track)
				if len(points) == 0 {
					return errors.TrackNotFound(track)
				}
				if index < 0 || index >= len(points) {
					return errors.PointNotFound(fmt.Sprintf("track %s has no point %d", track, index)).
						WithDetail("points", len(points))
				}
				if err := a.handler.ChangeTrackFromWaypoint(points[index], dest); err != nil {
					return err
				}
				if err := a.save(ctx, output); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d points, %s: %d points\n",
					track, len(a.handler.TrackLocations(track)), dest, len(a.handler.TrackLocations(dest)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&track, "track", "", "source track")
	cmd.Flags().IntVar(&index, "index", 0, "position of the first moved point in the time-sorted source track")
	cmd.Flags().StringVar(&dest, "to", "", "destination track, created when missing")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the result here instead of in place")
	_ = cmd.MarkFlagRequired("track")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch FILE",
		Short: "Re-validate a GPX file whenever it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, cfg.Queue.Name)
			if err != nil {
				return err
			}
			defer a.close()

			var (
				mu     sync.Mutex
				last   watch.Result
				checks int
			)
			w := watch.New(watch.Config{
				Path:     args[0],
				Debounce: cfg.Watch.Debounce,
				OnResult: func(r watch.Result) {
					mu.Lock()
					last = r
					checks++
					mu.Unlock()
					state := "valid"
					if !r.Initialized {
						state = "unreadable"
					} else if !r.Valid {
						state = "invalid"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s (%d points)\n",
						r.CheckedAt.Format("15:04:05"), r.Path, state, r.Points)
				},
			}, a.handler, a.logger)

			if cfg.Metrics.Enabled {
				ms := server.NewMetricsServer(&server.MetricsServerConfig{
					Port:     cfg.Metrics.Port,
					Path:     cfg.Metrics.Path,
					Gatherer: a.registry,
					Ready: func() (bool, string) {
						mu.Lock()
						defer mu.Unlock()
						switch {
						case checks == 0:
							return false, "not_checked"
						case !last.Initialized:
							return false, "unreadable"
						case !last.Valid:
							return false, "chain_broken"
						}
						return true, ""
					},
				}, a.logger)
				if err := ms.Start(); err != nil {
					return err
				}
				defer func() {
					if err := ms.Stop(); err != nil {
						a.logger.Warn("Failed to stop metrics server", zap.Error(err))
					}
				}()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.logger.Info("Watching gpx file", zap.String("path", args[0]))
			return w.Run(ctx)
		},
	}
}
