package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pfrederiksen/bimmerctl/internal/bmw"
	"github.com/pfrederiksen/bimmerctl/internal/config"
	"github.com/pfrederiksen/bimmerctl/internal/fleet"
	"github.com/pfrederiksen/bimmerctl/internal/store"
	"github.com/pfrederiksen/bimmerctl/internal/tui"
)

// App holds the wiring shared by every subcommand. Dependencies are
// built once in init, after the persistent flags have been parsed.
type App struct {
	version string
	out     io.Writer
	errOut  io.Writer

	email    string
	password string
	geo      string
	verbose  bool
	debug    bool

	log       *zap.Logger
	client    *bmw.Client
	fleet     *fleet.Fleet
	snapshots *store.Store
}

// NewRootCmd builds the bimmerctl command tree.
func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(&App{
		version: version,
		out:     os.Stdout,
		errOut:  os.Stderr,
	})
}

func newRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "bimmerctl",
		Short:         "Inspect and control MyBMW vehicles from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init()
		},
	}

	root.PersistentFlags().StringVar(&app.email, "email", "", "MyBMW account email")
	root.PersistentFlags().StringVar(&app.password, "password", "", "MyBMW account password")
	root.PersistentFlags().StringVar(&app.geo, "geo", "", "account region (na or row)")
	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "log request activity")
	root.PersistentFlags().BoolVar(&app.debug, "debug", false, "log request activity at debug level")

	root.AddCommand(
		app.loginCmd(),
		app.listCmd(),
		app.statusCmd(),
		app.infoCmd(),
		app.commandCmd("lock", "Lock the doors", (*fleet.Fleet).Lock),
		app.commandCmd("unlock", "Unlock the doors", (*fleet.Fleet).Unlock),
		app.commandCmd("lights", "Flash the headlights", (*fleet.Fleet).FlashLights),
		app.commandCmd("horn", "Honk the horn", (*fleet.Fleet).HonkHorn),
		app.climateCmd(),
		app.chargeCmd(),
		app.tripsCmd(),
		app.chargingCmd(),
		app.imageCmd(),
		app.watchCmd(),
		app.versionCmd(),
	)

	return root
}

// init builds the logger, vendor client, orchestrator and snapshot
// store from the parsed persistent flags.
func (a *App) init() error {
	a.log = zap.NewNop()
	if a.verbose || a.debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		if a.debug {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		log, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		a.log = log
	}

	creds, err := config.Load(config.Overrides{
		Email:    a.email,
		Password: a.password,
		Region:   a.geo,
	})
	if err != nil {
		return err
	}

	client, err := bmw.NewClient(creds, bmw.WithLogger(a.log))
	if err != nil {
		return err
	}
	a.client = client
	a.fleet = fleet.New(client, fleet.WithLogger(a.log))

	if st, err := store.Open(store.DefaultPath()); err == nil {
		a.snapshots = st
	} else {
		a.log.Warn("snapshot store unavailable", zap.Error(err))
	}

	return nil
}

// runner adapts an action to a cobra Run. Failures are reported on
// stderr without failing the process; the tool stays usable when one
// vehicle or endpoint misbehaves.
func (a *App) runner(fn func(ctx context.Context) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := fn(cmd.Context()); err != nil {
			fmt.Fprintf(a.errOut, "Error: %v\n", err)
		}
	}
}

func filterArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func (a *App) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in to the MyBMW account and persist the session",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a.runner(func(ctx context.Context) error {
				if err := a.client.Login(ctx, true); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Login successful.")
				return nil
			})(cmd, args)
		},
	}
}

func (a *App) listCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list [vin|model]",
		Short: "List the account's vehicles",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a.runner(func(ctx context.Context) error {
				vehicles, err := a.fleet.Vehicles(ctx, filterArg(args))
				if err != nil {
					return err
				}
				if jsonOut {
					return WriteJSON(a.out, vehicles)
				}
				WriteVehicleList(a.out, vehicles)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print raw JSON")

	return cmd
}

func (a *App) statusCmd() *cobra.Command {
	var jsonOut, rawOut, offline bool

	cmd := &cobra.Command{
		Use:   "status [vin|model]",
		Short: "Show the live status of each vehicle",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a.runner(func(ctx context.Context) error {
				if offline {
					return a.offlineStatus(ctx, filterArg(args), jsonOut)
				}

				vehicles, err := a.fleet.Details(ctx, filterArg(args))
				if err != nil {
					return err
				}
				a.snapshot(ctx, vehicles)

				if rawOut {
					return WriteJSON(a.out, vehicles)
				}
				if jsonOut {
					summaries := make([]StatusSummary, 0, len(vehicles))
					for _, v := range vehicles {
						summaries = append(summaries, Summarize(v))
					}
					return WriteJSON(a.out, summaries)
				}
				for _, v := range vehicles {
					WriteStatus(a.out, v)
				}
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print a JSON summary")
	cmd.Flags().BoolVar(&rawOut, "raw", false, "print the full vehicle records as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "answer from the last recorded snapshot")

	return cmd
}

// offlineStatus answers a status query from the snapshot store without
// touching the vendor API.
func (a *App) offlineStatus(ctx context.Context, vin string, jsonOut bool) error {
	if a.snapshots == nil {
		return fmt.Errorf("snapshot store unavailable")
	}
	if vin == "" {
		return fmt.Errorf("a VIN is required with --offline")
	}

	snap, err := a.snapshots.Latest(ctx, vin)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("no snapshot recorded for %s", vin)
	}

	if jsonOut {
		return WriteJSON(a.out, Summarize(snap.Vehicle))
	}
	fmt.Fprintf(a.out, "As of %s:\n", snap.TakenAt.Local().Format("2006-01-02 15:04"))
	WriteStatus(a.out, snap.Vehicle)
	return nil
}

func (a *App) infoCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "info [vin|model]",
		Short: "Show status plus recalls and charging settings",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a.runner(func(ctx context.Context) error {
				vehicles, err := a.fleet.Info(ctx, filterArg(args))
				if err != nil {
					return err
				}
				a.snapshot(ctx, vehicles)

				if jsonOut {
					return WriteJSON(a.out, vehicles)
				}
				for _, v := range vehicles {
					WriteStatus(a.out, v)
					for _, r := range v.Recalls {
						fmt.Fprintf(a.out, " ⚠️ Recall: %s (%s)\n", r.Title, r.Date)
					}
				}
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print raw JSON")

	return cmd
}

// commandCmd builds one of the simple remote command verbs.
func (a *App) commandCmd(use, short string, op func(*fleet.Fleet, context.Context, string) ([]*fleet.Vehicle, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [vin|model]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a.runner(func(ctx context.Context) error {
				vehicles, err := op(a.fleet, ctx, filterArg(args))
				if err != nil {
					return err
				}
				WriteCommandResult(a.out, vehicles)
				return nil
			})(cmd, args)
		},
	}
}

func (a *App) climateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "climate",
		Short: "Start or stop climate control",
	}
	cmd.AddCommand(
		a.commandCmd("start", "Start climate control", (*fleet.Fleet).StartClimate),
		a.commandCmd("stop", "Stop climate control", (*fleet.Fleet).StopClimate),
	)
	return cmd
}

func (a *App) chargeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charge",
		Short: "Start or stop charging",
	}
	cmd.AddCommand(
		a.commandCmd("start", "Start charging a plugged-in vehicle", (*fleet.Fleet).StartCharging),
		a.commandCmd("stop", "Stop an active charging session", (*fleet.Fleet).StopCharging),
	)
	return cmd
}

func (a *App) tripsCmd() *cobra.Command {
	var startStr, endStr string
	var short, jsonOut, csvOut bool

	cmd := &cobra.Command{
		Use:   "trips [vin|model]",
		Short: "Show trip history grouped by day",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a.runner(func(ctx context.Context) error {
				start, end, err := ParseRange(startStr, endStr, time.Now())
				if err != nil {
					return err
				}

				vehicles, err := a.fleet.TripHistory(ctx, filterArg(args), start, end)
				if err != nil {
					return err
				}

				if jsonOut {
					return WriteJSON(a.out, vehicles)
				}
				for _, v := range vehicles {
					if csvOut {
						if err := WriteTripsCSV(a.out, v); err != nil {
							return err
						}
						continue
					}
					WriteTrips(a.out, v, short)
				}
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&startStr, "start", "", "range start (YYYY-MM or YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end", "", "range end (YYYY-MM or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&short, "short", false, "one line per day")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print raw JSON")
	cmd.Flags().BoolVar(&csvOut, "csv", false, "print CSV records")

	return cmd
}

func (a *App) chargingCmd() *cobra.Command {
	var startStr, endStr string
	var jsonOut, csvOut bool

	cmd := &cobra.Command{
		Use:   "charging [vin|model]",
		Short: "Show charging session history",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a.runner(func(ctx context.Context) error {
				start, end, err := ParseRange(startStr, endStr, time.Now())
				if err != nil {
					return err
				}

				vehicles, err := a.fleet.ChargingHistory(ctx, filterArg(args), start, end)
				if err != nil {
					return err
				}

				if jsonOut {
					return WriteJSON(a.out, vehicles)
				}
				for _, v := range vehicles {
					if csvOut {
						if err := WriteChargingCSV(a.out, v); err != nil {
							return err
						}
						continue
					}
					WriteCharging(a.out, v)
				}
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&startStr, "start", "", "range start (YYYY-MM or YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end", "", "range end (YYYY-MM or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print raw JSON")
	cmd.Flags().BoolVar(&csvOut, "csv", false, "print CSV records")

	return cmd
}

func (a *App) imageCmd() *cobra.Command {
	var view string

	cmd := &cobra.Command{
		Use:   "image [vin|model]",
		Short: "Save a rendered picture of each vehicle",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a.runner(func(ctx context.Context) error {
				vehicles, err := a.fleet.Vehicles(ctx, filterArg(args))
				if err != nil {
					return err
				}
				for _, v := range vehicles {
					png, err := a.client.VehicleImage(ctx, v.VIN, view)
					if err != nil {
						return err
					}
					name := v.VIN + ".png"
					if err := os.WriteFile(name, png, 0644); err != nil {
						return fmt.Errorf("write %s: %w", name, err)
					}
					fmt.Fprintf(a.out, "Saved %s\n", name)
				}
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&view, "view", bmw.ViewFront,
		"camera angle (FrontView, RearView, SideViewLeft, SideViewRight)")

	return cmd
}

func (a *App) watchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch [vin|model]",
		Short: "Watch live vehicle status in a dashboard",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a.runner(func(ctx context.Context) error {
				model := tui.NewModel(a.fleet, a.snapshots, filterArg(args), interval)
				program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
				_, err := program.Run()
				return err
			})(cmd, args)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "polling interval")

	return cmd
}

func (a *App) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "bimmerctl version %s\n", a.version)
		},
	}
}

// snapshot records the observed vehicles in the local store. Best
// effort; a broken store never fails the command.
func (a *App) snapshot(ctx context.Context, vehicles []*fleet.Vehicle) {
	if a.snapshots == nil {
		return
	}
	now := time.Now()
	for _, v := range vehicles {
		if err := a.snapshots.Save(ctx, v, now); err != nil {
			a.log.Debug("snapshot not saved", zap.String("vin", v.VIN), zap.Error(err))
		}
	}
}
