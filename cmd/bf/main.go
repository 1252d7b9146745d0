package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bitfit/internal/app"
	"bitfit/internal/config"
	"bitfit/internal/db"
	"bitfit/internal/domain"
	"bitfit/internal/engine"
	"bitfit/internal/oracle"
	"bitfit/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bf",
	Short: "BitFitness CLI",
	Long: `BitFitness is proof-of-work for your body: log workouts as blocks,
let the oracle score your photo evidence, stack streaks, and settle
challenge rewards in sats.

- Workout blocks: every session is a block in your chain (exercise, reps, sets, optional photo).
- Mempool: blocks waiting for validator review (pending or flagged by the oracle).
- Challenges: multi-day commitments with sats rewards; progress counts distinct workout days.
- Relay: a read-only view of peer activity; import what you want into your own log.
- Everything derived (streak, totals, challenge days) is recomputed from the log, never stored ahead of it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BITFIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "actor identifier (defaults to the configured participant)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(workoutCmd())
	rootCmd.AddCommand(mempoolCmd())
	rootCmd.AddCommand(validatorCmd())
	rootCmd.AddCommand(challengeCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"), newLogger())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if viper.GetBool("json") {
		log.SetLevel(logrus.ErrorLevel)
	}
	return log
}

func actorID(a *app.Context) string {
	if id := viper.GetString("actor-id"); id != "" {
		return id
	}
	return a.Config.Participant.Name
}

// workout

func workoutCmd() *cobra.Command {
	wk := &cobra.Command{Use: "workout", Short: "Log and inspect workout blocks"}
	wk.AddCommand(workoutLogCmd())
	wk.AddCommand(workoutListCmd())
	wk.AddCommand(workoutShowCmd())
	wk.AddCommand(workoutImportCmd())
	return wk
}

func workoutLogCmd() *cobra.Command {
	var exercise, photoPath string
	var reps, sets, duration int
	var selfAttested bool
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Submit a workout block",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				draft := engine.WorkoutDraft{
					Exercise:     exercise,
					Reps:         reps,
					Sets:         sets,
					SelfAttested: selfAttested,
					Submitter:    actorID(a),
				}
				if cmd.Flags().Changed("duration") {
					draft.DurationSecs = &duration
				}
				if photoPath != "" {
					data, err := os.ReadFile(photoPath)
					if err != nil {
						return fmt.Errorf("read photo: %w", err)
					}
					encoded := base64.StdEncoding.EncodeToString(data)
					draft.Photo = &encoded
				}
				w, err := a.Engine.SubmitWorkout(ctx, draft)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&exercise, "exercise", "", "exercise name (see bf config show for the catalog)")
	cmd.Flags().IntVar(&reps, "reps", 0, "repetitions")
	cmd.Flags().IntVar(&sets, "sets", 1, "sets")
	cmd.Flags().IntVar(&duration, "duration", 0, "duration in seconds (time-based exercises only)")
	cmd.Flags().StringVar(&photoPath, "photo", "", "path to proof photo")
	cmd.Flags().BoolVar(&selfAttested, "self-attested", false, "submit without photo evidence")
	_ = cmd.MarkFlagRequired("exercise")
	_ = cmd.MarkFlagRequired("reps")
	return cmd
}

func workoutListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the workout log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				workouts, err := a.Engine.Repo.ListWorkouts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(workouts)
				}
				renderWorkoutTable(workouts)
				return nil
			})
		},
	}
	return cmd
}

func workoutShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a workout block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				w, err := a.Engine.Repo.GetWorkout(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	return cmd
}

func workoutImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import workouts from a JSON export",
		Long:  "Merges a JSON array of workouts into the local log. Existing ids are kept as-is; invalid and rejected records are skipped.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var records []domain.Workout
			if err := json.Unmarshal(data, &records); err != nil {
				// Also accept the API's {"workouts": [...]} shape.
				var wrapped struct {
					Workouts []domain.Workout `json:"workouts"`
				}
				if werr := json.Unmarshal(data, &wrapped); werr != nil {
					return fmt.Errorf("parse import file: %w", err)
				}
				records = wrapped.Workouts
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				added, err := a.Engine.ImportWorkouts(ctx, records, actorID(a))
				if err != nil {
					return err
				}
				fmt.Printf("Imported %d of %d workouts\n", added, len(records))
				return nil
			})
		},
	}
	return cmd
}

// mempool

func mempoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mempool",
		Short: "Workouts awaiting validator review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				workouts, err := a.Engine.Repo.ListMempool(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(workouts)
				}
				renderWorkoutTable(workouts)
				return nil
			})
		},
	}
	return cmd
}

// validator

func validatorCmd() *cobra.Command {
	v := &cobra.Command{Use: "validator", Short: "Review workout blocks"}
	v.AddCommand(validatorDecisionCmd("verify", domain.StatusVerified, "Mark a block verified"))
	v.AddCommand(validatorDecisionCmd("flag", domain.StatusFlagged, "Flag a block for suspicion"))
	v.AddCommand(validatorDecisionCmd("reject", domain.StatusRejected, "Reject and remove a block"))
	v.AddCommand(validatorOracleCmd())
	return v
}

func validatorDecisionCmd(use, status, short string) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				w, err := a.Engine.SetVerificationStatus(ctx, args[0], status, note, actorID(a))
				if err != nil {
					return err
				}
				if status == domain.StatusRejected {
					fmt.Printf("Rejected and removed %s\n", args[0])
					return nil
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "validator note")
	return cmd
}

func validatorOracleCmd() *cobra.Command {
	var verified bool
	var confidence int
	var reason string
	cmd := &cobra.Command{
		Use:   "oracle <id>",
		Short: "Apply a late oracle determination to a pending block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				w, err := a.Engine.ApplyOracleResult(ctx, args[0], oracle.Determination{
					Verified:   verified,
					Confidence: confidence,
					Reason:     reason,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().BoolVar(&verified, "verified", false, "oracle saw real exercise")
	cmd.Flags().IntVar(&confidence, "confidence", 0, "oracle confidence 0-100")
	cmd.Flags().StringVar(&reason, "reason", "", "oracle reason")
	return cmd
}

// challenge

func challengeCmd() *cobra.Command {
	ch := &cobra.Command{Use: "challenge", Short: "Manage challenges"}
	ch.AddCommand(challengeListCmd())
	ch.AddCommand(challengeShowCmd())
	ch.AddCommand(challengeForgeCmd())
	ch.AddCommand(challengePublishCmd())
	ch.AddCommand(challengeJoinCmd())
	ch.AddCommand(challengeSettleCmd())
	ch.AddCommand(challengeResolveCmd())
	return ch
}

func challengeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List challenges with live progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				snap, err := a.Engine.DeriveState(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap.Challenges)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Progress", "Reward", "Joined"})
				for _, c := range snap.Challenges {
					reward := ""
					if c.RewardSats != nil {
						reward = fmt.Sprintf("%d sats", *c.RewardSats)
					}
					tw.AppendRow(table.Row{
						c.ID, c.Title, c.Status,
						fmt.Sprintf("%d/%d days", c.CurrentDays, c.TargetDays),
						reward, c.Joined,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func challengeShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if _, err := a.Engine.DeriveState(ctx); err != nil {
					return err
				}
				c, err := a.Engine.Repo.GetChallenge(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func challengeForgeCmd() *cobra.Command {
	var opts engine.ChallengeDraftOptions
	cmd := &cobra.Command{
		Use:   "forge",
		Short: "Forge a new challenge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				opts.Creator = actorID(a)
				c, err := a.Engine.ForgeChallenge(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "challenge id (generated when empty)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "challenge title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().IntVar(&opts.TargetDays, "target-days", 0, "distinct workout days to complete")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category (strength, endurance, genesis, sprint, community)")
	cmd.Flags().IntVar(&opts.RewardSats, "reward-sats", 0, "sats reward")
	cmd.Flags().StringVar(&opts.Recurrence, "recurrence", "", "recurrence (once, daily, weekly, monthly)")
	cmd.Flags().BoolVar(&opts.Draft, "draft", false, "forge as an unpublished draft")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("target-days")
	return cmd
}

func challengePublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <id>",
		Short: "Publish a draft challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				c, err := a.Engine.PublishChallenge(ctx, args[0], actorID(a))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func challengeJoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <id>",
		Short: "Join an active challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				c, err := a.Engine.JoinChallenge(ctx, args[0], actorID(a))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func challengeSettleCmd() *cobra.Command {
	var proofURL string
	cmd := &cobra.Command{
		Use:   "settle <id>",
		Short: "Request sats settlement for a completed challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				c, err := a.Engine.RequestSettlement(ctx, args[0], proofURL, actorID(a))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&proofURL, "proof", "", "public proof link (must match a configured proof marker)")
	_ = cmd.MarkFlagRequired("proof")
	return cmd
}

func challengeResolveCmd() *cobra.Command {
	var approve, reject bool
	var note string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a settlement request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return fmt.Errorf("pass exactly one of --approve or --reject")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				c, err := a.Engine.ResolveSettlement(ctx, args[0], approve, note, actorID(a))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "settle the challenge")
	cmd.Flags().BoolVar(&reject, "reject", false, "reopen the challenge")
	cmd.Flags().StringVar(&note, "note", "", "decision note")
	return cmd
}

// stats

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Derived streak, totals, and challenge progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				snap, err := a.Engine.DeriveState(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				fmt.Printf("Streak:        %d day(s)\n", snap.Stats.Streak)
				fmt.Printf("Last activity: %s\n", orDash(snap.Stats.LastActivityDate))
				fmt.Printf("Total reps:    %d\n", snap.Stats.TotalReps)
				fmt.Printf("Total sets:    %d\n", snap.Stats.TotalSets)
				for _, c := range snap.Challenges {
					if c.Joined {
						fmt.Printf("  %-28s %d/%d days (%s)\n", c.Title, c.CurrentDays, c.TargetDays, c.Status)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

// relay

func relayCmd() *cobra.Command {
	r := &cobra.Command{Use: "relay", Short: "Peer activity network view"}
	r.AddCommand(relayListCmd())
	r.AddCommand(relaySyncCmd())
	r.AddCommand(relayStatsCmd())
	return r
}

func relayListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the relay ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				peers, err := a.Engine.Relay.Ledger(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(peers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Peer", "Location", "Exercise", "Reps", "Sets", "When"})
				for _, p := range peers {
					tw.AppendRow(table.Row{p.PeerName, p.Location, p.Exercise, p.Reps, p.Sets, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func relaySyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Force a relay refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if err := a.Engine.Relay.Sync(ctx); err != nil {
					return err
				}
				fmt.Println("Relay synced")
				return nil
			})
		},
	}
	return cmd
}

func relayStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Network totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				stats, err := a.Engine.Relay.Stats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("Active nodes: %d\n", stats.ActiveNodes)
				fmt.Printf("Network reps: %d\n", stats.TotalReps)
				return nil
			})
		},
	}
	return cmd
}

// log

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The audit diary: submissions, reviews, challenge moves, settlements.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var limit int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				events, err := a.Engine.Repo.LatestEvents(ctx, limit, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				for _, e := range events {
					fmt.Printf("%s %-32s %-9s %-36s %s\n", e.TS, e.Type, e.EntityKind, e.EntityID, e.Payload)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	return cmd
}

// config

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default bitfit.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

// serve

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("BITFIT_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("BITFIT_JWT_SECRET is required for validator auth")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret, Logger: a.Engine.Log},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving BitFitness API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:2121", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a validator token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("BITFIT_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("BITFIT_JWT_SECRET is required")
			}
			actor := viper.GetString("actor-id")
			if actor == "" {
				actor = "validator"
			}
			token, err := server.SignValidatorToken(secret, actor, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

// output helpers

func renderWorkoutTable(workouts []domain.Workout) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Exercise", "Reps", "Sets", "Status", "Challenge", "When"})
	for _, w := range workouts {
		challenge := ""
		if w.ChallengeID != nil {
			challenge = *w.ChallengeID
		}
		tw.AppendRow(table.Row{w.ID, w.Exercise, w.Reps, w.Sets, w.VerificationStatus, challenge, w.CreatedAt})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
