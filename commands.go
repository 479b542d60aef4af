package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"veilleboard/config"
	"veilleboard/internal/actions"
	"veilleboard/internal/audit"
	"veilleboard/internal/ingest"
	"veilleboard/internal/justify"
	"veilleboard/internal/llm"
	"veilleboard/internal/metrics"
	"veilleboard/internal/models"
	"veilleboard/internal/register"
	"veilleboard/internal/render"
	"veilleboard/internal/snapshot"
	"veilleboard/internal/store"
	"veilleboard/internal/validate"
	"veilleboard/internal/watch"
	"veilleboard/logging"
)

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "veilleboard",
		Short:         "Regulatory watch compliance dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return nil
			}
			if err := config.LoadConfig(configPath); err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}
			logging.InitLogger()
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default ./config.yaml)")

	root.AddCommand(
		newGenerateCmd(),
		newValidateCmd(),
		newShowCmd(),
		newServeCmd(),
		newChecklistCmd(),
		newHistoryCmd(),
		newDiffCmd(),
		newSearchCmd(),
		newActionCmd(),
		newReclassifyCmd(),
		newJustifyCmd(),
		newAuditCmd(),
		newIngestCmd(),
		newPatchCmd(),
		newConfigCmd(),
	)
	return root
}

// openStore opens the history database. Without a configured path the
// history only lives as long as the process.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Store.Path == "" {
		return store.Open(":memory:")
	}
	return store.Open(cfg.Store.Path)
}

func registerPaths(cfg *config.Config) map[string]string {
	return map[string]string{
		register.BaseActive: cfg.Sources.BaseActive,
		register.News:       cfg.Sources.News,
	}
}

func newActionService(cfg *config.Config, st *store.Store) *actions.Service {
	return actions.NewService(registerPaths(cfg), st, actions.Options{
		ReevalYears: cfg.Dashboard.ReevalYears,
		Actor:       cfg.Dashboard.Actor,
	})
}

func newGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Compute the dashboard data files from the registers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.AppConfig
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := NewGenerationEngine(cfg, st, nil).Run(cmd.Context())
			for _, issue := range res.Report.Strings() {
				fmt.Fprintln(cmd.ErrOrStderr(), issue)
			}
			if err != nil {
				return err
			}
			for _, p := range res.Paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a dashboard data file (.js or .json)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(config.AppConfig.Output.Dir, snapshot.JSFile)
			if len(args) == 1 {
				path = args[0]
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			report := validate.CheckRaw(data)
			for _, issue := range report.Issues {
				fmt.Fprintln(cmd.OutOrStdout(), severityColor(issue.Severity).Sprint(issue.String()))
			}
			if err := report.Err(); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d warnings)\n", path, report.Count(validate.Warning))
			return nil
		},
	}
}

func severityColor(s validate.Severity) color.Color {
	switch s {
	case validate.Error:
		return color.FgRed
	case validate.Warning:
		return color.FgYellow
	default:
		return color.FgCyan
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [file]",
		Short: "Print the latest dashboard in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var snap models.Snapshot
			var err error
			if len(args) == 1 {
				snap, err = snapshot.ReadFile(args[0])
			} else {
				snap, err = snapshot.ReadFile(jsonPath(config.AppConfig))
			}
			if err != nil {
				return err
			}
			return render.Terminal(cmd.OutOrStdout(), snap, render.DefaultCatalog, time.Now())
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard, the control sheets and their API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.AppConfig
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			mc := metrics.New()
			engine := NewGenerationEngine(cfg, st, mc)
			if snap, err := engine.Latest(ctx); err == nil {
				mc.Observe(snap)
			}

			if cfg.Watch.Enabled {
				files := []string{cfg.Sources.BaseActive}
				if cfg.Sources.News != "" {
					files = append(files, cfg.Sources.News)
				}
				w, err := watch.New(files, cfg.Watch.Debounce, func(ctx context.Context, _ []string) {
					if _, err := engine.Run(ctx); err != nil {
						logrus.WithError(err).Error("Regeneration after register change failed")
					}
				})
				if err != nil {
					return err
				}
				go w.Run(ctx)
			}

			return NewServer(cfg, engine, newActionService(cfg, st), st, mc).ListenAndServe(ctx)
		},
	}
}

func newChecklistCmd() *cobra.Command {
	var sheet, out, apiBase string
	cmd := &cobra.Command{
		Use:   "checklist",
		Short: "Write an interactive control sheet (news or base)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.AppConfig
			kind, path := render.SheetNews, cfg.Sources.News
			switch sheet {
			case "news":
			case "base":
				kind, path = render.SheetBase, cfg.Sources.BaseActive
			default:
				return fmt.Errorf("unknown sheet %q (news or base)", sheet)
			}
			reg, err := register.Load(path, kind.Register())
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(cfg.Output.Dir, "checklist_"+sheet+".html")
			}
			if apiBase == "" {
				apiBase = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			s := render.BuildSheet(reg.Records(), kind, time.Now())
			if err := render.Checklist(f, s, apiBase); err != nil {
				return err
			}
			logrus.Infof("Checklist %s written to %s (%d items)", sheet, out, s.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "news", "news or base")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output HTML file")
	cmd.Flags().StringVar(&apiBase, "api-base", "", "address of the running server")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the stored generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(config.AppConfig)
			if err != nil {
				return err
			}
			defer st.Close()
			recs, err := st.LatestSnapshots(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return render.History(cmd.OutOrStdout(), recs, time.Now())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of generations")
	return cmd
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff [old-run new-run]",
		Short: "Compare two stored generations (default: the last two)",
		Args:  cobra.MatchAll(cobra.MaximumNArgs(2), func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return errors.New("give two run ids or none")
			}
			return nil
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(config.AppConfig)
			if err != nil {
				return err
			}
			defer st.Close()

			var before, after store.SnapshotRecord
			if len(args) == 2 {
				if before, err = st.GetSnapshot(cmd.Context(), args[0]); err != nil {
					return err
				}
				if after, err = st.GetSnapshot(cmd.Context(), args[1]); err != nil {
					return err
				}
			} else {
				recs, err := st.LatestSnapshots(cmd.Context(), 2)
				if err != nil {
					return err
				}
				if len(recs) < 2 {
					return errors.New("need at least two stored generations")
				}
				after, before = recs[0], recs[1]
			}
			return render.Diff(cmd.OutOrStdout(), before.Snapshot, after.Snapshot, render.DefaultCatalog)
		},
	}
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search both registers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := newActionService(config.AppConfig, nil)
			hits, err := svc.Search(args[0])
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Registre", "Ligne", "Intitulé", "Thème", "Statut")
			for _, h := range hits {
				if err := table.Append([]string{h.Register, strconv.Itoa(h.Row), h.Title, h.Theme, h.Status}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
}

func newActionCmd() *cobra.Command {
	var req models.ActionRequest
	cmd := &cobra.Command{
		Use:   "action <conforme|non_conforme|info|supprimer|observation>",
		Short: "Apply a control-sheet decision to a register row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(config.AppConfig)
			if err != nil {
				return err
			}
			defer st.Close()
			req.Action = args[0]
			msg, err := newActionService(config.AppConfig, st).Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Register, "sheet", register.News, "register name")
	cmd.Flags().IntVar(&req.Row, "row", 0, "sheet row number (header is row 1)")
	cmd.Flags().StringVar(&req.Text, "text", "", "observation text")
	cmd.Flags().StringVar(&req.Actor, "actor", "", "who takes the decision")
	cmd.MarkFlagRequired("row")
	return cmd
}

func newReclassifyCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reclassify",
		Short: "Recompute the criticité of the active base from its wording",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(config.AppConfig)
			if err != nil {
				return err
			}
			defer st.Close()
			res, err := newActionService(config.AppConfig, st).Reclassify(cmd.Context(), register.BaseActive, dryRun)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows, %d changed: %s %d, %s %d, %s %d\n", res.Rows, res.Changed,
				render.Status("Haute"), res.Levels["Haute"],
				render.Status("Moyenne"), res.Levels["Moyenne"],
				render.Status("Basse"), res.Levels["Basse"])
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	return cmd
}

func newJustifyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "justify",
		Short: "Ask the model for the missing expected proofs of the active base",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.AppConfig
			client, err := llm.NewOllamaClient(cfg.Ollama)
			if err != nil {
				return err
			}
			site, err := justify.LoadSiteContext(cfg.Sources.CompanyContext)
			if err != nil {
				return err
			}
			reg, err := register.Load(cfg.Sources.BaseActive, register.BaseActive)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			j := justify.New(client, site)
			j.OnProgress = func(done, total int, title string) {
				logrus.Infof("   > [%d/%d] %s", done, total, title)
			}
			res, err := j.Run(ctx, reg, limit)
			fmt.Fprintf(cmd.OutOrStdout(), "%d justified, %d failed, %d skipped\n", res.Justified, res.Failed, res.Skipped)
			return err
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum rows to justify (0: all)")
	return cmd
}

func newAuditCmd() *cobra.Command {
	var max int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Ask the model which major texts are missing from the active base",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.AppConfig
			client, err := llm.NewOllamaClient(cfg.Ollama)
			if err != nil {
				return err
			}
			site, err := justify.LoadSiteContext(cfg.Sources.CompanyContext)
			if err != nil {
				return err
			}
			base, err := register.Load(cfg.Sources.BaseActive, register.BaseActive)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			a := &audit.Auditor{Client: client, Store: st, SiteContext: site, MaxGaps: max}
			gaps, err := a.Run(cmd.Context(), base.Records())
			if err != nil {
				return err
			}
			if len(gaps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No major text missing")
				return nil
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Titre manquant", "Thème", "Criticité", "Justification", "Action")
			for _, g := range gaps {
				if err := table.Append([]string{g.Title, g.Theme, render.Status(g.Criticite), g.Justification, g.Action}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
	cmd.Flags().IntVarP(&max, "max", "n", audit.DefaultMaxGaps, "maximum missing texts to report")
	return cmd
}

func newIngestCmd() *cobra.Command {
	var title, url, text string
	cmd := &cobra.Command{
		Use:   "ingest [candidates.json]",
		Short: "Analyse candidate texts and append the relevant ones to the watch report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cands []ingest.Candidate
			if len(args) == 1 {
				loaded, err := ingest.LoadCandidates(args[0])
				if err != nil {
					return err
				}
				cands = loaded
			}
			if title != "" {
				cands = append(cands, ingest.Candidate{Title: title, URL: url, Snippet: text})
			}
			if len(cands) == 0 {
				return errors.New("give a candidates file or --title")
			}

			cfg := config.AppConfig
			client, err := llm.NewOllamaClient(cfg.Ollama)
			if err != nil {
				return err
			}
			site, err := justify.LoadSiteContext(cfg.Sources.CompanyContext)
			if err != nil {
				return err
			}
			base, err := register.Load(cfg.Sources.BaseActive, register.BaseActive)
			if err != nil {
				return err
			}
			news, err := loadOptional(cfg.Sources.News, register.News)
			if err != nil {
				return err
			}
			if news.Path == "" {
				news.Path = cfg.Sources.News
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			in := &ingest.Ingester{Client: client, SiteContext: site, Source: cfg.Dashboard.AutoSource}
			res, err := in.Run(ctx, news, base, cands)
			if res.Added > 0 {
				entry := store.JournalEntry{
					At:       time.Now(),
					Register: news.Name,
					Action:   "ingest",
					Actor:    cfg.Dashboard.Actor,
					Detail:   fmt.Sprintf("%d added, rows %v", res.Added, res.Rows),
				}
				if jerr := st.Journal(cmd.Context(), entry); jerr != nil {
					logrus.WithError(jerr).Warn("Could not journal ingestion")
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d added, %d duplicates, %d not relevant, %d failed\n",
				res.Added, res.Duplicates, res.Irrelevant, res.Failed)
			return err
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title of a single candidate")
	cmd.Flags().StringVar(&url, "url", "", "link of the single candidate")
	cmd.Flags().StringVar(&text, "text", "", "excerpt of the single candidate")
	return cmd
}

func newPatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patch <kpi> <value>",
		Short: "Set one KPI in the generated data files and the history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.AppConfig
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := NewGenerationEngine(cfg, st, nil).Patch(cmd.Context(), args[0], args[1])
			for _, issue := range res.Report.Issues {
				fmt.Fprintln(cmd.ErrOrStderr(), severityColor(issue.Severity).Sprint(issue.String()))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (run %s)\n", args[0], args[1], res.RunID)
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration helpers"}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})
	return cmd
}
