package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkarpov/intake/internal/graph"
	"github.com/dkarpov/intake/internal/handler"
	"github.com/dkarpov/intake/internal/mapping"
	"github.com/dkarpov/intake/internal/model"
	"github.com/dkarpov/intake/internal/session"
	"github.com/dkarpov/intake/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "intake",
		Short: "Guided-interview engine for assessment form intake",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `intake --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP interview server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "intake.db", "SQLite database path")
	f.StringSliceP("templates", "t", []string{"templates/water_damage.json"}, "Paths to form template JSON files (repeatable)")
	f.String("default-tier", string(model.TierStandard), "Tier level used when a start request omits one (STANDARD, PREMIUM, ENTERPRISE)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export interview sessions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "intake.db", "SQLite database path")
	f.Bool("with-fields", true, "Recompute auto-populated fields for each session")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("intake")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/intake")
	v.AddConfigPath("/etc/intake")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadTemplates(db, v.GetStringSlice("templates")); err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	defaultTier := model.TierLevel(strings.ToUpper(v.GetString("default-tier")))
	switch defaultTier {
	case model.TierStandard, model.TierPremium, model.TierEnterprise:
	default:
		slog.Warn("invalid default-tier, using STANDARD", "tier", defaultTier)
		defaultTier = model.TierStandard
	}

	h, err := handler.New(db, mapping.NewRegistry(), model.EngineConfig{DefaultTier: defaultTier})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"templates", v.GetStringSlice("templates"),
		"default_tier", defaultTier,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportAllSessions()
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	if v.GetBool("with-fields") {
		reg := mapping.NewRegistry()
		for i, res := range results {
			fields, err := replayFields(db, reg, res)
			if err != nil {
				slog.Warn("skipping field replay for session", "session", res.SessionID, "error", err)
				continue
			}
			results[i].Fields = fields
		}
	}

	export := model.InterviewExport{
		ExportedAt: time.Now(),
		Sessions:   results,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

// replayFields recomputes a session's auto-populated fields by replaying
// its answer log through the mapping resolver.
func replayFields(db *store.Store, reg *mapping.Registry, res model.SessionResult) (map[string]model.AutoPopulatedField, error) {
	g, err := db.GetGraph(res.TemplateID)
	if err != nil {
		return nil, err
	}
	records, err := db.ListAnswers(res.SessionID)
	if err != nil {
		return nil, err
	}
	ctrl, err := session.Restore(g, res.SessionID, res.TierLevel, records, reg, db)
	if err != nil {
		return nil, err
	}
	return ctrl.Fields(), nil
}

func loadTemplates(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("template file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("template file changed since last import, skipping to avoid breaking existing sessions",
				"path", path)
			continue
		}

		ti, g, err := graph.ParseTemplate(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		if err := db.UpsertTemplate(ti); err != nil {
			return fmt.Errorf("import template from %s: %w", path, err)
		}
		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported form template",
			"path", path, "template", ti.ID, "questions", g.Len(), "standards", len(g.Standards()))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
