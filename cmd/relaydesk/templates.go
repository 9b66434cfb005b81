package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foxzi/relaydesk/internal/catalog"
	"github.com/foxzi/relaydesk/internal/config"
	"github.com/foxzi/relaydesk/internal/db"
	"github.com/foxzi/relaydesk/internal/delivery"
	"github.com/foxzi/relaydesk/internal/repository"
	"github.com/foxzi/relaydesk/internal/trigger"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Template tools",
}

var (
	renderSubject string
	renderVars    []string
	renderSafe    bool
)

var templatesRenderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Render a template file with variables",
	Long: `Render a template file with {name} placeholders. Use "-" to read from stdin.
Placeholders without a value are left as is and reported on stderr.`,
	Args: cobra.ExactArgs(1),
	RunE: runTemplatesRender,
}

var (
	triggerBase  string
	triggerRoute string
	triggerEmail string
	triggerVars  []string
)

var templatesTriggerURLCmd = &cobra.Command{
	Use:   "trigger-url",
	Short: "Print the GET trigger URL for a route",
	RunE:  runTemplatesTriggerURL,
}

var migrateProject string

var templatesMigrateCmd = &cobra.Command{
	Use:   "migrate-placeholders",
	Short: "Rewrite {{name}} placeholders to {name} in stored templates",
	RunE:  runTemplatesMigrate,
}

func init() {
	templatesRenderCmd.Flags().StringVarP(&renderSubject, "subject", "s", "", "subject line to render")
	templatesRenderCmd.Flags().StringArrayVar(&renderVars, "var", nil, "variable as key=value (repeatable)")
	templatesRenderCmd.Flags().BoolVar(&renderSafe, "safe", false, "print sanitized HTML")

	templatesTriggerURLCmd.Flags().StringVar(&triggerBase, "base", "", "relay base URL (defaults to relay.base_url)")
	templatesTriggerURLCmd.Flags().StringVar(&triggerRoute, "route", "", "trigger route")
	templatesTriggerURLCmd.Flags().StringVar(&triggerEmail, "email", "", "recipient email")
	templatesTriggerURLCmd.Flags().StringArrayVar(&triggerVars, "var", nil, "variable as key=value (repeatable)")
	templatesTriggerURLCmd.MarkFlagRequired("route")

	templatesMigrateCmd.Flags().StringVar(&migrateProject, "project", "", "limit to one project")

	templatesCmd.AddCommand(templatesRenderCmd, templatesTriggerURLCmd, templatesMigrateCmd)
}

func runTemplatesRender(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	vars, err := parseVars(renderVars)
	if err != nil {
		return err
	}

	svc := delivery.NewService(nil, nil, nil, nil, nil, "", nil)
	preview := svc.RenderTemplate(renderSubject, string(data), vars)

	out := cmd.OutOrStdout()
	if renderSubject != "" {
		fmt.Fprintf(out, "Subject: %s\n\n", preview.Subject)
	}
	if renderSafe {
		fmt.Fprintln(out, preview.SafeContent)
	} else {
		fmt.Fprintln(out, preview.Content)
	}

	if len(preview.Missing) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "missing variables: %s\n", strings.Join(preview.Missing, ", "))
	}
	return nil
}

func runTemplatesTriggerURL(cmd *cobra.Command, args []string) error {
	base := triggerBase
	if base == "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		base = cfg.Relay.BaseURL
	}

	if triggerEmail != "" && !trigger.ValidEmail(triggerEmail) {
		return fmt.Errorf("invalid email address: %s", triggerEmail)
	}

	vars, err := parseVars(triggerVars)
	if err != nil {
		return err
	}

	u, err := trigger.URL(base, triggerRoute, triggerEmail, vars)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), u)
	return nil
}

func runTemplatesMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	logger := newLogger(cfg.Logging, os.Stderr)
	if err := database.Migrate(cmd.Context(), logger); err != nil {
		return err
	}

	svc := catalog.NewService(
		repository.NewProjectRepository(database.DB),
		repository.NewTemplateRepository(database.DB),
		logger,
	)

	n, err := svc.MigratePlaceholders(cmd.Context(), migrateProject)
	if err != nil {
		return err
	}
	fmt.Printf("Migrated %d template(s)\n", n)
	return nil
}

// parseVars turns key=value pairs into a map.
func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid variable %q, want key=value", p)
		}
		vars[k] = v
	}
	return vars, nil
}
