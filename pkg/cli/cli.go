package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build information (injected at compile time via ldflags)
var Version = "dev"

var (
	configPath string
	jsonOutput bool
)

// Custom help template
var helpTemplate = `{{with .Long}}{{. | trim}}

{{end}}{{if .HasAvailableSubCommands}}` + `{{.CommandPath}}` + ` ` + `<command>` + `

{{end}}{{if .HasAvailableSubCommands}}Commands:
{{range .Commands}}{{if .IsAvailableCommand}}  {{rpad .Name .NamePadding }}  {{.Short}}
{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}
Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}
`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mailflow",
		Short: "Mailbox automation flows",
		Long: `mailflow - Mailbox automation flows

Validate flow documents and manage the mailflow database.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetHelpTemplate(helpTemplate)
	cmd.SetVersionTemplate(fmt.Sprintf("  mailflow version %s\n", Version))

	cmd.PersistentFlags().StringVar(&configPath, "config", getEnv("CONFIG_PATH", ""), "Config file (YAML or JSON)")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

// Execute runs the CLI; an interrupt cancels the command context
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
