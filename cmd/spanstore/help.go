package main

import (
	"strings"
	"text/template"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	helpHeaderStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	helpCmdStyle    = lipgloss.NewStyle().Foreground(colorPrimaryLight)
)

// envVars are listed under "Environment:" in the root command's help.
var envVars = [][2]string{
	{"SPANSTORE_HOME", "root directory holding the stores/ tree"},
	{"SPANSTORE_STORE", "store ID used when --store is not given"},
	{"SPANSTORE_DB_PATH", "explicit database file, bypasses store resolution"},
	{"SPANSTORE_RESET_INCOMPATIBLE", "delete a database whose schema this build cannot open"},
	{"SPANSTORE_DEBUG", "enable debug logging"},
	{"SPANSTORE_DEBUG_LOG", "write debug logs to this file"},
}

// styled returns a template func that renders with style on a TTY only.
func styled(style lipgloss.Style) func(string) string {
	return func(s string) string {
		if isTTY() {
			return style.Render(s)
		}
		return s
	}
}

func envUsages() string {
	width := 0
	for _, v := range envVars {
		width = max(width, len(v[0]))
	}
	var b strings.Builder
	for _, v := range envVars {
		b.WriteString("  ")
		b.WriteString(styled(helpCmdStyle)(v[0] + strings.Repeat(" ", width-len(v[0]))))
		b.WriteString("  ")
		b.WriteString(v[1])
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var helpTemplateFuncs = template.FuncMap{
	"header":    styled(helpHeaderStyle),
	"cmd":       styled(helpCmdStyle),
	"muted":     styled(mutedStyle),
	"envUsages": envUsages,
}

const helpTemplate = `{{with .Long}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{header "Usage:"}}
  {{cmd .CommandPath}}{{if .HasAvailableSubCommands}} {{muted "[command]"}}{{end}}{{if .HasAvailableFlags}} {{muted "[flags]"}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}{{header "Commands:"}}
{{range .Commands}}{{if .IsAvailableCommand}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}
{{end}}{{if .HasAvailableLocalFlags}}{{header "Flags:"}}
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}{{header "Global Flags:"}}
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if not .HasParent}}{{header "Environment:"}}
{{envUsages}}

{{end}}{{if .HasAvailableSubCommands}}{{muted "Use"}} {{cmd (printf "%s [command] --help" .CommandPath)}} {{muted "for more information."}}
{{end}}`

// initHelp installs the styled help template on cmd and its subcommands.
func initHelp(cmd *cobra.Command) {
	cobra.AddTemplateFuncs(helpTemplateFuncs)
	applyHelpTemplate(cmd)
}

func applyHelpTemplate(cmd *cobra.Command) {
	cmd.SetHelpTemplate(helpTemplate)
	for _, subCmd := range cmd.Commands() {
		applyHelpTemplate(subCmd)
	}
}
