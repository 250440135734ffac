// Package cmd implements the toolsmith CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/crystaldolphin/toolsmith/internal/config"
)

const version = "0.1.0"
const logo = "🛠"

var cfgFile string

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:           "toolsmith",
	Short:         logo + " toolsmith: a chat agent that writes its own tools",
	Long:          logo + " toolsmith routes each message to a direct answer, a registered tool, or a freshly synthesized one.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f97316")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444"))
)

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.toolsmith/config.yaml)")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(statusCmd)
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.ConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func mark(ok bool) string {
	if ok {
		return okStyle.Render("✓")
	}
	return errStyle.Render("✗")
}
