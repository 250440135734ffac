package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/toolsmith/internal/providers"
	"github.com/crystaldolphin/toolsmith/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show toolsmith status",
	RunE:  runStatus,
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := configPath()

	fmt.Printf("%s toolsmith Status\n\n", logo)
	fmt.Printf("Config:    %s %s\n", cfgPath, mark(exists(cfgPath)))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	fmt.Printf("Tools dir: %s %s\n", cfg.DynamicDir(), mark(exists(cfg.DynamicDir())))
	fmt.Printf("Ledger:    %s %s\n", cfg.LedgerPath(), mark(exists(cfg.LedgerPath())))
	fmt.Printf("History:   %s %s\n", cfg.HistoryPath(), mark(exists(cfg.HistoryPath())))
	if exists(cfg.HistoryPath()) {
		if store, err := session.NewStore(cfg.HistoryPath(), nil); err == nil {
			fmt.Printf("           %s\n", dimStyle.Render(conversationSummary(store.List())))
		}
	}
	fmt.Printf("Model:     %s\n", cfg.Agent.Model)
	fmt.Printf("Synthesis: %v\n", cfg.Agent.Synthesis.Enabled)
	fmt.Printf("Server:    %s:%d\n\n", cfg.Server.Host, cfg.Server.Port)

	fmt.Println("Providers:")
	active := cfg.MatchProvider("").Name
	for _, spec := range providers.PROVIDERS {
		p := cfg.ProviderByName(spec.Name)
		if p == nil {
			continue
		}
		label := fmt.Sprintf("%-20s", spec.Label())
		if spec.Name == active {
			label = accentStyle.Render(label)
		}
		switch {
		case spec.IsLocal:
			if p.APIBase != "" {
				fmt.Printf("  %s %s %s\n", label, mark(true), p.APIBase)
			} else {
				fmt.Printf("  %s %s\n", label, dimStyle.Render("(not set)"))
			}
		default:
			if p.APIKey != "" {
				fmt.Printf("  %s %s\n", label, mark(true))
			} else {
				fmt.Printf("  %s %s\n", label, dimStyle.Render("(not set)"))
			}
		}
	}
	return nil
}

func conversationSummary(convs []session.Info) string {
	switch len(convs) {
	case 0:
		return "no conversations yet"
	case 1:
		return fmt.Sprintf("1 conversation, last active %s", convs[0].UpdatedAt.Format(time.DateTime))
	default:
		return fmt.Sprintf("%d conversations, last active %s", len(convs), convs[0].UpdatedAt.Format(time.DateTime))
	}
}
