package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/toolsmith/internal/dependency"
	"github.com/crystaldolphin/toolsmith/internal/schema"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and delete tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

var toolsDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a tool and block it from being synthesized again",
	Long: "Delete a tool and block it from being synthesized again.\n\n" +
		"While `toolsmith serve` is running use DELETE /v1/tools/{name} instead; the ledger file is locked by the server.",
	Args: cobra.ExactArgs(1),
	RunE: runToolsDelete,
}

var toolsDeletedCmd = &cobra.Command{
	Use:   "deleted",
	Short: "List deleted tools recorded in the ledger",
	Args:  cobra.NoArgs,
	RunE:  runToolsDeleted,
}

func init() {
	toolsCmd.AddCommand(toolsListCmd, toolsDeleteCmd, toolsDeletedCmd)
}

func quietContainer() (*dependency.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Log.Format = "console"
	cfg.Log.Level = "error"
	return dependency.New(cfg)
}

func runToolsList(_ *cobra.Command, _ []string) error {
	container, err := quietContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	manager, err := container.Toolbox()
	if err != nil {
		return err
	}
	descs := manager.ListTools()
	if len(descs) == 0 {
		fmt.Println("No tools registered.")
		return nil
	}
	for _, d := range descs {
		fmt.Printf("%s %s %s\n", accentStyle.Render(fmt.Sprintf("%-24s", d.Name)), dimStyle.Render(fmt.Sprintf("%-8s", d.Kind)), d.Description)
		if len(d.Params) > 0 {
			fmt.Println(dimStyle.Render("    " + describeParams(d.Params)))
		}
	}
	return nil
}

func describeParams(params []schema.Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		s := p.Name + ": " + string(p.Type)
		if !p.Required {
			s += "?"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

func runToolsDelete(_ *cobra.Command, args []string) error {
	container, err := quietContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	manager, err := container.Toolbox()
	if err != nil {
		return err
	}
	desc, err := manager.DeleteTool(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s Deleted %s (%s); it will not be synthesized again.\n", okStyle.Render("✓"), desc.Name, desc.Kind)
	return nil
}

func runToolsDeleted(_ *cobra.Command, _ []string) error {
	container, err := quietContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	led, err := container.Ledger()
	if err != nil {
		return err
	}
	records := led.Records()
	if len(records) == 0 {
		fmt.Println("No deleted tools.")
		return nil
	}
	for _, r := range records {
		fmt.Printf("%-24s %s  %s\n", r.Name, r.DeletedAt.Local().Format("2006-01-02 15:04"), dimStyle.Render(string(r.Fingerprint)[:12]))
	}
	return nil
}
