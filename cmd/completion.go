package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

// completionCmd prints a completion script for the given shell.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for wxstation.

Device arguments complete from sync.devices in your config.

To load completions in the current shell session:

  # bash
  source <(wxstation completion bash)

  # zsh
  source <(wxstation completion zsh)

  # fish
  wxstation completion fish | source

Persist across sessions by adding the source line to your shell profile.`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, w := cmd.Root(), cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return root.GenBashCompletionV2(w, true)
		case "zsh":
			return root.GenZshCompletion(w)
		case "fish":
			return root.GenFishCompletion(w, true)
		default:
			return root.GenPowerShellCompletionWithDesc(w)
		}
	},
}

// completeDevices offers the configured sync devices for the first argument.
func completeDevices(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	for _, id := range cfg.Sync.Devices {
		if strings.HasPrefix(id, toComplete) {
			out = append(out, id)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func init() {
	rootCmd.AddCommand(completionCmd)

	for _, c := range []*cobra.Command{
		forecastGetCmd,
		historyGetCmd,
		rewardsTransactionsCmd,
		rewardsTimelineCmd,
		rewardsSummaryCmd,
	} {
		c.ValidArgsFunction = completeDevices
	}
	_ = chartCmd.RegisterFlagCompletionFunc("device", completeDevices)
	_ = analyzeCmd.RegisterFlagCompletionFunc("device", completeDevices)
	_ = chartCmd.RegisterFlagCompletionFunc("source", cobra.FixedCompletions(
		[]string{sourceForecast, sourceHistory}, cobra.ShellCompDirectiveNoFileComp))
}
