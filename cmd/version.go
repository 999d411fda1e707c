package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is the release string. Builds overwrite it with:
//
//	go build -ldflags "-X github.com/derickschaefer/wxstation/cmd.Version=v0.3.0"
var Version = "v0.2.0"

// BuildTime is optionally injected alongside Version:
//
//	-ldflags "-X github.com/derickschaefer/wxstation/cmd.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var BuildTime = ""

type versionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	GOOS      string `json:"goos"`
	GOARCH    string `json:"goarch"`
	BuildTime string `json:"build_time,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the wxstation version and build information",
	Long: `Print the wxstation version string and build metadata.

Default output is plain text. Use --format json for structured output.

Examples:
  wxstation version
  wxstation version --format json | jq .version`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The version never needs config, so --format is read directly.
		format, _ := cmd.Flags().GetString("format")

		info := versionInfo{
			Version:   Version,
			GoVersion: runtime.Version(),
			GOOS:      runtime.GOOS,
			GOARCH:    runtime.GOARCH,
			BuildTime: BuildTime,
		}

		w := cmd.OutOrStdout()
		switch format {
		case "json":
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case "jsonl":
			return json.NewEncoder(w).Encode(info)
		default:
			fmt.Fprintf(w, "wxstation %s\n", info.Version)
			fmt.Fprintf(w, "go        %s\n", info.GoVersion)
			fmt.Fprintf(w, "os        %s/%s\n", info.GOOS, info.GOARCH)
			if info.BuildTime != "" {
				fmt.Fprintf(w, "built     %s\n", info.BuildTime)
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
