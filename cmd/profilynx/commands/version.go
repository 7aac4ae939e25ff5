package commands

import (
	"fmt"
	"runtime"
	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
)

func NewVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print detailed version information about profilynx.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Profilynx Version: %s\n", version)
			if v, err := semver.NewVersion(version); err == nil {
				fmt.Printf("Release Line: %d.%d\n", v.Major(), v.Minor())
				if v.Prerelease() != "" {
					fmt.Printf("Prerelease: %s\n", v.Prerelease())
				}
			}
			fmt.Printf("Git Commit: %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
			fmt.Printf("Go Version: %s\n", runtime.Version())
			fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
