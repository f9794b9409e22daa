package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var sensitivityCmd = &cobra.Command{
	Use:   "sensitivity",
	Short: "Inspect or change the detection threshold",
}

var sensitivityGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the saved threshold",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SensitivityGet()
	},
}

var sensitivitySetCmd = &cobra.Command{
	Use:   "set <threshold>",
	Short: "Save a threshold between 1000 (most sensitive) and 5000",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid threshold %q: %w", args[0], err)
		}
		return getApp().SensitivitySet(threshold)
	},
}

var sensitivityLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Prevent threshold changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SensitivityLock(true)
	},
}

var sensitivityUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Allow threshold changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SensitivityLock(false)
	},
}

func init() {
	sensitivityCmd.AddCommand(sensitivityGetCmd, sensitivitySetCmd, sensitivityLockCmd, sensitivityUnlockCmd)
}
