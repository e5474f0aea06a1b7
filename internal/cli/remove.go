package cli

import (
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove [document id or source]",
	Short: "Remove a document from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.svc.Remove(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cmd.Printf("Removed %d entries of %s\n", n, args[0])
	return nil
}
