package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage session store backups",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Take a backup of all active sessions",
	RunE:  runBackupRun,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [file]",
	Short: "Restore sessions from a backup (most recent if omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBackupRestore,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available backups, newest first",
	RunE:  runBackupList,
}

func init() {
	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupListCmd)
}

func runBackupRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	file, err := st.PerformBackup()
	if err != nil {
		return err
	}
	if file == "" {
		fmt.Println("no active sessions, nothing to back up")
		return nil
	}

	fmt.Println(file)
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	file := ""
	if len(args) == 1 {
		file = args[0]
	}

	if !st.RestoreFromBackup(file) {
		return errors.New("restore failed, see logs for the cause")
	}

	fmt.Println("restored")
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	for _, name := range st.ListBackups() {
		fmt.Println(name)
	}
	return nil
}
