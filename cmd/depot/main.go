package main

import (
	"fmt"
	"os"
)

func main() {
	root := newRoot()
	rootCmd := root.Command()

	syncCmd := newSync(root).Command()
	syncCmd.AddCommand(
		newSyncLocal(root).Command(),
		newSyncRemote(root).Command(),
	)

	rootCmd.AddCommand(
		syncCmd,
		newGet(root).Command(),
		newPut(root).Command(),
		newPush(root).Command(),
		newList(root).Command(),
		newInfo(root).Command(),
		newRemove(root).Command(),
	)

	if cmd, err := rootCmd.ExecuteC(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err.Error())
		switch err.(type) {
		case usageError:
			cmd.Println("")
			cmd.Println(cmd.UsageString())
		}
		os.Exit(1)
	}
}
