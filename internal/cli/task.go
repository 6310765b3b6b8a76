package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для узлов дерева задач.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage run tasks",
	}

	cmd.AddCommand(newTaskResetCmd(clientFn, outputFn))
	return cmd
}

func newTaskResetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "reset TASK_ID",
		Short: "Reset a task and remove its descendants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			res, err := clientFn().ResetTask(args[0], userID)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task %d reset, %d descendants removed", res.Task.ID, len(res.Removed)))

			rows := make([][]string, len(res.Removed))
			for i, t := range res.Removed {
				rows[i] = taskRow(t)
			}
			out.Print(taskHeaders, rows, res)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "Acting user ID")
	return cmd
}
