package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для очереди jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect the job queue",
	}

	cmd.AddCommand(newJobListCmd(clientFn, outputFn))
	return cmd
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := clientFn().ListJobs(status, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATUS", "RUN", "TASK", "RUN_NEXT", "WORKER", "PROGRESS", "UPDATED"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{
					j.ID,
					j.Status,
					strconv.FormatInt(j.RunID, 10),
					strconv.FormatInt(j.PipelineRunTaskID, 10),
					strconv.FormatBool(j.RunNext),
					j.WorkerID,
					j.Progress,
					j.UpdatedAt,
				}
			}

			outputFn().Print(headers, rows, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (enqueued, running, done, error)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}
