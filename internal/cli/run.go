package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage pipeline runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunCreateCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunTasksCmd(clientFn, outputFn),
		newRunRemovedCmd(clientFn, outputFn),
		newRunNextCmd(clientFn, outputFn),
		newRunAllCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := clientFn().ListRuns(limit, offset)
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = runRow(r)
			}

			outputFn().Print(runHeaders, rows, runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")

	return cmd
}

func newRunCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreateRunRequest
	var collectionUser, loadUser, checkUser, qaUser int64

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a run with its root tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			req.CollectionUserID = changedInt64(cmd, "collection-user", collectionUser)
			req.LoadUserID = changedInt64(cmd, "load-user", loadUser)
			req.CheckUserID = changedInt64(cmd, "check-user", checkUser)
			req.QAUserID = changedInt64(cmd, "qa-user", qaUser)

			created, err := clientFn().CreateRun(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run created: %d (%d root tasks)", created.Run.ID, len(created.Tasks)))
			out.Print(runHeaders, [][]string{runRow(created.Run)}, created)
			return nil
		},
	}

	cmd.Flags().Int64Var(&req.DataSourceID, "source", 0, "Data source ID (required)")
	cmd.Flags().StringVar(&req.RecordDate, "date", "", "Record date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&req.Stage, "stage", "", "Stage label")
	cmd.Flags().Int64SliceVar(&req.RootTasks, "root-task", nil, "Root task definition IDs (repeatable, default set if omitted)")
	cmd.Flags().Int64Var(&collectionUser, "collection-user", 0, "Collection user ID")
	cmd.Flags().Int64Var(&loadUser, "load-user", 0, "Load user ID")
	cmd.Flags().Int64Var(&checkUser, "check-user", 0, "Check user ID")
	cmd.Flags().Int64Var(&qaUser, "qa-user", 0, "QA user ID")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details and task counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().GetRun(args[0])
			if err != nil {
				return err
			}

			s := run.Stats
			outputFn().PrintDetails([][2]string{
				{"ID", strconv.FormatInt(run.ID, 10)},
				{"Source", strconv.FormatInt(run.DataSourceID, 10)},
				{"Record date", run.RecordDate},
				{"Stage", run.Stage},
				{"State", run.State},
				{"Tasks", fmt.Sprintf("%d total, %d complete, %d failed, %d waiting, %d scheduled, %d running",
					s.Total, s.Complete, s.Failed, s.Waiting, s.Scheduled, s.Running)},
				{"Progress", fmt.Sprintf("%.0f%%", run.Progress*100)},
				{"Updated", run.UpdatedAt},
			}, run)
			return nil
		},
	}
}

func newRunTasksCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListTasksOpts

	cmd := &cobra.Command{
		Use:   "tasks RUN_ID",
		Short: "List run tasks in execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := clientFn().ListTasks(args[0], opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = taskRow(t)
			}

			outputFn().Print(taskHeaders, rows, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Stage, "stage", "", "Only tasks of this stage")
	cmd.Flags().Int64Var(&opts.UserID, "user", 0, "Acting user ID")

	return cmd
}

func newRunRemovedCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "removed RUN_ID",
		Short: "List tasks removed by reset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := clientFn().ListRemoved(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "TASK", "STATUS", "RESET_ROOT", "REMOVED_BY", "REMOVED_AT"}
			rows := make([][]string, len(removed))
			for i, r := range removed {
				rows[i] = []string{
					strconv.FormatInt(r.ID, 10),
					strconv.FormatInt(r.TaskID, 10),
					r.Status,
					strconv.FormatInt(r.ResetRootID, 10),
					strconv.FormatInt(r.RemovedBy, 10),
					r.RemovedAt,
				}
			}

			outputFn().Print(headers, rows, removed)
			return nil
		},
	}
}

func newRunNextCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "next RUN_ID",
		Short: "Schedule the next runnable task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := clientFn().ScheduleNext(args[0], userID)
			if err != nil {
				return err
			}
			printScheduled(outputFn(), s)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "Acting user ID")
	return cmd
}

func newRunAllCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "all RUN_ID",
		Short: "Schedule the run to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := clientFn().ScheduleAll(args[0], userID)
			if err != nil {
				return err
			}
			printScheduled(outputFn(), s)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "Acting user ID")
	return cmd
}

var (
	runHeaders  = []string{"ID", "SOURCE", "DATE", "STAGE", "STATE", "CREATED"}
	taskHeaders = []string{"ID", "PARENT", "ORDER", "TASK", "STATUS", "STAGE", "MESSAGE"}
)

func runRow(r RunResponse) []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		strconv.FormatInt(r.DataSourceID, 10),
		r.RecordDate,
		r.Stage,
		r.State,
		r.CreatedAt,
	}
}

func taskRow(t TaskResponse) []string {
	parent := "-"
	if t.ParentID != nil {
		parent = strconv.FormatInt(*t.ParentID, 10)
	}
	return []string{
		strconv.FormatInt(t.ID, 10),
		parent,
		strconv.Itoa(t.SiblingOrder),
		strconv.FormatInt(t.TaskID, 10),
		t.Status,
		t.Stage,
		t.Message,
	}
}

func printScheduled(out *Output, s *ScheduledResponse) {
	out.Success(fmt.Sprintf("Task %d scheduled as job %s", s.Task.ID, s.Job.ID))
	out.Print(taskHeaders, [][]string{taskRow(s.Task)}, s)
}

// changedInt64 возвращает указатель на значение флага, только если флаг задан.
func changedInt64(cmd *cobra.Command, name string, v int64) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}
