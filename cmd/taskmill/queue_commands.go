package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"taskmill/internal/config"
	"taskmill/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the task queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueuePauseCommand(ctx))
	queueCmd.AddCommand(newQueueResumeCommand(ctx))
	queueCmd.AddCommand(newQueueDeleteCommand(ctx))
	queueCmd.AddCommand(newQueuePurgeCommand(ctx))
	queueCmd.AddCommand(newQueueExportCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show task counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				stats, err := store.Stats(cmd.Context(), ctx.group())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Group %q is empty\n", ctx.group())
					return nil
				}

				titler := cases.Title(language.Und)
				rows := make([][]string, 0, len(stats))
				total := 0
				for _, status := range queue.AllStatuses() {
					count, ok := stats[status]
					if !ok {
						continue
					}
					total += count
					rows = append(rows, []string{titler.String(string(status)), strconv.Itoa(count)})
				}
				rows = append(rows, []string{"Total", strconv.Itoa(total)})

				out := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var filterFlag string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in the group",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := queue.ParseFilter(filterFlag)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				page, err := store.ListPage(cmd.Context(), ctx.group(), filter, limit, offset, true)
				if err != nil {
					return err
				}
				if len(page.Tasks) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Group %q has no matching tasks\n", ctx.group())
					return nil
				}

				colorize := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, 0, len(page.Tasks))
				for _, task := range page.Tasks {
					rows = append(rows, []string{
						strconv.FormatInt(task.ID, 10),
						task.Handler,
						colorizeStatus(task.Status, colorize),
						strconv.Itoa(task.Priority),
						fmt.Sprintf("%d/%d", task.Attempts, task.Retries),
						formatSchedule(task),
						formatTimePtr(task.UpdatedAt),
					})
				}

				out := renderTable(
					[]string{"ID", "Handler", "Status", "Priority", "Attempts", "Schedule", "Updated"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				if page.Total > len(page.Tasks) {
					fmt.Fprintf(cmd.OutOrStdout(), "Showing %d of %d tasks\n", len(page.Tasks), page.Total)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&filterFlag, "filter", "f", "all", "Task filter: all, pending, running, paused, failed, completed, forever, executable")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum tasks to show (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Tasks to skip")
	return cmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var priority int
	var retries int
	var forever int
	var schedule string
	var autoDelete bool

	cmd := &cobra.Command{
		Use:   "add <handler> [arg...]",
		Short: "Enqueue a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(func(cfg *config.Config, mgr *queue.Manager) error {
				def := queue.Definition{
					Handler:    args[0],
					Priority:   priority,
					Retries:    retries,
					Forever:    forever,
					AutoDelete: autoDelete,
				}
				if priority < 0 {
					def.Priority = cfg.Queue.DefaultPriority
				}
				if retries < 0 {
					def.Retries = cfg.Queue.DefaultRetries
				}
				if schedule != "" {
					def.Schedule = schedule
				}
				for _, arg := range args[1:] {
					def.Args = append(def.Args, arg)
				}

				id, err := mgr.Enqueue(cmd.Context(), def)
				if err != nil {
					return err
				}
				if id == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Handler %q is ignored; nothing enqueued\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued task %d in group %q\n", id, ctx.group())
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&priority, "priority", "p", -1, "Priority 0 (highest) to 100 (lowest)")
	cmd.Flags().IntVarP(&retries, "retries", "r", -1, "Automatic retries after failure")
	cmd.Flags().IntVar(&forever, "forever", 0, "Re-run every N minutes (minimum 5; 0 disables)")
	cmd.Flags().StringVarP(&schedule, "schedule", "s", "", "Earliest run time: timestamp, '+10 minutes', duration, or cron expression")
	cmd.Flags().BoolVar(&autoDelete, "auto-delete", false, "Delete the task after successful completion")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				task, err := store.Get(cmd.Context(), ctx.group(), id)
				if err != nil {
					return err
				}
				if task == nil {
					return fmt.Errorf("task %d not found in group %q", id, ctx.group())
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:          %d\n", task.ID)
				fmt.Fprintf(out, "Group:       %s\n", task.Group)
				fmt.Fprintf(out, "Handler:     %s\n", task.Handler)
				fmt.Fprintf(out, "Status:      %s\n", task.Status)
				fmt.Fprintf(out, "Priority:    %d\n", task.Priority)
				fmt.Fprintf(out, "Attempts:    %d of %d retries\n", task.Attempts, task.Retries)
				fmt.Fprintf(out, "Auto-delete: %s\n", yesNo(task.AutoDelete))
				fmt.Fprintf(out, "Recurring:   %s\n", formatForever(task))
				fmt.Fprintf(out, "Arguments:   %s\n", task.ArgumentsJSON)
				fmt.Fprintf(out, "Signature:   %s\n", task.Signature)
				fmt.Fprintf(out, "Scheduled:   %s\n", formatTimePtr(task.ScheduledAt))
				fmt.Fprintf(out, "Created:     %s\n", formatTime(task.CreatedAt))
				fmt.Fprintf(out, "Updated:     %s\n", formatTimePtr(task.UpdatedAt))

				if task.Outputs != "" {
					outputs, err := queue.DecodeOutputs(task.Outputs)
					if err != nil {
						fmt.Fprintf(out, "Outputs:     (unreadable: %v)\n", err)
						return nil
					}
					fmt.Fprintf(out, "Response:    %v\n", outputs.Response)
					if outputs.Output != "" {
						fmt.Fprintf(out, "Output:\n%s\n", outputs.Output)
					}
				}
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Reset failed tasks back to pending",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTaskIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					failed, err := store.List(cmd.Context(), ctx.group(), queue.StatusFilter(queue.StatusFailed), 0, 0)
					if err != nil {
						return err
					}
					for _, task := range failed {
						ids = append(ids, task.ID)
					}
				}

				retried := 0
				for _, id := range ids {
					ok, err := store.Retry(cmd.Context(), ctx.group(), id)
					if err != nil {
						return err
					}
					if ok {
						retried++
					} else {
						fmt.Fprintf(out, "Task %d is not in failed state\n", id)
					}
				}
				fmt.Fprintf(out, "Retried %d tasks\n", retried)
				return nil
			})
		},
	}
}

func newQueuePauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id...>",
		Short: "Pause pending tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachTask(ctx, cmd, args, "paused", func(store *queue.Store, id int64) (bool, error) {
				return store.Pause(cmd.Context(), ctx.group(), id)
			})
		},
	}
}

func newQueueResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id...>",
		Short: "Resume paused tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachTask(ctx, cmd, args, "resumed", func(store *queue.Store, id int64) (bool, error) {
				return store.Resume(cmd.Context(), ctx.group(), id)
			})
		},
	}
}

func newQueueDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id...>",
		Short: "Delete tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachTask(ctx, cmd, args, "deleted", func(store *queue.Store, id int64) (bool, error) {
				return store.Delete(cmd.Context(), ctx.group(), id)
			})
		},
	}
}

func newQueuePurgeCommand(ctx *commandContext) *cobra.Command {
	var filterFlag string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove tasks matching a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := queue.ParseFilter(filterFlag)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				removed, err := store.Purge(cmd.Context(), ctx.group(), filter)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d tasks\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&filterFlag, "filter", "f", string(queue.StatusCompleted), "Task filter to purge")
	return cmd
}

func newQueueExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Dump the task list for audit or migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				tasks, err := store.List(cmd.Context(), ctx.group(), queue.FilterAll, 0, 0)
				if err != nil {
					return err
				}
				if len(tasks) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Group %q is empty\n", ctx.group())
					return nil
				}

				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					arguments := task.ArgumentsJSON
					if arguments == "" {
						arguments = "-"
					}
					rows = append(rows, []string{
						strconv.Itoa(task.Priority),
						formatForever(task),
						yesNo(task.AutoDelete),
						strconv.Itoa(task.Retries),
						task.Handler,
						arguments,
						formatSchedule(task),
						string(task.Status),
					})
				}

				out := renderTable(
					[]string{"Priority", "Forever", "Auto-Delete", "Retries", "Handler", "Arguments", "Schedule", "Status"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func eachTask(ctx *commandContext, cmd *cobra.Command, args []string, verb string, op func(*queue.Store, int64) (bool, error)) error {
	ids, err := parseTaskIDs(args)
	if err != nil {
		return err
	}
	return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
		out := cmd.OutOrStdout()
		count := 0
		for _, id := range ids {
			ok, err := op(store, id)
			if err != nil {
				return err
			}
			if ok {
				count++
			} else {
				fmt.Fprintf(out, "Task %d was not %s\n", id, verb)
			}
		}
		fmt.Fprintf(out, "%d tasks %s\n", count, verb)
		return nil
	})
}

func parseTaskID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}

func parseTaskIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseTaskID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func formatSchedule(task *queue.Task) string {
	switch {
	case task.IsRecurring():
		return formatForever(task)
	case task.ScheduledAt != nil:
		return formatTimePtr(task.ScheduledAt)
	default:
		return "-"
	}
}

func formatForever(task *queue.Task) string {
	if !task.IsRecurring() {
		return "no"
	}
	return fmt.Sprintf("every %dm", *task.Forever)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04:05")
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return "-"
	}
	return formatTime(*value)
}
