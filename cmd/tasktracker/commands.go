package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tasktracker/internal/model"
	"tasktracker/internal/tasks"
)

func loginCmd(a *app) *cobra.Command {
	var studentID, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and show the task list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.accounts.Login(cmd.Context(), studentID, password)
			if err != nil {
				return err
			}
			if a.format == "table" {
				fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s\n", sess.DisplayName())
			}
			list, err := a.tasks.Mount(cmd.Context())
			if err != nil {
				return err
			}
			return a.printTasks(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().StringVar(&studentID, "student-id", "", "Student id")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.accounts.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, ok, err := a.accounts.Current(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return tasks.ErrNoSession
			}
			return a.printSession(cmd.OutOrStdout(), sess)
		},
	}
}

func listCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.tasks.Mount(cmd.Context())
			if err != nil {
				return err
			}
			return a.printTasks(cmd.OutOrStdout(), list)
		},
	}
}

func showCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task as stored by the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := a.tasks.Mount(cmd.Context()); err != nil {
				return err
			}
			task, err := a.tasks.Task(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			return a.printTask(cmd.OutOrStdout(), task)
		},
	}
}

func addCmd(a *app) *cobra.Command {
	var name, course, priority, deadline string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			draft := model.NewDraft(name, course, deadline)
			if priority != "" {
				draft.Priority = model.Priority(priority)
			}
			if _, err := a.tasks.Mount(cmd.Context()); err != nil {
				return err
			}
			created, err := a.tasks.Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			if a.format == "table" {
				if created.ID != 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Task %d added\n", created.ID)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Task added")
				}
			}
			list, err := a.tasks.Focus(cmd.Context())
			if err != nil {
				return err
			}
			return a.printTasks(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Task name")
	cmd.Flags().StringVar(&course, "course", "", "Course")
	cmd.Flags().StringVar(&priority, "priority", "", "high, medium or low (default medium)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "Deadline, YYYY-MM-DD")
	return cmd
}

func updateCmd(a *app) *cobra.Command {
	var name, course, priority, deadline string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a task; unset flags keep the stored value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := a.tasks.Mount(cmd.Context()); err != nil {
				return err
			}
			task, err := a.tasks.Task(cmd.Context(), taskID)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("name") {
				task.Name = name
			}
			if flags.Changed("course") {
				task.Course = course
			}
			if flags.Changed("priority") {
				task.Priority = model.Priority(priority)
			}
			if flags.Changed("deadline") {
				task.Deadline = deadline
			}

			if _, err := a.tasks.Update(cmd.Context(), task); err != nil {
				return err
			}
			list, err := a.tasks.Focus(cmd.Context())
			if err != nil {
				return err
			}
			return a.printTasks(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Task name")
	cmd.Flags().StringVar(&course, "course", "", "Course")
	cmd.Flags().StringVar(&priority, "priority", "", "high, medium or low")
	cmd.Flags().StringVar(&deadline, "deadline", "", "Deadline, YYYY-MM-DD")
	return cmd
}

func doneCmd(a *app, done bool) *cobra.Command {
	use, short := "done <id>", "Mark a task as done"
	if !done {
		use, short = "undone <id>", "Mark a task as not done"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := a.tasks.Mount(cmd.Context()); err != nil {
				return err
			}
			outcome, err := a.tasks.SetDone(cmd.Context(), taskID, done)
			if err != nil {
				a.tasks.Rollback(outcome)
				return err
			}
			list := a.tasks.Snapshot()
			if !outcome.Found {
				if list, err = a.tasks.Focus(cmd.Context()); err != nil {
					return err
				}
			}
			return a.printTasks(cmd.OutOrStdout(), list)
		},
	}
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := a.tasks.Mount(cmd.Context()); err != nil {
				return err
			}
			list, err := a.tasks.Delete(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			return a.printTasks(cmd.OutOrStdout(), list)
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &tasks.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}
