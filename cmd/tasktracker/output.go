package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"tasktracker/internal/model"
)

func (a *app) printTasks(w io.Writer, list []model.Task) error {
	if list == nil {
		list = []model.Task{}
	}
	switch a.format {
	case "json":
		return writeJSON(w, list)
	case "yaml":
		return writeYAML(w, list)
	}

	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No tasks yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tPRIORITY\tDEADLINE\tCOURSE\tNAME")
	for _, task := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			task.ID, checkbox(task.MarkAsDone), task.Priority, task.Deadline, task.Course, task.Name)
	}
	return tw.Flush()
}

func (a *app) printTask(w io.Writer, task model.Task) error {
	switch a.format {
	case "json":
		return writeJSON(w, task)
	case "yaml":
		return writeYAML(w, task)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%d\n", task.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", task.Name)
	fmt.Fprintf(tw, "Course:\t%s\n", task.Course)
	fmt.Fprintf(tw, "Priority:\t%s\n", task.Priority)
	fmt.Fprintf(tw, "Deadline:\t%s\n", task.Deadline)
	fmt.Fprintf(tw, "Done:\t%t\n", bool(task.MarkAsDone))
	return tw.Flush()
}

// printSession never prints the access token.
func (a *app) printSession(w io.Writer, sess model.Session) error {
	sess.AccessToken = ""
	switch a.format {
	case "json":
		return writeJSON(w, sess)
	case "yaml":
		return writeYAML(w, sess)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Student:\t%s\n", sess.StudentID)
	fmt.Fprintf(tw, "Name:\t%s\n", sess.DisplayName())
	if sess.ProfilePictureURL != "" {
		fmt.Fprintf(tw, "Picture:\t%s\n", sess.ProfilePictureURL)
	}
	return tw.Flush()
}

func checkbox(done model.Flag) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
