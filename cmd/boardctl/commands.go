package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"boardsync/internal/boardsync"
	"boardsync/internal/conflict"
	"boardsync/internal/drag"
	"boardsync/internal/ordering"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func watchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [board-id]",
		Short: "Print the board and reprint it whenever someone changes it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(cmd.Context(), opts, args[0], false)
			if err != nil {
				return err
			}
			defer w.close()

			changes, unsubscribe := w.session.Changes()
			defer unsubscribe()

			return w.run(cmd.Context(), func(ctx context.Context) error {
				printSession(cmd.OutOrStdout(), w.session)
				for {
					select {
					case <-ctx.Done():
						return nil
					case _, ok := <-changes:
						if !ok {
							return nil
						}
						printSession(cmd.OutOrStdout(), w.session)
					}
				}
			})
		},
	}
}

func moveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "move [board-id] [issue-id] [column]",
		Short: "Move an issue to the end of another column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(cmd.Context(), opts, args[0], false)
			if err != nil {
				return err
			}
			defer w.close()

			issueID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid issue id %q: %w", args[1], err)
			}
			board, _ := w.session.Board()
			column, ok := board.ColumnByName(args[2])
			if !ok {
				return fmt.Errorf("no column named %q", args[2])
			}

			return w.run(cmd.Context(), func(ctx context.Context) error {
				if err := w.session.StartDrag(issueID); err != nil {
					return err
				}
				if err := w.session.Drop(ctx, drag.ColumnTarget(column.ID)); err != nil {
					return explain(err)
				}
				printSession(cmd.OutOrStdout(), w.session)
				return nil
			})
		},
	}
}

func reorderCmd(opts *options) *cobra.Command {
	var before string
	var socket bool

	cmd := &cobra.Command{
		Use:   "reorder [board-id] [issue-id]",
		Short: "Move an issue within its column, to the slot of --before or to the end",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := openWorkspace(cmd.Context(), opts, args[0], socket)
			if err != nil {
				return err
			}
			defer w.close()

			issueID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid issue id %q: %w", args[1], err)
			}
			board, _ := w.session.Board()
			column, ok := board.ColumnOf(issueID)
			if !ok {
				return fmt.Errorf("issue %s is not in any column", issueID)
			}
			target := drag.ColumnTarget(column.ID)
			if before != "" {
				beforeID, err := uuid.Parse(before)
				if err != nil {
					return fmt.Errorf("invalid --before %q: %w", before, err)
				}
				target = drag.IssueTarget(beforeID)
			}

			return w.run(cmd.Context(), func(ctx context.Context) error {
				if err := w.session.StartDrag(issueID); err != nil {
					return err
				}
				if err := w.session.Drop(ctx, target); err != nil {
					return explain(err)
				}
				printSession(cmd.OutOrStdout(), w.session)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "Issue whose slot to take")
	cmd.Flags().BoolVar(&socket, "socket", false, "Commit over the realtime socket instead of REST")

	return cmd
}

func editCmd(opts *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "edit [board-id] [issue-id]",
		Short: "Change the title, description or status of an issue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var changes boardsync.IssueChanges
			for flag, field := range map[string]**string{
				"title":       &changes.Title,
				"description": &changes.Description,
				"status":      &changes.Status,
			} {
				if cmd.Flags().Changed(flag) {
					value, _ := cmd.Flags().GetString(flag)
					*field = &value
				}
			}

			w, err := openWorkspace(cmd.Context(), opts, args[0], false)
			if err != nil {
				return err
			}
			defer w.close()

			issueID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid issue id %q: %w", args[1], err)
			}

			return w.run(cmd.Context(), func(ctx context.Context) error {
				err := w.session.EditIssue(ctx, issueID, changes)
				if err == nil {
					return nil
				}
				if !conflict.IsVersionConflict(err) || !force {
					return explain(err)
				}

				fmt.Fprintln(cmd.ErrOrStderr(), explain(err))
				fmt.Fprintln(cmd.ErrOrStderr(), "overwriting with --force")
				return w.session.Resolver().Overwrite(ctx)
			})
		},
	}

	cmd.Flags().String("title", "", "New title")
	cmd.Flags().String("description", "", "New description")
	cmd.Flags().String("status", "", "New status (column name)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite on version conflict")

	return cmd
}

// explain turns a mutation failure into a message for the terminal.
func explain(err error) error {
	if record, ok := conflict.As(err); ok {
		return fmt.Errorf("%s changed since you loaded it (you had v%d, server has v%d, updated %s)",
			record.ResourceName, record.YourVersion, record.CurrentVersion, record.LastUpdated.Local().Format("15:04:05"))
	}
	return fmt.Errorf("%s: %w", boardsync.Classify(err), err)
}

func printSession(out io.Writer, s *boardsync.Session) {
	board, ok := s.Board()
	if !ok {
		return
	}
	printBoard(out, board)
}

func printBoard(out io.Writer, board ordering.Board) {
	fmt.Fprintf(out, "\n%s\n%s\n", board.Name, strings.Repeat("=", len(board.Name)))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, column := range board.Columns {
		fmt.Fprintf(tw, "%s\t\t\n", column.Name)
		for _, issue := range ordering.IssuesInColumn(board.Issues, column.Name) {
			fmt.Fprintf(tw, "  %s\tv%d\t%s\n", issue.Title, issue.Version, issue.ID)
		}
	}
	_ = tw.Flush()
}
