package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trackly/internal/app"
	"trackly/internal/docstore"
	"trackly/internal/domain"
	"trackly/internal/kanban"
	"trackly/internal/session"
	"trackly/internal/statuses"
	"trackly/internal/workitems"
)

var errKanbanDisabled = errors.New("kanban is disabled in admin settings")

func boardCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "board", Short: "Kanban board of work items"}
	cmd.AddCommand(boardShowCmd())
	cmd.AddCommand(boardAddCmd())
	cmd.AddCommand(boardMoveCmd())
	return cmd
}

// loadBoard fills a board from the first snapshot of each feed. The
// subscriptions are released when scope is disposed.
func loadBoard(ctx context.Context, a *app.App, scope *session.Scope) (*kanban.Board, error) {
	items, err := a.WorkItems.Watch(ctx, workitems.ListFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	if err := scope.Track(items); err != nil {
		return nil, err
	}
	cols, err := a.Statuses.Watch(ctx)
	if err != nil {
		return nil, err
	}
	if err := scope.Track(cols); err != nil {
		return nil, err
	}
	board := kanban.NewBoard(a.WorkItems, cliActor, slog.Default())
	snap, err := first(ctx, items)
	if err != nil {
		return nil, err
	}
	list, err := docstore.Decode[domain.WorkItem](snap.Docs)
	if err != nil {
		return nil, err
	}
	board.ApplySnapshot(list)
	if snap, err = first(ctx, cols); err != nil {
		return nil, err
	}
	sts, err := statuses.Decode(snap.Docs)
	if err != nil {
		return nil, err
	}
	board.SetColumns(sts)
	return board, nil
}

func first(ctx context.Context, sub *docstore.Subscription) (docstore.Snapshot, error) {
	select {
	case <-ctx.Done():
		return docstore.Snapshot{}, ctx.Err()
	case snap, ok := <-sub.C:
		if !ok {
			return docstore.Snapshot{}, errors.New("subscription closed")
		}
		return snap, snap.Err
	}
}

func printBoard(board *kanban.Board) error {
	cols := board.Columns()
	if viper.GetBool("json") {
		return printJSON(cols)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Status", "ID", "Title", "Priority", "Assignee"})
	for _, col := range cols {
		if len(col.Items) == 0 {
			tw.AppendRow(table.Row{col.Status.Label, "", "", "", ""})
			continue
		}
		for _, it := range col.Items {
			tw.AppendRow(table.Row{col.Status.Label, it.ID, it.Title, it.Priority, it.AssignedTo})
		}
		tw.AppendSeparator()
	}
	tw.Render()
	return nil
}

func withBoard(ctx context.Context, fn func(context.Context, *app.App, session.Session, *kanban.Board) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App, sess session.Session) error {
		if !sess.Settings.KanbanEnabled {
			return errKanbanDisabled
		}
		scope := session.NewScope()
		defer scope.Dispose()
		board, err := loadBoard(ctx, a, scope)
		if err != nil {
			return err
		}
		return fn(ctx, a, sess, board)
	})
}

func boardShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, _ *app.App, _ session.Session, board *kanban.Board) error {
				return printBoard(board)
			})
		},
	}
}

func boardAddCmd() *cobra.Command {
	var opts workitems.CreateOptions
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, sess session.Session) error {
				opts.Title = args[0]
				item, err := a.WorkItems.Create(ctx, sess, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(item)
				}
				fmt.Printf("Created %s in %s\n", item.ID, item.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "status key (default first active)")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&opts.AssignedTo, "assign", "", "assignee user id")
	return cmd
}

func boardMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <item-id> <status-key>",
		Short: "Drag a work item to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, _ *app.App, _ session.Session, board *kanban.Board) error {
				if err := board.DragStart(args[0]); err != nil {
					return err
				}
				moved, err := board.DragEnd(ctx, args[1])
				if err != nil {
					return err
				}
				if !moved {
					fmt.Println("Nothing to move")
				}
				return printBoard(board)
			})
		},
	}
}
