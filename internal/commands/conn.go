package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/refresher/internal/actions"
	"github.com/dotcommander/refresher/internal/models"
	"github.com/dotcommander/refresher/internal/output"
)

func NewConnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conn",
		Short: "Manage a workbook's registered connections",
	}
	cmd.AddCommand(newConnAddCmd())
	cmd.AddCommand(newConnListCmd())
	return cmd
}

func newConnAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a connection against a workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			workbook, err := requireString(cmd, "workbook")
			if err != nil {
				return err
			}
			name, err := requireString(cmd, "name")
			if err != nil {
				return err
			}
			source, _ := cmd.Flags().GetString("source")

			return withDB(func(db *DB) error {
				conn, err := actions.ConnAdd(db, workbook, name, source)
				if err != nil {
					return err
				}
				type resp struct {
					Connection *models.Connection `json:"connection"`
				}
				return output.PrintSuccess(resp{Connection: conn})
			})
		},
	}
	cmd.Flags().String("workbook", "", "Workbook name (required)")
	cmd.Flags().String("name", "", "Connection name (required)")
	cmd.Flags().String("source", "", "Connection source description")
	return cmd
}

func newConnListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a workbook's connections in position order",
		RunE: func(cmd *cobra.Command, args []string) error {
			workbook, err := requireString(cmd, "workbook")
			if err != nil {
				return err
			}
			return withDB(func(db *DB) error {
				conns, err := actions.ConnList(db, workbook)
				if err != nil {
					return err
				}
				if conns == nil {
					conns = []models.Connection{}
				}
				type resp struct {
					Workbook    string              `json:"workbook"`
					Count       int                 `json:"count"`
					Connections []models.Connection `json:"connections"`
				}
				return output.PrintSuccess(resp{Workbook: workbook, Count: len(conns), Connections: conns})
			})
		},
	}
	cmd.Flags().String("workbook", "", "Workbook name (required)")
	return cmd
}
