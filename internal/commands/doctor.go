package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/refresher/internal/actions"
	"github.com/dotcommander/refresher/internal/app"
	"github.com/dotcommander/refresher/internal/output"
	"github.com/dotcommander/refresher/internal/store"
)

func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, database connectivity and catalog health",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, dbSource, err := app.ResolveDBPathDetailed()
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				DBPath        string             `json:"db_path"`
				DBSource      string             `json:"db_source"`
				DBOK          bool               `json:"db_ok"`
				DBErr         string             `json:"db_error,omitempty"`
				SchemaVersion int64              `json:"schema_version,omitempty"`
				SchemaErr     string             `json:"schema_error,omitempty"`
				Pragmas       *store.Pragmas     `json:"pragmas,omitempty"`
				Retry         app.RetrySettings  `json:"retry"`
				Diagnostics   []store.Diagnostic `json:"diagnostics"`
				Hint          string             `json:"hint,omitempty"`
			}
			r := resp{
				DBPath:      dbPath,
				DBSource:    dbSource,
				Retry:       app.EffectiveRetrySettings(),
				Diagnostics: []store.Diagnostic{},
			}

			db, err := store.InitDBWithPath(dbPath)
			if err != nil {
				r.DBErr = err.Error()
				r.Hint = "If this is running in a sandboxed environment, set db_path to a writable location or use --db-path."
				return output.PrintSuccess(r)
			}
			defer db.Close()
			r.DBOK = true

			if v, err := store.SchemaVersion(db); err != nil {
				r.SchemaErr = err.Error()
			} else {
				r.SchemaVersion = v
			}
			if p, err := store.ReadPragmas(db); err == nil {
				r.Pragmas = &p
			}
			diags, err := actions.Doctor(db)
			if err != nil {
				return cmdErr(err)
			}
			if diags != nil {
				r.Diagnostics = diags
			}
			return output.PrintSuccess(r)
		},
	}
	return cmd
}
