package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joelkehle/jury-instructions/internal/pipeline"
	"github.com/joelkehle/jury-instructions/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the state of a recorded job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	job, err := st.GetJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:      %s\n", job.ID)
	fmt.Fprintf(out, "Case:     %s\n", job.CaseID)
	fmt.Fprintf(out, "Status:   %s\n", job.Status)
	fmt.Fprintf(out, "Sources:  %s\n", strings.Join(job.Sources, ", "))
	fmt.Fprintf(out, "Created:  %s\n", job.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Updated:  %s\n", job.UpdatedAt.Format(time.RFC3339))
	switch job.Status {
	case store.StatusFailed:
		fmt.Fprintf(out, "Stage:    %s\n", job.Stage)
		fmt.Fprintf(out, "Error:    %s\n", job.Error)
	case store.StatusComplete:
		res, err := decodeResult(job)
		if err != nil {
			return err
		}
		m := res.Metadata
		fmt.Fprintf(out, "Claims:        %d\n", len(res.Claims))
		fmt.Fprintf(out, "Counterclaims: %d\n", len(res.Counterclaims))
		fmt.Fprintf(out, "Instructions:  %d\n", len(res.Instructions))
		fmt.Fprintf(out, "Oracle calls:  %d (%d failed)\n", m.OracleCalls, m.OracleFailures)
		fmt.Fprintf(out, "Windows:       %d (%d failed)\n", m.WindowsProcessed, m.WindowsFailed)
	}
	return nil
}

func decodeResult(job store.Job) (pipeline.Result, error) {
	var res pipeline.Result
	if job.Status != store.StatusComplete || len(job.Result) == 0 {
		return res, fmt.Errorf("job %s has no result (status %s)", job.ID, job.Status)
	}
	if err := json.Unmarshal(job.Result, &res); err != nil {
		return res, fmt.Errorf("decode job %s result: %w", job.ID, err)
	}
	return res, nil
}
