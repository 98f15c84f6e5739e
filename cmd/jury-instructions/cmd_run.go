package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/jury-instructions/internal/assembly"
	"github.com/joelkehle/jury-instructions/internal/chunk"
	"github.com/joelkehle/jury-instructions/internal/pipeline"
	"github.com/joelkehle/jury-instructions/internal/report"
	"github.com/joelkehle/jury-instructions/internal/telemetry"
)

var runFlags struct {
	caseID     string
	complaint  string
	answer     string
	witnesses  string
	caseConfig string
	out        string
	markdown   string
	html       string
	pdf        string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline for one case and record the job",
	Long: `run reads the filings (PDF, plain text or a JSON array of pre-chunked
strings), runs extraction, enrichment and assembly against the imported
catalog, and stores the result as a job. The result JSON is written to --out
or stdout.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.caseID, "case-id", "", "Case identifier (detected from the complaint when empty)")
	f.StringVar(&runFlags.complaint, "complaint", "", "Complaint file (required)")
	f.StringVar(&runFlags.answer, "answer", "", "Answer file")
	f.StringVar(&runFlags.witnesses, "witnesses", "", "Witness list file")
	f.StringVar(&runFlags.caseConfig, "case-config", "", "Case config (parties, court roles, flags)")
	f.StringVar(&runFlags.out, "out", "", "Write result JSON here instead of stdout")
	f.StringVar(&runFlags.markdown, "markdown", "", "Also write a markdown report")
	f.StringVar(&runFlags.html, "html", "", "Also write an HTML report")
	f.StringVar(&runFlags.pdf, "pdf", "", "Also write a PDF report (needs Chrome)")

	_ = runCmd.MarkFlagRequired("complaint")
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	req, sources, err := buildRequest(ctx)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.Snapshot(ctx)
	if err != nil {
		return err
	}
	if claims, _ := snap.Len(); claims == 0 {
		return errors.New("catalog is empty; run 'jury-instructions catalog import' first")
	}

	exec, err := newExecutor(ctx, cfg.Oracle, logger)
	if err != nil {
		return err
	}
	p := pipeline.New(exec, snap,
		pipeline.WithWindowSize(cfg.Pipeline.WindowSize),
		pipeline.WithConcurrency(cfg.Pipeline.Concurrency),
		pipeline.WithLogger(logger.Named("pipeline")),
	)

	jobID, err := st.StartJob(ctx, req.CaseID, sources)
	if err != nil {
		return err
	}
	log := logger.With(zap.String("job_id", jobID), zap.String("case_id", req.CaseID))
	log.Info("job started", zap.Strings("sources", sources))

	runCtx := ctx
	if d := cfg.RunTimeout(); d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	res, runErr := p.RunWithProgress(runCtx, req, func(stage, message string) {
		log.Info(message, zap.String("stage", stage))
	})
	if runErr != nil {
		stage := pipeline.StageNameFromError(runErr)
		if err := st.FailJob(context.WithoutCancel(ctx), jobID, stage, runErr); err != nil {
			log.Error("record failure", zap.Error(err))
		}
		return fmt.Errorf("job %s failed at %s: %w", jobID, stage, runErr)
	}
	if err := st.CompleteJob(ctx, jobID, res); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "job %s complete\n", jobID)
	log.Info("job complete",
		zap.Int("instructions", len(res.Instructions)),
		zap.Int64("oracle_calls", res.Metadata.OracleCalls),
		zap.Int("windows_failed", res.Metadata.WindowsFailed))

	if err := writeResult(cmd, res); err != nil {
		return err
	}
	return writeReports(ctx, res)
}

func buildRequest(ctx context.Context) (pipeline.Request, []string, error) {
	words := cfg.Pipeline.ChunkWords
	complaint, err := chunk.LoadFile(ctx, runFlags.complaint, words)
	if err != nil {
		return pipeline.Request{}, nil, fmt.Errorf("load complaint: %w", err)
	}
	sources := []string{runFlags.complaint}
	req := pipeline.Request{CaseID: strings.TrimSpace(runFlags.caseID), Complaint: complaint}

	if runFlags.answer != "" {
		if req.Answer, err = chunk.LoadFile(ctx, runFlags.answer, words); err != nil {
			return pipeline.Request{}, nil, fmt.Errorf("load answer: %w", err)
		}
		sources = append(sources, runFlags.answer)
	}
	if runFlags.witnesses != "" {
		if req.WitnessList, err = chunk.LoadFile(ctx, runFlags.witnesses, words); err != nil {
			return pipeline.Request{}, nil, fmt.Errorf("load witness list: %w", err)
		}
		sources = append(sources, runFlags.witnesses)
	}
	if runFlags.caseConfig != "" {
		if req.Config, err = assembly.LoadConfig(runFlags.caseConfig); err != nil {
			return pipeline.Request{}, nil, err
		}
	}
	if req.CaseID == "" {
		req.CaseID = chunk.DetectCaseNumber(strings.Join(complaint, "\n"))
	}
	return req, sources, nil
}

func writeResult(cmd *cobra.Command, res pipeline.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if runFlags.out == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(runFlags.out, data, 0o644)
}

func writeReports(ctx context.Context, res pipeline.Result) error {
	md := report.BuildMarkdown(res)
	title := "Jury Instructions " + res.CaseID
	if runFlags.markdown != "" {
		if err := os.WriteFile(runFlags.markdown, []byte(md), 0o644); err != nil {
			return err
		}
	}
	if runFlags.html != "" {
		doc, err := report.Document(title, md)
		if err != nil {
			return err
		}
		if err := os.WriteFile(runFlags.html, []byte(doc), 0o644); err != nil {
			return err
		}
	}
	if runFlags.pdf != "" {
		pdf, err := report.NewPDFRenderer().Render(ctx, title, md)
		if err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		if err := os.WriteFile(runFlags.pdf, pdf, 0o644); err != nil {
			return err
		}
	}
	return nil
}
