package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joelkehle/jury-instructions/internal/report"
)

var exportFlags struct {
	format string
	out    string
}

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Render a completed job as markdown, HTML or PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFlags.format, "format", "md", "Output format: md, html or pdf")
	f.StringVarP(&exportFlags.out, "out", "o", "", "Output file (stdout for md and html when empty)")
}

func runExport(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	job, err := st.GetJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	res, err := decodeResult(job)
	if err != nil {
		return err
	}

	md := report.BuildMarkdown(res)
	title := "Jury Instructions " + res.CaseID
	var data []byte
	switch exportFlags.format {
	case "md", "markdown":
		data = []byte(md)
	case "html":
		doc, err := report.Document(title, md)
		if err != nil {
			return err
		}
		data = []byte(doc)
	case "pdf":
		if exportFlags.out == "" {
			return fmt.Errorf("--out is required for pdf")
		}
		if data, err = report.NewPDFRenderer().Render(cmd.Context(), title, md); err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
	default:
		return fmt.Errorf("unknown format %q", exportFlags.format)
	}

	if exportFlags.out == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(exportFlags.out, data, 0o644)
}
