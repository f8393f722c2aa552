package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/teemow/healthcal/internal/backend"
)

func newDocsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Upload medical documents and generate insights from them",
	}
	cmd.AddCommand(newDocsUploadCmd(flags))
	cmd.AddCommand(newDocsInsightsCmd(flags, "insights", "Generate health insights from an OCR document"))
	cmd.AddCommand(newDocsInsightsCmd(flags, "recommendations", "Generate health recommendations from an OCR document"))
	return cmd
}

func newDocsUploadCmd(flags *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "upload FILE.pdf",
		Short: "Send a PDF to the backend for OCR",
		Long: `Send a PDF to the backend for OCR and print the extracted document as
JSON. Save it with --output to pass it to 'healthcal docs insights'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			res, err := sess.Backend.UploadDocument(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}
			if output == "" {
				return writeJSON(cmd.OutOrStdout(), res.Data)
			}
			if err := os.WriteFile(output, res.Data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s, saved to %s\n", res.Message, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the OCR document to this file")
	return cmd
}

func newDocsInsightsCmd(flags *globalFlags, use, short string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   use + " OCR.json",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}

			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			generate := sess.Backend.HealthInsights
			if use == "recommendations" {
				generate = sess.Backend.HealthRecommendations
			}
			res, err := generate(cmd.Context(), doc)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res.Data)
			}
			items := res.Data.Insights
			if use == "recommendations" {
				items = res.Data.Recommendations
			}
			renderInsights(cmd.OutOrStdout(), items)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func readDocument(cmd *cobra.Command, path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return data, nil
}

var insightTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

func renderInsights(w io.Writer, items []backend.Insight) {
	if len(items) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("Nothing was generated."))
		return
	}
	for _, it := range items {
		title := insightTitleStyle.Render(it.Title)
		if it.Priority != "" {
			title += " " + mutedStyle.Render("("+it.Priority+")")
		}
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, "  "+it.Description)
	}
}
