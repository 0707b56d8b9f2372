package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/tts"
	"github.com/dgnsrekt/voxkit/tts/models"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "Manage neural models",
		Long:  paragraph(fmt.Sprintf("\n%s, inspect, download and delete neural voice models.", keyword("List"))),
		Args:  cobra.NoArgs,
	}

	modelsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List known models and whether they are installed",
		Args:  cobra.NoArgs,
		RunE:  runModelsList,
	}

	modelsShowCmd = &cobra.Command{
		Use:               "show MODEL",
		Short:             "Describe a model",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeModelIDs,
		RunE:              runModelsShow,
	}

	modelsDownloadCmd = &cobra.Command{
		Use:               "download MODEL",
		Short:             "Download and install a model",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeModelIDs,
		RunE:              runModelsDownload,
	}

	modelsDeleteCmd = &cobra.Command{
		Use:               "delete MODEL",
		Short:             "Delete a downloaded model",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeModelIDs,
		RunE:              runModelsDelete,
	}
)

func init() {
	modelsCmd.AddCommand(modelsListCmd, modelsShowCmd, modelsDownloadCmd, modelsDeleteCmd)
}

func completeModelIDs(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	reg, err := models.Default()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	var ids []string
	for _, d := range reg.ListAvailableModels() {
		ids = append(ids, d.ID)
	}
	return ids, cobra.ShellCompDirectiveNoFileComp
}

// modelStatus describes where a model is installed, if anywhere.
func modelStatus(storage models.Storage, id string) string {
	switch {
	case contains(storage.DownloadedModels(), id):
		return "installed"
	case contains(storage.BundledModels(), id):
		return "bundled"
	default:
		return "-"
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func runModelsList(cmd *cobra.Command, _ []string) error {
	reg, storage, err := openCatalog()
	if err != nil {
		return err
	}
	defer storage.Close() //nolint:errcheck

	writeModelTable(cmd.OutOrStdout(), reg.ListAvailableModels(), storage)

	if used, err := storage.UsedSpace(); err == nil {
		free := "unknown"
		if avail, err := storage.AvailableSpace(); err == nil {
			free = humanize.Bytes(uint64(avail)) //nolint:gosec
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), faintStyle.Render(fmt.Sprintf(
			"\n%s used in %s, %s free", humanize.Bytes(uint64(used)), storage.Root(), free))) //nolint:gosec
	}
	return nil
}

func writeModelTable(w io.Writer, descs []tts.ModelDescriptor, storage models.Storage) {
	headers := []string{"ID", "NAME", "SIZE", "LANGUAGE", "STATUS"}
	rows := make([][]string, 0, len(descs))
	for _, d := range descs {
		rows = append(rows, []string{
			d.ID,
			d.Name,
			humanize.Bytes(uint64(d.SizeBytes)), //nolint:gosec
			d.Language,
			modelStatus(storage, d.ID),
		})
	}
	widths := columnWidths(headers, rows)
	_, _ = fmt.Fprintln(w, headerStyle.Render(formatRow(headers, widths)))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, formatRow(row, widths))
	}
}

// modelMarkdown describes a model as markdown.
func modelMarkdown(d tts.ModelDescriptor, status string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", d.Name)
	if d.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", d.Description)
	}
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| ID | `%s` |\n", d.ID)
	fmt.Fprintf(&b, "| Status | %s |\n", status)
	fmt.Fprintf(&b, "| Size | %s |\n", humanize.Bytes(uint64(d.SizeBytes))) //nolint:gosec
	fmt.Fprintf(&b, "| Language | %s |\n", d.Language)
	fmt.Fprintf(&b, "| Sample rate | %d Hz |\n", d.SampleRate)
	fmt.Fprintf(&b, "| Layout | %s |\n", d.Architecture)
	if d.DefaultStyle != "" {
		fmt.Fprintf(&b, "| Default style | %s |\n", d.DefaultStyle)
	}
	if len(d.RequiredFiles) > 0 {
		b.WriteString("\n## Files\n\n")
		for _, f := range d.RequiredFiles {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}
	return b.String()
}

func runModelsShow(cmd *cobra.Command, args []string) error {
	reg, storage, err := openCatalog()
	if err != nil {
		return err
	}
	defer storage.Close() //nolint:errcheck

	d, ok := reg.GetModelByID(args[0])
	if !ok {
		return tts.NewError(tts.KindModelNotFound, "unknown model", nil).WithContext("model", args[0])
	}
	md := modelMarkdown(d, modelStatus(storage, d.ID))

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		_, err := fmt.Fprint(cmd.OutOrStdout(), md)
		return err //nolint:wrapcheck
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("unable to render model description: %w", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err //nolint:wrapcheck
}

func runModelsDownload(cmd *cobra.Command, args []string) error {
	reg, storage, err := openCatalog()
	if err != nil {
		return err
	}
	defer storage.Close() //nolint:errcheck

	d, ok := reg.GetModelByID(args[0])
	if !ok {
		return tts.NewError(tts.KindModelNotFound, "unknown model", nil).WithContext("model", args[0])
	}

	src, release, err := openSource()
	if err != nil {
		return err
	}
	defer release() //nolint:errcheck

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Download.Timeout)
	defer cancel()

	dl := models.NewDownloader(storage, src, models.WithDownloaderLogger(log.Default()))
	ch, err := dl.Download(ctx, d)
	if err != nil {
		return err
	}

	var final models.Progress
	if term.IsTerminal(int(os.Stdout.Fd())) {
		final, err = runDownloadUI(d, ch, func() { dl.Cancel(d.ID) })
		if err != nil {
			return err
		}
	} else {
		final = logDownload(cmd.OutOrStdout(), ch)
	}

	switch final.State {
	case models.StateComplete:
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("Installed "+d.ID+" in "+storage.Dir(d.ID)))
		return nil
	case models.StateCancelled:
		return tts.NewError(tts.KindCancelled, "download cancelled", final.Err)
	default:
		if final.Err != nil {
			return final.Err
		}
		return tts.NewError(tts.KindModelDownloadFailed, "download did not complete", nil)
	}
}

// logDownload prints state changes as plain lines and returns the last
// update.
func logDownload(w io.Writer, ch <-chan models.Progress) models.Progress {
	var (
		last models.Progress
		seen bool
	)
	for p := range ch {
		if !seen || p.State != last.State {
			line := fmt.Sprintf("%s %s", p.ModelID, p.State)
			if p.Total > 0 {
				line += " (" + humanize.Bytes(uint64(p.Total)) + ")" //nolint:gosec
			}
			_, _ = fmt.Fprintln(w, line)
		}
		last, seen = p, true
	}
	return last
}

func runModelsDelete(cmd *cobra.Command, args []string) error {
	_, storage, err := openCatalog()
	if err != nil {
		return err
	}
	defer storage.Close() //nolint:errcheck

	if err := storage.Delete(args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Deleted", args[0])
	return nil
}
