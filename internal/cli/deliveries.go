package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/alanmeadows/chetter/internal/config"
	"github.com/alanmeadows/chetter/internal/journal"
)

var deliveriesLimit int

func init() {
	deliveriesCmd.Flags().IntVarP(&deliveriesLimit, "limit", "n", 20, "Number of deliveries to show")
}

var deliveriesCmd = &cobra.Command{
	Use:   "deliveries",
	Short: "Show recent webhook deliveries",
	Long: `Show the most recent webhook deliveries recorded in the journal, newest
first, with the outcome of each.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ExpandHome(appConfig.Server.JournalPath)
		if path == "" {
			return fmt.Errorf("delivery journal is disabled (server.journal_path is empty)")
		}

		j, err := journal.Open(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer j.Close()

		deliveries, err := j.Recent(cmd.Context(), deliveriesLimit)
		if err != nil {
			return err
		}
		printDeliveries(cmd.OutOrStdout(), deliveries)
		return nil
	},
}

func printDeliveries(w io.Writer, deliveries []journal.Delivery) {
	if len(deliveries) == 0 {
		fmt.Fprintln(w, "No deliveries recorded.")
		return
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	failedStyle := cellStyle.Foreground(lipgloss.Color("9"))

	rows := make([][]string, 0, len(deliveries))
	for _, d := range deliveries {
		pr := ""
		if d.PR != 0 {
			pr = "#" + strconv.Itoa(d.PR)
		}
		rows = append(rows, []string{
			d.ReceivedAt.Local().Format(time.DateTime),
			d.ID,
			d.Event,
			d.Action,
			d.Repository,
			pr,
			d.Outcome,
			d.Error,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RECEIVED", "DELIVERY", "EVENT", "ACTION", "REPOSITORY", "PR", "OUTCOME", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 6 && (rows[row][6] == "failed" || rows[row][6] == "invalid") {
				return failedStyle
			}
			return cellStyle
		})

	fmt.Fprintln(w, t)
}
