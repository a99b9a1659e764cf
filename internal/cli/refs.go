package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/alanmeadows/chetter/internal/batch"
	"github.com/alanmeadows/chetter/internal/lifecycle"
	"github.com/alanmeadows/chetter/internal/provider"
	ghprovider "github.com/alanmeadows/chetter/internal/provider/github"
	"github.com/alanmeadows/chetter/internal/server"
)

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "Inspect and clean up tracked refs",
}

var pruneDryRun bool

func init() {
	refsPruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "List the refs that would be deleted")

	refsCmd.AddCommand(refsListCmd)
	refsCmd.AddCommand(refsPruneCmd)
}

var refsListCmd = &cobra.Command{
	Use:     "list <owner/repo> <pr>",
	Short:   "List the refs recorded for a pull request",
	Example: `  chetter refs list acme/widgets 1234`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, pr, err := controllerForArgs(cmd.Context(), args)
		if err != nil {
			return err
		}

		refs, err := c.MatchingRefs(cmd.Context(), fmt.Sprintf("%d/", pr))
		if err != nil {
			return fmt.Errorf("listing refs: %w", err)
		}
		printRefs(cmd.OutOrStdout(), refs)
		return nil
	},
}

var refsPruneCmd = &cobra.Command{
	Use:   "prune <owner/repo> <pr>",
	Short: "Delete every ref recorded for a pull request",
	Long: `Delete every ref recorded for a pull request, the same cleanup the daemon
runs when a PR is closed. Use this when the close event was missed.`,
	Example: `  chetter refs prune acme/widgets 1234
  chetter refs prune --dry-run acme/widgets 1234`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, pr, err := controllerForArgs(cmd.Context(), args)
		if err != nil {
			return err
		}

		if pruneDryRun {
			refs, err := c.MatchingRefs(cmd.Context(), fmt.Sprintf("%d/", pr))
			if err != nil {
				return fmt.Errorf("listing refs: %w", err)
			}
			printRefs(cmd.OutOrStdout(), refs)
			return nil
		}

		strategy, err := batch.ForName(appConfig.Refs.DeleteStrategy, appConfig.Refs.MaxConcurrency)
		if err != nil {
			return err
		}
		return prune(cmd.Context(), cmd.OutOrStdout(), c, pr, strategy)
	},
}

func prune(ctx context.Context, w io.Writer, c provider.RepositoryController, pr int, strategy batch.Strategy) error {
	if err := lifecycle.Close(ctx, c, pr, strategy); err != nil {
		return fmt.Errorf("pruning PR #%d: %w", pr, err)
	}
	fmt.Fprintf(w, "Pruned refs for PR #%d\n", pr)
	return nil
}

// controllerForArgs resolves "<owner/repo> <pr>" to an authenticated controller.
func controllerForArgs(ctx context.Context, args []string) (provider.RepositoryController, int, error) {
	name, err := ghprovider.ParseRepoName(args[0])
	if err != nil {
		return nil, 0, err
	}
	pr, err := parsePR(args[1])
	if err != nil {
		return nil, 0, err
	}

	source, err := server.NewSource(appConfig)
	if err != nil {
		return nil, 0, err
	}
	c, err := source.ControllerFor(ctx, name.Owner, name.Repo)
	if err != nil {
		return nil, 0, fmt.Errorf("connecting to %s: %w", name, err)
	}
	return c, pr, nil
}

func parsePR(s string) (int, error) {
	pr, err := strconv.Atoi(s)
	if err != nil || pr <= 0 {
		return 0, fmt.Errorf("invalid pull request number %q", s)
	}
	return pr, nil
}

func printRefs(w io.Writer, refs []provider.Ref) {
	if len(refs) == 0 {
		fmt.Fprintln(w, "No refs found.")
		return
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, len(refs))
	for _, r := range refs {
		rows = append(rows, []string{r.Name, shortSHA(r.SHA), r.FullName()})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "SHA", "REF").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	fmt.Fprintln(w, t)
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
