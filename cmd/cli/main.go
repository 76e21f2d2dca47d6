package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/bapaynter/commtrack/internal/board"
	"github.com/bapaynter/commtrack/internal/config"
	"github.com/bapaynter/commtrack/internal/models"
	"github.com/bapaynter/commtrack/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	var dataPath string

	rootCmd := &cobra.Command{
		Use:   "commtrack-cli",
		Short: "Manage the commission data file from the command line",
	}
	rootCmd.PersistentFlags().StringVar(&dataPath, "data", config.DefaultDataPath(), "Path to the commissions JSON file")

	open := func() (*store.Repository, error) {
		db, err := store.NewFileDB(dataPath)
		if err != nil {
			return nil, err
		}
		return store.NewRepository(db, nil), nil
	}

	rootCmd.AddCommand(hashPasswordCmd())
	rootCmd.AddCommand(listCmd(open))
	rootCmd.AddCommand(statsCmd(open))
	rootCmd.AddCommand(moveCmd(open))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type opener func() (*store.Repository, error)

func hashPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("--password is required")
			}
			hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			fmt.Println(string(hashed))
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Password to hash")
	return cmd
}

func listCmd(open opener) *cobra.Command {
	var status, search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List commissions in board order",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := open()
			if err != nil {
				return err
			}
			records, err := repo.FetchAll()
			if err != nil {
				return err
			}
			filtered := models.Filter(records, search, status)
			if len(filtered) == 0 {
				fmt.Println("No commissions found.")
				return nil
			}

			return writeList(os.Stdout, filtered)
		},
	}
	cmd.Flags().StringVar(&status, "status", "All", "Filter by status (Requested|Started|Finished)")
	cmd.Flags().StringVar(&search, "search", "", "Case-insensitive match on title or client")
	return cmd
}

func statsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show totals and collection rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := open()
			if err != nil {
				return err
			}
			stats, err := repo.GetDashboardStats()
			if err != nil {
				return err
			}
			fmt.Printf("Commissions:     %d (%d requested, %d in progress, %d completed)\n",
				stats.TotalCommissions, stats.Requested, stats.Active, stats.Finished)
			fmt.Printf("Deposits taken:  %d\n", stats.Deposits)
			fmt.Printf("Total value:     $%s\n", stats.TotalValue.StringFixed(2))
			fmt.Printf("Paid:            %s\n", color.New(color.FgGreen).Sprint("$"+stats.PaidValue.StringFixed(2)))
			fmt.Printf("Pending:         %s\n", color.New(color.FgYellow).Sprint("$"+stats.PendingValue.StringFixed(2)))
			fmt.Printf("Collection rate: %d%%\n", stats.CollectionRate)
			return nil
		},
	}
}

func moveCmd(open opener) *cobra.Command {
	var id, to string
	var index int
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move a commission to a column position",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := open()
			if err != nil {
				return err
			}
			records, err := repo.FetchAll()
			if err != nil {
				return err
			}
			from, ok := locate(records, id)
			if !ok {
				return fmt.Errorf("commission %s not found", id)
			}

			updates, err := board.Apply(repo, board.Move{
				ID:   id,
				From: from,
				To:   board.Location{Status: models.Status(to), Index: index},
			})
			if err != nil {
				return err
			}
			if len(updates) == 0 {
				fmt.Println("Nothing to move.")
				return nil
			}
			fmt.Printf("Moved %s to %s #%d (%d records renumbered)\n", id, models.Status(to).Label(), index, len(updates))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Commission id")
	cmd.Flags().StringVar(&to, "to", "", "Destination column (Requested|Started|Finished)")
	cmd.Flags().IntVar(&index, "index", 0, "0-based position in the destination column")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("to")
	return cmd
}

// statusWidth fits the longest column label ("In Progress").
const statusWidth = 11

// writeList prints records as a table. tabwriter counts colour escapes as
// width, so the coloured labels go in the last cell, padded before colouring.
func writeList(out io.Writer, records []models.Commission) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTITLE\tCLIENT\tPRICE\t%-*s  PAYMENT\n", statusWidth, "STATUS")
	for _, c := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s  %s\n",
			c.ID, c.Title, c.ClientName, c.Price, statusLabel(c.Status), paymentLabel(c.PaymentStatus))
	}
	return w.Flush()
}

// locate finds the current column and index of id on the board.
func locate(records []models.Commission, id string) (board.Location, bool) {
	for status, items := range board.Columns(records) {
		for i, c := range items {
			if c.ID == id {
				return board.Location{Status: status, Index: i}, true
			}
		}
	}
	return board.Location{}, false
}

func statusLabel(s models.Status) string {
	label := fmt.Sprintf("%-*s", statusWidth, s.Label())
	switch s {
	case models.StatusRequested:
		return color.New(color.FgBlue).Sprint(label)
	case models.StatusStarted:
		return color.New(color.FgYellow).Sprint(label)
	case models.StatusFinished:
		return color.New(color.FgGreen).Sprint(label)
	}
	return label
}

func paymentLabel(p models.PaymentStatus) string {
	switch p {
	case models.PaymentPaid:
		return color.New(color.FgGreen).Sprint(p)
	case models.PaymentDeposit:
		return color.New(color.FgYellow).Sprint(p)
	}
	return string(p)
}
