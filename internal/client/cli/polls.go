package cli

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"pollctl/internal/client/api"
	"pollctl/internal/client/share"
	"pollctl/internal/client/tui"
	"pollctl/pkg/protocol"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// pollTable lists polls with their vote totals.
func pollTable(polls []api.Poll) string {
	rows := make([][]string, 0, len(polls))
	for _, p := range polls {
		badge := p.Status
		if p.Restricted() {
			badge += " 🔒"
		}
		rows = append(rows, []string{p.PublicID, p.Title, p.Mode, badge, strconv.FormatInt(p.Results.Total(), 10)})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "MODE", "STATUS", "VOTES").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func printPoll(p api.Poll, link string) {
	fmt.Printf("%s\n", p.Title)
	if p.Description != "" {
		fmt.Printf("%s\n", p.Description)
	}
	fmt.Printf("\nMode:   %s\nStatus: %s\n", p.Mode, p.Status)
	if p.StartsAt != nil {
		fmt.Printf("Starts: %s\n", p.StartsAt.Local().Format(time.RFC1123))
	}
	if p.EndsAt != nil {
		fmt.Printf("Ends:   %s\n", p.EndsAt.Local().Format(time.RFC1123))
	}
	if link != "" {
		fmt.Printf("Link:   %s\n", link)
	}
	fmt.Println()
	fmt.Print(tui.RenderResults(p, p.Results))
}

var pollsCmd = &cobra.Command{
	Use:   "polls",
	Short: "List public polls, or your own with --mine",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)

		mine, _ := cmd.Flags().GetBool("mine")
		var (
			polls []api.Poll
			err   error
		)
		if mine {
			polls, err = a.client.ListOwnedPolls(cmd.Context())
		} else {
			polls, err = a.client.ListPolls(cmd.Context())
		}
		if err != nil {
			a.fatal(err)
		}

		if len(polls) == 0 {
			fmt.Println("No polls yet")
			return
		}
		fmt.Println(pollTable(polls))
	},
}

var showCmd = &cobra.Command{
	Use:   "show <poll>",
	Short: "Show a poll and its current results",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)
		p, err := a.client.GetPoll(cmd.Context(), pollRef(args[0]))
		if err != nil {
			a.fatal(err)
		}
		printPoll(p, a.cfg.ShareLink(p.PublicID))
	},
}

// parseTime accepts RFC 3339 or "2006-01-02 15:04" in local time.
func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q (use RFC 3339 or \"YYYY-MM-DD HH:MM\")", s)
	}
	return &t, nil
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a poll",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)

		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		mode, _ := cmd.Flags().GetString("mode")
		public, _ := cmd.Flags().GetBool("public")
		texts, _ := cmd.Flags().GetStringArray("choice")
		starts, _ := cmd.Flags().GetString("starts")
		ends, _ := cmd.Flags().GetString("ends")
		tokenCount, _ := cmd.Flags().GetInt("tokens")

		spec := api.PollSpec{Title: title, Description: description, Mode: mode, Public: public}
		for _, text := range texts {
			spec.Choices = append(spec.Choices, protocol.ChoiceInput{Text: text})
		}
		var err error
		if spec.StartsAt, err = parseTime(starts); err != nil {
			log.Fatalf("Error: %v", err)
		}
		if spec.EndsAt, err = parseTime(ends); err != nil {
			log.Fatalf("Error: %v", err)
		}

		p, err := a.client.CreatePoll(cmd.Context(), spec)
		if err != nil {
			a.fatal(err)
		}
		fmt.Printf("Created %q (%s)\n", p.Title, p.PublicID)
		fmt.Printf("Vote link: %s\n", a.cfg.ShareLink(p.PublicID))

		if tokenCount > 0 {
			if !p.Restricted() {
				fmt.Println("Skipping --tokens: only restricted polls use voter tokens")
				return
			}
			tokens, err := a.client.GenerateTokens(cmd.Context(), p.PublicID, tokenCount)
			if err != nil {
				a.fatal(err)
			}
			fmt.Printf("\nVoter tokens:\n%s\n", share.TokenList(tokens))
		}
	},
}

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage voter tokens of a restricted poll",
}

var tokensGenerateCmd = &cobra.Command{
	Use:   "generate <poll> <count>",
	Short: "Generate new voter tokens",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)
		count, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("Error: count must be a number")
		}
		tokens, err := a.client.GenerateTokens(cmd.Context(), pollRef(args[0]), count)
		if err != nil {
			a.fatal(err)
		}
		printTokens(cmd, tokens)
	},
}

var tokensListCmd = &cobra.Command{
	Use:   "list <poll>",
	Short: "List the voter tokens generated so far",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)
		tokens, err := a.client.FetchTokens(cmd.Context(), pollRef(args[0]))
		if err != nil {
			a.fatal(err)
		}
		if len(tokens) == 0 {
			fmt.Println("No tokens yet")
			return
		}
		printTokens(cmd, tokens)
	},
}

func printTokens(cmd *cobra.Command, tokens []string) {
	list := share.TokenList(tokens)
	fmt.Println(list)
	if copyFlag, _ := cmd.Flags().GetBool("copy"); copyFlag {
		if err := share.CopyToTerminal(list); err != nil {
			log.Printf("Could not copy: %v", err)
			return
		}
		fmt.Printf("Copied %d tokens to the clipboard\n", len(tokens))
	}
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize <poll>",
	Short: "Record the final results of a closed poll",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)
		p, err := a.client.FinalizePoll(cmd.Context(), pollRef(args[0]))
		if err != nil {
			a.fatal(err)
		}
		fmt.Printf("Finalized %q\n\n", p.Title)
		fmt.Print(tui.RenderResults(p, p.Results))
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <poll>",
	Short: "Delete a poll you own",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)
		id := pollRef(args[0])

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			answer, err := tui.Prompt("Delete? (y/N)", false)
			if err != nil || (answer != "y" && answer != "yes") {
				fmt.Println("Aborted")
				return
			}
		}

		if err := a.client.DeletePoll(cmd.Context(), id); err != nil {
			a.fatal(err)
		}
		fmt.Println("Deleted")
	},
}

var shareCmd = &cobra.Command{
	Use:   "share <poll>",
	Short: "Print the vote link of a poll",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)
		p, err := a.client.GetPoll(cmd.Context(), pollRef(args[0]))
		if err != nil {
			a.fatal(err)
		}

		link := a.cfg.ShareLink(p.PublicID)
		msg := share.Message(p.Title, link, p.Restricted())
		fmt.Println(msg)

		if copyFlag, _ := cmd.Flags().GetBool("copy"); copyFlag {
			if err := share.CopyToTerminal(link); err != nil {
				log.Printf("Could not copy: %v", err)
				return
			}
			fmt.Println("Link copied to the clipboard")
		}
	},
}

func init() {
	pollsCmd.Flags().Bool("mine", false, "list your own polls")

	createCmd.Flags().String("title", "", "poll title")
	createCmd.Flags().String("description", "", "poll description")
	createCmd.Flags().String("mode", protocol.ModeOpen, "voting mode: open or restricted")
	createCmd.Flags().Bool("public", false, "list the poll publicly")
	createCmd.Flags().StringArray("choice", nil, "a choice (repeat for each)")
	createCmd.Flags().String("starts", "", "voting start time")
	createCmd.Flags().String("ends", "", "voting end time")
	createCmd.Flags().Int("tokens", 0, "generate this many voter tokens (restricted polls)")

	tokensGenerateCmd.Flags().Bool("copy", false, "copy the tokens to the clipboard")
	tokensListCmd.Flags().Bool("copy", false, "copy the tokens to the clipboard")
	tokensCmd.AddCommand(tokensGenerateCmd, tokensListCmd)

	deleteCmd.Flags().Bool("yes", false, "skip confirmation")
	shareCmd.Flags().Bool("copy", false, "copy the link to the clipboard")
}
