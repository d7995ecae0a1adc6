package cli

import (
	"fmt"
	"log"
	"path/filepath"
	"strconv"

	"pollctl/internal/client/api"
	"pollctl/internal/client/config"
	"pollctl/internal/client/live"
	"pollctl/internal/client/stats"
	"pollctl/internal/client/tui"
	"pollctl/internal/client/voting"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var voteCmd = &cobra.Command{
	Use:   "vote <poll> <choice-id>",
	Short: "Cast a vote",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)

		choiceID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			log.Fatalf("Error: choice id must be a number")
		}
		p, err := a.client.GetPoll(cmd.Context(), pollRef(args[0]))
		if err != nil {
			a.fatal(err)
		}

		token, _ := cmd.Flags().GetString("token")
		machine := voting.New(a.client)
		if machine.Load(p, token) == voting.StateNeedsToken {
			if err := machine.AcceptToken(promptIfEmpty("", "Voter token", false)); err != nil {
				log.Fatalf("Error: %v", err)
			}
		}

		results, err := machine.Select(cmd.Context(), choiceID)
		if err != nil {
			a.fatal(err)
		}
		choice, _ := p.Choice(choiceID)
		fmt.Printf("Voted for %q\n\n", choice.Text)
		fmt.Print(tui.RenderResults(p, results))
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <poll>",
	Short: "Watch live results and vote interactively",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)
		defer a.bus.Close()

		p, err := a.client.GetPoll(cmd.Context(), pollRef(args[0]))
		if err != nil {
			a.fatal(err)
		}

		token, _ := cmd.Flags().GetString("token")
		machine := voting.New(a.client)
		machine.Load(p, token)

		socketURL, err := a.cfg.LiveURL()
		if err != nil {
			log.Printf("Live socket disabled: %v", err)
			socketURL = ""
		}

		if verbose {
			// The alt screen hides log output; send it to a file instead
			if dir, err := config.HomeDir(); err == nil {
				if f, err := tea.LogToFile(filepath.Join(dir, "watch.log"), "watch"); err == nil {
					defer f.Close()
				}
			}
		}

		tracker := stats.New()
		ch := live.Open(cmd.Context(), a.client, p.PublicID, live.Options{
			Interval:  a.cfg.PollInterval,
			SocketURL: socketURL,
			Bus:       a.bus,
			Stats:     tracker,
			Debug:     verbose,
		})

		err = tui.Run(tui.Config{
			Poll:      p,
			Machine:   machine,
			Bus:       a.bus,
			Stats:     tracker,
			ShareLink: a.cfg.ShareLink(p.PublicID),
			Close:     ch.Close,
			Offer:     func(r api.Results) uint64 { return ch.Offer(r).Seq },
			Context:   cmd.Context(),
		})
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
	},
}

func init() {
	voteCmd.Flags().String("token", "", "voter token (restricted polls)")
	watchCmd.Flags().String("token", "", "voter token (restricted polls)")
}
