package cli

import (
	"fmt"
	"log"

	"pollctl/internal/client/api"
	"pollctl/internal/client/tui"

	"github.com/spf13/cobra"
)

// promptIfEmpty fills value interactively when it was not given.
func promptIfEmpty(value, label string, secret bool) string {
	if value != "" {
		return value
	}
	v, err := tui.Prompt(label, secret)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	return v
}

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Sign in and store the session",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)

		username := ""
		if len(args) == 1 {
			username = args[0]
		}
		username = promptIfEmpty(username, "Username", false)
		password, _ := cmd.Flags().GetString("password")
		password = promptIfEmpty(password, "Password", true)

		user, err := a.client.Login(cmd.Context(), username, password)
		if err != nil {
			a.fatal(err)
		}
		fmt.Printf("Signed in as %s\n", user.Username)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register [username]",
	Short: "Create an account",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)

		p := api.Profile{}
		if len(args) == 1 {
			p.Username = args[0]
		}
		p.Username = promptIfEmpty(p.Username, "Username", false)
		p.Email, _ = cmd.Flags().GetString("email")
		p.FirstName, _ = cmd.Flags().GetString("first-name")
		p.LastName, _ = cmd.Flags().GetString("last-name")
		p.Password, _ = cmd.Flags().GetString("password")
		if p.Password == "" {
			p.Password = promptIfEmpty("", "Password", true)
			p.PasswordConfirm = promptIfEmpty("", "Confirm", true)
		} else {
			p.PasswordConfirm = p.Password
		}

		user, err := a.client.Register(cmd.Context(), p)
		if err != nil {
			a.fatal(err)
		}
		if a.session.CurrentUser() != nil {
			fmt.Printf("Registered and signed in as %s\n", user.Username)
		} else {
			fmt.Printf("Registered %s. Run 'pollctl login' to sign in.\n", user.Username)
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the session",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)
		if err := a.client.Logout(cmd.Context()); err != nil {
			log.Fatalf("Error clearing session: %v", err)
		}
		fmt.Println("Signed out")
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := newApp(cmd)
		user := a.session.CurrentUser()
		if user == nil {
			fmt.Println("Not signed in")
			return
		}
		fmt.Printf("%s", user.Username)
		if user.Email != "" {
			fmt.Printf(" <%s>", user.Email)
		}
		fmt.Printf("\nServer: %s\n", a.cfg.APIURL)
	},
}

func init() {
	loginCmd.Flags().String("password", "", "password (prompted when omitted)")

	registerCmd.Flags().String("email", "", "email address")
	registerCmd.Flags().String("first-name", "", "first name")
	registerCmd.Flags().String("last-name", "", "last name")
	registerCmd.Flags().String("password", "", "password (prompted when omitted)")
}
