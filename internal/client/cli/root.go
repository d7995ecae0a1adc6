package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pollctl/internal/auth"
	"pollctl/internal/client/api"
	"pollctl/internal/client/config"
	"pollctl/internal/client/events"
	"pollctl/internal/client/inspector"
	"pollctl/internal/client/session"
	"pollctl/internal/client/tui"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const defaultInspectAddr = "127.0.0.1:4040"

var rootCmd = &cobra.Command{
	Use:   "pollctl",
	Short: "Create polls, vote and watch results live",
}

var (
	inspectAddr string
	verbose     bool
)

// Version is set at build time.
var Version = "dev"

func Init(version string) {
	if version != "" {
		Version = version
	}
	rootCmd.Version = Version
	tui.Version = Version

	rootCmd.PersistentFlags().StringVar(&inspectAddr, "inspect", "", "record API traffic and serve it as JSON on this address")
	rootCmd.PersistentFlags().Lookup("inspect").NoOptDefVal = defaultInspectAddr
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log live-update diagnostics")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
	rootCmd.AddCommand(pollsCmd, showCmd, createCmd, tokensCmd, finalizeCmd, deleteCmd, shareCmd)
	rootCmd.AddCommand(voteCmd, watchCmd)
	rootCmd.AddCommand(configCmd, devserverCmd)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// app is what every networked command needs.
type app struct {
	cfg     *config.Config
	session *session.Session
	client  *api.Client
	bus     *events.Bus
}

func newApp(cmd *cobra.Command) *app {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	key, err := config.EnsureSessionKey(cfg)
	if err != nil {
		log.Fatalf("Error preparing session key: %v", err)
	}
	sealer, err := auth.NewSealer(key)
	if err != nil {
		log.Fatalf("Invalid session key in config: %v", err)
	}
	path, err := config.GetSessionPath()
	if err != nil {
		log.Fatalf("Error locating session file: %v", err)
	}
	sess, err := session.New(session.NewFileStore(path, sealer))
	if err != nil {
		log.Fatalf("Error loading session: %v", err)
	}

	bus := events.NewBus()
	httpClient := &http.Client{Timeout: 30 * time.Second}
	if inspectAddr != "" {
		store := inspector.NewInMemoryStore(200)
		httpClient.Transport = inspector.NewRecorder(nil, store, bus)
		go func() {
			if err := inspector.Serve(cmd.Context(), inspectAddr, store); err != nil {
				log.Printf("Inspector stopped: %v", err)
			}
		}()
	}

	return &app{
		cfg:     cfg,
		session: sess,
		client:  api.NewClient(cfg.APIURL, sess, api.WithHTTPClient(httpClient)),
		bus:     bus,
	}
}

// pollRef accepts a public id or a vote link ending in /poll/<id>.
func pollRef(arg string) string {
	arg = strings.TrimSpace(arg)
	if _, err := uuid.Parse(arg); err == nil {
		return arg
	}
	if u, err := url.Parse(arg); err == nil && u.Path != "" {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 2 && parts[len(parts)-2] == "poll" {
			return parts[len(parts)-1]
		}
	}
	return arg
}

// describe turns client errors into one line for the terminal.
func describe(err error, apiURL string) string {
	var (
		ve     *api.ValidationError
		vote   *api.VotingError
		netErr *api.NetworkError
		dec    *api.DecodeError
	)
	switch {
	case errors.Is(err, api.ErrInvalidCredentials):
		return "Invalid username or password"
	case errors.Is(err, api.ErrUnauthorized):
		return "Not signed in or session expired. Run 'pollctl login'."
	case errors.Is(err, api.ErrNotFound):
		return "Poll not found"
	case errors.Is(err, api.ErrForbidden):
		return "You are not allowed to do that"
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &vote):
		return "Vote rejected: " + vote.Message
	case errors.As(err, &netErr):
		return fmt.Sprintf("Cannot reach the poll service at %s: %v", apiURL, netErr.Err)
	case errors.As(err, &dec):
		return "Unexpected response from the poll service: " + dec.Error()
	}
	return err.Error()
}

func (a *app) fatal(err error) {
	log.Fatalf("Error: %s", describe(err, a.cfg.APIURL))
}
