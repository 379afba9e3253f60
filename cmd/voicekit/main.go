package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/interviewly/voicekit/internal/auth"
	"github.com/interviewly/voicekit/internal/bootstrap"
	"github.com/interviewly/voicekit/internal/notify"
	"github.com/interviewly/voicekit/internal/recorder"
	"github.com/interviewly/voicekit/internal/shared"
	"github.com/interviewly/voicekit/internal/wire"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := bootstrap.LoadConfig()
	set := bootstrap.NewClientSet(cfg)
	defer set.Close()

	restoreSession(set.Auth)

	var err error
	switch os.Args[1] {
	case "signup":
		err = runSignUp(set, os.Args[2:])
	case "signin":
		err = runSignIn(set, os.Args[2:])
	case "signout":
		err = runSignOut(set)
	case "whoami":
		err = runWhoAmI(set)
	case "login":
		err = runOAuthLogin(set, os.Args[2:])
	case "record":
		err = runRecord(set, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "voicekit: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: voicekit <command> [flags]

commands:
  signup   -email -password [-name]   register a new account
  signin   -email -password           sign in with email and password
  signout                             sign out and clear the stored session
  whoami                              show the current session
  login    -provider google|github    sign in through an OAuth provider
  record   -room [-name] [-role]      record audio into an interview room`)
}

func runSignUp(set *bootstrap.ClientSet, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	name := fs.String("name", "", "display name")
	_ = fs.Parse(args)

	if set.Auth == nil {
		return fmt.Errorf("AUTH_BASE_URL not configured")
	}
	data := map[string]any{}
	if *name != "" {
		data[auth.ProfileKeyName] = *name
	}
	session, err := set.Auth.SignUp(context.Background(), *email, *password, data)
	if err != nil {
		return err
	}
	saveSession(session)
	fmt.Printf("signed up as %s\n", session.User.Email)
	return nil
}

func runSignIn(set *bootstrap.ClientSet, args []string) error {
	fs := flag.NewFlagSet("signin", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	_ = fs.Parse(args)

	if set.Auth == nil {
		return fmt.Errorf("AUTH_BASE_URL not configured")
	}
	session, err := set.Auth.SignIn(context.Background(), *email, *password)
	if err != nil {
		return err
	}
	saveSession(session)
	fmt.Printf("signed in as %s\n", session.User.Email)
	return nil
}

func runSignOut(set *bootstrap.ClientSet) error {
	if set.Auth == nil {
		return fmt.Errorf("AUTH_BASE_URL not configured")
	}
	err := set.Auth.SignOut(context.Background())
	clearSession()
	if err != nil {
		return err
	}
	fmt.Println("signed out")
	return nil
}

func runWhoAmI(set *bootstrap.ClientSet) error {
	if set.Auth == nil {
		return fmt.Errorf("AUTH_BASE_URL not configured")
	}
	session, err := set.Auth.CurrentSession(context.Background())
	if err != nil {
		return err
	}
	if session == nil {
		fmt.Println("not signed in")
		return nil
	}
	fmt.Printf("%s (%s)\n", session.User.Name, session.User.Email)
	return nil
}

// runOAuthLogin walks the authorization code flow by hand: print the URL,
// paste the code back. Good enough for development against a local identity
// service.
func runOAuthLogin(set *bootstrap.ClientSet, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	providerName := fs.String("provider", "google", "oauth provider")
	_ = fs.Parse(args)

	provider := set.OAuthProvider(*providerName)
	if provider == nil {
		return fmt.Errorf("provider %q not configured", *providerName)
	}

	state := shared.NewID("state_")
	fmt.Printf("open this URL in a browser:\n\n  %s\n\npaste the authorization code: ", provider.AuthURL(state))

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return fmt.Errorf("no code provided")
	}

	user, err := provider.Exchange(context.Background(), scanner.Text())
	if err != nil {
		return err
	}
	fmt.Printf("authenticated with %s as %s (%s)\n", provider.Name(), user.Name, user.Email)
	return nil
}

func runRecord(set *bootstrap.ClientSet, args []string) error {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	room := fs.String("room", "", "room to join")
	name := fs.String("name", "", "speaker name")
	role := fs.String("role", string(shared.RoleCandidate), "speaker role (interviewer or candidate)")
	_ = fs.Parse(args)

	speaker := *name
	if speaker == "" && set.Auth != nil {
		if s := set.Auth.Session(); s != nil {
			speaker = s.User.Name
		}
	}
	if speaker == "" {
		speaker = "anonymous"
	}

	notifier := notify.Func(func(title, description string, severity notify.Severity) {
		fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", severity, title, description)
	})
	sink := recorder.TranscriptSink(func(line wire.TranscriptLine) {
		fmt.Printf("%s: %s\n", line.Speaker, line.Text)
	})

	ctrl, err := set.NewRecorder(*room, speaker, shared.Role(*role), sink, notifier)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctrl.Start(context.Background())
	fmt.Fprintln(os.Stderr, "recording, press ctrl-c to stop")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctrl.Stop()
	return nil
}

func sessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".voicekit", "session.json")
}

func restoreSession(client *auth.Client) {
	if client == nil {
		return
	}
	path := sessionPath()
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var session auth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return
	}
	client.RestoreSession(&session)
}

func saveSession(session *auth.Session) {
	path := sessionPath()
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return
	}
	data, err := json.Marshal(session)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o600)
}

func clearSession() {
	if path := sessionPath(); path != "" {
		_ = os.Remove(path)
	}
}
