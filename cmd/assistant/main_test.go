package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navgurukul.org/assistant/internal/config"
)

type cliEnv struct {
	db      string
	session string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	return cliEnv{
		db:      filepath.Join(dir, "assistant.db"),
		session: filepath.Join(dir, "session"),
	}
}

// run executes the CLI with the env's database and session file.
func (e cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--db", e.db, "--session-file", e.session, "--mock"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

// --- root command tests ---

func TestRootCmd_Help(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	for _, sub := range []string{"serve", "user", "chat", "version"} {
		assert.Contains(t, out, sub)
	}
	for _, flag := range []string{"--db", "--session-file", "--mock", "--verbose"} {
		assert.Contains(t, out, flag)
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "assistant dev")
}

func TestNewUserCmd(t *testing.T) {
	cmd := newUserCmd(&globalFlags{})
	assert.Equal(t, "user", cmd.Use)
	names := []string{}
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"signup", "login", "logout", "whoami"}, names)
}

func TestServeCmd_Help(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"serve", "--help"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "--port")
}

// --- user command tests ---

func TestUserFlow(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "", "user", "signup", "Student@NavGurukul.org", "--password", "password1")
	require.NoError(t, err)
	assert.Contains(t, out, "Account created successfully! Please sign in.")

	out, err = env.run(t, "", "user", "signup", "student@navgurukul.org", "--password", "password1")
	require.Error(t, err)
	assert.Contains(t, out, "An account with this email already exists.")

	_, err = env.run(t, "", "user", "whoami")
	assert.ErrorIs(t, err, errNotSignedIn)

	out, err = env.run(t, "", "user", "login", "student@navgurukul.org", "--password", "nope12345")
	require.Error(t, err)
	assert.Contains(t, out, "Invalid email or password. Please try again.")

	// password from stdin when the flag is omitted
	out, err = env.run(t, "password1\n", "user", "login", "student@navgurukul.org")
	require.NoError(t, err)
	assert.Contains(t, out, "Login successful!")

	token, err := os.ReadFile(env.session)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(string(token)))

	out, err = env.run(t, "", "user", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "student@navgurukul.org\n", out)

	out, err = env.run(t, "", "user", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")
	_, err = os.Stat(env.session)
	assert.True(t, os.IsNotExist(err))

	_, err = env.run(t, "", "user", "whoami")
	assert.ErrorIs(t, err, errNotSignedIn)
}

func TestUserSignup_PolicyMessage(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "", "user", "signup", "a@b.co", "--password", "abcdefgh")
	require.Error(t, err)
	assert.Contains(t, out, "Password must contain a number.")
}

// --- chat command tests ---

func TestChat_RequiresSession(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "/quit\n", "chat")
	assert.ErrorIs(t, err, errNotSignedIn)
}

func TestChat_Conversation(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "", "user", "signup", "a@navgurukul.org", "--password", "password1")
	require.NoError(t, err)
	_, err = env.run(t, "", "user", "login", "a@navgurukul.org", "--password", "password1")
	require.NoError(t, err)

	input := strings.Join([]string{
		"hello",
		"/up 3",
		"/up 3",
		"/down 2",
		"/bogus",
		"/clear",
		"/quit",
	}, "\n") + "\n"
	out, err := env.run(t, input, "chat")
	require.NoError(t, err)

	profile := config.DefaultProfile()
	assert.Contains(t, out, "Signed in as a@navgurukul.org.")
	assert.Contains(t, out, "[1] assistant: "+profile.Greeting)
	assert.Contains(t, out, profile.SuggestedPrompts[0])
	assert.Contains(t, out, `[3] assistant: (mock reply 1) You asked: "hello".`)
	assert.Contains(t, out, "Sources:\n  - NavGurukul (https://www.navgurukul.org/)")
	assert.Contains(t, out, "Thanks for the feedback.")
	assert.Contains(t, out, "Feedback was already recorded for that message.")
	assert.Contains(t, out, "error: message 2 is not an assistant answer")
	assert.Contains(t, out, "error: unknown command /bogus.")
	assert.Contains(t, out, "[1] assistant: "+profile.ClearedGreeting)
}

func TestChat_FileCommand(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "", "user", "signup", "a@navgurukul.org", "--password", "password1")
	require.NoError(t, err)
	_, err = env.run(t, "", "user", "login", "a@navgurukul.org", "--password", "password1")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "leave.txt")
	require.NoError(t, os.WriteFile(path, []byte("Two days per month."), 0o600))

	out, err := env.run(t, "/file "+path+" How many days?\n/file\n/quit\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "* You have uploaded leave.txt.")
	assert.Contains(t, out, `You asked: "How many days?"`)
	assert.Contains(t, out, "error: usage: /file <path> [question]")
}
