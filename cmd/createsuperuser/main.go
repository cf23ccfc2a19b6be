// Command createsuperuser creates an account with the superuser flag set.
//
// It is the only way to get such an account: the public registration
// endpoint never sets the flag. It reads the same configuration as the
// server (environment plus optional .env), so it writes to the same store
// with the same hasher and validation rules.
//
//	$ go run ./cmd/createsuperuser
//	Username
//	> admin
//	Email address
//	> admin@example.com
//	Password:
//	Password (again):
//	Superuser "admin" created.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/config"
	"github.com/sakif/account-scaffold/internal/model"
	"github.com/sakif/account-scaffold/internal/server"
	"github.com/sakif/account-scaffold/internal/validator"
)

// maxPasswordTries bounds how often a mismatched confirmation is re-asked.
const maxPasswordTries = 3

var errPasswordMismatch = errors.New("passwords did not match")

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Error: reading .env:", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	// Only warnings and errors: the prompt owns stdout.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx := context.Background()
	deps, err := server.Build(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	defer deps.Close()

	p := newPrompter(os.Stdin, os.Stdout)
	if err := run(ctx, p, deps.Accounts.CreateSuperuser); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		deps.Close()
		os.Exit(1)
	}
}

// prompter reads answers from the terminal, or from any reader when input
// is piped.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	// readPassword reads one password without echo.
	readPassword func() (string, error)
}

func newPrompter(stdin *os.File, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(stdin), out: out}
	fd := int(stdin.Fd())
	if term.IsTerminal(fd) {
		p.readPassword = func() (string, error) {
			pw, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			return string(pw), err
		}
	} else {
		p.readPassword = p.line
	}
	return p
}

// line reads one line without its trailing newline. A final line without
// newline is accepted.
func (p *prompter) line() (string, error) {
	s, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

func (p *prompter) text(label string) (string, error) {
	fmt.Fprint(p.out, label+"\n> ")
	s, err := p.line()
	return strings.TrimSpace(s), err
}

// password asks twice and retries on a mismatch.
func (p *prompter) password() (string, error) {
	for i := 0; i < maxPasswordTries; i++ {
		fmt.Fprint(p.out, "Password: ")
		first, err := p.readPassword()
		if err != nil {
			return "", err
		}
		fmt.Fprint(p.out, "Password (again): ")
		second, err := p.readPassword()
		if err != nil {
			return "", err
		}
		if first == second {
			return first, nil
		}
		fmt.Fprintln(p.out, "Error: Your passwords didn't match.")
	}
	return "", errPasswordMismatch
}

type createFunc func(ctx context.Context, creds validator.Credentials) (*model.Account, error)

// run prompts for the three fields and creates the superuser. Validation
// and duplicate errors are printed per field.
func run(ctx context.Context, p *prompter, create createFunc) error {
	username, err := p.text("Username")
	if err != nil {
		return fmt.Errorf("reading username: %w", err)
	}
	email, err := p.text("Email address")
	if err != nil {
		return fmt.Errorf("reading email: %w", err)
	}
	password, err := p.password()
	if err != nil {
		return err
	}

	account, err := create(ctx, validator.Credentials{
		Username: &username,
		Email:    &email,
		Password: &password,
	})
	if err != nil {
		if fe, ok := fieldErrors(err); ok {
			printFieldErrors(p.out, fe)
			return errors.New("superuser not created")
		}
		return err
	}

	fmt.Fprintf(p.out, "Superuser %q created.\n", account.Username)
	return nil
}

func fieldErrors(err error) (apperror.FieldErrors, bool) {
	var fe apperror.FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	var dup *apperror.DuplicateError
	if errors.As(err, &dup) {
		return dup.FieldErrors(), true
	}
	return nil, false
}

func printFieldErrors(w io.Writer, fe apperror.FieldErrors) {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		for _, msg := range fe[f] {
			fmt.Fprintf(w, "Error: %s: %s\n", f, msg)
		}
	}
}
