package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/account-scaffold/internal/apperror"
	"github.com/sakif/account-scaffold/internal/model"
	"github.com/sakif/account-scaffold/internal/validator"
)

// pipedPrompter reads every answer, passwords included, from input.
func pipedPrompter(input string) (*prompter, *bytes.Buffer) {
	out := &bytes.Buffer{}
	p := &prompter{in: bufio.NewReader(strings.NewReader(input)), out: out}
	p.readPassword = p.line
	return p, out
}

func TestRun_CreatesSuperuser(t *testing.T) {
	p, out := pipedPrompter("admin\nadmin@foothub.com\ns3cret-pass\ns3cret-pass\n")

	var got validator.Credentials
	create := func(_ context.Context, c validator.Credentials) (*model.Account, error) {
		got = c
		return &model.Account{Username: *c.Username, IsSuperuser: true}, nil
	}

	require.NoError(t, run(context.Background(), p, create))

	assert.Equal(t, "admin", *got.Username)
	assert.Equal(t, "admin@foothub.com", *got.Email)
	assert.Equal(t, "s3cret-pass", *got.Password)
	assert.Contains(t, out.String(), `Superuser "admin" created.`)
}

func TestRun_PasswordMismatchRetries(t *testing.T) {
	p, out := pipedPrompter("admin\nadmin@foothub.com\none-password\nother-password\ns3cret-pass\ns3cret-pass\n")

	called := false
	create := func(_ context.Context, c validator.Credentials) (*model.Account, error) {
		called = true
		assert.Equal(t, "s3cret-pass", *c.Password)
		return &model.Account{Username: *c.Username}, nil
	}

	require.NoError(t, run(context.Background(), p, create))
	assert.True(t, called)
	assert.Contains(t, out.String(), "Your passwords didn't match.")
}

func TestRun_GivesUpAfterRepeatedMismatch(t *testing.T) {
	p, _ := pipedPrompter("admin\nadmin@foothub.com\na1\nb1\na2\nb2\na3\nb3\n")

	err := run(context.Background(), p, func(context.Context, validator.Credentials) (*model.Account, error) {
		t.Fatal("create must not be called")
		return nil, nil
	})
	assert.ErrorIs(t, err, errPasswordMismatch)
}

func TestRun_PrintsFieldErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "validation",
			err: apperror.FieldErrors{
				"username": {"Enter a valid username."},
				"password": {"Ensure this field has at least 8 characters."},
			},
			want: []string{
				"Error: password: Ensure this field has at least 8 characters.",
				"Error: username: Enter a valid username.",
			},
		},
		{
			name: "duplicate",
			err:  apperror.Duplicate("user", "email"),
			want: []string{"Error: email: user with this email already exists."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, out := pipedPrompter("x\ny\npw\npw\n")

			err := run(context.Background(), p, func(context.Context, validator.Credentials) (*model.Account, error) {
				return nil, tt.err
			})

			assert.Error(t, err)
			for _, line := range tt.want {
				assert.Contains(t, out.String(), line)
			}
		})
	}
}

func TestRun_EOFBeforeAnswers(t *testing.T) {
	p, _ := pipedPrompter("")

	err := run(context.Background(), p, func(context.Context, validator.Credentials) (*model.Account, error) {
		return nil, nil
	})
	assert.Error(t, err)
}
