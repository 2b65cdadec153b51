package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"tarotbot/pkg/config"
)

const maxPasswordAttempts = 3

// prompter reads hidden input from the operator.
type prompter interface {
	Secret(label string) ([]byte, error)
}

// terminalPrompter reads from the controlling terminal without echo.
type terminalPrompter struct {
	out io.Writer
}

func (p terminalPrompter) Secret(label string) ([]byte, error) {
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(p.out) // New line after hidden input
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return b, nil
}

// loadSecrets decrypts the secrets file in dir into memory when it exists.
// Without a password from the environment the operator is prompted.
func loadSecrets(dir, password string) error {
	if !config.SecretsFileExists(dir) {
		return nil
	}
	if password == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("%s is encrypted: set %s", config.SecretsFileName, PasswordEnv)
		}
		b, err := terminalPrompter{out: os.Stdout}.Secret("Secrets password: ")
		if err != nil {
			return err
		}
		password = string(b)
		zero(b)
	}

	secrets, err := config.DecryptSecretsFile(dir, password)
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

// setSecrets asks for the bot token and API key and writes them to the
// encrypted secrets file in dir. Empty answers keep the stored value.
func setSecrets(dir string, in *os.File, out io.Writer) error {
	if !term.IsTerminal(int(in.Fd())) {
		return errors.New("secrets set needs an interactive terminal")
	}
	return storeSecrets(dir, os.Getenv(PasswordEnv), terminalPrompter{out: out}, out)
}

func storeSecrets(dir, password string, p prompter, out io.Writer) error {
	if password == "" {
		var err error
		if password, err = promptForPassword(p, out); err != nil {
			return err
		}
	}

	if config.SecretsFileExists(dir) {
		existing, err := config.DecryptSecretsFile(dir, password)
		if err != nil {
			return err
		}
		config.SetDecryptedSecrets(existing)
	}

	for _, name := range []string{config.SecretTelegramToken, config.SecretOpenRouterKey} {
		b, err := p.Secret(name + " (empty keeps current): ")
		if err != nil {
			return err
		}
		if v := strings.TrimSpace(string(b)); v != "" {
			config.SetSecret(name, v)
		}
		zero(b)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := config.SaveSecretsToFile(dir, password); err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Secrets saved to %s\n", dir)
	return nil
}

// promptForPassword asks for a new passphrase twice.
func promptForPassword(p prompter, out io.Writer) (string, error) {
	for attempt := 1; attempt <= maxPasswordAttempts; attempt++ {
		password1, err := p.Secret("Secrets password: ")
		if err != nil {
			return "", err
		}
		password2, err := p.Secret("Confirm password: ")
		if err != nil {
			zero(password1)
			return "", err
		}

		match := bytes.Equal(password1, password2) && len(password1) > 0
		password := string(password1)
		zero(password1)
		zero(password2)
		if match {
			return password, nil
		}
		if attempt < maxPasswordAttempts {
			fmt.Fprintln(out, "❌ Passwords are empty or do not match. Please try again.")
		}
	}
	return "", fmt.Errorf("passwords do not match after %d attempts", maxPasswordAttempts)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
