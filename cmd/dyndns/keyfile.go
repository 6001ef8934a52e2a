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
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"golang.org/x/term"
)

func defaultKeyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cloudflare"
	}
	return filepath.Join(home, ".cloudflare")
}

// cloudflareToken returns the token from the environment or the key file,
// running interactive setup when the key file is missing and stdin is a terminal.
func cloudflareToken(ctx context.Context, token, keyFile string, logger *slog.Logger, stdout io.Writer) (string, error) {
	if token != "" {
		logger.Debug("using cloudflare token from the environment")
		return token, nil
	}
	if keyFile == "" {
		keyFile = defaultKeyFile()
	}

	_, err := os.Stat(keyFile)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("key file does not exist", slog.String("path", keyFile))
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return "", fmt.Errorf("key file %q does not exist and stdin is not a terminal; set CLOUDFLARE_API_TOKEN or run interactively", keyFile)
		}
		if err := runSetup(ctx, keyFile, logger, stdout); err != nil {
			return "", fmt.Errorf("setup: %w", err)
		}
	}
	if err := verifyPermissions(keyFile); err != nil {
		return "", err
	}
	key, err := readKey(keyFile)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	logger.Debug("successfully read key from key file")
	return key, nil
}

func runSetup(ctx context.Context, keyFile string, logger *slog.Logger, stdout io.Writer) error {
	logger.Info("running setup")
	fmt.Fprintln(stdout, "Enter Cloudflare API Token:")
	bytekey, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("runSetup: error reading from stdin: %w", err)
	}
	key := strings.TrimSpace(string(bytekey))

	api, err := cloudflare.NewWithAPIToken(key)
	if err != nil {
		return fmt.Errorf("error creating api client: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	logger.Info("verifying token")
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("expected api token status to be \"active\"; got \"%s\"", result.Status)
	}
	logger.Info("token verified successfully")

	return writeKey(keyFile, key)
}

func writeKey(path, key string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", path, err)
	}
	if _, err := fmt.Fprintln(f, key); err != nil {
		f.Close()
		return fmt.Errorf("writing \"%s\": %w", path, err)
	}
	return f.Close()
}

func readKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	line, _, err := r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("error reading line: %w", err)
	}
	key := strings.TrimSpace(string(line))
	if key == "" {
		return "", fmt.Errorf("key file \"%s\" is empty", path)
	}
	return key, nil
}

func verifyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking keyfile permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}
	return nil
}
