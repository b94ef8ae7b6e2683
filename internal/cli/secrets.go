// Package cli implements the operator commands of tacstatsctl.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashOptions defines the flags of the hash command.
type HashOptions struct {
	Cost   int
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// HashCommand reads a secret from stdin and prints its bcrypt hash, suitable for the
// master_key_hash and admin_password_hash columns.
func HashCommand(opts HashOptions) int {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Cost == 0 {
		opts.Cost = bcrypt.DefaultCost
	}
	line, err := bufio.NewReader(opts.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		_, _ = fmt.Fprintf(opts.Stderr, "hash: read secret: %v\n", err)
		return 1
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "hash: empty secret")
		return 1
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), opts.Cost)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "hash: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(opts.Stdout, string(hash))
	return 0
}

// Publisher announces secret changes.
type Publisher func(ctx context.Context, instance string) error

// BumpOptions defines the flags of the bump command.
type BumpOptions struct {
	Instance string
	Stdout   io.Writer
	Stderr   io.Writer
}

// BumpCommand tells running servers to drop their cached secrets for an instance.
func BumpCommand(ctx context.Context, publish Publisher, opts BumpOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.Instance) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "bump: --instance is required")
		return 1
	}
	if err := publish(ctx, opts.Instance); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "bump: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "secret cache invalidated for %s\n", opts.Instance)
	return 0
}
