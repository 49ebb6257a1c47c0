// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/cli"
	"github.com/crucible-foundation/crucible/lib/sealed"
	"github.com/crucible-foundation/crucible/lib/store"
)

func (p *program) exportCommand() *cli.Command {
	var connection storeConnection
	var tasks, methods, recipients []string
	var status string
	var limit int
	return &cli.Command{
		Name:    "export",
		Summary: "Write records to a portable archive",
		Description: `Export records to a zstd-compressed tar archive.

The selectors are independent: --task and --method narrow which
instance rows are included (repeat the flag for several; default all),
--status and --limit narrow the runs (default all). The archive is
self-describing and imports into any store, including an empty one.

With --recipient the archive is sealed with age: only the named
public keys can read it. Generate a keypair with "crucible keygen".`,
		Usage: "crucible export <file> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("export", pflag.ContinueOnError)
			connection.AddFlags(flags)
			flags.StringArrayVar(&tasks, "task", nil, "export only this task fingerprint (repeatable)")
			flags.StringArrayVar(&methods, "method", nil, "export only this method fingerprint (repeatable)")
			flags.StringVar(&status, "status", "", "export only runs in this status")
			flags.IntVar(&limit, "limit", 0, "maximum runs (0 is unlimited)")
			flags.StringArrayVar(&recipients, "recipient", nil, "seal to this age public key (repeatable)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("output file required")
			}
			if len(args) > 1 {
				return fmt.Errorf("unexpected argument: %s", args[1])
			}
			path := args[0]

			options := store.ExportOptions{Recipients: recipients}
			var err error
			if options.Tasks, err = fingerprintList("task", tasks); err != nil {
				return err
			}
			if options.Methods, err = fingerprintList("method", methods); err != nil {
				return err
			}
			switch bench.Status(status) {
			case "", bench.StatusRunning, bench.StatusPending, bench.StatusDone, bench.StatusFailed:
				options.Runs.Status = bench.Status(status)
			default:
				return fmt.Errorf("unknown status %q (running, pending, done, failed)", status)
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative, got %d", limit)
			}
			options.Runs.Limit = limit

			// Catch a bad recipient before touching the store, not
			// after a long export.
			for _, recipient := range recipients {
				if err := sealed.ParsePublicKey(recipient); err != nil {
					return err
				}
			}

			records, err := connection.open(p)
			if err != nil {
				return err
			}
			defer records.Close()

			file, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating %s: %w", path, err)
			}
			summary, err := records.Export(p.ctx, file, options)
			if closeErr := file.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				os.Remove(path)
				return err
			}

			sealedNote := ""
			if len(recipients) > 0 {
				sealedNote = fmt.Sprintf(", sealed to %d recipient(s)", len(recipients))
			}
			fmt.Fprintf(p.stdout, "exported %d tasks, %d methods, %d runs to %s%s\n",
				summary.Tasks, summary.Methods, summary.Runs, path, sealedNote)
			return nil
		},
	}
}

func (p *program) importCommand() *cli.Command {
	var connection storeConnection
	var identityFile string
	return &cli.Command{
		Name:    "import",
		Summary: "Read records from an archive into the store",
		Description: `Import an archive produced by export.

The store file is created when it does not exist yet. Tasks and
methods are verified against their fingerprints and skipped when
already present; a run whose id exists with different content is
refused. For sealed archives, --identity names a file holding the age
private key (as written by "crucible keygen -o").`,
		Usage: "crucible import <file> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("import", pflag.ContinueOnError)
			connection.AddFlags(flags)
			flags.StringVarP(&identityFile, "identity", "i", "", "age private key file for sealed archives")
			return flags
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("archive file required")
			}
			if len(args) > 1 {
				return fmt.Errorf("unexpected argument: %s", args[1])
			}

			var options store.ImportOptions
			if identityFile != "" {
				key, err := readIdentityFile(identityFile)
				if err != nil {
					return err
				}
				options.PrivateKey = key
			}

			records, err := connection.openCreate(p)
			if err != nil {
				return err
			}
			defer records.Close()

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer file.Close()

			summary, err := records.Import(p.ctx, file, options)
			if err != nil {
				return err
			}
			fmt.Fprintf(p.stdout, "imported %d tasks, %d methods, %d runs (%d already present)\n",
				summary.Tasks, summary.Methods, summary.Runs, summary.Skipped)
			return nil
		},
	}
}

// readIdentityFile extracts the age private key from a key file,
// skipping the comment lines keygen writes.
func readIdentityFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading identity file: %w", err)
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := sealed.ParsePrivateKey(line); err != nil {
			return "", fmt.Errorf("identity file %s: %w", path, err)
		}
		return line, nil
	}
	return "", fmt.Errorf("identity file %s contains no key", path)
}

func (p *program) keygenCommand() *cli.Command {
	var outputFile string
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an age keypair for sealed archives",
		Description: `Generate an age x25519 keypair.

The public key is what collaborators use with "export --recipient" to
seal archives for you; publish it freely. The private key decrypts
those archives and must stay private. With -o the private key goes to
a file created with mode 0600 and only the public key is printed;
without it both are printed to stdout.`,
		Usage: "crucible keygen [-o <file>]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flags.StringVarP(&outputFile, "output", "o", "", "write the private key to this file")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			content := fmt.Sprintf("# public key: %s\n%s\n", keypair.PublicKey, keypair.PrivateKey)

			if outputFile == "" {
				fmt.Fprint(p.stdout, content)
				return nil
			}
			if err := os.WriteFile(outputFile, []byte(content), 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", outputFile, err)
			}
			fmt.Fprintf(p.stdout, "public key: %s\n", keypair.PublicKey)
			fmt.Fprintf(p.stderr, "private key written to %s\n", outputFile)
			return nil
		},
	}
}
