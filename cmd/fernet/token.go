package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func encryptCmd(a *app) *cobra.Command {
	var at int64
	cmd := &cobra.Command{
		Use:   "encrypt [payload]",
		Short: "Encrypt a payload under the newest key",
		Long:  "Encrypt a payload (argument or stdin) under the first configured key.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ring, err := a.ring()
			if err != nil {
				return err
			}
			payload, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			var tok string
			if at > 0 {
				tok, err = ring.EncryptAtTime([]byte(payload), uint64(at))
			} else {
				tok, err = ring.Encrypt([]byte(payload))
			}
			if err != nil {
				return err
			}
			a.emit(cmd, tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&at, "at", 0, "issue time as Unix seconds (default now)")
	return cmd
}

func decryptCmd(a *app) *cobra.Command {
	var ttlInput string
	cmd := &cobra.Command{
		Use:   "decrypt [token]",
		Short: "Verify and decrypt a token with any configured key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ring, err := a.ring()
			if err != nil {
				return err
			}
			tok, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			ttl := a.cfg.TTL
			if cmd.Flags().Changed("ttl") {
				if ttl, err = parseTTL(ttlInput); err != nil {
					return err
				}
			}
			var payload []byte
			if ttl > 0 {
				payload, err = ring.DecryptWithTTL(tok, ttl)
			} else {
				payload, err = ring.Decrypt(tok)
			}
			if err != nil {
				return err
			}
			a.emit(cmd, string(payload))
			return nil
		},
	}
	cmd.Flags().StringVar(&ttlInput, "ttl", "", "maximum token age, e.g. 90, 10s, 5m, 1d; 0 or never disables (default from config)")
	return cmd
}

func rotateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate [token]",
		Short: "Re-encrypt a token under the newest key, keeping its timestamp",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ring, err := a.ring()
			if err != nil {
				return err
			}
			tok, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			rotated, err := ring.Rotate(tok)
			if err != nil {
				return err
			}
			a.emit(cmd, rotated)
			return nil
		},
	}
}

func timestampCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "timestamp [token]",
		Short: "Print the verified issue time of a token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ring, err := a.ring()
			if err != nil {
				return err
			}
			tok, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			ts, err := ring.ExtractTimestamp(tok)
			if err != nil {
				return err
			}
			issued := time.Unix(int64(ts), 0).UTC()
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", ts, issued.Format(time.RFC3339))
			return nil
		},
	}
}
