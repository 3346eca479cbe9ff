package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oarkflow/fernet/token"
)

func keyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Generate, store, derive and escrow master keys",
	}
	cmd.AddCommand(
		keyGenerateCmd(a),
		keySetCmd(a),
		keyDeriveCmd(a),
		keySplitCmd(a),
		keyCombineCmd(a),
	)
	return cmd
}

func keyGenerateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Print a new random master key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := token.GenerateKey()
			if err != nil {
				return err
			}
			a.emit(cmd, key)
			return nil
		},
	}
}

func keySetCmd(a *app) *cobra.Command {
	var (
		fileType string
		filePath string
		name     string
		backup   bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Generate a master key and store it in an env, JSON or YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fileType == "" {
				detected, err := detectFileType(filePath)
				if err != nil {
					return err
				}
				fileType = detected
				a.logger.Debug("detected file type", "type", fileType, "file", filePath)
			}
			write, err := keyFileWriter(fileType)
			if err != nil {
				return err
			}
			if backup {
				if err := createBackup(filePath); err != nil {
					a.logger.Warn("backup failed", "file", filePath, "error", err)
				}
			}
			if _, err := write(filePath, name); err != nil {
				return fmt.Errorf("updating %s: %w", filePath, err)
			}
			a.logger.Info("master key written", "file", filePath, "name", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&fileType, "type", "t", "", "file type: env, json, yaml (detected from the extension when empty)")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "file to update (created when missing)")
	cmd.Flags().StringVarP(&name, "name", "n", "FERNET_KEY", "variable or field name to set")
	cmd.Flags().BoolVarP(&backup, "backup", "b", true, "copy the original file to <file>.bak first")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func keyFileWriter(fileType string) (func(path, name string) (string, error), error) {
	switch strings.ToLower(fileType) {
	case "env":
		return token.WriteKeyToEnvFile, nil
	case "json":
		return token.WriteKeyToJSONFile, nil
	case "yaml", "yml":
		return token.WriteKeyToYAMLFile, nil
	default:
		return nil, fmt.Errorf("unsupported file type %q; supported types: env, json, yaml", fileType)
	}
}

func detectFileType(filePath string) (string, error) {
	base := strings.ToLower(filepath.Base(filePath))
	switch filepath.Ext(base) {
	case ".json":
		return "json", nil
	case ".yaml", ".yml":
		return "yaml", nil
	case ".env":
		return "env", nil
	}
	if base == "env" || strings.HasPrefix(base, ".env.") {
		return "env", nil
	}
	return "", fmt.Errorf("unable to detect file type for %s; pass --type", filePath)
}

// createBackup copies filePath to filePath.bak, keeping the original mode. A missing
// file needs no backup.
func createBackup(filePath string) error {
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read source file: %w", err)
	}
	if err := os.WriteFile(filePath+".bak", data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	return nil
}

func keyDeriveCmd(a *app) *cobra.Command {
	var (
		kdfName    string
		saltInput  string
		passphrase string
	)
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a master key from a passphrase",
		Long: "Derive a master key from a passphrase read from --passphrase or stdin.\n" +
			"When --salt is empty a random salt is generated and printed first; keep it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kdf, err := token.ParseKDF(kdfName)
			if err != nil {
				return err
			}
			if passphrase == "" {
				if passphrase, err = readInput(cmd, nil); err != nil {
					return err
				}
			}
			if passphrase == "" {
				return fmt.Errorf("passphrase required")
			}
			var salt []byte
			if saltInput == "" {
				if salt, err = token.GenerateSalt(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "salt: %s\n", base64.RawURLEncoding.EncodeToString(salt))
			} else if salt, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(saltInput, "=")); err != nil {
				return fmt.Errorf("salt must be base64url: %w", err)
			}
			key, err := token.DeriveKey([]byte(passphrase), salt, kdf)
			if err != nil {
				return err
			}
			a.emit(cmd, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&kdfName, "kdf", string(token.KDFScrypt), "key derivation function: scrypt, pbkdf2, argon2id")
	cmd.Flags().StringVar(&saltInput, "salt", "", "base64url salt of at least 16 bytes")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "passphrase (read from stdin when empty)")
	return cmd
}

func keySplitCmd(a *app) *cobra.Command {
	var shares, threshold int
	cmd := &cobra.Command{
		Use:   "split [key]",
		Short: "Split a master key into Shamir shares",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			key, err := token.NormalizeKey(input)
			if err != nil {
				return err
			}
			parts, err := token.SplitKey(key, shares, threshold)
			if err != nil {
				return err
			}
			for _, p := range parts {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			a.logger.Info("key split", "shares", shares, "threshold", threshold)
			return nil
		},
	}
	cmd.Flags().IntVar(&shares, "shares", 5, "number of shares to produce")
	cmd.Flags().IntVar(&threshold, "threshold", 3, "shares needed to recover the key")
	return cmd
}

func keyCombineCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "combine <share>...",
		Short: "Recover a master key from Shamir shares",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := token.CombineKey(args)
			if err != nil {
				return err
			}
			a.emit(cmd, key)
			return nil
		},
	}
}
