package proof

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dProof/cmd/util"
	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/spf13/cobra"
	"io"
	"os"
)

var (
	registerCmd = &cobra.Command{
		Use:   "register [doc-hash] [owner] [description]",
		Short: "Registers a document hash for an owner",
		Long: util.WrapString("Registers a document hash for an owner. The first registration of a hash wins, " +
			"later registrations fail. With --file the SHA-256 of the file is used as hash and the " +
			"arguments start with the owner."),
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			docHash, rest, err := resolveHash(cmd, args)
			if err != nil {
				return err
			}
			if len(rest) < 1 || len(rest) > 2 {
				return fmt.Errorf("expected [owner] and an optional [description]")
			}
			owner, description := rest[0], ""
			if len(rest) == 2 {
				description = rest[1]
			}

			proof, err := rpcStore.Register(docHash, owner, description)
			if store.IsDuplicate(err) {
				fmt.Printf("%s %s\n", util.Red("already registered:"), docHash)
				return err
			} else if err != nil {
				return err
			}
			fmt.Printf("%s\n", util.Green("registered"))
			printProof(proof)
			return nil
		},
	}
	verifyCmd = &cobra.Command{
		Use:   "verify [doc-hash]",
		Short: "Verifies whether a document hash is registered",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docHash, rest, err := resolveHash(cmd, args)
			if err != nil {
				return err
			}
			if len(rest) != 0 {
				return fmt.Errorf("unexpected arguments: %v", rest)
			}

			proof, err := rpcStore.Verify(docHash)
			if err != nil {
				return err
			}
			if !proof.Exists() {
				fmt.Printf("%s %s\n", util.Yellow("not registered:"), docHash)
				printProof(proof)
				return nil
			}
			fmt.Printf("%s\n", util.Green("verified"))
			printProof(proof)
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [doc-hash]",
		Short: "Reads the proof of a document hash",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docHash, rest, err := resolveHash(cmd, args)
			if err != nil {
				return err
			}
			if len(rest) != 0 {
				return fmt.Errorf("unexpected arguments: %v", rest)
			}

			proof, found, err := rpcStore.GetProof(docHash)
			if err != nil {
				return err
			}
			fmt.Printf("doc_hash=%s, found=%v\n", docHash, found)
			if found {
				printProof(proof)
			}
			return nil
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints the number of registered documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := rpcStore.GetStats()
			if err != nil {
				return err
			}
			fmt.Printf("%s %d\n", util.Bold("total documents:"), stats.TotalDocuments)
			return nil
		},
	}
	dbInfoCmd = &cobra.Command{
		Use:   "dbinfo",
		Short: "Prints information about the database backing the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := rpcStore.GetDBInfo()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{registerCmd, verifyCmd, getCmd} {
		cmd.Flags().String("file", "", util.WrapString("Use the SHA-256 of this file as document hash"))
	}
}

// resolveHash returns the document hash and the remaining arguments.
// With --file the hash is computed from the file, otherwise it is the first argument.
func resolveHash(cmd *cobra.Command, args []string) (string, []string, error) {
	path, _ := cmd.Flags().GetString("file")
	if path != "" {
		docHash, err := hashFile(path)
		return docHash, args, err
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("either [doc-hash] or --file is required")
	}
	return args[0], args[1:], nil
}

// hashFile returns the hex encoded SHA-256 digest of a file
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func printProof(proof registry.DocumentProof) {
	fmt.Printf("  doc_hash=%s\n  owner=%s\n  timestamp=%d\n  description=%s\n",
		proof.DocHash, proof.Owner, proof.Timestamp, proof.Description)
}
