package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/jmerrifield20/ZakatLedger/internal/chain"
	"github.com/jmerrifield20/ZakatLedger/internal/chainfile"
	"github.com/jmerrifield20/ZakatLedger/internal/digest"
	"github.com/jmerrifield20/ZakatLedger/internal/merkle"
	"github.com/jmerrifield20/ZakatLedger/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
	chainFile string
	insecure  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zakat",
	Short: "ZakatLedger auditor CLI",
	Long: `zakat audits a donation ledger.

It validates a chain exported to a file or served by a running zakatd,
recomputes the Merkle root, checks inclusion proofs and records donations.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.zakat")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("zakat")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = "http://localhost:5000"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.zakat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "zakatd base URL (default http://localhost:5000)")
	rootCmd.PersistentFlags().StringVar(&chainFile, "file", "", "audit an exported chain file instead of a server")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification (development only)")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(rootHashCmd)
	rootCmd.AddCommand(proofCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(donateCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	opts := []client.Option{client.WithTimeout(30 * time.Second)}
	if insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	if tok := viper.GetString("token"); tok != "" {
		opts = append(opts, client.WithBearerToken(tok))
	}
	return client.New(serverURL, opts...)
}

// loadBlocks reads the chain from --file when set and from the server otherwise.
func loadBlocks(ctx context.Context) ([]chain.Block, string, error) {
	if chainFile != "" {
		f, err := os.Open(chainFile)
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		blocks, err := chainfile.Decode(f)
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", chainFile, err)
		}
		return blocks, chainFile, nil
	}

	c, err := newClient()
	if err != nil {
		return nil, "", err
	}
	blocks, err := c.Blocks(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("fetch chain: %w", err)
	}
	return blocks, serverURL, nil
}

func fingerprints(blocks []chain.Block) []digest.Hash {
	out := make([]digest.Hash, len(blocks))
	for i := range blocks {
		out[i] = blocks[i].MetadataHash
	}
	return out
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyVerbose bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validate every block of the chain",
	Long: `verify recomputes every block hash and checks the links between blocks.

The chain is validated locally, so a server cannot vouch for itself:

  zakat verify --server https://zakat.example.org
  zakat verify --file ledger.cbor`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		blocks, source, err := loadBlocks(cmd.Context())
		if err != nil {
			return err
		}

		if verifyVerbose {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tCREATED\tPREV\tHASH")
			for _, b := range blocks {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", b.Index, chain.FormatTime(b.CreatedAt), short(b.PrevHash.String()), short(b.BlockHash.String()))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Println()
		}

		res := chain.Validate(blocks)
		if !res.Valid {
			color.Red("✗ chain from %s is INVALID", source)
			fmt.Printf("  Block:  %d\n", res.Violation.Index)
			fmt.Printf("  Check:  %s\n", res.Violation.Kind)
			fmt.Printf("  Detail: %s\n", res.Violation.Detail)
			return res.Err()
		}

		color.Green("✓ chain from %s is valid", source)
		fmt.Printf("  Blocks: %d\n", res.Length)
		if n := len(blocks); n > 0 {
			fmt.Printf("  Tip:    %s\n", blocks[n-1].BlockHash)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVarP(&verifyVerbose, "verbose", "v", false, "Print every block before validating")
}

// ── root ─────────────────────────────────────────────────────────────────────

var rootHashCmd = &cobra.Command{
	Use:   "root",
	Short: "Compute the Merkle root of all donation fingerprints",
	Long: `root computes the Merkle root over the fingerprints in chain order.

Against a server the locally computed root is compared with the one the
server publishes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		blocks, _, err := loadBlocks(ctx)
		if err != nil {
			return err
		}

		local, ok := merkle.ComputeRoot(fingerprints(blocks))
		if !ok {
			color.Yellow("ledger is empty, no Merkle root")
			return nil
		}
		fmt.Printf("Root:   %s\n", local)
		fmt.Printf("Leaves: %d\n", len(blocks))

		if chainFile != "" {
			return nil
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		remote, err := c.Merkle(ctx)
		if err != nil {
			return fmt.Errorf("fetch server root: %w", err)
		}
		if remote.Root == nil || *remote.Root != local || remote.LeafCount != len(blocks) {
			color.Red("✗ server root %v (%d leaves) does not match", remote.Root, remote.LeafCount)
			return fmt.Errorf("merkle root mismatch")
		}
		color.Green("✓ server root matches")
		return nil
	},
}

// ── proof ────────────────────────────────────────────────────────────────────

var proofJSON bool

var proofCmd = &cobra.Command{
	Use:   "proof <index>",
	Short: "Check that a block's fingerprint is included in the Merkle root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[0])
		}
		ctx := cmd.Context()

		var (
			proof *merkle.Proof
			root  digest.Hash
			leaf  digest.Hash
		)
		if chainFile != "" {
			blocks, _, err := loadBlocks(ctx)
			if err != nil {
				return err
			}
			tree := merkle.Build(fingerprints(blocks))
			if proof, err = tree.Proof(idx); err != nil {
				return err
			}
			root, leaf = tree.Root(), blocks[idx].MetadataHash
		} else {
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.Proof(ctx, idx)
			if err != nil {
				return fmt.Errorf("fetch proof: %w", err)
			}
			b, err := c.Block(ctx, idx)
			if err != nil {
				return fmt.Errorf("fetch block: %w", err)
			}
			proof, root, leaf = &res.Proof, res.Root, b.MetadataHash
		}

		if proofJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{"root": root, "proof": proof}); err != nil {
				return err
			}
		}

		if !merkle.VerifyProof(leaf, proof, root) {
			color.Red("✗ block %d is NOT included in root %s", idx, root)
			return fmt.Errorf("inclusion proof failed")
		}
		color.Green("✓ block %d is included in root %s", idx, root)
		fmt.Printf("  Leaf:  %s\n", leaf)
		fmt.Printf("  Steps: %d\n", len(proof.Steps))
		return nil
	},
}

func init() {
	proofCmd.Flags().BoolVar(&proofJSON, "json", false, "Print the proof as JSON")
}

// ── export ───────────────────────────────────────────────────────────────────

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the server's chain to a file",
	Long: `export downloads the chain as JSON or CBOR. The format defaults to the
extension of --out (".cbor" selects CBOR).

  zakat export --out ledger.cbor`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := chainfile.FormatForPath(exportOut)
		if exportFormat != "" {
			f, err := chainfile.ParseFormat(exportFormat)
			if err != nil {
				return err
			}
			format = f
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		raw, err := c.Export(cmd.Context(), string(format))
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}

		// Refuse to write something that does not decode.
		blocks, err := chainfile.Decode(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("server returned an unreadable chain: %w", err)
		}

		if exportOut == "" || exportOut == "-" {
			_, err = os.Stdout.Write(raw)
			return err
		}
		if err := os.WriteFile(exportOut, raw, 0o644); err != nil {
			return err
		}
		color.Green("✓ wrote %d blocks to %s (%s)", len(blocks), exportOut, format)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "Export format: json or cbor")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default stdout)")
}

// ── donate ───────────────────────────────────────────────────────────────────

var (
	donateAmount float64
	donateNote   string
)

var donateCmd = &cobra.Command{
	Use:   "donate",
	Short: "Record a donation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Donate(cmd.Context(), donateAmount, donateNote)
		if err != nil {
			return fmt.Errorf("donate: %w", err)
		}

		color.Green("✓ donation recorded\n")
		fmt.Printf("  ID:          %s\n", res.Donation.ID)
		fmt.Printf("  Amount:      %.2f %s\n", res.Donation.Receipt.Amount, res.Donation.Receipt.Currency)
		fmt.Printf("  Category:    %s\n", res.Donation.Receipt.Category)
		fmt.Printf("  Fingerprint: %s\n", res.MetadataHash)
		fmt.Printf("  Block:       %d (%s)\n", res.Block.Index, res.Block.BlockHash)
		return nil
	},
}

func init() {
	donateCmd.Flags().Float64Var(&donateAmount, "amount", 0, "Donation amount")
	donateCmd.Flags().StringVar(&donateNote, "note", "", "Optional free-text note")
	_ = donateCmd.MarkFlagRequired("amount")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("zakat", version)
	},
}

func short(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:12]
}
