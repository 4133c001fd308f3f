package main

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lakeside-credit/spread-cli/internal/drop"
	"github.com/lakeside-credit/spread-cli/internal/model"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <drop-dir>",
	Short: "Verify a packaged drop against its manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]

		data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
		if err != nil {
			return eris.Wrap(err, "read manifest")
		}
		var manifest model.ArtifactManifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			return eris.Wrap(err, "parse manifest")
		}

		contents, err := readDropContents(dir)
		if err != nil {
			return err
		}

		res := drop.Verify(&manifest, contents, nil)

		for _, a := range res.Artifacts {
			if a.Detail != "" {
				cmd.Printf("%-10s %s (%s)\n", a.Status, a.Path, a.Detail)
			} else {
				cmd.Printf("%-10s %s\n", a.Status, a.Path)
			}
		}
		for _, p := range res.Problems {
			cmd.Printf("problem: %s\n", p)
		}
		if res.DropHashMatch {
			cmd.Printf("drop hash %s ok\n", manifest.DropHash)
		}

		if !res.Valid {
			return eris.New("verify: drop failed verification")
		}
		cmd.Println("drop verified")
		return nil
	},
}

// readDropContents loads every file under dir except the manifest and
// checksum listing, keyed by its slash-separated relative path.
func readDropContents(dir string) (map[string][]byte, error) {
	contents := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "manifest.json" || rel == "checksums.txt" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		contents[rel] = data
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "read drop contents")
	}
	return contents, nil
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
