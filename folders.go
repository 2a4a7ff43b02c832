package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/graph"
)

func newFoldersCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Print the knowledge-base folder tree",
		Long: `Print every folder under the configured OneDrive knowledge-base folder,
using the stored tokens of a signed-in Microsoft account.

The account is the Microsoft object ID recorded at sign-in.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if account == "" {
				return errors.New("--account is required")
			}

			a, err := newApp(cmd.Context(), resolvedCfg, cmdLogger())
			if err != nil {
				return err
			}
			defer a.close()

			folders, err := listFolders(cmd, a, account)
			if err != nil {
				return err
			}

			return printFolders(os.Stdout, folders)
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Microsoft account ID whose tokens to use")

	return cmd
}

func listFolders(cmd *cobra.Command, a *app, account string) ([]graph.FolderInfo, error) {
	ctx := cmd.Context()

	res := a.tokens.Resolve(ctx, account)
	if res.Err != nil {
		return nil, fmt.Errorf("no usable token for account %s (sign in again): %w", account, res.Err)
	}

	client := a.graph.WithToken(graph.StaticToken(res.AccessToken))
	name := a.cfg.OneDrive.FolderName

	rootID := a.cfg.OneDrive.FolderID
	if rootID == "" {
		item, err := client.ItemByPath(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("looking up folder %q: %w", name, err)
		}

		rootID = item.ID
	}

	return client.ListFolders(ctx, rootID, name), nil
}

func printFolders(w io.Writer, folders []graph.FolderInfo) error {
	if flagJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(folders); err != nil {
			return fmt.Errorf("encoding folders: %w", err)
		}

		return nil
	}

	rows := make([][]string, 0, len(folders))
	for _, f := range folders {
		depth := strings.Count(f.FullPath, "/")
		rows = append(rows, []string{strings.Repeat("  ", depth) + f.Name, f.ID})
	}

	printTable(w, []string{"FOLDER", "ID"}, rows)
	statusf(flagQuiet, "%d folder(s)\n", len(folders))

	return nil
}
