package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rogersnm/skillmap/internal/adapter"
	"github.com/rogersnm/skillmap/internal/config"
	"github.com/rogersnm/skillmap/internal/dag"
	"github.com/rogersnm/skillmap/internal/editor"
	"github.com/rogersnm/skillmap/internal/id"
	"github.com/rogersnm/skillmap/internal/markdown"
	"github.com/rogersnm/skillmap/internal/model"
	"github.com/rogersnm/skillmap/internal/repofile"
	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Manage skill trees",
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var treeGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Print a tree as JSON, creating it if missing",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		treeID, err := resolveTree(cmd, args)
		if err != nil {
			return err
		}
		tree, err := client.GetTree(cmd.Context(), treeID, nil)
		if err != nil {
			return err
		}
		return printJSON(cmd, tree)
	},
}

var treeNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create an empty tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		treeID, _ := cmd.Flags().GetString("id")
		if treeID == "" {
			var err error
			if treeID, err = id.New(args[0]); err != nil {
				return err
			}
		} else if !id.Valid(treeID) {
			return fmt.Errorf("invalid tree id %q", treeID)
		}

		items, err := client.ListTrees(cmd.Context())
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.ID == treeID {
				return fmt.Errorf("skill tree %s already exists", treeID)
			}
		}
		tree := model.DefaultTree(treeID, nextStamp(time.Time{}))
		tree.Name = strings.TrimSpace(args[0])
		tree.SourceURL, _ = cmd.Flags().GetString("source")

		saved, err := client.SaveTree(cmd.Context(), tree)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created skill tree %s (%s)\n", saved.Name, saved.ID)
		return nil
	},
}

var treeSaveCmd = &cobra.Command{
	Use:   "save <file|->",
	Short: "Save a JSON tree document; the newer of stored and given wins",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		if !json.Valid(raw) {
			return fmt.Errorf("%s: not valid JSON", args[0])
		}
		treeID, _ := cmd.Flags().GetString("tree")

		var saved model.SkillTree
		if err := client.Do(cmd.Context(), adapter.CommandSaveTree, treeID, adapter.Payload{Tree: raw}, &saved); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (version %d, updated %s)\n",
			saved.ID, saved.Version, saved.UpdatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var treeImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace a tree with a JSON or markdown export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		treeID, _ := cmd.Flags().GetString("tree")

		if ext := strings.ToLower(filepath.Ext(args[0])); ext == ".md" || ext == ".markdown" {
			tree, err := markdown.ParseTree(bytes.NewReader(raw))
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if treeID != "" {
				tree.ID = treeID
			}
			if tree.UpdatedAt.IsZero() {
				tree.UpdatedAt = nextStamp(tree.UpdatedAt)
			}
			if raw, err = json.Marshal(tree); err != nil {
				return err
			}
		} else if !json.Valid(raw) {
			return fmt.Errorf("%s: not valid JSON", args[0])
		}

		var imported model.SkillTree
		if err := client.Do(cmd.Context(), adapter.CommandImport, treeID, adapter.Payload{Tree: raw}, &imported); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %s (%d skills)\n", imported.ID, len(imported.Nodes))
		return nil
	},
}

var treeExportCmd = &cobra.Command{
	Use:   "export [id]",
	Short: "Export a tree as JSON or markdown",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		treeID, err := resolveTree(cmd, args)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("output")

		tree, err := client.ExportTree(cmd.Context(), treeID, nil)
		if err != nil {
			return err
		}

		var data []byte
		switch format {
		case "json":
			data, err = json.MarshalIndent(tree, "", "  ")
			data = append(data, '\n')
		case "markdown", "md":
			data, err = markdown.ExportTree(tree)
		default:
			return fmt.Errorf("unknown format %q (json, markdown)", format)
		}
		if err != nil {
			return err
		}

		if out == "" || out == "-" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", tree.ID, out)
		return nil
	},
}

var treeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a tree and its status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		treeID := args[0]
		if !id.Valid(treeID) {
			return fmt.Errorf("invalid tree id %q", treeID)
		}
		if err := confirmDelete(cmd, "skill tree "+treeID); err != nil {
			return err
		}
		if err := client.DeleteTree(cmd.Context(), treeID); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Deleted skill tree %s\n", treeID)
		if cfg.DefaultTree == treeID {
			return updateConfig(cmd, func(c *config.Config) {
				c.DefaultTree = ""
			}, "Cleared default tree")
		}
		return nil
	},
}

var treeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trees, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := client.ListTrees(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd, items)
		}
		fmt.Fprintln(cmd.OutOrStdout(), markdown.RenderSummaryTable(items))
		return nil
	},
}

var treeShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show a tree and its prerequisite graph",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		treeID, err := resolveTree(cmd, args)
		if err != nil {
			return err
		}
		tree, err := client.GetTree(cmd.Context(), treeID, nil)
		if err != nil {
			return err
		}
		status, err := client.GetStatus(cmd.Context(), treeID)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if pretty, _ := cmd.Flags().GetBool("pretty"); pretty {
			rendered, err := markdown.RenderMarkdown(markdown.TreeBody(tree))
			if err != nil {
				return err
			}
			fmt.Fprint(w, rendered)
			return nil
		}

		fields := []string{
			markdown.RenderField("ID", tree.ID),
			markdown.RenderField("Version", fmt.Sprint(tree.Version)),
			markdown.RenderField("Updated", tree.UpdatedAt.Format("2006-01-02 15:04:05")),
			markdown.RenderField("Points", fmt.Sprint(status.AvailablePoints)),
		}
		if tree.SourceURL != "" {
			fields = append(fields, markdown.RenderField("Source", tree.SourceURL))
		}
		fmt.Fprint(w, markdown.RenderHeader(tree.Name, fields))
		fmt.Fprintln(w)

		g := dag.BuildFromTree(tree)
		fmt.Fprintln(w, dag.RenderASCII(g, status))
		if err := g.ValidateAcyclic(); err != nil {
			fmt.Fprintln(w, markdown.RenderField("Warning", err.Error()))
			return nil
		}
		if order, err := g.TopologicalSort(); err == nil && len(order) > 1 {
			fmt.Fprintln(w, markdown.RenderField("Unlock order", strings.Join(order, ", ")))
			fmt.Fprintln(w, markdown.RenderField("Capstones", strings.Join(g.Leaves(), ", ")))
		}
		return nil
	},
}

var treeEditCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Edit a tree as markdown in $EDITOR",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		treeID, err := resolveTree(cmd, args)
		if err != nil {
			return err
		}
		tree, err := client.GetTree(cmd.Context(), treeID, nil)
		if err != nil {
			return err
		}
		content, err := markdown.ExportTree(tree)
		if err != nil {
			return err
		}

		edited, changed, err := editor.Edit(content, treeID+"-*.md")
		if err != nil {
			return err
		}
		if !changed {
			fmt.Fprintln(cmd.OutOrStdout(), "No changes.")
			return nil
		}

		updated, err := markdown.ParseTree(bytes.NewReader(edited))
		if err != nil {
			return err
		}
		updated.ID = tree.ID
		updated.Version = tree.Version
		updated.Touch(nextStamp(tree.UpdatedAt))

		saved, err := client.SaveTree(cmd.Context(), updated)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (version %d)\n", saved.ID, saved.Version)
		return nil
	},
}

var treeAddSkillCmd = &cobra.Command{
	Use:   "add-skill <skill-id>",
	Short: "Add or replace a skill in a tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		treeID, err := resolveTree(cmd, nil)
		if err != nil {
			return err
		}
		tree, err := client.GetTree(cmd.Context(), treeID, nil)
		if err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		desc, _ := cmd.Flags().GetString("description")
		cost, _ := cmd.Flags().GetFloat64("cost")
		x, _ := cmd.Flags().GetFloat64("x")
		y, _ := cmd.Flags().GetFloat64("y")
		reqs, _ := cmd.Flags().GetString("reqs")
		anyReq, _ := cmd.Flags().GetBool("any")

		node := model.SkillNode{
			ID:          args[0],
			Name:        name,
			Description: desc,
			Cost:        cost,
			X:           x,
			Y:           y,
			Reqs:        splitIDs(reqs),
			ReqMode:     model.ReqModeAnd,
		}
		if anyReq {
			node.ReqMode = model.ReqModeOr
		}
		for _, r := range node.Reqs {
			if tree.Node(r) == nil {
				return fmt.Errorf("prerequisite %q is not a skill of %s", r, tree.ID)
			}
		}

		if existing := tree.Node(node.ID); existing != nil {
			*existing = node
		} else {
			tree.Nodes = append(tree.Nodes, node)
		}
		tree.Touch(nextStamp(tree.UpdatedAt))

		saved, err := client.SaveTree(cmd.Context(), tree)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved skill %s in %s (version %d)\n", node.ID, saved.ID, saved.Version)
		return nil
	},
}

var treeRemoveSkillCmd = &cobra.Command{
	Use:   "remove-skill <skill-id>",
	Short: "Remove a skill and the connections touching it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		treeID, err := resolveTree(cmd, nil)
		if err != nil {
			return err
		}
		tree, err := client.GetTree(cmd.Context(), treeID, nil)
		if err != nil {
			return err
		}
		if tree.Node(args[0]) == nil {
			return fmt.Errorf("skill %q not found in %s", args[0], tree.ID)
		}

		nodes := tree.Nodes[:0]
		for _, n := range tree.Nodes {
			if n.ID == args[0] {
				continue
			}
			kept := n.Reqs[:0]
			for _, r := range n.Reqs {
				if r != args[0] {
					kept = append(kept, r)
				}
			}
			n.Reqs = kept
			nodes = append(nodes, n)
		}
		tree.Nodes = nodes
		conns := tree.Connections[:0]
		for _, c := range tree.Connections {
			if c.From != args[0] && c.To != args[0] {
				conns = append(conns, c)
			}
		}
		tree.Connections = conns
		tree.Touch(nextStamp(tree.UpdatedAt))

		saved, err := client.SaveTree(cmd.Context(), tree)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed skill %s from %s (version %d)\n", args[0], saved.ID, saved.Version)
		return nil
	},
}

var treeLinkCmd = &cobra.Command{
	Use:   "link <id>",
	Short: "Link the current directory to a tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		if err := repofile.Write(cwd, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Linked %s to skill tree %s\n", repofile.FileName, args[0])
		return nil
	},
}

var treeUnlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Remove the directory-local tree link",
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		if linked, _ := repofile.Read(cwd); linked == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No tree linked.")
			return nil
		}
		if err := repofile.Remove(cwd); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Unlinked tree.")
		return nil
	},
}

func init() {
	treeCmd.PersistentFlags().StringP("tree", "t", "", "tree id (defaults to the linked or configured tree)")

	treeNewCmd.Flags().String("id", "", "explicit tree id instead of a generated one")
	treeNewCmd.Flags().String("source", "", "source URL recorded on the tree")
	treeExportCmd.Flags().StringP("format", "f", "json", "output format (json, markdown)")
	treeExportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	treeDeleteCmd.Flags().BoolP("force", "f", false, "skip confirmation")
	treeListCmd.Flags().Bool("json", false, "print summaries as JSON")
	treeShowCmd.Flags().Bool("pretty", false, "render the markdown overview")

	treeAddSkillCmd.Flags().String("name", "", "display name (defaults to the skill id)")
	treeAddSkillCmd.Flags().String("description", "", "skill description")
	treeAddSkillCmd.Flags().Float64("cost", 0, "point cost")
	treeAddSkillCmd.Flags().Float64("x", 0, "x position")
	treeAddSkillCmd.Flags().Float64("y", 0, "y position")
	treeAddSkillCmd.Flags().String("reqs", "", "comma-separated prerequisite skill ids")
	treeAddSkillCmd.Flags().Bool("any", false, "any one prerequisite suffices (default: all)")

	treeCmd.AddCommand(treeGetCmd)
	treeCmd.AddCommand(treeNewCmd)
	treeCmd.AddCommand(treeSaveCmd)
	treeCmd.AddCommand(treeImportCmd)
	treeCmd.AddCommand(treeExportCmd)
	treeCmd.AddCommand(treeDeleteCmd)
	treeCmd.AddCommand(treeListCmd)
	treeCmd.AddCommand(treeShowCmd)
	treeCmd.AddCommand(treeEditCmd)
	treeCmd.AddCommand(treeAddSkillCmd)
	treeCmd.AddCommand(treeRemoveSkillCmd)
	treeCmd.AddCommand(treeLinkCmd)
	treeCmd.AddCommand(treeUnlinkCmd)
	rootCmd.AddCommand(treeCmd)
}
