package cmd

import (
	"fmt"
	"strings"

	"github.com/rogersnm/skillmap/internal/dag"
	"github.com/rogersnm/skillmap/internal/markdown"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Manage unlock progress for a tree",
}

var statusGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Print a tree's status as JSON, creating it if missing",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		treeID, err := resolveTree(cmd, args)
		if err != nil {
			return err
		}
		status, err := client.GetStatus(cmd.Context(), treeID)
		if err != nil {
			return err
		}
		return printJSON(cmd, status)
	},
}

var statusSetCmd = &cobra.Command{
	Use:   "set [id]",
	Short: "Change available points or unlocked skills",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		treeID, err := resolveTree(cmd, args)
		if err != nil {
			return err
		}
		status, err := client.GetStatus(cmd.Context(), treeID)
		if err != nil {
			return err
		}

		changed := false
		if cmd.Flags().Changed("points") {
			status.AvailablePoints, _ = cmd.Flags().GetFloat64("points")
			changed = true
		}
		unlock, _ := cmd.Flags().GetString("unlock")
		for _, skill := range splitIDs(unlock) {
			if !status.IsUnlocked(skill) {
				status.UnlockedSkillIDs = append(status.UnlockedSkillIDs, skill)
			}
			changed = true
		}
		lock, _ := cmd.Flags().GetString("lock")
		if locked := splitIDs(lock); len(locked) > 0 {
			drop := make(map[string]bool, len(locked))
			for _, skill := range locked {
				drop[skill] = true
			}
			kept := status.UnlockedSkillIDs[:0]
			for _, skill := range status.UnlockedSkillIDs {
				if !drop[skill] {
					kept = append(kept, skill)
				}
			}
			status.UnlockedSkillIDs = kept
			changed = true
		}
		if !changed {
			return fmt.Errorf("nothing to change (use --points, --unlock or --lock)")
		}

		status.UpdatedAt = nextStamp(status.UpdatedAt)
		saved, err := client.SaveStatus(cmd.Context(), status)
		if err != nil {
			return err
		}
		unlocked := "none"
		if len(saved.UnlockedSkillIDs) > 0 {
			unlocked = strings.Join(saved.UnlockedSkillIDs, ", ")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %g points, unlocked: %s\n", saved.TreeID, saved.AvailablePoints, unlocked)
		return nil
	},
}

var statusShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show every skill with its unlock state",
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
		fmt.Fprintln(w, markdown.RenderNodeTable(tree, status))
		fmt.Fprintln(w, markdown.RenderField("Points", fmt.Sprintf("%g", status.AvailablePoints)))
		g := dag.BuildFromTree(tree)
		if next := g.Available(status); len(next) > 0 {
			fmt.Fprintln(w, markdown.RenderField("Available", strings.Join(next, ", ")))
		}
		for _, n := range tree.Nodes {
			if status.IsUnlocked(n.ID) || g.Satisfied(n.ID, status) {
				continue
			}
			var missing []string
			for _, req := range g.Prerequisites(n.ID) {
				if !status.IsUnlocked(req) {
					missing = append(missing, req)
				}
			}
			fmt.Fprintln(w, markdown.RenderField("Locked", fmt.Sprintf("%s (needs %s)", n.ID, strings.Join(missing, ", "))))
		}
		return nil
	},
}

func init() {
	statusCmd.PersistentFlags().StringP("tree", "t", "", "tree id (defaults to the linked or configured tree)")

	statusSetCmd.Flags().Float64("points", 0, "set available points")
	statusSetCmd.Flags().String("unlock", "", "comma-separated skill ids to unlock")
	statusSetCmd.Flags().String("lock", "", "comma-separated skill ids to lock again")

	statusCmd.AddCommand(statusGetCmd)
	statusCmd.AddCommand(statusSetCmd)
	statusCmd.AddCommand(statusShowCmd)
	rootCmd.AddCommand(statusCmd)
}
