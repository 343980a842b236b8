package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ensembleworks/ensemble/internal/config"
	"github.com/ensembleworks/ensemble/internal/piece"
	"github.com/ensembleworks/ensemble/internal/routing"
	"github.com/ensembleworks/ensemble/internal/template"
)

var validateCmd = &cobra.Command{
	Use:   "validate <piece.yaml>",
	Short: "Validate a piece definition",
	Long: `Validate parses the piece, checks its movement graph and rules, and
reports the template parameters its instructions expect. With routing
configured it also checks that every override names a real movement.`,
	Args: cobra.ExactArgs(1),
	RunE: validatePiece,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validatePiece(cmd *cobra.Command, args []string) error {
	p, err := piece.Load(args[0])
	if err != nil {
		return fmt.Errorf("piece is invalid: %w", err)
	}

	fmt.Printf("Piece %q is valid\n", p.Name)
	fmt.Printf("  Initial movement: %s\n", p.InitialMovement)
	fmt.Printf("  Movements:        %d\n", len(p.Movements))
	for _, mv := range p.Movements {
		if mv.IsParallel() {
			names := make([]string, len(mv.Parallel))
			for i, sub := range mv.Parallel {
				names[i] = sub.Name
			}
			fmt.Printf("    %s (parallel: %s)\n", mv.Name, strings.Join(names, ", "))
			continue
		}
		fmt.Printf("    %s (%d rules)\n", mv.Name, len(mv.Rules))
	}

	if vars := pieceVariables(p); len(vars) > 0 {
		fmt.Printf("  Parameters:       %s\n", strings.Join(vars, ", "))
	}

	global, err := config.LoadFile(globalConfigPath())
	if err != nil {
		return err
	}
	project, err := config.LoadFile(projectConfigPath())
	if err != nil {
		return err
	}
	cfg := config.Merge(global, project)

	router := routing.NewRouter(&cfg.Routing)
	if unknown := router.UnknownMovements(p); len(unknown) > 0 {
		return fmt.Errorf("routing overrides name unknown movements: %s", strings.Join(unknown, ", "))
	}

	return nil
}

// pieceVariables collects the non-builtin template variables used across all
// instructions, keeping first-appearance order.
func pieceVariables(p *piece.Piece) []string {
	builtins := map[string]bool{
		template.VarPiece:    true,
		template.VarMovement: true,
		template.VarWorkDir:  true,
	}

	seen := make(map[string]bool)
	var vars []string
	collect := func(instruction string) {
		for _, v := range template.Variables(instruction) {
			if builtins[v] || seen[v] {
				continue
			}
			seen[v] = true
			vars = append(vars, v)
		}
	}

	for _, mv := range p.Movements {
		collect(mv.Instruction)
		for _, sub := range mv.Parallel {
			collect(sub.Instruction)
		}
	}
	return vars
}
