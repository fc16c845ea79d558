package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/voxrow/voxrow/pkg/config"
)

// Generator writes a starter deployment directory: a configuration file
// holding the defaults, an .env template and a Dockerfile.
type Generator struct {
	Dir   string
	Force bool
}

func NewGenerator(dir string, force bool) *Generator {
	return &Generator{Dir: dir, Force: force}
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Scaffold a configuration file, .env template and Dockerfile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			written, err := NewGenerator(dir, force).Generate()
			for _, path := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	return cmd
}

// Generate renders every template into g.Dir and returns the paths written.
// Existing files are left alone unless g.Force is set.
func (g *Generator) Generate() ([]string, error) {
	if err := os.MkdirAll(g.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	files := []struct{ name, tmpl string }{
		{"voxrow.yaml", configTemplate},
		{".env.template", envTemplate},
		{"Dockerfile", dockerfileTemplate},
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(g.Dir, f.name)
		ok, err := g.generateFile(path, f.tmpl)
		if err != nil {
			return written, fmt.Errorf("failed to generate %s: %w", f.name, err)
		}
		if ok {
			written = append(written, path)
		}
	}
	return written, nil
}

func (g *Generator) generateFile(path, tmpl string) (bool, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !g.Force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	t := template.Must(template.New(filepath.Base(path)).Parse(tmpl))
	if err := t.Execute(f, config.Default()); err != nil {
		return false, err
	}
	return true, nil
}
