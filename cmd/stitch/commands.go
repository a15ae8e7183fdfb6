package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/erikgeiser/promptkit/confirmation"
	"github.com/spf13/cobra"

	"github.com/stitchkit/stitch"
	"github.com/stitchkit/stitch/internal/resource"
	"github.com/stitchkit/stitch/internal/watch"
)

func (a *app) addSoundsCommand() *cobra.Command {
	var extensions []string
	var watchSource bool
	cmd := &cobra.Command{
		Use:   "add-sounds <file-or-dir>",
		Short: "Import audio files, updating sounds that already exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.importLoop(cmd.Context(), args[0], watchSource, func(p *stitch.Project) (int, error) {
				sounds, err := p.ImportSounds(args[0], extensions...)
				for _, snd := range sounds {
					a.printf("<green>sound</> %s <grey>%s</>\n", snd.Name(), snd.FolderPath())
				}
				return len(sounds), err
			})
		},
	}
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "extensions to import from a directory (default "+strings.Join(resource.SoundExtensions, ",")+")")
	cmd.Flags().BoolVarP(&watchSource, "watch", "w", false, "import again whenever the source changes")
	return cmd
}

func (a *app) addSpritesCommand() *cobra.Command {
	var watchSource bool
	cmd := &cobra.Command{
		Use:   "add-sprites <file-or-dir>",
		Short: "Import PNG files as single-frame sprites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.importLoop(cmd.Context(), args[0], watchSource, func(p *stitch.Project) (int, error) {
				sprites, err := p.ImportSprites(args[0])
				for _, spr := range sprites {
					a.printf("<green>sprite</> %s <grey>%dx%d</>\n", spr.Name(), spr.Width(), spr.Height())
				}
				return len(sprites), err
			})
		},
	}
	cmd.Flags().BoolVarP(&watchSource, "watch", "w", false, "import again whenever the source changes")
	return cmd
}

// importLoop runs one import and, when asked to, runs it again after every
// change to the source until ctx is done.
func (a *app) importLoop(ctx context.Context, source string, watchSource bool, importFn func(*stitch.Project) (int, error)) error {
	var lock sync.Mutex
	once := func() error {
		lock.Lock()
		defer lock.Unlock()
		start := time.Now()
		p, err := a.openForWrite()
		if err != nil {
			return err
		}
		n, err := importFn(p)
		// Files already copied must reach the manifest even when a later one fails.
		if saveErr := p.Save(); saveErr != nil {
			return errors.Join(err, saveErr)
		}
		if err != nil {
			return err
		}
		a.printf("Imported %d files into <cyan>%s</> in %s\n", n, p.Name(), time.Since(start).Round(time.Millisecond))
		return nil
	}
	if err := once(); err != nil {
		return err
	}
	if !watchSource {
		return nil
	}

	w, err := watch.New([]string{source}, func() {
		if err := once(); err != nil {
			a.logger.Error("import failed", "source", source, "err", err)
		}
	}, watch.Options{Logger: a.logger})
	if err != nil {
		return err
	}
	a.printf("Watching <grey>%s</> for changes\n", source)
	return w.Run(ctx)
}

func (a *app) addScriptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add-script <name> <file|->",
		Short: "Create a script or replace its code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readSource(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			p, err := a.openForWrite()
			if err != nil {
				return err
			}
			scr, err := p.EnsureScriptExists(args[0], code)
			if err != nil {
				return err
			}
			if err := p.Save(); err != nil {
				return err
			}
			a.printf("<green>script</> %s <grey>%s</>\n", scr.Name(), scr.FolderPath())
			return nil
		},
	}
}

func readSource(stdin io.Reader, arg string) (string, error) {
	if arg == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(arg)
	if err != nil {
		return "", &resource.PipelineError{Kind: resource.InvalidUpsertTarget, Resource: arg, Msg: "cannot read script source", Err: err}
	}
	return string(b), nil
}

func (a *app) listCommand() *cobra.Command {
	var kindName, folder string
	var recursive bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resources, optionally filtered by kind and folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open()
			if err != nil {
				return err
			}
			items := p.Resources().All()
			if folder != "" {
				items = p.Resources().FilterByFolder(folder, recursive)
			}
			kind := resource.KindUnknown
			if kindName != "" {
				var ok bool
				if kind, ok = resource.ParseKind(kindName); !ok {
					return &resource.PipelineError{Kind: resource.UnknownResourceKind, Resource: kindName, Msg: "unknown kind"}
				}
			}
			for _, res := range items {
				if kind != resource.KindUnknown && res.Kind() != kind {
					continue
				}
				a.printf("%-10s %-32s <grey>%s</>\n", res.KindTag(), res.Name(), res.FolderPath())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&kindName, "kind", "k", "", "only list this kind (e.g. sounds, sprite, GMScript)")
	cmd.Flags().StringVarP(&folder, "folder", "f", "", "only list resources in this folder")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "include subfolders of --folder")
	return cmd
}

func (a *app) functionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List the global functions declared by scripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open()
			if err != nil {
				return err
			}
			funcs, err := p.GlobalFunctions()
			if err != nil {
				return err
			}
			for _, fn := range funcs {
				suffix := ""
				if fn.Constructor {
					suffix = " <yellow>constructor</>"
				}
				a.printf("%s(%s)%s <grey>%s:%d</>\n", fn.Name, strings.Join(fn.Params, ", "), suffix, fn.Resource, fn.Line)
			}
			return nil
		},
	}
}

func (a *app) refsCommand() *cobra.Command {
	var suffix string
	var includeSelf bool
	cmd := &cobra.Command{
		Use:   "refs <function>",
		Short: "Find lexical references to a global function",
		Long: `Find every identifier in the project's scripts that matches the name of a
global function. Scope is not considered: locals with the same name are
reported too, so check each match before acting on it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open()
			if err != nil {
				return err
			}
			refs, err := p.FindFunctionReferences(args[0], resource.ReferenceOptions{Suffix: suffix, IncludeSelf: includeSelf})
			if err != nil {
				return err
			}
			for _, ref := range refs {
				a.printf("%s:%d:%d <grey>%s</>\n", ref.Resource, ref.Line, ref.Column, ref.Role)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&suffix, "suffix", "", `regular expression the text after the name must match, e.g. '\s*\(' for calls`)
	cmd.Flags().BoolVar(&includeSelf, "self", false, "include the declaration itself")
	return cmd
}

func (a *app) renameFunctionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename-function <old> <new>",
		Short: "Rename a global function everywhere it is referenced",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openForWrite()
			if err != nil {
				return err
			}
			n, err := p.RenameGlobalFunction(args[0], args[1])
			if err != nil {
				return err
			}
			a.printf("Renamed <cyan>%s</> to <cyan>%s</> in %d places\n", args[0], args[1], n)
			return nil
		},
	}
}

func (a *app) foldersCommand() *cobra.Command {
	var module string
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "List folders of the asset tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open()
			if err != nil {
				return err
			}
			folders := p.Folders().All()
			if module != "" {
				folders = p.Folders().FindModuleFolders(module)
			}
			for _, f := range folders {
				a.printf("%s\n", f.Path())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&module, "module", "m", "", "only list folders named after this module, in any case")
	return cmd
}

func (a *app) removeCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "remove <kind> <name>",
		Short: "Delete a resource and its files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := resource.ParseKind(args[0])
			if !ok {
				return &resource.PipelineError{Kind: resource.UnknownResourceKind, Resource: args[0], Msg: "unknown kind"}
			}
			p, err := a.openForWrite()
			if err != nil {
				return err
			}
			if _, ok := p.Resources().Get(kind, args[1]); !ok {
				return &resource.PipelineError{Kind: resource.InvariantViolation, Resource: args[1], Msg: fmt.Sprintf("no %s named %q", kind, args[1])}
			}
			if !yes {
				input := confirmation.New(fmt.Sprintf("Delete %s %s and its files?", kind, args[1]), confirmation.No)
				confirmed, err := input.RunPrompt()
				if err != nil {
					return err
				}
				if !confirmed {
					a.printf("Nothing removed\n")
					return nil
				}
			}
			if err := p.RemoveResource(kind, args[1]); err != nil {
				return err
			}
			if err := p.Save(); err != nil {
				return err
			}
			a.printf("<red>removed</> %s %s\n", kind, args[1])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the project read-only over HTTP and reload it when files change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := stitch.NewServer(a.open, a.v.GetInt("port"))
			if err != nil {
				return err
			}
			w, err := watch.New([]string{s.Project().Dir()}, func() {
				_ = s.Reload()
			}, watch.Options{Logger: a.logger})
			if err != nil {
				return err
			}
			go func() {
				if err := w.Run(cmd.Context()); err != nil {
					a.logger.Error("watcher stopped", "err", err)
				}
			}()
			a.printf("Serving <cyan>%s</> on :%d\n", s.Project().Name(), a.v.GetInt("port"))
			return s.Serve()
		},
	}
	cmd.Flags().Int("port", 8080, "port for the inspection server")
	_ = a.v.BindPFlag("port", cmd.Flags().Lookup("port"))
	return cmd
}
