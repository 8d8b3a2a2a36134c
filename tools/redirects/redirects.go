// Command redirects patches the kernel image so that runtime functions
// marked with a go:redirect-from directive jump to their kernel
// replacements. The rt0 code walks the .goredirectstbl section at boot and
// installs a branch at each source address.
package main

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/mod/modfile"
)

const redirectTableSection = ".goredirectstbl"

type redirect struct {
	src string
	dst string

	srcVMA uint64
	dstVMA uint64
}

// modulePath returns the module path declared in the go.mod file at root.
func modulePath(root string) (string, error) {
	gomod := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(gomod)
	if err != nil {
		return "", err
	}

	module := modfile.ModulePath(data)
	if module == "" {
		return "", errors.Errorf("%s: missing module directive", gomod)
	}
	return module, nil
}

func collectGoFiles(root string) ([]string, error) {
	var goFiles []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}

		if filepath.Ext(path) == ".go" && !strings.HasSuffix(path, "_test.go") {
			goFiles = append(goFiles, path)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return goFiles, nil
}

// findRedirects parses goFiles (paths relative to the module root) and
// returns the redirects they declare. Destination symbols are qualified with
// the package import path under module.
func findRedirects(module string, goFiles []string) ([]*redirect, error) {
	var redirects []*redirect

	for _, goFile := range goFiles {
		fset := token.NewFileSet()

		f, err := parser.ParseFile(fset, goFile, nil, parser.ParseComments)
		if err != nil {
			return nil, errors.Wrap(err, goFile)
		}

		for _, decl := range f.Decls {
			fnDecl, ok := decl.(*ast.FuncDecl)
			if !ok || fnDecl.Doc == nil {
				continue
			}

			for _, comment := range fnDecl.Doc.List {
				if !strings.Contains(comment.Text, "go:redirect-from") {
					continue
				}

				// build qualified name to fn
				fqName := fmt.Sprintf("%s/%s.%s",
					module,
					filepath.ToSlash(filepath.Dir(goFile)),
					fnDecl.Name,
				)

				fields := strings.Fields(comment.Text)
				if len(fields) != 2 || fields[0] != "//go:redirect-from" {
					return nil, errors.Errorf("malformed go:redirect-from syntax for %q", fqName)
				}

				redirects = append(redirects, &redirect{
					src: fields[1],
					dst: fqName,
				})
			}
		}
	}

	return redirects, nil
}

func elfRedirectTableOffset(imgFile string) (uint64, error) {
	f, err := elf.Open(imgFile)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	redirectsSection := f.Section(redirectTableSection)
	if redirectsSection == nil {
		return 0, errors.Errorf("%s: missing %s section", imgFile, redirectTableSection)
	}

	return redirectsSection.Offset, nil
}

// writeRedirectTable writes a (src, dst) address pair for each redirect.
func writeRedirectTable(w io.Writer, redirects []*redirect) error {
	for _, redirect := range redirects {
		if err := binary.Write(w, binary.LittleEndian, redirect.srcVMA); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, redirect.dstVMA); err != nil {
			return err
		}
	}

	return nil
}

func elfWriteRedirectTable(redirects []*redirect, imgFile string) error {
	redirectTableOffset, err := elfRedirectTableOffset(imgFile)
	if err != nil {
		return err
	}

	// Open kernel image file and seek to table offset
	f, err := os.OpenFile(imgFile, os.O_WRONLY, os.ModeType)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err = f.Seek(int64(redirectTableOffset), io.SeekStart); err != nil {
		return err
	}

	return writeRedirectTable(f, redirects)
}

// resolveRedirectSymbols fills in the source and destination addresses of
// each redirect from the symbol table.
func resolveRedirectSymbols(redirects []*redirect, symbols []elf.Symbol) error {
	for _, redirect := range redirects {
		for _, symbol := range symbols {
			if symbol.Name == redirect.src {
				redirect.srcVMA = symbol.Value
			}
			if symbol.Name == redirect.dst {
				redirect.dstVMA = symbol.Value
			}
		}

		switch {
		case redirect.srcVMA == 0:
			return errors.Errorf("could not locate address of %q", redirect.src)
		case redirect.dstVMA == 0:
			return errors.Errorf("could not locate address of %q", redirect.dst)
		}
	}

	return nil
}

func elfResolveRedirectSymbols(redirects []*redirect, imgFile string) error {
	f, err := elf.Open(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	symbols, err := f.Symbols()
	if err != nil {
		return err
	}

	return errors.Wrap(resolveRedirectSymbols(redirects, symbols), imgFile)
}

// kernelRedirects collects the redirects declared under the kernel folder
// of the module rooted at the current directory.
func kernelRedirects() ([]*redirect, error) {
	if matches, _ := filepath.Glob("kernel/"); len(matches) != 1 {
		return nil, errors.New("this tool must be run from the kernel root folder")
	}

	module, err := modulePath(".")
	if err != nil {
		return nil, err
	}

	goFiles, err := collectGoFiles("kernel")
	if err != nil {
		return nil, err
	}

	return findRedirects(module, goFiles)
}

func app() *cli.App {
	return &cli.App{
		Name:  "redirects",
		Usage: "maintain the runtime redirect table of the kernel image",
		Commands: []*cli.Command{
			{
				Name:  "count",
				Usage: "print the number of redirect table entries",
				Action: func(c *cli.Context) error {
					redirects, err := kernelRedirects()
					if err != nil {
						return err
					}

					fmt.Fprintf(c.App.Writer, "%d", len(redirects))
					return nil
				},
			},
			{
				Name:      "populate-table",
				Usage:     "resolve redirect addresses and write them to the kernel image",
				ArgsUsage: "<kernel image>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return errors.New("populate-table requires the path to the kernel image as an argument")
					}
					imgFile := c.Args().First()

					redirects, err := kernelRedirects()
					if err != nil {
						return err
					}

					if err = elfResolveRedirectSymbols(redirects, imgFile); err != nil {
						return err
					}

					for _, r := range redirects {
						logrus.WithFields(logrus.Fields{
							"src": fmt.Sprintf("%s@0x%x", r.src, r.srcVMA),
							"dst": fmt.Sprintf("%s@0x%x", r.dst, r.dstVMA),
						}).Debug("redirect")
					}

					return elfWriteRedirectTable(redirects, imgFile)
				},
			},
		},
	}
}

func main() {
	if err := app().Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("[redirects] error")
	}
}
