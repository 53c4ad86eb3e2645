package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/ankit-chaubey/media-preparer/core"
)

// printer serializes all CLI output. Compress runs files in parallel, so
// every print goes through one mutex to keep lines intact.
type printer struct {
	mu   sync.Mutex
	json bool
}

func newPrinter(jsonMode bool) *printer {
	return &printer{json: jsonMode}
}

func (p *printer) success(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Println(color.GreenString("✓ ") + msg)
}

func (p *printer) fileResult(path string, res *core.ProcessingResult, dryRun bool) {
	note := ""
	if dryRun {
		note = " (dry-run)"
	}
	p.success(fmt.Sprintf("%s: %s -> %s (-%0.1f%%)%s",
		path, sizeString(res.OriginalSize), sizeString(res.NewSize),
		res.Reduction()*100, note))
}

func (p *printer) fileSkipped(path string, res *core.ProcessingResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Println(color.YellowString("- ") + fmt.Sprintf(
		"%s: output would grow (%s -> %s), keeping original",
		path, sizeString(res.OriginalSize), sizeString(res.NewSize)))
}

func (p *printer) fileError(path string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(os.Stderr, color.RedString("✗ ")+path+": "+err.Error())
}

func printError(msg string) {
	fmt.Fprintln(os.Stderr, color.RedString("✗ Error: ")+msg)
}

// printMetadata renders one Inspect result, grouped by category.
func (p *printer) printMetadata(path string, m *core.Metadata) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		p.printMetadataJSON(path, m)
		return
	}

	fmt.Printf("File  : %s\n", path)
	fmt.Printf("Format: %s\n", m.Format.Name())
	fmt.Printf("Size  : %s\n", sizeString(m.FileSize))
	if len(m.Fields) == 0 {
		fmt.Println("(no metadata found)")
		return
	}
	fmt.Println()

	groups := make(map[string][]core.MetaField)
	var order []string
	seen := map[string]bool{}
	for _, f := range m.Fields {
		if !seen[f.Category] {
			seen[f.Category] = true
			order = append(order, f.Category)
		}
		groups[f.Category] = append(groups[f.Category], f)
	}
	for _, cat := range order {
		fmt.Println(color.CyanString("── %s ──", cat))
		for _, f := range groups[cat] {
			fmt.Printf("  %-30s %s\n", f.Key+":", f.Value)
		}
		fmt.Println()
	}
}

func (p *printer) printMetadataJSON(path string, m *core.Metadata) {
	type jsonField struct {
		Key      string `json:"key"`
		Value    string `json:"value"`
		Category string `json:"category"`
	}
	out := struct {
		File   string      `json:"file"`
		Format string      `json:"format"`
		Size   int         `json:"size"`
		Fields []jsonField `json:"fields"`
	}{File: path, Format: string(m.Format), Size: m.FileSize}
	for _, f := range m.Fields {
		out.Fields = append(out.Fields, jsonField{Key: f.Key, Value: f.Value, Category: f.Category})
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

func sizeString(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
