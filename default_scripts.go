// Package blecentral ships the example Lua scripts of the blecentral CLI.
package blecentral

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed examples/*.lua
var exampleScripts embed.FS

// ExampleScript returns the source of a bundled example, by name without the
// .lua extension.
func ExampleScript(name string) (string, error) {
	data, err := exampleScripts.ReadFile(path.Join("examples", name+".lua"))
	if err != nil {
		return "", fmt.Errorf("unknown example %q: must be one of %v", name, ExampleNames())
	}
	return string(data), nil
}

// ExampleNames lists the bundled examples.
func ExampleNames() []string {
	entries, _ := fs.ReadDir(exampleScripts, "examples")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".lua"))
	}
	sort.Strings(names)
	return names
}
