//go:build js && wasm
// +build js,wasm

package main

import (
	"fmt"
	"path/filepath"
	"syscall/js"

	"github.com/MeKo-Tech/pbrgen/internal/naming"
)

// classify is called from JavaScript with a file name and reports how the
// generator would treat it, so upload forms can reject derived maps early.
func classify(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return map[string]interface{}{"error": "missing arguments"}
	}

	name := args[0].String()
	class := naming.ClassifyPath(name)
	return map[string]interface{}{
		"name":   name,
		"class":  class.String(),
		"source": class.IsSource(),
	}
}

// outputs returns the file names the generator writes for a base-color file.
// An optional second argument selects the channel extension (default ".jpg").
func outputs(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return map[string]interface{}{"error": "missing arguments"}
	}

	ext := ".jpg"
	if len(args) > 1 && args[1].Type() == js.TypeString {
		ext = args[1].String()
	}

	name := args[0].String()
	if !naming.ClassifyPath(name).IsSource() {
		return map[string]interface{}{"error": fmt.Sprintf("%s is not a base color source", name)}
	}

	dir, stem, srcExt := naming.SplitName(name)
	base := filepath.Join(dir, naming.BaseStem(stem))

	files := map[string]interface{}{
		"color": naming.ColorPath(base, srcExt),
	}
	for _, ch := range naming.Channels {
		files[ch.String()] = naming.OutputPath(base, ch, ext)
	}
	return files
}

func main() {
	c := make(chan struct{})

	js.Global().Set("pbrClassify", js.FuncOf(classify))
	js.Global().Set("pbrOutputs", js.FuncOf(outputs))

	fmt.Println("pbrgen WASM module loaded")
	<-c
}
