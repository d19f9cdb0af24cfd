// Package wasmtest builds a minimal, hand-assembled WASM module for use in
// scriptworker/lifecycle tests, standing in for a compiled scene script
// where no real scene build artifact is available (the
// ats/wasi/example_test.go instead reads a prebuilt .wasm from disk and
// skips if absent; this package replaces that fixture since this module
// has no Rust/WASM build step of its own).
package wasmtest

// Stub returns a module exporting "memory", a no-op "onStart" (func () ->
// ()), and a no-op "onUpdate" (func (f32) -> ()) — the minimum surface
// scriptworker.Engine calls into (§4.C).
func Stub() []byte {
	var b []byte
	b = append(b, 0x00, 0x61, 0x73, 0x6d) // magic "\0asm"
	b = append(b, 0x01, 0x00, 0x00, 0x00) // version 1

	b = append(b, section(1, // type section: () -> (), (f32) -> ()
		concat(
			[]byte{0x02},             // 2 types
			[]byte{0x60, 0x00, 0x00}, // type 0: () -> ()
			[]byte{0x60, 0x01, 0x7d, 0x00}, // type 1: (f32) -> ()
		))...)

	b = append(b, section(3, // function section: func0 uses type0, func1 uses type1
		[]byte{0x02, 0x00, 0x01})...)

	b = append(b, section(5, // memory section: 1 memory, min 1 page, no max
		[]byte{0x01, 0x00, 0x01})...)

	b = append(b, section(7, exportSection())...)

	b = append(b, section(10, // code section: both functions are empty bodies
		concat(
			[]byte{0x02},             // 2 function bodies
			emptyBody(),              // onStart
			emptyBody(),              // onUpdate
		))...)

	return b
}

func exportSection() []byte {
	var entries []byte
	entries = append(entries, 0x03) // 3 exports
	entries = append(entries, exportEntry("memory", 0x02, 0)...)
	entries = append(entries, exportEntry("onStart", 0x00, 0)...)
	entries = append(entries, exportEntry("onUpdate", 0x00, 1)...)
	return entries
}

func exportEntry(name string, kind byte, index byte) []byte {
	var e []byte
	e = append(e, byte(len(name)))
	e = append(e, []byte(name)...)
	e = append(e, kind, index)
	return e
}

func emptyBody() []byte {
	// body size (2), 0 locals, single `end` instruction
	return []byte{0x02, 0x00, 0x0b}
}

func section(id byte, content []byte) []byte {
	out := []byte{id, byte(len(content))}
	return append(out, content...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
