// Package config loads plugin TOML files over the built-in defaults and renders
// a starter template.
//
// Only keys present in a file override defaults, so partial files are valid.
package config
