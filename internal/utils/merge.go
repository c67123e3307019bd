package utils

import (
	"github.com/BurntSushi/toml"
	"github.com/RaveNoX/go-jsonmerge"
)

// TomlDecodeFile decodes the TOML file at path into out and returns the
// keys present in the file that out has no field for.
func TomlDecodeFile(path string, out interface{}) ([]string, error) {
	md, err := toml.DecodeFile(path, out)
	if err != nil {
		return nil, err
	}
	var undecoded []string
	for _, k := range md.Undecoded() {
		undecoded = append(undecoded, k.String())
	}
	return undecoded, nil
}

// Merge deep-merges patch into data following JSON merge semantics.
func Merge(data, patch interface{}) (interface{}, error) {
	out, info := jsonmerge.Merge(data, patch)
	if len(info.Errors) > 0 {
		return nil, info.Errors[0]
	}
	return out, nil
}
