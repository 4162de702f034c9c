package ocr

import "errors"

// ErrTesseractNotBuilt is returned by NewTesseract in binaries built
// without cgo.
var ErrTesseractNotBuilt = errors.New("tesseract support requires a cgo build")

// TesseractConfig configures a Tesseract handle.
type TesseractConfig struct {
	// TessdataPrefix overrides the directory holding *.traineddata files.
	TessdataPrefix string `mapstructure:"tessdata_prefix" yaml:"tessdata_prefix" json:"tessdata_prefix"`
	// Whitelist restricts recognized characters when non-empty.
	Whitelist string `mapstructure:"whitelist" yaml:"whitelist" json:"whitelist"`
}
