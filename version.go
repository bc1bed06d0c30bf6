package mcap

// version is the engine version reported in the Header.Library field of
// files produced by Writer, unless WriterOptions.OverrideLibrary is set.
const version = "0.1.0"

// Version returns the engine's version string.
func Version() string {
	return version
}
