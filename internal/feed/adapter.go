package feed

// Adapter converts one wire format into canonical items. Adapters hold no
// mutable state across calls; every Parse is independent and reentrant.
type Adapter interface {
	// Name identifies the adapter in diagnostics.
	Name() string

	// Formats lists the content types the adapter declares support for.
	Formats() []ContentType

	// CanParse reports whether the adapter believes it can handle the payload.
	CanParse(content []byte, hint string) bool

	// Parse converts the payload into canonical items for the given source.
	// An error means the document root was not understood at all; individual
	// malformed items are skipped without failing the batch.
	Parse(content []byte, src Source) (*ParseResult, error)
}
