package model

// StatementPayload is one raw statement period as returned by a provider:
// a fiscal date plus the unparsed breakdown rows (line-item label -> raw
// scalar). Like RawPayload it is discarded after normalization.
type StatementPayload struct {
	FiscalDate string
	Rows       RawPayload
}
