package portfolio

// File is the raw content of one uploaded or scanned import file.
type File struct {
	Name string
	Data []byte
}

// Result is what a single adapter produced from one file.
type Result struct {
	Transactions []Transaction
	Transfers    []Transfer
	Errors       []ImportError
}

// Adapter recognizes one external export format and deserializes it into
// candidate transactions and transfers. CanImport must not mutate the file
// and must not fail: a file an adapter cannot place is simply not its own.
// Adapters are tried in a fixed priority order and the first match wins, so
// sniff rules of later adapters must exclude files earlier ones claim.
type Adapter interface {
	Name() string
	CanImport(f File) bool
	Deserialize(f File) Result
}
