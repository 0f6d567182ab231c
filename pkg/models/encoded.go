package models

// EncodedDataset is the bin-index matrix of the attributes that take part in the network.
// Columns[i] holds the indices of Attributes[i]; Cardinalities[i] bounds them.
type EncodedDataset struct {
	Attributes    []string
	Columns       [][]int
	Cardinalities []int
}

// NumTuples returns the number of encoded rows.
func (e *EncodedDataset) NumTuples() int {
	if len(e.Columns) == 0 {
		return 0
	}
	return len(e.Columns[0])
}

// NumAttributes returns the number of encoded columns.
func (e *EncodedDataset) NumAttributes() int {
	return len(e.Attributes)
}

// Index returns the position of a named attribute, or -1.
func (e *EncodedDataset) Index(name string) int {
	for i, a := range e.Attributes {
		if a == name {
			return i
		}
	}
	return -1
}

// Column returns the encoded values of a named attribute.
func (e *EncodedDataset) Column(name string) []int {
	if i := e.Index(name); i >= 0 {
		return e.Columns[i]
	}
	return nil
}

// Cardinality returns the domain size of a named attribute.
func (e *EncodedDataset) Cardinality(name string) int {
	if i := e.Index(name); i >= 0 {
		return e.Cardinalities[i]
	}
	return 0
}
