package compressor

// NoneCodec is the identity codec: §4.7's "on compression that fails to
// reduce size, the worker stores the original bytes and sets algorithm id
// to none" uses this directly.
type NoneCodec struct{}

func (NoneCodec) ID() byte     { return AlgoNone }
func (NoneCodec) Name() string { return "none" }

func (NoneCodec) Compress(data []byte, _ int) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (NoneCodec) Decompress(data []byte, _ int) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
