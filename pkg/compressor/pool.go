package compressor

import (
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-fsarchiver/fsarchiver/pkg/checksum"
	"github.com/go-fsarchiver/fsarchiver/pkg/crypt"
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
	"github.com/go-fsarchiver/fsarchiver/pkg/queue"
)

// idlePoll bounds how long a worker sleeps before re-checking whether the
// producer has stopped enqueuing and no block remains to claim.
const idlePoll = 20 * time.Millisecond

// Compress runs data through codec at level, falling back to NoneCodec when
// the result does not shrink the block (§4.7: "compression that fails to
// reduce size stores the original bytes under algorithm id none").
func Compress(codec Codec, data []byte, level int) (out []byte, algo byte, err error) {
	packed, err := codec.Compress(data, level)
	if err != nil {
		return nil, 0, err
	}
	if len(packed) >= len(data) {
		return data, AlgoNone, nil
	}
	return packed, codec.ID(), nil
}

// processBlock runs one BlockInfo through codec, stamping the accounting
// fields the volume writer and restore path rely on, then optionally
// encrypts the compressed result (§4.7: "compress, then optionally
// encrypt"). enc may be nil or crypt.NoneCodec{} to skip encryption.
func processBlock(codec Codec, level int, enc crypt.Codec, info *queue.BlockInfo) (*queue.BlockInfo, error) {
	out := *info
	archived, algo, err := Compress(codec, info.Raw, level)
	if err != nil {
		return nil, err
	}
	out.CompressAlgo = algo
	out.RealSize = uint32(len(info.Raw))
	out.CompressedSize = uint32(len(archived))

	if enc != nil {
		ciphertext, err := enc.Encrypt(archived)
		if err != nil {
			return nil, err
		}
		archived = ciphertext
		out.EncryptAlgo = enc.ID()
	}
	out.Archived = archived
	out.ArchiveSize = uint32(len(archived))
	out.Checksum = checksum.Fletcher32(archived)
	return &out, nil
}

// decodeBlock reverses processBlock during restore: verify the stored
// checksum, decrypt (using the block's own stored EncryptAlgo id), then
// resolve the compressor from the block's stored CompressAlgo id rather
// than the pool's default. A corrupt single block is reported via
// BlockInfo.DecodeErr rather than failing the call, so one damaged block
// truncates one file instead of aborting every other file the pool is
// concurrently decompressing (§4.9 "Resynchronization").
func decodeBlock(registry *Registry, enc crypt.Codec, info *queue.BlockInfo) (*queue.BlockInfo, error) {
	out := *info
	if checksum.Fletcher32(info.Archived) != info.Checksum {
		out.DecodeErr = errs.New(errs.Corrupt, "block checksum mismatch")
		return &out, nil
	}

	data := info.Archived
	if info.EncryptAlgo != crypt.AlgoNone {
		if enc == nil {
			out.DecodeErr = errs.New(errs.WrongArchive, "block is encrypted but no passphrase was supplied")
			return &out, nil
		}
		plain, err := enc.Decrypt(data)
		if err != nil {
			out.DecodeErr = err
			return &out, nil
		}
		data = plain
	}

	codec, err := registry.Get(info.CompressAlgo)
	if err != nil {
		return nil, err
	}
	raw, err := codec.Decompress(data, int(info.RealSize))
	if err != nil {
		out.DecodeErr = err
		return &out, nil
	}
	out.Raw = raw
	return &out, nil
}

// runWorkers starts `workers` goroutines each claiming TODO block items from
// q and handing them to process, until the producer signals end-of-queue
// (via done) and no block remains TODO or IN_PROGRESS.
func runWorkers(q *queue.Queue, workers int, done <-chan struct{}, process func(*queue.BlockInfo) (*queue.BlockInfo, error)) error {
	g := new(errgroup.Group)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				item := q.NextPendingBlock()
				if item == nil {
					select {
					case <-done:
						if !q.HasTodoBlock() {
							return nil
						}
					default:
					}
					time.Sleep(idlePoll)
					continue
				}
				result, err := process(item.Block())
				if err != nil {
					return err
				}
				q.CompleteBlock(item, result)
			}
		})
	}
	return g.Wait()
}

// RunCompressPool runs `workers` goroutines compressing (and, if enc is
// non-nil, encrypting) every TODO block in q with codec at the given level
// until the producer closes done and the queue has no block left to claim
// (§4.7). enc may be nil to archive without encryption.
func RunCompressPool(q *queue.Queue, workers int, codec Codec, level int, enc crypt.Codec, done <-chan struct{}) error {
	return runWorkers(q, workers, done, func(info *queue.BlockInfo) (*queue.BlockInfo, error) {
		return processBlock(codec, level, enc, info)
	})
}

// RunDecompressPool mirrors RunCompressPool for restore: each block already
// carries its own CompressAlgo/EncryptAlgo ids, so workers resolve the codec
// per-block rather than sharing one. enc decrypts blocks whose EncryptAlgo
// is not AlgoNone; it may be nil if the archive holds no encrypted blocks.
func RunDecompressPool(q *queue.Queue, workers int, registry *Registry, enc crypt.Codec, done <-chan struct{}) error {
	return runWorkers(q, workers, done, func(info *queue.BlockInfo) (*queue.BlockInfo, error) {
		return decodeBlock(registry, enc, info)
	})
}
