// Package compress exports string compression primitives for zlib, gzip,
// zstd and lz4.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/krobelus/remacs/lisp"
)

// MaxDecompressed bounds the output of every decompressor.
const MaxDecompressed = 64 << 20

var errTooLarge = fmt.Errorf("decompressed data exceeds %d bytes", MaxDecompressed)

// codec is one compression format.
type codec struct {
	name         string
	minLevel     int
	maxLevel     int
	defaultLevel int
	compress     func(data []byte, level int) ([]byte, error)
	decompress   func(data []byte) ([]byte, error)
}

var codecs = []codec{
	{
		name:         "zlib",
		minLevel:     zlib.HuffmanOnly,
		maxLevel:     zlib.BestCompression,
		defaultLevel: zlib.DefaultCompression,
		compress: func(data []byte, level int) ([]byte, error) {
			var buf bytes.Buffer
			w, err := zlib.NewWriterLevel(&buf, level)
			if err != nil {
				return nil, err
			}
			return finish(&buf, w, data)
		},
		decompress: func(data []byte) ([]byte, error) {
			r, err := zlib.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, err
			}
			defer r.Close()
			return readAll(r)
		},
	},
	{
		name:         "gzip",
		minLevel:     gzip.HuffmanOnly,
		maxLevel:     gzip.BestCompression,
		defaultLevel: gzip.DefaultCompression,
		compress: func(data []byte, level int) ([]byte, error) {
			var buf bytes.Buffer
			w, err := gzip.NewWriterLevel(&buf, level)
			if err != nil {
				return nil, err
			}
			return finish(&buf, w, data)
		},
		decompress: func(data []byte) ([]byte, error) {
			r, err := gzip.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, err
			}
			defer r.Close()
			return readAll(r)
		},
	},
	{
		name:         "zstd",
		minLevel:     1,
		maxLevel:     22,
		defaultLevel: 3,
		compress: func(data []byte, level int) ([]byte, error) {
			enc, err := zstdEncoder(level)
			if err != nil {
				return nil, err
			}
			return enc.EncodeAll(data, nil), nil
		},
		decompress: func(data []byte) ([]byte, error) {
			dec, err := zstdDecoder()
			if err != nil {
				return nil, err
			}
			out, err := dec.DecodeAll(data, nil)
			if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
				return nil, errTooLarge
			}
			return out, err
		},
	},
	{
		name:         "lz4",
		minLevel:     0,
		maxLevel:     9,
		defaultLevel: 0,
		compress: func(data []byte, level int) ([]byte, error) {
			var buf bytes.Buffer
			w := lz4.NewWriter(&buf)
			if err := w.Apply(lz4.CompressionLevelOption(lz4Levels[level])); err != nil {
				return nil, err
			}
			return finish(&buf, w, data)
		},
		decompress: func(data []byte) ([]byte, error) {
			return readAll(lz4.NewReader(bytes.NewReader(data)))
		},
	},
}

var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

func finish(buf *bytes.Buffer, w io.WriteCloser, data []byte) ([]byte, error) {
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func readAll(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, MaxDecompressed+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxDecompressed {
		return nil, errTooLarge
	}
	return out, nil
}

// zstd encoders are safe for concurrent EncodeAll; keep one per level.
var (
	zstdMu       sync.Mutex
	zstdEncoders = map[int]*zstd.Encoder{}
	zstdDec      *zstd.Decoder
)

func zstdEncoder(level int) (*zstd.Encoder, error) {
	zstdMu.Lock()
	defer zstdMu.Unlock()
	if enc, ok := zstdEncoders[level]; ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, err
	}
	zstdEncoders[level] = enc
	return enc, nil
}

func zstdDecoder() (*zstd.Decoder, error) {
	zstdMu.Lock()
	defer zstdMu.Unlock()
	if zstdDec != nil {
		return zstdDec, nil
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecompressed))
	if err != nil {
		return nil, err
	}
	zstdDec = dec
	return dec, nil
}

// Descriptors returns the primitives of this library.
func Descriptors() []*lisp.Descriptor {
	ds := []*lisp.Descriptor{
		lisp.Defun0("zlib-available-p", "Return t if zlib decompression is available in this instance of Emacs.",
			lisp.Bool,
			func(*lisp.Env) (bool, error) { return true, nil }),
	}
	for _, c := range codecs {
		ds = append(ds, c.compressor(), c.decompressor())
	}
	return ds
}

func (c codec) compressor() *lisp.Descriptor {
	return lisp.Defun(c.name+"-compress-string").
		Doc(fmt.Sprintf(`Compress STRING with %s and return a unibyte string.
Multibyte text is compressed in its UTF-8 encoding.  Optional LEVEL is
an integer between %d and %d; nil means the default of %d.`,
			c.name, c.minLevel, c.maxLevel, c.defaultLevel)).
		Arg("string", lisp.ParamOf(lisp.Bytes)).
		Optional("level", lisp.ParamOf(lisp.Fixnum)).
		MustBody(func(call *lisp.Call) (lisp.Object, error) {
			level := c.defaultLevel
			if call.Supplied(1) {
				n := lisp.Arg[int64](call, 1)
				if n < int64(c.minLevel) || n > int64(c.maxLevel) {
					return lisp.Nil, lisp.NewSignal("args-out-of-range", call.Raw(1), c.minLevel, c.maxLevel)
				}
				level = int(n)
			}
			out, err := c.compress(lisp.Arg[[]byte](call, 0), level)
			if err != nil {
				return lisp.Nil, lisp.Errorf("%s compression failed: %v", c.name, err)
			}
			return call.Env.MakeUnibyteString(out)
		})
}

func (c codec) decompressor() *lisp.Descriptor {
	return lisp.Defun1(c.name+"-decompress-string",
		fmt.Sprintf("Decompress the %s data in STRING and return a unibyte string.", c.name),
		lisp.Bytes, lisp.Bytes,
		func(_ *lisp.Env, data []byte) ([]byte, error) {
			out, err := c.decompress(data)
			if err != nil {
				return nil, lisp.Errorf("Invalid %s data: %v", c.name, err)
			}
			return out, nil
		})
}
