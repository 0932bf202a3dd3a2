package normalize

import (
	"bytes"
	"io"
	"os"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/teranos/civicload/errors"
)

// DefaultConfidence is the minimum detection confidence accepted
const DefaultConfidence = 0.7

// detectionSample bounds how much of a file the detector sees
const detectionSample = 1 << 20

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Detector guesses the character set of a byte sample.
// *chardet.Detector satisfies it.
type Detector interface {
	DetectBest(b []byte) (*chardet.Result, error)
}

// EncodingOptions configures NormalizeEncoding
type EncodingOptions struct {
	Confidence float64  // 0 = DefaultConfidence
	Detector   Detector // nil = chardet text detector
}

// EncodingResult describes one encoding normalization
type EncodingResult struct {
	Source     string
	Path       string
	Charset    string
	Confidence float64
	HadBOM     bool
	Rewritten  bool // false when src == dst and the file was already clean UTF-8
	Bytes      int64
}

// NormalizeEncoding writes src to dst as UTF-8 without a byte-order mark.
// src and dst may be the same path.
func NormalizeEncoding(src, dst string, opts EncodingOptions) (EncodingResult, error) {
	res := EncodingResult{Source: src, Path: dst}

	threshold := opts.Confidence
	if threshold <= 0 {
		threshold = DefaultConfidence
	}
	detector := opts.Detector
	if detector == nil {
		detector = chardet.NewTextDetector()
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return res, &NormalizationError{Path: src, Err: errors.Wrap(err, "read file")}
	}

	var decoder *encoding.Decoder
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]
		res.HadBOM = true
	case bytes.HasPrefix(data, bomUTF16LE):
		data = data[len(bomUTF16LE):]
		res.HadBOM = true
		res.Charset, res.Confidence = "UTF-16LE", 1.0
		decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	case bytes.HasPrefix(data, bomUTF16BE):
		data = data[len(bomUTF16BE):]
		res.HadBOM = true
		res.Charset, res.Confidence = "UTF-16BE", 1.0
		decoder = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	}

	if decoder == nil {
		if utf8.Valid(data) {
			res.Charset, res.Confidence = "UTF-8", 1.0
			if src == dst && !res.HadBOM {
				res.Bytes = int64(len(data))
				return res, nil
			}
		} else {
			sample := data
			if len(sample) > detectionSample {
				sample = sample[:detectionSample]
			}
			guess, err := detector.DetectBest(sample)
			if err != nil || guess == nil {
				return res, &EncodingError{Path: src, Threshold: threshold}
			}
			res.Charset = guess.Charset
			res.Confidence = float64(guess.Confidence) / 100
			if res.Confidence < threshold {
				return res, &EncodingError{Path: src, Charset: res.Charset, Confidence: res.Confidence, Threshold: threshold}
			}
			enc, err := htmlindex.Get(guess.Charset)
			if err != nil {
				return res, &NormalizationError{Path: src, Err: errors.Wrapf(err, "unsupported charset %s", guess.Charset)}
			}
			decoder = enc.NewDecoder()
		}
	}

	if decoder != nil {
		data, _, err = transform.Bytes(decoder, data)
		if err != nil {
			return res, &NormalizationError{Path: src, Err: errors.Wrapf(err, "transcode from %s", res.Charset)}
		}
	}

	err = writeAtomic(dst, func(w io.Writer) error {
		_, err := w.Write(data)
		return errors.Wrapf(err, "write %s", dst)
	})
	if err != nil {
		return res, &NormalizationError{Path: src, Err: err}
	}
	res.Rewritten = true
	res.Bytes = int64(len(data))
	return res, nil
}
